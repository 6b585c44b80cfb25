package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yarlson/pilot/internal/events"
	"github.com/yarlson/pilot/internal/proctask"
	"github.com/yarlson/pilot/internal/tools"
)

// NewToolsCmd creates the tools command, listing the built-in tools.
func NewToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the built-in tools and their arguments",
		Run: func(cmd *cobra.Command, _ []string) {
			registry := tools.NewRegistry()
			registry.MustRegister(tools.NewShellTool())
			registry.MustRegister(tools.NewStartProcessTool(proctask.NewManager(nil), events.Nop{}))

			for _, def := range registry.List() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s - %s\n", def.Name, def.Description)
				for name, prop := range def.InputSchema.Properties {
					required := ""
					for _, r := range def.InputSchema.Required {
						if r == name {
							required = " (required)"
							break
						}
					}
					fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s%s\n",
						name, strings.TrimSpace(prop.Description), required)
				}
			}
		},
	}
}
