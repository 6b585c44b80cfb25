package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the pilot version, overridden at build time via -ldflags.
var Version = "dev"

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the pilot version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pilot %s\n", Version)
		},
	}
}
