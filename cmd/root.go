// Package cmd implements the pilot CLI.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yarlson/pilot/internal/checkpoint"
	"github.com/yarlson/pilot/internal/config"
	"github.com/yarlson/pilot/internal/events"
	"github.com/yarlson/pilot/internal/orch"
	"github.com/yarlson/pilot/internal/planner"
	"github.com/yarlson/pilot/internal/proctask"
	"github.com/yarlson/pilot/internal/session"
	"github.com/yarlson/pilot/internal/tools"
)

var cfgFile string

// Root command flags
var (
	rootThread        string
	rootMaxIterations int
	rootMaxFixes      int
	rootWorkdir       string
	rootStream        bool
	rootResume        bool
)

// NewRootCmd creates the root command for the pilot CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pilot [plan.yaml]",
		Short: "Control loop for an autonomous coding agent",
		Long: `Pilot drives the plan/execute/verify loop of an autonomous coding agent:
it repeatedly asks a planner what to do next, executes the chosen tool calls,
detects failure, and runs a bounded fix-and-verify cycle before aborting.

The positional argument is a YAML plan script replayed as the planner; without
it the script path from configuration is used.`,
		SilenceUsage: true,
		Args:         cobra.MaximumNArgs(1),
		RunE:         runRoot,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: pilot.yaml in the workspace)")
	rootCmd.Flags().StringVarP(&rootThread, "thread", "t", "", "conversation thread ID (generated if empty)")
	rootCmd.Flags().IntVarP(&rootMaxIterations, "max-iterations", "n", 0, "maximum planning iterations (0 uses config)")
	rootCmd.Flags().IntVar(&rootMaxFixes, "max-fix-attempts", 0, "maximum fix attempts per failing tool call (0 uses config)")
	rootCmd.Flags().StringVarP(&rootWorkdir, "workdir", "w", "", "workspace root (default: config workspace.root)")
	rootCmd.Flags().BoolVar(&rootStream, "stream", false, "stream NDJSON events to stdout")
	rootCmd.Flags().BoolVar(&rootResume, "resume", false, "resume the thread from its checkpoint")

	rootCmd.AddCommand(NewVersionCmd())
	rootCmd.AddCommand(NewToolsCmd())

	return rootCmd
}

func runRoot(cmd *cobra.Command, args []string) error {
	workDir := rootWorkdir
	if workDir == "" {
		workDir = "."
	}

	cfg, err := config.LoadConfigWithFile(workDir, cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if rootWorkdir == "" {
		workDir = cfg.Workspace.Root
	}

	scriptPath := cfg.Planner.Script
	if len(args) == 1 {
		scriptPath = args[0]
	}
	if scriptPath == "" {
		return fmt.Errorf("no plan script: pass one as an argument or set planner.script")
	}

	plan, err := planner.LoadScript(scriptPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var emitter events.Emitter = events.Nop{}
	if rootStream {
		emitter = events.NewWriter(os.Stdout)
	}

	procs := proctask.NewManager(logger)
	if cfg.Process.ShutdownGraceSeconds > 0 {
		procs.SetShutdownGrace(time.Duration(cfg.Process.ShutdownGraceSeconds) * time.Second)
	}

	registry := tools.NewRegistry()
	for _, name := range cfg.Tools.Allowed {
		var tool tools.Tool
		switch name {
		case "shell":
			tool = tools.NewShellTool()
		case "start_process":
			tool = tools.NewStartProcessTool(procs, emitter)
		default:
			return fmt.Errorf("unknown tool in tools.allowed: %q", name)
		}
		if err := registry.Register(tool); err != nil {
			return fmt.Errorf("failed to register tool %q: %w", name, err)
		}
	}

	store, err := checkpoint.NewFileStore(filepath.Join(workDir, cfg.Workspace.StateDir))
	if err != nil {
		return err
	}

	st, err := buildState(store, cfg)
	if err != nil {
		return err
	}

	o := orch.New(orch.Deps{
		Planner:     plan,
		Runner:      tools.NewRunner(registry, procs, logger),
		Checkpoints: store,
		Emitter:     emitter,
		Logger:      logger,
		LogsDir:     filepath.Join(workDir, cfg.Workspace.LogsDir),
	})
	if rootMaxIterations > 0 {
		o.SetMaxIterations(rootMaxIterations)
	} else {
		o.SetMaxIterations(cfg.Loop.MaxIterations)
	}
	if rootMaxFixes > 0 {
		o.SetMaxFixAttempts(rootMaxFixes)
	} else {
		o.SetMaxFixAttempts(cfg.Loop.MaxFixAttempts)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := o.Run(ctx, st)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*proctask.DefaultShutdownGrace)
	procs.Shutdown(shutdownCtx)
	cancel()

	if err != nil {
		return err
	}

	switch result.Outcome {
	case orch.OutcomeCompleted:
		fmt.Fprintln(cmd.OutOrStdout(), result.Message)
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%d iterations in %s)\n",
			result.Message, result.Iterations, result.Elapsed.Round(time.Millisecond))
	}
	return nil
}

// buildState creates or restores the conversation state for the run.
func buildState(store checkpoint.Store, cfg *config.Config) (*session.State, error) {
	if rootResume && rootThread != "" {
		snapshot, err := store.Load(rootThread)
		if err != nil {
			return nil, err
		}
		if snapshot != nil {
			return session.Restore(rootThread, *snapshot), nil
		}
	}

	st := session.NewState(rootThread)
	st.ProjectSubdirectory = cfg.Workspace.ProjectSubdirectory
	return st, nil
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
