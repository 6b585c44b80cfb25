package tools

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ShellTool runs a command line through the system shell and captures its
// output and exit code into a ShellResult. Non-zero exit codes are not
// errors here: the classifier turns them into a failure verdict.
type ShellTool struct{}

// NewShellTool creates a shell tool.
func NewShellTool() *ShellTool {
	return &ShellTool{}
}

// Definition returns the tool metadata.
func (t *ShellTool) Definition() Definition {
	return Definition{
		Name:        "shell",
		Description: "Execute a shell command and return its output and exit code",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"cmd": {Type: "string", Description: "Command line to execute"},
				"cwd": {Type: "string", Description: "Working directory (defaults to the workspace)"},
			},
			Required: []string{"cmd"},
		},
	}
}

// WorkdirArg declares that the session workspace is injected as "cwd".
func (t *ShellTool) WorkdirArg() string {
	return "cwd"
}

// Invoke runs the command via "sh -c". It returns an error only when the
// command could not be run at all; a command that ran and exited non-zero
// still yields a ShellResult.
func (t *ShellTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	cmdLine, _ := args["cmd"].(string)
	if strings.TrimSpace(cmdLine) == "" {
		return nil, fmt.Errorf("cmd is required")
	}
	cwd, _ := args["cwd"].(string)

	if cwd != "" {
		if _, err := os.Stat(cwd); os.IsNotExist(err) {
			return nil, fmt.Errorf("working directory does not exist: %s", cwd)
		}
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", cmdLine)
	if cwd != "" {
		cmd.Dir = cwd
	}

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	exitCode := 0
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return nil, fmt.Errorf("failed to run command: %w", err)
		}
		exitCode = exitErr.ExitCode()
	}

	return ShellResult{
		Command:  cmdLine,
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}, nil
}
