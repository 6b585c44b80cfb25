package tools

import "time"

// ShellResult is the result of running a shell command.
type ShellResult struct {
	// Command is the command line that was executed.
	Command string `json:"command"`

	// ExitCode is the command's exit code.
	ExitCode int `json:"exit_code"`

	// Stdout is the captured standard output.
	Stdout string `json:"stdout,omitempty"`

	// Stderr is the captured standard error.
	Stderr string `json:"stderr,omitempty"`

	// Duration is how long the command ran.
	Duration time.Duration `json:"duration"`
}

// PatchResult is the result of applying a patch to the workspace.
type PatchResult struct {
	// Path is the file the patch targeted.
	Path string `json:"path"`

	// Applied is true when every hunk applied cleanly.
	Applied bool `json:"applied"`

	// RejectedHunks counts hunks that failed to apply.
	RejectedHunks int `json:"rejected_hunks,omitempty"`

	// Message is a human-readable summary.
	Message string `json:"message,omitempty"`
}

// TaskCompletion is the value the runner synthesizes after awaiting a
// process-task handle, so the orchestrator never sees a bare handle.
type TaskCompletion struct {
	// TaskID is the completed process task.
	TaskID string `json:"task_id"`

	// ExitCode is the process exit code (-1 for spawn failure).
	ExitCode int `json:"exit_code"`

	// Duration is how long the task ran.
	Duration time.Duration `json:"duration"`
}
