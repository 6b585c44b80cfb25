package config

// Workspace defaults
const (
	DefaultWorkspaceRoot = "."
	DefaultStateDir      = ".pilot/state"
	DefaultLogsDir       = ".pilot/logs"
)

// Loop defaults
const (
	DefaultMaxIterations  = 10
	DefaultMaxFixAttempts = 3
)

// Process defaults
const (
	DefaultShutdownGraceSeconds = 5
)

// DefaultAllowedTools lists the built-in tools registered by default.
func DefaultAllowedTools() []string {
	return []string{"shell", "start_process"}
}
