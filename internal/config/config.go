// Package config loads Pilot configuration from pilot.yaml via viper.
package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds all Pilot configuration.
type Config struct {
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	Loop      LoopConfig      `mapstructure:"loop"`
	Process   ProcessConfig   `mapstructure:"process"`
	Planner   PlannerConfig   `mapstructure:"planner"`
	Tools     ToolsConfig     `mapstructure:"tools"`
}

// WorkspaceConfig holds workspace settings.
type WorkspaceConfig struct {
	Root                string `mapstructure:"root"`
	ProjectSubdirectory string `mapstructure:"project_subdirectory"`
	StateDir            string `mapstructure:"state_dir"`
	LogsDir             string `mapstructure:"logs_dir"`
}

// LoopConfig holds orchestration loop budgets.
type LoopConfig struct {
	// MaxIterations caps planning steps per session.
	MaxIterations int `mapstructure:"max_iterations"`

	// MaxFixAttempts caps fix attempts per failing tool call.
	MaxFixAttempts int `mapstructure:"max_fix_attempts"`
}

// ProcessConfig holds process task manager settings.
type ProcessConfig struct {
	// ShutdownGraceSeconds is the SIGTERM-to-SIGKILL grace period.
	ShutdownGraceSeconds int `mapstructure:"shutdown_grace_seconds"`
}

// PlannerConfig holds planner settings.
type PlannerConfig struct {
	// Script is the path to a scripted plan for replay runs.
	Script string `mapstructure:"script"`
}

// ToolsConfig holds tool registry settings.
type ToolsConfig struct {
	// Allowed lists the built-in tools to register.
	Allowed []string `mapstructure:"allowed"`
}

// LoadConfigWithFile loads configuration from a specific file if provided.
// Otherwise it reads pilot.yaml from the working directory, falling back to
// the global XDG config when the workspace has none.
func LoadConfigWithFile(workDir, configFile string) (*Config, error) {
	if configFile != "" {
		return LoadConfigFromPath(configFile)
	}
	if _, err := os.Stat(filepath.Join(workDir, "pilot.yaml")); err == nil {
		return LoadConfig(workDir)
	}
	if global, err := GlobalConfigPath(); err == nil {
		return LoadConfigFromPath(global)
	}
	return LoadConfig(workDir)
}

// LoadConfig loads configuration from pilot.yaml in the given directory.
// If no config file exists, defaults are returned.
func LoadConfig(dir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("pilot")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFromPath loads configuration from a specific file path.
// A missing file yields the defaults.
func LoadConfigFromPath(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if _, err := os.Stat(configPath); err != nil {
		if os.IsNotExist(err) {
			cfg := &Config{}
			if err := v.Unmarshal(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("workspace.root", DefaultWorkspaceRoot)
	v.SetDefault("workspace.project_subdirectory", "")
	v.SetDefault("workspace.state_dir", DefaultStateDir)
	v.SetDefault("workspace.logs_dir", DefaultLogsDir)

	v.SetDefault("loop.max_iterations", DefaultMaxIterations)
	v.SetDefault("loop.max_fix_attempts", DefaultMaxFixAttempts)

	v.SetDefault("process.shutdown_grace_seconds", DefaultShutdownGraceSeconds)

	v.SetDefault("planner.script", "")

	v.SetDefault("tools.allowed", DefaultAllowedTools())
}
