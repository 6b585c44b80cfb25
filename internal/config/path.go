package config

import (
	"fmt"
	"os"
	"path/filepath"
)

var (
	getEnv      = os.Getenv
	userHomeDir = os.UserHomeDir
)

// GlobalConfigPath returns the user-level config file location,
// $XDG_CONFIG_HOME/pilot/config.yaml, with the base falling back to
// ~/.config when the variable is unset.
func GlobalConfigPath() (string, error) {
	base := getEnv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := userHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "pilot", "config.yaml"), nil
}
