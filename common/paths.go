package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// GetChatrelayStateHome returns a directory path for storing user-specific
// chatrelay state data (logs, etc), creating it if needed. Can be overridden
// by setting the CHATRELAY_STATE_HOME environment variable.
func GetChatrelayStateHome() (string, error) {
	stateDir := os.Getenv("CHATRELAY_STATE_HOME")
	if stateDir != "" {
		err := os.MkdirAll(stateDir, 0755)
		if err != nil {
			return "", fmt.Errorf("failed to create chatrelay state directory from CHATRELAY_STATE_HOME: %w", err)
		}
		return stateDir, nil
	}

	stateDir = filepath.Join(xdg.StateHome, "chatrelay")
	err := os.MkdirAll(stateDir, 0755)
	if err != nil {
		return "", fmt.Errorf("failed to create chatrelay state directory: %w", err)
	}
	return stateDir, nil
}

// GetDefaultConfigPath returns the default path for the chatrelay config file.
func GetDefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "chatrelay", "config.yaml")
}
