package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetAllyDataDir returns the directory holding credentials, logs and the
// user-level config. ALLY_DATA_DIR overrides the default ~/.ally.
func GetAllyDataDir() (string, error) {
	if dataDir := os.Getenv("ALLY_DATA_DIR"); dataDir != "" {
		return dataDir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("GetAllyDataDir: could not determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".ally"), nil
}

// GetCredentialsPath returns the file backing the durable token storage.
func GetCredentialsPath() (string, error) {
	dir, err := GetAllyDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "credentials.yaml"), nil
}
