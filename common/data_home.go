package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// GetConductorDataHome returns a directory path for storing user-specific
// conductor data (the SQLite database and the embedded vector index live
// here). Directories are created according to the XDG spec if needed. Can be
// overridden by setting the CONDUCTOR_DATA_HOME environment variable.
func GetConductorDataHome() (string, error) {
	dataDir := os.Getenv("CONDUCTOR_DATA_HOME")
	if dataDir != "" {
		return dataDir, nil
	}

	dataDir = filepath.Join(xdg.DataHome, "conductor")
	err := os.MkdirAll(dataDir, 0755)
	if err != nil {
		return "", fmt.Errorf("failed to create conductor data directory: %w", err)
	}
	return dataDir, nil
}
