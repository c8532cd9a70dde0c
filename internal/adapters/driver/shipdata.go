package driver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// shipDirs holds the host paths mounted into a ship container.
type shipDirs struct {
	Home     string
	Metadata string
}

// expandDataDir resolves a leading "~" in the configured data directory.
func expandDataDir(dataDir string) (string, error) {
	if dataDir == "~" || strings.HasPrefix(dataDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(dataDir, "~")), nil
	}
	return dataDir, nil
}

// ensureShipDirs creates the per-ship home and metadata directories. They are
// chmod 0777 so the container can manage users and files regardless of the
// uid it runs as.
func ensureShipDirs(dataDir, shipID string) (*shipDirs, error) {
	root, err := expandDataDir(dataDir)
	if err != nil {
		return nil, err
	}

	dirs := &shipDirs{
		Home:     filepath.Join(root, shipID, "home"),
		Metadata: filepath.Join(root, shipID, "metadata"),
	}

	for _, dir := range []string{dirs.Home, dirs.Metadata} {
		if err := os.MkdirAll(dir, 0o777); err != nil {
			return nil, fmt.Errorf("failed to create ship directory %s: %w", dir, err)
		}
		if err := os.Chmod(dir, 0o777); err != nil {
			return nil, fmt.Errorf("failed to set permissions on %s: %w", dir, err)
		}
	}
	return dirs, nil
}

// shipDataExists reports whether both per-ship directories survive on disk.
func shipDataExists(dataDir, shipID string) bool {
	root, err := expandDataDir(dataDir)
	if err != nil {
		return false
	}
	for _, dir := range []string{
		filepath.Join(root, shipID, "home"),
		filepath.Join(root, shipID, "metadata"),
	} {
		if _, err := os.Stat(dir); err != nil {
			return false
		}
	}
	return true
}
