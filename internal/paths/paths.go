// Package paths resolves workspace-relative locations: the hub-private
// directory, the database file, the writer lock, and server.json.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// HubDirName is the workspace-private directory the daemon owns.
const HubDirName = ".hearth"

// DBFileName is the embedded store's file name inside HubDirName.
const DBFileName = "hearth.db"

// ServerJSONName is the discovery file the daemon publishes.
const ServerJSONName = "server.json"

// ConfigFileName is the optional plugin/limits config at the workspace root.
const ConfigFileName = "hearth.json"

// FindWorkspaceRoot walks up from startPath looking for a directory
// containing HubDirName, the same way git ascends looking for .git/.
func FindWorkspaceRoot(startPath string) (string, error) {
	abs, err := filepath.Abs(startPath)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path: %w", err)
	}

	dir := abs
	for {
		info, err := os.Stat(filepath.Join(dir, HubDirName))
		if err == nil && info.IsDir() {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no %s/ directory found (searched from %s to /)", HubDirName, abs)
		}
		dir = parent
	}
}

// HubDir returns the hub-private directory for a workspace root.
func HubDir(root string) string {
	return filepath.Join(root, HubDirName)
}

// DBPath returns the embedded store path for a workspace root.
func DBPath(root string) string {
	return filepath.Join(HubDir(root), DBFileName)
}

// ServerJSONPath returns the server.json path for a workspace root.
func ServerJSONPath(root string) string {
	return filepath.Join(HubDir(root), ServerJSONName)
}

// LockPath returns the writer lock path for a workspace root.
func LockPath(root string) string {
	return filepath.Join(HubDir(root), "locks", "writer.lock")
}

// ConfigPath returns the optional workspace config file path.
func ConfigPath(root string) string {
	return filepath.Join(root, ConfigFileName)
}

// EnsureHubDir creates the hub-private directory tree (and its locks/
// subdirectory) if absent, mirroring a fresh workspace's first boot.
func EnsureHubDir(root string) error {
	if err := os.MkdirAll(HubDir(root), 0700); err != nil {
		return fmt.Errorf("create hub directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(HubDir(root), "locks"), 0700); err != nil {
		return fmt.Errorf("create locks directory: %w", err)
	}
	return nil
}
