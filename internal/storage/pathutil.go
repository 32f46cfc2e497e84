package storage

import (
	"os"
	"path/filepath"
	"strings"
)

const pidFileName = ".daemon.pid"

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// DefaultLogDir is ~/.chrome-debug/logs.
func DefaultLogDir() string {
	return ExpandHome("~/.chrome-debug/logs")
}

// DefaultPIDPath places the PID file next to the log directory, so
// ~/.chrome-debug/logs pairs with ~/.chrome-debug/.daemon.pid.
func DefaultPIDPath(logDir string) string {
	return filepath.Join(filepath.Dir(filepath.Clean(logDir)), pidFileName)
}

// ShortID returns the first 8 chars of a target or session ID for logs.
func ShortID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}
