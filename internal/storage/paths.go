package storage

import (
	"os"
	"path/filepath"
)

// PathManager resolves per-user data locations for local databases
type PathManager struct {
	dataDir string
}

// NewPathManager creates a path manager rooted at ~/.paycopilot
func NewPathManager() *PathManager {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return NewPathManagerAt(filepath.Join(homeDir, ".paycopilot"))
}

// NewPathManagerAt creates a path manager rooted at dir
func NewPathManagerAt(dir string) *PathManager {
	return &PathManager{dataDir: dir}
}

// GetDataDir returns the data directory, creating it if needed
func (pm *PathManager) GetDataDir() (string, error) {
	if err := os.MkdirAll(pm.dataDir, 0755); err != nil {
		return "", err
	}
	return pm.dataDir, nil
}

// GetChatDatabasePath returns the path of the local chat database
func (pm *PathManager) GetChatDatabasePath() (string, error) {
	dir, err := pm.GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "chats.db"), nil
}
