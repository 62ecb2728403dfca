package discovery

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/amterp/kanflow/internal/config"
)

// FindProjectRoot walks up from cwd looking for a .kanflow directory.
// Returns "" if no project was found.
func FindProjectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return FindProjectRootFrom(cwd)
}

// FindProjectRootFrom finds the project root starting from a given directory.
func FindProjectRootFrom(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	for {
		info, err := os.Stat(filepath.Join(dir, config.DefaultDataDir))
		if err == nil && info.IsDir() {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root, no project found
			return "", nil
		}
		dir = parent
	}
}
