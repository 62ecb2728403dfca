package config

import (
	"path/filepath"
)

const (
	DefaultDataDir = ".kanflow"
	BoardsDir      = "boards"
	ItemsDir       = "items"
	ConfigFileName = "config.toml"
	BoardFileName  = "board.toml"
	ItemFileSuffix = ".json"
	DefaultPort    = 5260
)

// Paths provides path resolution for kanflow data files.
type Paths struct {
	projectRoot string
}

// NewPaths creates a new Paths resolver for the given project.
func NewPaths(projectRoot string) *Paths {
	return &Paths{projectRoot: projectRoot}
}

// ProjectRoot returns the directory holding the data directory.
func (p *Paths) ProjectRoot() string {
	return p.projectRoot
}

// DataRoot returns the root directory for kanflow data.
func (p *Paths) DataRoot() string {
	return filepath.Join(p.projectRoot, DefaultDataDir)
}

// BoardsRoot returns the boards directory.
func (p *Paths) BoardsRoot() string {
	return filepath.Join(p.DataRoot(), BoardsDir)
}

// BoardDir returns the directory for a specific board.
func (p *Paths) BoardDir(boardID string) string {
	return filepath.Join(p.BoardsRoot(), boardID)
}

// BoardFilePath returns the group list file for a board.
func (p *Paths) BoardFilePath(boardID string) string {
	return filepath.Join(p.BoardDir(boardID), BoardFileName)
}

// ItemsDir returns the items directory for a board.
func (p *Paths) ItemsDir(boardID string) string {
	return filepath.Join(p.BoardDir(boardID), ItemsDir)
}

// ItemPath returns the file path for a specific item.
func (p *Paths) ItemPath(boardID, itemID string) string {
	return filepath.Join(p.ItemsDir(boardID), itemID+ItemFileSuffix)
}

// ProjectConfigPath returns the path to the project config file.
func (p *Paths) ProjectConfigPath() string {
	return filepath.Join(p.DataRoot(), ConfigFileName)
}
