package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/amterp/kanflow/internal/config"
	"github.com/amterp/kanflow/internal/model"
)

// InitOptions configures a new project.
type InitOptions struct {
	Name        string
	Backend     string
	DatabaseURL string
	RedisURL    string
}

// RepoRootFinder locates the enclosing repository, typically via git.
type RepoRootFinder interface {
	RepoRoot(ctx context.Context) (string, error)
}

// InitService handles project initialization.
type InitService struct {
	repo RepoRootFinder
}

// NewInitService creates a new init service. repo may be nil.
func NewInitService(repo RepoRootFinder) *InitService {
	return &InitService{repo: repo}
}

// ProjectRoot picks where a new project lives: the enclosing git
// repository when there is one, otherwise dir.
func (s *InitService) ProjectRoot(ctx context.Context, dir string) string {
	if s.repo != nil {
		if root, err := s.repo.RepoRoot(ctx); err == nil && root != "" {
			return root
		}
	}
	return dir
}

// Initialize writes the project config under root. An existing config is
// left untouched and reported through the returned bool.
func (s *InitService) Initialize(root string, opts InitOptions) (paths *config.Paths, created bool, err error) {
	paths = config.NewPaths(root)

	if _, err := os.Stat(paths.ProjectConfigPath()); err == nil {
		return paths, false, nil
	}

	backend := opts.Backend
	if backend == "" {
		backend = model.BackendFile
	}
	name := opts.Name
	if name == "" {
		name = filepath.Base(root)
	}
	cfg := &model.ProjectConfig{
		Name:        name,
		Backend:     backend,
		DatabaseURL: opts.DatabaseURL,
		RedisURL:    opts.RedisURL,
	}
	if err := config.Resolve(cfg).Validate(); err != nil {
		return nil, false, err
	}

	if err := os.MkdirAll(paths.BoardsRoot(), 0755); err != nil {
		return nil, false, fmt.Errorf("failed to create directory: %w", err)
	}
	if err := config.SaveProject(paths, cfg); err != nil {
		return nil, false, err
	}
	return paths, true, nil
}
