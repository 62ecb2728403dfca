package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/amterp/kanflow/internal/model"
	"github.com/amterp/kanflow/internal/util"
	"github.com/amterp/kanflow/internal/version"
)

const (
	DefaultAggregateTTL = 5 * time.Minute
	DefaultDedupeTTL    = 10 * time.Minute
)

// Settings is the effective runtime configuration: the project file with
// environment overrides applied and defaults filled in.
type Settings struct {
	Backend      string
	DatabaseURL  string
	RedisURL     string
	Port         int
	AggregateTTL time.Duration
	DedupeTTL    time.Duration
	Celebrate    bool
	DefaultBoard string
	Debug        bool
	Hooks        []model.CompletionHook
}

// Resolve applies KANFLOW_* environment overrides to a project config.
// A nil config yields pure defaults.
func Resolve(cfg *model.ProjectConfig) Settings {
	if cfg == nil {
		cfg = &model.ProjectConfig{}
	}
	backend := cfg.Backend
	if backend == "" {
		backend = model.BackendFile
	}
	port := cfg.Port
	if port == 0 {
		port = DefaultPort
	}
	return Settings{
		Backend:      getenv("KANFLOW_BACKEND", backend),
		DatabaseURL:  getenv("KANFLOW_DATABASE_URL", cfg.DatabaseURL),
		RedisURL:     getenv("KANFLOW_REDIS_URL", cfg.RedisURL),
		Port:         getenvInt("KANFLOW_PORT", port),
		AggregateTTL: util.ParseDuration(cfg.AggregateTTL, DefaultAggregateTTL),
		DedupeTTL:    util.ParseDuration(cfg.DedupeTTL, DefaultDedupeTTL),
		Celebrate:    cfg.CelebrateEnabled(),
		DefaultBoard: cfg.DefaultBoard,
		Debug:        getenvBool("KANFLOW_DEBUG", false),
		Hooks:        cfg.Hooks,
	}
}

// Validate reports settings that cannot produce a working backend.
func (s Settings) Validate() error {
	switch s.Backend {
	case model.BackendFile, model.BackendMemory:
		return nil
	case model.BackendPostgres:
		if s.DatabaseURL == "" {
			return fmt.Errorf("backend %q requires database_url or KANFLOW_DATABASE_URL", s.Backend)
		}
		return nil
	default:
		return fmt.Errorf("unknown backend %q (expected file, postgres or memory)", s.Backend)
	}
}

// LoadProject reads the project config from disk.
// Returns an empty config if the file doesn't exist.
func LoadProject(paths *Paths) (*model.ProjectConfig, error) {
	path := paths.ProjectConfigPath()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &model.ProjectConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read project config: %w", err)
	}

	var cfg model.ProjectConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid project config: %w", err)
	}
	if err := version.ProjectSchema.Check(path, cfg.Schema); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveProject writes the project config to disk, stamping the schema.
func SaveProject(paths *Paths, cfg *model.ProjectConfig) error {
	cfg.Schema = version.ProjectSchema.Current()

	if err := os.MkdirAll(paths.DataRoot(), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	f, err := os.Create(paths.ProjectConfigPath())
	if err != nil {
		return fmt.Errorf("failed to create project config: %w", err)
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
