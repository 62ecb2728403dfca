package model

// Backend names accepted in ProjectConfig.Backend.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// ProjectConfig is the project-level configuration.
// Stored at .kanflow/config.toml
// Schema changes require a version bump; see internal/version/version.go.
type ProjectConfig struct {
	Schema       string `toml:"kanflow_schema"`
	Name         string `toml:"name"`
	Backend      string `toml:"backend"`
	DatabaseURL  string `toml:"database_url,omitempty"`
	RedisURL     string `toml:"redis_url,omitempty"`
	Port         int    `toml:"port,omitempty"`
	AggregateTTL string `toml:"aggregate_ttl,omitempty"` // Go duration, e.g. "5m"
	DedupeTTL    string `toml:"dedupe_ttl,omitempty"`
	Celebrate    *bool  `toml:"celebrate,omitempty"` // nil = enabled
	DefaultBoard string `toml:"default_board,omitempty"`

	Hooks []CompletionHook `toml:"on_complete,omitempty"`
}

// CompletionHook runs a command when an item is dropped into a completion
// group. The command receives the item ID, board ID and group ID as
// arguments.
type CompletionHook struct {
	Name    string      `toml:"name"`
	Command string      `toml:"command"`
	Kinds   []GroupKind `toml:"kinds,omitempty"`   // Empty matches every completion kind
	Timeout int         `toml:"timeout,omitempty"` // Seconds, 0 = default
}

// Matches reports whether the hook fires for a drop into a group of kind.
func (h CompletionHook) Matches(kind GroupKind) bool {
	if !kind.IsCompletion() {
		return false
	}
	if len(h.Kinds) == 0 {
		return true
	}
	for _, k := range h.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// CelebrateEnabled reports whether completion celebrations are on.
func (c *ProjectConfig) CelebrateEnabled() bool {
	return c.Celebrate == nil || *c.Celebrate
}
