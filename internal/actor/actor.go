// Package actor resolves who is moving things on a board.
package actor

import (
	"context"
	"fmt"
	"os"
	"strings"

	kanerr "github.com/amterp/kanflow/internal/errors"
)

// Header carries a request-scoped actor over HTTP.
const Header = "X-Kanflow-Actor"

// EnvVar overrides every other identity source.
const EnvVar = "KANFLOW_USER"

// NameSource looks up a configured user name, typically git's user.name.
type NameSource interface {
	UserName(ctx context.Context) (string, error)
}

type ctxKey struct{}

// WithActor returns a context carrying a request-scoped actor. It wins over
// every other source.
func WithActor(ctx context.Context, name string) context.Context {
	name = strings.TrimSpace(name)
	if name == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, name)
}

// FromContext returns the request-scoped actor, if any.
func FromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(ctxKey{}).(string)
	return name, ok && name != ""
}

// Provider resolves the current actor using the fallback chain:
// 1. a request-scoped actor on the context
// 2. $KANFLOW_USER
// 3. git config user.name (skipped when git is unavailable)
// 4. $USER
type Provider struct {
	names  NameSource
	getenv func(string) string
}

// NewProvider creates a provider. names may be nil.
func NewProvider(names NameSource) *Provider {
	return &Provider{names: names, getenv: os.Getenv}
}

// Current returns the acting user or an error wrapping ErrUnauthenticated.
func (p *Provider) Current(ctx context.Context) (string, error) {
	if name, ok := FromContext(ctx); ok {
		return name, nil
	}
	if user := p.getenv(EnvVar); user != "" {
		return user, nil
	}
	if p.names != nil {
		if name, err := p.names.UserName(ctx); err == nil && name != "" {
			return name, nil
		}
	}
	if user := p.getenv("USER"); user != "" {
		return user, nil
	}
	return "", fmt.Errorf("cannot determine actor: set $%s, configure 'git config user.name', or set $USER: %w",
		EnvVar, kanerr.ErrUnauthenticated)
}

// Static always returns the same actor. Used by tests and the memory demo.
type Static string

func (s Static) Current(ctx context.Context) (string, error) {
	if name, ok := FromContext(ctx); ok {
		return name, nil
	}
	if s == "" {
		return "", kanerr.ErrUnauthenticated
	}
	return string(s), nil
}
