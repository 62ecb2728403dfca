package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/amterp/kanflow/internal/actor"
)

// WithRequestActor copies the acting user named by the request into its
// context. Browsers cannot set headers on websocket upgrades, so the
// "actor" query parameter is accepted as well.
func WithRequestActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if name := requestActor(r); name != "" {
			r = r.WithContext(actor.WithActor(r.Context(), name))
		}
		next.ServeHTTP(w, r)
	})
}

func requestActor(r *http.Request) string {
	if name := strings.TrimSpace(r.Header.Get(actor.Header)); name != "" {
		return name
	}
	return strings.TrimSpace(r.URL.Query().Get("actor"))
}

// detach returns a background context that keeps the request's actor.
// Websocket connections outlive the upgrade request.
func detach(r *http.Request) context.Context {
	ctx := context.Background()
	if name, ok := actor.FromContext(r.Context()); ok {
		ctx = actor.WithActor(ctx, name)
	}
	return ctx
}
