package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/docreg/internal/models"
)

// RouterOption configures NewRouter.
type RouterOption func(*routerConfig)

type routerConfig struct {
	authEnabled bool
	token       string
	events      http.Handler
	mirror      Mirror
	exts        models.Extensions
}

// WithAuth enables Bearer token auth on every API route.
func WithAuth(enabled bool, token string) RouterOption {
	return func(c *routerConfig) {
		c.authEnabled = enabled
		c.token = token
	}
}

// WithEvents mounts an SSE handler at GET /events inside the auth group.
func WithEvents(h http.Handler) RouterOption {
	return func(c *routerConfig) { c.events = h }
}

// WithMirror enables source=index on /search, /backlinks and /diagnostics.
func WithMirror(m Mirror) RouterOption {
	return func(c *routerConfig) { c.mirror = m }
}

// WithExtensions sets the suffixes stripped from document paths in URLs.
func WithExtensions(exts models.Extensions) RouterOption {
	return func(c *routerConfig) { c.exts = exts }
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(reg Registry, opts ...RouterOption) chi.Router {
	cfg := routerConfig{exts: models.DefaultExtensions}
	for _, opt := range opts {
		opt(&cfg)
	}
	h := NewHandler(reg, cfg.mirror, cfg.exts)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(cfg.authEnabled, cfg.token))

	// Documents.
	r.Get("/documents", h.ListDocuments)
	r.Get("/documents/*", h.GetDocument)

	// Graph traversal.
	r.Get("/closure/*", h.Closure)
	r.Get("/backlinks/*", h.Backlinks)

	// Search.
	r.Get("/search", h.Search)

	// Registry state.
	r.Get("/diagnostics", h.Diagnostics)
	r.Get("/status", h.Status)
	r.Post("/refresh", h.Refresh)

	// SSE endpoint (protected by same auth middleware).
	if cfg.events != nil {
		r.Get("/events", cfg.events.ServeHTTP)
	}

	return r
}
