package server

import (
	"log/slog"
	"net/http"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	// Register routes with method-based patterns (Go 1.22+)
	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("GET /chapters", h.ListChapters)
	mux.HandleFunc("GET /chapters/{id}/verses", h.ListVerses)

	mux.HandleFunc("POST /segments", h.CreateSegment)

	mux.HandleFunc("POST /downloads", h.CreateDownload)
	mux.HandleFunc("GET /downloads", h.ListDownloads)
	mux.HandleFunc("GET /downloads/{id}", h.GetDownload)
	mux.HandleFunc("DELETE /downloads/{id}", h.CancelDownload)

	mux.HandleFunc("GET /cache", h.GetCache)
	mux.HandleFunc("DELETE /cache", h.ClearCache)
	mux.HandleFunc("GET /cache/groups/{id}", h.GetCachedGroup)
	mux.HandleFunc("DELETE /cache/groups/{id}", h.DeleteCachedGroup)

	// Apply middleware chain
	chain := ChainMiddleware(
		RequestIDMiddleware(),
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
