package server

import (
	"log/slog"
	"net/http"

	"github.com/maauso/genbridge-api/internal/auth"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
	// Files serves locally stored objects under /files/. Nil disables the route.
	Files http.Handler
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// Generation routes require a session; health, the model catalog and
// stored files do not.
func NewRouter(h *Handlers, authn auth.Authenticator, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()
	protected := RequireAuth(authn, logger)

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /api/ai/video-models", h.VideoModels)

	mux.Handle("POST /api/upload/image", protected(http.HandlerFunc(h.UploadImage)))
	mux.Handle("POST /api/ai/image-to-image", protected(http.HandlerFunc(h.ImageToImage)))
	mux.Handle("POST /api/ai/evolink/image-to-image", protected(http.HandlerFunc(h.SubmitImageToImage)))
	mux.Handle("POST /api/ai/text-to-image", protected(http.HandlerFunc(h.TextToImage)))
	mux.Handle("POST /api/ai/video-generate", protected(http.HandlerFunc(h.GenerateVideo)))
	mux.Handle("POST /api/ai/video-generate/create", protected(http.HandlerFunc(h.CreateVideo)))
	mux.Handle("GET /api/ai/video-generate/task-status", protected(http.HandlerFunc(h.TaskStatus)))

	if cfg.Files != nil {
		mux.Handle("GET /files/", http.StripPrefix("/files/", cfg.Files))
	}

	chain := ChainMiddleware(
		RequestIDMiddleware,
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
