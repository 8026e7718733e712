package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/tendant/simple-video/pkg/simplevideo"
	fsstorage "github.com/tendant/simple-video/pkg/simplevideo/storage/fs"
)

// RouterConfig collects what Register needs to mount the API
type RouterConfig struct {
	Service simplevideo.Service
	Owners  *OwnerResolver
	Logger  *slog.Logger
	// Files is mounted when the service stores objects on the local filesystem
	Files *fsstorage.Backend
	// WebhookAuth guards the generator callback routes, e.g. an API key check
	WebhookAuth []func(http.Handler) http.Handler
	// WebhookSigningSecret enables body signature checks on callbacks
	WebhookSigningSecret string
	CORSAllowedOrigins   []string
	// MaxUploadBytes caps signed PUTs to Files; zero means DefaultMaxUploadBytes
	MaxUploadBytes int64
}

// Register mounts the video, webhook and file routes on r
func Register(r chi.Router, cfg RouterConfig) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))

	r.Group(func(r chi.Router) {
		if len(cfg.CORSAllowedOrigins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins:   cfg.CORSAllowedOrigins,
				AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
				AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
				ExposedHeaders:   []string{"X-Request-ID"},
				AllowCredentials: false,
				MaxAge:           300,
			}))
		}
		r.Mount("/videos", NewVideoHandler(cfg.Service, cfg.Owners, logger).Routes())
	})

	r.Group(func(r chi.Router) {
		for _, mw := range cfg.WebhookAuth {
			r.Use(mw)
		}
		r.Use(WebhookSignatureMiddleware(cfg.WebhookSigningSecret))
		r.Mount("/webhooks", NewWebhookHandler(cfg.Service, logger).Routes())
	})

	if cfg.Files != nil {
		NewFilesHandler(cfg.Files, logger, WithMaxUploadBytes(cfg.MaxUploadBytes)).Mount(r)
	}
}
