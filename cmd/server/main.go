package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/chi-demo/middleware"

	"github.com/tendant/simple-video/pkg/simplevideo"
	"github.com/tendant/simple-video/pkg/simplevideo/api"
	"github.com/tendant/simple-video/pkg/simplevideo/config"
	natsevents "github.com/tendant/simple-video/pkg/simplevideo/events/nats"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		slog.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var extra []simplevideo.Option
	var publisher *natsevents.Publisher
	natsConfig := natsevents.Config{
		URL:           cfg.NATSURL,
		Stream:        cfg.NATSStream,
		SubjectPrefix: cfg.NATSSubjectPrefix,
		Consumer:      cfg.NATSConsumer,
	}
	if cfg.NATSURL != "" {
		publisher, err = natsevents.NewPublisher(ctx, natsConfig, logger)
		if err != nil {
			slog.Error("Failed to connect event publisher", "err", err)
			os.Exit(1)
		}
		defer publisher.Close()
		extra = append(extra, simplevideo.WithEventSink(publisher))
	}

	rt, err := cfg.Build(ctx, logger, extra...)
	if err != nil {
		slog.Error("Failed to build service", "err", err)
		os.Exit(1)
	}
	defer rt.Close()

	if publisher != nil {
		consumer, err := natsevents.NewCallbackConsumer(natsConfig, logger)
		if err != nil {
			slog.Error("Failed to connect callback consumer", "err", err)
			os.Exit(1)
		}
		defer consumer.Close()
		if err := consumer.Subscribe(ctx, rt.Service); err != nil {
			slog.Error("Failed to subscribe to status callbacks", "err", err)
			os.Exit(1)
		}
	}

	var webhookAuth []func(http.Handler) http.Handler
	if cfg.WebhookAPIKeySHA256 != "" {
		apiKeyMiddleware, err := middleware.ApiKeyMiddleware(middleware.ApiKeyConfig{
			APIKeys: map[string]string{
				"generator": cfg.WebhookAPIKeySHA256,
			},
		})
		if err != nil {
			slog.Error("Failed initialize API Key middleware", "err", err)
			os.Exit(1)
		}
		webhookAuth = append(webhookAuth, apiKeyMiddleware)
	}

	server := app.DefaultApp()

	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	server.R.Group(func(r chi.Router) {
		api.Register(r, api.RouterConfig{
			Service:              rt.Service,
			Owners:               api.NewOwnerResolver(cfg.JWTSecret),
			Logger:               logger,
			Files:                rt.FS(),
			WebhookAuth:          webhookAuth,
			WebhookSigningSecret: cfg.WebhookSigningSecret,
			CORSAllowedOrigins:   cfg.CORSAllowedOrigins,
		})
	})

	slog.Info("Simple Video server starting",
		"env", cfg.Environment,
		"database", cfg.DatabaseType,
		"default_storage", cfg.DefaultStorageBackend,
		"storage_backends", len(cfg.StorageBackends),
		"events", publisher != nil,
	)
	server.Run()
}
