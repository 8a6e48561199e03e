package main

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"opd/opd-service/internal/cache"
	"opd/opd-service/internal/config"
	"opd/opd-service/internal/datasync"
	"opd/opd-service/internal/httpapi"
	"opd/opd-service/internal/opd"
	"opd/opd-service/internal/records"
	"opd/opd-service/internal/repository"
	"opd/opd-service/internal/telemetry"
	"opd/opd-service/internal/worker"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func runServer(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := telemetry.Setup(cfg.ServiceName, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown error")
		}
	}()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.store.Close(); err != nil {
			logger.Warn().Err(err).Msg("store close error")
		}
	}()

	svc := datasync.New(b.store, logger, datasync.Options{Broadcaster: b.broadcaster})
	go func() {
		if err := svc.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("sync listener stopped")
		}
	}()

	repos := repository.NewSet(svc)
	tokens := cache.New(svc, repos.Tokens, logger)
	tokens.Start(ctx)
	users := cache.New(svc, repos.Users, logger)
	users.Start(ctx)

	engine := opd.NewEngine(svc, repos, tokens, users, logger, opd.Options{Location: loc})
	recordService := records.NewService(svc, repos, users, logger, records.Options{Location: loc})

	if interval := cfg.NotifyInterval(); interval > 0 {
		notifier := worker.New(svc, repos, worker.Config{
			BatchSize: cfg.NotifyBatchSize,
			Providers: map[string]worker.Provider{
				"sms":   worker.NewProvider(cfg.NotifyProvider, "sms", cfg.NotifyWebhookURL, cfg.NotifyWebhookToken, logger),
				"email": worker.NewProvider(cfg.NotifyProvider, "email", cfg.NotifyWebhookURL, cfg.NotifyWebhookToken, logger),
			},
		}, logger)
		go worker.Start(ctx, interval, notifier)
	}

	auth := authenticator(cfg, logger)
	handler := httpapi.NewHandler(engine, recordService, logger)
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:    cfg.RateLimitPerMinute,
		IPBurst:        cfg.RateLimitBurst,
		ActorPerMinute: cfg.ActorRateLimitPerMinute,
		ActorBurst:     cfg.ActorRateLimitBurst,
	})

	mux := http.NewServeMux()
	mux.Handle("/", auth.Middleware(handler.Routes()))
	mux.Handle("/realtime/", httpapi.NewRealtimeHandler(svc, auth, logger))
	mux.Handle("/metrics", expvar.Handler())

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(httpapi.LoggingMiddleware(logger, limiter.Middleware(mux)), cfg.ServiceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Str("backend", cfg.StoreBackend).Msg("opd-service listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	return nil
}

// runMigrate applies backend migrations, then rewrites every collection still
// stored at an older schema version.
func runMigrate(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.store.Close()

	svc := datasync.New(b.store, logger, datasync.Options{Broadcaster: b.broadcaster})
	return rewriteCollections(ctx, svc, logger)
}

func rewriteCollections(ctx context.Context, svc *datasync.Service, logger zerolog.Logger) error {
	for _, key := range repository.Keys() {
		rewritten, err := svc.Rewrite(ctx, key)
		if err != nil {
			return err
		}
		if rewritten {
			logger.Info().Str("key", key).Msg("collection rewritten")
		}
	}
	return nil
}
