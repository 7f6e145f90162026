package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/shrinkit/internal/api"
	"github.com/dunamismax/shrinkit/internal/app"
	"github.com/dunamismax/shrinkit/internal/config"
	"github.com/dunamismax/shrinkit/internal/queue"
	"github.com/dunamismax/shrinkit/internal/ratelimit"
	"github.com/dunamismax/shrinkit/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, closeLog, err := app.NewLogger(cfg.Log, "api")
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := app.SetupTracing(ctx, cfg.Tracing, "api", logger)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	backends, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := backends.Close(); err != nil {
			logger.Warn("backend close failed", zap.Error(err))
		}
	}()

	queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name, cfg.Queue.TaskTimeout)
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close failed", zap.Error(err))
		}
	}()

	opts := api.Options{
		ClientIDHeader:    cfg.API.ClientIDHeader,
		MaxUploadBytes:    cfg.API.MaxUploadBytes,
		DownloadURLExpiry: cfg.API.DownloadURLExpiry,
		Tracer:            otel.Tracer("shrinkit/api"),
	}
	if cfg.API.RateLimit.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		})
		defer func() { _ = redisClient.Close() }()

		limiter, err := ratelimit.NewRedisTokenBucket(redisClient, cfg.API.RateLimit.Requests, cfg.API.RateLimit.Window, ratelimit.DefaultKeyPrefix)
		if err != nil {
			return fmt.Errorf("create rate limiter: %w", err)
		}
		opts.RateLimiter = limiter
	}

	if cfg.Worker.Embedded {
		srv, err := worker.NewServer(logger, cfg.Queue, cfg.Worker, worker.Dependencies{
			Sessions:  backends.Sessions,
			Processor: backends.Processor,
			Objects:   backends.Objects,
			Webhook:   backends.Webhook,
		})
		if err != nil {
			return err
		}
		if err := srv.Start(); err != nil {
			return fmt.Errorf("start embedded worker: %w", err)
		}
		defer srv.Shutdown()
		stopMetrics := app.ServeMetrics(cfg.Worker.MetricsAddr, srv.MetricsHandler(), logger)
		defer stopMetrics()
		logger.Info("embedded worker started", zap.Int("concurrency", cfg.Worker.Concurrency))
	}

	server := api.NewServer(logger, queueClient, backends.Sessions, backends.Objects, opts)
	httpServer := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.API.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownGracePeriod)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	return nil
}
