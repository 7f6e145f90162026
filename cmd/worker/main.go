package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dunamismax/shrinkit/internal/app"
	"github.com/dunamismax/shrinkit/internal/config"
	"github.com/dunamismax/shrinkit/internal/worker"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Worker.Embedded {
		return errors.New("worker.embedded is set; the api process runs the worker")
	}

	logger, closeLog, err := app.NewLogger(cfg.Log, "worker")
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	ctx := context.Background()
	shutdownTracing, err := app.SetupTracing(ctx, cfg.Tracing, "worker", logger)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
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

	srv, err := worker.NewServer(logger, cfg.Queue, cfg.Worker, worker.Dependencies{
		Sessions:  backends.Sessions,
		Processor: backends.Processor,
		Objects:   backends.Objects,
		Webhook:   backends.Webhook,
	})
	if err != nil {
		return err
	}

	stopMetrics := app.ServeMetrics(cfg.Worker.MetricsAddr, srv.MetricsHandler(), logger)
	defer stopMetrics()

	logger.Info("starting worker",
		zap.Int("concurrency", cfg.Worker.Concurrency),
		zap.Int("max_active_jobs", cfg.Worker.MaxActiveJobs),
		zap.String("queue", cfg.Queue.Name),
		zap.String("redis", cfg.Queue.RedisAddr),
	)
	return srv.Run()
}
