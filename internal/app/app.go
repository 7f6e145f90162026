// Package app assembles the backends shared by the API and worker binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dunamismax/shrinkit/internal/bgremoval"
	"github.com/dunamismax/shrinkit/internal/config"
	"github.com/dunamismax/shrinkit/internal/logging"
	"github.com/dunamismax/shrinkit/internal/pipeline"
	"github.com/dunamismax/shrinkit/internal/storage"
	"github.com/dunamismax/shrinkit/internal/store"
	"github.com/dunamismax/shrinkit/internal/telemetry"
	"github.com/dunamismax/shrinkit/internal/transform"
	"github.com/dunamismax/shrinkit/internal/webhook"
	"go.uber.org/zap"
)

// Backends holds the long-lived dependencies of a process. Close releases
// them in reverse order of acquisition.
type Backends struct {
	Sessions  store.SessionStore
	Objects   storage.ObjectStore
	Processor *pipeline.Processor
	Webhook   *webhook.Client

	closers []func() error
}

func NewLogger(cfg config.LogConfig, service string) (*zap.Logger, func() error, error) {
	return logging.New(logging.Config{
		Level:      cfg.Level,
		Format:     cfg.Format,
		File:       cfg.File,
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAgeDays: cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}, service)
}

func SetupTracing(ctx context.Context, cfg config.TracingConfig, service string, logger *zap.Logger) (func(context.Context) error, error) {
	name := cfg.ServiceName
	if name == "" || name == "shrinkit" {
		name = "shrinkit-" + service
	}
	return telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  name,
		Exporter:     cfg.Exporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
		OTLPInsecure: cfg.OTLPInsecure,
		SampleRatio:  cfg.SampleRatio,
	}, logger)
}

func Open(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Backends, error) {
	b := &Backends{}

	sessions, err := openSessions(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	b.Sessions = sessions
	if closer, ok := sessions.(interface{ Close() error }); ok {
		b.closers = append(b.closers, closer.Close)
	}

	objects, err := openObjects(ctx, cfg.Storage, logger)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	b.Objects = objects

	engine, err := NewEngine(cfg.Transform)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	b.closers = append(b.closers, func() error {
		transform.Shutdown()
		return nil
	})

	remover := NewRemover(cfg.Remover, logger)
	processor, err := pipeline.NewProcessor(
		pipeline.ObjectStoreFetcher{Storage: objects},
		engine,
		remover,
		pipeline.ObjectStoreEmitter{Storage: objects, OutputPrefix: cfg.Storage.OutputPrefix},
	)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	b.Processor = processor

	b.Webhook = webhook.NewClient(webhook.Config{
		SigningSecret:  cfg.Webhook.SigningSecret,
		Timeout:        cfg.Webhook.Timeout,
		MaxAttempts:    cfg.Webhook.MaxAttempts,
		InitialBackoff: cfg.Webhook.InitialBackoff,
		MaxBackoff:     cfg.Webhook.MaxBackoff,
	}, logger)
	return b, nil
}

func (b *Backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

// NewEngine starts the image runtime and returns an engine for cfg.
// Callers must call transform.Shutdown when done.
func NewEngine(cfg config.TransformConfig) (transform.Engine, error) {
	if err := transform.Startup(); err != nil {
		return nil, fmt.Errorf("start image runtime: %w", err)
	}
	engine, err := transform.New(transform.Options{
		Resampler: cfg.Resampler,
		MaxPixels: int(cfg.MaxPixels),
	})
	if err != nil {
		transform.Shutdown()
		return nil, fmt.Errorf("create image engine: %w", err)
	}
	return engine, nil
}

// NewRemover returns the configured background remover. A missing API key
// downgrades to the disabled remover so plain resizes keep working.
func NewRemover(cfg config.RemoverConfig, logger *zap.Logger) bgremoval.Remover {
	if cfg.Provider != "openai" {
		return bgremoval.Disabled{}
	}
	remover, err := bgremoval.NewOpenAI(bgremoval.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Prompt:  cfg.Prompt,
		Size:    cfg.Size,
		Timeout: cfg.Timeout,
	}, logger)
	if err != nil {
		logger.Warn("background removal disabled", zap.Error(err))
		return bgremoval.Disabled{}
	}
	return remover
}

func openSessions(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (store.SessionStore, error) {
	switch cfg.Driver {
	case "memory":
		logger.Info("using in-memory session store")
		return store.NewMemorySessionStore(), nil
	case "postgres":
		sessions, err := store.NewPostgresSessionStore(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open session store: %w", err)
		}
		if err := sessions.EnsureSchema(ctx); err != nil {
			_ = sessions.Close()
			return nil, fmt.Errorf("migrate session store: %w", err)
		}
		return sessions, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func openObjects(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (storage.ObjectStore, error) {
	switch cfg.Driver {
	case "memory":
		logger.Info("using in-memory object storage")
		return storage.NewMemoryClient(), nil
	case "minio":
		client, err := storage.NewClient(storage.Config{
			Endpoint:       cfg.Endpoint,
			Access:         cfg.AccessKey,
			Secret:         cfg.SecretKey,
			Bucket:         cfg.Bucket,
			Region:         cfg.Region,
			UseSSL:         cfg.UseSSL,
			MaxObjectBytes: cfg.MaxObjectBytes,
		})
		if err != nil {
			return nil, err
		}
		if err := client.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("ensure bucket %s: %w", strings.TrimSpace(cfg.Bucket), err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}
