package app

import (
	"context"
	"testing"

	"github.com/dunamismax/shrinkit/internal/bgremoval"
	"github.com/dunamismax/shrinkit/internal/config"
	"github.com/dunamismax/shrinkit/internal/storage"
	"github.com/dunamismax/shrinkit/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestOpenMemoryBackends(t *testing.T) {
	cfg := config.Config{
		Storage:   config.StorageConfig{Driver: "memory", OutputPrefix: "outputs"},
		Database:  config.DatabaseConfig{Driver: "memory"},
		Transform: config.TransformConfig{Resampler: "bilinear"},
		Remover:   config.RemoverConfig{Provider: "disabled"},
	}

	b, err := Open(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, b.Close()) })

	assert.IsType(t, &store.MemorySessionStore{}, b.Sessions)
	assert.IsType(t, &storage.MemoryClient{}, b.Objects)
	assert.NotNil(t, b.Processor)
	assert.NotNil(t, b.Webhook)
}

func TestOpenRejectsUnknownDrivers(t *testing.T) {
	_, err := Open(context.Background(), config.Config{
		Database: config.DatabaseConfig{Driver: "sqlite"},
	}, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite")
}

func TestNewRemoverFallsBackWithoutKey(t *testing.T) {
	logger := zaptest.NewLogger(t)

	assert.IsType(t, bgremoval.Disabled{}, NewRemover(config.RemoverConfig{Provider: "openai"}, logger))
	assert.IsType(t, bgremoval.Disabled{}, NewRemover(config.RemoverConfig{Provider: "disabled", APIKey: "sk"}, logger))
	assert.IsType(t, &bgremoval.OpenAI{}, NewRemover(config.RemoverConfig{Provider: "openai", APIKey: "sk-test"}, logger))
}
