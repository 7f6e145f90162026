package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvConfigFile, "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.API.Addr)
	assert.Equal(t, "shrinkit", cfg.Queue.Name)
	assert.Equal(t, 3*time.Minute, cfg.Queue.TaskTimeout)
	assert.Equal(t, "minio", cfg.Storage.Driver)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "bilinear", cfg.Transform.Resampler)
	assert.Equal(t, "openai", cfg.Remover.Provider)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.GreaterOrEqual(t, cfg.Worker.MaxActiveJobs, 1)
}

func TestLoadPrefixedAndLegacyEnv(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	t.Setenv("SHRINKIT_API_ADDR", ":9999")
	t.Setenv("SHRINKIT_REMOVER_TIMEOUT", "45s")
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("MINIO_BUCKET", "legacy-bucket")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.API.Addr)
	assert.Equal(t, 45*time.Second, cfg.Remover.Timeout)
	assert.Equal(t, "redis.internal:6380", cfg.Queue.RedisAddr)
	assert.Equal(t, "legacy-bucket", cfg.Storage.Bucket)
	assert.Equal(t, "sk-test", cfg.Remover.APIKey)
}

func TestPrefixedEnvWinsOverLegacy(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	t.Setenv("REDIS_ADDR", "legacy:6379")
	t.Setenv("SHRINKIT_QUEUE_REDIS_ADDR", "modern:6379")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "modern:6379", cfg.Queue.RedisAddr)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shrinkit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: memory
storage:
  driver: memory
worker:
  embedded: true
transform:
  resampler: lanczos
log:
  format: console
  level: debug
`), 0o600))
	t.Setenv(EnvConfigFile, path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.True(t, cfg.Worker.Embedded)
	assert.Equal(t, "lanczos", cfg.Transform.Resampler)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Setenv(EnvConfigFile, filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	assert.Error(t, err)
}

func TestValidateRejectsMemoryDriversWithoutEmbeddedWorker(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	t.Setenv("SHRINKIT_DATABASE_DRIVER", "memory")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker.embedded")
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Config{
		Storage:  StorageConfig{Driver: "ftp"},
		Database: DatabaseConfig{Driver: "sqlite"},
		Remover:  RemoverConfig{Provider: "magic"},
		Log:      LogConfig{Format: "xml"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"api.addr", "storage.driver", "database.driver", "remover.provider", "log.format"} {
		assert.Contains(t, err.Error(), want)
	}
}
