package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Indexer, cfg.Indexer)
	assert.Equal(t, "problems_v2", cfg.VectorIndex.Collection)
	assert.Equal(t, "problems", cfg.VectorIndex.PayloadCollection())
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
  rateLimit: 30
indexer:
  workers: 3
  baseDelay: 500ms
vectorIndex:
  type: memory
  sourceCollection: ""
`), 0o600))
	t.Setenv("PS_INDEXER_WORKERS", "6")
	t.Setenv("PS_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("PS_SERVER_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 30, cfg.Server.RateLimit)
	assert.Equal(t, time.Minute, cfg.Server.RateWindow)
	assert.Equal(t, 6, cfg.Indexer.Workers)
	assert.Equal(t, 500*time.Millisecond, cfg.Indexer.BaseDelay)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "memory", cfg.VectorIndex.Type)
	assert.Equal(t, cfg.VectorIndex.Collection, cfg.VectorIndex.PayloadCollection())
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Indexer.UpsertBatchSize = 0
	cfg.Indexer.Workers = 0
	cfg.Server.RateLimit = 5
	cfg.Server.RateWindow = 0
	cfg.Search.SharedTimeout = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsertBatchSize")
	assert.Contains(t, err.Error(), "workers")
	assert.Contains(t, err.Error(), "rateWindow")
	assert.Contains(t, err.Error(), "sharedTimeout")
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("indexer: ["), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestDevelopmentConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "development.yaml"))
	require.NoError(t, err)
	assert.True(t, cfg.Search.ResultCache)
	assert.Equal(t, []string{"problem_name", "problem_link", "platform"}, cfg.Search.PayloadFields)
	assert.Equal(t, 10*time.Second, cfg.Search.SharedTimeout)
}
