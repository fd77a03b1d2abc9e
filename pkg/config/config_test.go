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
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendDisk, cfg.Index.Backend)
	assert.Equal(t, 1000, cfg.Index.ResultLimit)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
index:
  backend: memory
  resultLimit: 50
  commitInterval: 5s
  excludeContent:
    - "**/node_modules/**"
logging:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	t.Setenv("VS_LOGGING_LEVEL", "warn")
	t.Setenv("VS_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Index.Backend)
	assert.Equal(t, 50, cfg.Index.ResultLimit)
	assert.Equal(t, 5*time.Second, cfg.Index.CommitInterval)
	assert.Equal(t, []string{"**/node_modules/**"}, cfg.Index.ExcludeContent)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	// untouched sections keep their defaults
	assert.Equal(t, 16<<20, int(cfg.Index.RAMBufferBytes))
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("VS_INDEX_BACKEND", "cassandra")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cassandra")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
