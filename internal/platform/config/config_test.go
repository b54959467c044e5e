package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(values map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Equal(t, "uploads", cfg.Storage.UploadDir)
	assert.Empty(t, cfg.Database.URL)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := applyEnv(&cfg, envFrom(map[string]string{
		"FORMVAULT_ADDR":        ":8081",
		"DATABASE_URL":          "postgres://localhost/formvault",
		"DATABASE_LOCK_TIMEOUT": "750ms",
		"KAFKA_BROKERS":         "a:9092, b:9092,,",
		"SUBMIT_RATE_LIMIT":     "3",
		"STATIC_DIR":            "",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.Server.Addr)
	assert.Equal(t, "postgres://localhost/formvault", cfg.Database.URL)
	assert.Equal(t, 750*time.Millisecond, cfg.Database.LockTimeout)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 3, cfg.RateLimit.SubmitLimit)
	assert.Empty(t, cfg.Server.StaticDir, "an empty STATIC_DIR turns static serving off")
}

func TestApplyEnvRejectsMalformedValues(t *testing.T) {
	cfg := Default()
	err := applyEnv(&cfg, envFrom(map[string]string{
		"DATABASE_TX_TIMEOUT": "soon",
		"OUTBOX_BATCH":        "many",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_TX_TIMEOUT")
	assert.Contains(t, err.Error(), "OUTBOX_BATCH")
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "formvault.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9000"
  thank_you_url: /done
database:
  lock_timeout: 2s
storage:
  upload_dir: /var/lib/formvault
kafka:
  brokers: [broker:9092]
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/done", cfg.Server.ThankYouURL)
	assert.Equal(t, 2*time.Second, cfg.Database.LockTimeout)
	assert.Equal(t, "/var/lib/formvault", cfg.Storage.UploadDir)
	assert.Equal(t, []string{"broker:9092"}, cfg.Kafka.Brokers)
	// untouched keys keep their defaults
	assert.Equal(t, int64(12<<20), cfg.Server.MaxUploadBytes)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Storage.UploadDir = ""
	cfg.Kafka.Brokers = []string{"broker:9092"}
	cfg.Kafka.Topic = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.upload_dir")
	assert.Contains(t, err.Error(), "kafka.topic")
}
