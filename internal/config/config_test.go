package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STUDYTRACK_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("OUTBOX_BATCH_SIZE", "")

	cfg := Load()

	require.Equal(t, ":8080", cfg.HTTPAddress)
	require.Equal(t, BackendLocal, cfg.StoreBackend)
	require.Equal(t, 25, cfg.OutboxBatchSize)
	require.Equal(t, []string{"study_activity_events", "study_lifecycle_events"}, cfg.ConsumerTopics)
	require.Empty(t, cfg.KafkaBrokers)
	require.False(t, cfg.PublishEvents())
}

func TestLoadReadsEnvironmentAndDotEnv(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("OUTBOX_BATCH_SIZE=50\nJWT_ISSUER=from-file\n"), 0o600))
	t.Setenv("STUDYTRACK_ENV_FILE", envFile)
	t.Cleanup(func() { _ = os.Unsetenv("OUTBOX_BATCH_SIZE") })
	t.Setenv("STORE_BACKEND", "Postgres")
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("OUTBOX_POLL_INTERVAL", "500ms")
	t.Setenv("DLQ_MAX_RETRIES", "not-a-number")
	t.Setenv("STUDYTRACK_TZ", "UTC")
	t.Setenv("JWT_ISSUER", "from-env")

	cfg := Load()

	require.Equal(t, BackendPostgres, cfg.StoreBackend)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	require.True(t, cfg.PublishEvents())
	require.Equal(t, 500*time.Millisecond, cfg.OutboxPollInterval)
	require.Equal(t, 5, cfg.DLQMaxRetries)
	require.Equal(t, 50, cfg.OutboxBatchSize)
	require.Equal(t, "from-env", cfg.JWTIssuer, "process environment wins over the env file")
	require.Equal(t, "UTC", cfg.TimeZone.String())
}

func TestValidate(t *testing.T) {
	valid := Config{StoreBackend: BackendLocal, LocalDBPath: "study.db", OutboxBatchSize: 1, OutboxPollInterval: time.Second}
	require.NoError(t, valid.Validate())

	remote := valid
	remote.StoreBackend = BackendPostgres
	require.ErrorContains(t, remote.Validate(), "JWT_SECRET is required")
	remote.JWTSecret = "secret"
	require.NoError(t, remote.Validate())

	broken := Config{StoreBackend: "dynamo"}
	err := broken.Validate()
	require.ErrorContains(t, err, `unknown STORE_BACKEND "dynamo"`)
	require.ErrorContains(t, err, "OUTBOX_BATCH_SIZE must be positive")
	require.ErrorContains(t, err, "OUTBOX_POLL_INTERVAL must be positive")
}
