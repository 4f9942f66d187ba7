package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddress)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 2*time.Second, cfg.OutboxPollInterval)
	assert.Equal(t, 15*time.Minute, cfg.JWTAccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.JWTRefreshTTL)
	assert.Equal(t, StoragePostgres, cfg.StorageDriver)
	assert.Equal(t, RevocationPostgres, cfg.RevocationBackend)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("OUTBOX_BATCH_SIZE", "100")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("REVOCATION_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "redis.prod:6380")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Len(t, cfg.KafkaBrokers, 2)
	assert.Equal(t, 100, cfg.OutboxBatchSize)
	assert.Equal(t, StorageMemory, cfg.StorageDriver)
	assert.Equal(t, "redis.prod:6380", cfg.RedisAddr)
}

func TestLoadRejectsDevSecretOutsideDevelopment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load()
	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET must be set outside development")

	t.Setenv("JWT_SECRET", "a-real-secret")
	cfg, err = Load()
	require.NoError(t, err)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoadRejectsInvalidTTLs(t *testing.T) {
	t.Setenv("JWT_ACCESS_TTL", "2h")
	t.Setenv("JWT_REFRESH_TTL", "1h")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be shorter than")
}

func TestLoadRejectsPostgresRevocationWithMemoryStorage(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires STORAGE_DRIVER=postgres")
}

func TestLoadRejectsUnknownBackends(t *testing.T) {
	t.Setenv("REVOCATION_BACKEND", "etcd")
	t.Setenv("STORAGE_DRIVER", "sqlite")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown STORAGE_DRIVER "sqlite"`)
	assert.Contains(t, err.Error(), `unknown REVOCATION_BACKEND "etcd"`)
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	t.Setenv("OUTBOX_POLL_INTERVAL", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}
