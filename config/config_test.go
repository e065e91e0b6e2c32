package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "STORE_DRIVER", "REDIS_ADDR", "KAFKA_BROKERS", "IDEMPOTENCY_TTL_SECONDS", "REQUEST_TIMEOUT_SECONDS"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, StoreDriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 24*time.Hour, cfg.Redis.IdempotencyTTL)
	assert.Equal(t, 15*time.Second, cfg.Server.RequestTimeout)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("STORE_DRIVER", StoreDriverMemory)
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("IDEMPOTENCY_TTL_SECONDS", "60")
	t.Setenv("RUN_MIGRATIONS", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, StoreDriverMemory, cfg.Database.Driver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, time.Minute, cfg.Redis.IdempotencyTTL)
	assert.False(t, cfg.Database.RunMigrations)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	t.Run("unknown driver", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", "sqlite")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("non numeric ttl", func(t *testing.T) {
		t.Setenv("IDEMPOTENCY_TTL_SECONDS", "forever")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("zero ttl", func(t *testing.T) {
		t.Setenv("IDEMPOTENCY_TTL_SECONDS", "0")
		_, err := Load()
		assert.Error(t, err)
	})
}
