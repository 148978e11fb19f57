package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, StoreFile, cfg.SessionStore)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 5*time.Second, cfg.LogoutCountdown)
	assert.Equal(t, "SUPPRIMER", cfg.DeleteConfirmation)
	assert.Equal(t, uint(3), cfg.DeliveryAttempts)
	assert.Equal(t, 168*time.Hour, cfg.Log.MaxAge)

	lc := cfg.Lifecycle()
	assert.Equal(t, cfg.StatusPollInterval, lc.PollInterval)
	assert.Equal(t, "SUPPRIMER", lc.DeletePhrase)
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("SESSION_STORE", "redis")
	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://u@db/app")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_DEV", "true")
	t.Setenv("REVIEW_WINDOW", "48h")
	t.Setenv("DELIVERY_ATTEMPTS", "5")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, StoreRedis, cfg.SessionStore)
	assert.Equal(t, "cache:6380", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://u@db/app", cfg.Database.DSN)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Dev)
	assert.Equal(t, 48*time.Hour, cfg.ReviewWindow)
	assert.Equal(t, uint(5), cfg.DeliveryAttempts)
}

func TestParseRejectsUnknownStore(t *testing.T) {
	t.Setenv("SESSION_STORE", "s3")
	_, err := Parse()
	require.Error(t, err)
}

func TestParseRejectsBadDuration(t *testing.T) {
	t.Setenv("API_TIMEOUT", "soon")
	_, err := Parse()
	require.Error(t, err)
}
