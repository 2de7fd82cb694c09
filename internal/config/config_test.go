package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/tickets.db")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, "/tmp/tickets.db", cfg.DB.SQLitePath)
	assert.Equal(t, 10*time.Minute, cfg.OfferTTL)
	assert.Equal(t, 10*time.Minute, cfg.PendingTTL)
	assert.Equal(t, 30*time.Second, cfg.OfferSweepInterval)
	assert.Equal(t, time.Hour, cfg.TxSweepInterval)
	assert.Equal(t, "ticketing.notifications", cfg.NotifyQueue)
	assert.Empty(t, cfg.RabbitURL)
	assert.True(t, cfg.MetricsEnabled)
	assert.False(t, cfg.IsProd())
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("APP_ENV", "prod")
	t.Setenv("DB_USER", "tickets")
	t.Setenv("DB_NAME", "ticketing")
	t.Setenv("OFFER_TTL", "90s")
	t.Setenv("PENDING_TTL", "1h")
	t.Setenv("METRICS_ENABLED", "off")
	t.Setenv("APP_BASE_URL", "https://tickets.example.com/")
	t.Setenv("SMTP_HOST", "smtp.example.com")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.True(t, cfg.IsProd())
	assert.Equal(t, "mysql", cfg.DB.Driver)
	assert.Equal(t, 90*time.Second, cfg.OfferTTL)
	assert.Equal(t, time.Hour, cfg.PendingTTL)
	assert.False(t, cfg.MetricsEnabled)
	assert.Equal(t, "https://tickets.example.com", cfg.BaseURL)
	assert.Equal(t, "smtp.example.com:587", cfg.SMTP.Addr())
}

func TestParseMissingRequired(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("DB_USER", "")
	t.Setenv("DB_NAME", "")

	_, err := Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "DB_USER")
	assert.Contains(t, err.Error(), "DB_NAME")
}

func TestParseRejectsUnknownDriver(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_DRIVER", "postgres")
	_, err := Parse()
	assert.ErrorContains(t, err, "postgres")
}

func TestLoadRateLimitConfigClampsTTL(t *testing.T) {
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "1m")
	t.Setenv("RATE_LIMIT_TTL", "10s")
	t.Setenv("RATE_LIMIT_BURST", "3")

	rl := LoadRateLimitConfig()
	assert.Equal(t, 3, rl.Capacity)
	assert.Equal(t, 5*time.Minute, rl.TTL)
	assert.True(t, rl.Enabled)
}

func TestLoadCacheConfig(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")
	cc := LoadCacheConfig()
	assert.True(t, cc.Methods["GET"])
	assert.True(t, cc.Methods["HEAD"])
	assert.Equal(t, 2*time.Second, cc.TTL)
}
