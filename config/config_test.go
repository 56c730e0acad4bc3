package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 72, cfg.RetentionHours)
	assert.Equal(t, 24, cfg.AbandonAfterHours)
	assert.Equal(t, 30, cfg.CheckoutDropMinutes)
	assert.Equal(t, 30, cfg.RealtimeWindowMinutes)
	assert.Equal(t, 30*time.Minute, cfg.CheckoutDrop())
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("RETENTION_HOURS", "48")
	t.Setenv("REALTIME_WINDOW_MINUTES", "5")
	t.Setenv("SWEEP_INTERVAL", "1m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 48, cfg.RetentionHours)
	assert.Equal(t, 5, cfg.RealtimeWindowMinutes)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
}

func TestValidate(t *testing.T) {
	t.Setenv("STORE_BACKEND", "clickhouse")
	t.Setenv("CLICKHOUSE_HOST", "")
	_, err := Load()
	assert.ErrorContains(t, err, "CLICKHOUSE_HOST")

	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("RETENTION_HOURS", "0")
	_, err = Load()
	assert.ErrorContains(t, err, "RETENTION_HOURS")

	t.Setenv("RETENTION_HOURS", "72")
	t.Setenv("STORE_BACKEND", "sqlite")
	_, err = Load()
	assert.ErrorContains(t, err, "unsupported STORE_BACKEND")
}
