package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com,https://b.example.com")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ROOM_IDLE_TIMEOUT", "30m")
	t.Setenv("SWEEP_INTERVAL", "1m")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 30*time.Minute, cfg.RoomIdleTimeout)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Port)
	assert.NotEmpty(t, cfg.AllowedOrigins)
	assert.Positive(t, cfg.RoomIdleTimeout)
	assert.Positive(t, cfg.SweepInterval)
	assert.Positive(t, cfg.ShutdownTimeout)
}

func TestLoadConfigInvalidDuration(t *testing.T) {
	t.Setenv("ROOM_IDLE_TIMEOUT", "not-a-duration")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestNewLoggerLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		logger, err := NewLogger(level, "json")
		require.NoError(t, err, "level %s", level)
		require.NotNil(t, logger)
	}

	_, err := NewLogger("shouty", "json")
	assert.Error(t, err)

	_, err = NewLogger("info", "xml")
	assert.Error(t, err)
}
