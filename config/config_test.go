package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "127.0.0.1:7070", cfg.ListenAddr())
	assert.Equal(t, 30*time.Second, cfg.Tracking.Interval)
	assert.Equal(t, 10.0, cfg.Tracking.MinDistance)
	assert.Equal(t, "localhost:2947", cfg.Tracking.GpsdAddr)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("TRACKING_INTERVAL", "45s")
	t.Setenv("TRACKING_MIN_DISTANCE_M", "25")
	t.Setenv("RATE_LIMIT_WINDOW", "30")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 45*time.Second, cfg.Tracking.Interval)
	assert.Equal(t, 25.0, cfg.Tracking.MinDistance)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 30*time.Second, parseDuration("30s", time.Minute))
	assert.Equal(t, 45*time.Second, parseDuration("45", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("bogus", time.Minute))
}

func TestParseFloat(t *testing.T) {
	assert.Equal(t, 12.5, parseFloat("12.5", 10))
	assert.Equal(t, 10.0, parseFloat("bogus", 10))
}
