package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HORIZON_MODE", "")
	t.Setenv("JOB_RETRIES", "")
	cfg := Load()

	assert.Equal(t, "year_end", cfg.HorizonMode)
	assert.Equal(t, 24*time.Hour, cfg.ImminentWindow)
	assert.Equal(t, 5, cfg.JobRetries)
	assert.True(t, cfg.MeetingSkip)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("HORIZON_MODE", "rolling")
	t.Setenv("HORIZON_WINDOW", "720h")
	t.Setenv("JOB_RETRIES", "7")
	t.Setenv("MEETING_SKIP", "false")
	t.Setenv("IMMINENT_WINDOW", "soon")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()
	assert.True(t, cfg.Production())
	assert.Equal(t, "rolling", cfg.HorizonMode)
	assert.Equal(t, 720*time.Hour, cfg.HorizonWindow)
	assert.Equal(t, 7, cfg.JobRetries)
	assert.False(t, cfg.MeetingSkip)
	assert.Equal(t, 24*time.Hour, cfg.ImminentWindow, "invalid values fall back")
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}
