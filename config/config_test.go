package config_test

import (
	"testing"
	"time"

	"imgbatch/config"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	t.Run("loads default values correctly", func(t *testing.T) {
		t.Setenv("IMGBATCH_PORT", "")
		t.Setenv("IMGBATCH_MAX_WORKERS", "")
		t.Setenv("IMGBATCH_AUTH_ENABLE", "")
		t.Setenv("IMGBATCH_POLL_INTERVAL", "")
		t.Setenv("IMGBATCH_MAX_INPUT_SIZE", "")

		cfg, err := config.Load()
		assert.NoError(t, err)
		assert.NotNil(t, cfg)

		assert.Equal(t, "8080", cfg.Port)
		assert.Equal(t, 0, cfg.MaxWorkers)
		assert.Equal(t, false, cfg.AuthEnable)
		assert.Equal(t, 100*time.Millisecond, cfg.PollInterval)
		assert.Equal(t, 90, cfg.JPEGQuality)
		assert.Equal(t, int64(200*1024*1024), cfg.MaxInputSize)
		assert.Equal(t, "info", cfg.LogLevel)
	})

	t.Run("overrides defaults with environment variables", func(t *testing.T) {
		t.Setenv("IMGBATCH_PORT", "9999")
		t.Setenv("IMGBATCH_MAX_WORKERS", "8")
		t.Setenv("IMGBATCH_AUTH_ENABLE", "true")
		t.Setenv("IMGBATCH_AUTH_KEY", "newsecret")
		t.Setenv("IMGBATCH_POLL_INTERVAL", "250ms")
		t.Setenv("IMGBATCH_MAX_INPUT_SIZE", "50MB")
		t.Setenv("IMGBATCH_DEFAULT_OPTIONS", "quality=75 grayscale")

		cfg, err := config.Load()
		assert.NoError(t, err)
		assert.NotNil(t, cfg)

		assert.Equal(t, "9999", cfg.Port)
		assert.Equal(t, 8, cfg.MaxWorkers)
		assert.Equal(t, true, cfg.AuthEnable)
		assert.Equal(t, "newsecret", cfg.AuthKey)
		assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
		assert.Equal(t, int64(50*1024*1024), cfg.MaxInputSize)
		assert.Equal(t, "quality=75 grayscale", cfg.DefaultOptions)
	})
}
