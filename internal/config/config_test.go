package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.NotEmpty(t, cfg.DeviceID)
	assert.NotEqual(t, cfg.DeviceID, Default().DeviceID, "each default gets its own device id")
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"empty device id":     func(c *Config) { c.DeviceID = "" },
		"colon in device id":  func(c *Config) { c.DeviceID = "a:b" },
		"zero chunk size":     func(c *Config) { c.ChunkSize = 0 },
		"zero send interval":  func(c *Config) { c.SendInterval = 0 },
		"negative delay":      func(c *Config) { c.ParcelDelay = -time.Second },
		"zero queue":          func(c *Config) { c.QueueLimit = 0 },
		"zero window":         func(c *Config) { c.ActivityWindow = 0 },
		"stale before active": func(c *Config) { c.StaleAfter = time.Second },
		"zero janitor":        func(c *Config) { c.JanitorInterval = 0 },
		"zero lock timeout":   func(c *Config) { c.LockTimeout = 0 },
		"nudge before active": func(c *Config) { c.NudgeAfter = time.Millisecond },
		"negative threshold":  func(c *Config) { c.GapRepeatThreshold = -1 },
		"total loss":          func(c *Config) { c.Loss = 1 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNudgeCanBeDisabled(t *testing.T) {
	cfg := Default()
	cfg.NudgeAfter = 0
	assert.NoError(t, cfg.Validate())
}
