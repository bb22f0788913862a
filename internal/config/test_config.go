package config

import (
	"path/filepath"
	"time"
)

// TestConfig returns a valid config for tests. Files live under dir, the
// display is in memory, the intro is off and API keys are filled in.
func TestConfig(dir string) *Config {
	cfg := defaultConfig()
	cfg.Display.Kind = "memory"
	cfg.Display.Intro.Enabled = false
	cfg.Display.RetryBackoff = 0
	cfg.Schedule.UserAgent = "signally-test/1.0"
	cfg.History = HistoryConfig{
		TextLog:    filepath.Join(dir, "display.txt"),
		HTMLLog:    filepath.Join(dir, "display.html"),
		IndexBatch: 8,
		RotateDays: 2,
		RotateHour: 2,
	}
	cfg.Storage = StorageConfig{
		Path:         filepath.Join(dir, "state.db"),
		Timeout:      time.Second,
		PersistState: true,
	}
	for i := range cfg.Providers {
		cfg.Providers[i].APIKey = "test-key"
		if cfg.Providers[i].Kind == KindOpenWeather {
			cfg.Providers[i].City = "Chicago"
		}
	}
	return cfg
}
