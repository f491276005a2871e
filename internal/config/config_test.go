package config

import (
	"testing"
	"time"
)

func TestGetDefaults(t *testing.T) {
	cfg := GetDefaults()

	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d, want 8080", cfg.Server.Port)
	}
	if len(cfg.Detection.Detectors) != 1 || cfg.Detection.Detectors[0] != "all" {
		t.Errorf("default detectors = %v, want [all]", cfg.Detection.Detectors)
	}
	if cfg.Batch.BatchSize != 1000 || cfg.Batch.Workers != 4 {
		t.Errorf("default batch = %+v", cfg.Batch)
	}
	if cfg.Audit.Enabled || cfg.Cache.Enabled {
		t.Error("audit and cache must default to disabled")
	}
	if cfg.Cache.DefaultTTL != 24*time.Hour {
		t.Errorf("default cache TTL = %v", cfg.Cache.DefaultTTL)
	}
	if !cfg.Server.RateLimit.Enabled || cfg.Server.RateLimit.RequestsPerSec != 50 {
		t.Errorf("default rate limit = %+v", cfg.Server.RateLimit)
	}

	if err := validateConfig(cfg); err != nil {
		t.Errorf("defaults must validate, got %v", err)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }},
		{"zero batch size", func(c *Config) { c.Batch.BatchSize = 0 }},
		{"zero workers", func(c *Config) { c.Batch.Workers = 0 }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"unknown log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaults()
			tt.mutate(cfg)
			if err := validateConfig(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
