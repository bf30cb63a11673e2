// Affinity - Recommendation & Insights Scoring Engine
// Copyright 2026 Meshkit Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meshkit/affinity

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config failed validation: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"empty entity database path", func(c *Config) { c.EntitySource.DatabasePath = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"zero extractor timeout", func(c *Config) { c.Engine.ExtractorTimeout = 0 }},
		{"negative threads", func(c *Config) { c.Database.Threads = -1 }},
		{"max limit below default limit", func(c *Config) { c.Engine.MaxLimit = c.Engine.DefaultLimit - 1 }},
		{"breaker ratio above one", func(c *Config) { c.EntitySource.BreakerFailureRatio = 1.5 }},
		{"zero warmer interval", func(c *Config) { c.Warmer.Interval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted invalid config")
			}
		})
	}
}

func TestValidateCrossFieldRules(t *testing.T) {
	cfg := defaultConfig()
	cfg.Engine.InsightTTL = cfg.Engine.RecommendationTTL - time.Second
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted insight_ttl below recommendation_ttl")
	}

	cfg = defaultConfig()
	cfg.Tracker.Period = cfg.Tracker.Interval - time.Minute
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted tracker period below interval")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Engine.DefaultLimit != 20 {
		t.Errorf("default limit = %d, want 20", cfg.Engine.DefaultLimit)
	}
	if cfg.Cache.MaxEntries != 10000 {
		t.Errorf("cache max entries = %d, want 10000", cfg.Cache.MaxEntries)
	}
	if cfg.Warmer.Enabled {
		t.Error("warmer enabled by default")
	}
}

func TestLoadConfigFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
logging:
  level: debug
engine:
  max_candidates: 50
tracker:
  run_on_startup: true
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Engine.MaxCandidates != 50 {
		t.Errorf("max candidates = %d, want 50", cfg.Engine.MaxCandidates)
	}
	if !cfg.Tracker.RunOnStartup {
		t.Error("run_on_startup not applied from file")
	}
	// Untouched keys keep their defaults.
	if cfg.Engine.DefaultLimit != 20 {
		t.Errorf("default limit = %d, want 20", cfg.Engine.DefaultLimit)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("AFFINITY_LOGGING_LEVEL", "warn")
	t.Setenv("AFFINITY_VERSION_STORE_PATH", "/tmp/versions")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("level = %q, want warn from env", cfg.Logging.Level)
	}
	if cfg.VersionStore.Path != "/tmp/versions" {
		t.Errorf("version store path = %q, want /tmp/versions", cfg.VersionStore.Path)
	}
}

func TestLoadRejectsInvalidEnvValue(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AFFINITY_LOGGING_LEVEL", "shout")

	if _, err := Load(); err == nil {
		t.Error("Load accepted invalid log level from env")
	}
}

func TestEnvTransform(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"AFFINITY_LOGGING_LEVEL", "logging.level"},
		{"AFFINITY_ENGINE_MAX_CANDIDATES", "engine.max_candidates"},
		{"AFFINITY_VERSION_STORE_PATH", "version_store.path"},
		{"AFFINITY_ENTITY_SOURCE_DATABASE_PATH", "entity_source.database_path"},
		{"AFFINITY_WARMER_MAX_REQUESTERS", "warmer.max_requesters"},
	}
	for _, tt := range tests {
		if got := envTransformFunc(tt.in); got != tt.want {
			t.Errorf("envTransformFunc(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
