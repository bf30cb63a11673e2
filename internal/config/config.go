// Affinity - Recommendation & Insights Scoring Engine
// Copyright 2026 Meshkit Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meshkit/affinity

// Package config provides layered configuration loading for Affinity.
//
// Precedence (highest wins): environment variables > YAML config file >
// built-in defaults. Loading is backed by Koanf v2 and validated with
// go-playground/validator struct tags.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the scoring engine.
type Config struct {
	Logging      LoggingConfig      `koanf:"logging"`
	Database     DatabaseConfig     `koanf:"database"`
	VersionStore VersionStoreConfig `koanf:"version_store"`
	Engine       EngineConfig       `koanf:"engine"`
	Cache        CacheConfig        `koanf:"cache"`
	Tracker      TrackerConfig      `koanf:"tracker"`
	Warmer       WarmerConfig       `koanf:"warmer"`
	EntitySource EntitySourceConfig `koanf:"entity_source"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal panic disabled"`

	// Format is json or console.
	Format string `koanf:"format" validate:"oneof=json console"`

	// Caller includes caller file:line in log output.
	Caller bool `koanf:"caller"`
}

// DatabaseConfig controls the DuckDB recommendation/feedback store.
type DatabaseConfig struct {
	// Path is the DuckDB database file. ":memory:" for ephemeral use.
	Path string `koanf:"path" validate:"required"`

	// MaxMemory is the DuckDB memory limit (e.g. "1GB").
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB thread count. 0 uses runtime.NumCPU().
	Threads int `koanf:"threads" validate:"gte=0"`
}

// VersionStoreConfig controls the BadgerDB algorithm-version store.
type VersionStoreConfig struct {
	// Path is the Badger directory. Empty selects the in-memory store.
	Path string `koanf:"path"`
}

// EngineConfig controls recommendation computation.
type EngineConfig struct {
	// ExtractorTimeout bounds a single signal-extractor call.
	ExtractorTimeout time.Duration `koanf:"extractor_timeout" validate:"gt=0"`

	// ComputeTimeout bounds a full batch computation after cache miss.
	ComputeTimeout time.Duration `koanf:"compute_timeout" validate:"gt=0"`

	// MaxCandidates is the maximum candidates scored per request.
	MaxCandidates int `koanf:"max_candidates" validate:"gt=0"`

	// DefaultLimit is the default number of recommendations returned.
	DefaultLimit int `koanf:"default_limit" validate:"gt=0"`

	// MaxLimit is the maximum number of recommendations returned.
	MaxLimit int `koanf:"max_limit" validate:"gtefield=DefaultLimit"`

	// RecommendationTTL is the cache TTL for recommendation batches.
	RecommendationTTL time.Duration `koanf:"recommendation_ttl" validate:"gt=0"`

	// InsightTTL is the cache TTL for aggregate insight payloads.
	InsightTTL time.Duration `koanf:"insight_ttl" validate:"gt=0"`
}

// CacheConfig controls the insights cache.
type CacheConfig struct {
	// MaxEntries triggers an expired-entry sweep when reached on write.
	MaxEntries int `koanf:"max_entries" validate:"gt=0"`

	// JanitorInterval is how often the background sweep runs.
	JanitorInterval time.Duration `koanf:"janitor_interval" validate:"gt=0"`
}

// TrackerConfig controls the periodic performance aggregation job.
type TrackerConfig struct {
	// Interval is how often feedback is aggregated into snapshots.
	Interval time.Duration `koanf:"interval" validate:"gt=0"`

	// Period is the snapshot window length (e.g. 24h for daily snapshots).
	Period time.Duration `koanf:"period" validate:"gt=0"`

	// RunOnStartup triggers one aggregation pass when the service starts.
	RunOnStartup bool `koanf:"run_on_startup"`
}

// WarmerConfig controls the background cache warmer.
type WarmerConfig struct {
	// Enabled turns the warm pass on.
	Enabled bool `koanf:"enabled"`

	// Interval is how often the warm pass runs.
	Interval time.Duration `koanf:"interval" validate:"gt=0"`

	// Lookback selects requesters active within this trailing window.
	Lookback time.Duration `koanf:"lookback" validate:"gt=0"`

	// MaxRequesters caps how many requesters are warmed per pass.
	MaxRequesters int `koanf:"max_requesters" validate:"gt=0"`
}

// EntitySourceConfig controls access to the external entity data layer.
type EntitySourceConfig struct {
	// DatabasePath is the entity database file, opened read-only. The
	// external data layer owns its schema and writes.
	DatabasePath string `koanf:"database_path" validate:"required"`

	// RatePerSecond caps entity-source queries per second. 0 disables the limiter.
	RatePerSecond float64 `koanf:"rate_per_second" validate:"gte=0"`

	// RateBurst is the limiter burst size.
	RateBurst int `koanf:"rate_burst" validate:"gte=0"`

	// BreakerMinRequests is the minimum sample before the breaker can trip.
	BreakerMinRequests uint32 `koanf:"breaker_min_requests"`

	// BreakerFailureRatio is the failure ratio that opens the circuit.
	BreakerFailureRatio float64 `koanf:"breaker_failure_ratio" validate:"gte=0,lte=1"`

	// BreakerTimeout is how long the circuit stays open before half-open probes.
	BreakerTimeout time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
}

// defaultConfig returns a Config with production defaults.
// Defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Database: DatabaseConfig{
			Path:      "/data/affinity.duckdb",
			MaxMemory: "1GB",
			Threads:   0, // 0 = use runtime.NumCPU()
		},
		VersionStore: VersionStoreConfig{
			Path: "/data/versions",
		},
		Engine: EngineConfig{
			ExtractorTimeout:  200 * time.Millisecond,
			ComputeTimeout:    5 * time.Second,
			MaxCandidates:     200,
			DefaultLimit:      20,
			MaxLimit:          100,
			RecommendationTTL: 300 * time.Second,
			InsightTTL:        900 * time.Second,
		},
		Cache: CacheConfig{
			MaxEntries:      10000,
			JanitorInterval: 5 * time.Minute,
		},
		Tracker: TrackerConfig{
			Interval:     time.Hour,
			Period:       24 * time.Hour,
			RunOnStartup: false,
		},
		Warmer: WarmerConfig{
			Enabled:       false,
			Interval:      10 * time.Minute,
			Lookback:      24 * time.Hour,
			MaxRequesters: 100,
		},
		EntitySource: EntitySourceConfig{
			DatabasePath:        "/data/entities.duckdb",
			RatePerSecond:       500,
			RateBurst:           100,
			BreakerMinRequests:  10,
			BreakerFailureRatio: 0.6,
			BreakerTimeout:      2 * time.Minute,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if c.Engine.InsightTTL < c.Engine.RecommendationTTL {
		return fmt.Errorf("engine.insight_ttl (%v) must be >= engine.recommendation_ttl (%v)",
			c.Engine.InsightTTL, c.Engine.RecommendationTTL)
	}
	if c.Tracker.Period < c.Tracker.Interval {
		return fmt.Errorf("tracker.period (%v) must be >= tracker.interval (%v)",
			c.Tracker.Period, c.Tracker.Interval)
	}

	return nil
}
