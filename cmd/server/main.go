// Affinity - Recommendation & Insights Scoring Engine
// Copyright 2026 Meshkit Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meshkit/affinity

// Package main is the entry point for the Affinity scoring engine.
//
// Affinity computes ranked, explainable recommendations (connections,
// groups, content, advisors) from an externally owned entity database,
// and derives aggregate insights from the same data. The serving surface
// (HTTP/API, authentication) is owned by an external layer; this process
// hosts the engine, its caches, and its background jobs.
//
// # Initialization Order
//
//  1. Configuration: Koanf v2 layered defaults, config file, env vars
//  2. Logging: zerolog, JSON or console format
//  3. Storage: DuckDB for recommendations, feedback, snapshots
//  4. Version store: BadgerDB (or in-memory) for algorithm versions
//  5. Entity source: read-only entity database behind a circuit breaker
//  6. Engine, insights, feedback collector
//  7. Supervisor tree: performance tracker and cache janitor
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables with the AFFINITY_ prefix, a
// YAML config file named by AFFINITY_CONFIG, built-in defaults.
//
// # Signal Handling
//
// The process shuts down gracefully on SIGINT and SIGTERM: the
// supervisor tree stops its jobs, then stores are closed.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgraph-io/badger/v4"

	"github.com/meshkit/affinity/internal/app"
	"github.com/meshkit/affinity/internal/config"
	"github.com/meshkit/affinity/internal/entitydata"
	"github.com/meshkit/affinity/internal/feedback"
	"github.com/meshkit/affinity/internal/insights"
	"github.com/meshkit/affinity/internal/logging"
	"github.com/meshkit/affinity/internal/recommend"
	"github.com/meshkit/affinity/internal/recommend/signals"
	"github.com/meshkit/affinity/internal/recommend/version"
	"github.com/meshkit/affinity/internal/storage"
	"github.com/meshkit/affinity/internal/supervisor"
	"github.com/meshkit/affinity/internal/supervisor/services"

	affinitycache "github.com/meshkit/affinity/internal/cache"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logger := logging.Logger()

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("entity_db_path", cfg.EntitySource.DatabasePath).
		Str("version_store", versionStoreKind(cfg.VersionStore.Path)).
		Msg("Starting Affinity")

	db, err := storage.New(&cfg.Database, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	versionStore, closeVersions, err := openVersionStore(cfg.VersionStore.Path)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open version store")
	}
	defer closeVersions()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	versions, err := version.NewManager(ctx, versionStore, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load algorithm versions")
	}
	if err := versions.EnsureDefaults(ctx); err != nil {
		logging.Fatal().Err(err).Msg("Failed to seed baseline algorithm versions")
	}

	entities, err := entitydata.Open(cfg.EntitySource.DatabasePath, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open entity database")
	}
	defer func() {
		if err := entities.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing entity database")
		}
	}()

	source := signals.NewResilientSource(entities, cfg.EntitySource)
	c := affinitycache.New(cfg.Cache.MaxEntries)

	engine := recommend.NewEngine(cfg.Engine, source, versions, db, c, logger)
	insightSvc := insights.NewService(entities, c, cfg.Engine.InsightTTL, logger)
	collector := feedback.NewCollector(db, logger)
	tracker := feedback.NewTracker(db, cfg.Tracker.Period, logger)

	// The external API layer consumes this facade; the engine carries no
	// HTTP surface of its own.
	engineApp := app.New(engine, insightSvc, collector, versions, db, c, logger)

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddJob(services.NewTrackerService(tracker, services.TrackerServiceConfig{
		RunOnStartup: cfg.Tracker.RunOnStartup,
		Interval:     cfg.Tracker.Interval,
	}, logger))
	tree.AddJob(services.NewJanitorService(c, cfg.Cache.JanitorInterval, logger))
	if cfg.Warmer.Enabled {
		tree.AddJob(services.NewWarmerService(engineApp, entities, services.WarmerServiceConfig{
			Interval:      cfg.Warmer.Interval,
			Lookback:      cfg.Warmer.Lookback,
			MaxRequesters: cfg.Warmer.MaxRequesters,
		}, logger))
	}

	errCh := tree.ServeBackground(ctx)
	logging.Info().Msg("Affinity started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree stopped with error")
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree failed")
		}
	}

	logging.Info().Msg("Affinity stopped")
}

// openVersionStore returns the configured version store and a close
// function. An empty path selects the in-memory store.
func openVersionStore(path string) (version.Store, func(), error) {
	if path == "" {
		return version.NewMemoryStore(), func() {}, nil
	}

	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing version store")
		}
	}
	return version.NewBadgerStore(db), closeFn, nil
}

func versionStoreKind(path string) string {
	if path == "" {
		return "memory"
	}
	return "badger"
}
