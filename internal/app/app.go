// Affinity - Recommendation & Insights Scoring Engine
// Copyright 2026 Meshkit Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meshkit/affinity

// Package app bundles the engine's components behind one facade. The
// external API layer embeds this package and maps its operations onto
// whatever transport it owns; the engine itself carries no HTTP surface.
package app

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/meshkit/affinity/internal/cache"
	"github.com/meshkit/affinity/internal/feedback"
	"github.com/meshkit/affinity/internal/insights"
	"github.com/meshkit/affinity/internal/recommend"
	"github.com/meshkit/affinity/internal/recommend/signals"
	"github.com/meshkit/affinity/internal/recommend/version"
)

// SnapshotReader serves stored performance snapshots.
// Satisfied by *storage.DB.
type SnapshotReader interface {
	Snapshots(ctx context.Context, domain signals.Domain, limit int) ([]feedback.Snapshot, error)
}

// App is the engine's complete operation surface: recommendation
// serving, insights, feedback ingestion, and version administration.
type App struct {
	engine    *recommend.Engine
	insights  *insights.Service
	collector *feedback.Collector
	versions  *version.Manager
	snapshots SnapshotReader
	cache     *cache.Cache
	logger    zerolog.Logger
}

// New assembles the facade from already-constructed components.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func New(
	engine *recommend.Engine,
	ins *insights.Service,
	collector *feedback.Collector,
	versions *version.Manager,
	snapshots SnapshotReader,
	c *cache.Cache,
	logger zerolog.Logger,
) *App {
	return &App{
		engine:    engine,
		insights:  ins,
		collector: collector,
		versions:  versions,
		snapshots: snapshots,
		cache:     c,
		logger:    logger.With().Str("component", "app").Logger(),
	}
}

// Recommend returns the ranked recommendation batch for a requester.
func (a *App) Recommend(ctx context.Context, domain signals.Domain, requesterID string, limit int) (*recommend.Batch, error) {
	return a.engine.Recommend(ctx, domain, requesterID, limit)
}

// Insight returns one derived aggregate insight for a requester.
func (a *App) Insight(ctx context.Context, t insights.Type, requesterID string) (*insights.Insight, error) {
	return a.insights.Get(ctx, t, requesterID)
}

// SubmitFeedback records a user's response to a recommendation.
func (a *App) SubmitFeedback(ctx context.Context, sub feedback.Submission) (*feedback.Feedback, error) {
	return a.collector.Submit(ctx, sub)
}

// CreateVersion validates and stores a new algorithm version without
// activating it.
func (a *App) CreateVersion(ctx context.Context, domain signals.Domain, tag string, weights map[string]float64) (*version.AlgorithmVersion, error) {
	return a.versions.Create(ctx, domain, tag, weights)
}

// ActivateVersion atomically swaps the domain's active version. It
// returns version.ErrConflict when a concurrent activation moved the
// revision; the caller re-reads and retries against current state.
func (a *App) ActivateVersion(ctx context.Context, domain signals.Domain, versionID string, expectedRevision uint64) error {
	return a.versions.Activate(ctx, domain, versionID, expectedRevision)
}

// ActiveVersion returns the domain's active version and the activation
// revision to pass to a subsequent ActivateVersion.
func (a *App) ActiveVersion(domain signals.Domain) (*version.AlgorithmVersion, uint64, error) {
	return a.versions.Active(domain)
}

// ListVersions returns every stored version for a domain, including
// deactivated ones.
func (a *App) ListVersions(domain signals.Domain) []*version.AlgorithmVersion {
	return a.versions.List(domain)
}

// Snapshots returns stored performance snapshots, most recent first.
func (a *App) Snapshots(ctx context.Context, domain signals.Domain, limit int) ([]feedback.Snapshot, error) {
	return a.snapshots.Snapshots(ctx, domain, limit)
}

// InvalidateKey clears one cache entry.
func (a *App) InvalidateKey(key string) {
	a.cache.Invalidate(key)
}

// InvalidatePrefix clears every cache entry under a key prefix.
func (a *App) InvalidatePrefix(prefix string) int {
	return a.cache.InvalidatePrefix(prefix)
}

// Warm precomputes every domain's recommendation batch and every
// insight for a requester so subsequent reads hit the cache. Failures
// are collected rather than short-circuiting; one unavailable domain
// does not stop the others from warming.
func (a *App) Warm(ctx context.Context, requesterID string) error {
	var errs []error
	for _, domain := range signals.Domains() {
		if _, err := a.engine.Recommend(ctx, domain, requesterID, 0); err != nil {
			errs = append(errs, err)
		}
	}
	for _, t := range insights.Types() {
		if _, err := a.insights.Get(ctx, t, requesterID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NotifyEntityMutation clears a requester's cached recommendations and
// insights after a relevant entity change (new connection, new content)
// so the next request recomputes against fresh data.
func (a *App) NotifyEntityMutation(requesterID string) {
	a.engine.InvalidateRequester(requesterID)
	a.insights.InvalidateRequester(requesterID)
	a.logger.Debug().Str("requester_id", requesterID).Msg("Caches invalidated after entity mutation")
}
