// Affinity - Recommendation & Insights Scoring Engine
// Copyright 2026 Meshkit Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meshkit/affinity

// Package services provides suture service wrappers for the engine's
// background jobs.
package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// PerformanceTracker is the aggregation job driven by TrackerService.
// Satisfied by *feedback.Tracker.
type PerformanceTracker interface {
	// Run aggregates the trailing feedback period into snapshots.
	Run(ctx context.Context) error
}

// TrackerServiceConfig holds configuration for the tracker service.
type TrackerServiceConfig struct {
	// RunOnStartup triggers an aggregation pass when the service starts.
	RunOnStartup bool

	// Interval is how often to aggregate.
	Interval time.Duration
}

// TrackerService runs the performance tracker on a schedule under
// suture supervision.
type TrackerService struct {
	tracker PerformanceTracker
	config  TrackerServiceConfig
	logger  zerolog.Logger
	name    string
}

// NewTrackerService creates a new tracker service.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewTrackerService(tracker PerformanceTracker, cfg TrackerServiceConfig, logger zerolog.Logger) *TrackerService {
	return &TrackerService{
		tracker: tracker,
		config:  cfg,
		logger:  logger.With().Str("service", "tracker").Logger(),
		name:    "tracker-service",
	}
}

// Serve implements the suture.Service interface. A failed aggregation
// pass is logged and retried on the next tick; it never crashes the
// service.
func (s *TrackerService) Serve(ctx context.Context) error {
	s.logger.Info().
		Bool("run_on_startup", s.config.RunOnStartup).
		Dur("interval", s.config.Interval).
		Msg("tracker service starting")

	if s.config.RunOnStartup {
		if err := s.run(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("startup aggregation failed (will retry on schedule)")
		}
	}

	if s.config.Interval <= 0 {
		s.config.Interval = time.Hour
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("tracker service shutting down")
			return ctx.Err()

		case <-ticker.C:
			if err := s.run(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("scheduled aggregation failed")
			}
		}
	}
}

func (s *TrackerService) run(ctx context.Context) error {
	runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	start := time.Now()
	if err := s.tracker.Run(runCtx); err != nil {
		return err
	}
	s.logger.Debug().Dur("duration", time.Since(start)).Msg("aggregation pass complete")
	return nil
}

// String returns the service name for logging.
func (s *TrackerService) String() string {
	return s.name
}
