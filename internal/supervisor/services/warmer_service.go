// Affinity - Recommendation & Insights Scoring Engine
// Copyright 2026 Meshkit Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meshkit/affinity

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Warmer precomputes cached results for one requester.
// Satisfied by *app.App.
type Warmer interface {
	Warm(ctx context.Context, requesterID string) error
}

// RequesterLister returns recently active requesters.
// Satisfied by *entitydata.Source.
type RequesterLister interface {
	ActiveRequesters(ctx context.Context, since time.Time, limit int) ([]string, error)
}

// WarmerServiceConfig holds configuration for the cache warmer.
type WarmerServiceConfig struct {
	// Interval is how often the warm pass runs.
	Interval time.Duration

	// Lookback selects requesters active within this trailing window.
	Lookback time.Duration

	// MaxRequesters caps how many requesters are warmed per pass.
	MaxRequesters int
}

// WarmerService keeps recommendation batches and insights for recently
// active requesters precomputed so their reads hit the cache.
type WarmerService struct {
	warmer  Warmer
	listers RequesterLister
	config  WarmerServiceConfig
	logger  zerolog.Logger
	name    string
}

// NewWarmerService creates a new cache warmer service.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewWarmerService(warmer Warmer, listers RequesterLister, cfg WarmerServiceConfig, logger zerolog.Logger) *WarmerService {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 24 * time.Hour
	}
	if cfg.MaxRequesters <= 0 {
		cfg.MaxRequesters = 100
	}
	return &WarmerService{
		warmer:  warmer,
		listers: listers,
		config:  cfg,
		logger:  logger.With().Str("service", "warmer").Logger(),
		name:    "cache-warmer",
	}
}

// Serve implements the suture.Service interface.
func (s *WarmerService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			s.pass(ctx)
		}
	}
}

// pass warms every recently active requester once. Per-requester
// failures are logged and skipped so one bad requester never blocks the
// rest of the pass.
func (s *WarmerService) pass(ctx context.Context) {
	since := time.Now().Add(-s.config.Lookback)
	requesters, err := s.listers.ActiveRequesters(ctx, since, s.config.MaxRequesters)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to list active requesters")
		return
	}

	start := time.Now()
	warmed := 0
	for _, id := range requesters {
		if ctx.Err() != nil {
			return
		}
		if err := s.warmer.Warm(ctx, id); err != nil {
			s.logger.Debug().Err(err).Str("requester_id", id).Msg("warm pass skipped requester")
			continue
		}
		warmed++
	}

	s.logger.Debug().
		Int("warmed", warmed).
		Int("candidates", len(requesters)).
		Dur("duration", time.Since(start)).
		Msg("warm pass complete")
}

// String returns the service name for logging.
func (s *WarmerService) String() string {
	return s.name
}
