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

// Sweeper is the cache maintenance hook driven by JanitorService.
// Satisfied by *cache.Cache.
type Sweeper interface {
	// Sweep removes expired entries and returns how many were evicted.
	Sweep() int
}

// JanitorService periodically sweeps expired cache entries. Expiry is
// lazy on read, so the sweep is memory hygiene rather than correctness.
type JanitorService struct {
	cache    Sweeper
	interval time.Duration
	logger   zerolog.Logger
	name     string
}

// NewJanitorService creates a new cache janitor.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewJanitorService(cache Sweeper, interval time.Duration, logger zerolog.Logger) *JanitorService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &JanitorService{
		cache:    cache,
		interval: interval,
		logger:   logger.With().Str("service", "janitor").Logger(),
		name:     "cache-janitor",
	}
}

// Serve implements the suture.Service interface.
func (s *JanitorService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			if n := s.cache.Sweep(); n > 0 {
				s.logger.Debug().Int("evicted", n).Msg("cache sweep complete")
			}
		}
	}
}

// String returns the service name for logging.
func (s *JanitorService) String() string {
	return s.name
}
