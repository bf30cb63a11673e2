// Affinity - Recommendation & Insights Scoring Engine
// Copyright 2026 Meshkit Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meshkit/affinity

package signals

import (
	"context"
	"errors"
	"fmt"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/meshkit/affinity/internal/config"
	"github.com/meshkit/affinity/internal/logging"
	"github.com/meshkit/affinity/internal/metrics"
)

// ErrSourceUnavailable wraps entity-source failures rejected by the
// circuit breaker or rate limiter. Extractors record it as a per-signal
// failure marker; the scoring engine then drops those signals.
var ErrSourceUnavailable = errors.New("entity source unavailable")

// ResilientSource wraps an EntitySource with a circuit breaker and a
// rate limiter. The breaker prevents cascading failures when the
// external data layer is slow or down; the limiter caps query pressure
// against it.
//
// The breaker uses real time for its recovery window. Tests should
// exercise the wrapped source directly rather than waiting out the
// breaker.
type ResilientSource struct {
	inner   EntitySource
	breaker *gobreaker.CircuitBreaker[any]
	limiter *rate.Limiter
}

// NewResilientSource wraps source per the entity-source config.
func NewResilientSource(source EntitySource, cfg config.EntitySourceConfig) *ResilientSource {
	minRequests := cfg.BreakerMinRequests
	if minRequests == 0 {
		minRequests = 10
	}
	failureRatio := cfg.BreakerFailureRatio
	if failureRatio <= 0 {
		failureRatio = 0.6
	}

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    "entity-source",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= failureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("entity source breaker state change")
			metrics.EntitySourceBreakerState.Set(breakerStateValue(to))
		},
	})

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &ResilientSource{inner: source, breaker: breaker, limiter: limiter}
}

// execute runs fn under the limiter and breaker.
func execute[T any](ctx context.Context, s *ResilientSource, fn func() (T, error)) (T, error) {
	var zero T

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			metrics.EntitySourceRequests.WithLabelValues("rejected").Inc()
			return zero, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
		}
	}

	result, err := s.breaker.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.EntitySourceRequests.WithLabelValues("rejected").Inc()
			return zero, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
		}
		metrics.EntitySourceRequests.WithLabelValues("failure").Inc()
		return zero, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	metrics.EntitySourceRequests.WithLabelValues("ok").Inc()
	return result.(T), nil
}

// Candidates implements EntitySource.
func (s *ResilientSource) Candidates(ctx context.Context, domain Domain, requesterID string, limit int) ([]string, error) {
	return execute(ctx, s, func() ([]string, error) {
		return s.inner.Candidates(ctx, domain, requesterID, limit)
	})
}

// GraphFacts implements EntitySource.
func (s *ResilientSource) GraphFacts(ctx context.Context, requesterID, candidateID string) (GraphFacts, error) {
	return execute(ctx, s, func() (GraphFacts, error) {
		return s.inner.GraphFacts(ctx, requesterID, candidateID)
	})
}

// InterestFacts implements EntitySource.
func (s *ResilientSource) InterestFacts(ctx context.Context, requesterID, candidateID string) (InterestFacts, error) {
	return execute(ctx, s, func() (InterestFacts, error) {
		return s.inner.InterestFacts(ctx, requesterID, candidateID)
	})
}

// LocationFacts implements EntitySource.
func (s *ResilientSource) LocationFacts(ctx context.Context, requesterID, candidateID string) (LocationFacts, error) {
	return execute(ctx, s, func() (LocationFacts, error) {
		return s.inner.LocationFacts(ctx, requesterID, candidateID)
	})
}

// GroupFacts implements EntitySource.
func (s *ResilientSource) GroupFacts(ctx context.Context, requesterID, groupID string) (GroupFacts, error) {
	return execute(ctx, s, func() (GroupFacts, error) {
		return s.inner.GroupFacts(ctx, requesterID, groupID)
	})
}

// ContentFacts implements EntitySource.
func (s *ResilientSource) ContentFacts(ctx context.Context, requesterID, contentID string) (ContentFacts, error) {
	return execute(ctx, s, func() (ContentFacts, error) {
		return s.inner.ContentFacts(ctx, requesterID, contentID)
	})
}

// AdvisoryFacts implements EntitySource.
func (s *ResilientSource) AdvisoryFacts(ctx context.Context, requesterID, advisorID string) (AdvisoryFacts, error) {
	return execute(ctx, s, func() (AdvisoryFacts, error) {
		return s.inner.AdvisoryFacts(ctx, requesterID, advisorID)
	})
}

// breakerStateValue maps breaker states to gauge values.
func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
