// Affinity - Recommendation & Insights Scoring Engine
// Copyright 2026 Meshkit Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meshkit/affinity

package feedback

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/meshkit/affinity/internal/metrics"
)

// AggregationStore derives snapshots from the feedback log and persists
// them. Aggregation resolves upserts: when a requester submitted feedback
// for the same recommendation more than once, only the latest row counts.
type AggregationStore interface {
	AggregateFeedback(ctx context.Context, periodStart, periodEnd time.Time) ([]Snapshot, error)
	SaveSnapshots(ctx context.Context, snaps []Snapshot) error
}

// Tracker periodically turns the feedback log into performance snapshots.
type Tracker struct {
	store  AggregationStore
	logger zerolog.Logger
	period time.Duration
	nowFn  func() time.Time
}

// NewTracker creates a tracker that aggregates feedback over trailing
// windows of the given period.
func NewTracker(store AggregationStore, period time.Duration, logger zerolog.Logger) *Tracker {
	return &Tracker{
		store:  store,
		logger: logger.With().Str("component", "tracker").Logger(),
		period: period,
		nowFn:  time.Now,
	}
}

// Run aggregates the trailing period ending now and persists the result.
// It is safe to call repeatedly; snapshots for an already-covered period
// are overwritten with fresher numbers.
func (t *Tracker) Run(ctx context.Context) error {
	end := t.nowFn().UTC().Truncate(time.Minute)
	start := end.Add(-t.period)

	snaps, err := t.store.AggregateFeedback(ctx, start, end)
	if err != nil {
		metrics.TrackerRuns.WithLabelValues("error").Inc()
		return fmt.Errorf("aggregate feedback: %w", err)
	}

	if len(snaps) == 0 {
		metrics.TrackerRuns.WithLabelValues("empty").Inc()
		t.logger.Debug().
			Time("period_start", start).
			Time("period_end", end).
			Msg("No feedback in period")
		return nil
	}

	if err := t.store.SaveSnapshots(ctx, snaps); err != nil {
		metrics.TrackerRuns.WithLabelValues("error").Inc()
		return fmt.Errorf("save snapshots: %w", err)
	}

	metrics.TrackerRuns.WithLabelValues("ok").Inc()
	metrics.TrackerSnapshots.Add(float64(len(snaps)))

	for _, s := range snaps {
		t.logger.Info().
			Str("domain", string(s.Domain)).
			Str("version_id", s.AlgorithmVersionID).
			Int64("total", s.Total).
			Float64("acceptance_rate", s.AcceptanceRate).
			Float64("average_rating", s.AverageRating).
			Msg("Performance snapshot written")
	}

	return nil
}

// Retune proposes an adjusted weight vector from a snapshot's per-signal
// acceptance counts. Signals that drove more accepted recommendations are
// nudged up proportionally to their share, scaled by alpha, and the
// result is renormalized to sum to 1. The proposal is advisory: callers
// create a new algorithm version from it, nothing is activated here.
func Retune(base map[string]float64, signalAccepts map[string]int64, alpha float64) map[string]float64 {
	if len(base) == 0 {
		return nil
	}

	var totalAccepts int64
	for _, n := range signalAccepts {
		totalAccepts += n
	}

	adjusted := make(map[string]float64, len(base))
	var sum float64
	for sig, w := range base {
		next := w
		if totalAccepts > 0 {
			share := float64(signalAccepts[sig]) / float64(totalAccepts)
			next = w * (1 + alpha*share)
		}
		adjusted[sig] = next
		sum += next
	}

	if sum <= 0 {
		return nil
	}
	for sig := range adjusted {
		adjusted[sig] /= sum
	}

	// Absorb float drift into the largest weight so the vector still
	// passes exact-sum validation.
	var drift float64 = 1
	for _, w := range adjusted {
		drift -= w
	}
	keys := make([]string, 0, len(adjusted))
	for k := range adjusted {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return adjusted[keys[i]] > adjusted[keys[j]] })
	adjusted[keys[0]] += drift

	return adjusted
}
