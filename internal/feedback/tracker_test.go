// Affinity - Recommendation & Insights Scoring Engine
// Copyright 2026 Meshkit Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meshkit/affinity

package feedback

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/meshkit/affinity/internal/recommend/signals"
)

// fakeAggregationStore returns canned snapshots and records saves.
type fakeAggregationStore struct {
	snaps        []Snapshot
	aggregateErr error
	saveErr      error

	saved            []Snapshot
	gotStart, gotEnd time.Time
}

func (s *fakeAggregationStore) AggregateFeedback(_ context.Context, start, end time.Time) ([]Snapshot, error) {
	s.gotStart, s.gotEnd = start, end
	return s.snaps, s.aggregateErr
}

func (s *fakeAggregationStore) SaveSnapshots(_ context.Context, snaps []Snapshot) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, snaps...)
	return nil
}

func TestTrackerRunSavesSnapshots(t *testing.T) {
	store := &fakeAggregationStore{
		snaps: []Snapshot{{
			Domain:             signals.DomainConnection,
			AlgorithmVersionID: "v1",
			Total:              10,
			Accepted:           6,
			AcceptanceRate:     0.6,
		}},
	}
	tr := NewTracker(store, 24*time.Hour, zerolog.Nop())
	now := time.Date(2026, 3, 1, 12, 30, 45, 0, time.UTC)
	tr.nowFn = func() time.Time { return now }

	if err := tr.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(store.saved) != 1 {
		t.Fatalf("saved %d snapshots, want 1", len(store.saved))
	}
	wantEnd := now.Truncate(time.Minute)
	if !store.gotEnd.Equal(wantEnd) {
		t.Errorf("period end = %v, want %v", store.gotEnd, wantEnd)
	}
	if !store.gotStart.Equal(wantEnd.Add(-24 * time.Hour)) {
		t.Errorf("period start = %v, want trailing 24h", store.gotStart)
	}
}

func TestTrackerRunEmptyPeriod(t *testing.T) {
	store := &fakeAggregationStore{}
	tr := NewTracker(store, time.Hour, zerolog.Nop())

	if err := tr.Run(context.Background()); err != nil {
		t.Fatalf("Run failed on empty period: %v", err)
	}
	if len(store.saved) != 0 {
		t.Errorf("saved %d snapshots for an empty period", len(store.saved))
	}
}

func TestTrackerRunErrors(t *testing.T) {
	tr := NewTracker(&fakeAggregationStore{aggregateErr: errors.New("query failed")}, time.Hour, zerolog.Nop())
	if err := tr.Run(context.Background()); err == nil {
		t.Error("Run swallowed aggregation error")
	}

	tr = NewTracker(&fakeAggregationStore{
		snaps:   []Snapshot{{Domain: signals.DomainGroup, Total: 1}},
		saveErr: errors.New("write failed"),
	}, time.Hour, zerolog.Nop())
	if err := tr.Run(context.Background()); err == nil {
		t.Error("Run swallowed save error")
	}
}

func TestRetuneBoostsAcceptedSignals(t *testing.T) {
	base := map[string]float64{
		"mutual_connections": 0.4,
		"shared_interests":   0.3,
		"activity_overlap":   0.2,
		"location_proximity": 0.1,
	}
	accepts := map[string]int64{
		"shared_interests": 80,
		"activity_overlap": 20,
	}

	tuned := Retune(base, accepts, 0.2)
	if tuned == nil {
		t.Fatal("Retune returned nil for valid input")
	}

	sum := 0.0
	for _, w := range tuned {
		if w < 0 {
			t.Errorf("negative tuned weight: %v", tuned)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("tuned weights sum to %v, want 1.0", sum)
	}

	// The dominant accepted signal gains share, an unaccepted one loses.
	if tuned["shared_interests"] <= base["shared_interests"] {
		t.Errorf("shared_interests = %v, want above base %v", tuned["shared_interests"], base["shared_interests"])
	}
	if tuned["location_proximity"] >= base["location_proximity"] {
		t.Errorf("location_proximity = %v, want below base %v", tuned["location_proximity"], base["location_proximity"])
	}
}

func TestRetuneNoAcceptsKeepsBase(t *testing.T) {
	base := map[string]float64{"a": 0.6, "b": 0.4}

	tuned := Retune(base, nil, 0.2)

	if math.Abs(tuned["a"]-0.6) > 1e-9 || math.Abs(tuned["b"]-0.4) > 1e-9 {
		t.Errorf("tuned = %v, want base weights unchanged without accepts", tuned)
	}
}

func TestRetuneEmptyBase(t *testing.T) {
	if got := Retune(nil, map[string]int64{"a": 1}, 0.2); got != nil {
		t.Errorf("Retune(nil base) = %v, want nil", got)
	}
}
