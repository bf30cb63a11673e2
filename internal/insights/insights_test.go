// Affinity - Recommendation & Insights Scoring Engine
// Copyright 2026 Meshkit Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meshkit/affinity

package insights

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/meshkit/affinity/internal/cache"
)

// fakeSource serves canned activity and network facts.
type fakeSource struct {
	windows    []ActivityWindow
	windowsErr error

	network    NetworkFacts
	networkErr error

	calls atomic.Int32
}

func (s *fakeSource) ActivityWindows(context.Context, string, int) ([]ActivityWindow, error) {
	s.calls.Add(1)
	return s.windows, s.windowsErr
}

func (s *fakeSource) NetworkFacts(context.Context, string) (NetworkFacts, error) {
	s.calls.Add(1)
	return s.network, s.networkErr
}

func windows(counts ...int64) []ActivityWindow {
	out := make([]ActivityWindow, len(counts))
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, n := range counts {
		out[i] = ActivityWindow{Start: start.AddDate(0, 0, 7*i), Interactions: n}
	}
	return out
}

func newTestService(src Source) *Service {
	return NewService(src, cache.New(100), 15*time.Minute, zerolog.Nop())
}

func TestEngagementRising(t *testing.T) {
	svc := newTestService(&fakeSource{windows: windows(1, 1, 1, 1, 4, 4, 4, 4)})

	ins, err := svc.Get(context.Background(), TypeEngagement, "u1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ins.Label != "rising" {
		t.Errorf("label = %q, want rising", ins.Label)
	}
	if ins.Value <= 0 {
		t.Errorf("trend = %v, want positive", ins.Value)
	}
	if !ins.ExpiresAt.After(ins.GeneratedAt) {
		t.Error("expires_at not after generated_at")
	}
}

func TestEngagementFallingAndSteady(t *testing.T) {
	svc := newTestService(&fakeSource{windows: windows(4, 4, 4, 4, 1, 1, 1, 1)})
	ins, err := svc.Get(context.Background(), TypeEngagement, "u1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ins.Label != "falling" || ins.Value >= 0 {
		t.Errorf("got %q/%v, want falling with negative trend", ins.Label, ins.Value)
	}

	svc = newTestService(&fakeSource{windows: windows(2, 2, 2, 2, 2, 2, 2, 2)})
	ins, _ = svc.Get(context.Background(), TypeEngagement, "u2")
	if ins.Label != "steady" {
		t.Errorf("label = %q, want steady for flat activity", ins.Label)
	}
}

func TestEngagementNoActivity(t *testing.T) {
	svc := newTestService(&fakeSource{})

	ins, err := svc.Get(context.Background(), TypeEngagement, "u1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ins.Value != 0 {
		t.Errorf("trend = %v, want 0 with no data", ins.Value)
	}
}

func TestGrowthRate(t *testing.T) {
	svc := newTestService(&fakeSource{
		network: NetworkFacts{Connections: 110, NewConnections: 10},
	})

	ins, err := svc.Get(context.Background(), TypeGrowth, "u1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	// 10 new on a base of 100.
	if ins.Value < 0.09 || ins.Value > 0.11 {
		t.Errorf("growth = %v, want 0.1", ins.Value)
	}
	if ins.Label != "moderate" {
		t.Errorf("label = %q, want moderate", ins.Label)
	}
}

func TestDensity(t *testing.T) {
	svc := newTestService(&fakeSource{
		network: NetworkFacts{ClosedTriangles: 30, PossibleTriangles: 100},
	})

	ins, err := svc.Get(context.Background(), TypeDensity, "u1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ins.Value != 0.3 {
		t.Errorf("density = %v, want 0.3", ins.Value)
	}
	if ins.Label != "connected" {
		t.Errorf("label = %q, want connected", ins.Label)
	}
}

func TestActionsPrioritized(t *testing.T) {
	svc := newTestService(&fakeSource{
		windows: windows(3, 3, 3, 3, 3, 3, 3, 0),
		network: NetworkFacts{
			Connections:    5,
			PendingInvites: 2,
			StaleContacts:  3,
		},
	})

	ins, err := svc.Get(context.Background(), TypeActions, "u1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(ins.Suggestions) != 4 {
		t.Fatalf("got %d suggestions, want 4", len(ins.Suggestions))
	}
	for i := 1; i < len(ins.Suggestions); i++ {
		if ins.Suggestions[i].Priority < ins.Suggestions[i-1].Priority {
			t.Errorf("suggestions out of priority order at %d", i)
		}
	}
	if ins.Suggestions[0].Action != "respond_to_invites" {
		t.Errorf("top suggestion = %s, want respond_to_invites", ins.Suggestions[0].Action)
	}
}

func TestGetServesFromCache(t *testing.T) {
	src := &fakeSource{network: NetworkFacts{Connections: 50}}
	svc := newTestService(src)
	ctx := context.Background()

	if _, err := svc.Get(ctx, TypeDensity, "u1"); err != nil {
		t.Fatalf("first Get failed: %v", err)
	}
	calls := src.calls.Load()
	if _, err := svc.Get(ctx, TypeDensity, "u1"); err != nil {
		t.Fatalf("second Get failed: %v", err)
	}
	if src.calls.Load() != calls {
		t.Error("second Get queried the source instead of the cache")
	}
}

func TestInvalidateRequester(t *testing.T) {
	src := &fakeSource{network: NetworkFacts{Connections: 50}}
	svc := newTestService(src)
	ctx := context.Background()

	if _, err := svc.Get(ctx, TypeDensity, "u1"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	calls := src.calls.Load()

	svc.InvalidateRequester("u1")

	if _, err := svc.Get(ctx, TypeDensity, "u1"); err != nil {
		t.Fatalf("Get after invalidation failed: %v", err)
	}
	if src.calls.Load() == calls {
		t.Error("Get served stale cache after invalidation")
	}
}

func TestGetRejectsBadInput(t *testing.T) {
	svc := newTestService(&fakeSource{})

	if _, err := svc.Get(context.Background(), Type("bogus"), "u1"); err == nil {
		t.Error("Get accepted unknown insight type")
	}
	if _, err := svc.Get(context.Background(), TypeDensity, ""); err == nil {
		t.Error("Get accepted empty requester id")
	}
}

func TestGetSourceFailure(t *testing.T) {
	svc := newTestService(&fakeSource{networkErr: errors.New("entity layer down")})

	if _, err := svc.Get(context.Background(), TypeDensity, "u1"); err == nil {
		t.Error("Get swallowed source failure")
	}
}

func TestCacheKeyNamespace(t *testing.T) {
	key := CacheKey(TypeGrowth, "u1")
	if key != "insight:growth:u1" {
		t.Errorf("CacheKey = %q, want insight:growth:u1", key)
	}
}
