// Affinity - Recommendation & Insights Scoring Engine
// Copyright 2026 Meshkit Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meshkit/affinity

package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeTracker struct {
	runs atomic.Int32
	err  error
}

func (t *fakeTracker) Run(context.Context) error {
	t.runs.Add(1)
	return t.err
}

func TestTrackerServiceRunOnStartup(t *testing.T) {
	tracker := &fakeTracker{}
	svc := NewTrackerService(tracker, TrackerServiceConfig{
		RunOnStartup: true,
		Interval:     time.Hour,
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.After(2 * time.Second)
	for tracker.runs.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("startup pass never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve returned %v, want context.Canceled", err)
	}
}

func TestTrackerServiceTicks(t *testing.T) {
	tracker := &fakeTracker{}
	svc := NewTrackerService(tracker, TrackerServiceConfig{
		Interval: 10 * time.Millisecond,
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.After(2 * time.Second)
	for tracker.runs.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("scheduled passes never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestTrackerServiceSurvivesRunFailure(t *testing.T) {
	tracker := &fakeTracker{err: errors.New("aggregation broken")}
	svc := NewTrackerService(tracker, TrackerServiceConfig{
		Interval: 10 * time.Millisecond,
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.After(2 * time.Second)
	for tracker.runs.Load() < 3 {
		select {
		case <-done:
			t.Fatal("Serve exited on a failed pass")
		case <-deadline:
			t.Fatal("passes stopped after failure")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

type fakeSweeper struct {
	sweeps atomic.Int32
}

func (s *fakeSweeper) Sweep() int {
	s.sweeps.Add(1)
	return 1
}

func TestJanitorServiceSweeps(t *testing.T) {
	sweeper := &fakeSweeper{}
	svc := NewJanitorService(sweeper, 10*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.After(2 * time.Second)
	for sweeper.sweeps.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("sweep never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve returned %v, want context.Canceled", err)
	}
}

type fakeWarmer struct {
	warmed sync.Map
	err    error
	count  atomic.Int32
}

func (w *fakeWarmer) Warm(_ context.Context, requesterID string) error {
	w.warmed.Store(requesterID, true)
	w.count.Add(1)
	return w.err
}

type fakeLister struct {
	requesters []string
	gotLimit   atomic.Int32
	err        error
}

func (l *fakeLister) ActiveRequesters(_ context.Context, _ time.Time, limit int) ([]string, error) {
	l.gotLimit.Store(int32(limit))
	return l.requesters, l.err
}

func TestWarmerServiceWarmsActiveRequesters(t *testing.T) {
	warmer := &fakeWarmer{}
	lister := &fakeLister{requesters: []string{"u1", "u2", "u3"}}
	svc := NewWarmerService(warmer, lister, WarmerServiceConfig{MaxRequesters: 25}, zerolog.Nop())

	svc.pass(context.Background())

	if got := warmer.count.Load(); got != 3 {
		t.Errorf("warmed %d requesters, want 3", got)
	}
	for _, id := range lister.requesters {
		if _, ok := warmer.warmed.Load(id); !ok {
			t.Errorf("requester %s not warmed", id)
		}
	}
	if lister.gotLimit.Load() != 25 {
		t.Errorf("lister limit = %d, want 25", lister.gotLimit.Load())
	}
}

func TestWarmerServicePerRequesterFailureDoesNotAbortPass(t *testing.T) {
	warmer := &fakeWarmer{err: errors.New("cold downstream")}
	lister := &fakeLister{requesters: []string{"u1", "u2"}}
	svc := NewWarmerService(warmer, lister, WarmerServiceConfig{}, zerolog.Nop())

	svc.pass(context.Background())

	if got := warmer.count.Load(); got != 2 {
		t.Errorf("attempted %d warms, want 2 despite failures", got)
	}
}

func TestWarmerServiceListerFailureSkipsPass(t *testing.T) {
	warmer := &fakeWarmer{}
	lister := &fakeLister{err: errors.New("entity layer down")}
	svc := NewWarmerService(warmer, lister, WarmerServiceConfig{}, zerolog.Nop())

	svc.pass(context.Background())

	if warmer.count.Load() != 0 {
		t.Error("warmed requesters despite lister failure")
	}
}

func TestWarmerServiceConfigDefaults(t *testing.T) {
	svc := NewWarmerService(&fakeWarmer{}, &fakeLister{}, WarmerServiceConfig{}, zerolog.Nop())

	if svc.config.Interval != 10*time.Minute {
		t.Errorf("interval = %v, want 10m", svc.config.Interval)
	}
	if svc.config.Lookback != 24*time.Hour {
		t.Errorf("lookback = %v, want 24h", svc.config.Lookback)
	}
	if svc.config.MaxRequesters != 100 {
		t.Errorf("max requesters = %d, want 100", svc.config.MaxRequesters)
	}
}
