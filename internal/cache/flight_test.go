// Affinity - Recommendation & Insights Scoring Engine
// Copyright 2026 Meshkit Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meshkit/affinity

package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestFlightCoalescesConcurrentCallers(t *testing.T) {
	f := NewFlight()

	var computations atomic.Int32
	release := make(chan struct{})
	compute := func(ctx context.Context) ([]byte, error) {
		computations.Add(1)
		<-release
		return []byte("result"), nil
	}

	const callers = 10
	var (
		wg        sync.WaitGroup
		coalesced atomic.Int32
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			payload, attached, err := f.Do(context.Background(), "k", compute)
			if err != nil {
				t.Errorf("Do returned error: %v", err)
				return
			}
			if string(payload) != "result" {
				t.Errorf("payload = %q, want %q", payload, "result")
			}
			if attached {
				coalesced.Add(1)
			}
		}()
	}

	// Let every caller reach the slot before releasing the computation.
	for f.InFlight("k") == false {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := computations.Load(); got != 1 {
		t.Errorf("compute ran %d times, want 1", got)
	}
	if got := coalesced.Load(); got != callers-1 {
		t.Errorf("%d callers coalesced, want %d", got, callers-1)
	}
}

func TestFlightReleasesSlotAfterFailure(t *testing.T) {
	f := NewFlight()
	wantErr := errors.New("source down")

	_, _, err := f.Do(context.Background(), "k", func(ctx context.Context) ([]byte, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}

	// The failed slot must not starve later requests.
	for f.InFlight("k") {
		time.Sleep(time.Millisecond)
	}
	payload, attached, err := f.Do(context.Background(), "k", func(ctx context.Context) ([]byte, error) {
		return []byte("recovered"), nil
	})
	if err != nil {
		t.Fatalf("second Do failed: %v", err)
	}
	if attached {
		t.Error("second Do attached to a slot that should be gone")
	}
	if string(payload) != "recovered" {
		t.Errorf("payload = %q, want %q", payload, "recovered")
	}
}

func TestFlightInitiatorCancelDoesNotAbortComputation(t *testing.T) {
	f := NewFlight()

	started := make(chan struct{})
	release := make(chan struct{})
	compute := func(ctx context.Context) ([]byte, error) {
		close(started)
		select {
		case <-release:
			return []byte("late result"), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	initCtx, cancelInit := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _, err := f.Do(initCtx, "k", compute)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("initiator err = %v, want context.Canceled", err)
		}
	}()

	<-started

	// A follower attaches before the initiator cancels.
	followerDone := make(chan struct{})
	go func() {
		defer close(followerDone)
		payload, attached, err := f.Do(context.Background(), "k", compute)
		if err != nil {
			t.Errorf("follower err = %v", err)
			return
		}
		if !attached {
			t.Error("follower did not attach to the in-flight slot")
		}
		if string(payload) != "late result" {
			t.Errorf("follower payload = %q, want computation result", payload)
		}
	}()

	time.Sleep(10 * time.Millisecond)
	cancelInit()
	wg.Wait()

	// The detached computation still completes for the follower.
	close(release)
	<-followerDone

	for f.InFlight("k") {
		time.Sleep(time.Millisecond)
	}
}

func TestFlightDistinctKeysDoNotCoalesce(t *testing.T) {
	f := NewFlight()

	var computations atomic.Int32
	compute := func(ctx context.Context) ([]byte, error) {
		computations.Add(1)
		return []byte("x"), nil
	}

	var wg sync.WaitGroup
	for _, key := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(k string) {
			defer wg.Done()
			if _, _, err := f.Do(context.Background(), k, compute); err != nil {
				t.Errorf("Do(%q) failed: %v", k, err)
			}
		}(key)
	}
	wg.Wait()

	if got := computations.Load(); got != 3 {
		t.Errorf("compute ran %d times, want 3 for distinct keys", got)
	}
}
