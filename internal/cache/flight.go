// Affinity - Recommendation & Insights Scoring Engine
// Copyright 2026 Meshkit Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meshkit/affinity

package cache

import (
	"context"
	"sync"
)

// Flight coalesces concurrent identical computations: when a computation
// for a key is already in flight, later callers attach to its result
// instead of recomputing.
//
// The computation runs on a context detached from the initiating caller,
// so it completes for the benefit of attached followers even when the
// initiator cancels or times out. The in-flight slot is released on every
// exit path, success or failure, so a failed computation never starves
// later requests for the same key.
type Flight struct {
	mu       sync.Mutex
	inFlight map[string]*flightCall
}

// flightCall is a single in-flight computation slot.
type flightCall struct {
	done    chan struct{}
	payload []byte
	err     error
}

// NewFlight creates an empty coalescing group.
func NewFlight() *Flight {
	return &Flight{inFlight: make(map[string]*flightCall)}
}

// Do runs compute for key, coalescing concurrent callers. The second
// return value reports whether this caller attached to an existing
// computation rather than initiating one.
//
// ctx only governs how long this caller waits: if it is canceled while
// attached, Do returns ctx.Err() but the computation itself continues
// and its slot is still released on completion.
func (f *Flight) Do(ctx context.Context, key string, compute func(ctx context.Context) ([]byte, error)) ([]byte, bool, error) {
	f.mu.Lock()
	if call, ok := f.inFlight[key]; ok {
		f.mu.Unlock()
		select {
		case <-call.done:
			return call.payload, true, call.err
		case <-ctx.Done():
			return nil, true, ctx.Err()
		}
	}

	call := &flightCall{done: make(chan struct{})}
	f.inFlight[key] = call
	f.mu.Unlock()

	// Detach from the initiating caller so followers still get a result
	// if the initiator goes away mid-computation.
	go func() {
		defer func() {
			f.mu.Lock()
			delete(f.inFlight, key)
			f.mu.Unlock()
			close(call.done)
		}()
		call.payload, call.err = compute(context.WithoutCancel(ctx))
	}()

	select {
	case <-call.done:
		return call.payload, false, call.err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// InFlight reports whether a computation for key is currently running.
func (f *Flight) InFlight(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.inFlight[key]
	return ok
}
