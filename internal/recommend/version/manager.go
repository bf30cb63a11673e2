// Affinity - Recommendation & Insights Scoring Engine
// Copyright 2026 Meshkit Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meshkit/affinity

// Package version manages named weight-vector configurations (algorithm
// versions) per recommendation domain.
//
// Versions are append-only: deactivated versions are retained forever so
// historical recommendations stay attributable. Each domain has exactly
// one active version; activation is a single atomic pointer swap guarded
// by an optimistic revision counter, so a concurrent activation loses
// with ErrConflict instead of silently overwriting.
package version

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/meshkit/affinity/internal/metrics"
	"github.com/meshkit/affinity/internal/recommend/signals"
)

// WeightTolerance is the allowed deviation of a weight vector's sum from 1.0.
const WeightTolerance = 1e-6

var (
	// ErrConflict reports that a concurrent activation changed the
	// domain's active pointer between the caller's read and write. The
	// loser must re-read and retry against current state.
	ErrConflict = errors.New("concurrent activation conflict")

	// ErrNotFound reports an unknown version ID.
	ErrNotFound = errors.New("algorithm version not found")

	// ErrNoActiveVersion reports that a domain has no active version.
	ErrNoActiveVersion = errors.New("no active algorithm version")
)

// AlgorithmVersion is one named weight-vector configuration for a domain.
// Immutable once created.
type AlgorithmVersion struct {
	ID         string             `json:"id"`
	Domain     signals.Domain     `json:"domain"`
	VersionTag string             `json:"version_tag"`
	Weights    map[string]float64 `json:"weights"`
	Active     bool               `json:"active"`
	CreatedAt  time.Time          `json:"created_at"`
}

// Store persists versions and per-domain active pointers. Implementations
// must tolerate replays of the same write (Load rebuilds state at startup).
type Store interface {
	SaveVersion(ctx context.Context, v *AlgorithmVersion) error
	SaveActive(ctx context.Context, domain signals.Domain, versionID string) error
	Load(ctx context.Context) ([]*AlgorithmVersion, map[signals.Domain]string, error)
}

// domainState is the arena + active index for one domain.
type domainState struct {
	versions []*AlgorithmVersion // append-only arena
	byID     map[string]*AlgorithmVersion
	activeID string
	revision uint64 // bumped on every successful activation
}

// Manager holds all algorithm versions and serves the active weight
// vector per domain. Safe for concurrent use.
type Manager struct {
	mu      sync.RWMutex
	domains map[signals.Domain]*domainState
	store   Store
	logger  zerolog.Logger
}

// NewManager creates a Manager backed by store, rebuilding in-memory
// state from it.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewManager(ctx context.Context, store Store, logger zerolog.Logger) (*Manager, error) {
	m := &Manager{
		domains: make(map[signals.Domain]*domainState),
		store:   store,
		logger:  logger.With().Str("component", "version").Logger(),
	}
	for _, d := range signals.Domains() {
		m.domains[d] = &domainState{byID: make(map[string]*AlgorithmVersion)}
	}

	versions, active, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load versions: %w", err)
	}

	sort.Slice(versions, func(i, j int) bool {
		return versions[i].CreatedAt.Before(versions[j].CreatedAt)
	})
	for _, v := range versions {
		ds, ok := m.domains[v.Domain]
		if !ok {
			m.logger.Warn().Str("domain", string(v.Domain)).Str("version", v.ID).Msg("skipping version for unknown domain")
			continue
		}
		ds.versions = append(ds.versions, v)
		ds.byID[v.ID] = v
	}
	for domain, id := range active {
		ds, ok := m.domains[domain]
		if !ok {
			continue
		}
		if v, ok := ds.byID[id]; ok {
			ds.activeID = id
			v.Active = true
		}
	}

	return m, nil
}

// Create validates and registers a new, inactive version for a domain.
// The weight vector must cover the domain's signal schema exactly, with
// non-negative weights summing to 1.0 within WeightTolerance.
func (m *Manager) Create(ctx context.Context, domain signals.Domain, tag string, weights map[string]float64) (*AlgorithmVersion, error) {
	if err := ValidateWeights(domain, weights); err != nil {
		return nil, err
	}

	// Copy so later caller mutations cannot corrupt a registered version.
	w := make(map[string]float64, len(weights))
	for k, v := range weights {
		w[k] = v
	}

	v := &AlgorithmVersion{
		ID:         uuid.NewString(),
		Domain:     domain,
		VersionTag: tag,
		Weights:    w,
		CreatedAt:  time.Now().UTC(),
	}

	if err := m.store.SaveVersion(ctx, v); err != nil {
		return nil, fmt.Errorf("save version: %w", err)
	}

	m.mu.Lock()
	ds := m.domains[domain]
	ds.versions = append(ds.versions, v)
	ds.byID[v.ID] = v
	m.mu.Unlock()

	m.logger.Info().
		Str("domain", string(domain)).
		Str("version", v.ID).
		Str("tag", tag).
		Msg("created algorithm version")

	return v, nil
}

// Activate atomically swaps the domain's active pointer to versionID.
// expectedRevision is the revision observed by the caller (via Active or
// Revision); if another activation moved it since, ErrConflict is
// returned and nothing changes.
func (m *Manager) Activate(ctx context.Context, domain signals.Domain, versionID string, expectedRevision uint64) error {
	m.mu.Lock()
	ds, ok := m.domains[domain]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("unknown domain %q", domain)
	}

	if ds.revision != expectedRevision {
		m.mu.Unlock()
		metrics.VersionActivations.WithLabelValues(string(domain), "conflict").Inc()
		return fmt.Errorf("%w: revision %d, expected %d", ErrConflict, ds.revision, expectedRevision)
	}

	next, ok := ds.byID[versionID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, versionID)
	}

	prevID := ds.activeID
	if prev, ok := ds.byID[prevID]; ok {
		prev.Active = false
	}
	next.Active = true
	ds.activeID = versionID
	ds.revision++
	revision := ds.revision
	m.mu.Unlock()

	// Persist outside the lock; the in-memory swap is the serving truth
	// and a store failure is surfaced to the admin caller for retry.
	if err := m.store.SaveActive(ctx, domain, versionID); err != nil {
		return fmt.Errorf("persist active pointer: %w", err)
	}

	metrics.VersionActivations.WithLabelValues(string(domain), "ok").Inc()
	metrics.ActiveVersionRevision.WithLabelValues(string(domain)).Set(float64(revision))

	m.logger.Info().
		Str("domain", string(domain)).
		Str("version", versionID).
		Str("previous", prevID).
		Uint64("revision", revision).
		Msg("activated algorithm version")

	return nil
}

// Active returns the domain's active version and the current activation
// revision, or ErrNoActiveVersion. The returned version is shared and
// must not be mutated.
func (m *Manager) Active(domain signals.Domain) (*AlgorithmVersion, uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ds, ok := m.domains[domain]
	if !ok {
		return nil, 0, fmt.Errorf("unknown domain %q", domain)
	}
	v, ok := ds.byID[ds.activeID]
	if !ok {
		return nil, ds.revision, fmt.Errorf("%w: domain %s", ErrNoActiveVersion, domain)
	}
	return v, ds.revision, nil
}

// Get returns a version by ID.
func (m *Manager) Get(domain signals.Domain, versionID string) (*AlgorithmVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ds, ok := m.domains[domain]
	if !ok {
		return nil, fmt.Errorf("unknown domain %q", domain)
	}
	v, ok := ds.byID[versionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, versionID)
	}
	return v, nil
}

// List returns all versions for a domain in creation order.
func (m *Manager) List(domain signals.Domain) []*AlgorithmVersion {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ds, ok := m.domains[domain]
	if !ok {
		return nil
	}
	out := make([]*AlgorithmVersion, len(ds.versions))
	copy(out, ds.versions)
	return out
}

// ValidateWeights checks a weight vector against the domain's signal
// schema: exact key coverage, non-negative entries, sum 1.0 ± tolerance.
func ValidateWeights(domain signals.Domain, weights map[string]float64) error {
	schema := signals.Schema(domain)
	if schema == nil {
		return fmt.Errorf("unknown domain %q", domain)
	}

	if len(weights) != len(schema) {
		return fmt.Errorf("weight vector for %s must have exactly %d entries, got %d",
			domain, len(schema), len(weights))
	}

	sum := 0.0
	for _, key := range schema {
		w, ok := weights[key]
		if !ok {
			return fmt.Errorf("weight vector for %s missing signal %q", domain, key)
		}
		if w < 0 {
			return fmt.Errorf("weight for %q must be non-negative, got %f", key, w)
		}
		sum += w
	}

	if math.Abs(sum-1.0) > WeightTolerance {
		return fmt.Errorf("weights for %s must sum to 1.0 (±%g), got %f", domain, WeightTolerance, sum)
	}

	return nil
}
