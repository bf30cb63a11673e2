// Affinity - Recommendation & Insights Scoring Engine
// Copyright 2026 Meshkit Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meshkit/affinity

// Package recommend contains the recommendation orchestrator: the entry
// point that checks the cache, coalesces concurrent identical requests
// into one computation, runs signal extraction and scoring under the
// active algorithm version, persists the result and fills the cache.
//
// Request lifecycle per key ("{domain}:{requester_id}"):
//
//	cache lookup -> hit (terminal)
//	            -> miss -> single-flight compute -> persist -> cache fill
//
// The orchestrator holds no lock across extractor, store or cache I/O;
// the only cross-request coordination is the per-key in-flight slot,
// released on every exit path.
package recommend

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/meshkit/affinity/internal/cache"
	"github.com/meshkit/affinity/internal/config"
	"github.com/meshkit/affinity/internal/metrics"
	"github.com/meshkit/affinity/internal/recommend/scoring"
	"github.com/meshkit/affinity/internal/recommend/signals"
	"github.com/meshkit/affinity/internal/recommend/version"
)

// RecommendationStore persists computed recommendation rows. Typically
// implemented by the storage layer.
type RecommendationStore interface {
	// SaveBatch persists the batch's recommendation rows.
	SaveBatch(ctx context.Context, batch *Batch) error
}

// Engine is the recommendation orchestrator. Safe for concurrent use.
type Engine struct {
	cfg        config.EngineConfig
	logger     zerolog.Logger
	source     signals.EntitySource
	extractors map[signals.Domain]signals.Extractor
	runner     *signals.Runner
	versions   *version.Manager
	store      RecommendationStore
	cache      *cache.Cache
	flight     *cache.Flight
}

// NewEngine creates the orchestrator with the default extractor set.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewEngine(
	cfg config.EngineConfig,
	source signals.EntitySource,
	versions *version.Manager,
	store RecommendationStore,
	c *cache.Cache,
	logger zerolog.Logger,
) *Engine {
	return &Engine{
		cfg:    cfg,
		logger: logger.With().Str("component", "engine").Logger(),
		source: source,
		extractors: map[signals.Domain]signals.Extractor{
			signals.DomainConnection: signals.NewConnectionExtractor(source),
			signals.DomainGroup:      signals.NewGroupExtractor(source),
			signals.DomainContent:    signals.NewContentExtractor(source),
			signals.DomainAdvisory:   signals.NewAdvisoryExtractor(source),
		},
		runner:   signals.NewRunner(cfg.ExtractorTimeout),
		versions: versions,
		store:    store,
		cache:    c,
		flight:   cache.NewFlight(),
	}
}

// CacheKey is the cache key for a (domain, requester) batch.
func CacheKey(domain signals.Domain, requesterID string) string {
	return fmt.Sprintf("%s:%s", domain, requesterID)
}

// Recommend returns the ranked recommendation batch for a requester in a
// domain, limited to limit items (engine default when zero).
//
// On cache miss, concurrent identical requests coalesce into a single
// computation; the computation outlives the initiating caller's context
// so attached followers always get a result. When the domain has no
// active algorithm version, Recommend fails closed with
// ErrAlgorithmUnavailable and an empty batch.
func (e *Engine) Recommend(ctx context.Context, domain signals.Domain, requesterID string, limit int) (*Batch, error) {
	start := time.Now()
	limit = e.clampLimit(limit)

	if _, ok := e.extractors[domain]; !ok {
		return nil, fmt.Errorf("unknown domain %q", domain)
	}

	key := CacheKey(domain, requesterID)
	logger := e.logger.With().Str("domain", string(domain)).Str("requester", requesterID).Logger()

	if payload, ok := e.cache.Get(key); ok {
		batch, err := decodeBatch(payload)
		if err == nil {
			metrics.RecommendRequestsTotal.WithLabelValues(string(domain), "hit").Inc()
			metrics.RecommendDuration.WithLabelValues(string(domain)).Observe(time.Since(start).Seconds())
			logger.Debug().Msg("cache hit")
			return batch.Truncate(limit), nil
		}
		// A corrupt entry behaves as a miss; drop it so the next write
		// replaces it.
		logger.Warn().Err(err).Msg("dropping undecodable cache entry")
		e.cache.Invalidate(key)
	}

	payload, coalesced, err := e.flight.Do(ctx, key, func(computeCtx context.Context) ([]byte, error) {
		return e.compute(computeCtx, domain, requesterID)
	})
	if err != nil {
		metrics.RecommendRequestsTotal.WithLabelValues(string(domain), "error").Inc()
		if coalesced {
			logger.Debug().Err(err).Msg("coalesced request failed")
		}
		return e.emptyBatch(domain, requesterID), err
	}

	outcome := "computed"
	if coalesced {
		outcome = "coalesced"
	}
	metrics.RecommendRequestsTotal.WithLabelValues(string(domain), outcome).Inc()
	metrics.RecommendDuration.WithLabelValues(string(domain)).Observe(time.Since(start).Seconds())

	batch, err := decodeBatch(payload)
	if err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}

	logger.Debug().
		Int("items", len(batch.Items)).
		Bool("coalesced", coalesced).
		Dur("latency", time.Since(start)).
		Msg("recommendation complete")

	return batch.Truncate(limit), nil
}

// compute runs the full pipeline for one key: version lookup, candidate
// fetch, per-candidate extraction + scoring, persistence, cache fill.
// It runs detached from the initiating caller under its own timeout.
func (e *Engine) compute(ctx context.Context, domain signals.Domain, requesterID string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ComputeTimeout)
	defer cancel()

	active, _, err := e.versions.Active(domain)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAlgorithmUnavailable, err)
	}

	candidates, err := e.source.Candidates(ctx, domain, requesterID, e.cfg.MaxCandidates)
	if err != nil {
		return nil, fmt.Errorf("fetch candidates: %w", err)
	}

	now := time.Now().UTC()
	batch := &Batch{
		Domain:               domain,
		RequesterID:          requesterID,
		AlgorithmVersionID:   active.ID,
		GeneratedAt:          now,
		CandidatesConsidered: len(candidates),
		Items:                make([]Recommendation, 0, len(candidates)),
	}

	extractor := e.extractors[domain]
	for _, candidateID := range candidates {
		res, err := e.runner.Run(ctx, extractor, requesterID, candidateID)
		if err != nil {
			return nil, fmt.Errorf("extract %s/%s: %w", domain, candidateID, err)
		}

		result := scoring.Score(active.Weights, res.Scores, res.Details)
		if result.Confidence == 0 {
			// Every signal failed for this pair; nothing defensible to rank.
			continue
		}

		batch.Items = append(batch.Items, Recommendation{
			ID:                 uuid.NewString(),
			RequesterID:        requesterID,
			Domain:             domain,
			CandidateID:        candidateID,
			AggregateScore:     result.Aggregate,
			Confidence:         result.Confidence,
			Reasoning:          result.Reasoning,
			AlgorithmVersionID: active.ID,
			CreatedAt:          now,
			ExpiresAt:          now.Add(e.cfg.RecommendationTTL),
		})
	}

	sort.SliceStable(batch.Items, func(i, j int) bool {
		return batch.Items[i].AggregateScore > batch.Items[j].AggregateScore
	})
	if len(batch.Items) > e.cfg.MaxLimit {
		batch.Items = batch.Items[:e.cfg.MaxLimit]
	}

	if err := e.store.SaveBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("persist batch: %w", err)
	}

	payload, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}

	e.cache.Set(CacheKey(domain, requesterID), payload, e.cfg.RecommendationTTL)
	return payload, nil
}

// InvalidateRequester clears cached batches for a requester across all
// domains, typically after a relevant entity mutation (new connection,
// new content).
func (e *Engine) InvalidateRequester(requesterID string) {
	for _, domain := range signals.Domains() {
		e.cache.Invalidate(CacheKey(domain, requesterID))
	}
}

// clampLimit applies default and maximum result limits.
func (e *Engine) clampLimit(limit int) int {
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}
	if limit > e.cfg.MaxLimit {
		limit = e.cfg.MaxLimit
	}
	return limit
}

// emptyBatch is the fail-closed response shape.
func (e *Engine) emptyBatch(domain signals.Domain, requesterID string) *Batch {
	return &Batch{
		Domain:      domain,
		RequesterID: requesterID,
		Items:       []Recommendation{},
		GeneratedAt: time.Now().UTC(),
	}
}

func decodeBatch(payload []byte) (*Batch, error) {
	var batch Batch
	if err := json.Unmarshal(payload, &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}
