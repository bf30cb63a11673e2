// Affinity - Recommendation & Insights Scoring Engine
// Copyright 2026 Meshkit Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meshkit/affinity

// Package signals extracts normalized similarity/affinity sub-scores for
// a (requester, candidate) pair, one extractor per recommendation
// domain.
//
// Extractors never fail for "no data": empty relational data normalizes
// to a legitimate 0.0 score. A signal is only marked failed when its data
// source times out or is unavailable, which the scoring engine treats as
// a dropped weight, distinguishable from a zero score.
package signals

import (
	"context"
	"time"

	"github.com/meshkit/affinity/internal/metrics"
)

// Result is the output of one extraction: normalized scores in [0,1]
// keyed by signal, optional human-readable detail clauses, and per-signal
// failure markers for timed-out or unavailable sources.
type Result struct {
	Scores  map[string]float64
	Details map[string]string
	Failed  map[string]error
}

// newResult allocates an empty Result.
func newResult() Result {
	return Result{
		Scores:  make(map[string]float64),
		Details: make(map[string]string),
		Failed:  make(map[string]error),
	}
}

// markAllFailed marks every key of the domain schema failed with err.
// Used when the shared facts query for the pair fails as a whole.
func (r *Result) markAllFailed(domain Domain, err error) {
	for _, key := range Schema(domain) {
		r.Failed[key] = err
	}
}

// Extractor produces signal scores for one domain.
type Extractor interface {
	// Domain returns the recommendation domain this extractor serves.
	Domain() Domain

	// Extract returns normalized scores for the pair. Partial results
	// with Failed markers are expected under degradation; Extract itself
	// returns an error only for programmer mistakes (unknown domain).
	Extract(ctx context.Context, requesterID, candidateID string) (Result, error)
}

// EntitySource is the read-only query interface into the external entity
// data layer (profiles, relationship graphs, groups, content, advisors).
// The engine issues point queries per extractor call and never mutates
// entity data.
//
// Connection facts are split across three queries (graph, interests,
// location) because they live in different stores; each can fail
// independently, degrading only its own signals.
type EntitySource interface {
	// Candidates returns candidate entity IDs for a requester in a
	// domain, excluding existing relationships.
	Candidates(ctx context.Context, domain Domain, requesterID string, limit int) ([]string, error)

	GraphFacts(ctx context.Context, requesterID, candidateID string) (GraphFacts, error)
	InterestFacts(ctx context.Context, requesterID, candidateID string) (InterestFacts, error)
	LocationFacts(ctx context.Context, requesterID, candidateID string) (LocationFacts, error)
	GroupFacts(ctx context.Context, requesterID, groupID string) (GroupFacts, error)
	ContentFacts(ctx context.Context, requesterID, contentID string) (ContentFacts, error)
	AdvisoryFacts(ctx context.Context, requesterID, advisorID string) (AdvisoryFacts, error)
}

// GraphFacts are relationship-graph facts for a (requester, candidate) pair.
type GraphFacts struct {
	MutualConnections int
	ActivityOverlap   float64 // fraction of co-active days, already [0,1]
}

// InterestFacts are profile-interest facts for a pair.
type InterestFacts struct {
	SharedInterests    int
	RequesterInterests int
}

// LocationFacts are geographic facts for a pair.
type LocationFacts struct {
	DistanceKm float64
	Known      bool // false when either profile has no location
}

// GroupFacts are the raw facts behind group signals.
type GroupFacts struct {
	InterestMatch    float64 // Jaccard of requester interests vs group topics, [0,1]
	ConnectedMembers int     // requester's connections already in the group
	MemberCount      int
	WeeklyPosts      float64
}

// ContentFacts are the raw facts behind content signals.
type ContentFacts struct {
	TopicRelevance     float64 // [0,1]
	AuthorConnected    bool
	AuthorInteractions int // requester's past interactions with the author
	EngagementsPerHour float64
	AgeHours           float64
}

// AdvisoryFacts are the raw facts behind advisory signals.
type AdvisoryFacts struct {
	ExpertiseMatch  float64 // [0,1]
	SeniorityGapYrs int
	IndustryOverlap float64 // [0,1]
	OpenSlots       int
}

// Runner executes an extractor under the per-extractor timeout and
// records extraction metrics. All engine extractions go through Run.
type Runner struct {
	timeout time.Duration
}

// NewRunner creates a Runner with the given per-extractor timeout
// (default 200ms when non-positive).
func NewRunner(timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 200 * time.Millisecond
	}
	return &Runner{timeout: timeout}
}

// Run invokes the extractor with a bounded context. On deadline expiry
// the extractor's own Failed markers report which signals were lost.
func (r *Runner) Run(ctx context.Context, ex Extractor, requesterID, candidateID string) (Result, error) {
	start := time.Now()
	exCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := ex.Extract(exCtx, requesterID, candidateID)
	metrics.ExtractorDuration.WithLabelValues(string(ex.Domain())).Observe(time.Since(start).Seconds())

	for signal := range res.Failed {
		metrics.ExtractorFailures.WithLabelValues(string(ex.Domain()), signal).Inc()
	}

	return res, err
}
