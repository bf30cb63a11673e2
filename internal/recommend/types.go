// Affinity - Recommendation & Insights Scoring Engine
// Copyright 2026 Meshkit Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meshkit/affinity

package recommend

import (
	"time"

	"github.com/meshkit/affinity/internal/recommend/scoring"
	"github.com/meshkit/affinity/internal/recommend/signals"
)

// Recommendation is the durable record feedback attaches to. Immutable
// once created; AlgorithmVersionID references the version that was
// active at creation time.
type Recommendation struct {
	// ID is the unique recommendation identifier.
	ID string `json:"id"`

	// RequesterID is the user the recommendation was computed for.
	RequesterID string `json:"requester_id"`

	// Domain is the recommendation category.
	Domain signals.Domain `json:"domain"`

	// CandidateID is the recommended entity.
	CandidateID string `json:"candidate_id"`

	// AggregateScore is the weighted combined score in [0,1].
	AggregateScore float64 `json:"aggregate_score"`

	// Confidence reflects the signal weight-mass available at scoring
	// time, in [0,1].
	Confidence float64 `json:"confidence"`

	// Reasoning lists contributing signals by descending weighted
	// contribution, as human-readable clauses.
	Reasoning []scoring.Reason `json:"reasoning"`

	// AlgorithmVersionID is the weight-vector version used.
	AlgorithmVersionID string `json:"algorithm_version_id"`

	// CreatedAt is when the recommendation was computed.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is when the recommendation stops being served.
	ExpiresAt time.Time `json:"expires_at"`
}

// TopSignal returns the highest-contributing signal key, or empty when
// nothing was scored. Used by the performance tracker to attribute
// acceptance to signals.
func (r *Recommendation) TopSignal() string {
	if len(r.Reasoning) == 0 {
		return ""
	}
	return r.Reasoning[0].Signal
}

// Batch is a ranked recommendation batch for one (domain, requester),
// the unit served to the API layer and stored in the cache.
type Batch struct {
	// Domain is the recommendation category.
	Domain signals.Domain `json:"domain"`

	// RequesterID is the user the batch was computed for.
	RequesterID string `json:"requester_id"`

	// Items is ranked by descending aggregate score.
	Items []Recommendation `json:"items"`

	// AlgorithmVersionID is the version every item was scored with.
	AlgorithmVersionID string `json:"algorithm_version_id"`

	// GeneratedAt is when the batch was computed.
	GeneratedAt time.Time `json:"generated_at"`

	// CandidatesConsidered is how many candidates were scored.
	CandidatesConsidered int `json:"candidates_considered"`
}

// Truncate returns a copy of the batch limited to n items.
func (b *Batch) Truncate(n int) *Batch {
	out := *b
	if n > 0 && len(b.Items) > n {
		out.Items = b.Items[:n]
	}
	return &out
}
