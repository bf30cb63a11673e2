// Affinity - Recommendation & Insights Scoring Engine
// Copyright 2026 Meshkit Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meshkit/affinity

// Package feedback records user actions against recommendations and
// periodically aggregates them into per-version performance snapshots.
//
// The feedback log is append-only and its writes are lock-free; a later
// submission for the same (recommendation, requester) supersedes earlier
// ones at aggregation time, which gives Submit upsert semantics without
// read-modify-write on the hot path.
package feedback

import (
	"time"

	"github.com/meshkit/affinity/internal/recommend/signals"
)

// Action is a user's response to a recommendation.
type Action string

const (
	// ActionAccept means the user followed the recommendation.
	ActionAccept Action = "accept"
	// ActionReject means the user dismissed it.
	ActionReject Action = "reject"
	// ActionIgnore means the user saw it and did nothing.
	ActionIgnore Action = "ignore"
)

// Feedback is one row of the append-only feedback log.
type Feedback struct {
	RecommendationID string    `json:"recommendation_id"`
	RequesterID      string    `json:"requester_id"`
	Action           Action    `json:"action"`
	Rating           int       `json:"rating,omitempty"` // 1..5, 0 = unrated
	Comment          string    `json:"comment,omitempty"`
	SubmittedAt      time.Time `json:"submitted_at"`
}

// Snapshot is the derived performance record for one
// (domain, algorithm version, period). Written only by the aggregation
// job, never by user action.
type Snapshot struct {
	Domain             signals.Domain `json:"domain"`
	AlgorithmVersionID string         `json:"algorithm_version_id"`
	PeriodStart        time.Time      `json:"period_start"`
	PeriodEnd          time.Time      `json:"period_end"`

	Total    int64 `json:"total"`
	Accepted int64 `json:"accepted"`
	Rejected int64 `json:"rejected"`
	Ignored  int64 `json:"ignored"`

	// AverageRating is the mean of rated feedback, 0 when none was rated.
	AverageRating float64 `json:"average_rating"`

	// AcceptanceRate is Accepted/Total, 0 when Total is 0.
	AcceptanceRate float64 `json:"acceptance_rate"`

	// SignalAccepts counts accepted recommendations by their
	// top-contributing signal, feeding weight retuning.
	SignalAccepts map[string]int64 `json:"signal_accepts,omitempty"`
}
