// Affinity - Recommendation & Insights Scoring Engine
// Copyright 2026 Meshkit Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meshkit/affinity

// Package metrics provides Prometheus instrumentation for the scoring
// engine: request throughput and latency, cache efficiency, extractor
// degradation, version activations, feedback ingestion and the periodic
// aggregation job.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Recommendation request metrics
	RecommendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affinity_recommend_requests_total",
			Help: "Total recommendation requests by domain and outcome",
		},
		[]string{"domain", "outcome"}, // "hit", "computed", "coalesced", "error"
	)

	RecommendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "affinity_recommend_duration_seconds",
			Help:    "End-to-end recommendation latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"domain"},
	)

	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affinity_cache_hits_total",
			Help: "Total cache hits by key namespace",
		},
		[]string{"namespace"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affinity_cache_misses_total",
			Help: "Total cache misses by key namespace",
		},
		[]string{"namespace"},
	)

	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "affinity_cache_evictions_total",
			Help: "Total cache entries evicted (expired or invalidated)",
		},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "affinity_cache_entries",
			Help: "Current number of live cache entries",
		},
	)

	// Signal extractor metrics
	ExtractorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "affinity_extractor_duration_seconds",
			Help:    "Signal extractor call duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.2, 0.5},
		},
		[]string{"domain"},
	)

	ExtractorFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affinity_extractor_failures_total",
			Help: "Signal extraction failures (timeouts or unavailability) by domain and signal",
		},
		[]string{"domain", "signal"},
	)

	// Algorithm version metrics
	VersionActivations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affinity_version_activations_total",
			Help: "Algorithm version activations by domain and result",
		},
		[]string{"domain", "result"}, // "ok", "conflict"
	)

	ActiveVersionRevision = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "affinity_active_version_revision",
			Help: "Activation revision counter per domain (increments on each swap)",
		},
		[]string{"domain"},
	)

	// Insight metrics
	InsightDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "affinity_insight_duration_seconds",
			Help:    "Insight computation duration in seconds by type",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"type"},
	)

	// Feedback metrics
	FeedbackSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affinity_feedback_submissions_total",
			Help: "Feedback submissions by action",
		},
		[]string{"action"},
	)

	// Performance tracker metrics
	TrackerRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affinity_tracker_runs_total",
			Help: "Performance tracker aggregation runs by result",
		},
		[]string{"result"}, // "ok", "empty", "error"
	)

	TrackerSnapshots = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "affinity_tracker_snapshots_total",
			Help: "Performance snapshots written by the aggregation job",
		},
	)

	// Circuit breaker metrics for the entity data source
	EntitySourceBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "affinity_entity_source_breaker_state",
			Help: "Entity source circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	EntitySourceRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affinity_entity_source_requests_total",
			Help: "Entity source requests by result",
		},
		[]string{"result"}, // "ok", "failure", "rejected"
	)
)
