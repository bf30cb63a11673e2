// Affinity - Recommendation & Insights Scoring Engine
// Copyright 2026 Meshkit Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meshkit/affinity

// Package scoring combines normalized signal scores into an aggregate
// recommendation score, a confidence value and a ranked reasoning list,
// using the active algorithm version's weight vector.
//
// Scoring is pure and deterministic: identical weights and signals
// always produce the identical result. Extractor failures surface here
// as absent signal keys; the affected weights are dropped and the
// remainder renormalized, so one unavailable signal source degrades
// confidence instead of aborting the recommendation.
package scoring

import (
	"fmt"
	"math"
	"sort"
)

// Reason is one entry of the ranked reasoning list.
type Reason struct {
	// Signal is the signal key this clause derives from.
	Signal string `json:"signal"`

	// Contribution is the renormalized weighted score w'_i * S_i.
	Contribution float64 `json:"contribution"`

	// Description is a human-readable clause, e.g. "5 mutual connections".
	Description string `json:"description"`
}

// Result is the outcome of scoring one (requester, candidate) pair.
type Result struct {
	// Aggregate is the combined score in [0,1].
	Aggregate float64 `json:"aggregate"`

	// Confidence in [0,1] reflects how much signal weight-mass was
	// actually available: 1.0 when no signal was dropped, strictly less
	// as weight-mass is lost to extractor failures.
	Confidence float64 `json:"confidence"`

	// Reasoning lists signals by descending weighted contribution.
	Reasoning []Reason `json:"reasoning"`

	// DroppedSignals are weight-vector keys missing from the extractor
	// output (failed or never produced).
	DroppedSignals []string `json:"dropped_signals,omitempty"`
}

// Score combines the extractor output signals (possibly partial) under
// the weight vector weights. details optionally maps signal keys to
// human-readable clauses; signals without one get a generated clause.
//
// Signal keys present in signals but absent from weights are ignored:
// the weight vector is the authoritative signal set.
func Score(weights map[string]float64, signals map[string]float64, details map[string]string) Result {
	// Summation follows sorted key order: float addition is not
	// associative, so ranging over the map directly would make the
	// last-ulp of presentMass and the aggregate vary between calls.
	keys := make([]string, 0, len(weights))
	for key := range weights {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	presentMass := 0.0
	var dropped []string

	for _, key := range keys {
		if _, ok := signals[key]; ok {
			presentMass += weights[key]
		} else {
			dropped = append(dropped, key)
		}
	}

	if presentMass <= 0 {
		// Every signal failed: nothing to score.
		return Result{Aggregate: 0, Confidence: 0, DroppedSignals: dropped}
	}

	// With the full signal set the weights already sum to 1.0 by the
	// version manager's validation; dividing by the accumulated mass
	// would only inject rounding error, and confidence is exactly 1.0.
	full := len(dropped) == 0

	aggregate := 0.0
	reasoning := make([]Reason, 0, len(signals))

	for _, key := range keys {
		s, ok := signals[key]
		if !ok {
			continue
		}
		w := weights[key]
		if !full {
			w /= presentMass
		}
		contribution := w * clamp01(s)
		aggregate += contribution

		reasoning = append(reasoning, Reason{
			Signal:       key,
			Contribution: contribution,
			Description:  describe(key, s, details),
		})
	}

	// Descending by contribution; ties break on signal key so the order
	// is reproducible.
	sort.Slice(reasoning, func(i, j int) bool {
		if reasoning[i].Contribution != reasoning[j].Contribution {
			return reasoning[i].Contribution > reasoning[j].Contribution
		}
		return reasoning[i].Signal < reasoning[j].Signal
	})

	conf := 1.0
	if !full {
		conf = confidence(presentMass)
	}

	return Result{
		Aggregate:      clamp01(aggregate),
		Confidence:     conf,
		Reasoning:      reasoning,
		DroppedSignals: dropped,
	}
}

// confidence maps present weight-mass to a confidence value. The
// quadratic coverage factor penalizes missing high-weight signals more
// than linearly: losing a 0.4-weight signal costs far more confidence
// than losing a 0.1-weight one. Equals 1.0 at full mass and decreases
// strictly monotonically as mass is dropped.
func confidence(presentMass float64) float64 {
	m := clamp01(presentMass)
	return m * m
}

// describe renders a human-readable clause for a signal. Extractors may
// supply an exact clause ("5 mutual connections") via details; otherwise
// a qualitative one is generated from the normalized score.
func describe(key string, score float64, details map[string]string) string {
	if d, ok := details[key]; ok && d != "" {
		return d
	}
	return fmt.Sprintf("%s %s", strength(score), label(key))
}

// strength buckets a normalized score into a qualitative adverb.
func strength(score float64) string {
	switch {
	case score >= 0.75:
		return "strong"
	case score >= 0.4:
		return "moderate"
	case score > 0:
		return "weak"
	default:
		return "no"
	}
}

// label converts a signal key to prose: "mutual_connections" ->
// "mutual connections".
func label(key string) string {
	out := make([]byte, len(key))
	for i := 0; i < len(key); i++ {
		if key[i] == '_' {
			out[i] = ' '
		} else {
			out[i] = key[i]
		}
	}
	return string(out)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
