// Affinity - Recommendation & Insights Scoring Engine
// Copyright 2026 Meshkit Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meshkit/affinity

package version

import (
	"context"
	"errors"
	"fmt"

	"github.com/meshkit/affinity/internal/recommend/signals"
)

// baselineTag names the version seeded for a domain that has none.
const baselineTag = "v1-baseline"

// defaultWeights are the hand-tuned starting vectors per domain. They
// sum to exactly 1.0 and cover each domain's full signal schema.
var defaultWeights = map[signals.Domain]map[string]float64{
	signals.DomainConnection: {
		signals.SignalMutualConnections: 0.4,
		signals.SignalSharedInterests:   0.3,
		signals.SignalActivityOverlap:   0.2,
		signals.SignalLocationProximity: 0.1,
	},
	signals.DomainGroup: {
		signals.SignalInterestMatch: 0.35,
		signals.SignalMemberOverlap: 0.25,
		signals.SignalActivityLevel: 0.25,
		signals.SignalSizeFit:       0.15,
	},
	signals.DomainContent: {
		signals.SignalTopicRelevance:     0.4,
		signals.SignalAuthorAffinity:     0.25,
		signals.SignalEngagementVelocity: 0.2,
		signals.SignalRecency:            0.15,
	},
	signals.DomainAdvisory: {
		signals.SignalExpertiseMatch:  0.4,
		signals.SignalIndustryOverlap: 0.25,
		signals.SignalSeniorityGap:    0.2,
		signals.SignalAvailability:    0.15,
	},
}

// DefaultWeights returns a copy of the baseline weight vector for a
// domain, or nil for an unknown domain.
func DefaultWeights(domain signals.Domain) map[string]float64 {
	w, ok := defaultWeights[domain]
	if !ok {
		return nil
	}
	out := make(map[string]float64, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// EnsureDefaults creates and activates a baseline version for every
// domain that currently has no active version. Domains with an active
// version are left untouched, so restarts never clobber tuned weights.
func (m *Manager) EnsureDefaults(ctx context.Context) error {
	for _, domain := range signals.Domains() {
		_, revision, err := m.Active(domain)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNoActiveVersion) {
			return fmt.Errorf("check active version for %s: %w", domain, err)
		}

		v, err := m.Create(ctx, domain, baselineTag, DefaultWeights(domain))
		if err != nil {
			return fmt.Errorf("create baseline version for %s: %w", domain, err)
		}
		if err := m.Activate(ctx, domain, v.ID, revision); err != nil {
			return fmt.Errorf("activate baseline version for %s: %w", domain, err)
		}
	}
	return nil
}
