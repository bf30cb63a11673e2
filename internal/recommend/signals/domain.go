// Affinity - Recommendation & Insights Scoring Engine
// Copyright 2026 Meshkit Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meshkit/affinity

package signals

import "fmt"

// Domain is a recommendation category.
type Domain string

const (
	// DomainConnection recommends people to connect with.
	DomainConnection Domain = "connection"
	// DomainGroup recommends groups to join.
	DomainGroup Domain = "group"
	// DomainContent recommends content to read.
	DomainContent Domain = "content"
	// DomainAdvisory recommends advisor/advisee pairings.
	DomainAdvisory Domain = "advisory"
)

// Domains lists all known domains in a stable order.
func Domains() []Domain {
	return []Domain{DomainConnection, DomainGroup, DomainContent, DomainAdvisory}
}

// ParseDomain validates a domain string.
func ParseDomain(s string) (Domain, error) {
	switch Domain(s) {
	case DomainConnection, DomainGroup, DomainContent, DomainAdvisory:
		return Domain(s), nil
	default:
		return "", fmt.Errorf("unknown domain %q", s)
	}
}

// Signal keys per domain. The schema below is the authoritative signal
// set a weight vector for that domain must cover exactly.
const (
	SignalMutualConnections = "mutual_connections"
	SignalSharedInterests   = "shared_interests"
	SignalActivityOverlap   = "activity_overlap"
	SignalLocationProximity = "location_proximity"

	SignalInterestMatch = "interest_match"
	SignalMemberOverlap = "member_overlap"
	SignalActivityLevel = "activity_level"
	SignalSizeFit       = "size_fit"

	SignalTopicRelevance     = "topic_relevance"
	SignalAuthorAffinity     = "author_affinity"
	SignalEngagementVelocity = "engagement_velocity"
	SignalRecency            = "recency"

	SignalExpertiseMatch  = "expertise_match"
	SignalSeniorityGap    = "seniority_gap"
	SignalIndustryOverlap = "industry_overlap"
	SignalAvailability    = "availability"
)

// schemas maps each domain to its expected signal keys.
var schemas = map[Domain][]string{
	DomainConnection: {
		SignalMutualConnections,
		SignalSharedInterests,
		SignalActivityOverlap,
		SignalLocationProximity,
	},
	DomainGroup: {
		SignalInterestMatch,
		SignalMemberOverlap,
		SignalActivityLevel,
		SignalSizeFit,
	},
	DomainContent: {
		SignalTopicRelevance,
		SignalAuthorAffinity,
		SignalEngagementVelocity,
		SignalRecency,
	},
	DomainAdvisory: {
		SignalExpertiseMatch,
		SignalSeniorityGap,
		SignalIndustryOverlap,
		SignalAvailability,
	},
}

// Schema returns the expected signal keys for a domain. The returned
// slice is a copy; callers may not mutate the schema.
func Schema(domain Domain) []string {
	keys, ok := schemas[domain]
	if !ok {
		return nil
	}
	out := make([]string, len(keys))
	copy(out, keys)
	return out
}
