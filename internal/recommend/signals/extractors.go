// Affinity - Recommendation & Insights Scoring Engine
// Copyright 2026 Meshkit Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meshkit/affinity

package signals

import (
	"context"
	"fmt"
	"math"
)

// ConnectionExtractor produces connection-domain signals from the
// relationship graph, profile interests and location data.
type ConnectionExtractor struct {
	source EntitySource
}

// NewConnectionExtractor creates a connection extractor.
func NewConnectionExtractor(source EntitySource) *ConnectionExtractor {
	return &ConnectionExtractor{source: source}
}

// Domain implements Extractor.
func (e *ConnectionExtractor) Domain() Domain { return DomainConnection }

// Extract queries graph, interest and location facts independently so an
// outage of one store degrades only its own signals.
func (e *ConnectionExtractor) Extract(ctx context.Context, requesterID, candidateID string) (Result, error) {
	res := newResult()

	if facts, err := e.source.GraphFacts(ctx, requesterID, candidateID); err != nil {
		res.Failed[SignalMutualConnections] = err
		res.Failed[SignalActivityOverlap] = err
	} else {
		res.Scores[SignalMutualConnections] = saturate(facts.MutualConnections, 1)
		res.Details[SignalMutualConnections] = fmt.Sprintf("%d mutual connections", facts.MutualConnections)
		res.Scores[SignalActivityOverlap] = clamp01(facts.ActivityOverlap)
	}

	if facts, err := e.source.InterestFacts(ctx, requesterID, candidateID); err != nil {
		res.Failed[SignalSharedInterests] = err
	} else {
		res.Scores[SignalSharedInterests] = ratio(facts.SharedInterests, facts.RequesterInterests)
		res.Details[SignalSharedInterests] = fmt.Sprintf("%d shared interests", facts.SharedInterests)
	}

	if facts, err := e.source.LocationFacts(ctx, requesterID, candidateID); err != nil {
		res.Failed[SignalLocationProximity] = err
	} else if !facts.Known {
		// No location on file is legitimate data, not a failure.
		res.Scores[SignalLocationProximity] = 0
	} else {
		res.Scores[SignalLocationProximity] = proximity(facts.DistanceKm)
		res.Details[SignalLocationProximity] = fmt.Sprintf("%.0f km away", facts.DistanceKm)
	}

	return res, nil
}

// GroupExtractor produces group-domain signals.
type GroupExtractor struct {
	source EntitySource

	// idealSize is the member count scoring highest on size fit.
	idealSize float64
}

// NewGroupExtractor creates a group extractor.
func NewGroupExtractor(source EntitySource) *GroupExtractor {
	return &GroupExtractor{source: source, idealSize: 150}
}

// Domain implements Extractor.
func (e *GroupExtractor) Domain() Domain { return DomainGroup }

// Extract implements Extractor.
func (e *GroupExtractor) Extract(ctx context.Context, requesterID, groupID string) (Result, error) {
	res := newResult()

	facts, err := e.source.GroupFacts(ctx, requesterID, groupID)
	if err != nil {
		res.markAllFailed(DomainGroup, err)
		return res, nil
	}

	res.Scores[SignalInterestMatch] = clamp01(facts.InterestMatch)
	res.Scores[SignalMemberOverlap] = saturate(facts.ConnectedMembers, 3)
	res.Details[SignalMemberOverlap] = fmt.Sprintf("%d of your connections are members", facts.ConnectedMembers)
	res.Scores[SignalActivityLevel] = saturateF(facts.WeeklyPosts, 20)
	res.Scores[SignalSizeFit] = sizeFit(facts.MemberCount, e.idealSize)

	return res, nil
}

// ContentExtractor produces content-domain signals.
type ContentExtractor struct {
	source EntitySource

	// halfLifeHours controls recency decay: a post this old scores 0.5.
	halfLifeHours float64
}

// NewContentExtractor creates a content extractor.
func NewContentExtractor(source EntitySource) *ContentExtractor {
	return &ContentExtractor{source: source, halfLifeHours: 48}
}

// Domain implements Extractor.
func (e *ContentExtractor) Domain() Domain { return DomainContent }

// Extract implements Extractor.
func (e *ContentExtractor) Extract(ctx context.Context, requesterID, contentID string) (Result, error) {
	res := newResult()

	facts, err := e.source.ContentFacts(ctx, requesterID, contentID)
	if err != nil {
		res.markAllFailed(DomainContent, err)
		return res, nil
	}

	res.Scores[SignalTopicRelevance] = clamp01(facts.TopicRelevance)

	affinity := saturate(facts.AuthorInteractions, 4)
	if facts.AuthorConnected {
		// Direct connection to the author floors affinity at 0.5.
		affinity = math.Max(affinity, 0.5)
		res.Details[SignalAuthorAffinity] = "posted by one of your connections"
	}
	res.Scores[SignalAuthorAffinity] = affinity

	res.Scores[SignalEngagementVelocity] = saturateF(facts.EngagementsPerHour, 10)
	res.Scores[SignalRecency] = math.Exp2(-facts.AgeHours / e.halfLifeHours)

	return res, nil
}

// AdvisoryExtractor produces advisory-pairing signals.
type AdvisoryExtractor struct {
	source EntitySource

	// idealGapYrs is the seniority gap scoring highest for a pairing.
	idealGapYrs float64
}

// NewAdvisoryExtractor creates an advisory extractor.
func NewAdvisoryExtractor(source EntitySource) *AdvisoryExtractor {
	return &AdvisoryExtractor{source: source, idealGapYrs: 8}
}

// Domain implements Extractor.
func (e *AdvisoryExtractor) Domain() Domain { return DomainAdvisory }

// Extract implements Extractor.
func (e *AdvisoryExtractor) Extract(ctx context.Context, requesterID, advisorID string) (Result, error) {
	res := newResult()

	facts, err := e.source.AdvisoryFacts(ctx, requesterID, advisorID)
	if err != nil {
		res.markAllFailed(DomainAdvisory, err)
		return res, nil
	}

	res.Scores[SignalExpertiseMatch] = clamp01(facts.ExpertiseMatch)
	res.Scores[SignalSeniorityGap] = gapFit(float64(facts.SeniorityGapYrs), e.idealGapYrs)
	res.Details[SignalSeniorityGap] = fmt.Sprintf("%d years more senior", facts.SeniorityGapYrs)
	res.Scores[SignalIndustryOverlap] = clamp01(facts.IndustryOverlap)
	res.Scores[SignalAvailability] = saturate(facts.OpenSlots, 1)

	return res, nil
}

// saturate maps a non-negative count to [0,1) with diminishing returns:
// n/(n+k). With k=1, 5 mutual connections score 5/6 ≈ 0.83.
func saturate(n int, k float64) float64 {
	if n <= 0 {
		return 0
	}
	return float64(n) / (float64(n) + k)
}

// saturateF is saturate for fractional quantities.
func saturateF(v, k float64) float64 {
	if v <= 0 {
		return 0
	}
	return v / (v + k)
}

// ratio divides shared by total, clamped to [0,1]. Zero total scores 0.
func ratio(shared, total int) float64 {
	if total <= 0 || shared <= 0 {
		return 0
	}
	return clamp01(float64(shared) / float64(total))
}

// proximity decays exponentially with distance; ~0.7 at 18km, ~0.37 at 50km.
func proximity(km float64) float64 {
	if km < 0 {
		return 0
	}
	return math.Exp(-km / 50)
}

// sizeFit peaks at the ideal member count and decays symmetrically on a
// log scale, so a 15-member and a 1500-member group score alike against
// an ideal of 150.
func sizeFit(members int, ideal float64) float64 {
	if members <= 0 {
		return 0
	}
	d := math.Log(float64(members) / ideal)
	return math.Exp(-d * d / 2)
}

// gapFit peaks at the ideal seniority gap and decays linearly to zero at
// twice the ideal in either direction. Negative gaps (candidate junior to
// requester) score zero.
func gapFit(gap, ideal float64) float64 {
	if gap <= 0 {
		return 0
	}
	return clamp01(1 - math.Abs(gap-ideal)/ideal)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
