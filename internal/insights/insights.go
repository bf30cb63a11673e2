// Affinity - Recommendation & Insights Scoring Engine
// Copyright 2026 Meshkit Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meshkit/affinity

// Package insights computes derived aggregate metrics for a requester
// from the same signal and feedback data that drives recommendations.
// Insights are cached under the "insight:" key namespace with a longer
// TTL than recommendation batches.
package insights

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/meshkit/affinity/internal/cache"
	"github.com/meshkit/affinity/internal/metrics"
)

// Type identifies one insight computation.
type Type string

const (
	// TypeEngagement is the trailing engagement trend.
	TypeEngagement Type = "engagement"
	// TypeGrowth is the network growth rate.
	TypeGrowth Type = "growth"
	// TypeDensity is the network density measure.
	TypeDensity Type = "density"
	// TypeActions is the prioritized action suggestion list.
	TypeActions Type = "actions"
)

// Types returns all insight types in serving order.
func Types() []Type {
	return []Type{TypeEngagement, TypeGrowth, TypeDensity, TypeActions}
}

// ParseType converts a string into a known insight type.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeEngagement, TypeGrowth, TypeDensity, TypeActions:
		return Type(s), nil
	}
	return "", fmt.Errorf("unknown insight type %q", s)
}

// ActivityWindow summarizes a requester's activity over one bucket of the
// trailing observation window, oldest first when returned in a slice.
type ActivityWindow struct {
	Start        time.Time `json:"start"`
	Interactions int64     `json:"interactions"`
}

// NetworkFacts is the graph-shape input for growth and density insights.
type NetworkFacts struct {
	Connections       int64 `json:"connections"`
	NewConnections    int64 `json:"new_connections"` // within the window
	ClosedTriangles   int64 `json:"closed_triangles"`
	PossibleTriangles int64 `json:"possible_triangles"`
	PendingInvites    int64 `json:"pending_invites"`
	StaleContacts     int64 `json:"stale_contacts"` // no interaction in window
}

// Source is the read-only data layer behind insight computations.
type Source interface {
	ActivityWindows(ctx context.Context, requesterID string, buckets int) ([]ActivityWindow, error)
	NetworkFacts(ctx context.Context, requesterID string) (NetworkFacts, error)
}

// Insight is one computed payload served to the presentation layer.
type Insight struct {
	Type        Type              `json:"type"`
	RequesterID string            `json:"requester_id"`
	Value       float64           `json:"value"`
	Label       string            `json:"label"`
	Detail      string            `json:"detail,omitempty"`
	Suggestions []Suggestion      `json:"suggestions,omitempty"`
	Series      []ActivityWindow  `json:"series,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
	ExpiresAt   time.Time         `json:"expires_at"`
}

// Suggestion is one prioritized action item, highest priority first.
type Suggestion struct {
	Priority int    `json:"priority"`
	Action   string `json:"action"`
	Reason   string `json:"reason"`
}

// Service computes, caches, and invalidates insights. Concurrent requests
// for the same (type, requester) coalesce into one computation.
type Service struct {
	source Source
	cache  *cache.Cache
	flight *cache.Flight
	ttl    time.Duration
	logger zerolog.Logger
	nowFn  func() time.Time
}

// activityBuckets is the number of trailing windows used for trends.
const activityBuckets = 8

// NewService creates the insight service with the given TTL for cached
// payloads.
func NewService(source Source, c *cache.Cache, ttl time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		source: source,
		cache:  c,
		flight: cache.NewFlight(),
		ttl:    ttl,
		logger: logger.With().Str("component", "insights").Logger(),
		nowFn:  time.Now,
	}
}

// CacheKey returns the cache key for one insight.
func CacheKey(t Type, requesterID string) string {
	return fmt.Sprintf("insight:%s:%s", t, requesterID)
}

// Get returns the requested insight, serving from cache when fresh and
// coalescing concurrent computations for the same key.
func (s *Service) Get(ctx context.Context, t Type, requesterID string) (*Insight, error) {
	if requesterID == "" {
		return nil, fmt.Errorf("empty requester id")
	}
	if _, err := ParseType(string(t)); err != nil {
		return nil, err
	}

	key := CacheKey(t, requesterID)
	if payload, ok := s.cache.Get(key); ok {
		ins, err := decode(payload)
		if err == nil {
			return ins, nil
		}
		s.logger.Warn().Err(err).Str("key", key).Msg("Corrupt cached insight, recomputing")
		s.cache.Invalidate(key)
	}

	payload, _, err := s.flight.Do(ctx, key, func(ctx context.Context) ([]byte, error) {
		return s.compute(ctx, t, requesterID)
	})
	if err != nil {
		return nil, err
	}
	return decode(payload)
}

// InvalidateRequester clears every cached insight for one requester,
// typically after an entity mutation such as a new connection.
func (s *Service) InvalidateRequester(requesterID string) {
	for _, t := range Types() {
		s.cache.Invalidate(CacheKey(t, requesterID))
	}
}

func (s *Service) compute(ctx context.Context, t Type, requesterID string) ([]byte, error) {
	start := time.Now()
	defer func() {
		metrics.InsightDuration.WithLabelValues(string(t)).Observe(time.Since(start).Seconds())
	}()

	var (
		ins *Insight
		err error
	)
	switch t {
	case TypeEngagement:
		ins, err = s.engagement(ctx, requesterID)
	case TypeGrowth:
		ins, err = s.growth(ctx, requesterID)
	case TypeDensity:
		ins, err = s.density(ctx, requesterID)
	case TypeActions:
		ins, err = s.actions(ctx, requesterID)
	default:
		err = fmt.Errorf("unknown insight type %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("compute %s insight: %w", t, err)
	}

	now := s.nowFn().UTC()
	ins.Type = t
	ins.RequesterID = requesterID
	ins.GeneratedAt = now
	ins.ExpiresAt = now.Add(s.ttl)

	payload, err := json.Marshal(ins)
	if err != nil {
		return nil, fmt.Errorf("encode insight: %w", err)
	}
	s.cache.Set(CacheKey(t, requesterID), payload, s.ttl)
	return payload, nil
}

// engagement compares recent interaction volume against the trailing
// baseline and reports the relative trend in [-1,1].
func (s *Service) engagement(ctx context.Context, requesterID string) (*Insight, error) {
	windows, err := s.source.ActivityWindows(ctx, requesterID, activityBuckets)
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return &Insight{Value: 0, Label: "no activity"}, nil
	}

	half := len(windows) / 2
	var older, recent float64
	for i, w := range windows {
		if i < half {
			older += float64(w.Interactions)
		} else {
			recent += float64(w.Interactions)
		}
	}

	var trend float64
	switch {
	case older == 0 && recent == 0:
		trend = 0
	case older == 0:
		trend = 1
	default:
		trend = clampSigned((recent - older) / older)
	}

	return &Insight{
		Value:  trend,
		Label:  trendLabel(trend),
		Detail: fmt.Sprintf("%.0f interactions recently vs %.0f before", recent, older),
		Series: windows,
	}, nil
}

// growth reports new connections as a share of the existing network.
func (s *Service) growth(ctx context.Context, requesterID string) (*Insight, error) {
	facts, err := s.source.NetworkFacts(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	base := facts.Connections - facts.NewConnections
	var rate float64
	switch {
	case base <= 0 && facts.NewConnections > 0:
		rate = 1
	case base <= 0:
		rate = 0
	default:
		rate = math.Min(1, float64(facts.NewConnections)/float64(base))
	}

	return &Insight{
		Value:  rate,
		Label:  growthLabel(rate),
		Detail: fmt.Sprintf("%d new of %d connections", facts.NewConnections, facts.Connections),
	}, nil
}

// density reports the closed-triangle ratio of the requester's network.
func (s *Service) density(ctx context.Context, requesterID string) (*Insight, error) {
	facts, err := s.source.NetworkFacts(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	var d float64
	if facts.PossibleTriangles > 0 {
		d = math.Min(1, float64(facts.ClosedTriangles)/float64(facts.PossibleTriangles))
	}

	return &Insight{
		Value:  d,
		Label:  densityLabel(d),
		Detail: fmt.Sprintf("%d of %d possible triangles closed", facts.ClosedTriangles, facts.PossibleTriangles),
	}, nil
}

// actions derives a prioritized suggestion list from the other insights'
// inputs. Suggestions are ordered by priority ascending (1 is most
// urgent).
func (s *Service) actions(ctx context.Context, requesterID string) (*Insight, error) {
	facts, err := s.source.NetworkFacts(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	windows, err := s.source.ActivityWindows(ctx, requesterID, activityBuckets)
	if err != nil {
		return nil, err
	}

	var recentQuiet bool
	if n := len(windows); n > 0 && windows[n-1].Interactions == 0 {
		recentQuiet = true
	}

	var suggestions []Suggestion
	if facts.PendingInvites > 0 {
		suggestions = append(suggestions, Suggestion{
			Priority: 1,
			Action:   "respond_to_invites",
			Reason:   fmt.Sprintf("%d pending invitations awaiting a response", facts.PendingInvites),
		})
	}
	if recentQuiet {
		suggestions = append(suggestions, Suggestion{
			Priority: 2,
			Action:   "post_update",
			Reason:   "no interactions in the most recent window",
		})
	}
	if facts.StaleContacts > 0 {
		suggestions = append(suggestions, Suggestion{
			Priority: 3,
			Action:   "reconnect",
			Reason:   fmt.Sprintf("%d contacts with no recent interaction", facts.StaleContacts),
		})
	}
	if facts.Connections < 10 {
		suggestions = append(suggestions, Suggestion{
			Priority: 4,
			Action:   "grow_network",
			Reason:   "network is below the size where recommendations work well",
		})
	}
	sort.Slice(suggestions, func(i, j int) bool {
		return suggestions[i].Priority < suggestions[j].Priority
	})

	return &Insight{
		Value:       float64(len(suggestions)),
		Label:       "suggestions",
		Suggestions: suggestions,
	}, nil
}

func decode(payload []byte) (*Insight, error) {
	var ins Insight
	if err := json.Unmarshal(payload, &ins); err != nil {
		return nil, fmt.Errorf("decode insight: %w", err)
	}
	return &ins, nil
}

func trendLabel(trend float64) string {
	switch {
	case trend >= 0.25:
		return "rising"
	case trend <= -0.25:
		return "falling"
	default:
		return "steady"
	}
}

func growthLabel(rate float64) string {
	switch {
	case rate >= 0.2:
		return "fast"
	case rate >= 0.05:
		return "moderate"
	case rate > 0:
		return "slow"
	default:
		return "flat"
	}
}

func densityLabel(d float64) string {
	switch {
	case d >= 0.5:
		return "tight-knit"
	case d >= 0.2:
		return "connected"
	default:
		return "sparse"
	}
}

func clampSigned(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
