// Affinity - Recommendation & Insights Scoring Engine
// Copyright 2026 Meshkit Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meshkit/affinity

package signals

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

var errDown = errors.New("store unavailable")

// stubSource returns canned facts per query, with per-query failure
// injection.
type stubSource struct {
	graph    GraphFacts
	graphErr error

	interests    InterestFacts
	interestsErr error

	location    LocationFacts
	locationErr error

	group    GroupFacts
	groupErr error

	content    ContentFacts
	contentErr error

	advisory    AdvisoryFacts
	advisoryErr error

	candidates []string
}

func (s *stubSource) Candidates(context.Context, Domain, string, int) ([]string, error) {
	return s.candidates, nil
}

func (s *stubSource) GraphFacts(context.Context, string, string) (GraphFacts, error) {
	return s.graph, s.graphErr
}

func (s *stubSource) InterestFacts(context.Context, string, string) (InterestFacts, error) {
	return s.interests, s.interestsErr
}

func (s *stubSource) LocationFacts(context.Context, string, string) (LocationFacts, error) {
	return s.location, s.locationErr
}

func (s *stubSource) GroupFacts(context.Context, string, string) (GroupFacts, error) {
	return s.group, s.groupErr
}

func (s *stubSource) ContentFacts(context.Context, string, string) (ContentFacts, error) {
	return s.content, s.contentErr
}

func (s *stubSource) AdvisoryFacts(context.Context, string, string) (AdvisoryFacts, error) {
	return s.advisory, s.advisoryErr
}

func TestConnectionExtractorScores(t *testing.T) {
	src := &stubSource{
		graph:     GraphFacts{MutualConnections: 5, ActivityOverlap: 0.9},
		interests: InterestFacts{SharedInterests: 4, RequesterInterests: 6},
		location:  LocationFacts{DistanceKm: 18, Known: true},
	}
	ex := NewConnectionExtractor(src)

	res, err := ex.Extract(context.Background(), "u1", "u2")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(res.Failed) != 0 {
		t.Fatalf("unexpected failures: %v", res.Failed)
	}

	// 5 mutual connections saturate to 5/6 ≈ 0.83.
	if got := res.Scores[SignalMutualConnections]; math.Abs(got-5.0/6.0) > 1e-9 {
		t.Errorf("mutual_connections = %v, want 5/6", got)
	}
	if got := res.Details[SignalMutualConnections]; got != "5 mutual connections" {
		t.Errorf("detail = %q, want count clause", got)
	}
	if got := res.Scores[SignalSharedInterests]; math.Abs(got-4.0/6.0) > 1e-9 {
		t.Errorf("shared_interests = %v, want 4/6", got)
	}
	if got := res.Scores[SignalActivityOverlap]; got != 0.9 {
		t.Errorf("activity_overlap = %v, want 0.9", got)
	}
	if got := res.Scores[SignalLocationProximity]; got < 0.69 || got > 0.71 {
		t.Errorf("location_proximity = %v, want ≈0.7 at 18km", got)
	}
}

func TestConnectionExtractorPartialFailure(t *testing.T) {
	src := &stubSource{
		graph:       GraphFacts{MutualConnections: 5, ActivityOverlap: 0.9},
		interests:   InterestFacts{SharedInterests: 4, RequesterInterests: 6},
		locationErr: errDown,
	}
	ex := NewConnectionExtractor(src)

	res, err := ex.Extract(context.Background(), "u1", "u2")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if _, ok := res.Scores[SignalLocationProximity]; ok {
		t.Error("failed signal must not carry a score")
	}
	if !errors.Is(res.Failed[SignalLocationProximity], errDown) {
		t.Errorf("Failed[location_proximity] = %v, want %v", res.Failed[SignalLocationProximity], errDown)
	}
	// The other stores still produced their signals.
	for _, key := range []string{SignalMutualConnections, SignalSharedInterests, SignalActivityOverlap} {
		if _, ok := res.Scores[key]; !ok {
			t.Errorf("signal %s missing despite its store being up", key)
		}
	}
}

func TestConnectionExtractorNoLocationIsZeroNotFailure(t *testing.T) {
	src := &stubSource{
		location: LocationFacts{Known: false},
	}
	ex := NewConnectionExtractor(src)

	res, _ := ex.Extract(context.Background(), "u1", "u2")

	if got, ok := res.Scores[SignalLocationProximity]; !ok || got != 0 {
		t.Errorf("location_proximity = %v (present=%v), want legitimate 0", got, ok)
	}
	if _, failed := res.Failed[SignalLocationProximity]; failed {
		t.Error("missing location data must not be a failure")
	}
}

func TestConnectionExtractorNoDataScoresZero(t *testing.T) {
	ex := NewConnectionExtractor(&stubSource{})

	res, err := ex.Extract(context.Background(), "u1", "u2")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	for key, score := range res.Scores {
		if score != 0 {
			t.Errorf("signal %s = %v, want 0 for empty data", key, score)
		}
	}
	if len(res.Failed) != 0 {
		t.Errorf("empty data marked failures: %v", res.Failed)
	}
}

func TestGroupExtractorWholeQueryFailure(t *testing.T) {
	ex := NewGroupExtractor(&stubSource{groupErr: errDown})

	res, err := ex.Extract(context.Background(), "u1", "g1")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	for _, key := range Schema(DomainGroup) {
		if !errors.Is(res.Failed[key], errDown) {
			t.Errorf("signal %s not marked failed", key)
		}
	}
	if len(res.Scores) != 0 {
		t.Errorf("scores present despite failed query: %v", res.Scores)
	}
}

func TestGroupExtractorSizeFit(t *testing.T) {
	ex := NewGroupExtractor(&stubSource{group: GroupFacts{MemberCount: 150}})

	res, _ := ex.Extract(context.Background(), "u1", "g1")

	if got := res.Scores[SignalSizeFit]; math.Abs(got-1.0) > 1e-9 {
		t.Errorf("size_fit at ideal size = %v, want 1.0", got)
	}

	// Symmetric on a log scale: 15 and 1500 members score alike.
	exSmall := NewGroupExtractor(&stubSource{group: GroupFacts{MemberCount: 15}})
	exLarge := NewGroupExtractor(&stubSource{group: GroupFacts{MemberCount: 1500}})
	small, _ := exSmall.Extract(context.Background(), "u1", "g1")
	large, _ := exLarge.Extract(context.Background(), "u1", "g1")
	if math.Abs(small.Scores[SignalSizeFit]-large.Scores[SignalSizeFit]) > 1e-9 {
		t.Errorf("size_fit asymmetric: %v vs %v",
			small.Scores[SignalSizeFit], large.Scores[SignalSizeFit])
	}
}

func TestContentExtractorAuthorAffinityFloor(t *testing.T) {
	ex := NewContentExtractor(&stubSource{
		content: ContentFacts{AuthorConnected: true, AuthorInteractions: 0},
	})

	res, _ := ex.Extract(context.Background(), "u1", "c1")

	if got := res.Scores[SignalAuthorAffinity]; got != 0.5 {
		t.Errorf("author_affinity = %v, want floor 0.5 for a connected author", got)
	}
}

func TestContentExtractorRecencyHalfLife(t *testing.T) {
	ex := NewContentExtractor(&stubSource{
		content: ContentFacts{AgeHours: 48},
	})

	res, _ := ex.Extract(context.Background(), "u1", "c1")

	if got := res.Scores[SignalRecency]; math.Abs(got-0.5) > 1e-9 {
		t.Errorf("recency at half-life = %v, want 0.5", got)
	}
}

func TestAdvisoryExtractorGapFit(t *testing.T) {
	tests := []struct {
		gap  int
		want float64
	}{
		{8, 1.0},  // ideal gap
		{0, 0},    // peer, no gap
		{16, 0},   // twice the ideal decays to zero
		{4, 0.5},  // halfway in
		{12, 0.5}, // halfway out
	}
	for _, tt := range tests {
		ex := NewAdvisoryExtractor(&stubSource{
			advisory: AdvisoryFacts{SeniorityGapYrs: tt.gap},
		})
		res, _ := ex.Extract(context.Background(), "u1", "a1")
		if got := res.Scores[SignalSeniorityGap]; math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("gap %d: seniority_gap = %v, want %v", tt.gap, got, tt.want)
		}
	}
}

func TestSchemaCopies(t *testing.T) {
	schema := Schema(DomainConnection)
	if len(schema) != 4 {
		t.Fatalf("connection schema has %d keys, want 4", len(schema))
	}
	schema[0] = "mutated"
	if Schema(DomainConnection)[0] == "mutated" {
		t.Error("Schema returned shared backing array")
	}
}

func TestParseDomain(t *testing.T) {
	for _, d := range Domains() {
		got, err := ParseDomain(string(d))
		if err != nil || got != d {
			t.Errorf("ParseDomain(%q) = %v, %v", d, got, err)
		}
	}
	if _, err := ParseDomain("bogus"); err == nil {
		t.Error("ParseDomain accepted unknown domain")
	}
}

// slowSource blocks until its context is done.
type slowSource struct {
	stubSource
}

func (s *slowSource) GraphFacts(ctx context.Context, _, _ string) (GraphFacts, error) {
	<-ctx.Done()
	return GraphFacts{}, ctx.Err()
}

func (s *slowSource) InterestFacts(ctx context.Context, _, _ string) (InterestFacts, error) {
	<-ctx.Done()
	return InterestFacts{}, ctx.Err()
}

func (s *slowSource) LocationFacts(ctx context.Context, _, _ string) (LocationFacts, error) {
	<-ctx.Done()
	return LocationFacts{}, ctx.Err()
}

func TestRunnerTimeoutMarksSignalsFailed(t *testing.T) {
	runner := NewRunner(10 * time.Millisecond)
	ex := NewConnectionExtractor(&slowSource{})

	start := time.Now()
	res, err := runner.Run(context.Background(), ex, "u1", "u2")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Run took %v, timeout not applied", elapsed)
	}

	for _, key := range Schema(DomainConnection) {
		if _, failed := res.Failed[key]; !failed {
			t.Errorf("signal %s not marked failed after timeout", key)
		}
	}
}
