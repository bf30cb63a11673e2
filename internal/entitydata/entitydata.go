// Affinity - Recommendation & Insights Scoring Engine
// Copyright 2026 Meshkit Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meshkit/affinity

// Package entitydata adapts the externally owned entity database
// (profiles, connection graph, groups, content, advisors) to the query
// interfaces the engine reads from. The database is opened read-only;
// the external data layer owns its schema and all writes.
package entitydata

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/rs/zerolog"

	"github.com/meshkit/affinity/internal/insights"
	"github.com/meshkit/affinity/internal/recommend/signals"
)

// Source issues point queries against the entity database. It implements
// both signals.EntitySource and insights.Source.
type Source struct {
	conn   *sql.DB
	logger zerolog.Logger
}

// Open connects to the entity database read-only.
func Open(path string, logger zerolog.Logger) (*Source, error) {
	connStr := fmt.Sprintf("%s?access_mode=read_only&autoinstall_known_extensions=false&autoload_known_extensions=false", path)
	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open entity database: %w", err)
	}
	conn.SetMaxOpenConns(4)

	return &Source{
		conn:   conn,
		logger: logger.With().Str("component", "entitydata").Logger(),
	}, nil
}

// Close closes the underlying connection.
func (s *Source) Close() error {
	return s.conn.Close()
}

// Candidates returns candidate entity IDs for a requester in a domain,
// excluding entities the requester already has a relationship with.
func (s *Source) Candidates(ctx context.Context, domain signals.Domain, requesterID string, limit int) ([]string, error) {
	var query string
	switch domain {
	case signals.DomainConnection:
		// Friends-of-friends not already connected.
		query = `SELECT DISTINCT c2.peer_id
			FROM connections c1
			JOIN connections c2 ON c2.profile_id = c1.peer_id
			WHERE c1.profile_id = ?
			  AND c2.peer_id <> c1.profile_id
			  AND c2.peer_id NOT IN (
				SELECT peer_id FROM connections WHERE profile_id = c1.profile_id
			  )
			LIMIT ?`
	case signals.DomainGroup:
		query = `SELECT g.id FROM groups g
			WHERE g.id NOT IN (
				SELECT group_id FROM group_members WHERE profile_id = ?
			)
			ORDER BY g.member_count DESC
			LIMIT ?`
	case signals.DomainContent:
		query = `SELECT c.id FROM content c
			WHERE c.author_id <> ?
			ORDER BY c.published_at DESC
			LIMIT ?`
	case signals.DomainAdvisory:
		query = `SELECT a.profile_id FROM advisors a
			WHERE a.profile_id <> ? AND a.open_slots > 0
			LIMIT ?`
	default:
		return nil, fmt.Errorf("unknown domain %q", domain)
	}

	rows, err := s.conn.QueryContext(ctx, query, requesterID, limit)
	if err != nil {
		return nil, fmt.Errorf("query %s candidates: %w", domain, err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan candidate id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GraphFacts returns relationship-graph facts for a pair.
func (s *Source) GraphFacts(ctx context.Context, requesterID, candidateID string) (signals.GraphFacts, error) {
	var facts signals.GraphFacts
	err := s.conn.QueryRowContext(ctx, `
		SELECT
			(SELECT count(*) FROM connections a
			 JOIN connections b ON b.peer_id = a.peer_id
			 WHERE a.profile_id = ? AND b.profile_id = ?),
			coalesce((SELECT count(DISTINCT a.active_on) FILTER (WHERE b.active_on IS NOT NULL)::DOUBLE
				/ nullif(count(DISTINCT a.active_on), 0)
			 FROM activity_days a
			 LEFT JOIN activity_days b ON b.active_on = a.active_on AND b.profile_id = ?
			 WHERE a.profile_id = ?), 0)`,
		requesterID, candidateID, candidateID, requesterID,
	).Scan(&facts.MutualConnections, &facts.ActivityOverlap)
	if err != nil {
		return signals.GraphFacts{}, fmt.Errorf("query graph facts: %w", err)
	}
	return facts, nil
}

// InterestFacts returns profile-interest facts for a pair.
func (s *Source) InterestFacts(ctx context.Context, requesterID, candidateID string) (signals.InterestFacts, error) {
	var facts signals.InterestFacts
	err := s.conn.QueryRowContext(ctx, `
		SELECT
			(SELECT count(*) FROM interests a
			 JOIN interests b ON b.topic = a.topic
			 WHERE a.profile_id = ? AND b.profile_id = ?),
			(SELECT count(*) FROM interests WHERE profile_id = ?)`,
		requesterID, candidateID, requesterID,
	).Scan(&facts.SharedInterests, &facts.RequesterInterests)
	if err != nil {
		return signals.InterestFacts{}, fmt.Errorf("query interest facts: %w", err)
	}
	return facts, nil
}

// LocationFacts returns geographic facts for a pair. A profile without
// coordinates yields Known=false, which scores as a legitimate zero.
func (s *Source) LocationFacts(ctx context.Context, requesterID, candidateID string) (signals.LocationFacts, error) {
	var (
		rLat, rLon, cLat, cLon sql.NullFloat64
	)
	err := s.conn.QueryRowContext(ctx, `
		SELECT r.latitude, r.longitude, c.latitude, c.longitude
		FROM profiles r, profiles c
		WHERE r.id = ? AND c.id = ?`,
		requesterID, candidateID,
	).Scan(&rLat, &rLon, &cLat, &cLon)
	if err != nil {
		return signals.LocationFacts{}, fmt.Errorf("query location facts: %w", err)
	}

	if !rLat.Valid || !rLon.Valid || !cLat.Valid || !cLon.Valid {
		return signals.LocationFacts{Known: false}, nil
	}
	return signals.LocationFacts{
		DistanceKm: haversineKm(rLat.Float64, rLon.Float64, cLat.Float64, cLon.Float64),
		Known:      true,
	}, nil
}

// GroupFacts returns the raw facts behind group signals.
func (s *Source) GroupFacts(ctx context.Context, requesterID, groupID string) (signals.GroupFacts, error) {
	var facts signals.GroupFacts
	err := s.conn.QueryRowContext(ctx, `
		SELECT
			coalesce((SELECT count(*) FILTER (WHERE i.topic IS NOT NULL)::DOUBLE
				/ nullif(count(*), 0)
			 FROM group_topics t
			 LEFT JOIN interests i ON i.topic = t.topic AND i.profile_id = ?
			 WHERE t.group_id = ?), 0),
			(SELECT count(*) FROM group_members m
			 JOIN connections c ON c.peer_id = m.profile_id
			 WHERE m.group_id = ? AND c.profile_id = ?),
			g.member_count,
			g.weekly_posts
		FROM groups g WHERE g.id = ?`,
		requesterID, groupID, groupID, requesterID, groupID,
	).Scan(&facts.InterestMatch, &facts.ConnectedMembers, &facts.MemberCount, &facts.WeeklyPosts)
	if err != nil {
		return signals.GroupFacts{}, fmt.Errorf("query group facts: %w", err)
	}
	return facts, nil
}

// ContentFacts returns the raw facts behind content signals.
func (s *Source) ContentFacts(ctx context.Context, requesterID, contentID string) (signals.ContentFacts, error) {
	var (
		facts       signals.ContentFacts
		publishedAt time.Time
	)
	err := s.conn.QueryRowContext(ctx, `
		SELECT
			coalesce((SELECT count(*) FILTER (WHERE i.topic IS NOT NULL)::DOUBLE
				/ nullif(count(*), 0)
			 FROM content_topics t
			 LEFT JOIN interests i ON i.topic = t.topic AND i.profile_id = ?
			 WHERE t.content_id = c.id), 0),
			EXISTS (SELECT 1 FROM connections
				WHERE profile_id = ? AND peer_id = c.author_id),
			(SELECT count(*) FROM interactions
				WHERE profile_id = ? AND target_id = c.author_id),
			c.engagements_per_hour,
			c.published_at
		FROM content c WHERE c.id = ?`,
		requesterID, requesterID, requesterID, contentID,
	).Scan(&facts.TopicRelevance, &facts.AuthorConnected, &facts.AuthorInteractions,
		&facts.EngagementsPerHour, &publishedAt)
	if err != nil {
		return signals.ContentFacts{}, fmt.Errorf("query content facts: %w", err)
	}
	facts.AgeHours = time.Since(publishedAt).Hours()
	return facts, nil
}

// AdvisoryFacts returns the raw facts behind advisory signals.
func (s *Source) AdvisoryFacts(ctx context.Context, requesterID, advisorID string) (signals.AdvisoryFacts, error) {
	var facts signals.AdvisoryFacts
	err := s.conn.QueryRowContext(ctx, `
		SELECT
			coalesce((SELECT count(*) FILTER (WHERE i.topic IS NOT NULL)::DOUBLE
				/ nullif(count(*), 0)
			 FROM advisor_expertise e
			 LEFT JOIN interests i ON i.topic = e.topic AND i.profile_id = ?
			 WHERE e.advisor_id = a.profile_id), 0),
			greatest(a.seniority_years - r.seniority_years, 0),
			CASE WHEN a.industry = r.industry THEN 1.0 ELSE 0.0 END,
			a.open_slots
		FROM advisors a, profiles r
		WHERE a.profile_id = ? AND r.id = ?`,
		requesterID, advisorID, requesterID,
	).Scan(&facts.ExpertiseMatch, &facts.SeniorityGapYrs, &facts.IndustryOverlap, &facts.OpenSlots)
	if err != nil {
		return signals.AdvisoryFacts{}, fmt.Errorf("query advisory facts: %w", err)
	}
	return facts, nil
}

// ActiveRequesters returns profiles with any interaction since the
// cutoff, most active first. Used by the cache warmer to decide whose
// recommendations to precompute.
func (s *Source) ActiveRequesters(ctx context.Context, since time.Time, limit int) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT profile_id
		FROM interactions
		WHERE occurred_at >= ?
		GROUP BY profile_id
		ORDER BY count(*) DESC
		LIMIT ?`,
		since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query active requesters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan requester id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ActivityWindows returns the requester's interaction counts over the
// trailing buckets, one week per bucket, oldest first.
func (s *Source) ActivityWindows(ctx context.Context, requesterID string, buckets int) ([]insights.ActivityWindow, error) {
	if buckets <= 0 {
		buckets = 8
	}
	start := time.Now().UTC().AddDate(0, 0, -7*buckets)

	rows, err := s.conn.QueryContext(ctx, `
		SELECT date_trunc('week', occurred_at) AS week, count(*)
		FROM interactions
		WHERE profile_id = ? AND occurred_at >= ?
		GROUP BY week
		ORDER BY week`,
		requesterID, start,
	)
	if err != nil {
		return nil, fmt.Errorf("query activity windows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	byWeek := make(map[time.Time]int64)
	for rows.Next() {
		var (
			week time.Time
			n    int64
		)
		if err := rows.Scan(&week, &n); err != nil {
			return nil, fmt.Errorf("scan activity window: %w", err)
		}
		byWeek[week.UTC()] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Fill gaps so quiet weeks appear as explicit zero buckets.
	windows := make([]insights.ActivityWindow, 0, buckets)
	cursor := start.Truncate(7 * 24 * time.Hour)
	for i := 0; i < buckets; i++ {
		windows = append(windows, insights.ActivityWindow{
			Start:        cursor,
			Interactions: byWeek[cursor],
		})
		cursor = cursor.AddDate(0, 0, 7)
	}
	return windows, nil
}

// NetworkFacts returns the graph-shape facts behind growth and density
// insights, with growth measured over the trailing 28 days.
func (s *Source) NetworkFacts(ctx context.Context, requesterID string) (insights.NetworkFacts, error) {
	since := time.Now().UTC().AddDate(0, 0, -28)

	var facts insights.NetworkFacts
	err := s.conn.QueryRowContext(ctx, `
		SELECT
			(SELECT count(*) FROM connections WHERE profile_id = ?),
			(SELECT count(*) FROM connections WHERE profile_id = ? AND connected_at >= ?),
			(SELECT count(*) FROM connections a
			 JOIN connections b ON b.profile_id = a.peer_id
			 JOIN connections c ON c.profile_id = ? AND c.peer_id = b.peer_id
			 WHERE a.profile_id = ?),
			(SELECT count(*) FROM connections a
			 JOIN connections b ON b.profile_id = a.peer_id AND b.peer_id <> a.profile_id
			 WHERE a.profile_id = ?),
			(SELECT count(*) FROM invites WHERE invitee_id = ? AND responded_at IS NULL),
			(SELECT count(*) FROM connections c
			 WHERE c.profile_id = ? AND NOT EXISTS (
				SELECT 1 FROM interactions i
				WHERE i.profile_id = c.profile_id AND i.target_id = c.peer_id AND i.occurred_at >= ?
			 ))`,
		requesterID, requesterID, since,
		requesterID, requesterID, requesterID,
		requesterID, requesterID, since,
	).Scan(&facts.Connections, &facts.NewConnections,
		&facts.ClosedTriangles, &facts.PossibleTriangles,
		&facts.PendingInvites, &facts.StaleContacts)
	if err != nil {
		return insights.NetworkFacts{}, fmt.Errorf("query network facts: %w", err)
	}
	return facts, nil
}
