// Affinity - Recommendation & Insights Scoring Engine
// Copyright 2026 Meshkit Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meshkit/affinity

package storage

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/meshkit/affinity/internal/feedback"
	"github.com/meshkit/affinity/internal/recommend/signals"
)

// AppendFeedback appends one feedback row. The log is never updated in
// place; superseding happens at aggregation time.
func (db *DB) AppendFeedback(ctx context.Context, fb *feedback.Feedback) error {
	_, err := db.conn.ExecContext(ctx, `INSERT INTO feedback
		(recommendation_id, requester_id, action, rating, comment, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		fb.RecommendationID, fb.RequesterID, string(fb.Action),
		fb.Rating, fb.Comment, fb.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

// AggregateFeedback derives per (domain, algorithm version) snapshots
// for feedback submitted within [periodStart, periodEnd). When a
// requester submitted feedback for the same recommendation more than
// once, only the most recent row counts.
func (db *DB) AggregateFeedback(ctx context.Context, periodStart, periodEnd time.Time) ([]feedback.Snapshot, error) {
	rows, err := db.conn.QueryContext(ctx, `
		WITH latest AS (
			SELECT f.recommendation_id, f.requester_id, f.action, f.rating,
				row_number() OVER (
					PARTITION BY f.recommendation_id, f.requester_id
					ORDER BY f.submitted_at DESC
				) AS rn
			FROM feedback f
			WHERE f.submitted_at >= ? AND f.submitted_at < ?
		)
		SELECT r.domain, r.algorithm_version_id,
			count(*) AS total,
			count(*) FILTER (WHERE l.action = 'accept') AS accepted,
			count(*) FILTER (WHERE l.action = 'reject') AS rejected,
			count(*) FILTER (WHERE l.action = 'ignore') AS ignored,
			coalesce(avg(l.rating) FILTER (WHERE l.rating > 0), 0) AS average_rating
		FROM latest l
		JOIN recommendations r ON r.id = l.recommendation_id
		WHERE l.rn = 1
		GROUP BY r.domain, r.algorithm_version_id
		ORDER BY r.domain, r.algorithm_version_id`,
		periodStart, periodEnd,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate feedback: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snaps []feedback.Snapshot
	for rows.Next() {
		var (
			domain string
			s      feedback.Snapshot
		)
		if err := rows.Scan(&domain, &s.AlgorithmVersionID,
			&s.Total, &s.Accepted, &s.Rejected, &s.Ignored, &s.AverageRating,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		s.Domain = signals.Domain(domain)
		s.PeriodStart = periodStart
		s.PeriodEnd = periodEnd
		if s.Total > 0 {
			s.AcceptanceRate = float64(s.Accepted) / float64(s.Total)
		}
		snaps = append(snaps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}

	if err := db.attachSignalAccepts(ctx, snaps, periodStart, periodEnd); err != nil {
		return nil, err
	}
	return snaps, nil
}

// attachSignalAccepts fills each snapshot's per-signal acceptance counts
// using the recommendation's top-contributing signal.
func (db *DB) attachSignalAccepts(ctx context.Context, snaps []feedback.Snapshot, periodStart, periodEnd time.Time) error {
	if len(snaps) == 0 {
		return nil
	}

	rows, err := db.conn.QueryContext(ctx, `
		WITH latest AS (
			SELECT f.recommendation_id, f.requester_id, f.action,
				row_number() OVER (
					PARTITION BY f.recommendation_id, f.requester_id
					ORDER BY f.submitted_at DESC
				) AS rn
			FROM feedback f
			WHERE f.submitted_at >= ? AND f.submitted_at < ?
		)
		SELECT r.domain, r.algorithm_version_id, r.top_signal, count(*)
		FROM latest l
		JOIN recommendations r ON r.id = l.recommendation_id
		WHERE l.rn = 1 AND l.action = 'accept' AND r.top_signal <> ''
		GROUP BY r.domain, r.algorithm_version_id, r.top_signal`,
		periodStart, periodEnd,
	)
	if err != nil {
		return fmt.Errorf("aggregate signal accepts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	byKey := make(map[string]*feedback.Snapshot, len(snaps))
	for i := range snaps {
		byKey[string(snaps[i].Domain)+"/"+snaps[i].AlgorithmVersionID] = &snaps[i]
	}

	for rows.Next() {
		var (
			domain, versionID, sig string
			n                      int64
		)
		if err := rows.Scan(&domain, &versionID, &sig, &n); err != nil {
			return fmt.Errorf("scan signal accept row: %w", err)
		}
		snap, ok := byKey[domain+"/"+versionID]
		if !ok {
			continue
		}
		if snap.SignalAccepts == nil {
			snap.SignalAccepts = make(map[string]int64)
		}
		snap.SignalAccepts[sig] = n
	}
	return rows.Err()
}

// SaveSnapshots replaces snapshots for their (domain, version, period)
// keys with the freshly aggregated values.
func (db *DB) SaveSnapshots(ctx context.Context, snaps []feedback.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := range snaps {
		s := &snaps[i]
		accepts, err := json.Marshal(s.SignalAccepts)
		if err != nil {
			return fmt.Errorf("encode signal accepts: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO performance_snapshots
			(domain, algorithm_version_id, period_start, period_end,
			 total, accepted, rejected, ignored, average_rating, acceptance_rate, signal_accepts)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(s.Domain), s.AlgorithmVersionID, s.PeriodStart, s.PeriodEnd,
			s.Total, s.Accepted, s.Rejected, s.Ignored,
			s.AverageRating, s.AcceptanceRate, string(accepts),
		); err != nil {
			return fmt.Errorf("upsert snapshot: %w", err)
		}
	}

	return tx.Commit()
}

// Snapshots returns stored snapshots for one domain, most recent period
// first. An empty domain returns all domains.
func (db *DB) Snapshots(ctx context.Context, domain signals.Domain, limit int) ([]feedback.Snapshot, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT domain, algorithm_version_id, period_start, period_end,
			total, accepted, rejected, ignored, average_rating, acceptance_rate, signal_accepts
		FROM performance_snapshots`
	args := []any{}
	if domain != "" {
		query += ` WHERE domain = ?`
		args = append(args, string(domain))
	}
	query += ` ORDER BY period_end DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snaps []feedback.Snapshot
	for rows.Next() {
		var (
			d, accepts string
			s          feedback.Snapshot
		)
		if err := rows.Scan(&d, &s.AlgorithmVersionID, &s.PeriodStart, &s.PeriodEnd,
			&s.Total, &s.Accepted, &s.Rejected, &s.Ignored,
			&s.AverageRating, &s.AcceptanceRate, &accepts,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		s.Domain = signals.Domain(d)
		if accepts != "" && accepts != "null" {
			if err := json.Unmarshal([]byte(accepts), &s.SignalAccepts); err != nil {
				return nil, fmt.Errorf("decode signal accepts: %w", err)
			}
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}
