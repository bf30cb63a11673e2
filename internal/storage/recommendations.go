// Affinity - Recommendation & Insights Scoring Engine
// Copyright 2026 Meshkit Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meshkit/affinity

package storage

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/meshkit/affinity/internal/recommend"
)

// SaveBatch persists a computed batch as individual recommendation rows.
// Rows are append-only; a recomputed batch inserts fresh rows with new
// IDs while the old ones stay attributable to past feedback.
func (db *DB) SaveBatch(ctx context.Context, batch *recommend.Batch) error {
	if len(batch.Items) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO recommendations
		(id, requester_id, domain, candidate_id, aggregate_score, confidence,
		 reasoning, top_signal, algorithm_version_id, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range batch.Items {
		rec := &batch.Items[i]
		reasoning, err := json.Marshal(rec.Reasoning)
		if err != nil {
			return fmt.Errorf("encode reasoning for %s: %w", rec.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			rec.ID, rec.RequesterID, string(rec.Domain), rec.CandidateID,
			rec.AggregateScore, rec.Confidence, string(reasoning),
			rec.TopSignal(), rec.AlgorithmVersionID,
			rec.CreatedAt, rec.ExpiresAt,
		); err != nil {
			return fmt.Errorf("insert recommendation %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	db.logger.Debug().
		Str("domain", string(batch.Domain)).
		Str("requester_id", batch.RequesterID).
		Int("items", len(batch.Items)).
		Msg("Recommendation batch persisted")
	return nil
}
