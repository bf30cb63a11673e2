// Affinity - Recommendation & Insights Scoring Engine
// Copyright 2026 Meshkit Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meshkit/affinity

// Package storage persists recommendations, the feedback log and
// performance snapshots in DuckDB. Recommendations and feedback are
// append-only; snapshots are replaced per (domain, version, period) on
// each aggregation run.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/rs/zerolog"

	"github.com/meshkit/affinity/internal/config"
)

// DB wraps the DuckDB connection and provides data access methods.
type DB struct {
	conn   *sql.DB
	logger zerolog.Logger
}

// New opens the database and initializes the schema.
func New(cfg *config.DatabaseConfig, logger zerolog.Logger) (*DB, error) {
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	// Ensure the parent directory exists for file-backed databases.
	if cfg.Path != ":memory:" {
		dbDir := filepath.Dir(cfg.Path)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, fmt.Errorf("create database directory %s: %w", dbDir, err)
			}
		}
	}

	// Disable auto-install/auto-load to prevent hangs in restricted
	// network environments.
	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, threads)
	if cfg.MaxMemory != "" {
		connStr += "&max_memory=" + cfg.MaxMemory
	}

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// DuckDB is an embedded single-process database; a single connection
	// avoids write-write conflicts between pooled connections.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	db := &DB{
		conn:   conn,
		logger: logger.With().Str("component", "storage").Logger(),
	}

	if err := db.initSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	db.logger.Info().Str("path", cfg.Path).Msg("Database ready")
	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS recommendations (
			id VARCHAR PRIMARY KEY,
			requester_id VARCHAR NOT NULL,
			domain VARCHAR NOT NULL,
			candidate_id VARCHAR NOT NULL,
			aggregate_score DOUBLE NOT NULL,
			confidence DOUBLE NOT NULL,
			reasoning VARCHAR NOT NULL,
			top_signal VARCHAR NOT NULL,
			algorithm_version_id VARCHAR NOT NULL,
			created_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS feedback (
			recommendation_id VARCHAR NOT NULL,
			requester_id VARCHAR NOT NULL,
			action VARCHAR NOT NULL,
			rating INTEGER NOT NULL DEFAULT 0,
			comment VARCHAR,
			submitted_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS performance_snapshots (
			domain VARCHAR NOT NULL,
			algorithm_version_id VARCHAR NOT NULL,
			period_start TIMESTAMP NOT NULL,
			period_end TIMESTAMP NOT NULL,
			total BIGINT NOT NULL,
			accepted BIGINT NOT NULL,
			rejected BIGINT NOT NULL,
			ignored BIGINT NOT NULL,
			average_rating DOUBLE NOT NULL,
			acceptance_rate DOUBLE NOT NULL,
			signal_accepts VARCHAR NOT NULL,
			PRIMARY KEY (domain, algorithm_version_id, period_start, period_end)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_recommendations_requester
			ON recommendations (requester_id, domain)`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_recommendation
			ON feedback (recommendation_id, requester_id)`,
	}

	for _, stmt := range stmts {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}
	return nil
}
