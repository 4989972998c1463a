package store

import (
	"database/sql"
	"fmt"
	"time"
)

// schemaVersion is bumped whenever bootstrap DDL changes shape.
const schemaVersion = "1"

// migrate creates all tables if they don't exist and seeds metadata.
func (s *SQLiteStore) migrate() error {
	bootstrapDone, err := s.isMetaFlagEnabled("schema_bootstrap_complete")
	if err != nil {
		return fmt.Errorf("checking bootstrap state: %w", err)
	}

	if !bootstrapDone {
		if err := s.runBootstrapDDL(); err != nil {
			return err
		}
	}

	if err := s.seedMeta(); err != nil {
		return fmt.Errorf("seeding metadata: %w", err)
	}

	if !bootstrapDone {
		if err := s.setMetaFlag("schema_bootstrap_complete"); err != nil {
			return fmt.Errorf("marking bootstrap complete: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) runBootstrapDDL() error {
	statements := []string{
		// One row per saved run
		`CREATE TABLE IF NOT EXISTS analyses (
			id            TEXT PRIMARY KEY,
			label         TEXT NOT NULL DEFAULT '',
			fingerprint   TEXT NOT NULL,
			options       TEXT NOT NULL,
			node_count    INTEGER NOT NULL,
			edge_count    INTEGER NOT NULL,
			cluster_count INTEGER NOT NULL,
			missing       TEXT NOT NULL DEFAULT '[]',
			created_at    TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_fingerprint ON analyses(fingerprint)`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at)`,

		// Graph nodes; statistic is NULL when absent
		`CREATE TABLE IF NOT EXISTS analysis_nodes (
			analysis_id       TEXT NOT NULL REFERENCES analyses(id) ON DELETE CASCADE,
			set_id            TEXT NOT NULL,
			category          TEXT NOT NULL DEFAULT '',
			short_description TEXT NOT NULL DEFAULT '',
			statistic         REAL,
			PRIMARY KEY (analysis_id, set_id)
		)`,

		// Graph edges in canonical (a < b) order
		`CREATE TABLE IF NOT EXISTS analysis_edges (
			analysis_id TEXT NOT NULL REFERENCES analyses(id) ON DELETE CASCADE,
			a           TEXT NOT NULL,
			b           TEXT NOT NULL,
			weight      REAL NOT NULL,
			PRIMARY KEY (analysis_id, a, b)
		)`,

		// Ordered clusters
		`CREATE TABLE IF NOT EXISTS analysis_clusters (
			analysis_id     TEXT NOT NULL REFERENCES analyses(id) ON DELETE CASCADE,
			idx             INTEGER NOT NULL,
			kind            TEXT NOT NULL CHECK(kind IN ('hard','overlapping')),
			size            INTEGER NOT NULL,
			mean_statistic  REAL NOT NULL,
			statistic_count INTEGER NOT NULL,
			PRIMARY KEY (analysis_id, idx)
		)`,

		`CREATE TABLE IF NOT EXISTS cluster_members (
			analysis_id TEXT NOT NULL,
			cluster_idx INTEGER NOT NULL,
			set_id      TEXT NOT NULL,
			PRIMARY KEY (analysis_id, cluster_idx, set_id),
			FOREIGN KEY (analysis_id, cluster_idx) REFERENCES analysis_clusters(analysis_id, idx) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS cluster_terms (
			analysis_id TEXT NOT NULL,
			cluster_idx INTEGER NOT NULL,
			rank        INTEGER NOT NULL,
			term        TEXT NOT NULL,
			weight      REAL NOT NULL,
			count       INTEGER NOT NULL,
			doc_freq    INTEGER NOT NULL,
			PRIMARY KEY (analysis_id, cluster_idx, rank),
			FOREIGN KEY (analysis_id, cluster_idx) REFERENCES analysis_clusters(analysis_id, idx) ON DELETE CASCADE
		)`,

		// Gene statistics kept for plotting collaborators
		`CREATE TABLE IF NOT EXISTS analysis_gene_stats (
			analysis_id TEXT NOT NULL REFERENCES analyses(id) ON DELETE CASCADE,
			gene        TEXT NOT NULL,
			value       REAL NOT NULL,
			PRIMARY KEY (analysis_id, gene)
		)`,

		// Metadata table
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT
		)`,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning migration transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration %q: %w", truncate(stmt, 80), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration: %w", err)
	}

	return nil
}

func (s *SQLiteStore) isMetaFlagEnabled(key string) (bool, error) {
	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='meta'`).Scan(&exists); err != nil {
		return false, err
	}
	if exists == 0 {
		return false, nil
	}

	value, err := s.getMetaValue(key)
	if err != nil {
		return false, err
	}
	return value == "true", nil
}

func (s *SQLiteStore) setMetaFlag(key string) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES (?, 'true')", key)
	return err
}

func (s *SQLiteStore) getMetaValue(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// seedMeta initializes the meta table with defaults if not already set.
func (s *SQLiteStore) seedMeta() error {
	defaults := map[string]string{
		"schema_version": schemaVersion,
		"created_at":     time.Now().UTC().Format(time.RFC3339),
	}

	for k, v := range defaults {
		_, err := s.db.Exec(
			"INSERT OR IGNORE INTO meta (key, value) VALUES (?, ?)", k, v,
		)
		if err != nil {
			return fmt.Errorf("seeding meta key %q: %w", k, err)
		}
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
