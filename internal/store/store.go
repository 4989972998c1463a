// Package store provides the SQLite storage layer for saved analyses.
//
// Every analysis lives in a single SQLite database file, including:
// - The options and fingerprint of the run
// - The similarity graph (nodes with their statistic, weighted edges)
// - The ordered clusters with their members and characteristic terms
// - Gene statistics passed through for plotting collaborators
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hurttlocker/enrichnet/internal/cluster"
	"github.com/hurttlocker/enrichnet/internal/network"
	"github.com/hurttlocker/enrichnet/internal/pipeline"
	"github.com/hurttlocker/enrichnet/internal/textmine"

	_ "modernc.org/sqlite"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.enrichnet/enrichnet.db"

// ErrNotFound is returned when an analysis or cluster does not exist.
var ErrNotFound = errors.New("store: not found")

// Analysis is the summary row of one saved run.
type Analysis struct {
	ID           string           `json:"id"`
	Label        string           `json:"label"`
	Fingerprint  string           `json:"fingerprint"`
	Options      pipeline.Options `json:"options"`
	NodeCount    int              `json:"node_count"`
	EdgeCount    int              `json:"edge_count"`
	ClusterCount int              `json:"cluster_count"`
	Missing      []string         `json:"missing,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// ListOpts controls pagination for ListAnalyses.
type ListOpts struct {
	Limit  int
	Offset int
}

// StoreStats holds observability statistics about the store.
type StoreStats struct {
	AnalysisCount int64 `json:"analysis_count"`
	ClusterCount  int64 `json:"cluster_count"`
	EdgeCount     int64 `json:"edge_count"`
	DBSizeBytes   int64 `json:"db_size_bytes"`
}

// StoreConfig holds configuration for NewStore.
type StoreConfig struct {
	DBPath string
}

// Store defines the core storage interface.
type Store interface {
	// Analyses
	SaveAnalysis(ctx context.Context, label string, res *pipeline.Result) (*Analysis, error)
	GetAnalysis(ctx context.Context, id string) (*Analysis, error)
	ListAnalyses(ctx context.Context, opts ListOpts) ([]*Analysis, error)
	DeleteAnalysis(ctx context.Context, id string) error

	// Deduplication
	FindByFingerprint(ctx context.Context, fingerprint string) (*Analysis, error)

	// Stage outputs
	LoadGraph(ctx context.Context, id string) (*network.Graph, error)
	ListClusters(ctx context.Context, id string) ([]cluster.Cluster, error)
	ListClusterTerms(ctx context.Context, id string, index int) ([]textmine.TermScore, error)
	GeneStatistics(ctx context.Context, id string) (map[string]float64, error)

	// Observability
	Stats(ctx context.Context) (*StoreStats, error)

	// Maintenance
	Vacuum(ctx context.Context) error
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewStore creates a new SQLite-backed Store.
// Pass ":memory:" for in-memory databases (testing).
func NewStore(cfg StoreConfig) (Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath
	}
	cfg.DBPath = expandPath(cfg.DBPath)

	// Create parent directory for non-memory databases
	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if cfg.DBPath == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{
		db:     db,
		dbPath: cfg.DBPath,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Vacuum runs VACUUM on the database. Manual only, never auto-vacuum.
func (s *SQLiteStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Stats returns row counts and the database file size.
func (s *SQLiteStore) Stats(ctx context.Context) (*StoreStats, error) {
	stats := &StoreStats{}
	counts := []struct {
		query string
		dst   *int64
	}{
		{"SELECT COUNT(*) FROM analyses", &stats.AnalysisCount},
		{"SELECT COUNT(*) FROM analysis_clusters", &stats.ClusterCount},
		{"SELECT COUNT(*) FROM analysis_edges", &stats.EdgeCount},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("counting rows: %w", err)
		}
	}
	if s.dbPath != ":memory:" {
		if fi, err := os.Stat(s.dbPath); err == nil {
			stats.DBSizeBytes = fi.Size()
		}
	}
	return stats, nil
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
