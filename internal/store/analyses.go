package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hurttlocker/enrichnet/internal/cluster"
	"github.com/hurttlocker/enrichnet/internal/geneset"
	"github.com/hurttlocker/enrichnet/internal/network"
	"github.com/hurttlocker/enrichnet/internal/pipeline"
	"github.com/hurttlocker/enrichnet/internal/similarity"
	"github.com/hurttlocker/enrichnet/internal/textmine"
)

const analysisColumns = `id, label, fingerprint, options, node_count, edge_count, cluster_count, missing, created_at`

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SaveAnalysis persists every stage output of res in one transaction and
// returns the new summary row.
func (s *SQLiteStore) SaveAnalysis(ctx context.Context, label string, res *pipeline.Result) (*Analysis, error) {
	if res == nil || res.Graph == nil {
		return nil, fmt.Errorf("%w: analysis has no graph", geneset.ErrInvalidInput)
	}

	a := &Analysis{
		ID:           uuid.NewString(),
		Label:        label,
		Fingerprint:  HashAnalysis(res),
		Options:      res.Options,
		NodeCount:    res.Graph.NodeCount(),
		EdgeCount:    res.Graph.EdgeCount(),
		ClusterCount: len(res.Clusters),
		Missing:      res.Missing,
		CreatedAt:    time.Now().UTC(),
	}
	optsJSON, err := json.Marshal(a.Options)
	if err != nil {
		return nil, fmt.Errorf("encoding analysis options: %w", err)
	}
	missing := a.Missing
	if missing == nil {
		missing = []string{}
	}
	missingJSON, err := json.Marshal(missing)
	if err != nil {
		return nil, fmt.Errorf("encoding missing ids: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin save analysis transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO analyses (`+analysisColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Label, a.Fingerprint, string(optsJSON),
		a.NodeCount, a.EdgeCount, a.ClusterCount, string(missingJSON),
		a.CreatedAt.Format(timeLayout),
	); err != nil {
		return nil, fmt.Errorf("inserting analysis: %w", err)
	}

	if err := insertEach(ctx, tx,
		`INSERT INTO analysis_nodes (analysis_id, set_id, category, short_description, statistic) VALUES (?, ?, ?, ?, ?)`,
		res.Graph.Nodes(), func(n network.Node) []any {
			var stat any
			if n.HasStatistic {
				stat = n.Statistic
			}
			return []any{a.ID, n.ID, n.Category, n.ShortDescription, stat}
		}); err != nil {
		return nil, fmt.Errorf("inserting nodes: %w", err)
	}

	if err := insertEach(ctx, tx,
		`INSERT INTO analysis_edges (analysis_id, a, b, weight) VALUES (?, ?, ?, ?)`,
		res.Graph.Edges(), func(e similarity.Edge) []any {
			return []any{a.ID, e.A, e.B, e.Weight}
		}); err != nil {
		return nil, fmt.Errorf("inserting edges: %w", err)
	}

	for _, c := range res.Clusters {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO analysis_clusters (analysis_id, idx, kind, size, mean_statistic, statistic_count)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			a.ID, c.Index, string(c.Kind), c.Size, c.MeanStatistic, c.StatisticCount,
		); err != nil {
			return nil, fmt.Errorf("inserting cluster %d: %w", c.Index, err)
		}
		if err := insertEach(ctx, tx,
			`INSERT INTO cluster_members (analysis_id, cluster_idx, set_id) VALUES (?, ?, ?)`,
			c.Members, func(id string) []any { return []any{a.ID, c.Index, id} }); err != nil {
			return nil, fmt.Errorf("inserting members of cluster %d: %w", c.Index, err)
		}

		terms := res.Terms[c.Index]
		rank := 0
		if err := insertEach(ctx, tx,
			`INSERT INTO cluster_terms (analysis_id, cluster_idx, rank, term, weight, count, doc_freq) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			terms, func(t textmine.TermScore) []any {
				rank++
				return []any{a.ID, c.Index, rank, t.Term, t.Weight, t.Count, t.DocFreq}
			}); err != nil {
			return nil, fmt.Errorf("inserting terms of cluster %d: %w", c.Index, err)
		}
	}

	geneRows := make([][2]any, 0, len(res.GeneStats))
	for gene, v := range res.GeneStats {
		geneRows = append(geneRows, [2]any{gene, v})
	}
	if err := insertEach(ctx, tx,
		`INSERT INTO analysis_gene_stats (analysis_id, gene, value) VALUES (?, ?, ?)`,
		geneRows, func(r [2]any) []any { return []any{a.ID, r[0], r[1]} }); err != nil {
		return nil, fmt.Errorf("inserting gene statistics: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit save analysis: %w", err)
	}
	return a, nil
}

// insertEach runs one prepared statement per row.
func insertEach[T any](ctx context.Context, tx *sql.Tx, query string, rows []T, args func(T) []any) error {
	if len(rows) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, args(r)...); err != nil {
			return err
		}
	}
	return nil
}

// GetAnalysis returns the summary row of id, or ErrNotFound.
func (s *SQLiteStore) GetAnalysis(ctx context.Context, id string) (*Analysis, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+analysisColumns+` FROM analyses WHERE id = ?`, id)
	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("analysis %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting analysis %q: %w", id, err)
	}
	return a, nil
}

// FindByFingerprint returns the most recent analysis with fingerprint, or nil
// when none exists.
func (s *SQLiteStore) FindByFingerprint(ctx context.Context, fingerprint string) (*Analysis, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+analysisColumns+` FROM analyses WHERE fingerprint = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, fingerprint)
	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding analysis by fingerprint: %w", err)
	}
	return a, nil
}

// ListAnalyses returns saved analyses, newest first.
func (s *SQLiteStore) ListAnalyses(ctx context.Context, opts ListOpts) ([]*Analysis, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+analysisColumns+` FROM analyses ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("listing analyses: %w", err)
	}
	defer rows.Close()

	var out []*Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning analysis: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteAnalysis removes id and every dependent row.
func (s *SQLiteStore) DeleteAnalysis(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete analysis transaction: %w", err)
	}
	defer tx.Rollback()

	// Children first; foreign_keys is a per-connection pragma.
	for _, table := range []string{"cluster_terms", "cluster_members", "analysis_clusters",
		"analysis_edges", "analysis_nodes", "analysis_gene_stats"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE analysis_id = ?`, id); err != nil {
			return fmt.Errorf("deleting %s of %q: %w", table, id, err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM analyses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting analysis %q: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("analysis %q: %w", id, ErrNotFound)
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (*Analysis, error) {
	var (
		a           Analysis
		optsJSON    string
		missingJSON string
		createdAt   string
	)
	if err := row.Scan(&a.ID, &a.Label, &a.Fingerprint, &optsJSON,
		&a.NodeCount, &a.EdgeCount, &a.ClusterCount, &missingJSON, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(optsJSON), &a.Options); err != nil {
		return nil, fmt.Errorf("decoding options: %w", err)
	}
	if err := json.Unmarshal([]byte(missingJSON), &a.Missing); err != nil {
		return nil, fmt.Errorf("decoding missing ids: %w", err)
	}
	if len(a.Missing) == 0 {
		a.Missing = nil
	}
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
	}
	a.CreatedAt = t
	return &a, nil
}

func (s *SQLiteStore) requireAnalysis(ctx context.Context, id string) error {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM analyses WHERE id = ?`, id).Scan(&n); err != nil {
		return fmt.Errorf("checking analysis %q: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("analysis %q: %w", id, ErrNotFound)
	}
	return nil
}

// LoadGraph rebuilds the similarity graph of id, statistics included.
func (s *SQLiteStore) LoadGraph(ctx context.Context, id string) (*network.Graph, error) {
	if err := s.requireAnalysis(ctx, id); err != nil {
		return nil, err
	}

	meta := map[string]geneset.GeneSet{}
	stats := map[string]float64{}
	rows, err := s.db.QueryContext(ctx,
		`SELECT set_id, category, short_description, statistic FROM analysis_nodes WHERE analysis_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	for rows.Next() {
		var (
			setID, category, short string
			stat                   sql.NullFloat64
		)
		if err := rows.Scan(&setID, &category, &short, &stat); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning node: %w", err)
		}
		gs, err := geneset.New(setID, nil, geneset.Meta{Collection: category, ShortDescription: short})
		if err != nil {
			rows.Close()
			return nil, err
		}
		meta[setID] = gs
		if stat.Valid {
			stats[setID] = stat.Float64
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating nodes: %w", err)
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT a, b, weight FROM analysis_edges WHERE analysis_id = ? ORDER BY a, b`, id)
	if err != nil {
		return nil, fmt.Errorf("querying edges: %w", err)
	}
	defer rows.Close()
	var edges []similarity.Edge
	for rows.Next() {
		var e similarity.Edge
		if err := rows.Scan(&e.A, &e.B, &e.Weight); err != nil {
			return nil, fmt.Errorf("scanning edge: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating edges: %w", err)
	}

	g, err := network.Build(edges, meta)
	if err != nil {
		return nil, fmt.Errorf("rebuilding graph: %w", err)
	}
	return g.WithStatistic(stats), nil
}

// ListClusters returns the ordered clusters of id.
func (s *SQLiteStore) ListClusters(ctx context.Context, id string) ([]cluster.Cluster, error) {
	if err := s.requireAnalysis(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, kind, size, mean_statistic, statistic_count
		 FROM analysis_clusters WHERE analysis_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, fmt.Errorf("querying clusters: %w", err)
	}
	var out []cluster.Cluster
	for rows.Next() {
		var c cluster.Cluster
		var kind string
		if err := rows.Scan(&c.Index, &kind, &c.Size, &c.MeanStatistic, &c.StatisticCount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning cluster: %w", err)
		}
		c.Kind = cluster.PartitionKind(kind)
		out = append(out, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating clusters: %w", err)
	}

	members, err := s.db.QueryContext(ctx,
		`SELECT cluster_idx, set_id FROM cluster_members WHERE analysis_id = ? ORDER BY cluster_idx, set_id`, id)
	if err != nil {
		return nil, fmt.Errorf("querying cluster members: %w", err)
	}
	defer members.Close()
	byIndex := make(map[int]int, len(out))
	for i, c := range out {
		byIndex[c.Index] = i
	}
	for members.Next() {
		var idx int
		var setID string
		if err := members.Scan(&idx, &setID); err != nil {
			return nil, fmt.Errorf("scanning cluster member: %w", err)
		}
		if i, ok := byIndex[idx]; ok {
			out[i].Members = append(out[i].Members, setID)
		}
	}
	return out, members.Err()
}

// ListClusterTerms returns the ranked terms of cluster index in id.
func (s *SQLiteStore) ListClusterTerms(ctx context.Context, id string, index int) ([]textmine.TermScore, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM analysis_clusters WHERE analysis_id = ? AND idx = ?`, id, index).Scan(&n); err != nil {
		return nil, fmt.Errorf("checking cluster %d: %w", index, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("analysis %q cluster %d: %w", id, index, ErrNotFound)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT term, weight, count, doc_freq FROM cluster_terms
		 WHERE analysis_id = ? AND cluster_idx = ? ORDER BY rank`, id, index)
	if err != nil {
		return nil, fmt.Errorf("querying cluster terms: %w", err)
	}
	defer rows.Close()
	var out []textmine.TermScore
	for rows.Next() {
		var t textmine.TermScore
		if err := rows.Scan(&t.Term, &t.Weight, &t.Count, &t.DocFreq); err != nil {
			return nil, fmt.Errorf("scanning term: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GeneStatistics returns the gene statistics stored with id.
func (s *SQLiteStore) GeneStatistics(ctx context.Context, id string) (map[string]float64, error) {
	if err := s.requireAnalysis(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT gene, value FROM analysis_gene_stats WHERE analysis_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("querying gene statistics: %w", err)
	}
	defer rows.Close()
	out := map[string]float64{}
	for rows.Next() {
		var gene string
		var v float64
		if err := rows.Scan(&gene, &v); err != nil {
			return nil, fmt.Errorf("scanning gene statistic: %w", err)
		}
		out[gene] = v
	}
	return out, rows.Err()
}
