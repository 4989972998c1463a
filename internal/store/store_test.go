package store

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hurttlocker/enrichnet/internal/cluster"
	"github.com/hurttlocker/enrichnet/internal/geneset"
	"github.com/hurttlocker/enrichnet/internal/network"
	"github.com/hurttlocker/enrichnet/internal/pipeline"
	"github.com/hurttlocker/enrichnet/internal/similarity"
	"github.com/hurttlocker/enrichnet/internal/textmine"
)

// newTestStore creates an in-memory store for testing.
func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := NewStore(StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testResult builds a two-cluster result without running the text stage.
func testResult(t *testing.T) *pipeline.Result {
	t.Helper()
	meta := map[string]geneset.GeneSet{
		"A": geneset.MustNew("A", []string{"g1"}, geneset.Meta{Collection: "GOBP", ShortDescription: "immune response"}),
		"B": geneset.MustNew("B", []string{"g1"}, geneset.Meta{Collection: "GOBP", ShortDescription: "innate immunity"}),
		"C": geneset.MustNew("C", []string{"g2"}, geneset.Meta{Collection: "KEGG"}),
		"D": geneset.MustNew("D", []string{"g2"}, geneset.Meta{Collection: "KEGG"}),
	}
	edges := []similarity.Edge{{A: "A", B: "B", Weight: 0.5}, {A: "C", B: "D", Weight: 0.75}}
	g, err := network.Build(edges, meta)
	if err != nil {
		t.Fatalf("network.Build: %v", err)
	}
	g = g.WithStatistic(map[string]float64{"A": 2.5, "C": -1})

	clusters, err := cluster.FindClusters(context.Background(), g, &cluster.Components{}, cluster.Options{MinSize: 2})
	if err != nil {
		t.Fatalf("FindClusters: %v", err)
	}
	return &pipeline.Result{
		Edges:    edges,
		Graph:    g,
		Clusters: clusters,
		Terms: map[int][]textmine.TermScore{
			0: {{Term: "immune", Weight: 1.2, Count: 2, DocFreq: 2}, {Term: "response", Weight: 0.7, Count: 1, DocFreq: 1}},
		},
		GeneStats:    map[string]float64{"g1": 3.5, "g2": -0.25},
		Missing:      []string{"Z"},
		Options:      pipeline.DefaultOptions(),
		CorpusDigest: pipeline.CorpusDigest([]geneset.GeneSet{meta["A"], meta["B"], meta["C"], meta["D"]}),
	}
}

// --- Database Initialization ---

func TestNewStore(t *testing.T) {
	s, err := NewStore(StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer s.Close()

	ss := s.(*SQLiteStore)
	tables := []string{"analyses", "analysis_nodes", "analysis_edges", "analysis_clusters",
		"cluster_members", "cluster_terms", "analysis_gene_stats", "meta"}
	for _, table := range tables {
		var name string
		err := ss.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}

	v, err := ss.getMetaValue("schema_version")
	if err != nil || v != schemaVersion {
		t.Fatalf("schema_version = %q, %v", v, err)
	}
}

func TestNewStore_ReopenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "enrichnet.db")
	s, err := NewStore(StoreConfig{DBPath: path})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	a, err := s.SaveAnalysis(context.Background(), "first", testResult(t))
	if err != nil {
		t.Fatalf("SaveAnalysis: %v", err)
	}
	s.Close()

	s, err = NewStore(StoreConfig{DBPath: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if _, err := s.GetAnalysis(context.Background(), a.ID); err != nil {
		t.Fatalf("analysis should survive reopen: %v", err)
	}
	stats, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.AnalysisCount != 1 || stats.ClusterCount != 2 || stats.EdgeCount != 2 || stats.DBSizeBytes == 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

// --- Analyses ---

func TestSaveAndGetAnalysis(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	res := testResult(t)

	saved, err := s.SaveAnalysis(ctx, "hallmark run", res)
	if err != nil {
		t.Fatalf("SaveAnalysis: %v", err)
	}
	if saved.ID == "" || saved.Fingerprint == "" {
		t.Fatalf("expected id and fingerprint, got %+v", saved)
	}

	got, err := s.GetAnalysis(ctx, saved.ID)
	if err != nil {
		t.Fatalf("GetAnalysis: %v", err)
	}
	if got.Label != "hallmark run" || got.NodeCount != 4 || got.EdgeCount != 2 || got.ClusterCount != 2 {
		t.Fatalf("unexpected analysis: %+v", got)
	}
	if got.Options != res.Options {
		t.Fatalf("options did not round-trip: %+v", got.Options)
	}
	if !reflect.DeepEqual(got.Missing, []string{"Z"}) {
		t.Fatalf("missing = %v", got.Missing)
	}
	if !got.CreatedAt.Equal(saved.CreatedAt) {
		t.Fatalf("created_at = %v, want %v", got.CreatedAt, saved.CreatedAt)
	}
}

func TestGetAnalysis_NotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetAnalysis(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveAnalysis_RequiresGraph(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.SaveAnalysis(context.Background(), "", &pipeline.Result{}); !errors.Is(err, geneset.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestListAnalyses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	var ids []string
	for _, label := range []string{"one", "two", "three"} {
		a, err := s.SaveAnalysis(ctx, label, testResult(t))
		if err != nil {
			t.Fatalf("SaveAnalysis: %v", err)
		}
		ids = append(ids, a.ID)
	}

	all, err := s.ListAnalyses(ctx, ListOpts{})
	if err != nil {
		t.Fatalf("ListAnalyses: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 analyses, got %d", len(all))
	}
	if all[0].Label != "three" || all[2].Label != "one" {
		t.Fatalf("expected newest first, got %s..%s", all[0].Label, all[2].Label)
	}

	page, err := s.ListAnalyses(ctx, ListOpts{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("ListAnalyses page: %v", err)
	}
	if len(page) != 1 || page[0].ID != ids[1] {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestFindByFingerprint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	res := testResult(t)

	if a, err := s.FindByFingerprint(ctx, HashAnalysis(res)); err != nil || a != nil {
		t.Fatalf("expected no match before save, got %+v, %v", a, err)
	}
	saved, err := s.SaveAnalysis(ctx, "", res)
	if err != nil {
		t.Fatalf("SaveAnalysis: %v", err)
	}
	found, err := s.FindByFingerprint(ctx, HashAnalysis(testResult(t)))
	if err != nil {
		t.Fatalf("FindByFingerprint: %v", err)
	}
	if found == nil || found.ID != saved.ID {
		t.Fatalf("expected %s, got %+v", saved.ID, found)
	}

	changed := testResult(t)
	changed.Options.Threshold = 0.5
	if HashAnalysis(changed) == saved.Fingerprint {
		t.Fatal("different options should change the fingerprint")
	}
}

func TestHashAnalysisCoversInputs(t *testing.T) {
	base := HashAnalysis(testResult(t))
	if again := HashAnalysis(testResult(t)); again != base {
		t.Fatalf("fingerprint not stable: %s vs %s", base, again)
	}

	tests := []struct {
		name   string
		change func(res *pipeline.Result)
	}{
		{"options", func(res *pipeline.Result) { res.Options.TopN = 3 }},
		{"corpus text", func(res *pipeline.Result) {
			res.CorpusDigest = pipeline.CorpusDigest([]geneset.GeneSet{
				geneset.MustNew("A", []string{"g1"}, geneset.Meta{Collection: "GOBP", ShortDescription: "adaptive immunity"}),
			})
		}},
		{"gene statistic value", func(res *pipeline.Result) { res.GeneStats["g1"] = 4 }},
		{"gene statistic added", func(res *pipeline.Result) { res.GeneStats["g3"] = 1 }},
		{"gene statistics dropped", func(res *pipeline.Result) { res.GeneStats = nil }},
		{"node statistic", func(res *pipeline.Result) {
			res.Graph = res.Graph.WithStatistic(map[string]float64{"A": 1})
		}},
		{"missing ids", func(res *pipeline.Result) { res.Missing = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := testResult(t)
			tt.change(res)
			if HashAnalysis(res) == base {
				t.Fatal("fingerprint did not change")
			}
		})
	}
}

func TestSaveOrReuse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, reused, err := SaveOrReuse(ctx, s, "first", testResult(t))
	if err != nil {
		t.Fatalf("SaveOrReuse: %v", err)
	}
	if reused {
		t.Fatal("first save must not be reused")
	}

	second, reused, err := SaveOrReuse(ctx, s, "second", testResult(t))
	if err != nil {
		t.Fatalf("SaveOrReuse: %v", err)
	}
	if !reused || second.ID != first.ID || second.Label != "first" {
		t.Fatalf("expected reuse of %s, got %+v (reused=%v)", first.ID, second, reused)
	}

	changed := testResult(t)
	changed.GeneStats = map[string]float64{"g1": 9}
	third, reused, err := SaveOrReuse(ctx, s, "third", changed)
	if err != nil {
		t.Fatalf("SaveOrReuse: %v", err)
	}
	if reused || third.ID == first.ID {
		t.Fatalf("different gene statistics must save a new analysis, got %+v", third)
	}

	list, err := s.ListAnalyses(ctx, ListOpts{})
	if err != nil {
		t.Fatalf("ListAnalyses: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 stored analyses, got %d", len(list))
	}
}

func TestLoadGraph(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	res := testResult(t)
	saved, err := s.SaveAnalysis(ctx, "", res)
	if err != nil {
		t.Fatalf("SaveAnalysis: %v", err)
	}

	g, err := s.LoadGraph(ctx, saved.ID)
	if err != nil {
		t.Fatalf("LoadGraph: %v", err)
	}
	if !reflect.DeepEqual(g.Nodes(), res.Graph.Nodes()) {
		t.Fatalf("nodes differ:\n got %+v\nwant %+v", g.Nodes(), res.Graph.Nodes())
	}
	if !reflect.DeepEqual(g.Edges(), res.Graph.Edges()) {
		t.Fatalf("edges differ: %+v", g.Edges())
	}
	if _, ok := g.Statistic("B"); ok {
		t.Fatal("absent statistic should stay absent")
	}

	if _, err := s.LoadGraph(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListClustersAndTerms(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	res := testResult(t)
	saved, err := s.SaveAnalysis(ctx, "", res)
	if err != nil {
		t.Fatalf("SaveAnalysis: %v", err)
	}

	clusters, err := s.ListClusters(ctx, saved.ID)
	if err != nil {
		t.Fatalf("ListClusters: %v", err)
	}
	if !reflect.DeepEqual(clusters, res.Clusters) {
		t.Fatalf("clusters differ:\n got %+v\nwant %+v", clusters, res.Clusters)
	}

	terms, err := s.ListClusterTerms(ctx, saved.ID, 0)
	if err != nil {
		t.Fatalf("ListClusterTerms: %v", err)
	}
	if !reflect.DeepEqual(terms, res.Terms[0]) {
		t.Fatalf("terms differ: %+v", terms)
	}

	empty, err := s.ListClusterTerms(ctx, saved.ID, 1)
	if err != nil || len(empty) != 0 {
		t.Fatalf("cluster without terms: %+v, %v", empty, err)
	}
	if _, err := s.ListClusterTerms(ctx, saved.ID, 9); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown cluster, got %v", err)
	}
}

func TestGeneStatistics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	saved, err := s.SaveAnalysis(ctx, "", testResult(t))
	if err != nil {
		t.Fatalf("SaveAnalysis: %v", err)
	}
	stats, err := s.GeneStatistics(ctx, saved.ID)
	if err != nil {
		t.Fatalf("GeneStatistics: %v", err)
	}
	if !reflect.DeepEqual(stats, map[string]float64{"g1": 3.5, "g2": -0.25}) {
		t.Fatalf("unexpected gene statistics: %v", stats)
	}
}

func TestDeleteAnalysis_Cascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	saved, err := s.SaveAnalysis(ctx, "", testResult(t))
	if err != nil {
		t.Fatalf("SaveAnalysis: %v", err)
	}
	if err := s.DeleteAnalysis(ctx, saved.ID); err != nil {
		t.Fatalf("DeleteAnalysis: %v", err)
	}
	if err := s.DeleteAnalysis(ctx, saved.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete should be ErrNotFound, got %v", err)
	}

	ss := s.(*SQLiteStore)
	for _, table := range []string{"analysis_nodes", "analysis_edges", "analysis_clusters", "cluster_members", "cluster_terms", "analysis_gene_stats"} {
		var n int
		if err := ss.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if n != 0 {
			t.Errorf("%s should be empty after delete, has %d rows", table, n)
		}
	}
}

func TestSaveAnalysis_FromPipeline(t *testing.T) {
	sets, err := geneset.NewCollection(
		geneset.MustNew("HALLMARK_HYPOXIA", []string{"G1", "G2", "G3"}, geneset.Meta{}),
		geneset.MustNew("HALLMARK_GLYCOLYSIS", []string{"G2", "G3", "G4"}, geneset.Meta{}),
		geneset.MustNew("HALLMARK_APOPTOSIS", []string{"G9"}, geneset.Meta{}),
	)
	if err != nil {
		t.Fatalf("NewCollection: %v", err)
	}
	opts := pipeline.DefaultOptions()
	opts.Algorithm = cluster.AlgorithmComponents
	res, err := pipeline.Run(context.Background(), pipeline.Input{Sets: sets}, opts, nil)
	if err != nil {
		t.Fatalf("pipeline.Run: %v", err)
	}

	s := newTestStore(t)
	saved, err := s.SaveAnalysis(context.Background(), "", res)
	if err != nil {
		t.Fatalf("SaveAnalysis: %v", err)
	}
	terms, err := s.ListClusterTerms(context.Background(), saved.ID, 0)
	if err != nil {
		t.Fatalf("ListClusterTerms: %v", err)
	}
	if !reflect.DeepEqual(terms, res.Terms[0]) {
		t.Fatalf("terms differ:\n got %+v\nwant %+v", terms, res.Terms[0])
	}
}
