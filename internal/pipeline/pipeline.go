// Package pipeline runs one enrichment-summary analysis end to end:
// similarity edges, network, clusters, cluster terms.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/hurttlocker/enrichnet/internal/cluster"
	"github.com/hurttlocker/enrichnet/internal/geneset"
	"github.com/hurttlocker/enrichnet/internal/network"
	"github.com/hurttlocker/enrichnet/internal/similarity"
	"github.com/hurttlocker/enrichnet/internal/textmine"
)

// DefaultMinSize is the smallest cluster kept by default.
const DefaultMinSize = 2

// Options configures one analysis run.
type Options struct {
	Method          similarity.Method `json:"method"`
	Threshold       float64           `json:"threshold"`
	Algorithm       string            `json:"algorithm"`
	Seed            int64             `json:"seed"`
	MinWeight       float64           `json:"min_weight"`
	MinSize         int               `json:"min_size"`
	TextField       textmine.Field    `json:"text_field"`
	TopN            int               `json:"top_n"`
	Workers         int               `json:"workers"`
	StripNamePrefix bool              `json:"strip_name_prefix"`
}

// DefaultOptions returns the defaults used by every surface.
func DefaultOptions() Options {
	return Options{
		Method:          similarity.Jaccard,
		Threshold:       similarity.DefaultThreshold,
		Algorithm:       cluster.DefaultAlgorithm,
		Seed:            1,
		MinSize:         DefaultMinSize,
		TextField:       textmine.FieldName,
		TopN:            textmine.DefaultTopN,
		StripNamePrefix: true,
	}
}

// Validate checks every option before any stage runs.
func (o Options) Validate() error {
	if _, err := similarity.ParseMethod(string(o.Method)); err != nil {
		return err
	}
	if o.Threshold < 0 || o.Threshold > 1 {
		return fmt.Errorf("%w: threshold %v outside [0,1]", geneset.ErrInvalidInput, o.Threshold)
	}
	if _, err := cluster.Lookup(o.Algorithm, o.Seed, o.MinWeight); err != nil {
		return err
	}
	if o.MinWeight < 0 || o.MinWeight > 1 {
		return fmt.Errorf("%w: min weight %v outside [0,1]", geneset.ErrInvalidInput, o.MinWeight)
	}
	if o.MinSize < 1 {
		return fmt.Errorf("%w: min size %d < 1", geneset.ErrInvalidInput, o.MinSize)
	}
	if _, err := textmine.ParseField(string(o.TextField)); err != nil {
		return err
	}
	if o.TopN < 1 {
		return fmt.Errorf("%w: top n %d < 1", geneset.ErrInvalidInput, o.TopN)
	}
	if o.Workers < 0 {
		return fmt.Errorf("%w: workers %d < 0", geneset.ErrInvalidInput, o.Workers)
	}
	return nil
}

// Input is the data of one analysis. Significant, when non-empty, restricts
// the network to those gene-set ids; the term corpus stays the full collection.
type Input struct {
	Sets        *geneset.Collection
	Significant []string
	SetStats    map[string]float64
	GeneStats   map[string]float64
}

// Result holds every stage output. On failure it carries the stages that
// completed before the failing one.
type Result struct {
	Edges     []similarity.Edge
	Graph     *network.Graph
	Clusters  []cluster.Cluster
	Terms     map[int][]textmine.TermScore
	GeneStats map[string]float64
	Missing   []string
	Options   Options
	// CorpusDigest is a SHA-256 over the text of every set in the term corpus.
	CorpusDigest string
}

// CorpusDigest hashes the id and descriptive text of each set in order.
func CorpusDigest(sets []geneset.GeneSet) string {
	h := sha256.New()
	for _, gs := range sets {
		fmt.Fprintf(h, "%s\t%s\t%s\t%s\n", gs.ID(), gs.Collection(), gs.ShortDescription(), gs.Description())
	}
	return hex.EncodeToString(h.Sum(nil))
}

func checkStatistics(setStats, geneStats map[string]float64) error {
	if err := geneset.CheckStatistics("set statistic", setStats); err != nil {
		return err
	}
	return geneset.CheckStatistics("gene statistic", geneStats)
}

// Run executes the analysis. The returned Result is non-nil whenever opts
// validated, even when err is non-nil.
func Run(ctx context.Context, in Input, opts Options, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if in.Sets == nil || in.Sets.Len() == 0 {
		return nil, fmt.Errorf("%w: no gene sets", geneset.ErrInvalidInput)
	}
	if err := checkStatistics(in.SetStats, in.GeneStats); err != nil {
		return nil, err
	}

	res := &Result{
		GeneStats:    in.GeneStats,
		Options:      opts,
		CorpusDigest: CorpusDigest(in.Sets.Sets()),
	}
	started := time.Now()

	candidates := in.Sets
	if len(in.Significant) > 0 {
		candidates, res.Missing = in.Sets.Subset(in.Significant)
		if len(res.Missing) > 0 {
			logger.Warn("significant ids not in collection", "missing", len(res.Missing))
		}
	}

	// Similarity.
	t := time.Now()
	method, _ := similarity.ParseMethod(string(opts.Method))
	edges, err := similarity.ComputeOverlap(ctx, candidates.Sets(), similarity.Options{
		Threshold: opts.Threshold,
		Method:    method,
		Workers:   opts.Workers,
	})
	if err != nil {
		return res, fmt.Errorf("similarity: %w", err)
	}
	res.Edges = edges
	logger.Info("similarity computed", "sets", candidates.Len(), "edges", len(edges), "method", method, "elapsed", time.Since(t))

	// Network.
	t = time.Now()
	g, err := network.Build(edges, candidates.Metadata())
	if err != nil {
		return res, fmt.Errorf("network: %w", err)
	}
	if in.SetStats != nil {
		g = g.WithStatistic(in.SetStats)
	}
	res.Graph = g
	logger.Info("network built", "nodes", g.NodeCount(), "edges", g.EdgeCount(), "elapsed", time.Since(t))

	// Clusters.
	t = time.Now()
	p, err := cluster.Lookup(opts.Algorithm, opts.Seed, opts.MinWeight)
	if err != nil {
		return res, err
	}
	clusters, err := cluster.FindClusters(ctx, g, p, cluster.Options{MinSize: opts.MinSize})
	if err != nil {
		return res, fmt.Errorf("cluster: %w", err)
	}
	res.Clusters = clusters
	logger.Info("clusters found", "algorithm", p.Name(), "clusters", len(clusters), "min_size", opts.MinSize, "elapsed", time.Since(t))

	// Terms.
	t = time.Now()
	field, _ := textmine.ParseField(string(opts.TextField))
	ch, err := textmine.New(
		textmine.WithNamePrefixStripping(opts.StripNamePrefix),
		textmine.WithWorkers(opts.Workers),
	)
	if err != nil {
		return res, fmt.Errorf("terms: %w", err)
	}
	terms, err := ch.Characterise(ctx, in.Sets.Sets(), clusters, field, opts.TopN)
	if err != nil {
		return res, fmt.Errorf("terms: %w", err)
	}
	res.Terms = terms
	logger.Info("clusters characterised", "field", field, "top_n", opts.TopN, "elapsed", time.Since(t))

	logger.Info("analysis complete", "elapsed", time.Since(started))
	return res, nil
}
