// Package similarity computes pairwise gene-set similarity and keeps the pairs
// whose coefficient reaches a threshold.
//
// Scoring walks an inverted gene → gene-set index so that only pairs sharing at
// least one gene are counted. The retained edges are identical to the naive
// all-pairs definition for every threshold, including zero.
package similarity

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hurttlocker/enrichnet/internal/geneset"
)

// DefaultThreshold is the minimum similarity for a pair to become an edge.
const DefaultThreshold = 0.25

// Method selects the similarity coefficient.
type Method string

const (
	// Jaccard is |A∩B| / |A∪B|.
	Jaccard Method = "jaccard"
	// Overlap is |A∩B| / min(|A|,|B|).
	Overlap Method = "overlap"
)

// ParseMethod parses a method name. Empty selects Jaccard.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "jaccard":
		return Jaccard, nil
	case "overlap", "overlap_coefficient":
		return Overlap, nil
	default:
		return "", fmt.Errorf("%w: unknown similarity method %q (expected jaccard or overlap)", geneset.ErrInvalidInput, s)
	}
}

// Edge is an undirected similarity edge. A < B always holds.
type Edge struct {
	A      string  `json:"a"`
	B      string  `json:"b"`
	Weight float64 `json:"weight"`
}

// Options controls ComputeOverlap.
type Options struct {
	Threshold float64
	Method    Method
	// Workers bounds the number of rows scored concurrently. <= 0 uses GOMAXPROCS.
	Workers int
}

// DefaultOptions returns Jaccard with the default threshold.
func DefaultOptions() Options {
	return Options{Threshold: DefaultThreshold, Method: Jaccard}
}

// Coefficient returns the similarity of two gene-sets. Empty sets score 0.
func Coefficient(a, b geneset.GeneSet, method Method) float64 {
	inter := intersectionSize(a.Genes(), b.Genes())
	return score(inter, a.Size(), b.Size(), method)
}

// ComputeOverlap scores every unordered pair of sets and returns the edges with
// weight >= opts.Threshold, sorted by (A, B).
func ComputeOverlap(ctx context.Context, sets []geneset.GeneSet, opts Options) ([]Edge, error) {
	if opts.Method == "" {
		opts.Method = Jaccard
	}
	if opts.Method != Jaccard && opts.Method != Overlap {
		return nil, fmt.Errorf("%w: unknown similarity method %q", geneset.ErrInvalidInput, opts.Method)
	}
	if opts.Threshold < 0 || opts.Threshold > 1 {
		return nil, fmt.Errorf("%w: threshold %.4f outside [0,1]", geneset.ErrInvalidInput, opts.Threshold)
	}
	if len(sets) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 gene-sets, got %d", geneset.ErrInvalidInput, len(sets))
	}

	ordered := make([]geneset.GeneSet, len(sets))
	copy(ordered, sets)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID() < ordered[j].ID() })

	for i, gs := range ordered {
		if gs.Size() == 0 {
			return nil, fmt.Errorf("%w: gene-set %q has no genes", geneset.ErrInvalidInput, gs.ID())
		}
		if i > 0 && ordered[i-1].ID() == gs.ID() {
			return nil, fmt.Errorf("%w: duplicate gene-set id %q", geneset.ErrInvalidInput, gs.ID())
		}
	}

	idx := newInvertedIndex(ordered)

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(ordered) {
		workers = len(ordered)
	}

	// Rows are striped across workers; each worker owns its counters and output.
	partial := make([][]pairHit, workers)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			counts := make([]int, len(ordered))
			touched := make([]int, 0, 64)
			var hits []pairHit
			for i := w; i < len(ordered); i += workers {
				if err := gctx.Err(); err != nil {
					return err
				}
				hits = idx.scoreRow(i, counts, touched[:0], opts, hits)
			}
			partial[w] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, p := range partial {
		total += len(p)
	}
	merged := make([]pairHit, 0, total)
	for _, p := range partial {
		merged = append(merged, p...)
	}
	sort.Slice(merged, func(a, b int) bool {
		if merged[a].i != merged[b].i {
			return merged[a].i < merged[b].i
		}
		return merged[a].j < merged[b].j
	})

	edges := make([]Edge, len(merged))
	for k, h := range merged {
		edges[k] = Edge{A: ordered[h.i].ID(), B: ordered[h.j].ID(), Weight: h.weight}
	}
	return edges, nil
}

type pairHit struct {
	i, j   int
	weight float64
}

type invertedIndex struct {
	sets   []geneset.GeneSet
	genes  [][]string
	byGene map[string][]int
}

func newInvertedIndex(sets []geneset.GeneSet) *invertedIndex {
	idx := &invertedIndex{
		sets:   sets,
		genes:  make([][]string, len(sets)),
		byGene: make(map[string][]int),
	}
	for i, gs := range sets {
		genes := gs.Genes()
		idx.genes[i] = genes
		for _, g := range genes {
			idx.byGene[g] = append(idx.byGene[g], i)
		}
	}
	return idx
}

// scoreRow appends the retained pairs (i, j) with j > i. counts must be all
// zero on entry and is left all zero on return.
func (idx *invertedIndex) scoreRow(i int, counts, touched []int, opts Options, out []pairHit) []pairHit {
	for _, g := range idx.genes[i] {
		postings := idx.byGene[g]
		// postings are ascending; skip to the first j > i.
		start := sort.SearchInts(postings, i+1)
		for _, j := range postings[start:] {
			if counts[j] == 0 {
				touched = append(touched, j)
			}
			counts[j]++
		}
	}

	sizeI := idx.sets[i].Size()
	if opts.Threshold <= 0 {
		// Zero-overlap pairs qualify too.
		for j := i + 1; j < len(idx.sets); j++ {
			out = append(out, pairHit{i: i, j: j, weight: score(counts[j], sizeI, idx.sets[j].Size(), opts.Method)})
		}
	} else {
		sort.Ints(touched)
		for _, j := range touched {
			w := score(counts[j], sizeI, idx.sets[j].Size(), opts.Method)
			if w >= opts.Threshold {
				out = append(out, pairHit{i: i, j: j, weight: w})
			}
		}
	}

	for _, j := range touched {
		counts[j] = 0
	}
	return out
}

func score(inter, sizeA, sizeB int, method Method) float64 {
	if sizeA == 0 || sizeB == 0 {
		return 0
	}
	switch method {
	case Overlap:
		return float64(inter) / float64(min(sizeA, sizeB))
	default:
		return float64(inter) / float64(sizeA+sizeB-inter)
	}
}

func intersectionSize(a, b []string) int {
	n, i, j := 0, 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			n++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return n
}
