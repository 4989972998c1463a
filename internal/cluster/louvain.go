package cluster

import (
	"context"
	"math/rand"
	"sort"

	"github.com/hurttlocker/enrichnet/internal/network"
)

const (
	louvainMaxLevels = 32
	louvainMaxPasses = 128
	louvainEpsilon   = 1e-12
)

// Louvain maximises weighted modularity by greedy local moves followed by
// community aggregation, repeated until no node moves. Node visiting order is
// drawn from Seed, so a fixed seed reproduces the same partition.
type Louvain struct {
	Seed       int64
	Resolution float64
	MinWeight  float64
}

func (l *Louvain) Name() string { return AlgorithmLouvain }

func (l *Louvain) Partition(ctx context.Context, g *network.Graph) (Grouping, error) {
	ig := indexGraph(g, l.MinWeight)
	n := len(ig.ids)

	resolution := l.Resolution
	if resolution <= 0 {
		resolution = 1
	}

	level := newLevelGraph(ig.adj)
	membership := make([]int, n)
	for i := range membership {
		membership[i] = i
	}
	if level.m2 == 0 {
		return Grouping{Kind: Hard, Groups: ig.groupsFromLabels(membership)}, nil
	}

	rng := rand.New(rand.NewSource(l.Seed))
	for lvl := 0; lvl < louvainMaxLevels; lvl++ {
		if err := ctx.Err(); err != nil {
			return Grouping{}, err
		}
		comm, moved, err := level.localMoves(ctx, rng, resolution)
		if err != nil {
			return Grouping{}, err
		}
		if !moved {
			break
		}
		renumbered, count := renumber(comm)
		for i := range membership {
			membership[i] = renumbered[membership[i]]
		}
		level = level.aggregate(renumbered, count)
	}

	return Grouping{Kind: Hard, Groups: ig.groupsFromLabels(membership)}, nil
}

// levelGraph is the weighted graph of one Louvain level. self holds the
// internal weight of aggregated nodes; degree counts self-loops twice.
type levelGraph struct {
	adj    [][]link
	self   []float64
	degree []float64
	m2     float64
}

func newLevelGraph(adj [][]link) *levelGraph {
	lg := &levelGraph{
		adj:    adj,
		self:   make([]float64, len(adj)),
		degree: make([]float64, len(adj)),
	}
	lg.computeDegrees()
	return lg
}

func (lg *levelGraph) computeDegrees() {
	lg.m2 = 0
	for i, links := range lg.adj {
		d := 2 * lg.self[i]
		for _, l := range links {
			d += l.w
		}
		lg.degree[i] = d
		lg.m2 += d
	}
}

// localMoves runs move passes until a full pass changes nothing. It reports
// whether any node ended outside its starting singleton community.
func (lg *levelGraph) localMoves(ctx context.Context, rng *rand.Rand, resolution float64) ([]int, bool, error) {
	n := len(lg.adj)
	comm := make([]int, n)
	tot := make([]float64, n)
	for i := range comm {
		comm[i] = i
		tot[i] = lg.degree[i]
	}

	order := rng.Perm(n)
	weights := make([]float64, n)
	touched := make([]int, 0, 16)
	movedAny := false

	for pass := 0; pass < louvainMaxPasses; pass++ {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		moves := 0
		for _, i := range order {
			ci := comm[i]
			ki := lg.degree[i]

			touched = touched[:0]
			for _, l := range lg.adj[i] {
				c := comm[l.to]
				if weights[c] == 0 {
					touched = append(touched, c)
				}
				weights[c] += l.w
			}

			tot[ci] -= ki
			best := ci
			bestGain := weights[ci] - resolution*tot[ci]*ki/lg.m2
			sort.Ints(touched)
			for _, c := range touched {
				gain := weights[c] - resolution*tot[c]*ki/lg.m2
				if gain > bestGain+louvainEpsilon {
					best, bestGain = c, gain
				}
			}
			tot[best] += ki
			comm[i] = best
			if best != ci {
				moves++
				movedAny = true
			}

			for _, c := range touched {
				weights[c] = 0
			}
		}
		if moves == 0 {
			break
		}
	}
	return comm, movedAny, nil
}

// aggregate collapses each community into one node.
func (lg *levelGraph) aggregate(comm []int, count int) *levelGraph {
	next := &levelGraph{
		adj:    make([][]link, count),
		self:   make([]float64, count),
		degree: make([]float64, count),
	}
	between := make([]map[int]float64, count)
	for i := range between {
		between[i] = make(map[int]float64)
	}

	for i, links := range lg.adj {
		ci := comm[i]
		next.self[ci] += lg.self[i]
		for _, l := range links {
			cj := comm[l.to]
			if ci == cj {
				// Each internal edge is seen from both ends.
				next.self[ci] += l.w / 2
				continue
			}
			between[ci][cj] += l.w
		}
	}

	for c, m := range between {
		targets := make([]int, 0, len(m))
		for t := range m {
			targets = append(targets, t)
		}
		sort.Ints(targets)
		for _, t := range targets {
			next.adj[c] = append(next.adj[c], link{to: t, w: m[t]})
		}
	}
	next.computeDegrees()
	return next
}

// renumber maps community labels to 0..count-1 in order of first appearance.
func renumber(comm []int) ([]int, int) {
	ids := make(map[int]int)
	out := make([]int, len(comm))
	for i, c := range comm {
		id, ok := ids[c]
		if !ok {
			id = len(ids)
			ids[c] = id
		}
		out[i] = id
	}
	return out, len(ids)
}
