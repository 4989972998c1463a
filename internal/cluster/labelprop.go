package cluster

import (
	"context"
	"math/rand"

	"github.com/hurttlocker/enrichnet/internal/network"
)

const labelPropagationMaxIterations = 100

// LabelPropagation assigns every node the label carrying the largest summed
// edge weight among its neighbours, visiting nodes in a Seed-driven order until
// labels stabilise. Ties keep the current label when it is among the best,
// otherwise the smallest label wins.
type LabelPropagation struct {
	Seed      int64
	MinWeight float64
}

func (lp *LabelPropagation) Name() string { return AlgorithmLabelPropagation }

func (lp *LabelPropagation) Partition(ctx context.Context, g *network.Graph) (Grouping, error) {
	ig := indexGraph(g, lp.MinWeight)
	n := len(ig.ids)

	labels := make([]int, n)
	for i := range labels {
		labels[i] = i
	}

	rng := rand.New(rand.NewSource(lp.Seed))
	score := make(map[int]float64)
	for iter := 0; iter < labelPropagationMaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return Grouping{}, err
		}
		changed := 0
		for _, i := range rng.Perm(n) {
			if len(ig.adj[i]) == 0 {
				continue
			}
			clear(score)
			for _, l := range ig.adj[i] {
				score[labels[l.to]] += l.w
			}

			best, bestScore := -1, 0.0
			for label, s := range score {
				if best == -1 || s > bestScore || (s == bestScore && label < best) {
					best, bestScore = label, s
				}
			}
			if cur, ok := score[labels[i]]; ok && cur == bestScore {
				continue
			}
			if best != labels[i] {
				labels[i] = best
				changed++
			}
		}
		if changed == 0 {
			break
		}
	}

	return Grouping{Kind: Hard, Groups: ig.groupsFromLabels(labels)}, nil
}
