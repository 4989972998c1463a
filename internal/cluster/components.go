package cluster

import (
	"context"

	"github.com/hurttlocker/enrichnet/internal/network"
)

// Components groups nodes into connected components over edges whose weight is
// at least MinWeight. Nodes whose every edge is lighter end up as singletons.
type Components struct {
	MinWeight float64
}

func (c *Components) Name() string { return AlgorithmComponents }

// Partition seeds one breadth-first walk per unvisited node in id order, so
// component numbering is stable across runs.
func (c *Components) Partition(ctx context.Context, g *network.Graph) (Grouping, error) {
	visited := make(map[string]bool, g.NodeCount())
	var groups [][]string

	for _, start := range g.IDs() {
		if visited[start] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return Grouping{}, err
		}
		members, err := g.Reachable(ctx, start, c.MinWeight)
		if err != nil {
			return Grouping{}, err
		}
		for _, id := range members {
			visited[id] = true
		}
		groups = append(groups, members)
	}

	return Grouping{Kind: Hard, Groups: groups}, nil
}
