package cluster

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hurttlocker/enrichnet/internal/geneset"
	"github.com/hurttlocker/enrichnet/internal/network"
)

// Algorithm names accepted by Lookup.
const (
	AlgorithmComponents       = "components"
	AlgorithmLouvain          = "louvain"
	AlgorithmLabelPropagation = "label_propagation"
	AlgorithmCliques          = "cliques"
)

// DefaultAlgorithm is used when no algorithm is configured.
const DefaultAlgorithm = AlgorithmLouvain

// Algorithms returns the registered algorithm names, sorted.
func Algorithms() []string {
	names := []string{AlgorithmComponents, AlgorithmLouvain, AlgorithmLabelPropagation, AlgorithmCliques}
	sort.Strings(names)
	return names
}

// Lookup returns the partitioner registered under name. seed feeds the
// randomised variants; minWeight drops lighter edges before partitioning.
func Lookup(name string, seed int64, minWeight float64) (Partitioner, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", AlgorithmLouvain:
		return &Louvain{Seed: seed, Resolution: 1, MinWeight: minWeight}, nil
	case AlgorithmComponents, "connected_components":
		return &Components{MinWeight: minWeight}, nil
	case AlgorithmLabelPropagation, "labelprop", "label-propagation":
		return &LabelPropagation{Seed: seed, MinWeight: minWeight}, nil
	case AlgorithmCliques, "maximal_cliques":
		return &Cliques{MinWeight: minWeight}, nil
	default:
		return nil, fmt.Errorf("%w: unknown clustering algorithm %q (expected one of %s)",
			geneset.ErrInvalidInput, name, strings.Join(Algorithms(), ", "))
	}
}

// link is an adjacency entry in index space.
type link struct {
	to int
	w  float64
}

// indexedGraph is g's adjacency in sorted-id index space, keeping only edges
// with weight >= minWeight.
type indexedGraph struct {
	ids []string
	adj [][]link
}

func indexGraph(g *network.Graph, minWeight float64) indexedGraph {
	ids := g.IDs()
	pos := make(map[string]int, len(ids))
	for i, id := range ids {
		pos[id] = i
	}
	adj := make([][]link, len(ids))
	for i, id := range ids {
		for _, nb := range g.Neighbors(id) {
			if nb.Weight < minWeight {
				continue
			}
			adj[i] = append(adj[i], link{to: pos[nb.ID], w: nb.Weight})
		}
	}
	return indexedGraph{ids: ids, adj: adj}
}

// groupsFromLabels turns a node → label assignment into id groups.
func (ig indexedGraph) groupsFromLabels(labels []int) [][]string {
	byLabel := make(map[int][]string)
	order := make([]int, 0)
	for i, l := range labels {
		if _, ok := byLabel[l]; !ok {
			order = append(order, l)
		}
		byLabel[l] = append(byLabel[l], ig.ids[i])
	}
	groups := make([][]string, 0, len(order))
	for _, l := range order {
		groups = append(groups, byLabel[l])
	}
	return groups
}
