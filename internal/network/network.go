// Package network turns thresholded similarity edges into an immutable,
// weighted gene-set graph with node metadata.
//
// Nodes come strictly from edge endpoints. The only permitted change after
// construction is a statistic overlay, which produces a new Graph sharing the
// original edge storage.
package network

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/katalvlaran/lvlath/bfs"
	"github.com/katalvlaran/lvlath/core"

	"github.com/hurttlocker/enrichnet/internal/geneset"
	"github.com/hurttlocker/enrichnet/internal/similarity"
)

// Node is a gene-set vertex.
type Node struct {
	ID               string
	Category         string
	ShortDescription string
	Statistic        float64
	HasStatistic     bool
}

// Neighbor is one adjacency entry.
type Neighbor struct {
	ID     string
	Weight float64
}

// Graph is an undirected, weighted similarity network. Float weights live in
// adj; topo mirrors the same topology as an unweighted lvlath graph for
// traversal.
type Graph struct {
	nodes []Node
	index map[string]int
	edges []similarity.Edge
	adj   [][]Neighbor
	topo  *core.Graph
	total float64
}

// Build creates a Graph from edges, attaching category and description from
// metadata. Every endpoint must be present in metadata.
func Build(edges []similarity.Edge, metadata map[string]geneset.GeneSet) (*Graph, error) {
	canonical := make([]similarity.Edge, 0, len(edges))
	seen := make(map[[2]string]struct{}, len(edges))
	ids := make(map[string]struct{})

	for _, e := range edges {
		if e.A == e.B {
			return nil, fmt.Errorf("%w: self-edge on %q", geneset.ErrInvalidInput, e.A)
		}
		if math.IsNaN(e.Weight) || e.Weight < 0 || e.Weight > 1 {
			return nil, fmt.Errorf("%w: edge %s-%s has weight %v outside [0,1]", geneset.ErrInvalidInput, e.A, e.B, e.Weight)
		}
		if e.A > e.B {
			e.A, e.B = e.B, e.A
		}
		key := [2]string{e.A, e.B}
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: duplicate edge %s-%s", geneset.ErrInvalidInput, e.A, e.B)
		}
		seen[key] = struct{}{}

		for _, id := range key {
			if _, ok := metadata[id]; !ok {
				return nil, fmt.Errorf("%w: %q", geneset.ErrMissingMetadata, id)
			}
			ids[id] = struct{}{}
		}
		canonical = append(canonical, e)
	}

	sort.Slice(canonical, func(i, j int) bool {
		if canonical[i].A != canonical[j].A {
			return canonical[i].A < canonical[j].A
		}
		return canonical[i].B < canonical[j].B
	})

	sortedIDs := make([]string, 0, len(ids))
	for id := range ids {
		sortedIDs = append(sortedIDs, id)
	}
	sort.Strings(sortedIDs)

	g := &Graph{
		nodes: make([]Node, len(sortedIDs)),
		index: make(map[string]int, len(sortedIDs)),
		edges: canonical,
		adj:   make([][]Neighbor, len(sortedIDs)),
		topo:  core.NewGraph(),
	}
	for i, id := range sortedIDs {
		meta := metadata[id]
		g.nodes[i] = Node{
			ID:               id,
			Category:         meta.Collection(),
			ShortDescription: meta.ShortDescription(),
		}
		g.index[id] = i
		if err := g.topo.AddVertex(id); err != nil {
			return nil, fmt.Errorf("%w: vertex %q: %v", geneset.ErrInvalidInput, id, err)
		}
	}
	for _, e := range canonical {
		if _, err := g.topo.AddEdge(e.A, e.B, 0); err != nil {
			return nil, fmt.Errorf("%w: edge %s-%s: %v", geneset.ErrInvalidInput, e.A, e.B, err)
		}
		a, b := g.index[e.A], g.index[e.B]
		g.adj[a] = append(g.adj[a], Neighbor{ID: e.B, Weight: e.Weight})
		g.adj[b] = append(g.adj[b], Neighbor{ID: e.A, Weight: e.Weight})
		g.total += e.Weight
	}
	for i := range g.adj {
		list := g.adj[i]
		sort.Slice(list, func(x, y int) bool { return list[x].ID < list[y].ID })
	}
	return g, nil
}

// WithStatistic returns a copy of g whose nodes carry stats. Nodes missing from
// stats, or mapped to NaN or an infinity, have no statistic. Edges and
// adjacency are shared, not copied.
func (g *Graph) WithStatistic(stats map[string]float64) *Graph {
	out := &Graph{
		nodes: make([]Node, len(g.nodes)),
		index: g.index,
		edges: g.edges,
		adj:   g.adj,
		topo:  g.topo,
		total: g.total,
	}
	for i, n := range g.nodes {
		n.Statistic, n.HasStatistic = 0, false
		if v, ok := stats[n.ID]; ok && geneset.IsFinite(v) {
			n.Statistic, n.HasStatistic = v, true
		}
		out.nodes[i] = n
	}
	return out
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// TotalWeight returns the sum of edge weights.
func (g *Graph) TotalWeight() float64 { return g.total }

// Nodes returns all nodes sorted by id.
func (g *Graph) Nodes() []Node { return append([]Node(nil), g.nodes...) }

// IDs returns the sorted node ids.
func (g *Graph) IDs() []string {
	ids := make([]string, len(g.nodes))
	for i, n := range g.nodes {
		ids[i] = n.ID
	}
	return ids
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// Has reports whether id is a node.
func (g *Graph) Has(id string) bool {
	_, ok := g.index[id]
	return ok
}

// Edges returns the edges sorted by (A, B).
func (g *Graph) Edges() []similarity.Edge { return append([]similarity.Edge(nil), g.edges...) }

// Neighbors returns id's neighbours sorted by id.
func (g *Graph) Neighbors(id string) []Neighbor {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	return append([]Neighbor(nil), g.adj[i]...)
}

// Weight returns the weight of edge a-b.
func (g *Graph) Weight(a, b string) (float64, bool) {
	i, ok := g.index[a]
	if !ok {
		return 0, false
	}
	list := g.adj[i]
	k := sort.Search(len(list), func(x int) bool { return list[x].ID >= b })
	if k < len(list) && list[k].ID == b {
		return list[k].Weight, true
	}
	return 0, false
}

// Degree returns the number of neighbours of id.
func (g *Graph) Degree(id string) int {
	i, ok := g.index[id]
	if !ok {
		return 0
	}
	return len(g.adj[i])
}

// Strength returns the summed edge weight incident to id.
func (g *Graph) Strength(id string) float64 {
	i, ok := g.index[id]
	if !ok {
		return 0
	}
	s := 0.0
	for _, n := range g.adj[i] {
		s += n.Weight
	}
	return s
}

// Reachable returns the nodes reachable from start through edges of weight at
// least minWeight, in breadth-first order. Ties at one depth break by id.
func (g *Graph) Reachable(ctx context.Context, start string, minWeight float64) ([]string, error) {
	if !g.Has(start) {
		return nil, fmt.Errorf("%w: %q is not a node", geneset.ErrInvalidInput, start)
	}
	res, err := bfs.BFS(g.topo, start,
		bfs.WithContext(ctx),
		bfs.WithFilterNeighbor(func(curr, next string) bool {
			w, ok := g.Weight(curr, next)
			return ok && w >= minWeight
		}),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("traversing from %q: %w", start, err)
	}
	return res.Order, nil
}

// Statistic returns the node's statistic, if one is attached.
func (g *Graph) Statistic(id string) (float64, bool) {
	n, ok := g.Node(id)
	if !ok || !n.HasStatistic {
		return 0, false
	}
	return n.Statistic, true
}

// Statistics returns the attached statistics keyed by node id.
func (g *Graph) Statistics() map[string]float64 {
	out := make(map[string]float64)
	for _, n := range g.nodes {
		if n.HasStatistic {
			out[n.ID] = n.Statistic
		}
	}
	return out
}
