package cluster

import (
	"context"
	"sort"

	"github.com/hurttlocker/enrichnet/internal/network"
)

// Cliques reports every maximal clique (Bron–Kerbosch with pivoting) over
// edges with weight >= MinWeight. A gene-set can sit in several cliques, so
// the grouping is Overlapping. The number of maximal cliques can grow quickly
// on dense graphs; raise the similarity threshold or MinWeight in that case.
type Cliques struct {
	MinWeight float64
}

func (c *Cliques) Name() string { return AlgorithmCliques }

func (c *Cliques) Partition(ctx context.Context, g *network.Graph) (Grouping, error) {
	ig := indexGraph(g, c.MinWeight)
	n := len(ig.ids)

	neighbors := make([]map[int]struct{}, n)
	for i, links := range ig.adj {
		neighbors[i] = make(map[int]struct{}, len(links))
		for _, l := range links {
			neighbors[i][l.to] = struct{}{}
		}
	}

	bk := &bronKerbosch{ctx: ctx, neighbors: neighbors}
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}
	if err := bk.run(nil, all, nil); err != nil {
		return Grouping{}, err
	}

	groups := make([][]string, 0, len(bk.cliques))
	for _, clique := range bk.cliques {
		ids := make([]string, len(clique))
		for k, v := range clique {
			ids[k] = ig.ids[v]
		}
		groups = append(groups, ids)
	}
	return Grouping{Kind: Overlapping, Groups: groups}, nil
}

type bronKerbosch struct {
	ctx       context.Context
	neighbors []map[int]struct{}
	cliques   [][]int
}

// run expands clique r with candidates p and excluded x; p and x are sorted.
func (bk *bronKerbosch) run(r, p, x []int) error {
	if err := bk.ctx.Err(); err != nil {
		return err
	}
	if len(p) == 0 && len(x) == 0 {
		clique := append([]int(nil), r...)
		sort.Ints(clique)
		bk.cliques = append(bk.cliques, clique)
		return nil
	}

	pivot := bk.choosePivot(p, x)
	candidates := make([]int, 0, len(p))
	for _, v := range p {
		if _, adjacent := bk.neighbors[pivot][v]; !adjacent {
			candidates = append(candidates, v)
		}
	}

	for _, v := range candidates {
		nv := bk.neighbors[v]
		if err := bk.run(append(r, v), intersect(p, nv), intersect(x, nv)); err != nil {
			return err
		}
		p = remove(p, v)
		x = insertSorted(x, v)
	}
	return nil
}

// choosePivot picks the vertex of p∪x with the most neighbours in p; ties go
// to the smallest index.
func (bk *bronKerbosch) choosePivot(p, x []int) int {
	best, bestCount := -1, -1
	for _, set := range [][]int{p, x} {
		for _, u := range set {
			count := 0
			for _, v := range p {
				if _, ok := bk.neighbors[u][v]; ok {
					count++
				}
			}
			if count > bestCount || (count == bestCount && u < best) {
				best, bestCount = u, count
			}
		}
	}
	return best
}

func intersect(set []int, with map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for _, v := range set {
		if _, ok := with[v]; ok {
			out = append(out, v)
		}
	}
	return out
}

func remove(set []int, v int) []int {
	out := make([]int, 0, len(set))
	for _, u := range set {
		if u != v {
			out = append(out, u)
		}
	}
	return out
}

func insertSorted(set []int, v int) []int {
	i := sort.SearchInts(set, v)
	out := make([]int, 0, len(set)+1)
	out = append(out, set[:i]...)
	out = append(out, v)
	return append(out, set[i:]...)
}
