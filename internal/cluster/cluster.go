// Package cluster partitions a similarity graph into ordered clusters.
//
// Partitioning is delegated to a Partitioner; the engine only filters, scores
// and orders what the partitioner returns. Ordering is (size desc, mean
// statistic desc) with the sorted member list as the final tie-break, so the
// output is a pure function of the partitioner's raw grouping.
package cluster

import (
	"context"
	"fmt"
	"sort"

	"github.com/hurttlocker/enrichnet/internal/geneset"
	"github.com/hurttlocker/enrichnet/internal/network"
)

// PartitionKind states whether a node may belong to more than one group.
type PartitionKind string

const (
	// Hard groupings assign every node to at most one group.
	Hard PartitionKind = "hard"
	// Overlapping groupings may place a node in several groups.
	Overlapping PartitionKind = "overlapping"
)

// Grouping is a partitioner's raw output.
type Grouping struct {
	Kind   PartitionKind
	Groups [][]string
}

// Partitioner groups the nodes of a graph.
type Partitioner interface {
	Name() string
	Partition(ctx context.Context, g *network.Graph) (Grouping, error)
}

// Cluster is one ordered output group. Members are sorted by id.
type Cluster struct {
	Index          int           `json:"index"`
	Kind           PartitionKind `json:"kind"`
	Members        []string      `json:"members"`
	Size           int           `json:"size"`
	MeanStatistic  float64       `json:"mean_statistic"`
	StatisticCount int           `json:"statistic_count"`
}

// Contains reports whether id is a member.
func (c Cluster) Contains(id string) bool {
	i := sort.SearchStrings(c.Members, id)
	return i < len(c.Members) && c.Members[i] == id
}

// Options controls FindClusters.
type Options struct {
	// MinSize drops groups with fewer members. Must be >= 1.
	MinSize int
	// Stats overrides the graph's attached statistics when non-nil.
	Stats map[string]float64
}

// FindClusters partitions g with p, drops groups smaller than MinSize and
// returns the survivors ordered by (size, mean statistic) descending.
// A graph with no nodes fails with geneset.ErrEmptyGraph; no surviving group
// yields an empty slice.
func FindClusters(ctx context.Context, g *network.Graph, p Partitioner, opts Options) ([]Cluster, error) {
	if g == nil || g.NodeCount() == 0 {
		return nil, geneset.ErrEmptyGraph
	}
	if p == nil {
		return nil, fmt.Errorf("%w: no partitioner", geneset.ErrInvalidInput)
	}
	if opts.MinSize < 1 {
		return nil, fmt.Errorf("%w: min size %d < 1", geneset.ErrInvalidInput, opts.MinSize)
	}

	raw, err := p.Partition(ctx, g)
	if err != nil {
		return nil, fmt.Errorf("partitioning with %s: %w", p.Name(), err)
	}
	kind := raw.Kind
	switch kind {
	case "":
		kind = Hard
	case Hard, Overlapping:
	default:
		return nil, fmt.Errorf("%w: %s returned unknown partition kind %q", geneset.ErrInvalidInput, p.Name(), kind)
	}

	stats := opts.Stats
	if stats == nil {
		stats = g.Statistics()
	} else if err := geneset.CheckStatistics("cluster statistic", stats); err != nil {
		return nil, err
	}

	assigned := make(map[string]struct{}, g.NodeCount())
	clusters := make([]Cluster, 0, len(raw.Groups))
	for _, group := range raw.Groups {
		members := uniqueSorted(group)
		for _, id := range members {
			if !g.Has(id) {
				return nil, fmt.Errorf("%w: %s returned unknown node %q", geneset.ErrInvalidInput, p.Name(), id)
			}
			if kind == Hard {
				if _, dup := assigned[id]; dup {
					return nil, fmt.Errorf("%w: %s placed %q in more than one group of a hard partition", geneset.ErrInvalidInput, p.Name(), id)
				}
				assigned[id] = struct{}{}
			}
		}
		if len(members) == 0 || len(members) < opts.MinSize {
			continue
		}

		mean, n := meanStatistic(members, stats)
		clusters = append(clusters, Cluster{
			Kind:           kind,
			Members:        members,
			Size:           len(members),
			MeanStatistic:  mean,
			StatisticCount: n,
		})
	}

	sort.SliceStable(clusters, func(i, j int) bool { return less(clusters[i], clusters[j]) })
	for i := range clusters {
		clusters[i].Index = i
	}
	return clusters, nil
}

// Membership maps node ids to the index of the first cluster containing them.
func Membership(clusters []Cluster) map[string]int {
	out := make(map[string]int)
	for _, c := range clusters {
		for _, id := range c.Members {
			if _, ok := out[id]; !ok {
				out[id] = c.Index
			}
		}
	}
	return out
}

func less(a, b Cluster) bool {
	if a.Size != b.Size {
		return a.Size > b.Size
	}
	if a.MeanStatistic != b.MeanStatistic {
		return a.MeanStatistic > b.MeanStatistic
	}
	for k := 0; k < len(a.Members) && k < len(b.Members); k++ {
		if a.Members[k] != b.Members[k] {
			return a.Members[k] < b.Members[k]
		}
	}
	return false
}

// meanStatistic averages members that have a finite statistic; all absent
// gives 0.
func meanStatistic(members []string, stats map[string]float64) (float64, int) {
	sum, n := 0.0, 0
	for _, id := range members {
		v, ok := stats[id]
		if !ok || !geneset.IsFinite(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

func uniqueSorted(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	w := 0
	for i, id := range out {
		if i > 0 && id == out[w-1] {
			continue
		}
		out[w] = id
		w++
	}
	return out[:w]
}
