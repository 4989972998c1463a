package pipeline

import (
	"github.com/hurttlocker/enrichnet/internal/cluster"
	"github.com/hurttlocker/enrichnet/internal/textmine"
)

// ClusterSummary is a cluster together with its ranked terms.
type ClusterSummary struct {
	cluster.Cluster
	Terms []textmine.TermScore `json:"terms"`
}

// Summary is the compact JSON view of a Result.
type Summary struct {
	AnalysisID string           `json:"analysis_id,omitempty"`
	Reused     bool             `json:"reused,omitempty"`
	Nodes      int              `json:"nodes"`
	Edges      int              `json:"edges"`
	Missing    []string         `json:"missing,omitempty"`
	Clusters   []ClusterSummary `json:"clusters"`
	Options    Options          `json:"options"`
}

// Summarize joins clusters with their terms in cluster order.
func Summarize(clusters []cluster.Cluster, terms map[int][]textmine.TermScore) []ClusterSummary {
	out := make([]ClusterSummary, 0, len(clusters))
	for _, c := range clusters {
		ts := terms[c.Index]
		if ts == nil {
			ts = []textmine.TermScore{}
		}
		out = append(out, ClusterSummary{Cluster: c, Terms: ts})
	}
	return out
}

// Summary returns the compact view of r.
func (r *Result) Summary() Summary {
	s := Summary{
		Missing:  r.Missing,
		Clusters: Summarize(r.Clusters, r.Terms),
		Options:  r.Options,
	}
	if r.Graph != nil {
		s.Nodes = r.Graph.NodeCount()
		s.Edges = r.Graph.EdgeCount()
	}
	return s
}
