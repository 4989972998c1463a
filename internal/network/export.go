package network

// ExportNode is the plotting-friendly form of a node.
type ExportNode struct {
	ID               string   `json:"id"`
	Category         string   `json:"category,omitempty"`
	ShortDescription string   `json:"short_description,omitempty"`
	Statistic        *float64 `json:"statistic,omitempty"`
	Degree           int      `json:"degree"`
	Cluster          *int     `json:"cluster,omitempty"`
}

// ExportEdge is the plotting-friendly form of an edge.
type ExportEdge struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Weight float64 `json:"weight"`
}

// ExportResult is the full graph payload handed to renderers.
type ExportResult struct {
	Nodes []ExportNode           `json:"nodes"`
	Edges []ExportEdge           `json:"edges"`
	Meta  map[string]interface{} `json:"meta"`
}

// Export converts the graph into its JSON payload. membership optionally maps
// node ids to a cluster index for colouring.
func (g *Graph) Export(membership map[string]int) ExportResult {
	nodes := make([]ExportNode, 0, len(g.nodes))
	for i, n := range g.nodes {
		en := ExportNode{
			ID:               n.ID,
			Category:         n.Category,
			ShortDescription: n.ShortDescription,
			Degree:           len(g.adj[i]),
		}
		if n.HasStatistic {
			v := n.Statistic
			en.Statistic = &v
		}
		if c, ok := membership[n.ID]; ok {
			c := c
			en.Cluster = &c
		}
		nodes = append(nodes, en)
	}

	edges := make([]ExportEdge, 0, len(g.edges))
	for _, e := range g.edges {
		edges = append(edges, ExportEdge{Source: e.A, Target: e.B, Weight: e.Weight})
	}

	return ExportResult{
		Nodes: nodes,
		Edges: edges,
		Meta: map[string]interface{}{
			"total_nodes":  len(nodes),
			"total_edges":  len(edges),
			"total_weight": g.total,
			"ordering":     "id_asc",
		},
	}
}
