package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/enrichnet/internal/store"
)

func registerAnalysesResource(s *server.MCPServer, st store.Store) {
	resource := mcp.NewResource(
		"enrichnet://analyses",
		"Saved Analyses",
		mcp.WithResourceDescription("The 50 most recent saved analyses with their settings and graph sizes."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		analyses, err := st.ListAnalyses(ctx, store.ListOpts{Limit: 50})
		if err != nil {
			return nil, fmt.Errorf("listing analyses: %w", err)
		}

		type analysisInfo struct {
			ID        string `json:"id"`
			Label     string `json:"label,omitempty"`
			Algorithm string `json:"algorithm"`
			Nodes     int    `json:"nodes"`
			Edges     int    `json:"edges"`
			Clusters  int    `json:"clusters"`
			CreatedAt string `json:"created_at"`
		}
		items := make([]analysisInfo, 0, len(analyses))
		for _, a := range analyses {
			items = append(items, analysisInfo{
				ID:        a.ID,
				Label:     a.Label,
				Algorithm: a.Options.Algorithm,
				Nodes:     a.NodeCount,
				Edges:     a.EdgeCount,
				Clusters:  a.ClusterCount,
				CreatedAt: a.CreatedAt.Format(time.RFC3339),
			})
		}

		payload := map[string]interface{}{
			"analyses": items,
			"count":    len(items),
		}
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encoding analyses: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}
