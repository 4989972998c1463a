// Package mcp provides a Model Context Protocol server for enrichnet.
//
// It exposes analysis runs and saved results (clusters, terms, graph export)
// as MCP tools, and the list of saved analyses as an MCP resource.
// Served over stdio for desktop agents.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/enrichnet/internal/cluster"
	"github.com/hurttlocker/enrichnet/internal/pipeline"
	"github.com/hurttlocker/enrichnet/internal/store"
	"github.com/hurttlocker/enrichnet/internal/textmine"
)

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Store    store.Store      // optional; without it nothing can be saved or read back
	Version  string           // version string for MCP server info
	Defaults pipeline.Options // options used where a tool call leaves a field unset
	Logger   *slog.Logger
}

// dbMu serializes all MCP tool calls that touch the database.
// The mcp-go library dispatches handlers concurrently via goroutines.
// SQLite (even with WAL) supports only one writer at a time.
var dbMu sync.Mutex

// NewServer creates a configured MCP server with all enrichnet tools and resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}
	if cfg.Defaults == (pipeline.Options{}) {
		cfg.Defaults = pipeline.DefaultOptions()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := server.NewMCPServer(
		"enrichnet",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	registerAnalyzeTool(s, cfg)
	if cfg.Store != nil {
		registerClustersTool(s, cfg.Store)
		registerTermsTool(s, cfg.Store)
		registerGraphTool(s, cfg.Store)
		registerAnalysesResource(s, cfg.Store)
	}

	return s
}

// Serve runs the server over stdio until the client disconnects.
func Serve(cfg ServerConfig) error {
	return server.ServeStdio(NewServer(cfg))
}

// --- Tools ---

func registerAnalyzeTool(s *server.MCPServer, cfg ServerConfig) {
	tool := mcp.NewTool("enrichnet_analyze",
		mcp.WithDescription("Summarise an enrichment result: build a gene-set similarity network, cluster it, and name each cluster by its most distinctive terms. Returns clusters (largest first) with members, mean statistic and top terms."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("gmt",
			mcp.Description("Gene sets as GMT text: name<TAB>description<TAB>gene... per line"),
		),
		mcp.WithString("sets_path",
			mcp.Description("Path to a GMT or YAML gene-set file (used when gmt is empty)"),
		),
		mcp.WithString("significant",
			mcp.Description("Comma or newline separated gene-set ids to analyse. Empty = every set."),
		),
		mcp.WithObject("set_stats",
			mcp.Description("Optional gene-set id to statistic map (e.g. NES or -log10 p)"),
		),
		mcp.WithObject("gene_stats",
			mcp.Description("Optional gene to statistic map stored with a saved analysis for plotting"),
		),
		mcp.WithString("method",
			mcp.Description("Similarity coefficient (default: jaccard)"),
			mcp.Enum("jaccard", "overlap"),
		),
		mcp.WithNumber("threshold",
			mcp.Description("Minimum similarity to keep an edge (default: 0.25, range: 0-1)"),
		),
		mcp.WithString("algorithm",
			mcp.Description("Clustering algorithm (default: louvain)"),
			mcp.Enum(cluster.Algorithms()...),
		),
		mcp.WithNumber("min_size",
			mcp.Description("Smallest cluster to report (default: 2)"),
		),
		mcp.WithString("text_field",
			mcp.Description("Text mined for terms (default: name)"),
			mcp.Enum(string(textmine.FieldName), string(textmine.FieldShortDescription)),
		),
		mcp.WithNumber("top_n",
			mcp.Description("Terms per cluster (default: 10, max: 100)"),
		),
		mcp.WithBoolean("save",
			mcp.Description("Persist the analysis so clusters, terms and graph can be fetched later (default: false)"),
		),
		mcp.WithString("label",
			mcp.Description("Label for a saved analysis"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		r := pipeline.Request{}
		if v, err := req.RequireString("gmt"); err == nil {
			r.GMT = v
		}
		if v, err := req.RequireString("sets_path"); err == nil {
			r.SetsPath = v
		}
		if v, err := req.RequireString("significant"); err == nil {
			r.Significant = splitIDs(v)
		}
		if raw, ok := req.GetArguments()["set_stats"].(map[string]interface{}); ok {
			stats, err := floatMap(raw)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid set_stats: %v", err)), nil
			}
			r.SetStats = stats
		}
		if raw, ok := req.GetArguments()["gene_stats"].(map[string]interface{}); ok {
			stats, err := floatMap(raw)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid gene_stats: %v", err)), nil
			}
			r.GeneStats = stats
		}
		if v, err := req.RequireString("method"); err == nil && v != "" {
			r.Method = &v
		}
		if v, err := req.RequireFloat("threshold"); err == nil {
			r.Threshold = &v
		}
		if v, err := req.RequireString("algorithm"); err == nil && v != "" {
			r.Algorithm = &v
		}
		if v, err := req.RequireFloat("min_size"); err == nil {
			n := int(v)
			r.MinSize = &n
		}
		if v, err := req.RequireString("text_field"); err == nil && v != "" {
			r.TextField = &v
		}
		if v, err := req.RequireFloat("top_n"); err == nil {
			n := int(v)
			if n > 100 {
				n = 100
			}
			r.TopN = &n
		}
		if v, err := req.RequireBool("save"); err == nil {
			r.Save = v
		}
		if v, err := req.RequireString("label"); err == nil {
			r.Label = v
		}

		opts, err := r.Options(cfg.Defaults)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid options: %v", err)), nil
		}
		in, err := r.Input(true)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("loading gene sets: %v", err)), nil
		}

		res, err := pipeline.Run(ctx, in, opts, cfg.Logger)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("analysis failed: %v", err)), nil
		}
		summary := res.Summary()

		if r.Save {
			if cfg.Store == nil {
				return mcp.NewToolResultError("save requested but no store is configured"), nil
			}
			dbMu.Lock()
			saved, reused, err := store.SaveOrReuse(ctx, cfg.Store, r.Label, res)
			dbMu.Unlock()
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("saving analysis: %v", err)), nil
			}
			summary.AnalysisID, summary.Reused = saved.ID, reused
		}

		return jsonResult(summary), nil
	})
}

func registerClustersTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("enrichnet_clusters",
		mcp.WithDescription("List the clusters of a saved analysis in rank order, each with members, mean statistic and top terms."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("analysis_id", mcp.Required(),
			mcp.Description("Saved analysis id"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		id, err := req.RequireString("analysis_id")
		if err != nil || strings.TrimSpace(id) == "" {
			return mcp.NewToolResultError("analysis_id is required"), nil
		}

		clusters, err := st.ListClusters(ctx, id)
		if err != nil {
			return storeError(err), nil
		}
		terms := make(map[int][]textmine.TermScore, len(clusters))
		for _, c := range clusters {
			ts, err := st.ListClusterTerms(ctx, id, c.Index)
			if err != nil {
				return storeError(err), nil
			}
			terms[c.Index] = ts
		}

		return jsonResult(pipeline.Summarize(clusters, terms)), nil
	})
}

func registerTermsTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("enrichnet_terms",
		mcp.WithDescription("Return the ranked characteristic terms of one cluster of a saved analysis."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("analysis_id", mcp.Required(),
			mcp.Description("Saved analysis id"),
		),
		mcp.WithNumber("cluster", mcp.Required(),
			mcp.Description("Cluster index (0 = top cluster)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		id, err := req.RequireString("analysis_id")
		if err != nil || strings.TrimSpace(id) == "" {
			return mcp.NewToolResultError("analysis_id is required"), nil
		}
		index, err := req.RequireFloat("cluster")
		if err != nil || index < 0 {
			return mcp.NewToolResultError("cluster must be a non-negative index"), nil
		}

		terms, err := st.ListClusterTerms(ctx, id, int(index))
		if err != nil {
			return storeError(err), nil
		}
		if terms == nil {
			terms = []textmine.TermScore{}
		}

		return jsonResult(terms), nil
	})
}

func registerGraphTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("enrichnet_graph",
		mcp.WithDescription("Export the similarity network of a saved analysis in visualization-ready JSON: nodes (with statistic, degree and cluster index), weighted edges and totals."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("analysis_id", mcp.Required(),
			mcp.Description("Saved analysis id"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		id, err := req.RequireString("analysis_id")
		if err != nil || strings.TrimSpace(id) == "" {
			return mcp.NewToolResultError("analysis_id is required"), nil
		}

		g, err := st.LoadGraph(ctx, id)
		if err != nil {
			return storeError(err), nil
		}
		clusters, err := st.ListClusters(ctx, id)
		if err != nil {
			return storeError(err), nil
		}

		return jsonResult(g.Export(cluster.Membership(clusters))), nil
	})
}

// --- Helpers ---

func storeError(err error) *mcp.CallToolResult {
	if errors.Is(err, store.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %v", err))
	}
	return mcp.NewToolResultError(fmt.Sprintf("store error: %v", err))
}

// splitIDs splits on commas and whitespace, dropping blanks.
func splitIDs(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r' || r == '\t' || r == ' '
	})
}

func floatMap(raw map[string]interface{}) (map[string]float64, error) {
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("%s: expected a number, got %T", k, v)
		}
		out[k] = f
	}
	return out, nil
}

// jsonResult renders v as indented JSON text, or a tool error when v cannot be
// encoded.
func jsonResult(v interface{}) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}
