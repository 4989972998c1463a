package mcp

import (
	"context"
	"encoding/json"
	"math"
	"reflect"
	"strings"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/enrichnet/internal/network"
	"github.com/hurttlocker/enrichnet/internal/pipeline"
	"github.com/hurttlocker/enrichnet/internal/store"
	"github.com/hurttlocker/enrichnet/internal/textmine"
)

const testGMT = "GOBP_IMMUNE_RESPONSE\timmune response\tG1\tG2\tG3\n" +
	"GOBP_INNATE_IMMUNE_RESPONSE\tinnate immune response\tG2\tG3\tG4\n" +
	"KEGG_LIPID_TRANSPORT\tlipid transport\tG10\tG11\n" +
	"KEGG_LIPID_METABOLISM\tlipid metabolism\tG10\tG11\tG12\n" +
	"HALLMARK_HYPOXIA\thypoxia\tG20\n"

// helper: create an empty in-memory store
func setupTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewStore(store.StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestServer(t *testing.T) *server.MCPServer {
	t.Helper()
	return NewServer(ServerConfig{Store: setupTestStore(t), Version: "test"})
}

func TestNewServer(t *testing.T) {
	srv := newTestServer(t)
	if srv == nil {
		t.Fatal("NewServer returned nil")
	}
}

// callTool invokes an MCP tool through the JSON-RPC entry point.
func callTool(t *testing.T, srv *server.MCPServer, name string, args map[string]interface{}) *mcplib.CallToolResult {
	t.Helper()

	result := srv.HandleMessage(context.Background(), mustMarshal(t, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]interface{}{
			"name":      name,
			"arguments": args,
		},
	}))

	respBytes, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}

	var resp struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, string(respBytes))
	}
	if resp.Error != nil {
		t.Fatalf("JSON-RPC error: %d %s", resp.Error.Code, resp.Error.Message)
	}

	callResult := &mcplib.CallToolResult{IsError: resp.Result.IsError}
	for _, c := range resp.Result.Content {
		if c.Type == "text" {
			callResult.Content = append(callResult.Content, mcplib.NewTextContent(c.Text))
		}
	}
	return callResult
}

func mustMarshal(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func getTextContent(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no text content found")
	return ""
}

// analyzeAndSave runs enrichnet_analyze with save=true and returns the summary.
func analyzeAndSave(t *testing.T, srv *server.MCPServer) pipeline.Summary {
	t.Helper()
	result := callTool(t, srv, "enrichnet_analyze", map[string]interface{}{
		"gmt":       testGMT,
		"algorithm": "components",
		"set_stats": map[string]interface{}{"KEGG_LIPID_TRANSPORT": 4.0, "GOBP_IMMUNE_RESPONSE": 1.0},
		"save":      true,
		"label":     "test run",
	})
	text := getTextContent(t, result)
	if result.IsError {
		t.Fatalf("analyze failed: %s", text)
	}
	var summary pipeline.Summary
	if err := json.Unmarshal([]byte(text), &summary); err != nil {
		t.Fatalf("parsing summary: %v\n%s", err, text)
	}
	return summary
}

func TestAnalyzeTool(t *testing.T) {
	srv := newTestServer(t)
	summary := analyzeAndSave(t, srv)

	if summary.AnalysisID == "" {
		t.Fatal("expected an analysis id when save=true")
	}
	if summary.Nodes != 4 || summary.Edges != 2 {
		t.Fatalf("unexpected graph size: %+v", summary)
	}
	if len(summary.Clusters) != 2 {
		t.Fatalf("expected 2 clusters, got %+v", summary.Clusters)
	}
	top := summary.Clusters[0]
	if !reflect.DeepEqual(top.Members, []string{"KEGG_LIPID_METABOLISM", "KEGG_LIPID_TRANSPORT"}) {
		t.Fatalf("higher-statistic cluster should rank first: %+v", top)
	}
	if len(top.Terms) == 0 || top.Terms[0].Term != "lipid" {
		t.Fatalf("unexpected top terms: %+v", top.Terms)
	}
}

func TestAnalyzeToolReusesMatchingSave(t *testing.T) {
	srv := newTestServer(t)
	first := analyzeAndSave(t, srv)

	tests := []struct {
		name       string
		geneStats  map[string]interface{}
		wantReused bool
	}{
		{"same inputs", nil, true},
		{"added gene statistics", map[string]interface{}{"G1": 2.0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := map[string]interface{}{
				"gmt":       testGMT,
				"algorithm": "components",
				"set_stats": map[string]interface{}{"KEGG_LIPID_TRANSPORT": 4.0, "GOBP_IMMUNE_RESPONSE": 1.0},
				"save":      true,
				"label":     "again",
			}
			if tt.geneStats != nil {
				args["gene_stats"] = tt.geneStats
			}
			result := callTool(t, srv, "enrichnet_analyze", args)
			text := getTextContent(t, result)
			if result.IsError {
				t.Fatalf("analyze failed: %s", text)
			}
			var summary pipeline.Summary
			if err := json.Unmarshal([]byte(text), &summary); err != nil {
				t.Fatalf("parsing summary: %v", err)
			}
			if summary.Reused != tt.wantReused || (summary.AnalysisID == first.AnalysisID) != tt.wantReused {
				t.Fatalf("got id %s reused=%v, first id %s", summary.AnalysisID, summary.Reused, first.AnalysisID)
			}
		})
	}
}

func TestAnalyzeToolWithoutSave(t *testing.T) {
	srv := newTestServer(t)
	result := callTool(t, srv, "enrichnet_analyze", map[string]interface{}{
		"gmt":         testGMT,
		"significant": "GOBP_IMMUNE_RESPONSE, GOBP_INNATE_IMMUNE_RESPONSE\nMISSING_SET",
		"text_field":  "short_description",
		"top_n":       float64(2),
	})
	text := getTextContent(t, result)
	if result.IsError {
		t.Fatalf("analyze failed: %s", text)
	}
	var summary pipeline.Summary
	if err := json.Unmarshal([]byte(text), &summary); err != nil {
		t.Fatalf("parsing summary: %v", err)
	}
	if summary.AnalysisID != "" {
		t.Fatalf("nothing should be saved: %s", summary.AnalysisID)
	}
	if !reflect.DeepEqual(summary.Missing, []string{"MISSING_SET"}) {
		t.Fatalf("missing = %v", summary.Missing)
	}
	if len(summary.Clusters) != 1 || len(summary.Clusters[0].Terms) != 2 {
		t.Fatalf("expected one cluster with 2 terms, got %+v", summary.Clusters)
	}
}

func TestAnalyzeToolErrors(t *testing.T) {
	srv := newTestServer(t)
	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"no sets", map[string]interface{}{}, "loading gene sets"},
		{"bad threshold", map[string]interface{}{"gmt": testGMT, "threshold": 2.0}, "invalid options"},
		{"bad field", map[string]interface{}{"gmt": testGMT, "text_field": "genes"}, "invalid options"},
		{"empty graph", map[string]interface{}{"gmt": testGMT, "threshold": 0.99}, "analysis failed"},
		{"bad stats", map[string]interface{}{"gmt": testGMT, "set_stats": map[string]interface{}{"A": "high"}}, "invalid set_stats"},
		{"bad gene stats", map[string]interface{}{"gmt": testGMT, "gene_stats": map[string]interface{}{"G1": true}}, "invalid gene_stats"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := callTool(t, srv, "enrichnet_analyze", tt.args)
			if !result.IsError {
				t.Fatal("expected an error result")
			}
			if text := getTextContent(t, result); !strings.Contains(text, tt.want) {
				t.Fatalf("expected %q in %q", tt.want, text)
			}
		})
	}
}

func TestClustersTool(t *testing.T) {
	srv := newTestServer(t)
	summary := analyzeAndSave(t, srv)

	result := callTool(t, srv, "enrichnet_clusters", map[string]interface{}{"analysis_id": summary.AnalysisID})
	var clusters []pipeline.ClusterSummary
	if err := json.Unmarshal([]byte(getTextContent(t, result)), &clusters); err != nil {
		t.Fatalf("parsing clusters: %v", err)
	}
	if !reflect.DeepEqual(clusters, summary.Clusters) {
		t.Fatalf("saved clusters differ:\n got %+v\nwant %+v", clusters, summary.Clusters)
	}
}

func TestTermsTool(t *testing.T) {
	srv := newTestServer(t)
	summary := analyzeAndSave(t, srv)

	result := callTool(t, srv, "enrichnet_terms", map[string]interface{}{
		"analysis_id": summary.AnalysisID,
		"cluster":     float64(1),
	})
	var terms []textmine.TermScore
	if err := json.Unmarshal([]byte(getTextContent(t, result)), &terms); err != nil {
		t.Fatalf("parsing terms: %v", err)
	}
	if len(terms) == 0 || terms[0].Term != "immune" {
		t.Fatalf("unexpected terms: %+v", terms)
	}

	missing := callTool(t, srv, "enrichnet_terms", map[string]interface{}{
		"analysis_id": summary.AnalysisID,
		"cluster":     float64(7),
	})
	if !missing.IsError || !strings.Contains(getTextContent(t, missing), "not found") {
		t.Fatalf("expected not found error, got %+v", missing)
	}
}

func TestGraphTool(t *testing.T) {
	srv := newTestServer(t)
	summary := analyzeAndSave(t, srv)

	result := callTool(t, srv, "enrichnet_graph", map[string]interface{}{"analysis_id": summary.AnalysisID})
	var export network.ExportResult
	if err := json.Unmarshal([]byte(getTextContent(t, result)), &export); err != nil {
		t.Fatalf("parsing graph: %v", err)
	}
	if len(export.Nodes) != 4 || len(export.Edges) != 2 {
		t.Fatalf("unexpected export size: %d nodes, %d edges", len(export.Nodes), len(export.Edges))
	}
	for _, n := range export.Nodes {
		if n.Cluster == nil {
			t.Fatalf("node %s should carry its cluster index", n.ID)
		}
		if n.ID == "KEGG_LIPID_TRANSPORT" && (n.Statistic == nil || *n.Statistic != 4) {
			t.Fatalf("statistic not exported: %+v", n)
		}
	}

	unknown := callTool(t, srv, "enrichnet_graph", map[string]interface{}{"analysis_id": "nope"})
	if !unknown.IsError {
		t.Fatal("expected error for unknown analysis")
	}
}

func TestAnalysesResource(t *testing.T) {
	srv := newTestServer(t)
	summary := analyzeAndSave(t, srv)

	raw := srv.HandleMessage(context.Background(), mustMarshal(t, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      2,
		"method":  "resources/read",
		"params":  map[string]interface{}{"uri": "enrichnet://analyses"},
	}))
	respBytes, err := json.Marshal(raw)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	var resp struct {
		Result struct {
			Contents []struct {
				Text string `json:"text"`
			} `json:"contents"`
		} `json:"result"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil || len(resp.Result.Contents) == 0 {
		t.Fatalf("unexpected resource response: %s (%v)", respBytes, err)
	}

	var payload struct {
		Count    int `json:"count"`
		Analyses []struct {
			ID    string `json:"id"`
			Label string `json:"label"`
		} `json:"analyses"`
	}
	if err := json.Unmarshal([]byte(resp.Result.Contents[0].Text), &payload); err != nil {
		t.Fatalf("parsing payload: %v", err)
	}
	if payload.Count != 1 || payload.Analyses[0].ID != summary.AnalysisID || payload.Analyses[0].Label != "test run" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestAnalyzeSaveWithoutStore(t *testing.T) {
	srv := NewServer(ServerConfig{})
	result := callTool(t, srv, "enrichnet_analyze", map[string]interface{}{"gmt": testGMT, "save": true})
	if !result.IsError || !strings.Contains(getTextContent(t, result), "no store") {
		t.Fatalf("expected no-store error, got %+v", result)
	}
}

func TestJSONResult(t *testing.T) {
	tests := []struct {
		name    string
		value   interface{}
		wantErr bool
	}{
		{"object", map[string]float64{"mean": 1.5}, false},
		{"nan", map[string]float64{"mean": math.NaN()}, true},
		{"infinity", []float64{math.Inf(-1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := jsonResult(tt.value)
			if result.IsError != tt.wantErr {
				t.Fatalf("IsError = %v, want %v", result.IsError, tt.wantErr)
			}
			text := getTextContent(t, result)
			if tt.wantErr && !strings.Contains(text, "encoding result") {
				t.Fatalf("unexpected error text %q", text)
			}
		})
	}
}

func TestSplitIDs(t *testing.T) {
	got := splitIDs(" A,B\nC\t D,, ")
	if want := []string{"A", "B", "C", "D"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("splitIDs = %v, want %v", got, want)
	}
}
