package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hurttlocker/enrichnet/internal/cluster"
	"github.com/hurttlocker/enrichnet/internal/geneset"
	"github.com/hurttlocker/enrichnet/internal/pipeline"
	"github.com/hurttlocker/enrichnet/internal/similarity"
	"github.com/hurttlocker/enrichnet/internal/store"
)

type analyzeFlags struct {
	sets        string
	collection  string
	significant string
	setStats    string
	geneStats   string
	save        bool
	label       string
	edgesOut    string
	graphOut    string
	jsonOut     bool
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var f analyzeFlags

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Build, cluster and characterise a gene-set similarity network",
		Long: `Analyze loads a gene-set library (GMT, or YAML by extension), optionally
restricts it to the significant sets, links sets whose similarity reaches the
threshold, clusters the network and reports the top terms of every cluster.

Examples:
  enrichnet analyze --sets h.all.gmt --significant hits.txt --stats hits.tsv
  enrichnet analyze --sets c5.gmt --algorithm components --threshold 0.5 --json
  enrichnet analyze --sets c2.gmt --save --label "liver vs muscle"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, a, f)
		},
	}

	cmd.Flags().StringVarP(&f.sets, "sets", "s", "", "gene-set library (.gmt, .yaml)")
	cmd.Flags().StringVar(&f.collection, "collection", "", "collection label for every set read from GMT")
	cmd.Flags().StringVar(&f.significant, "significant", "", "file of significant set ids, one per line")
	cmd.Flags().StringVar(&f.setStats, "stats", "", "CSV/TSV of set id and statistic")
	cmd.Flags().StringVar(&f.geneStats, "gene-stats", "", "CSV/TSV of gene id and statistic")
	cmd.Flags().BoolVar(&f.save, "save", false, "save the analysis to the database")
	cmd.Flags().StringVar(&f.label, "label", "", "label for the saved analysis")
	cmd.Flags().StringVar(&f.edgesOut, "edges", "", "write the edge table (TSV) to this path")
	cmd.Flags().StringVar(&f.graphOut, "graph", "", "write the graph export (JSON) to this path")
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "print the summary as JSON")
	_ = cmd.MarkFlagRequired("sets")
	addAnalysisFlags(cmd, a)

	return cmd
}

func runAnalyze(cmd *cobra.Command, a *app, f analyzeFlags) error {
	opts, err := a.pipelineOptions()
	if err != nil {
		return err
	}

	in, err := loadInput(f)
	if err != nil {
		return err
	}

	res, err := pipeline.Run(cmd.Context(), in, opts, a.logger)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	if f.edgesOut != "" {
		if err := writeFile(f.edgesOut, func(w io.Writer) error {
			return similarity.WriteEdges(w, res.Edges)
		}); err != nil {
			return fmt.Errorf("write edges: %w", err)
		}
	}
	if f.graphOut != "" {
		export := res.Graph.Export(cluster.Membership(res.Clusters))
		if err := writeFile(f.graphOut, func(w io.Writer) error {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(export)
		}); err != nil {
			return fmt.Errorf("write graph: %w", err)
		}
	}

	summary := res.Summary()
	if f.save {
		st, err := a.openStore()
		if err != nil {
			return err
		}
		saved, reused, err := store.SaveOrReuse(cmd.Context(), st, f.label, res)
		if err != nil {
			return fmt.Errorf("save analysis: %w", err)
		}
		summary.AnalysisID, summary.Reused = saved.ID, reused
	}

	out := cmd.OutOrStdout()
	if f.jsonOut {
		return printJSON(out, summary)
	}
	printSummary(out, summary)
	return nil
}

func loadInput(f analyzeFlags) (pipeline.Input, error) {
	sets, err := geneset.Load(f.sets, geneset.GMTOptions{Collection: f.collection})
	if err != nil {
		return pipeline.Input{}, fmt.Errorf("load gene sets: %w", err)
	}
	in := pipeline.Input{Sets: sets}

	if f.significant != "" {
		if in.Significant, err = geneset.LoadIDList(f.significant); err != nil {
			return in, fmt.Errorf("load significant sets: %w", err)
		}
	}
	if f.setStats != "" {
		if in.SetStats, err = geneset.LoadStatistics(f.setStats); err != nil {
			return in, fmt.Errorf("load set statistics: %w", err)
		}
	}
	if f.geneStats != "" {
		if in.GeneStats, err = geneset.LoadStatistics(f.geneStats); err != nil {
			return in, fmt.Errorf("load gene statistics: %w", err)
		}
	}
	return in, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSummary(w io.Writer, s pipeline.Summary) {
	o := s.Options
	fmt.Fprintf(w, "%d gene-sets, %d edges, %d clusters (%s, %s >= %g)\n",
		s.Nodes, s.Edges, len(s.Clusters), o.Algorithm, o.Method, o.Threshold)
	if len(s.Missing) > 0 {
		fmt.Fprintf(w, "Not in library (%d): %s\n", len(s.Missing), strings.Join(s.Missing, ", "))
	}
	switch {
	case s.Reused:
		fmt.Fprintf(w, "Identical analysis already saved as %s\n", s.AnalysisID)
	case s.AnalysisID != "":
		fmt.Fprintf(w, "Saved analysis %s\n", s.AnalysisID)
	}
	printClusters(w, s.Clusters)
}

func printClusters(w io.Writer, clusters []pipeline.ClusterSummary) {
	for _, c := range clusters {
		fmt.Fprintf(w, "\nCluster %d  size=%d  mean=%.3f", c.Index, c.Size, c.MeanStatistic)
		if c.Kind == cluster.Overlapping {
			fmt.Fprint(w, "  (overlapping)")
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  members: %s\n", strings.Join(c.Members, ", "))
		if len(c.Terms) == 0 {
			continue
		}
		terms := make([]string, len(c.Terms))
		for i, t := range c.Terms {
			terms[i] = fmt.Sprintf("%s (%.2f)", t.Term, t.Weight)
		}
		fmt.Fprintf(w, "  terms:   %s\n", strings.Join(terms, ", "))
	}
}
