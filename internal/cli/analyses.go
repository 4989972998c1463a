package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hurttlocker/enrichnet/internal/pipeline"
	"github.com/hurttlocker/enrichnet/internal/store"
	"github.com/hurttlocker/enrichnet/internal/textmine"
)

func newListCmd(a *app) *cobra.Command {
	var (
		limit   int
		offset  int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved analyses, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			analyses, err := st.ListAnalyses(cmd.Context(), store.ListOpts{Limit: limit, Offset: offset})
			if err != nil {
				return fmt.Errorf("list analyses: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				if analyses == nil {
					analyses = []*store.Analysis{}
				}
				return printJSON(out, analyses)
			}
			if len(analyses) == 0 {
				fmt.Fprintln(out, "No analyses found.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tLABEL\tNODES\tEDGES\tCLUSTERS\tALGORITHM")
			for _, an := range analyses {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
					an.ID, an.CreatedAt.Local().Format("2006-01-02 15:04"), an.Label,
					an.NodeCount, an.EdgeCount, an.ClusterCount, an.Options.Algorithm)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "max results")
	cmd.Flags().IntVar(&offset, "offset", 0, "skip this many results")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print as JSON")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a saved analysis with its clusters and terms",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			id := args[0]

			an, err := st.GetAnalysis(ctx, id)
			if err != nil {
				return fmt.Errorf("get analysis: %w", err)
			}
			clusters, err := st.ListClusters(ctx, id)
			if err != nil {
				return fmt.Errorf("list clusters: %w", err)
			}
			terms := make(map[int][]textmine.TermScore, len(clusters))
			for _, c := range clusters {
				if terms[c.Index], err = st.ListClusterTerms(ctx, id, c.Index); err != nil {
					return fmt.Errorf("list terms for cluster %d: %w", c.Index, err)
				}
			}

			summary := pipeline.Summary{
				AnalysisID: an.ID,
				Nodes:      an.NodeCount,
				Edges:      an.EdgeCount,
				Missing:    an.Missing,
				Clusters:   pipeline.Summarize(clusters, terms),
				Options:    an.Options,
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				return printJSON(out, summary)
			}
			if an.Label != "" {
				fmt.Fprintf(out, "%s\n", an.Label)
			}
			fmt.Fprintf(out, "Created %s\n", an.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			printSummary(out, summary)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print as JSON")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			if err := st.DeleteAnalysis(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("delete analysis: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func newStatsCmd(a *app) *cobra.Command {
	var vacuum bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			if vacuum {
				if err := st.Vacuum(cmd.Context()); err != nil {
					return fmt.Errorf("vacuum: %w", err)
				}
			}
			stats, err := st.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Database:  %s\n", a.cfg.DBPath.Value)
			fmt.Fprintf(out, "Analyses:  %d\n", stats.AnalysisCount)
			fmt.Fprintf(out, "Clusters:  %d\n", stats.ClusterCount)
			fmt.Fprintf(out, "Edges:     %d\n", stats.EdgeCount)
			fmt.Fprintf(out, "Size:      %d bytes\n", stats.DBSizeBytes)
			return nil
		},
	}
	cmd.Flags().BoolVar(&vacuum, "vacuum", false, "compact the database first")
	return cmd
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration and where each value came from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd.OutOrStdout(), a.cfg)
		},
	}
	addAnalysisFlags(cmd, a)
	cmd.Flags().StringVar(&a.resolve.CLIAddr, "addr", "", "HTTP listen address")
	return cmd
}
