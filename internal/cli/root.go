// Package cli provides the command-line interface for enrichnet.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hurttlocker/enrichnet/internal/config"
	"github.com/hurttlocker/enrichnet/internal/pipeline"
	"github.com/hurttlocker/enrichnet/internal/store"
)

// Version is set at build time.
var Version = "0.1.0"

// app carries the global flags and the lazily opened resources shared by
// every subcommand.
type app struct {
	resolve config.ResolveOptions

	cfg      config.ResolvedConfig
	logger   *slog.Logger
	closeLog func() error
	st       store.Store
}

// NewRootCmd builds the full command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "enrichnet",
		Short: "Summarise gene-set enrichment results as clustered similarity networks",
		Long: `enrichnet turns a list of enriched gene-sets into a similarity network,
partitions it into clusters of redundant sets and names each cluster by the
terms that characterise its members.

Settings resolve from ~/.enrichnet/config.yaml, then ENRICHNET_* environment
variables, then command-line flags.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip setup for version and help commands
			if cmd.Name() == "version" || cmd.Name() == "help" {
				return nil
			}
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.resolve.ConfigPath, "config", "", "config file (default ~/.enrichnet/config.yaml)")
	pf.StringVar(&a.resolve.CLIDBPath, "db", "", "analysis database path")
	pf.StringVar(&a.resolve.CLILogFile, "log-file", "", "JSON log file")
	pf.StringVar(&a.resolve.CLILogLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(
		newAnalyzeCmd(a),
		newListCmd(a),
		newShowCmd(a),
		newDeleteCmd(a),
		newStatsCmd(a),
		newConfigCmd(a),
		newServeCmd(a),
		newMCPCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func (a *app) setup() error {
	cfg, err := config.ResolveConfig(a.resolve)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, err := config.ParseLevel(cfg.LogLevel.Value)
	if err != nil {
		return err
	}
	a.logger, a.closeLog = config.SetupLogger(cfg.LogFile.Value, level)
	slog.SetDefault(a.logger)
	return nil
}

// openStore opens the analysis database on first use.
func (a *app) openStore() (store.Store, error) {
	if a.st != nil {
		return a.st, nil
	}
	st, err := store.NewStore(store.StoreConfig{DBPath: a.cfg.DBPath.Value})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", a.cfg.DBPath.Value, err)
	}
	a.st = st
	return st, nil
}

func (a *app) pipelineOptions() (pipeline.Options, error) {
	return a.cfg.PipelineOptions()
}

func (a *app) close() {
	if a.st != nil {
		if err := a.st.Close(); err != nil {
			a.logger.Warn("failed to close database", "error", err)
		}
		a.st = nil
	}
	if a.closeLog != nil {
		_ = a.closeLog()
		a.closeLog = nil
	}
}

// addAnalysisFlags registers the flags that override analysis options.
func addAnalysisFlags(cmd *cobra.Command, a *app) {
	f := cmd.Flags()
	f.StringVar(&a.resolve.CLIMethod, "method", "", "similarity coefficient: jaccard or overlap")
	f.StringVar(&a.resolve.CLIThreshold, "threshold", "", "minimum similarity for an edge, in [0,1]")
	f.StringVar(&a.resolve.CLIAlgorithm, "algorithm", "", "clustering algorithm: louvain, label_propagation, components, cliques")
	f.StringVar(&a.resolve.CLISeed, "seed", "", "random seed for seeded algorithms")
	f.StringVar(&a.resolve.CLIMinWeight, "min-weight", "", "ignore edges lighter than this while clustering")
	f.StringVar(&a.resolve.CLIMinSize, "min-size", "", "drop clusters with fewer members")
	f.StringVar(&a.resolve.CLITextField, "field", "", "text field to characterise: name, short_description, description")
	f.StringVar(&a.resolve.CLITopN, "top", "", "terms reported per cluster")
	f.StringVar(&a.resolve.CLIWorkers, "workers", "", "worker goroutines (0 uses all CPUs)")
	f.StringVar(&a.resolve.CLIStripNamePrefix, "strip-prefix", "", "strip the collection prefix from names before tokenising (true/false)")
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "enrichnet %s\n", Version)
		},
	}
}
