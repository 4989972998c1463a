package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hurttlocker/enrichnet/internal/api"
	"github.com/hurttlocker/enrichnet/internal/mcp"
)

func newServeCmd(a *app) *cobra.Command {
	var origins []string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve exposes analysis, saved analyses, cluster terms and graph exports
over HTTP until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := a.pipelineOptions()
			if err != nil {
				return err
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			router := api.NewRouter(api.NewHandler(st, opts, a.logger), origins)
			return api.Serve(ctx, a.cfg.ServeAddr.Value, router, a.logger)
		},
	}
	cmd.Flags().StringVar(&a.resolve.CLIAddr, "addr", "", "listen address (default 127.0.0.1:8001)")
	cmd.Flags().StringSliceVar(&origins, "origin", nil, "allowed CORS origins")
	addAnalysisFlags(cmd, a)
	return cmd
}

func newMCPCmd(a *app) *cobra.Command {
	var noStore bool
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := a.pipelineOptions()
			if err != nil {
				return err
			}
			cfg := mcp.ServerConfig{
				Version:  Version,
				Defaults: opts,
				Logger:   a.logger,
			}
			if !noStore {
				if cfg.Store, err = a.openStore(); err != nil {
					return err
				}
			}
			a.logger.Info("MCP server starting on stdio", "db", a.cfg.DBPath.Value, "store", !noStore)
			return mcp.Serve(cfg)
		},
	}
	cmd.Flags().BoolVar(&noStore, "no-store", false, "run without a database; only the analyze tool is offered")
	addAnalysisFlags(cmd, a)
	return cmd
}
