package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MingChen0919/elastic-search/internal/config"
	"github.com/MingChen0919/elastic-search/internal/util"
)

type rootOptions struct {
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "esgate",
		Short:         "Search indexing and query gateway for Elasticsearch",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				slog.Error("failed to load configuration", "error", err)
				return err
			}
			util.SetupLogger(cfg.Logging.Level)
			opts.cfg = cfg
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "esgate.yaml", "path to configuration file")

	cmd.AddCommand(
		newServeCmd(opts),
		newIndexCmd(opts),
		newWorkerCmd(opts),
		newIndexCreateCmd(opts),
		newIndexDeleteCmd(opts),
	)
	return cmd
}
