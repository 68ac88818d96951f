package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MingChen0919/elastic-search/internal/indexer"
	"github.com/MingChen0919/elastic-search/internal/query"
)

func newIndexCreateCmd(opts *rootOptions) *cobra.Command {
	var shards, replicas int
	cmd := &cobra.Command{
		Use:   "index-create",
		Short: "Create the gene index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			d, err := indexer.GeneIndexDescriptor(cfg.Indexing.Index, shards, replicas)
			if err != nil {
				return err
			}
			if err := a.gw.CreateIndex(cmd.Context(), d); err != nil {
				return fmt.Errorf("creating index %s: %w", d.Name, err)
			}
			slog.Info("index created", "index", d.Name, "shards", d.Shards, "replicas", d.Replicas)
			return nil
		},
	}
	cmd.Flags().IntVar(&shards, "shards", query.DefaultShards, "number of primary shards")
	cmd.Flags().IntVar(&replicas, "replicas", query.DefaultReplicas, "number of replicas")
	return cmd
}

func newIndexDeleteCmd(opts *rootOptions) *cobra.Command {
	var documentsOnly bool
	cmd := &cobra.Command{
		Use:   "index-delete [index]",
		Short: "Delete an index, or only its documents",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			name := cfg.Indexing.Index
			if len(args) == 1 {
				name = args[0]
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			if documentsOnly {
				if err := a.gw.DeleteAllDocuments(cmd.Context(), name, cfg.Indexing.Type); err != nil {
					return fmt.Errorf("deleting documents of %s: %w", name, err)
				}
				slog.Info("documents deleted", "index", name)
				return nil
			}
			if err := a.gw.DeleteIndex(cmd.Context(), name); err != nil {
				return fmt.Errorf("deleting index %s: %w", name, err)
			}
			slog.Info("index deleted", "index", name)
			return nil
		},
	}
	cmd.Flags().BoolVar(&documentsOnly, "documents", false, "delete all documents but keep the index")
	return cmd
}
