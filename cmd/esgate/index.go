package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/MingChen0919/elastic-search/internal/metrics"
)

func newIndexCmd(opts *rootOptions) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Submit indexing jobs for every partition of the source",
		Long: `index enumerates the partitions of the source database and submits
one job per partition, or per window of dispatch.max_rows_per_job rows.

With the memory dispatcher the jobs run in this process. With the redis
dispatcher they are queued for 'esgate worker'.

Without --once, jobs are generated on dispatch.schedule.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndex(cmd.Context(), opts, once)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "generate jobs once and exit (ignore schedule)")
	return cmd
}

func runIndex(parent context.Context, opts *rootOptions, once bool) error {
	cfg := opts.cfg
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Register()
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	src, err := a.openSource(ctx)
	if err != nil {
		return err
	}
	defer src.Close()

	ix, err := a.newIndexer(src)
	if err != nil {
		return fmt.Errorf("initializing indexer: %w", err)
	}
	d, err := a.newDispatcher(ctx, jobHandler(ix))
	if err != nil {
		return err
	}

	slog.Info("esgate index starting",
		"index", cfg.Indexing.Index,
		"strategy", cfg.Indexing.WriteStrategy,
		"chunk_size", cfg.Indexing.ChunkSize,
		"dispatch", cfg.Dispatch.Backend,
	)

	if once {
		ids, err := ix.GenerateJobs(ctx, d)
		if err != nil {
			d.Close()
			return fmt.Errorf("generating jobs: %w", err)
		}
		slog.Info("jobs submitted", "count", len(ids))
		// Closing the memory pool waits for its jobs to finish.
		if err := d.Close(); err != nil {
			return err
		}
		slog.Info("indexing completed, exiting")
		return nil
	}
	defer d.Close()

	if cfg.Dispatch.Schedule == "" {
		return fmt.Errorf("dispatch.schedule is required unless --once is given")
	}
	c := cron.New()
	_, err = c.AddFunc(cfg.Dispatch.Schedule, func() {
		slog.Info("scheduled job generation starting")
		ids, err := ix.GenerateJobs(ctx, d)
		if err != nil {
			slog.Error("scheduled job generation failed", "submitted", len(ids), "error", err)
			return
		}
		slog.Info("scheduled job generation completed", "submitted", len(ids))
	})
	if err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", cfg.Dispatch.Schedule, err)
	}

	c.Start()
	slog.Info("indexing scheduler started", "schedule", cfg.Dispatch.Schedule)
	<-ctx.Done()

	slog.Info("shutting down...")
	<-c.Stop().Done()
	slog.Info("esgate index stopped")
	return nil
}
