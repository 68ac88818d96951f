package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MingChen0919/elastic-search/internal/metrics"
)

func newWorkerCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run indexing jobs queued in Redis",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context(), opts)
		},
	}
}

func runWorker(parent context.Context, opts *rootOptions) error {
	cfg := opts.cfg
	if cfg.Dispatch.Backend != "redis" {
		return fmt.Errorf("esgate worker requires dispatch.backend redis, got %q", cfg.Dispatch.Backend)
	}
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
	q, err := a.redisQueue(ctx)
	if err != nil {
		return err
	}
	defer q.Close()

	slog.Info("esgate worker started", "queue", cfg.Dispatch.Redis.Queue, "workers", cfg.Dispatch.Workers)
	if err := q.Work(ctx, cfg.Dispatch.Workers, jobHandler(ix)); err != nil {
		return fmt.Errorf("worker: %w", err)
	}
	slog.Info("esgate worker stopped")
	return nil
}
