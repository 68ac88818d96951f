package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MingChen0919/elastic-search/internal/dispatch"
	"github.com/MingChen0919/elastic-search/internal/gateway"
	"github.com/MingChen0919/elastic-search/internal/metrics"
	"github.com/MingChen0919/elastic-search/internal/server"
	"github.com/MingChen0919/elastic-search/internal/source"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the search and job HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(parent context.Context, opts *rootOptions) error {
	cfg := opts.cfg
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Register()
	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	slog.Info("esgate starting",
		"listen", cfg.Server.Listen,
		"elasticsearch", cfg.Elasticsearch.URL,
		"source", cfg.Source.Driver,
		"dispatch", cfg.Dispatch.Backend,
	)

	// Without a source database the search API still works; categories and
	// job submission are disabled.
	var (
		lister gateway.CategoryLister
		jobs   dispatch.Dispatcher
	)
	if cfg.Source.DSN != "" {
		src, err := a.openSource(ctx)
		if err != nil {
			return err
		}
		defer src.Close()
		lister = source.NewCategories(src)

		ix, err := a.newIndexer(src)
		if err != nil {
			return err
		}
		d, err := a.newDispatcher(ctx, jobHandler(ix))
		if err != nil {
			return err
		}
		defer d.Close()
		jobs = d
	} else {
		slog.Warn("source.dsn is empty, categories and job submission are disabled")
	}

	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           server.New(a.gw, lister, jobs, cfg.Search.DefaultPerPage),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", cfg.Server.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		slog.Error("server error", "error", err)
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	slog.Info("esgate stopped")
	return nil
}
