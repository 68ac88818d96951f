package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MingChen0919/elastic-search/internal/backend"
	"github.com/MingChen0919/elastic-search/internal/config"
	"github.com/MingChen0919/elastic-search/internal/dispatch"
	"github.com/MingChen0919/elastic-search/internal/gateway"
	"github.com/MingChen0919/elastic-search/internal/indexer"
	"github.com/MingChen0919/elastic-search/internal/source"
	"github.com/MingChen0919/elastic-search/internal/util"
)

// app holds the components shared by the commands.
type app struct {
	cfg *config.Config
	es  *backend.Elasticsearch
	gw  *gateway.Gateway
}

func newApp(cfg *config.Config) (*app, error) {
	httpClient, err := util.NewHTTPClient(cfg.Elasticsearch.TLS)
	if err != nil {
		return nil, fmt.Errorf("creating Elasticsearch HTTP client: %w", err)
	}
	es := backend.NewElasticsearch(cfg.Elasticsearch.URL, cfg.Elasticsearch.Username, cfg.Elasticsearch.Password, httpClient)
	return &app{
		cfg: cfg,
		es:  es,
		gw:  gateway.New(es, gateway.WithCapabilityTTL(cfg.Search.CapabilityTTL)),
	}, nil
}

func (a *app) openSource(ctx context.Context) (*source.SQLSource, error) {
	s := a.cfg.Source
	return source.Open(ctx, s.Driver, s.DSN, s.Schema, s.MaxOpenConns)
}

func (a *app) newIndexer(src *source.SQLSource) (*indexer.Indexer, error) {
	opts := []indexer.Option{
		indexer.WithMetricsRecorder(indexer.NewEngineMetricsStore(a.es)),
	}
	if a.cfg.Indexing.UseLock {
		opts = append(opts, indexer.WithDistLock(backend.NewEngineLock(a.es)))
	}
	if a.cfg.Indexing.CheckpointStore == "engine" {
		opts = append(opts, indexer.WithCheckpointStore(indexer.NewEngineCheckpointStore(a.es)))
	}
	return indexer.New(a.cfg, a.gw, src, opts...)
}

// dispatcher is a job sink that must be closed after use.
type dispatcher interface {
	dispatch.Dispatcher
	Close() error
}

// newDispatcher returns the configured sink. The memory pool runs h itself;
// jobs pushed to Redis are run by `esgate worker`.
func (a *app) newDispatcher(ctx context.Context, h dispatch.Handler) (dispatcher, error) {
	d := a.cfg.Dispatch
	switch d.Backend {
	case "redis":
		q, err := a.redisQueue(ctx)
		if err != nil {
			return nil, err
		}
		slog.Info("dispatching jobs to redis", "addr", d.Redis.Addr, "queue", d.Redis.Queue)
		return q, nil
	default:
		slog.Info("dispatching jobs in process", "workers", d.Workers, "max_attempts", d.MaxAttempts)
		return dispatch.NewPool(ctx, d.Workers, d.MaxAttempts, h), nil
	}
}

func (a *app) redisQueue(ctx context.Context) (*dispatch.RedisQueue, error) {
	d := a.cfg.Dispatch
	return dispatch.NewRedisQueue(ctx, dispatch.RedisQueueConfig{
		Addr:        d.Redis.Addr,
		Password:    d.Redis.Password,
		DB:          d.Redis.DB,
		Queue:       d.Redis.Queue,
		MaxAttempts: d.MaxAttempts,
	})
}

// jobHandler runs each dispatched attempt as a fresh job.
func jobHandler(ix *indexer.Indexer) dispatch.Handler {
	return func(ctx context.Context, job dispatch.JobSpec) error {
		j, err := ix.NewJob(job.Spec)
		if err != nil {
			return err
		}
		return j.Run(ctx)
	}
}
