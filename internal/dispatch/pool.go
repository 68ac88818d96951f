package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MingChen0919/elastic-search/internal/domain"
	"github.com/MingChen0919/elastic-search/internal/indexer"
	"github.com/MingChen0919/elastic-search/internal/metrics"
)

// Pool runs jobs on a fixed number of in-process workers.
type Pool struct {
	handler     Handler
	workers     int
	maxAttempts int
	backoff     time.Duration

	jobs chan JobSpec
	g    *errgroup.Group
	ctx  context.Context

	mu     sync.RWMutex
	closed bool
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithBackoff sets the base delay between attempts. Attempt n waits
// (n-1) times the base.
func WithBackoff(d time.Duration) PoolOption {
	return func(p *Pool) { p.backoff = d }
}

// WithQueueSize sets how many submitted jobs may wait for a free worker
// before Submit blocks.
func WithQueueSize(n int) PoolOption {
	return func(p *Pool) {
		if n >= 0 {
			p.jobs = make(chan JobSpec, n)
		}
	}
}

// NewPool starts workers that run h until ctx is cancelled or Close is called.
func NewPool(ctx context.Context, workers, maxAttempts int, h Handler, opts ...PoolOption) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	p := &Pool{
		handler:     h,
		workers:     workers,
		maxAttempts: maxAttempts,
		backoff:     5 * time.Second,
		jobs:        make(chan JobSpec, 1024),
	}
	for _, o := range opts {
		o(p)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	p.g, p.ctx = g, gctx
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			p.work(gctx)
			return nil
		})
	}
	return p
}

// Submit queues spec and returns the job id.
func (p *Pool) Submit(ctx context.Context, spec indexer.Spec) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return "", domain.StateError("dispatcher pool is closed")
	}

	if err := p.ctx.Err(); err != nil {
		return "", err
	}
	job := newJobSpec(spec)
	metrics.JobsQueued.Inc()
	select {
	case p.jobs <- job:
		return job.ID, nil
	case <-ctx.Done():
		metrics.JobsQueued.Dec()
		return "", ctx.Err()
	case <-p.ctx.Done():
		metrics.JobsQueued.Dec()
		return "", p.ctx.Err()
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (p *Pool) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	return p.g.Wait()
}

func (p *Pool) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.run(ctx, job)
			metrics.JobsQueued.Dec()
		}
	}
}

// drain discards the jobs still queued after cancellation so the queued
// gauge does not keep counting them.
func (p *Pool) drain() {
	for {
		select {
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			slog.Warn("discarding queued job on shutdown", "id", job.ID, "partition", job.Spec.Partition)
			metrics.JobsQueued.Dec()
		default:
			return
		}
	}
}

func (p *Pool) run(ctx context.Context, job JobSpec) {
	for ; job.Attempt <= p.maxAttempts; job.Attempt++ {
		if err := sleepCtx(ctx, backoffFor(p.backoff, job.Attempt)); err != nil {
			return
		}
		err := runAttempt(ctx, p.handler, job)
		if err == nil || !retryable(err) {
			return
		}
	}
}
