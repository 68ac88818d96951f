// Package dispatch runs indexing jobs outside the request that created
// them. Pool runs jobs inside the current process; RedisQueue hands them to
// worker processes through a Redis list. Both retry whole jobs, never single
// records.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MingChen0919/elastic-search/internal/domain"
	"github.com/MingChen0919/elastic-search/internal/indexer"
)

// JobSpec is one unit of dispatched work.
type JobSpec struct {
	ID          string       `msgpack:"id" json:"id"`
	Spec        indexer.Spec `msgpack:"spec" json:"spec"`
	Attempt     int          `msgpack:"attempt" json:"attempt"`
	SubmittedAt time.Time    `msgpack:"submitted_at" json:"submitted_at"`
}

func newJobSpec(spec indexer.Spec) JobSpec {
	return JobSpec{
		ID:          uuid.NewString(),
		Spec:        spec,
		Attempt:     1,
		SubmittedAt: time.Now().UTC(),
	}
}

// Handler runs a single attempt of a job.
type Handler func(ctx context.Context, job JobSpec) error

// Dispatcher accepts jobs for asynchronous execution and returns their ids.
type Dispatcher interface {
	Submit(ctx context.Context, spec indexer.Spec) (string, error)
}

var (
	_ Dispatcher        = (*Pool)(nil)
	_ Dispatcher        = (*RedisQueue)(nil)
	_ indexer.Submitter = (Dispatcher)(nil)
)

// retryable reports whether another attempt of a failed job can succeed.
// Rejected input and configuration faults fail the same way every time.
func retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, domain.ErrInputRejected), errors.Is(err, domain.ErrConfiguration):
		return false
	}
	return true
}

// backoffFor returns the delay before the given attempt number.
func backoffFor(base time.Duration, attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	return base * time.Duration(attempt-1)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func runAttempt(ctx context.Context, h Handler, job JobSpec) error {
	start := time.Now()
	slog.Info("job started", "id", job.ID, "partition", job.Spec.Partition, "attempt", job.Attempt)
	err := h(ctx, job)
	if err != nil {
		slog.Warn("job attempt failed", "id", job.ID, "partition", job.Spec.Partition,
			"attempt", job.Attempt, "retryable", retryable(err), "error", err)
		return err
	}
	slog.Info("job finished", "id", job.ID, "partition", job.Spec.Partition,
		"attempt", job.Attempt, "duration", time.Since(start).Round(time.Millisecond))
	return nil
}
