package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/errgroup"

	"github.com/MingChen0919/elastic-search/internal/indexer"
	"github.com/MingChen0919/elastic-search/internal/metrics"
)

// listClient is the subset of the Redis client used by RedisQueue.
type listClient interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	LLen(ctx context.Context, key string) *redis.IntCmd
}

// RedisQueue dispatches jobs through a Redis list. Producers LPUSH
// msgpack-encoded JobSpecs; workers BRPOP them. A failed job is pushed
// back with its attempt incremented until max attempts, then moved to the
// dead-letter list.
type RedisQueue struct {
	client      listClient
	key         string
	deadKey     string
	maxAttempts int
	backoff     time.Duration
	pollTimeout time.Duration
	closer      func() error
}

// RedisQueueConfig holds Redis queue settings.
type RedisQueueConfig struct {
	Addr        string
	Password    string
	DB          int
	Queue       string
	MaxAttempts int
}

// NewRedisQueue connects to Redis and returns a queue on cfg.Queue.
func NewRedisQueue(ctx context.Context, cfg RedisQueueConfig) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}
	q := newRedisQueue(client, cfg.Queue, cfg.MaxAttempts)
	q.closer = client.Close
	return q, nil
}

// Close closes the Redis connection.
func (q *RedisQueue) Close() error {
	if q.closer == nil {
		return nil
	}
	return q.closer()
}

func newRedisQueue(client listClient, key string, maxAttempts int) *RedisQueue {
	if key == "" {
		key = "esgate:jobs"
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &RedisQueue{
		client:      client,
		key:         key,
		deadKey:     key + ":dead",
		maxAttempts: maxAttempts,
		backoff:     5 * time.Second,
		pollTimeout: 5 * time.Second,
	}
}

// Submit pushes spec onto the queue and returns the job id.
func (q *RedisQueue) Submit(ctx context.Context, spec indexer.Spec) (string, error) {
	job := newJobSpec(spec)
	if err := q.push(ctx, q.key, job); err != nil {
		return "", err
	}
	return job.ID, nil
}

// Len returns the number of jobs waiting in the queue.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// Work runs workers that pop and execute jobs until ctx is cancelled.
func (q *RedisQueue) Work(ctx context.Context, workers int, h Handler) error {
	if workers <= 0 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				if err := q.next(gctx, h); err != nil {
					if gctx.Err() != nil {
						return nil
					}
					return err
				}
			}
		})
	}
	return g.Wait()
}

// next pops one job, runs it and requeues it on a retryable failure. It
// returns nil when the poll times out with the queue empty.
func (q *RedisQueue) next(ctx context.Context, h Handler) error {
	res, err := q.client.BRPop(ctx, q.pollTimeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("popping from %s: %w", q.key, err)
	}
	// BRPOP replies with the key followed by the value.
	if len(res) != 2 {
		return fmt.Errorf("unexpected BRPOP reply of %d elements", len(res))
	}

	var job JobSpec
	if err := msgpack.Unmarshal([]byte(res[1]), &job); err != nil {
		slog.Error("dropping undecodable job", "queue", q.key, "error", err)
		return nil
	}
	if n, err := q.Len(ctx); err == nil {
		metrics.JobsQueued.Set(float64(n))
	}

	if err := sleepCtx(ctx, backoffFor(q.backoff, job.Attempt)); err != nil {
		return q.push(context.WithoutCancel(ctx), q.key, job)
	}
	runErr := runAttempt(ctx, h, job)
	switch {
	case runErr == nil:
		return nil
	case ctx.Err() != nil:
		// Shutting down; hand the job back untouched.
		return q.push(context.WithoutCancel(ctx), q.key, job)
	case retryable(runErr) && job.Attempt < q.maxAttempts:
		job.Attempt++
		return q.push(ctx, q.key, job)
	default:
		slog.Error("job failed permanently", "id", job.ID, "partition", job.Spec.Partition,
			"attempts", job.Attempt, "error", runErr)
		return q.push(ctx, q.deadKey, job)
	}
}

func (q *RedisQueue) push(ctx context.Context, key string, job JobSpec) error {
	data, err := msgpack.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding job %s: %w", job.ID, err)
	}
	if err := q.client.LPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("pushing job %s to %s: %w", job.ID, key, err)
	}
	return nil
}
