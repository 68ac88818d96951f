package indexer

import (
	"context"
	"time"

	"github.com/MingChen0919/elastic-search/internal/backend"
)

// DistLock provides distributed locking for indexing jobs. When several
// workers run concurrently, a DistLock prevents two of them from indexing
// the same partition (or the same entity) at once.
type DistLock interface {
	// Acquire attempts to acquire a lock for the given key with the specified TTL.
	// Returns true if the lock was acquired, false if already held by another worker.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release releases the lock for the given key.
	Release(ctx context.Context, key string) error
}

var _ DistLock = (*backend.EngineLock)(nil)
