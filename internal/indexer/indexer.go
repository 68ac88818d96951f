// Package indexer copies feature records from the relational source into
// the gene search index.
package indexer

import (
	"fmt"
	"time"

	"github.com/MingChen0919/elastic-search/internal/config"
)

// Write strategies.
const (
	// StrategySingle writes one document per request. Documents carry nested
	// arrays, which some engine versions reject inside bulk bodies.
	StrategySingle = "single"
	// StrategyBulk writes one bulk request per chunk.
	StrategyBulk = "bulk"
)

// Indexer creates and runs indexing jobs.
type Indexer struct {
	cfg              *config.Config
	engine           Engine
	src              Source
	checkpoint       CheckpointStore
	lock             DistLock // optional, prevents concurrent runs over one partition
	lockTTL          time.Duration
	recorder         MetricsRecorder
	reporter         ErrorReporter
	progressInterval time.Duration
}

// Option configures optional Indexer behavior.
type Option func(*Indexer)

// WithDistLock enables distributed locking so that two workers never index
// the same partition concurrently.
func WithDistLock(lock DistLock) Option {
	return func(ix *Indexer) {
		ix.lock = lock
	}
}

// WithLockTTL sets the TTL for distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(ix *Indexer) {
		ix.lockTTL = ttl
	}
}

// WithCheckpointStore overrides the local filesystem checkpoint store. Use
// EngineCheckpointStore when workers run on several hosts.
func WithCheckpointStore(store CheckpointStore) Option {
	return func(ix *Indexer) {
		ix.checkpoint = store
	}
}

// WithMetricsRecorder persists a RunMetric after every run.
func WithMetricsRecorder(r MetricsRecorder) Option {
	return func(ix *Indexer) {
		ix.recorder = r
	}
}

// WithErrorReporter sets where per-chunk failures are reported. Defaults to LogReporter.
func WithErrorReporter(r ErrorReporter) Option {
	return func(ix *Indexer) {
		ix.reporter = r
	}
}

// WithProgressInterval sets how often progress is logged.
func WithProgressInterval(d time.Duration) Option {
	return func(ix *Indexer) {
		ix.progressInterval = d
	}
}

// New creates an Indexer.
func New(cfg *config.Config, engine Engine, src Source, opts ...Option) (*Indexer, error) {
	ix := &Indexer{
		cfg:              cfg,
		engine:           engine,
		src:              src,
		lockTTL:          cfg.Indexing.LockTTL,
		progressInterval: cfg.Indexing.ProgressInterval,
		reporter:         LogReporter{},
	}
	for _, opt := range opts {
		opt(ix)
	}
	if ix.lockTTL <= 0 {
		ix.lockTTL = 2 * time.Hour
	}
	if ix.progressInterval <= 0 {
		ix.progressInterval = 30 * time.Second
	}
	if ix.checkpoint == nil {
		store, err := NewLocalCheckpointStore(cfg.Indexing.CheckpointDir)
		if err != nil {
			return nil, fmt.Errorf("initializing checkpoint store: %w", err)
		}
		ix.checkpoint = store
	}
	return ix, nil
}

// NewJob validates spec and creates a job for it.
func (ix *Indexer) NewJob(spec Spec) (*Job, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &Job{
		ix:       ix,
		spec:     spec,
		progress: &Progress{Partition: spec.Partition},
		enricher: &enricher{src: ix.src, version: spec.Version},
	}, nil
}
