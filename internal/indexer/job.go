package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/MingChen0919/elastic-search/internal/domain"
	"github.com/MingChen0919/elastic-search/internal/gateway"
	"github.com/MingChen0919/elastic-search/internal/metrics"
	"github.com/MingChen0919/elastic-search/internal/source"
)

// State is the lifecycle state of a Job.
type State int32

const (
	Created State = iota
	Counting
	Paging
	Enriching
	Writing
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Counting:
		return "counting"
	case Paging:
		return "paging"
	case Enriching:
		return "enriching"
	case Writing:
		return "writing"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Spec identifies the work of one job: a partition (bundle table) of a
// source layout, optionally narrowed to one entity or to a key window
// KeyAfter < key <= KeyThrough. A nil bound leaves that side open.
type Spec struct {
	Partition  string `json:"partition"`
	Version    int    `json:"version"`
	EntityID   string `json:"entity_id,omitempty"`
	KeyAfter   *int64 `json:"key_after,omitempty"`
	KeyThrough *int64 `json:"key_through,omitempty"`
}

var partitionPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Validate checks that spec can be run.
func (s Spec) Validate() error {
	if !partitionPattern.MatchString(s.Partition) {
		return domain.InputRejected("invalid partition table %q", s.Partition)
	}
	if s.Version != VersionTripal2 && s.Version != VersionTripal3 {
		return domain.InputRejected("unsupported source version %d", s.Version)
	}
	if s.EntityID != "" {
		if _, err := strconv.ParseInt(s.EntityID, 10, 64); err != nil {
			return domain.InputRejected("entity id %q is not numeric", s.EntityID)
		}
	}
	if s.KeyAfter != nil && s.KeyThrough != nil && *s.KeyThrough <= *s.KeyAfter {
		return domain.InputRejected("empty key window (%d, %d]", *s.KeyAfter, *s.KeyThrough)
	}
	return nil
}

// Key identifies the work of spec for checkpoints and locks.
func (s Spec) Key() string {
	if s.EntityID != "" {
		return fmt.Sprintf("%s-entity-%s", s.Partition, s.EntityID)
	}
	return fmt.Sprintf("%s-%s-%s", s.Partition, bound(s.KeyAfter, "start"), bound(s.KeyThrough, "end"))
}

func bound(k *int64, open string) string {
	if k == nil {
		return open
	}
	return strconv.FormatInt(*k, 10)
}

// Job indexes the records of one Spec. A job runs once.
type Job struct {
	ix       *Indexer
	spec     Spec
	state    atomic.Int32
	progress *Progress
	enricher *enricher
}

// Spec returns the work description of the job.
func (j *Job) Spec() Spec { return j.spec }

// State returns the current lifecycle state.
func (j *Job) State() State { return State(j.state.Load()) }

// Progress returns the live progress counters.
func (j *Job) Progress() *Progress { return j.progress }

func (j *Job) setState(s State) {
	j.state.Store(int32(s))
	slog.Debug("job state", "partition", j.spec.Partition, "state", s.String())
}

// Run executes the job. Failures of single records are reported and do not
// stop the run; the engine becoming unavailable does, and the error matches
// domain.ErrEngineUnavailable so the whole job can be retried.
func (j *Job) Run(ctx context.Context) (err error) {
	if !j.state.CompareAndSwap(int32(Created), int32(Counting)) {
		return domain.StateError("job %s already ran", j.spec.Key())
	}
	ix := j.ix
	index := ix.cfg.Indexing.Index

	// Acquire distributed lock if configured, preventing multiple workers
	// from indexing the same partition concurrently.
	if ix.lock != nil {
		lockKey := index + "-" + j.spec.Key()
		acquired, err := ix.lock.Acquire(ctx, lockKey, ix.lockTTL)
		if err != nil {
			j.setState(Failed)
			return fmt.Errorf("acquiring indexing lock for %s: %w", lockKey, err)
		}
		if !acquired {
			slog.Info("skipping job, lock held by another worker", "key", lockKey)
			j.setState(Completed)
			return nil
		}
		defer func() {
			if err := ix.lock.Release(context.WithoutCancel(ctx), lockKey); err != nil {
				slog.Warn("failed to release indexing lock", "key", lockKey, "error", err)
			}
		}()
	}

	j.progress.StartTime = time.Now()
	stopProgress := make(chan struct{})
	ticker := time.NewTicker(ix.progressInterval)
	go reportProgress(j.progress, stopProgress, ticker.C)

	defer func() {
		close(stopProgress)
		ticker.Stop()
		j.finish(ctx, err)
	}()

	slog.Info("starting indexing job",
		"index", index,
		"partition", j.spec.Partition,
		"version", j.spec.Version,
		"entity_id", j.spec.EntityID,
		"window", j.spec.Key(),
		"strategy", ix.cfg.Indexing.WriteStrategy,
	)
	if j.spec.EntityID != "" {
		return j.runEntity(ctx)
	}
	return j.runPartition(ctx)
}

func (j *Job) finish(ctx context.Context, err error) {
	status := "success"
	if err != nil {
		status = "failed"
		j.setState(Failed)
	} else {
		j.setState(Completed)
	}
	elapsed := time.Since(j.progress.StartTime)
	metrics.JobRunsTotal.WithLabelValues(status).Inc()
	metrics.JobDuration.Observe(elapsed.Seconds())

	if j.ix.recorder != nil {
		m := newRunMetric(j.ix.cfg.Indexing.Index, j.spec, j.progress, j.ix.cfg.Indexing.ChunkSize, err)
		if rerr := j.ix.recorder.Record(context.WithoutCancel(ctx), m); rerr != nil {
			slog.Warn("failed to record job metric", "partition", j.spec.Partition, "error", rerr)
		}
	}

	if err != nil {
		slog.Error("indexing job failed", "partition", j.spec.Partition, "key", j.spec.Key(), "error", err)
		return
	}
	slog.Info("indexing job completed",
		"partition", j.spec.Partition,
		"processed", j.progress.Processed.Load(),
		"failed", j.progress.Failed.Load(),
		"elapsed", elapsed.Round(time.Second).String(),
	)
}

// runEntity reindexes a single entity: its existing document is deleted
// before the fresh one is written.
func (j *Job) runEntity(ctx context.Context) error {
	ix := j.ix
	index, docType := ix.cfg.Indexing.Index, ix.cfg.Indexing.Type
	id, _ := strconv.ParseInt(j.spec.EntityID, 10, 64)
	q := recordQuery(ix.src, j.spec)

	j.setState(Paging)
	rows, err := ix.src.FetchByKeys(ctx, q.Query, q.Key, []int64{id})
	if err != nil {
		return fmt.Errorf("fetching entity %d: %w", id, err)
	}
	j.progress.Total.Store(int64(len(rows)))

	j.setState(Enriching)
	records, err := j.enricher.records(ctx, rows, q.keyAlias)
	if err != nil {
		return err
	}

	j.setState(Writing)
	if len(records) > 0 {
		exists, err := ix.engine.IndexExists(ctx, index)
		if err != nil {
			return fmt.Errorf("checking index %s: %w", index, err)
		}
		if exists {
			err := ix.engine.DeleteDocument(ctx, index, docType, records[0].ID())
			switch {
			case err == nil, errors.Is(err, domain.ErrNotFound):
			case errors.Is(err, domain.ErrEngineUnavailable):
				return fmt.Errorf("deleting document %s: %w", records[0].ID(), err)
			default:
				slog.Warn("failed to delete existing document", "index", index, "id", records[0].ID(), "error", err)
			}
		}
	}
	_, err = j.writeChunk(ctx, 0, records)
	return err
}

// runPartition indexes the key range of the spec chunk by chunk. Every
// chunk continues after the last key written, so rows are never skipped or
// repeated when a run resumes from its checkpoint or the source changes
// between windows.
func (j *Job) runPartition(ctx context.Context) error {
	ix := j.ix
	q := recordQuery(ix.src, j.spec).window(j.spec)
	key := j.spec.Key()

	cp, err := ix.checkpoint.Load(ctx, key)
	if err != nil {
		slog.Warn("failed to load checkpoint, starting fresh", "key", key, "error", err)
		cp = nil
	}

	j.setState(Counting)
	total, err := ix.src.CountEligible(ctx, q.Query)
	if err != nil {
		return fmt.Errorf("counting %s: %w", j.spec.Partition, err)
	}
	j.progress.Total.Store(int64(total))

	if cp == nil {
		cp = &Checkpoint{Key: key, StartedAt: time.Now().UTC()}
	} else {
		slog.Info("resuming from checkpoint", "key", key, "processed", cp.Processed, "chunk", cp.Chunk)
		j.progress.Processed.Store(cp.Processed)
		j.progress.Failed.Store(cp.Failed)
	}
	cp.Total = int64(total)

	limit := ix.cfg.Indexing.ChunkSize
	for {
		page := source.Page{Limit: limit}
		if cp.HasLastKey {
			page.After, page.HasAfter = cp.LastKey, true
		}

		j.setState(Paging)
		rows, err := ix.src.FetchPage(ctx, q.Query, page)
		if err != nil {
			j.saveCheckpoint(ctx, cp)
			return fmt.Errorf("fetching chunk %d of %s: %w", cp.Chunk, j.spec.Partition, err)
		}
		if len(rows) == 0 {
			break
		}
		last, ok := rows[len(rows)-1].Int64(q.keyAlias)
		if !ok {
			return fmt.Errorf("chunk %d of %s: row without %s", cp.Chunk, j.spec.Partition, q.keyAlias)
		}

		j.setState(Enriching)
		records, err := j.enricher.records(ctx, rows, q.keyAlias)
		if err != nil {
			j.saveCheckpoint(ctx, cp)
			return fmt.Errorf("enriching chunk %d of %s: %w", cp.Chunk, j.spec.Partition, err)
		}

		j.setState(Writing)
		outcome, err := j.writeChunk(ctx, cp.Chunk, records)
		if err != nil {
			j.saveCheckpoint(ctx, cp)
			return err
		}

		failed := int64(len(outcome.Failed()))
		cp.Processed += int64(outcome.Succeeded())
		cp.Failed += failed
		cp.Chunk++
		cp.LastKey, cp.HasLastKey = last, true
		j.saveCheckpoint(ctx, cp)

		if len(rows) < limit {
			break
		}
	}

	if err := ix.checkpoint.MarkComplete(ctx, key); err != nil {
		slog.Warn("failed to mark checkpoint complete", "key", key, "error", err)
	}
	return nil
}

func (j *Job) saveCheckpoint(ctx context.Context, cp *Checkpoint) {
	if err := j.ix.checkpoint.Save(context.WithoutCancel(ctx), cp); err != nil {
		slog.Warn("failed to save checkpoint", "key", cp.Key, "error", err)
	}
}

// writeChunk writes records with the configured strategy and reports the
// failures of the chunk once. Only an unavailable engine or a cancelled
// context is returned as an error.
func (j *Job) writeChunk(ctx context.Context, chunk int, records []*domain.Record) (*BatchOutcome, error) {
	ix := j.ix
	index, docType := ix.cfg.Indexing.Index, ix.cfg.Indexing.Type
	out := &BatchOutcome{Partition: j.spec.Partition, Chunk: chunk}

	switch ix.cfg.Indexing.WriteStrategy {
	case StrategyBulk:
		res, err := ix.engine.BulkWrite(ctx, domain.OpIndex, index, records, docType, gateway.RecordID)
		if err != nil {
			if errors.Is(err, domain.ErrEngineUnavailable) || ctx.Err() != nil {
				return nil, fmt.Errorf("writing chunk %d: %w", chunk, err)
			}
			for _, r := range records {
				out.add(r.ID(), err)
			}
			break
		}
		for i, r := range records {
			var rerr error
			if i < len(res.Items) && res.Items[i].Failed() {
				it := res.Items[i]
				rerr = fmt.Errorf("status %d: %s", it.Status, it.Error)
			}
			out.add(r.ID(), rerr)
		}
	default:
		for _, r := range records {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			_, err := ix.engine.CreateOrUpdateDocument(ctx, index, docType, r.ID(), r.Document())
			if err != nil && errors.Is(err, domain.ErrEngineUnavailable) {
				return nil, fmt.Errorf("writing record %s: %w", r.ID(), err)
			}
			out.add(r.ID(), err)
		}
	}

	succeeded, failed := out.Succeeded(), len(out.Failed())
	j.progress.Processed.Add(int64(succeeded))
	j.progress.Failed.Add(int64(failed))
	j.progress.Chunk.Store(int64(chunk))
	metrics.RecordsIndexedTotal.WithLabelValues(index).Add(float64(succeeded))
	metrics.RecordsFailedTotal.WithLabelValues(index).Add(float64(failed))
	if msg := out.Message(); msg != "" {
		ix.reporter.Report(ReportCategory, msg)
	}
	return out, nil
}
