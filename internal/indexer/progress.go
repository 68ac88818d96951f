package indexer

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// Progress tracks real-time job progress. It is owned by one running job;
// the reporter goroutine only reads it.
type Progress struct {
	Partition string
	StartTime time.Time
	Total     atomic.Int64
	Processed atomic.Int64
	Failed    atomic.Int64
	Chunk     atomic.Int64
}

func reportProgress(p *Progress, stop <-chan struct{}, tick <-chan time.Time) {
	for {
		select {
		case <-stop:
			return
		case <-tick:
			processed := p.Processed.Load()
			elapsed := time.Since(p.StartTime)
			rate := float64(processed) / elapsed.Seconds()
			slog.Info("indexing progress",
				"partition", p.Partition,
				"processed", processed,
				"failed", p.Failed.Load(),
				"total", p.Total.Load(),
				"chunk", p.Chunk.Load(),
				"elapsed", elapsed.Round(time.Second).String(),
				"docs_per_sec", int(rate),
			)
		}
	}
}
