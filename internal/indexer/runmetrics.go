package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/MingChen0919/elastic-search/internal/backend"
)

// RunMetric records the outcome of a single job run.
type RunMetric struct {
	Timestamp   time.Time `json:"@timestamp"`
	Index       string    `json:"index"`
	Partition   string    `json:"partition"`
	Version     int       `json:"version"`
	EntityID    string    `json:"entity_id,omitempty"`
	Window      string    `json:"window"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationSec float64   `json:"duration_sec"`
	Total       int64     `json:"total"`
	Processed   int64     `json:"processed"`
	Failed      int64     `json:"failed"`
	DocsPerSec  float64   `json:"docs_per_sec"`
	ChunkSize   int       `json:"chunk_size"`
	Status      string    `json:"status"` // "success" or "failed"
	Error       string    `json:"error,omitempty"`
}

// MetricsRecorder persists run metrics for later analysis.
type MetricsRecorder interface {
	Record(ctx context.Context, metric *RunMetric) error
}

func newRunMetric(index string, spec Spec, p *Progress, chunkSize int, err error) *RunMetric {
	now := time.Now().UTC()
	elapsed := now.Sub(p.StartTime)
	processed := p.Processed.Load()
	var rate float64
	if elapsed.Seconds() > 0 {
		rate = float64(processed) / elapsed.Seconds()
	}
	m := &RunMetric{
		Timestamp:   now,
		Index:       index,
		Partition:   spec.Partition,
		Version:     spec.Version,
		EntityID:    spec.EntityID,
		Window:      spec.Key(),
		StartedAt:   p.StartTime.UTC(),
		CompletedAt: now,
		DurationSec: elapsed.Seconds(),
		Total:       p.Total.Load(),
		Processed:   processed,
		Failed:      p.Failed.Load(),
		DocsPerSec:  rate,
		ChunkSize:   chunkSize,
		Status:      "success",
	}
	if err != nil {
		m.Status = "failed"
		m.Error = err.Error()
	}
	return m
}

// EngineMetricsStore records run metrics into an engine index.
type EngineMetricsStore struct {
	docs *stateDocs
}

// NewEngineMetricsStore creates a metrics store backed by the engine.
func NewEngineMetricsStore(client backend.Client) *EngineMetricsStore {
	return &EngineMetricsStore{docs: &stateDocs{client: client, index: metricsIndex, mapping: metricsMapping}}
}

const metricsMapping = `{
  "properties": {
    "@timestamp":   { "type": "date" },
    "index":        { "type": "keyword" },
    "partition":    { "type": "keyword" },
    "version":      { "type": "integer" },
    "entity_id":    { "type": "keyword" },
    "window":       { "type": "keyword" },
    "started_at":   { "type": "date" },
    "completed_at": { "type": "date" },
    "duration_sec": { "type": "float" },
    "total":        { "type": "long" },
    "processed":    { "type": "long" },
    "failed":       { "type": "long" },
    "docs_per_sec": { "type": "float" },
    "chunk_size":   { "type": "integer" },
    "status":       { "type": "keyword" },
    "error":        { "type": "text" }
  }
}`

// Record persists a run metric document.
func (s *EngineMetricsStore) Record(ctx context.Context, metric *RunMetric) error {
	return s.docs.put(ctx, metricDocID(metric), metric)
}

// metricDocID returns a deterministic document ID for the metric, allowing
// safe retries without creating duplicates.
func metricDocID(m *RunMetric) string {
	return fmt.Sprintf("metric-%s-%d", m.Window, m.StartedAt.UnixNano())
}

var _ MetricsRecorder = (*EngineMetricsStore)(nil)
