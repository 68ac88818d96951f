package indexer

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/MingChen0919/elastic-search/internal/backend"
	"github.com/MingChen0919/elastic-search/internal/backend/backendtest"
)

func TestLocalCheckpointStore_SaveLoadAndComplete(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalCheckpointStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalCheckpointStore: %v", err)
	}

	cp := &Checkpoint{
		Key:        "chado_bio_data_1-start-end",
		Total:      123,
		Processed:  45,
		Chunk:      3,
		LastKey:    77,
		HasLastKey: true,
	}
	if err := store.Save(ctx, cp); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load(ctx, cp.Key)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded == nil {
		t.Fatalf("expected checkpoint, got nil")
	}
	if loaded.Total != 123 || loaded.Processed != 45 || loaded.LastKey != 77 || !loaded.HasLastKey {
		t.Fatalf("loaded checkpoint mismatch: %+v", loaded)
	}

	if err := store.MarkComplete(ctx, cp.Key); err != nil {
		t.Fatalf("MarkComplete: %v", err)
	}
	loaded2, err := store.Load(ctx, cp.Key)
	if err != nil {
		t.Fatalf("Load after complete: %v", err)
	}
	if loaded2 != nil {
		t.Fatalf("expected nil after completion, got %+v", loaded2)
	}
}

func TestLocalCheckpointStore_Missing(t *testing.T) {
	store, err := NewLocalCheckpointStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cp, err := store.Load(context.Background(), "nothing-here")
	if err != nil || cp != nil {
		t.Fatalf("Load=%+v, %v; want nil, nil", cp, err)
	}
}

func TestEngineCheckpointStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	mem := backendtest.NewMemory()
	store := NewEngineCheckpointStore(mem)

	if cp, err := store.Load(ctx, "k"); err != nil || cp != nil {
		t.Fatalf("Load before save=%+v, %v", cp, err)
	}
	if err := store.Save(ctx, &Checkpoint{Key: "k", Processed: 10, Chunk: 1}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, ok := mem.Docs(stateIndex)["checkpoint-k"]; !ok {
		t.Fatalf("checkpoint not stored in %s", stateIndex)
	}
	cp, err := store.Load(ctx, "k")
	if err != nil || cp == nil || cp.Processed != 10 {
		t.Fatalf("Load=%+v, %v", cp, err)
	}
	if err := store.MarkComplete(ctx, "k"); err != nil {
		t.Fatalf("MarkComplete: %v", err)
	}
	if cp, _ := store.Load(ctx, "k"); cp != nil {
		t.Fatalf("expected nil after completion, got %+v", cp)
	}
}

// missingIndexClient reports 404 for writes until the index is created,
// like an engine with automatic index creation disabled.
type missingIndexClient struct {
	*backendtest.Memory
	created   bool
	createReq string
}

func (c *missingIndexClient) PutDocument(ctx context.Context, index, docType, id string, body []byte) (string, error) {
	if !c.created {
		return "", &backend.HTTPStatusError{StatusCode: http.StatusNotFound, URL: "mem://" + index}
	}
	return c.Memory.PutDocument(ctx, index, docType, id, body)
}

func (c *missingIndexClient) CreateIndex(ctx context.Context, name string, body []byte) error {
	c.created = true
	c.createReq = string(body)
	return c.Memory.CreateIndex(ctx, name, body)
}

func TestEngineMetricsStore_CreatesIndexOnFirstWrite(t *testing.T) {
	client := &missingIndexClient{Memory: backendtest.NewMemory()}
	store := NewEngineMetricsStore(client)

	p := &Progress{Partition: "chado_feature"}
	p.Processed.Store(7)
	m := newRunMetric(testIndex, Spec{Partition: "chado_feature", Version: 2}, p, 500, nil)
	if err := store.Record(context.Background(), m); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !client.created {
		t.Fatal("metrics index was not created")
	}
	if !strings.Contains(client.createReq, `"processed"`) {
		t.Fatalf("metrics index created without mapping: %s", client.createReq)
	}

	docs := client.Docs(metricsIndex)
	if len(docs) != 1 {
		t.Fatalf("metric docs=%d, want 1", len(docs))
	}
	for id, d := range docs {
		if !strings.HasPrefix(id, "metric-chado_feature-") {
			t.Fatalf("metric id=%q", id)
		}
		if d["status"] != "success" || d["processed"] != float64(7) {
			t.Fatalf("metric doc=%v", d)
		}
	}
}

func TestStateDocs_AlreadyExistsIsNotAnError(t *testing.T) {
	mem := backendtest.NewMemory(stateIndex)
	s := &stateDocs{client: mem, index: stateIndex}
	if err := s.ensureIndex(context.Background()); err != nil {
		t.Fatalf("ensureIndex on existing index: %v", err)
	}
}

func TestNewRunMetric_Failure(t *testing.T) {
	p := &Progress{}
	m := newRunMetric(testIndex, bundle1, p, 100, context.Canceled)
	if m.Status != "failed" || m.Error == "" {
		t.Fatalf("metric=%+v, want failed with error", m)
	}
	raw, _ := json.Marshal(m)
	if !strings.Contains(string(raw), `"@timestamp"`) {
		t.Fatalf("metric JSON lacks @timestamp: %s", raw)
	}
}
