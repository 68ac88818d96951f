package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MingChen0919/elastic-search/internal/backend"
	"github.com/MingChen0919/elastic-search/internal/domain"
)

const (
	stateIndex   = ".esgate-state"
	metricsIndex = ".esgate-job-metrics"
)

// stateDocs reads and writes small JSON documents in an internal engine
// index, creating the index on first write.
type stateDocs struct {
	client  backend.Client
	index   string
	mapping string
}

// get returns the _source of id, or nil when it does not exist.
func (s *stateDocs) get(ctx context.Context, id string) (json.RawMessage, error) {
	doc, err := s.client.GetDocument(ctx, s.index, "", id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get doc %s: %w", id, err)
	}
	if !doc.Found {
		return nil, nil
	}
	return doc.Source, nil
}

// put writes doc at id. If the index doesn't exist, it is created and the
// write retried once.
func (s *stateDocs) put(ctx context.Context, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling doc %s: %w", id, err)
	}
	_, err = s.client.PutDocument(ctx, s.index, "", id, body)
	if errors.Is(err, domain.ErrNotFound) {
		if createErr := s.ensureIndex(ctx); createErr != nil {
			return fmt.Errorf("creating %s index: %w", s.index, createErr)
		}
		_, err = s.client.PutDocument(ctx, s.index, "", id, body)
	}
	if err != nil {
		return fmt.Errorf("put doc %s: %w", id, err)
	}
	return nil
}

func (s *stateDocs) ensureIndex(ctx context.Context) error {
	body := `{"settings":{"number_of_shards":1,"number_of_replicas":1}`
	if s.mapping != "" {
		body += `,"mappings":` + s.mapping
	}
	body += "}"
	err := s.client.CreateIndex(ctx, s.index, []byte(body))
	// Another worker may have created it concurrently.
	var he *backend.HTTPStatusError
	if errors.As(err, &he) && he.StatusCode == http.StatusBadRequest && strings.Contains(he.Body, "resource_already_exists_exception") {
		return nil
	}
	return err
}

// EngineCheckpointStore stores checkpoints in the engine, making them
// visible to every worker.
type EngineCheckpointStore struct {
	docs *stateDocs
}

// NewEngineCheckpointStore creates a checkpoint store backed by the engine.
func NewEngineCheckpointStore(client backend.Client) *EngineCheckpointStore {
	return &EngineCheckpointStore{docs: &stateDocs{client: client, index: stateIndex}}
}

func (s *EngineCheckpointStore) Load(ctx context.Context, key string) (*Checkpoint, error) {
	raw, err := s.docs.get(ctx, "checkpoint-"+key)
	if err != nil || raw == nil {
		return nil, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, fmt.Errorf("parsing checkpoint: %w", err)
	}
	if cp.Completed {
		return nil, nil
	}
	return &cp, nil
}

func (s *EngineCheckpointStore) Save(ctx context.Context, cp *Checkpoint) error {
	cp.UpdatedAt = time.Now().UTC()
	return s.docs.put(ctx, "checkpoint-"+cp.Key, cp)
}

func (s *EngineCheckpointStore) MarkComplete(ctx context.Context, key string) error {
	return markComplete(ctx, s, key)
}

var (
	_ CheckpointStore = (*LocalCheckpointStore)(nil)
	_ CheckpointStore = (*EngineCheckpointStore)(nil)
)
