package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Checkpoint tracks the progress of one job window, enabling resume after
// a failed run.
type Checkpoint struct {
	Key        string    `json:"key"`
	StartedAt  time.Time `json:"started_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Total      int64     `json:"total"`
	Processed  int64     `json:"processed"`
	Failed     int64     `json:"failed"`
	Chunk      int       `json:"chunk"`
	LastKey    int64     `json:"last_key"`
	HasLastKey bool      `json:"has_last_key"`
	Completed  bool      `json:"completed"`
}

// CheckpointStore manages checkpoint persistence.
type CheckpointStore interface {
	// Load returns the checkpoint for key, or nil when there is none or the
	// previous run completed.
	Load(ctx context.Context, key string) (*Checkpoint, error)
	Save(ctx context.Context, cp *Checkpoint) error
	MarkComplete(ctx context.Context, key string) error
}

// LocalCheckpointStore keeps checkpoints as JSON files in a directory.
type LocalCheckpointStore struct {
	dir string
}

// NewLocalCheckpointStore creates a checkpoint store in the given directory.
func NewLocalCheckpointStore(dir string) (*LocalCheckpointStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating checkpoint dir %s: %w", dir, err)
	}
	return &LocalCheckpointStore{dir: dir}, nil
}

func (s *LocalCheckpointStore) path(key string) string {
	safe := filepath.Base(strings.ReplaceAll(key, string(filepath.Separator), "_"))
	return filepath.Join(s.dir, safe+".checkpoint.json")
}

func (s *LocalCheckpointStore) Load(_ context.Context, key string) (*Checkpoint, error) {
	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parsing checkpoint: %w", err)
	}
	if cp.Completed {
		return nil, nil
	}
	return &cp, nil
}

func (s *LocalCheckpointStore) Save(_ context.Context, cp *Checkpoint) error {
	cp.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling checkpoint: %w", err)
	}
	if err := os.WriteFile(s.path(cp.Key), data, 0644); err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	return nil
}

func (s *LocalCheckpointStore) MarkComplete(ctx context.Context, key string) error {
	return markComplete(ctx, s, key)
}

func markComplete(ctx context.Context, s CheckpointStore, key string) error {
	cp, err := s.Load(ctx, key)
	if err != nil {
		return err
	}
	if cp == nil {
		cp = &Checkpoint{Key: key}
	}
	cp.Completed = true
	return s.Save(ctx, cp)
}
