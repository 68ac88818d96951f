package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"
)

const lockIndex = ".esgate-locks"

// EngineLock implements distributed locking using engine documents.
// It uses op_type=create for atomic lock acquisition and optimistic
// concurrency control (_seq_no + _primary_term) for safe expired-lock cleanup.
type EngineLock struct {
	es    *Elasticsearch
	owner string
}

// NewEngineLock creates a lock stored in the same cluster the indexer writes
// to, so no additional infrastructure is required.
func NewEngineLock(es *Elasticsearch) *EngineLock {
	hostname, _ := os.Hostname()
	return &EngineLock{
		es:    es,
		owner: fmt.Sprintf("%s-%d", hostname, os.Getpid()),
	}
}

type lockDoc struct {
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Acquire attempts to acquire a lock for the given key with the specified TTL.
// It first tries to clean up any expired lock, then atomically creates a lock
// document using op_type=create (which returns 409 if the document already exists).
func (l *EngineLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := l.cleanupExpired(ctx, key); err != nil {
		slog.Debug("lock cleanup failed (non-fatal)", "key", key, "error", err)
	}

	acquired, err := l.tryCreate(ctx, key, ttl)
	if err != nil && isIndexMissing(err) {
		// auto_create_index may be disabled on the cluster.
		if createErr := l.ensureIndex(ctx); createErr != nil {
			return false, fmt.Errorf("creating lock index: %w", createErr)
		}
		return l.tryCreate(ctx, key, ttl)
	}
	return acquired, err
}

// Release releases the lock for the given key.
func (l *EngineLock) Release(ctx context.Context, key string) error {
	path := fmt.Sprintf("/%s/_doc/%s?refresh=true", lockIndex, url.PathEscape(key))
	status, _, err := l.es.do(ctx, http.MethodDelete, path, nil, "")
	// 404: already released or expired.
	if err != nil && status != http.StatusNotFound {
		return fmt.Errorf("lock release failed: %w", err)
	}
	return nil
}

// indexMissingError is returned when the lock index does not exist.
type indexMissingError struct {
	msg string
}

func (e *indexMissingError) Error() string { return e.msg }

func isIndexMissing(err error) bool {
	var im *indexMissingError
	return errors.As(err, &im)
}

func (l *EngineLock) tryCreate(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	body, err := json.Marshal(lockDoc{Owner: l.owner, AcquiredAt: now, ExpiresAt: now.Add(ttl)})
	if err != nil {
		return false, fmt.Errorf("marshaling lock doc: %w", err)
	}

	path := fmt.Sprintf("/%s/_doc/%s?op_type=create&refresh=true", lockIndex, url.PathEscape(key))
	status, _, err := l.es.do(ctx, http.MethodPut, path, body, "application/json")
	switch {
	case status == http.StatusConflict:
		// Held by another instance.
		return false, nil
	case status == http.StatusNotFound:
		return false, &indexMissingError{msg: fmt.Sprintf("lock index %s does not exist", lockIndex)}
	case err != nil:
		return false, fmt.Errorf("lock acquire failed: %w", err)
	default:
		return true, nil
	}
}

// cleanupExpired deletes the lock for key if it has expired, guarded by
// seq_no/primary_term so a concurrently renewed lock is left alone.
func (l *EngineLock) cleanupExpired(ctx context.Context, key string) error {
	doc, err := l.es.GetDocument(ctx, lockIndex, "", key)
	if err != nil {
		return err
	}
	if !doc.Found {
		return nil
	}

	var held lockDoc
	if err := json.Unmarshal(doc.Source, &held); err != nil {
		return err
	}
	if !time.Now().UTC().After(held.ExpiresAt) {
		return nil
	}

	slog.Info("cleaning up expired indexing lock",
		"key", key,
		"owner", held.Owner,
		"expired_at", held.ExpiresAt,
	)
	path := fmt.Sprintf("/%s/_doc/%s?if_seq_no=%d&if_primary_term=%d&refresh=true",
		lockIndex, url.PathEscape(key), doc.SeqNo, doc.Term)
	status, _, err := l.es.do(ctx, http.MethodDelete, path, nil, "")
	// 409: another instance cleaned it up first.
	if err != nil && status != http.StatusConflict {
		return err
	}
	return nil
}

func (l *EngineLock) ensureIndex(ctx context.Context) error {
	body := []byte(`{"settings":{"number_of_shards":1,"number_of_replicas":1}}`)
	status, respBody, err := l.es.do(ctx, http.MethodPut, "/"+lockIndex, body, "application/json")
	// Another instance may have created it concurrently.
	if status == http.StatusBadRequest && bytes.Contains(respBody, []byte("resource_already_exists_exception")) {
		return nil
	}
	return err
}
