package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/MingChen0919/elastic-search/internal/backend"
	"github.com/MingChen0919/elastic-search/internal/domain"
	"github.com/MingChen0919/elastic-search/internal/metrics"
	"github.com/MingChen0919/elastic-search/internal/query"
)

const capabilityKey = "capabilities"

// Gateway is the facade over the engine client used by the HTTP API and the
// indexer. It holds no request state: every call receives what it needs.
type Gateway struct {
	client backend.Client
	caps   *expirable.LRU[string, query.Capabilities]
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithCapabilityTTL sets how long the resolved index capabilities are reused.
func WithCapabilityTTL(ttl time.Duration) Option {
	return func(g *Gateway) {
		g.caps = expirable.NewLRU[string, query.Capabilities](1, nil, ttl)
	}
}

// New creates a Gateway over client.
func New(client backend.Client, opts ...Option) *Gateway {
	g := &Gateway{client: client}
	for _, o := range opts {
		o(g)
	}
	if g.caps == nil {
		g.caps = expirable.NewLRU[string, query.Capabilities](1, nil, time.Minute)
	}
	return g
}

// CreateIndex creates the index described by d. Creating an index that
// already exists returns the engine error unchanged.
func (g *Gateway) CreateIndex(ctx context.Context, d *query.IndexDescriptor) error {
	if d == nil {
		return domain.ConfigurationError("no index descriptor has been built")
	}
	body, err := json.Marshal(d.Body())
	if err != nil {
		return fmt.Errorf("encoding index %s: %w", d.Name, err)
	}
	err = g.observe("create_index", func() error {
		return g.client.CreateIndex(ctx, d.Name, body)
	})
	if err != nil {
		return err
	}
	g.InvalidateCapabilities()
	slog.Info("index created", "index", d.Name, "shards", d.Shards, "replicas", d.Replicas, "fields", len(d.Fields))
	return nil
}

// DeleteIndex removes an index and all its documents.
func (g *Gateway) DeleteIndex(ctx context.Context, name string) error {
	if name == "" {
		return domain.ConfigurationError("index name is required to delete an index")
	}
	err := g.observe("delete_index", func() error {
		return g.client.DeleteIndex(ctx, name)
	})
	if err != nil {
		return err
	}
	g.InvalidateCapabilities()
	slog.Info("index deleted", "index", name)
	return nil
}

// DeleteAllDocuments removes every document of index (and type) with a
// match_all delete-by-query. This cannot be undone. The type defaults to the
// index name.
func (g *Gateway) DeleteAllDocuments(ctx context.Context, index, docType string) error {
	if index == "" {
		return domain.ConfigurationError("index name is required to delete documents")
	}
	if docType == "" {
		docType = index
	}
	body := []byte(`{"query":{"match_all":{}}}`)
	err := g.observe("delete_all", func() error {
		return g.client.DeleteByQuery(ctx, index, docType, body)
	})
	if err != nil {
		return err
	}
	slog.Warn("all documents deleted", "index", index, "type", docType)
	return nil
}

// GetDocument returns the document at id. A missing document, or any lookup
// failure other than the engine being unavailable, is reported as
// Found=false rather than an error.
func (g *Gateway) GetDocument(ctx context.Context, index, docType, id string) (*backend.Document, error) {
	var doc *backend.Document
	err := g.observe("get_document", func() error {
		var err error
		doc, err = g.client.GetDocument(ctx, index, docType, id)
		return err
	})
	if err != nil {
		if isUnavailable(err) {
			return nil, err
		}
		slog.Debug("document lookup failed, reporting not found", "index", index, "id", id, "error", err)
		return &backend.Document{Index: index, Type: docType, ID: id, Found: false}, nil
	}
	return doc, nil
}

// CreateOrUpdateDocument stores body at id, replacing any existing document.
// An empty id lets the engine assign one. It returns the id used.
func (g *Gateway) CreateOrUpdateDocument(ctx context.Context, index, docType, id string, body any) (string, error) {
	if index == "" {
		return "", domain.ConfigurationError("index name is required to write a document")
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encoding document %s: %w", id, err)
	}
	var assigned string
	err = g.observe("put_document", func() error {
		var err error
		assigned, err = g.client.PutDocument(ctx, index, docType, id, raw)
		return err
	})
	return assigned, err
}

// DeleteDocument removes the document at id.
func (g *Gateway) DeleteDocument(ctx context.Context, index, docType, id string) error {
	if id == "" {
		return domain.InputRejected("document id is required to delete a document")
	}
	return g.observe("delete_document", func() error {
		return g.client.DeleteDocument(ctx, index, docType, id)
	})
}

// IDFunc extracts the document id of a record. Returning "" lets the engine
// assign the id.
type IDFunc func(*domain.Record) string

// RecordID uses the record's source key as document id.
func RecordID(r *domain.Record) string { return r.ID() }

// BulkResult is the outcome of one bulk call.
type BulkResult struct {
	Took   int
	Items  []backend.BulkItem
	Failed int
}

// Err returns a PartialWriteError when some items were rejected.
func (r *BulkResult) Err() error {
	if r == nil || r.Failed == 0 {
		return nil
	}
	var first error
	for _, it := range r.Items {
		if it.Failed() {
			first = fmt.Errorf("%s %s/%s: status %d: %s", it.Op, it.Index, it.ID, it.Status, it.Error)
			break
		}
	}
	return &domain.PartialWriteError{Failed: r.Failed, Total: len(r.Items), First: first}
}

// BulkWrite sends records as a single engine bulk call. An empty record list
// returns an empty result without contacting the engine. The type defaults
// to the index name. idFn may be nil, in which case the engine assigns ids;
// that is only valid for index operations.
func (g *Gateway) BulkWrite(ctx context.Context, op domain.BulkOperation, index string, records []*domain.Record, docType string, idFn IDFunc) (*BulkResult, error) {
	if len(records) == 0 {
		return &BulkResult{}, nil
	}
	if !op.Valid() {
		return nil, domain.InputRejected("unknown bulk operation %q", op)
	}
	if index == "" {
		return nil, domain.ConfigurationError("index name is required for a bulk write")
	}
	if op == domain.OpUpdate && idFn == nil {
		return nil, domain.InputRejected("bulk update requires document ids")
	}
	if docType == "" {
		docType = index
	}

	actions := make([]backend.BulkAction, 0, len(records))
	for _, r := range records {
		a := backend.BulkAction{Op: op, Index: index, Type: docType, Doc: r.Document()}
		if idFn != nil {
			a.ID = idFn(r)
		}
		actions = append(actions, a)
	}
	body, err := backend.EncodeBulk(actions)
	if err != nil {
		return nil, err
	}

	var resp *backend.BulkResponse
	err = g.observe("bulk", func() error {
		var err error
		resp, err = g.client.Bulk(ctx, body)
		return err
	})
	if err != nil {
		return nil, err
	}
	result := &BulkResult{Took: resp.Took, Items: resp.Items}
	for _, it := range resp.Items {
		if it.Failed() {
			result.Failed++
		}
	}
	if result.Failed > 0 {
		slog.Warn("bulk write had rejected items", "index", index, "failed", result.Failed, "total", len(records))
	}
	return result, nil
}

// IndexExists reports whether name exists.
func (g *Gateway) IndexExists(ctx context.Context, name string) (bool, error) {
	var ok bool
	err := g.observe("index_exists", func() error {
		var err error
		ok, err = g.client.IndexExists(ctx, name)
		return err
	})
	return ok, err
}

func (g *Gateway) observe(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.EngineRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	metrics.EngineRequestsTotal.WithLabelValues(op, metrics.Status(err)).Inc()
	return err
}
