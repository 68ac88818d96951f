package backend

import (
	"context"
	"encoding/json"
)

// DefaultType is the document type used in URLs when none is given.
const DefaultType = "_doc"

// SearchResponse is the decoded response of a _search call.
type SearchResponse struct {
	Took     int        `json:"took"`
	TimedOut bool       `json:"timed_out"`
	Hits     HitsResult `json:"hits"`
}

// HitsResult contains the search hits.
type HitsResult struct {
	Total    HitsTotal         `json:"total"`
	MaxScore *float64          `json:"max_score"`
	Hits     []json.RawMessage `json:"hits"`
}

// HitsTotal represents the total hit count.
type HitsTotal struct {
	Value    int    `json:"value"`
	Relation string `json:"relation"`
}

// UnmarshalJSON accepts both the object form and the bare number returned
// by older engines.
func (t *HitsTotal) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		t.Value, t.Relation = n, "eq"
		return nil
	}
	type plain HitsTotal
	return json.Unmarshal(b, (*plain)(t))
}

// Document is the result of a single document lookup.
type Document struct {
	Index  string          `json:"_index"`
	Type   string          `json:"_type,omitempty"`
	ID     string          `json:"_id"`
	Found  bool            `json:"found"`
	SeqNo  int64           `json:"_seq_no"`
	Term   int64           `json:"_primary_term"`
	Source json.RawMessage `json:"_source,omitempty"`
}

// BulkResponse is the decoded response of a _bulk call.
type BulkResponse struct {
	Took   int        `json:"took"`
	Errors bool       `json:"errors"`
	Items  []BulkItem `json:"-"`
}

// BulkItem is the outcome of one action in a bulk call.
type BulkItem struct {
	Op     string
	Index  string
	ID     string
	Status int
	Error  string
}

// Failed reports whether the item was rejected.
func (i BulkItem) Failed() bool { return i.Status >= 300 || i.Error != "" }

// Client is the set of engine operations the gateway and indexer consume.
// Type arguments may be empty, in which case DefaultType is used.
type Client interface {
	CreateIndex(ctx context.Context, name string, body []byte) error
	DeleteIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	// GetMapping returns the mapping of index, or of every index when index is empty.
	GetMapping(ctx context.Context, index string) (json.RawMessage, error)
	GetSettings(ctx context.Context, index string) (json.RawMessage, error)

	// GetDocument returns a document with Found=false when it does not exist.
	GetDocument(ctx context.Context, index, docType, id string) (*Document, error)
	// PutDocument stores body at id, or at an engine assigned id when id is
	// empty, and returns the id used.
	PutDocument(ctx context.Context, index, docType, id string, body []byte) (string, error)
	DeleteDocument(ctx context.Context, index, docType, id string) error
	Bulk(ctx context.Context, body []byte) (*BulkResponse, error)

	Search(ctx context.Context, indices []string, docType string, body []byte) (*SearchResponse, error)
	Count(ctx context.Context, indices []string, docType string, body []byte) (int, error)
	DeleteByQuery(ctx context.Context, index, docType string, body []byte) error
}
