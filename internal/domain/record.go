package domain

import (
	"fmt"
	"strconv"
)

// BulkOperation is the action of a bulk write entry.
type BulkOperation string

const (
	OpIndex  BulkOperation = "index"
	OpUpdate BulkOperation = "update"
)

// Valid reports whether op is a supported bulk action.
func (op BulkOperation) Valid() bool {
	return op == OpIndex || op == OpUpdate
}

// ParseBulkOperation converts a configuration string into a BulkOperation.
func ParseBulkOperation(s string) (BulkOperation, error) {
	op := BulkOperation(s)
	if !op.Valid() {
		return "", InputRejected("unknown bulk operation %q", s)
	}
	return op, nil
}

// Record is a single row prepared for indexing. It is built from one source
// row, enriched once, written once and then dropped.
type Record struct {
	Key    int64
	HasKey bool
	Fields map[string]any

	// Enrichment. Nil lists render as an empty string.
	Annotations [][]string
	BlastHits   [][]string
	URL         string
	enriched    bool
}

// NewRecord creates a record keyed by the given source primary key.
func NewRecord(key int64, fields map[string]any) *Record {
	if fields == nil {
		fields = make(map[string]any)
	}
	return &Record{Key: key, HasKey: true, Fields: fields}
}

// NewKeylessRecord creates a record for a target whose ids are assigned by the engine.
func NewKeylessRecord(fields map[string]any) *Record {
	if fields == nil {
		fields = make(map[string]any)
	}
	return &Record{Fields: fields}
}

// ID returns the string form of the record key, or "" for keyless records.
func (r *Record) ID() string {
	if !r.HasKey {
		return ""
	}
	return strconv.FormatInt(r.Key, 10)
}

// Enrich attaches joined auxiliary data. A record is enriched at most once.
func (r *Record) Enrich(annotations, blastHits [][]string, url string) error {
	if r.enriched {
		return fmt.Errorf("record %s already enriched", r.ID())
	}
	r.Annotations = annotations
	r.BlastHits = blastHits
	r.URL = url
	r.enriched = true
	return nil
}

// Enriched reports whether Enrich has been applied.
func (r *Record) Enriched() bool { return r.enriched }

// Document renders the engine document body.
func (r *Record) Document() map[string]any {
	doc := make(map[string]any, len(r.Fields)+3)
	for k, v := range r.Fields {
		doc[k] = v
	}
	if r.enriched {
		doc["annotations"] = listOrEmpty(r.Annotations)
		doc["blast_hit_descriptions"] = listOrEmpty(r.BlastHits)
		doc["url"] = r.URL
	}
	return doc
}

func listOrEmpty(v [][]string) any {
	if len(v) == 0 {
		return ""
	}
	return v
}
