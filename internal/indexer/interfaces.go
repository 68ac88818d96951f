package indexer

import (
	"context"

	"github.com/MingChen0919/elastic-search/internal/domain"
	"github.com/MingChen0919/elastic-search/internal/gateway"
	"github.com/MingChen0919/elastic-search/internal/source"
)

// Engine is the subset of gateway operations needed by a Job.
type Engine interface {
	IndexExists(ctx context.Context, name string) (bool, error)
	BulkWrite(ctx context.Context, op domain.BulkOperation, index string, records []*domain.Record, docType string, idFn gateway.IDFunc) (*gateway.BulkResult, error)
	CreateOrUpdateDocument(ctx context.Context, index, docType, id string, body any) (string, error)
	DeleteDocument(ctx context.Context, index, docType, id string) error
}

// Source is the relational source plus the naming of its chado tables.
type Source interface {
	source.Source
	Chado(name string) string
}

// Submitter accepts jobs produced by GenerateJobs and returns their ids.
type Submitter interface {
	Submit(ctx context.Context, spec Spec) (string, error)
}

var (
	_ Engine = (*gateway.Gateway)(nil)
	_ Source = (*source.SQLSource)(nil)
)
