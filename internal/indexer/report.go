package indexer

import (
	"fmt"
	"log/slog"
	"strings"
)

// ReportCategory is the category under which indexing failures are reported.
const ReportCategory = "esgate.indexer"

// ErrorReporter receives one message per chunk that had failures.
type ErrorReporter interface {
	Report(category, message string)
}

// LogReporter reports through the default slog logger.
type LogReporter struct{}

func (LogReporter) Report(category, message string) {
	slog.Error(message, "category", category)
}

// RecordResult is the write outcome of one record.
type RecordResult struct {
	ID  string
	Err error
}

// BatchOutcome collects the record results of one chunk.
type BatchOutcome struct {
	Partition string
	Chunk     int
	Results   []RecordResult
}

func (b *BatchOutcome) add(id string, err error) {
	b.Results = append(b.Results, RecordResult{ID: id, Err: err})
}

// Failed returns the results that carry an error.
func (b *BatchOutcome) Failed() []RecordResult {
	var out []RecordResult
	for _, r := range b.Results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// Succeeded returns the number of records written.
func (b *BatchOutcome) Succeeded() int {
	return len(b.Results) - len(b.Failed())
}

// Message summarises the failures of the chunk, or "" when there were none.
func (b *BatchOutcome) Message() string {
	failed := b.Failed()
	if len(failed) == 0 {
		return ""
	}
	const maxListed = 5
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s chunk %d: %d of %d records failed", b.Partition, b.Chunk, len(failed), len(b.Results))
	for i, r := range failed {
		if i == maxListed {
			fmt.Fprintf(&sb, "; and %d more", len(failed)-maxListed)
			break
		}
		fmt.Fprintf(&sb, "; %s: %v", r.ID, r.Err)
	}
	return sb.String()
}
