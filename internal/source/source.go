package source

import (
	"context"
	"fmt"
	"strconv"
)

// Row is one result row keyed by column name. []byte values are converted
// to string when scanned.
type Row map[string]any

// Int64 returns col as an int64.
func (r Row) Int64(col string) (int64, bool) {
	switch v := r[col].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case float64:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// String returns col formatted as a string, or "" when NULL.
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Query describes a row set. The same value renders the count, the page
// fetch and the keyed fetch, so every one of them filters with Where.
// SQL fragments use ? placeholders.
type Query struct {
	Columns []string // select expressions
	From    string   // table with joins
	Where   string   // predicate, empty for none
	Args    []any    // arguments of Where
	Key     string   // stable ordering key expression, e.g. "BT.entity_id"
}

// Page is a window over a Query ordered by its Key. When HasAfter is set the
// window continues after the key After.
type Page struct {
	Limit    int
	After    int64
	HasAfter bool
}

// Source is the relational data the indexer reads from.
type Source interface {
	// FetchPage returns the rows of q in the window p, ordered by q.Key ascending.
	FetchPage(ctx context.Context, q Query, p Page) ([]Row, error)
	// FetchByKeys returns the rows of q whose keyColumn is one of keys.
	FetchByKeys(ctx context.Context, q Query, keyColumn string, keys []int64) ([]Row, error)
	// Boundaries returns the keys that split q into consecutive key ranges
	// of size rows each. The range after the last boundary holds the rest.
	Boundaries(ctx context.Context, q Query, size int) ([]int64, error)
	// CountEligible counts the rows of q.
	CountEligible(ctx context.Context, q Query) (int, error)
	// TableExists reports whether a (possibly schema qualified) table exists.
	TableExists(ctx context.Context, table string) (bool, error)
	// Strings returns the first column of an arbitrary query.
	Strings(ctx context.Context, query string, args ...any) ([]string, error)
}
