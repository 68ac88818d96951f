package source

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	Postgres = "postgres"
	MySQL    = "mysql"
	SQLite   = "sqlite"
)

// SQLSource implements Source over database/sql.
type SQLSource struct {
	db     *sql.DB
	driver string
	schema string
}

// Open connects to the database. schema qualifies the chado tables and may
// be empty.
func Open(ctx context.Context, driver, dsn, schema string, maxOpenConns int) (*SQLSource, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to %s database: %w", driver, err)
	}
	s, err := New(db, driver, schema)
	if err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("connected to source database", "driver", driver, "schema", schema)
	return s, nil
}

// New wraps an open database handle.
func New(db *sql.DB, driver, schema string) (*SQLSource, error) {
	switch driver {
	case Postgres, MySQL, SQLite:
	default:
		return nil, fmt.Errorf("unsupported source driver %q", driver)
	}
	return &SQLSource{db: db, driver: driver, schema: schema}, nil
}

// Close closes the underlying database.
func (s *SQLSource) Close() error { return s.db.Close() }

// Chado returns name qualified with the chado schema.
func (s *SQLSource) Chado(name string) string {
	if s.schema == "" {
		return name
	}
	return s.schema + "." + name
}

func (s *SQLSource) FetchPage(ctx context.Context, q Query, p Page) ([]Row, error) {
	if q.Key == "" {
		return nil, fmt.Errorf("query over %s has no ordering key", q.From)
	}
	where, args := q.Where, append([]any(nil), q.Args...)
	if p.HasAfter {
		where = and(where, q.Key+" > ?")
		args = append(args, p.After)
	}
	stmt := q.selectSQL(where) + " ORDER BY " + q.Key + " ASC LIMIT ?"
	args = append(args, p.Limit)
	return s.query(ctx, stmt, args...)
}

func (s *SQLSource) FetchByKeys(ctx context.Context, q Query, keyColumn string, keys []int64) ([]Row, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(keys)), ", ")
	args := append([]any(nil), q.Args...)
	for _, k := range keys {
		args = append(args, k)
	}
	stmt := q.selectSQL(and(q.Where, keyColumn+" IN ("+marks+")"))
	if q.Key != "" {
		stmt += " ORDER BY " + q.Key + " ASC"
	}
	return s.query(ctx, stmt, args...)
}

func (s *SQLSource) Boundaries(ctx context.Context, q Query, size int) ([]int64, error) {
	if q.Key == "" {
		return nil, fmt.Errorf("query over %s has no ordering key", q.From)
	}
	if size <= 0 {
		return nil, fmt.Errorf("invalid window size %d", size)
	}
	keys := Query{Columns: []string{q.Key}, From: q.From, Where: q.Where, Args: q.Args}

	var out []int64
	for {
		where, args := keys.Where, append([]any(nil), keys.Args...)
		if len(out) > 0 {
			where = and(where, q.Key+" > ?")
			args = append(args, out[len(out)-1])
		}
		// The size-th key closes a range only when another row follows it.
		stmt := keys.selectSQL(where) + " ORDER BY " + q.Key + " ASC LIMIT 2 OFFSET ?"
		args = append(args, size-1)
		next, err := s.int64s(ctx, stmt, args...)
		if err != nil {
			return nil, fmt.Errorf("scanning keys of %s: %w", q.From, err)
		}
		if len(next) < 2 {
			return out, nil
		}
		out = append(out, next[0])
	}
}

func (s *SQLSource) int64s(ctx context.Context, stmt string, args ...any) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(stmt), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLSource) CountEligible(ctx context.Context, q Query) (int, error) {
	stmt := "SELECT COUNT(*) FROM " + q.From
	if q.Where != "" {
		stmt += " WHERE " + q.Where
	}
	var n int
	if err := s.db.QueryRowContext(ctx, s.rebind(stmt), q.Args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting rows of %s: %w", q.From, err)
	}
	return n, nil
}

func (s *SQLSource) TableExists(ctx context.Context, table string) (bool, error) {
	schema, name := splitTable(table)
	var stmt string
	var args []any
	switch s.driver {
	case Postgres:
		stmt, args = "SELECT COUNT(*) FROM (SELECT to_regclass(?) AS t) r WHERE r.t IS NOT NULL", []any{table}
	case MySQL:
		if schema == "" {
			stmt, args = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?", []any{name}
		} else {
			stmt, args = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = ? AND table_name = ?", []any{schema, name}
		}
	case SQLite:
		stmt, args = "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", []any{name}
	}
	var n int
	if err := s.db.QueryRowContext(ctx, s.rebind(stmt), args...).Scan(&n); err != nil {
		return false, fmt.Errorf("checking table %s: %w", table, err)
	}
	return n > 0, nil
}

func (s *SQLSource) Strings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying source: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning value: %w", err)
		}
		if v.Valid {
			out = append(out, v.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}

func (s *SQLSource) query(ctx context.Context, stmt string, args ...any) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(stmt), args...)
	if err != nil {
		return nil, fmt.Errorf("querying source: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}
	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}

// rebind converts ? placeholders to $n for postgres. Quoted literals are
// left untouched.
func (s *SQLSource) rebind(stmt string) string {
	if s.driver != Postgres {
		return stmt
	}
	var b strings.Builder
	b.Grow(len(stmt) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(stmt); i++ {
		c := stmt[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
		case c == '?' && !inQuote:
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func (q Query) selectSQL(where string) string {
	cols := "*"
	if len(q.Columns) > 0 {
		cols = strings.Join(q.Columns, ", ")
	}
	stmt := "SELECT " + cols + " FROM " + q.From
	if where != "" {
		stmt += " WHERE " + where
	}
	return stmt
}

func and(a, b string) string {
	if a == "" {
		return b
	}
	return "(" + a + ") AND " + b
}

func splitTable(table string) (schema, name string) {
	if i := strings.LastIndex(table, "."); i >= 0 {
		return table[:i], table[i+1:]
	}
	return "", table
}
