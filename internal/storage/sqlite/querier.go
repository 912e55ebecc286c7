package sqlite

import (
	"context"
	"database/sql"
	"strings"
)

// querier is the common surface of *sql.DB and *sql.Conn used by the
// shared query helpers. Store methods pass the pooled handle; the
// transaction wrapper passes its dedicated connection, so every helper
// works identically inside and outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

var (
	_ querier = (*sql.DB)(nil)
	_ querier = (*sql.Conn)(nil)
)

// placeholders returns a comma-separated list of n SQL placeholders.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// nullString maps an empty string to NULL for optional text columns.
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// stringOrEmpty maps a NULL-able scan target back to a plain string.
func stringOrEmpty(s sql.NullString) string {
	if s.Valid {
		return s.String
	}
	return ""
}
