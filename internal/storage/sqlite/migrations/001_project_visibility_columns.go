// Package migrations holds idempotent schema migrations applied at
// database open, in registration order.
package migrations

import (
	"database/sql"
	"fmt"
)

// columnExists reports whether the named column exists on the table.
func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("check schema for %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var cid int
		var name, typ string
		var notnull, pk int
		var dflt *string
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
			return false, fmt.Errorf("scan column info: %w", err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// addColumnIfMissing adds a column unless it already exists.
func addColumnIfMissing(db *sql.DB, table, column, definition string) error {
	exists, err := columnExists(db, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if _, err := db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)); err != nil {
		return fmt.Errorf("add %s.%s: %w", table, column, err)
	}
	return nil
}

// MigrateProjectVisibilityColumns adds the visibility and license
// columns consumed by the cathedral manifest.
func MigrateProjectVisibilityColumns(db *sql.DB) error {
	if err := addColumnIfMissing(db, "projects", "visibility", "TEXT NOT NULL DEFAULT 'private'"); err != nil {
		return err
	}
	return addColumnIfMissing(db, "projects", "license", "TEXT NOT NULL DEFAULT ''")
}
