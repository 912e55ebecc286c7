package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/templedb/templedb/internal/storage"
)

// wrapDBError wraps a database error with operation context and maps
// driver-level conditions onto the storage sentinel taxonomy:
// sql.ErrNoRows becomes ErrNotFound, constraint violations become
// ErrConflict, and locked/full databases become ErrUnavailable.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	case isUniqueConstraintError(err):
		return fmt.Errorf("%s: %s: %w", op, err.Error(), storage.ErrConflict)
	case isForeignKeyError(err):
		return fmt.Errorf("%s: %s: %w", op, err.Error(), storage.ErrIntegrity)
	case isBusyError(err):
		return fmt.Errorf("%s: %s: %w", op, err.Error(), storage.ErrUnavailable)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// wrapDBErrorf wraps a database error with formatted operation context.
func wrapDBErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return wrapDBError(fmt.Sprintf(format, args...), err)
}

// isUniqueConstraintError checks if an error is a UNIQUE or PRIMARY KEY
// constraint violation. The ncruces driver surfaces these as text.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}

// isForeignKeyError checks if an error is a FOREIGN KEY violation.
func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// isBusyError checks if an error indicates the database cannot accept
// writes right now (locked or out of space).
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database or disk is full")
}
