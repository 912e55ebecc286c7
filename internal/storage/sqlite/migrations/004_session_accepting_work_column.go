package migrations

import "database/sql"

// MigrateSessionAcceptingWorkColumn adds the accepting_work flag so the
// dispatcher can skip sessions that are draining.
func MigrateSessionAcceptingWorkColumn(db *sql.DB) error {
	return addColumnIfMissing(db, "agent_sessions", "accepting_work", "INTEGER NOT NULL DEFAULT 1")
}
