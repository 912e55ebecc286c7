// Package sqlite - database migrations
package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/templedb/templedb/internal/storage/sqlite/migrations"
)

// Migration represents a single database migration.
type Migration struct {
	Name string
	Func func(*sql.DB) error
}

// migrationsList is the ordered list of all migrations. They run in
// order during database initialization and each one is idempotent, so
// databases created by any past schema converge on the current shape.
var migrationsList = []Migration{
	{"project_visibility_columns", migrations.MigrateProjectVisibilityColumns},
	{"checkout_branch_column", migrations.MigrateCheckoutBranchColumn},
	{"blob_reference_index", migrations.MigrateBlobReferenceIndex},
	{"session_accepting_work_column", migrations.MigrateSessionAcceptingWorkColumn},
}

// SchemaVersion is the number of registered migrations. It is stamped
// into cathedral manifests so imports can detect older schemas.
func SchemaVersion() int {
	return len(migrationsList)
}

// RunMigrations applies every registered migration in order.
func RunMigrations(db *sql.DB) error {
	for _, m := range migrationsList {
		if err := m.Func(db); err != nil {
			return fmt.Errorf("migration %s: %w", m.Name, err)
		}
	}
	return nil
}
