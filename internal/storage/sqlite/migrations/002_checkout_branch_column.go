package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateCheckoutBranchColumn adds branch_id to checkouts for databases
// created before checkouts became branch-aware. Existing rows are
// backfilled with the project's default branch.
func MigrateCheckoutBranchColumn(db *sql.DB) error {
	exists, err := columnExists(db, "checkouts", "branch_id")
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if _, err := db.Exec(`ALTER TABLE checkouts ADD COLUMN branch_id INTEGER REFERENCES branches(id)`); err != nil {
		return fmt.Errorf("add checkouts.branch_id: %w", err)
	}

	_, err = db.Exec(`
		UPDATE checkouts SET branch_id = (
			SELECT b.id FROM branches b
			WHERE b.project_id = checkouts.project_id AND b.is_default = 1
		)
		WHERE branch_id IS NULL`)
	if err != nil {
		return fmt.Errorf("backfill checkouts.branch_id: %w", err)
	}
	return nil
}
