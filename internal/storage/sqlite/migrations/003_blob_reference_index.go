package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateBlobReferenceIndex creates the partial index used by the
// unreferenced-blob sweep. Kept out of the base schema because early
// databases predate the sweep.
func MigrateBlobReferenceIndex(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_content_blobs_unreferenced
		ON content_blobs(hash_sha256) WHERE reference_count = 0`)
	if err != nil {
		return fmt.Errorf("create unreferenced blob index: %w", err)
	}
	return nil
}
