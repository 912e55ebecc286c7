package sqlite

import (
	"context"
	"database/sql"

	"github.com/templedb/templedb/internal/types"
)

// ListFileExports returns every active file of a project with its
// current content pointer and raw blob bytes joined in a single query.
// The cathedral exporter depends on this being one round trip.
func (s *Store) ListFileExports(ctx context.Context, projectID int64) ([]*types.FileExport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pf.id, pf.file_path, pf.file_name, pf.file_type, pf.status,
		       fc.version, fc.content_hash, fc.size_bytes, fc.line_count, fc.created_at,
		       cb.kind, cb.content_text, cb.content_bytes
		FROM project_files pf
		JOIN file_contents fc ON fc.file_id = pf.id AND fc.is_current = 1
		JOIN content_blobs cb ON cb.hash_sha256 = fc.content_hash
		WHERE pf.project_id = ? AND pf.status = 'active'
		ORDER BY pf.file_path`, projectID)
	if err != nil {
		return nil, wrapDBErrorf(err, "export files for project %d", projectID)
	}
	defer func() { _ = rows.Close() }()

	var exports []*types.FileExport
	for rows.Next() {
		var fe types.FileExport
		var kind string
		var contentText sql.NullString
		var contentBytes []byte
		if err := rows.Scan(&fe.FileID, &fe.Path, &fe.Name, &fe.FileType, &fe.Status,
			&fe.Version, &fe.Hash, &fe.SizeBytes, &fe.LineCount, &fe.CreatedAt,
			&kind, &contentText, &contentBytes); err != nil {
			return nil, wrapDBError("scan file export", err)
		}
		if types.BlobKind(kind) == types.BlobText {
			fe.Content = []byte(contentText.String)
		} else {
			fe.Content = contentBytes
		}
		exports = append(exports, &fe)
	}
	return exports, rows.Err()
}
