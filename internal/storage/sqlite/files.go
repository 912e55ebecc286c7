package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path"
	"time"

	"github.com/templedb/templedb/internal/storage"
	"github.com/templedb/templedb/internal/types"
)

// UpsertFile creates or refreshes a file identity and returns its id.
// A deleted file at the same path is revived as active.
func (s *Store) UpsertFile(ctx context.Context, file *types.ProjectFile) (int64, error) {
	return upsertFile(ctx, s.db, file)
}

func upsertFile(ctx context.Context, q querier, file *types.ProjectFile) (int64, error) {
	if file.Path == "" || path.IsAbs(file.Path) {
		return 0, fmt.Errorf("file path must be relative and non-empty: %q: %w", file.Path, storage.ErrInvalidInput)
	}
	if file.Name == "" {
		file.Name = path.Base(file.Path)
	}
	if file.Status == "" {
		file.Status = types.FileActive
	}
	if file.FileType == "" {
		file.FileType = "text"
	}
	// Self-register unknown tags so rule overrides can introduce new
	// types without a schema change.
	if err := upsertFileType(ctx, q, file.FileType, ""); err != nil {
		return 0, err
	}
	now := time.Now().UTC()

	_, err := q.ExecContext(ctx, `
		INSERT INTO project_files (project_id, file_path, file_name, file_type, line_count, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, file_path) DO UPDATE SET
			file_name = excluded.file_name,
			file_type = excluded.file_type,
			line_count = excluded.line_count,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		file.ProjectID, file.Path, file.Name, file.FileType, file.LineCount,
		string(file.Status), now, now)
	if err != nil {
		return 0, wrapDBErrorf(err, "upsert file %s", file.Path)
	}

	var id int64
	err = q.QueryRowContext(ctx,
		`SELECT id FROM project_files WHERE project_id = ? AND file_path = ?`,
		file.ProjectID, file.Path).Scan(&id)
	if err != nil {
		return 0, wrapDBErrorf(err, "resolve file id %s", file.Path)
	}
	file.ID = id
	return id, nil
}

// GetFileByPath looks up one file. Every project_files query filters by
// project: paths are only unique within a project.
func (s *Store) GetFileByPath(ctx context.Context, projectID int64, filePath string) (*types.ProjectFile, error) {
	return getFileByPath(ctx, s.db, projectID, filePath)
}

func getFileByPath(ctx context.Context, q querier, projectID int64, filePath string) (*types.ProjectFile, error) {
	var f types.ProjectFile
	var hash sql.NullString
	var version sql.NullInt64
	err := q.QueryRowContext(ctx, `
		SELECT pf.id, pf.project_id, pf.file_path, pf.file_name, pf.file_type,
		       pf.line_count, pf.status, pf.created_at, pf.updated_at,
		       fc.content_hash, fc.version
		FROM project_files pf
		LEFT JOIN file_contents fc ON fc.file_id = pf.id AND fc.is_current = 1
		WHERE pf.project_id = ? AND pf.file_path = ?`,
		projectID, filePath).
		Scan(&f.ID, &f.ProjectID, &f.Path, &f.Name, &f.FileType,
			&f.LineCount, &f.Status, &f.CreatedAt, &f.UpdatedAt, &hash, &version)
	if err != nil {
		return nil, wrapDBErrorf(err, "get file %s", filePath)
	}
	f.CurrentHash = stringOrEmpty(hash)
	f.CurrentVersion = int(version.Int64)
	return &f, nil
}

// ListFiles returns a project's files in deterministic path order.
// With includeContent the current content pointer is joined in.
func (s *Store) ListFiles(ctx context.Context, projectID int64, includeContent bool) ([]*types.ProjectFile, error) {
	return listFiles(ctx, s.db, projectID, includeContent)
}

func listFiles(ctx context.Context, q querier, projectID int64, includeContent bool) ([]*types.ProjectFile, error) {
	query := `
		SELECT pf.id, pf.project_id, pf.file_path, pf.file_name, pf.file_type,
		       pf.line_count, pf.status, pf.created_at, pf.updated_at`
	if includeContent {
		query += `, fc.content_hash, fc.version`
	}
	query += ` FROM project_files pf`
	if includeContent {
		query += ` LEFT JOIN file_contents fc ON fc.file_id = pf.id AND fc.is_current = 1`
	}
	query += ` WHERE pf.project_id = ? ORDER BY pf.file_path`

	rows, err := q.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, wrapDBErrorf(err, "list files for project %d", projectID)
	}
	defer func() { _ = rows.Close() }()

	var files []*types.ProjectFile
	for rows.Next() {
		var f types.ProjectFile
		targets := []interface{}{&f.ID, &f.ProjectID, &f.Path, &f.Name, &f.FileType,
			&f.LineCount, &f.Status, &f.CreatedAt, &f.UpdatedAt}
		var hash sql.NullString
		var version sql.NullInt64
		if includeContent {
			targets = append(targets, &hash, &version)
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, wrapDBError("scan file", err)
		}
		f.CurrentHash = stringOrEmpty(hash)
		f.CurrentVersion = int(version.Int64)
		files = append(files, &f)
	}
	return files, rows.Err()
}

// SetCurrentContent atomically retires the previous current content row
// and inserts the next version. Returns the new version number.
func (s *Store) SetCurrentContent(ctx context.Context, fileID int64, hash string, sizeBytes int64, lineCount int) (int, error) {
	return setCurrentContent(ctx, s.db, fileID, hash, sizeBytes, lineCount)
}

func setCurrentContent(ctx context.Context, q querier, fileID int64, hash string, sizeBytes int64, lineCount int) (int, error) {
	var prev sql.NullInt64
	err := q.QueryRowContext(ctx,
		`SELECT MAX(version) FROM file_contents WHERE file_id = ?`, fileID).Scan(&prev)
	if err != nil {
		return 0, wrapDBErrorf(err, "read version chain for file %d", fileID)
	}
	version := int(prev.Int64) + 1
	if err := setCurrentContentAt(ctx, q, fileID, hash, sizeBytes, lineCount, version, time.Time{}); err != nil {
		return 0, err
	}
	return version, nil
}

// setCurrentContentAt writes a specific version as current. Used by
// cathedral import to reconstruct version chains verbatim, original
// timestamps included. A zero createdAt means now.
func setCurrentContentAt(ctx context.Context, q querier, fileID int64, hash string, sizeBytes int64, lineCount, version int, createdAt time.Time) error {
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := q.ExecContext(ctx,
		`UPDATE file_contents SET is_current = 0 WHERE file_id = ? AND is_current = 1`, fileID); err != nil {
		return wrapDBErrorf(err, "retire current content for file %d", fileID)
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO file_contents (file_id, version, content_hash, size_bytes, line_count, is_current, created_at)
		VALUES (?, ?, ?, ?, ?, 1, ?)`,
		fileID, version, hash, sizeBytes, lineCount, createdAt)
	if err != nil {
		return wrapDBErrorf(err, "insert content v%d for file %d", version, fileID)
	}
	// Keep the blob's reference count in step with the pointing rows.
	return adjustBlobRef(ctx, q, hash, +1)
}

// GetFileContents returns a file's full version chain, oldest first.
func (s *Store) GetFileContents(ctx context.Context, fileID int64) ([]*types.FileContent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_id, version, content_hash, size_bytes, line_count, is_current, created_at
		FROM file_contents WHERE file_id = ? ORDER BY version`, fileID)
	if err != nil {
		return nil, wrapDBErrorf(err, "list contents for file %d", fileID)
	}
	defer func() { _ = rows.Close() }()

	var contents []*types.FileContent
	for rows.Next() {
		var fc types.FileContent
		if err := rows.Scan(&fc.ID, &fc.FileID, &fc.Version, &fc.Hash,
			&fc.SizeBytes, &fc.LineCount, &fc.IsCurrent, &fc.CreatedAt); err != nil {
			return nil, wrapDBError("scan file content", err)
		}
		contents = append(contents, &fc)
	}
	return contents, rows.Err()
}

// MarkFileDeleted flips a file to deleted and retires its current
// content pointer. The historical rows remain.
func (s *Store) MarkFileDeleted(ctx context.Context, fileID int64) error {
	return markFileDeleted(ctx, s.db, fileID)
}

func markFileDeleted(ctx context.Context, q querier, fileID int64) error {
	res, err := q.ExecContext(ctx,
		`UPDATE project_files SET status = 'deleted', updated_at = ? WHERE id = ?`,
		time.Now().UTC(), fileID)
	if err != nil {
		return wrapDBErrorf(err, "mark file %d deleted", fileID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError("mark file deleted", err)
	}
	if n == 0 {
		return wrapDBErrorf(sql.ErrNoRows, "mark file %d deleted", fileID)
	}
	// The historical content rows keep pointing at their blobs, so the
	// blob reference counts are untouched here.
	if _, err := q.ExecContext(ctx,
		`UPDATE file_contents SET is_current = 0 WHERE file_id = ? AND is_current = 1`, fileID); err != nil {
		return wrapDBErrorf(err, "retire current content for file %d", fileID)
	}
	return nil
}

// UpsertFileType registers a classification tag.
func (s *Store) UpsertFileType(ctx context.Context, tag, category string) error {
	return upsertFileType(ctx, s.db, tag, category)
}

func upsertFileType(ctx context.Context, q querier, tag, category string) error {
	if tag == "" {
		return fmt.Errorf("file type tag is required: %w", storage.ErrInvalidInput)
	}
	_, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO file_types (tag, category) VALUES (?, ?)`, tag, category)
	return wrapDBErrorf(err, "upsert file type %s", tag)
}
