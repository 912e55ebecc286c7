package sqlite

import (
	"context"
	"time"

	"github.com/templedb/templedb/internal/types"
)

// ReplaceWorkingState clears the per-branch diff index and writes the
// fresh detection result. The replace is atomic: observers see either
// the old index or the new one, never a mix.
func (s *Store) ReplaceWorkingState(ctx context.Context, projectID, branchID int64, entries []*types.WorkingState) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return wrapDBError("acquire connection", err)
	}
	defer func() { _ = conn.Close() }()

	if err := beginImmediate(ctx, conn); err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if _, err := conn.ExecContext(ctx,
		`DELETE FROM working_state WHERE project_id = ? AND branch_id = ?`,
		projectID, branchID); err != nil {
		return wrapDBError("clear working state", err)
	}

	now := time.Now().UTC()
	for _, e := range entries {
		var fileID interface{}
		if e.FileID != nil {
			fileID = *e.FileID
		}
		if _, err := conn.ExecContext(ctx, `
			INSERT INTO working_state (project_id, branch_id, file_id, file_path, state, staged, content_hash, detected_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			projectID, branchID, fileID, e.Path, string(e.State), e.Staged, e.ContentHash, now); err != nil {
			return wrapDBErrorf(err, "insert working state %s", e.Path)
		}
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return wrapDBError("commit working state", err)
	}
	committed = true
	return nil
}

// ListWorkingState returns the current diff index ordered by path.
func (s *Store) ListWorkingState(ctx context.Context, projectID, branchID int64, stagedOnly bool) ([]*types.WorkingState, error) {
	return listWorkingState(ctx, s.db, projectID, branchID, stagedOnly)
}

func listWorkingState(ctx context.Context, q querier, projectID, branchID int64, stagedOnly bool) ([]*types.WorkingState, error) {
	query := `
		SELECT project_id, branch_id, file_id, file_path, state, staged, content_hash, detected_at
		FROM working_state WHERE project_id = ? AND branch_id = ?`
	if stagedOnly {
		query += ` AND staged = 1`
	}
	query += ` ORDER BY file_path`

	rows, err := q.QueryContext(ctx, query, projectID, branchID)
	if err != nil {
		return nil, wrapDBError("list working state", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*types.WorkingState
	for rows.Next() {
		var e types.WorkingState
		var fileID *int64
		if err := rows.Scan(&e.ProjectID, &e.BranchID, &fileID, &e.Path,
			&e.State, &e.Staged, &e.ContentHash, &e.DetectedAt); err != nil {
			return nil, wrapDBError("scan working state", err)
		}
		e.FileID = fileID
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// SetStaged flips the staged flag on the named paths. Rows whose state
// is unmodified are never staged. Returns the number of rows changed.
func (s *Store) SetStaged(ctx context.Context, projectID, branchID int64, paths []string, staged bool) (int, error) {
	if len(paths) == 0 {
		return 0, nil
	}
	args := []interface{}{staged, projectID, branchID}
	for _, p := range paths {
		args = append(args, p)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE working_state SET staged = ?
		WHERE project_id = ? AND branch_id = ?
		  AND state != 'unmodified'
		  AND file_path IN (`+placeholders(len(paths))+`)`, args...)
	if err != nil {
		return 0, wrapDBError("set staged", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapDBError("set staged", err)
	}
	return int(n), nil
}

// clearCommittedWorkingState resets committed rows after a commit:
// deleted entries vanish, everything else reverts to unmodified and
// unstaged.
func clearCommittedWorkingState(ctx context.Context, q querier, projectID, branchID int64, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	args := []interface{}{projectID, branchID}
	for _, p := range paths {
		args = append(args, p)
	}
	in := placeholders(len(paths))

	if _, err := q.ExecContext(ctx, `
		DELETE FROM working_state
		WHERE project_id = ? AND branch_id = ? AND state = 'deleted'
		  AND file_path IN (`+in+`)`, args...); err != nil {
		return wrapDBError("clear deleted working state", err)
	}
	if _, err := q.ExecContext(ctx, `
		UPDATE working_state SET state = 'unmodified', staged = 0
		WHERE project_id = ? AND branch_id = ?
		  AND file_path IN (`+in+`)`, args...); err != nil {
		return wrapDBError("reset committed working state", err)
	}
	return nil
}
