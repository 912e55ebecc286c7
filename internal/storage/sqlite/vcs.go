package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/templedb/templedb/internal/storage"
	"github.com/templedb/templedb/internal/types"
)

// GetOrCreateBranch returns the named branch, creating it if absent.
// The first branch created for a project becomes the default.
func (s *Store) GetOrCreateBranch(ctx context.Context, projectID int64, name string) (*types.Branch, error) {
	return getOrCreateBranch(ctx, s.db, projectID, name)
}

func getOrCreateBranch(ctx context.Context, q querier, projectID int64, name string) (*types.Branch, error) {
	if name == "" {
		return nil, fmt.Errorf("branch name is required: %w", storage.ErrInvalidInput)
	}
	branch, err := getBranch(ctx, q, projectID, name)
	if err == nil {
		return branch, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	var existing int
	if err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM branches WHERE project_id = ?`, projectID).Scan(&existing); err != nil {
		return nil, wrapDBError("count branches", err)
	}
	isDefault := existing == 0

	now := time.Now().UTC()
	res, err := q.ExecContext(ctx, `
		INSERT INTO branches (project_id, name, is_default, created_at)
		VALUES (?, ?, ?, ?)`, projectID, name, isDefault, now)
	if err != nil {
		// A concurrent writer may have created it; re-read before failing.
		if isUniqueConstraintError(err) {
			return getBranch(ctx, q, projectID, name)
		}
		return nil, wrapDBErrorf(err, "create branch %s", name)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, wrapDBError("read branch id", err)
	}
	return &types.Branch{
		ID:        id,
		ProjectID: projectID,
		Name:      name,
		IsDefault: isDefault,
		CreatedAt: now,
	}, nil
}

// GetBranch looks up one branch by name.
func (s *Store) GetBranch(ctx context.Context, projectID int64, name string) (*types.Branch, error) {
	return getBranch(ctx, s.db, projectID, name)
}

func getBranch(ctx context.Context, q querier, projectID int64, name string) (*types.Branch, error) {
	var b types.Branch
	var parent sql.NullInt64
	err := q.QueryRowContext(ctx, `
		SELECT id, project_id, name, is_default, parent_branch_id, created_at
		FROM branches WHERE project_id = ? AND name = ?`, projectID, name).
		Scan(&b.ID, &b.ProjectID, &b.Name, &b.IsDefault, &parent, &b.CreatedAt)
	if err != nil {
		return nil, wrapDBErrorf(err, "get branch %s", name)
	}
	if parent.Valid {
		b.ParentBranchID = &parent.Int64
	}
	return &b, nil
}

// ListBranches returns a project's branches, default first.
func (s *Store) ListBranches(ctx context.Context, projectID int64) ([]*types.Branch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, name, is_default, parent_branch_id, created_at
		FROM branches WHERE project_id = ?
		ORDER BY is_default DESC, name`, projectID)
	if err != nil {
		return nil, wrapDBError("list branches", err)
	}
	defer func() { _ = rows.Close() }()

	var branches []*types.Branch
	for rows.Next() {
		var b types.Branch
		var parent sql.NullInt64
		if err := rows.Scan(&b.ID, &b.ProjectID, &b.Name, &b.IsDefault, &parent, &b.CreatedAt); err != nil {
			return nil, wrapDBError("scan branch", err)
		}
		if parent.Valid {
			b.ParentBranchID = &parent.Int64
		}
		branches = append(branches, &b)
	}
	return branches, rows.Err()
}

func insertCommit(ctx context.Context, q querier, commit *types.Commit) (int64, error) {
	if commit.Message == "" {
		return 0, fmt.Errorf("commit message is required: %w", storage.ErrInvalidInput)
	}
	if commit.CreatedAt.IsZero() {
		commit.CreatedAt = time.Now().UTC()
	}
	var parent interface{}
	if commit.ParentCommitID != nil {
		parent = *commit.ParentCommitID
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO commits (project_id, branch_id, parent_commit_id, commit_hash, author, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		commit.ProjectID, commit.BranchID, parent, commit.Hash,
		commit.Author, commit.Message, commit.CreatedAt)
	if err != nil {
		return 0, wrapDBErrorf(err, "insert commit %s", commit.Hash)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrapDBError("read commit id", err)
	}
	commit.ID = id
	return id, nil
}

func insertCommitFile(ctx context.Context, q querier, cf *types.CommitFile) error {
	if err := cf.Validate(); err != nil {
		return fmt.Errorf("%w: %s", storage.ErrInvalidInput, err)
	}
	var fileID interface{}
	if cf.FileID != nil {
		fileID = *cf.FileID
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO commit_files (commit_id, file_id, file_path, change_type, old_content_hash, new_content_hash, old_path, new_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		cf.CommitID, fileID, cf.Path, string(cf.Change),
		nullString(cf.OldHash), nullString(cf.NewHash),
		nullString(cf.OldPath), nullString(cf.NewPath))
	return wrapDBErrorf(err, "insert commit file %s", cf.Path)
}

// GetCommit fetches one commit by hash within a project.
func (s *Store) GetCommit(ctx context.Context, projectID int64, hash string) (*types.Commit, error) {
	return getCommit(ctx, s.db, projectID, hash)
}

func getCommit(ctx context.Context, q querier, projectID int64, hash string) (*types.Commit, error) {
	row := q.QueryRowContext(ctx, `
		SELECT c.id, c.project_id, c.branch_id, c.parent_commit_id, c.commit_hash,
		       c.author, c.message, c.created_at, b.name
		FROM commits c JOIN branches b ON b.id = c.branch_id
		WHERE c.project_id = ? AND c.commit_hash = ?`, projectID, hash)
	return scanCommit(row, hash)
}

func scanCommit(row *sql.Row, key string) (*types.Commit, error) {
	var c types.Commit
	var parent sql.NullInt64
	err := row.Scan(&c.ID, &c.ProjectID, &c.BranchID, &parent, &c.Hash,
		&c.Author, &c.Message, &c.CreatedAt, &c.BranchName)
	if err != nil {
		return nil, wrapDBErrorf(err, "get commit %s", key)
	}
	if parent.Valid {
		c.ParentCommitID = &parent.Int64
	}
	return &c, nil
}

// ListCommits returns commits newest-first, optionally scoped to one
// branch and capped at limit (0 means no cap).
func (s *Store) ListCommits(ctx context.Context, projectID int64, branchID *int64, limit int) ([]*types.Commit, error) {
	query := `
		SELECT c.id, c.project_id, c.branch_id, c.parent_commit_id, c.commit_hash,
		       c.author, c.message, c.created_at, b.name
		FROM commits c JOIN branches b ON b.id = c.branch_id
		WHERE c.project_id = ?`
	args := []interface{}{projectID}
	if branchID != nil {
		query += ` AND c.branch_id = ?`
		args = append(args, *branchID)
	}
	query += ` ORDER BY c.created_at DESC, c.id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list commits", err)
	}
	defer func() { _ = rows.Close() }()

	var commits []*types.Commit
	for rows.Next() {
		var c types.Commit
		var parent sql.NullInt64
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.BranchID, &parent, &c.Hash,
			&c.Author, &c.Message, &c.CreatedAt, &c.BranchName); err != nil {
			return nil, wrapDBError("scan commit", err)
		}
		if parent.Valid {
			c.ParentCommitID = &parent.Int64
		}
		commits = append(commits, &c)
	}
	return commits, rows.Err()
}

// GetCommitFiles returns the change rows of one commit ordered by path.
func (s *Store) GetCommitFiles(ctx context.Context, commitID int64) ([]*types.CommitFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, commit_id, file_id, file_path, change_type,
		       old_content_hash, new_content_hash, old_path, new_path
		FROM commit_files WHERE commit_id = ? ORDER BY file_path`, commitID)
	if err != nil {
		return nil, wrapDBErrorf(err, "list files for commit %d", commitID)
	}
	defer func() { _ = rows.Close() }()

	var files []*types.CommitFile
	for rows.Next() {
		var cf types.CommitFile
		var fileID sql.NullInt64
		var oldHash, newHash, oldPath, newPath sql.NullString
		if err := rows.Scan(&cf.ID, &cf.CommitID, &fileID, &cf.Path, &cf.Change,
			&oldHash, &newHash, &oldPath, &newPath); err != nil {
			return nil, wrapDBError("scan commit file", err)
		}
		if fileID.Valid {
			cf.FileID = &fileID.Int64
		}
		cf.OldHash = stringOrEmpty(oldHash)
		cf.NewHash = stringOrEmpty(newHash)
		cf.OldPath = stringOrEmpty(oldPath)
		cf.NewPath = stringOrEmpty(newPath)
		files = append(files, &cf)
	}
	return files, rows.Err()
}

// LatestCommit returns the newest commit on a branch, or ErrNotFound.
func (s *Store) LatestCommit(ctx context.Context, projectID, branchID int64) (*types.Commit, error) {
	return latestCommit(ctx, s.db, projectID, branchID)
}

func latestCommit(ctx context.Context, q querier, projectID, branchID int64) (*types.Commit, error) {
	row := q.QueryRowContext(ctx, `
		SELECT c.id, c.project_id, c.branch_id, c.parent_commit_id, c.commit_hash,
		       c.author, c.message, c.created_at, b.name
		FROM commits c JOIN branches b ON b.id = c.branch_id
		WHERE c.project_id = ? AND c.branch_id = ?
		ORDER BY c.created_at DESC, c.id DESC LIMIT 1`, projectID, branchID)
	return scanCommit(row, fmt.Sprintf("branch %d head", branchID))
}

// FileHashAt resolves a file's content hash as of the given commit by
// walking commit history backwards for the most recent change row
// touching the path. Empty commitHash resolves to the registry's
// current content.
func (s *Store) FileHashAt(ctx context.Context, projectID int64, path, commitHash string) (string, error) {
	if commitHash == "" {
		file, err := getFileByPath(ctx, s.db, projectID, path)
		if err != nil {
			return "", err
		}
		return file.CurrentHash, nil
	}

	commit, err := getCommit(ctx, s.db, projectID, commitHash)
	if err != nil {
		return "", err
	}

	var newHash sql.NullString
	var changeType string
	err = s.db.QueryRowContext(ctx, `
		SELECT cf.new_content_hash, cf.change_type
		FROM commit_files cf
		JOIN commits c ON c.id = cf.commit_id
		WHERE c.project_id = ? AND cf.file_path = ?
		  AND (c.created_at < ? OR (c.created_at = ? AND c.id <= ?))
		ORDER BY c.created_at DESC, c.id DESC LIMIT 1`,
		projectID, path, commit.CreatedAt, commit.CreatedAt, commit.ID).
		Scan(&newHash, &changeType)
	if err == sql.ErrNoRows {
		// Path untouched by any commit up to this revision.
		return "", nil
	}
	if err != nil {
		return "", wrapDBErrorf(err, "resolve %s at %s", path, commitHash)
	}
	if types.ChangeType(changeType) == types.ChangeDeleted {
		return "", nil
	}
	return stringOrEmpty(newHash), nil
}
