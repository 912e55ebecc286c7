package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/templedb/templedb/internal/types"
)

// CreateProject inserts a new project row.
func (s *Store) CreateProject(ctx context.Context, project *types.Project) error {
	return createProject(ctx, s.db, project)
}

func createProject(ctx context.Context, q querier, project *types.Project) error {
	if err := project.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	now := time.Now().UTC()
	project.CreatedAt = now
	project.UpdatedAt = now
	if project.Visibility == "" {
		project.Visibility = "private"
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO projects (slug, name, repo_url, default_branch, visibility, license, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		project.Slug, project.Name, project.RepoURL, project.DefaultBranch,
		project.Visibility, project.License, project.CreatedAt, project.UpdatedAt)
	if err != nil {
		return wrapDBErrorf(err, "insert project %s", project.Slug)
	}
	project.ID, err = res.LastInsertId()
	if err != nil {
		return wrapDBError("read project id", err)
	}
	return nil
}

// GetProject looks up a project by slug.
func (s *Store) GetProject(ctx context.Context, slug string) (*types.Project, error) {
	return getProject(ctx, s.db, slug)
}

func getProject(ctx context.Context, q querier, slug string) (*types.Project, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, slug, name, repo_url, default_branch, visibility, license, created_at, updated_at
		FROM projects WHERE slug = ?`, slug)
	return scanProject(row, slug)
}

// GetProjectByID looks up a project by row id.
func (s *Store) GetProjectByID(ctx context.Context, id int64) (*types.Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, slug, name, repo_url, default_branch, visibility, license, created_at, updated_at
		FROM projects WHERE id = ?`, id)
	return scanProject(row, fmt.Sprintf("id=%d", id))
}

func scanProject(row *sql.Row, key string) (*types.Project, error) {
	var p types.Project
	err := row.Scan(&p.ID, &p.Slug, &p.Name, &p.RepoURL, &p.DefaultBranch,
		&p.Visibility, &p.License, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, wrapDBErrorf(err, "get project %s", key)
	}
	return &p, nil
}

// ListProjects returns all projects ordered by slug.
func (s *Store) ListProjects(ctx context.Context) ([]*types.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, slug, name, repo_url, default_branch, visibility, license, created_at, updated_at
		FROM projects ORDER BY slug`)
	if err != nil {
		return nil, wrapDBError("list projects", err)
	}
	defer func() { _ = rows.Close() }()

	var projects []*types.Project
	for rows.Next() {
		var p types.Project
		if err := rows.Scan(&p.ID, &p.Slug, &p.Name, &p.RepoURL, &p.DefaultBranch,
			&p.Visibility, &p.License, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, wrapDBError("scan project", err)
		}
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

// DeleteProject removes a project and cascades to all owned rows,
// releasing the blob references its version chains held.
func (s *Store) DeleteProject(ctx context.Context, slug string) error {
	project, err := getProject(ctx, s.db, slug)
	if err != nil {
		return err
	}
	if err := deleteProjectData(ctx, s.db, project.ID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, project.ID); err != nil {
		return wrapDBErrorf(err, "delete project %s", slug)
	}
	return nil
}

// GetProjectStatistics aggregates per-project counts.
func (s *Store) GetProjectStatistics(ctx context.Context, projectID int64) (*types.ProjectStatistics, error) {
	var stats types.ProjectStatistics
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM project_files WHERE project_id = ?),
			(SELECT COUNT(*) FROM project_files WHERE project_id = ? AND status = 'active'),
			(SELECT COUNT(*) FROM commits WHERE project_id = ?),
			(SELECT COUNT(*) FROM branches WHERE project_id = ?),
			(SELECT COUNT(*) FROM work_items WHERE project_id = ?),
			(SELECT COALESCE(SUM(fc.size_bytes), 0)
				FROM file_contents fc
				JOIN project_files pf ON pf.id = fc.file_id
				WHERE pf.project_id = ? AND fc.is_current = 1),
			(SELECT COALESCE(SUM(fc.line_count), 0)
				FROM file_contents fc
				JOIN project_files pf ON pf.id = fc.file_id
				WHERE pf.project_id = ? AND fc.is_current = 1)`,
		projectID, projectID, projectID, projectID, projectID, projectID, projectID).
		Scan(&stats.Files, &stats.ActiveFiles, &stats.Commits, &stats.Branches,
			&stats.WorkItems, &stats.TotalBytes, &stats.TotalLines)
	if err != nil {
		return nil, wrapDBErrorf(err, "project %d statistics", projectID)
	}
	if stats.ActiveFiles > 0 {
		stats.AvgFileLines = float64(stats.TotalLines) / float64(stats.ActiveFiles)
	}
	return &stats, nil
}

// deleteProjectData clears all owned rows of a project but keeps the
// project row itself. Used by cathedral import with overwrite.
func deleteProjectData(ctx context.Context, q querier, projectID int64) error {
	// Release blob references held by this project's version chains
	// before the cascade removes the file_contents rows.
	_, err := q.ExecContext(ctx, `
		UPDATE content_blobs SET reference_count = MAX(0, reference_count - (
			SELECT COUNT(*) FROM file_contents fc
			JOIN project_files pf ON pf.id = fc.file_id
			WHERE pf.project_id = ?1 AND fc.content_hash = content_blobs.hash_sha256
		))
		WHERE hash_sha256 IN (
			SELECT DISTINCT fc.content_hash FROM file_contents fc
			JOIN project_files pf ON pf.id = fc.file_id
			WHERE pf.project_id = ?1
		)`, projectID)
	if err != nil {
		return wrapDBErrorf(err, "release blob refs for project %d", projectID)
	}

	// Order matters only for clarity; foreign keys cascade from these.
	stmts := []string{
		`DELETE FROM working_state WHERE project_id = ?`,
		`DELETE FROM checkouts WHERE project_id = ?`,
		`DELETE FROM commits WHERE project_id = ?`,
		`DELETE FROM branches WHERE project_id = ?`,
		`DELETE FROM project_files WHERE project_id = ?`,
		`DELETE FROM environments WHERE project_id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := q.ExecContext(ctx, stmt, projectID); err != nil {
			return wrapDBErrorf(err, "clear project %d data", projectID)
		}
	}
	return nil
}
