package sqlite

import (
	"context"
	"time"

	"github.com/templedb/templedb/internal/types"
)

// UpsertEnvironment creates or replaces a named environment bundle.
func (s *Store) UpsertEnvironment(ctx context.Context, env *types.Environment) error {
	return upsertEnvironment(ctx, s.db, env)
}

func upsertEnvironment(ctx context.Context, q querier, env *types.Environment) error {
	if env.Config == "" {
		env.Config = "{}"
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO environments (project_id, name, config, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(project_id, name) DO UPDATE SET config = excluded.config`,
		env.ProjectID, env.Name, env.Config, time.Now().UTC())
	return wrapDBErrorf(err, "upsert environment %s", env.Name)
}

// ListEnvironments returns a project's environments ordered by name.
func (s *Store) ListEnvironments(ctx context.Context, projectID int64) ([]*types.Environment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, name, config, created_at
		FROM environments WHERE project_id = ? ORDER BY name`, projectID)
	if err != nil {
		return nil, wrapDBError("list environments", err)
	}
	defer func() { _ = rows.Close() }()

	var envs []*types.Environment
	for rows.Next() {
		var env types.Environment
		if err := rows.Scan(&env.ID, &env.ProjectID, &env.Name, &env.Config, &env.CreatedAt); err != nil {
			return nil, wrapDBError("scan environment", err)
		}
		envs = append(envs, &env)
	}
	return envs, rows.Err()
}
