package sqlite

import (
	"context"
	"database/sql"
)

// SetConfig stores a settings key such as the default commit author.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return wrapDBErrorf(err, "set config %s", key)
}

// GetConfig returns a settings value, or "" when unset.
func (s *Store) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", wrapDBErrorf(err, "get config %s", key)
	}
	return value, nil
}

func setMetadata(ctx context.Context, q querier, key, value string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return wrapDBErrorf(err, "set metadata %s", key)
}

func getMetadata(ctx context.Context, q querier, key string) (string, error) {
	var value string
	err := q.QueryRowContext(ctx,
		`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", wrapDBErrorf(err, "get metadata %s", key)
	}
	return value, nil
}
