package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/templedb/templedb/internal/storage"
	"github.com/templedb/templedb/internal/types"
)

// CreateConvoy inserts a convoy and its ordered item links atomically.
// Every referenced work item must exist; a missing id fails the whole
// convoy via the foreign key.
func (s *Store) CreateConvoy(ctx context.Context, convoy *types.Convoy, itemIDs []string) error {
	if convoy.Name == "" {
		return fmt.Errorf("convoy name is required: %w", storage.ErrInvalidInput)
	}
	if len(itemIDs) == 0 {
		return fmt.Errorf("a convoy needs at least one work item: %w", storage.ErrInvalidInput)
	}
	if convoy.Status == "" {
		convoy.Status = types.ConvoyPlanned
	}
	convoy.CreatedAt = time.Now().UTC()

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

	res, err := conn.ExecContext(ctx, `
		INSERT INTO convoys (project_id, name, description, status, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		convoy.ProjectID, convoy.Name, convoy.Description, string(convoy.Status), convoy.CreatedAt)
	if err != nil {
		return wrapDBErrorf(err, "create convoy %s", convoy.Name)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return wrapDBError("read convoy id", err)
	}
	convoy.ID = id

	for pos, itemID := range itemIDs {
		if _, err := conn.ExecContext(ctx, `
			INSERT INTO convoy_items (convoy_id, work_item_id, position)
			VALUES (?, ?, ?)`, id, itemID, pos); err != nil {
			return wrapDBErrorf(err, "link work item %s into convoy", itemID)
		}
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return wrapDBError("commit convoy", err)
	}
	committed = true
	return nil
}

// GetConvoy fetches one convoy by id.
func (s *Store) GetConvoy(ctx context.Context, id int64) (*types.Convoy, error) {
	var convoy types.Convoy
	var startedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, name, description, status, created_at, started_at
		FROM convoys WHERE id = ?`, id).
		Scan(&convoy.ID, &convoy.ProjectID, &convoy.Name, &convoy.Description,
			&convoy.Status, &convoy.CreatedAt, &startedAt)
	if err != nil {
		return nil, wrapDBErrorf(err, "get convoy %d", id)
	}
	if startedAt.Valid {
		convoy.StartedAt = &startedAt.Time
	}
	return &convoy, nil
}

// ListConvoyItems returns a convoy's links in position order.
func (s *Store) ListConvoyItems(ctx context.Context, convoyID int64) ([]*types.ConvoyItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT convoy_id, work_item_id, position
		FROM convoy_items WHERE convoy_id = ? ORDER BY position`, convoyID)
	if err != nil {
		return nil, wrapDBErrorf(err, "list items of convoy %d", convoyID)
	}
	defer func() { _ = rows.Close() }()

	var items []*types.ConvoyItem
	for rows.Next() {
		var item types.ConvoyItem
		if err := rows.Scan(&item.ConvoyID, &item.WorkItemID, &item.Position); err != nil {
			return nil, wrapDBError("scan convoy item", err)
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

// SetConvoyStatus advances a convoy's lifecycle. Moving to active
// stamps started_at once.
func (s *Store) SetConvoyStatus(ctx context.Context, id int64, status types.ConvoyStatus) error {
	set := `status = ?`
	args := []interface{}{string(status)}
	if status == types.ConvoyActive {
		set += `, started_at = COALESCE(started_at, ?)`
		args = append(args, time.Now().UTC())
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, `UPDATE convoys SET `+set+` WHERE id = ?`, args...)
	if err != nil {
		return wrapDBErrorf(err, "set convoy %d status", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError("set convoy status", err)
	}
	if n == 0 {
		return wrapDBErrorf(sql.ErrNoRows, "set convoy %d status", id)
	}
	return nil
}
