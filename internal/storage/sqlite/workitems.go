package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/templedb/templedb/internal/storage"
	"github.com/templedb/templedb/internal/types"
)

const workItemColumns = `
	id, project_id, title, description, item_type, priority, status,
	parent_id, assigned_session_id, created_by_session,
	created_at, updated_at, assigned_at, started_at, completed_at`

// CreateWorkItem inserts a new work item. The caller supplies the id
// (see internal/idgen); a duplicate id surfaces as ErrConflict so the
// generator can retry.
func (s *Store) CreateWorkItem(ctx context.Context, item *types.WorkItem) error {
	return createWorkItem(ctx, s.db, item)
}

func createWorkItem(ctx context.Context, q querier, item *types.WorkItem) error {
	item.SetDefaults()
	if err := item.Validate(); err != nil {
		return fmt.Errorf("%w: %s", storage.ErrInvalidInput, err)
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	var parent, session, creator interface{}
	if item.ParentID != nil {
		parent = *item.ParentID
	}
	if item.AssignedSessionID != nil {
		session = *item.AssignedSessionID
	}
	if item.CreatedBySession != nil {
		creator = *item.CreatedBySession
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO work_items (id, project_id, title, description, item_type, priority, status,
			parent_id, assigned_session_id, created_by_session, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.ProjectID, item.Title, item.Description,
		string(item.ItemType), string(item.Priority), string(item.Status),
		parent, session, creator, item.CreatedAt, item.UpdatedAt)
	return wrapDBErrorf(err, "insert work item %s", item.ID)
}

// GetWorkItem fetches one work item by id.
func (s *Store) GetWorkItem(ctx context.Context, id string) (*types.WorkItem, error) {
	return getWorkItem(ctx, s.db, id)
}

func getWorkItem(ctx context.Context, q querier, id string) (*types.WorkItem, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+workItemColumns+` FROM work_items WHERE id = ?`, id)
	item, err := scanWorkItem(row.Scan)
	if err != nil {
		return nil, wrapDBErrorf(err, "get work item %s", id)
	}
	return item, nil
}

func scanWorkItem(scan func(...interface{}) error) (*types.WorkItem, error) {
	var item types.WorkItem
	var parent, session, creator sql.NullString
	var assignedAt, startedAt, completedAt sql.NullTime
	err := scan(&item.ID, &item.ProjectID, &item.Title, &item.Description,
		&item.ItemType, &item.Priority, &item.Status,
		&parent, &session, &creator,
		&item.CreatedAt, &item.UpdatedAt, &assignedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	if parent.Valid {
		item.ParentID = &parent.String
	}
	if session.Valid {
		item.AssignedSessionID = &session.String
	}
	if creator.Valid {
		item.CreatedBySession = &creator.String
	}
	if assignedAt.Valid {
		item.AssignedAt = &assignedAt.Time
	}
	if startedAt.Valid {
		item.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		item.CompletedAt = &completedAt.Time
	}
	return &item, nil
}

// ListWorkItems returns items matching the filter in dispatch order:
// priority rank ascending, then created_at ascending.
func (s *Store) ListWorkItems(ctx context.Context, filter types.WorkItemFilter) ([]*types.WorkItem, error) {
	query := `SELECT ` + workItemColumns + ` FROM work_items WHERE 1=1`
	var args []interface{}
	if filter.ProjectID != nil {
		query += ` AND project_id = ?`
		args = append(args, *filter.ProjectID)
	}
	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, string(*filter.Status))
	}
	if filter.Priority != nil {
		query += ` AND priority = ?`
		args = append(args, string(*filter.Priority))
	}
	if filter.ItemType != nil {
		query += ` AND item_type = ?`
		args = append(args, string(*filter.ItemType))
	}
	if filter.SessionID != nil {
		query += ` AND assigned_session_id = ?`
		args = append(args, *filter.SessionID)
	}
	if filter.ParentID != nil {
		query += ` AND parent_id = ?`
		args = append(args, *filter.ParentID)
	}
	query += `
		ORDER BY CASE priority
			WHEN 'critical' THEN 0
			WHEN 'high' THEN 1
			WHEN 'medium' THEN 2
			ELSE 3
		END, created_at ASC, id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list work items", err)
	}
	defer func() { _ = rows.Close() }()

	var items []*types.WorkItem
	for rows.Next() {
		item, err := scanWorkItem(rows.Scan)
		if err != nil {
			return nil, wrapDBError("scan work item", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateWorkItemStatus moves an item from one status to another and
// appends the audit transition. The move is compare-and-swap on the
// current status: if another writer got there first, ErrConflict.
func (s *Store) UpdateWorkItemStatus(ctx context.Context, id string, from, to types.WorkItemStatus, sessionID *string) error {
	return updateWorkItemStatus(ctx, s.db, id, from, to, sessionID)
}

func updateWorkItemStatus(ctx context.Context, q querier, id string, from, to types.WorkItemStatus, sessionID *string) error {
	now := time.Now().UTC()
	set := `status = ?, updated_at = ?`
	args := []interface{}{string(to), now}
	switch to {
	case types.StatusInProgress:
		if from == types.StatusAssigned {
			set += `, started_at = ?`
			args = append(args, now)
		}
	case types.StatusCompleted:
		set += `, completed_at = ?`
		args = append(args, now)
	case types.StatusPending, types.StatusCancelled:
		set += `, assigned_session_id = NULL`
	}
	args = append(args, id, string(from))

	res, err := q.ExecContext(ctx,
		`UPDATE work_items SET `+set+` WHERE id = ? AND status = ?`, args...)
	if err != nil {
		return wrapDBErrorf(err, "transition %s %s->%s", id, from, to)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError("transition work item", err)
	}
	if n == 0 {
		// Either the item is missing or its status moved underneath us.
		if _, err := getWorkItem(ctx, q, id); err != nil {
			return err
		}
		return fmt.Errorf("work item %s is no longer %s: %w", id, from, storage.ErrConflict)
	}

	var session interface{}
	if sessionID != nil {
		session = *sessionID
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO work_item_transitions (work_item_id, from_status, to_status, session_id, created_at)
		VALUES (?, ?, ?, ?, ?)`, id, string(from), string(to), session, now)
	return wrapDBErrorf(err, "record transition for %s", id)
}

// SetWorkItemAssignment points an item at a session (or clears it).
func (s *Store) SetWorkItemAssignment(ctx context.Context, id string, sessionID *string) error {
	return setWorkItemAssignment(ctx, s.db, id, sessionID)
}

func setWorkItemAssignment(ctx context.Context, q querier, id string, sessionID *string) error {
	now := time.Now().UTC()
	var session, assignedAt interface{}
	if sessionID != nil {
		session = *sessionID
		assignedAt = now
	}
	res, err := q.ExecContext(ctx, `
		UPDATE work_items SET assigned_session_id = ?, assigned_at = ?, updated_at = ?
		WHERE id = ?`, session, assignedAt, now, id)
	if err != nil {
		return wrapDBErrorf(err, "assign work item %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError("assign work item", err)
	}
	if n == 0 {
		return wrapDBErrorf(sql.ErrNoRows, "assign work item %s", id)
	}
	return nil
}

// ListTransitions returns an item's audit trail oldest-first.
func (s *Store) ListTransitions(ctx context.Context, workItemID string) ([]*types.WorkItemTransition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, work_item_id, from_status, to_status, session_id, created_at
		FROM work_item_transitions WHERE work_item_id = ? ORDER BY id`, workItemID)
	if err != nil {
		return nil, wrapDBErrorf(err, "list transitions for %s", workItemID)
	}
	defer func() { _ = rows.Close() }()

	var transitions []*types.WorkItemTransition
	for rows.Next() {
		var t types.WorkItemTransition
		var session sql.NullString
		if err := rows.Scan(&t.ID, &t.WorkItemID, &t.FromStatus, &t.ToStatus, &session, &t.CreatedAt); err != nil {
			return nil, wrapDBError("scan transition", err)
		}
		if session.Valid {
			t.SessionID = &session.String
		}
		transitions = append(transitions, &t)
	}
	return transitions, rows.Err()
}

// WorkItemAncestors walks the parent chain upwards, returning ancestor
// ids nearest-first. The walk is bounded: ids are short opaque tokens,
// so cycle detection is a depth cap rather than a full traversal.
func (s *Store) WorkItemAncestors(ctx context.Context, id string, maxDepth int) ([]string, error) {
	var ancestors []string
	current := id
	for depth := 0; depth < maxDepth; depth++ {
		var parent sql.NullString
		err := s.db.QueryRowContext(ctx,
			`SELECT parent_id FROM work_items WHERE id = ?`, current).Scan(&parent)
		if err == sql.ErrNoRows {
			if depth == 0 {
				return nil, wrapDBErrorf(err, "get work item %s", id)
			}
			return ancestors, nil
		}
		if err != nil {
			return nil, wrapDBErrorf(err, "walk ancestors of %s", id)
		}
		if !parent.Valid {
			return ancestors, nil
		}
		ancestors = append(ancestors, parent.String)
		current = parent.String
	}
	return ancestors, fmt.Errorf("ancestor walk of %s exceeded depth %d: %w", id, maxDepth, storage.ErrCycle)
}
