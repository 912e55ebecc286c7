package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/templedb/templedb/internal/storage"
	"github.com/templedb/templedb/internal/types"
)

// RegisterSession creates or refreshes an agent session. Sessions are
// created by an external subsystem and registered here so the
// coordinator can dispatch to them; re-registering an id refreshes its
// liveness and work acceptance instead of failing.
func (s *Store) RegisterSession(ctx context.Context, session *types.AgentSession) error {
	if session.ID == "" {
		return fmt.Errorf("session id is required: %w", storage.ErrInvalidInput)
	}
	if session.Status == "" {
		session.Status = types.SessionActive
	}
	if !session.Status.IsValid() {
		return fmt.Errorf("invalid session status %q: %w", session.Status, storage.ErrInvalidInput)
	}
	now := time.Now().UTC()
	if session.StartedAt.IsZero() {
		session.StartedAt = now
	}
	session.LastSeenAt = now

	var projectID interface{}
	if session.ProjectID != nil {
		projectID = *session.ProjectID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_sessions (id, project_id, agent_name, status, accepting_work, started_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			agent_name = excluded.agent_name,
			status = excluded.status,
			accepting_work = excluded.accepting_work,
			last_seen_at = excluded.last_seen_at,
			ended_at = NULL`,
		session.ID, projectID, session.AgentName, string(session.Status),
		session.AcceptingWork, session.StartedAt, session.LastSeenAt)
	return wrapDBErrorf(err, "register session %s", session.ID)
}

// GetSession fetches one session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*types.AgentSession, error) {
	return getSession(ctx, s.db, id)
}

func getSession(ctx context.Context, q querier, id string) (*types.AgentSession, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, project_id, agent_name, status, accepting_work, started_at, last_seen_at, ended_at
		FROM agent_sessions WHERE id = ?`, id)
	session, err := scanSession(row.Scan)
	if err != nil {
		return nil, wrapDBErrorf(err, "get session %s", id)
	}
	return session, nil
}

func scanSession(scan func(...interface{}) error) (*types.AgentSession, error) {
	var session types.AgentSession
	var projectID sql.NullInt64
	var endedAt sql.NullTime
	err := scan(&session.ID, &projectID, &session.AgentName, &session.Status,
		&session.AcceptingWork, &session.StartedAt, &session.LastSeenAt, &endedAt)
	if err != nil {
		return nil, err
	}
	if projectID.Valid {
		session.ProjectID = &projectID.Int64
	}
	if endedAt.Valid {
		session.EndedAt = &endedAt.Time
	}
	return &session, nil
}

// ListSessions returns sessions, optionally scoped to a project and to
// non-ended sessions only.
func (s *Store) ListSessions(ctx context.Context, projectID *int64, activeOnly bool) ([]*types.AgentSession, error) {
	query := `
		SELECT id, project_id, agent_name, status, accepting_work, started_at, last_seen_at, ended_at
		FROM agent_sessions WHERE 1=1`
	var args []interface{}
	if projectID != nil {
		query += ` AND (project_id = ? OR project_id IS NULL)`
		args = append(args, *projectID)
	}
	if activeOnly {
		query += ` AND status != 'ended'`
	}
	query += ` ORDER BY started_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list sessions", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*types.AgentSession
	for rows.Next() {
		session, err := scanSession(rows.Scan)
		if err != nil {
			return nil, wrapDBError("scan session", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// EndSession marks a session ended. Its assigned non-terminal work
// items return to pending so they can be re-dispatched. The session
// flip and the work release commit together; a reader never observes
// an ended session still holding live items.
func (s *Store) EndSession(ctx context.Context, id string) error {
	return s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.EndSession(ctx, id)
	})
}

func endSession(ctx context.Context, q querier, id string) error {
	now := time.Now().UTC()
	res, err := q.ExecContext(ctx, `
		UPDATE agent_sessions SET status = 'ended', accepting_work = 0, ended_at = ?, last_seen_at = ?
		WHERE id = ? AND status != 'ended'`, now, now, id)
	if err != nil {
		return wrapDBErrorf(err, "end session %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError("end session", err)
	}
	if n == 0 {
		return wrapDBErrorf(sql.ErrNoRows, "end session %s", id)
	}

	_, err = q.ExecContext(ctx, `
		UPDATE work_items SET status = 'pending', assigned_session_id = NULL, updated_at = ?
		WHERE assigned_session_id = ? AND status IN ('assigned', 'in_progress', 'blocked')`,
		now, id)
	return wrapDBErrorf(err, "release work of session %s", id)
}

// AgentWorkloads returns every non-ended session with its live work
// and unread mailbox counts, least busy first. The dispatcher uses
// this ordering for least-busy assignment.
func (s *Store) AgentWorkloads(ctx context.Context, projectID *int64) ([]*types.AgentWorkload, error) {
	query := `
		SELECT s.id, s.project_id, s.agent_name, s.status, s.accepting_work,
		       s.started_at, s.last_seen_at, s.ended_at,
		       (SELECT COUNT(*) FROM work_items w
		        WHERE w.assigned_session_id = s.id
		          AND w.status IN ('assigned', 'in_progress', 'blocked')) AS active_work,
		       (SELECT COUNT(*) FROM agent_mailbox m
		        WHERE m.session_id = s.id AND m.read_at IS NULL) AS unread
		FROM agent_sessions s
		WHERE s.status != 'ended'`
	var args []interface{}
	if projectID != nil {
		query += ` AND (s.project_id = ? OR s.project_id IS NULL)`
		args = append(args, *projectID)
	}
	query += ` ORDER BY active_work ASC, s.started_at DESC, s.id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list agent workloads", err)
	}
	defer func() { _ = rows.Close() }()

	var workloads []*types.AgentWorkload
	for rows.Next() {
		var session types.AgentSession
		var projID sql.NullInt64
		var endedAt sql.NullTime
		var w types.AgentWorkload
		if err := rows.Scan(&session.ID, &projID, &session.AgentName, &session.Status,
			&session.AcceptingWork, &session.StartedAt, &session.LastSeenAt, &endedAt,
			&w.ActiveWorkCount, &w.UnreadMessages); err != nil {
			return nil, wrapDBError("scan agent workload", err)
		}
		if projID.Valid {
			session.ProjectID = &projID.Int64
		}
		if endedAt.Valid {
			session.EndedAt = &endedAt.Time
		}
		w.Session = &session
		workloads = append(workloads, &w)
	}
	return workloads, rows.Err()
}

// RecordInteraction appends one observed exchange and bumps the
// session's liveness timestamp.
func (s *Store) RecordInteraction(ctx context.Context, interaction *types.AgentInteraction) error {
	if interaction.SessionID == "" || interaction.Kind == "" {
		return fmt.Errorf("session id and kind are required: %w", storage.ErrInvalidInput)
	}
	now := time.Now().UTC()
	interaction.CreatedAt = now

	var workItemID interface{}
	if interaction.WorkItemID != nil {
		workItemID = *interaction.WorkItemID
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_interactions (session_id, work_item_id, kind, detail, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		interaction.SessionID, workItemID, interaction.Kind, interaction.Detail, now)
	if err != nil {
		return wrapDBErrorf(err, "record interaction for %s", interaction.SessionID)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return wrapDBError("read interaction id", err)
	}
	interaction.ID = id

	_, err = s.db.ExecContext(ctx,
		`UPDATE agent_sessions SET last_seen_at = ? WHERE id = ?`, now, interaction.SessionID)
	return wrapDBErrorf(err, "touch session %s", interaction.SessionID)
}

// PostMessage delivers one message to a session's mailbox.
func (s *Store) PostMessage(ctx context.Context, msg *types.MailboxMessage) error {
	return postMessage(ctx, s.db, msg)
}

func postMessage(ctx context.Context, q querier, msg *types.MailboxMessage) error {
	if msg.SessionID == "" {
		return fmt.Errorf("session id is required: %w", storage.ErrInvalidInput)
	}
	if msg.Priority == "" {
		msg.Priority = types.PriorityMedium
	}
	msg.DeliveredAt = time.Now().UTC()

	var workItemID interface{}
	if msg.WorkItemID != nil {
		workItemID = *msg.WorkItemID
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO agent_mailbox (session_id, work_item_id, message_type, priority, subject, body, delivered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.SessionID, workItemID, string(msg.MessageType), string(msg.Priority),
		msg.Subject, msg.Body, msg.DeliveredAt)
	if err != nil {
		return wrapDBErrorf(err, "post message to %s", msg.SessionID)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return wrapDBError("read message id", err)
	}
	msg.ID = id
	return nil
}

// ListMessages returns a session's messages in strict delivery order.
func (s *Store) ListMessages(ctx context.Context, sessionID string, unreadOnly bool) ([]*types.MailboxMessage, error) {
	query := `
		SELECT id, session_id, work_item_id, message_type, priority, subject, body, delivered_at, read_at
		FROM agent_mailbox WHERE session_id = ?`
	if unreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY delivered_at, id`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, wrapDBErrorf(err, "list messages for %s", sessionID)
	}
	defer func() { _ = rows.Close() }()

	var messages []*types.MailboxMessage
	for rows.Next() {
		var msg types.MailboxMessage
		var workItemID sql.NullString
		var readAt sql.NullTime
		if err := rows.Scan(&msg.ID, &msg.SessionID, &workItemID, &msg.MessageType,
			&msg.Priority, &msg.Subject, &msg.Body, &msg.DeliveredAt, &readAt); err != nil {
			return nil, wrapDBError("scan message", err)
		}
		if workItemID.Valid {
			msg.WorkItemID = &workItemID.String
		}
		if readAt.Valid {
			msg.ReadAt = &readAt.Time
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

// MarkMessageRead stamps a message's read time. Already-read messages
// keep their original stamp.
func (s *Store) MarkMessageRead(ctx context.Context, messageID int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE agent_mailbox SET read_at = ? WHERE id = ? AND read_at IS NULL`,
		time.Now().UTC(), messageID)
	if err != nil {
		return wrapDBErrorf(err, "mark message %d read", messageID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError("mark message read", err)
	}
	if n == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx,
			`SELECT 1 FROM agent_mailbox WHERE id = ?`, messageID).Scan(&exists)
		if err != nil {
			return wrapDBErrorf(err, "mark message %d read", messageID)
		}
	}
	return nil
}

// MailboxSummary aggregates one session's mailbox counters.
func (s *Store) MailboxSummary(ctx context.Context, sessionID string) (*types.MailboxSummary, error) {
	var summary types.MailboxSummary
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE read_at IS NULL),
		       COUNT(*) FILTER (WHERE read_at IS NOT NULL),
		       COUNT(*) FILTER (WHERE priority = 'critical' AND read_at IS NULL),
		       COUNT(*) FILTER (WHERE message_type = 'work_assignment')
		FROM agent_mailbox WHERE session_id = ?`, sessionID).
		Scan(&summary.Total, &summary.Unread, &summary.Read,
			&summary.Urgent, &summary.WorkAssignments)
	if err != nil {
		return nil, wrapDBErrorf(err, "summarize mailbox of %s", sessionID)
	}
	return &summary, nil
}
