package sqlite

import (
	"context"

	"github.com/templedb/templedb/internal/types"
)

// CoordinationMetrics aggregates work item counts by status plus agent
// utilization, optionally scoped to one project. Utilization is the
// share of non-ended sessions currently holding live work.
func (s *Store) CoordinationMetrics(ctx context.Context, projectID *int64) (*types.CoordinationMetrics, error) {
	itemQuery := `
		SELECT COUNT(*) FILTER (WHERE status = 'pending'),
		       COUNT(*) FILTER (WHERE status = 'assigned'),
		       COUNT(*) FILTER (WHERE status = 'in_progress'),
		       COUNT(*) FILTER (WHERE status = 'completed'),
		       COUNT(*) FILTER (WHERE status = 'blocked'),
		       COUNT(*) FILTER (WHERE status = 'cancelled')
		FROM work_items`
	var itemArgs []interface{}
	if projectID != nil {
		itemQuery += ` WHERE project_id = ?`
		itemArgs = append(itemArgs, *projectID)
	}

	var m types.CoordinationMetrics
	err := s.db.QueryRowContext(ctx, itemQuery, itemArgs...).
		Scan(&m.Pending, &m.Assigned, &m.InProgress, &m.Completed, &m.Blocked, &m.Cancelled)
	if err != nil {
		return nil, wrapDBError("aggregate work items", err)
	}

	agentQuery := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE EXISTS (
		           SELECT 1 FROM work_items w
		           WHERE w.assigned_session_id = agent_sessions.id
		             AND w.status IN ('assigned', 'in_progress', 'blocked')))
		FROM agent_sessions WHERE status != 'ended'`
	var agentArgs []interface{}
	if projectID != nil {
		agentQuery += ` AND (project_id = ? OR project_id IS NULL)`
		agentArgs = append(agentArgs, *projectID)
	}
	err = s.db.QueryRowContext(ctx, agentQuery, agentArgs...).
		Scan(&m.ActiveAgents, &m.BusyAgents)
	if err != nil {
		return nil, wrapDBError("aggregate agent sessions", err)
	}

	if m.ActiveAgents > 0 {
		m.AgentUtilization = float64(m.BusyAgents) / float64(m.ActiveAgents)
	}
	return &m, nil
}
