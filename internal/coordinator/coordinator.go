// Package coordinator dispatches work items across concurrent agent
// sessions: least-busy assignment, priority-ordered dispatch, convoys
// and mailbox delivery.
package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/templedb/templedb/internal/debug"
	"github.com/templedb/templedb/internal/storage"
	"github.com/templedb/templedb/internal/telemetry"
	"github.com/templedb/templedb/internal/types"
	"github.com/templedb/templedb/internal/workitem"
)

// Coordinator assigns work items to agent sessions.
type Coordinator struct {
	store storage.Storage
	items *workitem.Service
}

// New builds a coordinator.
func New(store storage.Storage) *Coordinator {
	return &Coordinator{store: store, items: workitem.New(store)}
}

// RegisterAgent records a new active session accepting work under a
// generated UUID.
func (c *Coordinator) RegisterAgent(ctx context.Context, projectID *int64, agentName string) (*types.AgentSession, error) {
	if agentName == "" {
		return nil, fmt.Errorf("agent name is required: %w", storage.ErrInvalidInput)
	}
	session := &types.AgentSession{
		ID:            uuid.NewString(),
		ProjectID:     projectID,
		AgentName:     agentName,
		Status:        types.SessionActive,
		AcceptingWork: true,
	}
	if err := c.store.RegisterSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// AvailableAgents returns the non-ended sessions visible to a project
// with their live workload counters, least busy first and most
// recently started breaking ties.
func (c *Coordinator) AvailableAgents(ctx context.Context, projectID *int64) ([]*types.AgentWorkload, error) {
	return c.store.AgentWorkloads(ctx, projectID)
}

// Assign hands a pending work item to a session. With an empty
// sessionID and autoSelect set, the least busy active agent accepting
// work for the item's project is chosen. The assignment posts a
// work_assignment message to the agent's mailbox at the item's
// priority.
func (c *Coordinator) Assign(ctx context.Context, workItemID, sessionID string, autoSelect bool) (*types.WorkItem, error) {
	item, err := c.store.GetWorkItem(ctx, workItemID)
	if err != nil {
		return nil, err
	}

	if sessionID == "" {
		if !autoSelect {
			return nil, fmt.Errorf("session id is required without auto-select: %w", storage.ErrInvalidInput)
		}
		chosen, err := c.leastBusyAgent(ctx, item.ProjectID)
		if err != nil {
			return nil, err
		}
		sessionID = chosen.Session.ID
	} else {
		session, err := c.store.GetSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if session.Status != types.SessionActive {
			return nil, fmt.Errorf("session %s is %s, not active: %w",
				sessionID, session.Status, storage.ErrInvalidInput)
		}
	}

	assigned, err := c.items.Assign(ctx, item.ID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := c.notifyAssignment(ctx, assigned, sessionID); err != nil {
		return nil, err
	}
	return assigned, nil
}

// leastBusyAgent picks the first active, work-accepting agent from the
// workload ordering.
func (c *Coordinator) leastBusyAgent(ctx context.Context, projectID int64) (*types.AgentWorkload, error) {
	workloads, err := c.store.AgentWorkloads(ctx, &projectID)
	if err != nil {
		return nil, err
	}
	for _, w := range workloads {
		if w.Session.Status == types.SessionActive && w.Session.AcceptingWork {
			return w, nil
		}
	}
	return nil, fmt.Errorf("no active agents accepting work: %w", storage.ErrUnavailable)
}

func (c *Coordinator) notifyAssignment(ctx context.Context, item *types.WorkItem, sessionID string) error {
	return c.store.PostMessage(ctx, &types.MailboxMessage{
		SessionID:   sessionID,
		WorkItemID:  &item.ID,
		MessageType: types.MsgWorkAssignment,
		Priority:    item.Priority,
		Subject:     fmt.Sprintf("Assigned: %s", item.Title),
		Body:        item.Description,
	})
}

// DispatchPending assigns pending work items in priority order. The
// pending set is a snapshot taken at the start; the target agent is
// re-selected per item so one agent is only chosen repeatedly while it
// stays least busy. Returns the number dispatched.
func (c *Coordinator) DispatchPending(ctx context.Context, projectID *int64, priority *types.Priority) (int, error) {
	status := types.StatusPending
	pending, err := c.store.ListWorkItems(ctx, types.WorkItemFilter{
		ProjectID: projectID,
		Status:    &status,
		Priority:  priority,
	})
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for _, item := range pending {
		if err := ctx.Err(); err != nil {
			return dispatched, err
		}
		agent, err := c.leastBusyAgent(ctx, item.ProjectID)
		if errors.Is(err, storage.ErrUnavailable) {
			break
		}
		if err != nil {
			return dispatched, err
		}
		assigned, err := c.items.Assign(ctx, item.ID, agent.Session.ID)
		if err != nil {
			// Another writer may have taken or cancelled the item
			// since the snapshot; skip it and keep dispatching.
			if errors.Is(err, storage.ErrConflict) || errors.Is(err, storage.ErrInvalidInput) {
				continue
			}
			return dispatched, err
		}
		if err := c.notifyAssignment(ctx, assigned, agent.Session.ID); err != nil {
			return dispatched, err
		}
		dispatched++
	}

	telemetry.RecordDispatch(ctx, dispatched)
	debug.Logf("dispatched %d of %d pending work items", dispatched, len(pending))
	return dispatched, nil
}

// Convoy records a named ordered bundle of work items.
func (c *Coordinator) Convoy(ctx context.Context, projectID int64, name, description string, itemIDs []string) (*types.Convoy, error) {
	if name == "" {
		return nil, fmt.Errorf("convoy name is required: %w", storage.ErrInvalidInput)
	}
	if len(itemIDs) == 0 {
		return nil, fmt.Errorf("convoy needs at least one work item: %w", storage.ErrInvalidInput)
	}
	convoy := &types.Convoy{
		ProjectID:   projectID,
		Name:        name,
		Description: description,
	}
	if err := c.store.CreateConvoy(ctx, convoy, itemIDs); err != nil {
		return nil, err
	}
	return convoy, nil
}

// StartConvoy flips a convoy to active and, when autoAssign is set,
// assigns its still-pending items least-busy-first in convoy order.
// Returns the number of items assigned.
func (c *Coordinator) StartConvoy(ctx context.Context, convoyID int64, autoAssign bool) (int, error) {
	convoy, err := c.store.GetConvoy(ctx, convoyID)
	if err != nil {
		return 0, err
	}
	if err := c.store.SetConvoyStatus(ctx, convoyID, types.ConvoyActive); err != nil {
		return 0, err
	}
	if !autoAssign {
		return 0, nil
	}

	convoyItems, err := c.store.ListConvoyItems(ctx, convoyID)
	if err != nil {
		return 0, err
	}
	assigned := 0
	for _, ci := range convoyItems {
		item, err := c.store.GetWorkItem(ctx, ci.WorkItemID)
		if err != nil {
			return assigned, err
		}
		if item.Status != types.StatusPending {
			continue
		}
		agent, err := c.leastBusyAgent(ctx, convoy.ProjectID)
		if errors.Is(err, storage.ErrUnavailable) {
			break
		}
		if err != nil {
			return assigned, err
		}
		got, err := c.items.Assign(ctx, item.ID, agent.Session.ID)
		if err != nil {
			if errors.Is(err, storage.ErrConflict) || errors.Is(err, storage.ErrInvalidInput) {
				continue
			}
			return assigned, err
		}
		if err := c.notifyAssignment(ctx, got, agent.Session.ID); err != nil {
			return assigned, err
		}
		assigned++
	}
	return assigned, nil
}

// MailboxSummary aggregates one session's mailbox counters.
func (c *Coordinator) MailboxSummary(ctx context.Context, sessionID string) (*types.MailboxSummary, error) {
	return c.store.MailboxSummary(ctx, sessionID)
}

// Metrics aggregates work item counts and agent utilization.
func (c *Coordinator) Metrics(ctx context.Context, projectID *int64) (*types.CoordinationMetrics, error) {
	return c.store.CoordinationMetrics(ctx, projectID)
}
