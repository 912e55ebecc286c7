// Package workitem implements the work item state machine on top of
// the transactional store.
//
// Allowed transitions:
//
//	pending ──assign──▶ assigned ──start──▶ in_progress ──complete──▶ completed
//	   │                    │                      │
//	   │                    └──block──▶ blocked ◀──┘
//	   │                                    │
//	   └──cancel──▶ cancelled               └──unblock──▶ in_progress
//
// Every accepted transition appends one audit row. Anything outside
// this table is rejected as invalid input; a legal transition that
// loses a race against another writer surfaces as a conflict.
package workitem

import (
	"context"
	"errors"
	"fmt"

	"github.com/templedb/templedb/internal/debug"
	"github.com/templedb/templedb/internal/idgen"
	"github.com/templedb/templedb/internal/storage"
	"github.com/templedb/templedb/internal/types"
)

// maxAncestorDepth bounds the parent chain walk when validating a
// new item's parent.
const maxAncestorDepth = 64

// Service runs work item lifecycle operations.
type Service struct {
	store storage.Storage
}

// New builds a work item service.
func New(store storage.Storage) *Service {
	return &Service{store: store}
}

// CreateOptions names the caller-supplied fields of a new work item.
type CreateOptions struct {
	ProjectID        int64
	Title            string
	Description      string
	ItemType         types.WorkItemType
	Priority         types.Priority
	ParentID         *string
	CreatedBySession *string
}

// Create generates an id and inserts a pending work item. A parent, if
// given, must exist and have an acyclic ancestor chain.
func (s *Service) Create(ctx context.Context, opts CreateOptions) (*types.WorkItem, error) {
	if opts.ParentID != nil {
		if _, err := s.store.GetWorkItem(ctx, *opts.ParentID); err != nil {
			return nil, fmt.Errorf("parent work item: %w", err)
		}
		if _, err := s.store.WorkItemAncestors(ctx, *opts.ParentID, maxAncestorDepth); err != nil {
			return nil, fmt.Errorf("parent work item: %w", err)
		}
	}

	id, err := idgen.NewWorkItemID(func(candidate string) (bool, error) {
		_, err := s.store.GetWorkItem(ctx, candidate)
		if err == nil {
			return true, nil
		}
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	})
	if err != nil {
		return nil, err
	}

	item := &types.WorkItem{
		ID:               id,
		ProjectID:        opts.ProjectID,
		Title:            opts.Title,
		Description:      opts.Description,
		ItemType:         opts.ItemType,
		Priority:         opts.Priority,
		ParentID:         opts.ParentID,
		CreatedBySession: opts.CreatedBySession,
	}
	if err := s.store.CreateWorkItem(ctx, item); err != nil {
		return nil, err
	}
	debug.Logf("created work item %s: %s", item.ID, item.Title)
	return item, nil
}

// Get fetches one work item.
func (s *Service) Get(ctx context.Context, id string) (*types.WorkItem, error) {
	return s.store.GetWorkItem(ctx, id)
}

// List returns items matching the filter in dispatch order.
func (s *Service) List(ctx context.Context, filter types.WorkItemFilter) ([]*types.WorkItem, error) {
	return s.store.ListWorkItems(ctx, filter)
}

// Transitions returns an item's audit trail oldest-first.
func (s *Service) Transitions(ctx context.Context, id string) ([]*types.WorkItemTransition, error) {
	return s.store.ListTransitions(ctx, id)
}

// Assign moves a pending item to assigned and points it at a session.
// The status check, the status swap and the assignment pointer land in
// one transaction; a racing writer either sees the whole assignment or
// none of it. The coordinator layers session verification and mailbox
// delivery on top of this.
func (s *Service) Assign(ctx context.Context, id, sessionID string) (*types.WorkItem, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required: %w", storage.ErrInvalidInput)
	}
	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		item, err := tx.GetWorkItem(ctx, id)
		if err != nil {
			return err
		}
		if item.Status != types.StatusPending {
			return invalidTransition(id, item.Status, types.StatusAssigned)
		}
		if err := tx.UpdateWorkItemStatus(ctx, id, types.StatusPending, types.StatusAssigned, &sessionID); err != nil {
			return err
		}
		return tx.SetWorkItemAssignment(ctx, id, &sessionID)
	})
	if err != nil {
		return nil, err
	}
	return s.store.GetWorkItem(ctx, id)
}

// Start moves an assigned item to in_progress.
func (s *Service) Start(ctx context.Context, id string, sessionID *string) (*types.WorkItem, error) {
	return s.transition(ctx, id, types.StatusInProgress, sessionID, types.StatusAssigned)
}

// Complete moves an in_progress item to completed.
func (s *Service) Complete(ctx context.Context, id string, sessionID *string) (*types.WorkItem, error) {
	return s.transition(ctx, id, types.StatusCompleted, sessionID, types.StatusInProgress)
}

// Block parks an assigned or in_progress item.
func (s *Service) Block(ctx context.Context, id string, sessionID *string) (*types.WorkItem, error) {
	return s.transition(ctx, id, types.StatusBlocked, sessionID, types.StatusAssigned, types.StatusInProgress)
}

// Unblock resumes a blocked item into in_progress.
func (s *Service) Unblock(ctx context.Context, id string, sessionID *string) (*types.WorkItem, error) {
	return s.transition(ctx, id, types.StatusInProgress, sessionID, types.StatusBlocked)
}

// Cancel cancels a pending item.
func (s *Service) Cancel(ctx context.Context, id string, sessionID *string) (*types.WorkItem, error) {
	return s.transition(ctx, id, types.StatusCancelled, sessionID, types.StatusPending)
}

func (s *Service) transition(ctx context.Context, id string, to types.WorkItemStatus, sessionID *string, allowedFrom ...types.WorkItemStatus) (*types.WorkItem, error) {
	item, err := s.store.GetWorkItem(ctx, id)
	if err != nil {
		return nil, err
	}
	allowed := false
	for _, from := range allowedFrom {
		if item.Status == from {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, invalidTransition(id, item.Status, to)
	}
	if err := s.store.UpdateWorkItemStatus(ctx, id, item.Status, to, sessionID); err != nil {
		return nil, err
	}
	return s.store.GetWorkItem(ctx, id)
}

func invalidTransition(id string, from, to types.WorkItemStatus) error {
	return fmt.Errorf("work item %s cannot move from %s to %s: %w", id, from, to, storage.ErrInvalidInput)
}
