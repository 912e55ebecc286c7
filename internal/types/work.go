package types

import (
	"fmt"
	"time"
)

// WorkItemStatus is the current state of a work item in the
// coordination state machine.
type WorkItemStatus string

// Work item status constants
const (
	StatusPending    WorkItemStatus = "pending"
	StatusAssigned   WorkItemStatus = "assigned"
	StatusInProgress WorkItemStatus = "in_progress"
	StatusBlocked    WorkItemStatus = "blocked"
	StatusCompleted  WorkItemStatus = "completed"
	StatusCancelled  WorkItemStatus = "cancelled"
)

// IsValid checks if the status value is valid
func (s WorkItemStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusAssigned, StatusInProgress, StatusBlocked, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s WorkItemStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// RequiresSession reports whether the status requires an assigned session.
func (s WorkItemStatus) RequiresSession() bool {
	switch s {
	case StatusAssigned, StatusInProgress, StatusBlocked:
		return true
	}
	return false
}

// Priority orders work items for dispatch.
type Priority string

// Priority constants, highest first.
const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// IsValid checks if the priority value is valid
func (p Priority) IsValid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Rank returns the dispatch ordering of a priority (lower dispatches first).
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	}
	return 4
}

// WorkItemType categorizes the kind of work
type WorkItemType string

// Work item type constants
const (
	ItemTask    WorkItemType = "task"
	ItemBug     WorkItemType = "bug"
	ItemFeature WorkItemType = "feature"
	ItemChore   WorkItemType = "chore"
	ItemReview  WorkItemType = "review"
)

// IsValid checks if the item type value is valid
func (t WorkItemType) IsValid() bool {
	switch t {
	case ItemTask, ItemBug, ItemFeature, ItemChore, ItemReview:
		return true
	}
	return false
}

// WorkItem is a unit of multi-agent work. IDs are short opaque tokens
// of the form tdb-xxxxx.
type WorkItem struct {
	ID                string         `json:"id"`
	ProjectID         int64          `json:"project_id"`
	Title             string         `json:"title"`
	Description       string         `json:"description,omitempty"`
	ItemType          WorkItemType   `json:"item_type"`
	Priority          Priority       `json:"priority"`
	Status            WorkItemStatus `json:"status"`
	ParentID          *string        `json:"parent_id,omitempty"`
	AssignedSessionID *string        `json:"assigned_session_id,omitempty"`
	CreatedBySession  *string        `json:"created_by_session,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	AssignedAt        *time.Time     `json:"assigned_at,omitempty"`
	StartedAt         *time.Time     `json:"started_at,omitempty"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
}

// Validate checks if the work item has valid field values
func (w *WorkItem) Validate() error {
	if w.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(w.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(w.Title))
	}
	if !w.ItemType.IsValid() {
		return fmt.Errorf("invalid item type: %s", w.ItemType)
	}
	if !w.Priority.IsValid() {
		return fmt.Errorf("invalid priority: %s", w.Priority)
	}
	if !w.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", w.Status)
	}
	if w.Status.RequiresSession() && w.AssignedSessionID == nil {
		return fmt.Errorf("status %s requires an assigned session", w.Status)
	}
	return nil
}

// SetDefaults applies defaults for fields omitted at creation.
func (w *WorkItem) SetDefaults() {
	if w.Status == "" {
		w.Status = StatusPending
	}
	if w.Priority == "" {
		w.Priority = PriorityMedium
	}
	if w.ItemType == "" {
		w.ItemType = ItemTask
	}
}

// WorkItemTransition is one append-only audit row of a status change.
type WorkItemTransition struct {
	ID         int64          `json:"id"`
	WorkItemID string         `json:"work_item_id"`
	FromStatus WorkItemStatus `json:"from_status"`
	ToStatus   WorkItemStatus `json:"to_status"`
	SessionID  *string        `json:"session_id,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// SessionStatus is the lifecycle state of an agent session.
type SessionStatus string

// Session status constants
const (
	SessionActive SessionStatus = "active"
	SessionIdle   SessionStatus = "idle"
	SessionEnded  SessionStatus = "ended"
)

// IsValid checks if the session status value is valid
func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionActive, SessionIdle, SessionEnded:
		return true
	}
	return false
}

// AgentSession is an opaque agent identity created by an external
// subsystem. The core only reads id, status and work acceptance.
type AgentSession struct {
	ID            string        `json:"id"`
	ProjectID     *int64        `json:"project_id,omitempty"`
	AgentName     string        `json:"agent_name"`
	Status        SessionStatus `json:"status"`
	AcceptingWork bool          `json:"accepting_work"`
	StartedAt     time.Time     `json:"started_at"`
	LastSeenAt    time.Time     `json:"last_seen_at"`
	EndedAt       *time.Time    `json:"ended_at,omitempty"`
}

// AgentWorkload pairs a session with its live coordination counters.
type AgentWorkload struct {
	Session         *AgentSession `json:"session"`
	ActiveWorkCount int           `json:"active_work_count"`
	UnreadMessages  int           `json:"unread_messages"`
}

// AgentInteraction records one observed exchange on a session.
type AgentInteraction struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	WorkItemID *string   `json:"work_item_id,omitempty"`
	Kind       string    `json:"kind"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// MessageType categorizes mailbox messages.
type MessageType string

// Message type constants
const (
	MsgWorkAssignment MessageType = "work_assignment"
	MsgConvoyStart    MessageType = "convoy_start"
	MsgNotice         MessageType = "notice"
)

// MailboxMessage is one inbound message on an agent's mailbox.
// Delivery order is strict delivered_at order.
type MailboxMessage struct {
	ID          int64       `json:"id"`
	SessionID   string      `json:"session_id"`
	WorkItemID  *string     `json:"work_item_id,omitempty"`
	MessageType MessageType `json:"message_type"`
	Priority    Priority    `json:"priority"`
	Subject     string      `json:"subject"`
	Body        string      `json:"body,omitempty"`
	DeliveredAt time.Time   `json:"delivered_at"`
	ReadAt      *time.Time  `json:"read_at,omitempty"`
}

// MailboxSummary aggregates one session's mailbox.
type MailboxSummary struct {
	Total           int `json:"total"`
	Unread          int `json:"unread"`
	Read            int `json:"read"`
	Urgent          int `json:"urgent"`
	WorkAssignments int `json:"work_assignments"`
}

// ConvoyStatus is the lifecycle state of a convoy.
type ConvoyStatus string

// Convoy status constants
const (
	ConvoyPlanned   ConvoyStatus = "planned"
	ConvoyActive    ConvoyStatus = "active"
	ConvoyCompleted ConvoyStatus = "completed"
)

// Convoy is a named ordered bundle of work items executed as a unit.
type Convoy struct {
	ID          int64        `json:"id"`
	ProjectID   int64        `json:"project_id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Status      ConvoyStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
}

// ConvoyItem links one work item into a convoy at a position.
type ConvoyItem struct {
	ConvoyID   int64  `json:"convoy_id"`
	WorkItemID string `json:"work_item_id"`
	Position   int    `json:"position"`
}

// CoordinationMetrics aggregates work item and agent state.
type CoordinationMetrics struct {
	Pending          int     `json:"pending"`
	Assigned         int     `json:"assigned"`
	InProgress       int     `json:"in_progress"`
	Completed        int     `json:"completed"`
	Blocked          int     `json:"blocked"`
	Cancelled        int     `json:"cancelled"`
	ActiveAgents     int     `json:"active_agents"`
	BusyAgents       int     `json:"busy_agents"`
	AgentUtilization float64 `json:"agent_utilization"`
}

// WorkItemFilter is used to filter work item queries
type WorkItemFilter struct {
	ProjectID *int64
	Status    *WorkItemStatus
	Priority  *Priority
	ItemType  *WorkItemType
	SessionID *string
	ParentID  *string
	Limit     int
}
