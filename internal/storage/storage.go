// Package storage defines the persistence contract for TempleDB.
//
// The concrete implementation lives in the sqlite sub-package. This
// package holds the interface and sentinel errors referenced by both
// the implementation and its consumers (engines, coordinator, cmd/tdb).
package storage

import (
	"context"
	"time"

	"github.com/templedb/templedb/internal/types"
)

// Storage is the interface satisfied by *sqlite.Store.
// Consumers depend on this interface rather than the concrete type so
// that mocks and proxies can be substituted.
type Storage interface {
	// Projects
	CreateProject(ctx context.Context, project *types.Project) error
	GetProject(ctx context.Context, slug string) (*types.Project, error)
	GetProjectByID(ctx context.Context, id int64) (*types.Project, error)
	ListProjects(ctx context.Context) ([]*types.Project, error)
	DeleteProject(ctx context.Context, slug string) error
	GetProjectStatistics(ctx context.Context, projectID int64) (*types.ProjectStatistics, error)

	// Content store (blobs are global, not project-scoped)
	PutBlob(ctx context.Context, data []byte) (*types.ContentBlob, error)
	GetBlob(ctx context.Context, hash string) (*types.ContentBlob, error)
	BlobExists(ctx context.Context, hash string) (bool, error)
	IncBlobRef(ctx context.Context, hash string) error
	DecBlobRef(ctx context.Context, hash string) error
	SweepUnreferencedBlobs(ctx context.Context) (int64, error)

	// File registry
	UpsertFile(ctx context.Context, file *types.ProjectFile) (int64, error)
	GetFileByPath(ctx context.Context, projectID int64, path string) (*types.ProjectFile, error)
	ListFiles(ctx context.Context, projectID int64, includeContent bool) ([]*types.ProjectFile, error)
	SetCurrentContent(ctx context.Context, fileID int64, hash string, sizeBytes int64, lineCount int) (int, error)
	GetFileContents(ctx context.Context, fileID int64) ([]*types.FileContent, error)
	MarkFileDeleted(ctx context.Context, fileID int64) error
	UpsertFileType(ctx context.Context, tag, category string) error
	ListFileExports(ctx context.Context, projectID int64) ([]*types.FileExport, error)

	// Working state
	ReplaceWorkingState(ctx context.Context, projectID, branchID int64, entries []*types.WorkingState) error
	ListWorkingState(ctx context.Context, projectID, branchID int64, stagedOnly bool) ([]*types.WorkingState, error)
	SetStaged(ctx context.Context, projectID, branchID int64, paths []string, staged bool) (int, error)

	// Branches and commits
	GetOrCreateBranch(ctx context.Context, projectID int64, name string) (*types.Branch, error)
	GetBranch(ctx context.Context, projectID int64, name string) (*types.Branch, error)
	ListBranches(ctx context.Context, projectID int64) ([]*types.Branch, error)
	GetCommit(ctx context.Context, projectID int64, hash string) (*types.Commit, error)
	ListCommits(ctx context.Context, projectID int64, branchID *int64, limit int) ([]*types.Commit, error)
	GetCommitFiles(ctx context.Context, commitID int64) ([]*types.CommitFile, error)
	LatestCommit(ctx context.Context, projectID, branchID int64) (*types.Commit, error)
	FileHashAt(ctx context.Context, projectID int64, path, commitHash string) (string, error)

	// Checkouts
	UpsertCheckout(ctx context.Context, checkout *types.Checkout) (int64, error)
	GetCheckout(ctx context.Context, projectID int64, path string) (*types.Checkout, error)
	ListCheckouts(ctx context.Context, projectID int64) ([]*types.Checkout, error)
	DeleteCheckout(ctx context.Context, checkoutID int64) error
	ReplaceSnapshots(ctx context.Context, checkoutID int64, snapshots []*types.CheckoutSnapshot) error
	GetSnapshot(ctx context.Context, checkoutID, fileID int64) (*types.CheckoutSnapshot, error)
	ListSnapshots(ctx context.Context, checkoutID int64) ([]*types.CheckoutSnapshot, error)

	// Environments
	UpsertEnvironment(ctx context.Context, env *types.Environment) error
	ListEnvironments(ctx context.Context, projectID int64) ([]*types.Environment, error)

	// Work items
	CreateWorkItem(ctx context.Context, item *types.WorkItem) error
	GetWorkItem(ctx context.Context, id string) (*types.WorkItem, error)
	ListWorkItems(ctx context.Context, filter types.WorkItemFilter) ([]*types.WorkItem, error)
	UpdateWorkItemStatus(ctx context.Context, id string, from, to types.WorkItemStatus, sessionID *string) error
	SetWorkItemAssignment(ctx context.Context, id string, sessionID *string) error
	ListTransitions(ctx context.Context, workItemID string) ([]*types.WorkItemTransition, error)
	WorkItemAncestors(ctx context.Context, id string, maxDepth int) ([]string, error)

	// Agent sessions and mailboxes
	RegisterSession(ctx context.Context, session *types.AgentSession) error
	GetSession(ctx context.Context, id string) (*types.AgentSession, error)
	ListSessions(ctx context.Context, projectID *int64, activeOnly bool) ([]*types.AgentSession, error)
	EndSession(ctx context.Context, id string) error
	AgentWorkloads(ctx context.Context, projectID *int64) ([]*types.AgentWorkload, error)
	RecordInteraction(ctx context.Context, interaction *types.AgentInteraction) error
	PostMessage(ctx context.Context, msg *types.MailboxMessage) error
	ListMessages(ctx context.Context, sessionID string, unreadOnly bool) ([]*types.MailboxMessage, error)
	MarkMessageRead(ctx context.Context, messageID int64) error
	MailboxSummary(ctx context.Context, sessionID string) (*types.MailboxSummary, error)

	// Convoys
	CreateConvoy(ctx context.Context, convoy *types.Convoy, itemIDs []string) error
	GetConvoy(ctx context.Context, id int64) (*types.Convoy, error)
	ListConvoyItems(ctx context.Context, convoyID int64) ([]*types.ConvoyItem, error)
	SetConvoyStatus(ctx context.Context, id int64, status types.ConvoyStatus) error

	// Coordination metrics
	CoordinationMetrics(ctx context.Context, projectID *int64) (*types.CoordinationMetrics, error)

	// Transactions
	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error

	// Lifecycle
	Path() string
	Close() error
}

// Transaction exposes the subset of storage operations that execute
// within one database transaction. The commit engine and cathedral
// importer are the primary consumers: either every write in the
// callback lands, or none do.
type Transaction interface {
	// Content store
	PutBlob(ctx context.Context, data []byte) (*types.ContentBlob, error)

	// File registry
	UpsertFile(ctx context.Context, file *types.ProjectFile) (int64, error)
	GetFileByPath(ctx context.Context, projectID int64, path string) (*types.ProjectFile, error)
	SetCurrentContent(ctx context.Context, fileID int64, hash string, sizeBytes int64, lineCount int) (int, error)
	SetCurrentContentAt(ctx context.Context, fileID int64, hash string, sizeBytes int64, lineCount, version int, createdAt time.Time) error
	MarkFileDeleted(ctx context.Context, fileID int64) error
	UpsertFileType(ctx context.Context, tag, category string) error

	// Projects (for cathedral import)
	CreateProject(ctx context.Context, project *types.Project) error
	GetProject(ctx context.Context, slug string) (*types.Project, error)
	DeleteProjectData(ctx context.Context, projectID int64) error
	UpsertEnvironment(ctx context.Context, env *types.Environment) error

	// Branches and commits
	GetOrCreateBranch(ctx context.Context, projectID int64, name string) (*types.Branch, error)
	InsertCommit(ctx context.Context, commit *types.Commit) (int64, error)
	InsertCommitFile(ctx context.Context, cf *types.CommitFile) error
	GetCommit(ctx context.Context, projectID int64, hash string) (*types.Commit, error)

	// Working state maintenance on the commit path
	ClearCommittedWorkingState(ctx context.Context, projectID, branchID int64, paths []string) error

	// Checkout snapshots
	UpsertSnapshot(ctx context.Context, snapshot *types.CheckoutSnapshot) error
	DeleteSnapshot(ctx context.Context, checkoutID, fileID int64) error
	TouchCheckout(ctx context.Context, checkoutID int64) error

	// Work coordination
	GetWorkItem(ctx context.Context, id string) (*types.WorkItem, error)
	UpdateWorkItemStatus(ctx context.Context, id string, from, to types.WorkItemStatus, sessionID *string) error
	SetWorkItemAssignment(ctx context.Context, id string, sessionID *string) error
	PostMessage(ctx context.Context, msg *types.MailboxMessage) error
	EndSession(ctx context.Context, id string) error
}
