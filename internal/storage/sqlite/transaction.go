package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/templedb/templedb/internal/storage"
	"github.com/templedb/templedb/internal/types"
)

// beginImmediate starts a write transaction on a dedicated connection.
// BEGIN IMMEDIATE takes the write lock up front so the transaction
// cannot fail with SQLITE_BUSY halfway through; acquiring the lock
// itself is retried with exponential backoff while other writers hold
// it.
func beginImmediate(ctx context.Context, conn *sql.Conn) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxInterval = 250 * time.Millisecond
	policy.MaxElapsedTime = 5 * time.Second

	op := func() error {
		_, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE")
		if err == nil {
			return nil
		}
		if isBusyError(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return wrapDBError("begin transaction", err)
	}
	return nil
}

// RunInTransaction executes fn inside one BEGIN IMMEDIATE transaction.
// If fn returns an error or panics, every write is rolled back.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
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
			// Rollback on error or panic. Background context: the
			// caller's context may already be cancelled.
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if err := fn(&sqliteTx{conn: conn}); err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return wrapDBError("commit transaction", err)
	}
	committed = true
	return nil
}

// sqliteTx adapts one open connection to the Transaction interface.
// All methods delegate to the same package-level helpers the Store
// uses, pointed at the transaction's connection.
type sqliteTx struct {
	conn *sql.Conn
}

var _ storage.Transaction = (*sqliteTx)(nil)

func (t *sqliteTx) PutBlob(ctx context.Context, data []byte) (*types.ContentBlob, error) {
	return putBlob(ctx, t.conn, data)
}

func (t *sqliteTx) UpsertFile(ctx context.Context, file *types.ProjectFile) (int64, error) {
	return upsertFile(ctx, t.conn, file)
}

func (t *sqliteTx) GetFileByPath(ctx context.Context, projectID int64, path string) (*types.ProjectFile, error) {
	return getFileByPath(ctx, t.conn, projectID, path)
}

func (t *sqliteTx) SetCurrentContent(ctx context.Context, fileID int64, hash string, sizeBytes int64, lineCount int) (int, error) {
	return setCurrentContent(ctx, t.conn, fileID, hash, sizeBytes, lineCount)
}

func (t *sqliteTx) SetCurrentContentAt(ctx context.Context, fileID int64, hash string, sizeBytes int64, lineCount, version int, createdAt time.Time) error {
	return setCurrentContentAt(ctx, t.conn, fileID, hash, sizeBytes, lineCount, version, createdAt)
}

func (t *sqliteTx) MarkFileDeleted(ctx context.Context, fileID int64) error {
	return markFileDeleted(ctx, t.conn, fileID)
}

func (t *sqliteTx) UpsertFileType(ctx context.Context, tag, category string) error {
	return upsertFileType(ctx, t.conn, tag, category)
}

func (t *sqliteTx) CreateProject(ctx context.Context, project *types.Project) error {
	return createProject(ctx, t.conn, project)
}

func (t *sqliteTx) GetProject(ctx context.Context, slug string) (*types.Project, error) {
	return getProject(ctx, t.conn, slug)
}

func (t *sqliteTx) DeleteProjectData(ctx context.Context, projectID int64) error {
	return deleteProjectData(ctx, t.conn, projectID)
}

func (t *sqliteTx) UpsertEnvironment(ctx context.Context, env *types.Environment) error {
	return upsertEnvironment(ctx, t.conn, env)
}

func (t *sqliteTx) GetOrCreateBranch(ctx context.Context, projectID int64, name string) (*types.Branch, error) {
	return getOrCreateBranch(ctx, t.conn, projectID, name)
}

func (t *sqliteTx) InsertCommit(ctx context.Context, commit *types.Commit) (int64, error) {
	return insertCommit(ctx, t.conn, commit)
}

func (t *sqliteTx) InsertCommitFile(ctx context.Context, cf *types.CommitFile) error {
	return insertCommitFile(ctx, t.conn, cf)
}

func (t *sqliteTx) GetCommit(ctx context.Context, projectID int64, hash string) (*types.Commit, error) {
	return getCommit(ctx, t.conn, projectID, hash)
}

func (t *sqliteTx) ClearCommittedWorkingState(ctx context.Context, projectID, branchID int64, paths []string) error {
	return clearCommittedWorkingState(ctx, t.conn, projectID, branchID, paths)
}

func (t *sqliteTx) UpsertSnapshot(ctx context.Context, snapshot *types.CheckoutSnapshot) error {
	return upsertSnapshot(ctx, t.conn, snapshot)
}

func (t *sqliteTx) DeleteSnapshot(ctx context.Context, checkoutID, fileID int64) error {
	return deleteSnapshot(ctx, t.conn, checkoutID, fileID)
}

func (t *sqliteTx) TouchCheckout(ctx context.Context, checkoutID int64) error {
	return touchCheckout(ctx, t.conn, checkoutID)
}

func (t *sqliteTx) GetWorkItem(ctx context.Context, id string) (*types.WorkItem, error) {
	return getWorkItem(ctx, t.conn, id)
}

func (t *sqliteTx) UpdateWorkItemStatus(ctx context.Context, id string, from, to types.WorkItemStatus, sessionID *string) error {
	return updateWorkItemStatus(ctx, t.conn, id, from, to, sessionID)
}

func (t *sqliteTx) SetWorkItemAssignment(ctx context.Context, id string, sessionID *string) error {
	return setWorkItemAssignment(ctx, t.conn, id, sessionID)
}

func (t *sqliteTx) PostMessage(ctx context.Context, msg *types.MailboxMessage) error {
	return postMessage(ctx, t.conn, msg)
}

func (t *sqliteTx) EndSession(ctx context.Context, id string) error {
	return endSession(ctx, t.conn, id)
}
