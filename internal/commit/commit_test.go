package commit

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/templedb/templedb/internal/checkout"
	"github.com/templedb/templedb/internal/storage"
	"github.com/templedb/templedb/internal/storage/sqlite"
	"github.com/templedb/templedb/internal/types"
)

type fixture struct {
	store   *sqlite.Store
	engine  *Engine
	mgr     *checkout.Manager
	project *types.Project
	branch  *types.Branch
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.New(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	project := &types.Project{Slug: "demo", Name: "Demo", DefaultBranch: "main"}
	require.NoError(t, store.CreateProject(ctx, project))
	branch, err := store.GetOrCreateBranch(ctx, project.ID, "main")
	require.NoError(t, err)

	return &fixture{
		store:   store,
		engine:  New(store, nil),
		mgr:     checkout.New(store),
		project: project,
		branch:  branch,
	}
}

func (f *fixture) seedFile(t *testing.T, path, content string) {
	t.Helper()
	ctx := context.Background()
	blob, err := f.store.PutBlob(ctx, []byte(content))
	require.NoError(t, err)
	fileID, err := f.store.UpsertFile(ctx, &types.ProjectFile{
		ProjectID: f.project.ID, Path: path, Name: filepath.Base(path), FileType: "text",
	})
	require.NoError(t, err)
	_, err = f.store.SetCurrentContent(ctx, fileID, blob.Hash, blob.SizeBytes, blob.LineCount())
	require.NoError(t, err)
}

func (f *fixture) checkout(t *testing.T) string {
	t.Helper()
	target := filepath.Join(t.TempDir(), "ws")
	_, err := f.mgr.Checkout(context.Background(), f.project, f.branch, target, false)
	require.NoError(t, err)
	return target
}

func write(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCommitModifiedFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedFile(t, "a.txt", "A")
	ws := f.checkout(t)

	write(t, ws, "a.txt", "AA")
	result, err := f.engine.Commit(ctx, f.project, ws, Options{Author: "t", Message: "update a"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Modified)
	assert.Zero(t, result.Added)
	assert.Len(t, result.Commit.Hash, 16)

	file, err := f.store.GetFileByPath(ctx, f.project.ID, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, 2, file.CurrentVersion)

	files, err := f.store.GetCommitFiles(ctx, result.Commit.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, types.ChangeModified, files[0].Change)
}

func TestCommitAddAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedFile(t, "old.txt", "old")
	ws := f.checkout(t)

	write(t, ws, "new.txt", "fresh")
	require.NoError(t, os.Remove(filepath.Join(ws, "old.txt")))

	result, err := f.engine.Commit(ctx, f.project, ws, Options{Author: "t", Message: "churn"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)
	assert.Equal(t, 1, result.Deleted)

	oldFile, err := f.store.GetFileByPath(ctx, f.project.ID, "old.txt")
	require.NoError(t, err)
	assert.Equal(t, types.FileDeleted, oldFile.Status)

	co, err := f.store.GetCheckout(ctx, f.project.ID, ws)
	require.NoError(t, err)
	_, err = f.store.GetSnapshot(ctx, co.ID, oldFile.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	newFile, err := f.store.GetFileByPath(ctx, f.project.ID, "new.txt")
	require.NoError(t, err)
	snap, err := f.store.GetSnapshot(ctx, co.ID, newFile.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Version)
}

func TestConflictDetection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedFile(t, "a.txt", "base")
	w1 := f.checkout(t)
	w2 := f.checkout(t)

	write(t, w1, "a.txt", "X")
	_, err := f.engine.Commit(ctx, f.project, w1, Options{Author: "t", Message: "from w1"})
	require.NoError(t, err)

	write(t, w2, "a.txt", "Y")
	_, err = f.engine.Commit(ctx, f.project, w2, Options{
		Author: "t", Message: "from w2", Strategy: StrategyAbort,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrConflict)

	var conflictErr *ConflictError
	require.ErrorAs(t, err, &conflictErr)
	require.Len(t, conflictErr.Conflicts, 1)
	c := conflictErr.Conflicts[0]
	assert.Equal(t, "a.txt", c.Path)
	assert.Equal(t, 1, c.YourVersion)
	assert.Equal(t, 2, c.CurrentVersion)
	assert.Less(t, c.YourVersion, c.CurrentVersion)

	// The aborted commit left nothing behind.
	commits, err := f.store.ListCommits(ctx, f.project.ID, nil, 0)
	require.NoError(t, err)
	assert.Len(t, commits, 1)
}

func TestConflictForceOverwrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedFile(t, "a.txt", "base")
	w1 := f.checkout(t)
	w2 := f.checkout(t)

	write(t, w1, "a.txt", "X")
	_, err := f.engine.Commit(ctx, f.project, w1, Options{Author: "t", Message: "first"})
	require.NoError(t, err)

	write(t, w2, "a.txt", "Y")
	result, err := f.engine.Commit(ctx, f.project, w2, Options{
		Author: "t", Message: "second", Strategy: StrategyForce,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Modified)

	file, err := f.store.GetFileByPath(ctx, f.project.ID, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, 3, file.CurrentVersion)

	blob, err := f.store.GetBlob(ctx, file.CurrentHash)
	require.NoError(t, err)
	assert.Equal(t, "Y", string(blob.Bytes()))
}

func TestConflictRebaseNotImplemented(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedFile(t, "a.txt", "base")
	w1 := f.checkout(t)
	w2 := f.checkout(t)

	write(t, w1, "a.txt", "X")
	_, err := f.engine.Commit(ctx, f.project, w1, Options{Author: "t", Message: "first"})
	require.NoError(t, err)

	write(t, w2, "a.txt", "Y")
	_, err = f.engine.Commit(ctx, f.project, w2, Options{
		Author: "t", Message: "second", Strategy: StrategyRebase,
	})
	assert.ErrorIs(t, err, storage.ErrNotImplemented)
}

func TestCommitInputValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedFile(t, "a.txt", "A")
	ws := f.checkout(t)

	_, err := f.engine.Commit(ctx, f.project, ws, Options{Message: ""})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = f.engine.Commit(ctx, f.project, ws, Options{Message: "m", Strategy: "merge"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	// No changes at all.
	_, err = f.engine.Commit(ctx, f.project, ws, Options{Message: "noop"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestCommitRequiresRecordedCheckout(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Commit(context.Background(), f.project, t.TempDir(), Options{Message: "m"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
