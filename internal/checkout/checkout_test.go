package checkout

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/templedb/templedb/internal/storage/sqlite"
	"github.com/templedb/templedb/internal/types"
)

func seedProject(t *testing.T) (*sqlite.Store, *types.Project, *types.Branch) {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.New(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	project := &types.Project{Slug: "demo", Name: "Demo", DefaultBranch: "main"}
	require.NoError(t, store.CreateProject(ctx, project))
	branch, err := store.GetOrCreateBranch(ctx, project.ID, "main")
	require.NoError(t, err)

	seedFile(t, store, project.ID, "a.txt", "alpha\n")
	seedFile(t, store, project.ID, "nested/dir/b.bin", string([]byte{0xff, 0xfe, 0x01}))
	return store, project, branch
}

func seedFile(t *testing.T, store *sqlite.Store, projectID int64, path, content string) {
	t.Helper()
	ctx := context.Background()
	blob, err := store.PutBlob(ctx, []byte(content))
	require.NoError(t, err)
	fileID, err := store.UpsertFile(ctx, &types.ProjectFile{
		ProjectID: projectID, Path: path, Name: filepath.Base(path),
	})
	require.NoError(t, err)
	_, err = store.SetCurrentContent(ctx, fileID, blob.Hash, blob.SizeBytes, blob.LineCount())
	require.NoError(t, err)
}

func TestCheckoutWritesFilesAndSnapshots(t *testing.T) {
	store, project, branch := seedProject(t)
	ctx := context.Background()
	target := filepath.Join(t.TempDir(), "w1")

	result, err := New(store).Checkout(ctx, project, branch, target, false)
	require.NoError(t, err)
	assert.Equal(t, 2, result.FilesWritten)
	assert.Positive(t, result.BytesWritten)

	data, err := os.ReadFile(filepath.Join(target, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "alpha\n", string(data))

	raw, err := os.ReadFile(filepath.Join(target, "nested", "dir", "b.bin"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xfe, 0x01}, raw)

	snaps, err := store.ListSnapshots(ctx, result.Checkout.ID)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	for _, snap := range snaps {
		assert.Equal(t, 1, snap.Version)
		assert.NotEmpty(t, snap.ContentHash)
	}
}

func TestCheckoutRefusesNonEmptyTarget(t *testing.T) {
	store, project, branch := seedProject(t)
	ctx := context.Background()
	target := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(target, "existing"), []byte("x"), 0o644))

	_, err := New(store).Checkout(ctx, project, branch, target, false)
	assert.ErrorIs(t, err, ErrTargetNotEmpty)

	// force overwrites.
	result, err := New(store).Checkout(ctx, project, branch, target, true)
	require.NoError(t, err)
	assert.Equal(t, 2, result.FilesWritten)
}

func TestCheckoutSkipsDeletedFiles(t *testing.T) {
	store, project, branch := seedProject(t)
	ctx := context.Background()

	file, err := store.GetFileByPath(ctx, project.ID, "a.txt")
	require.NoError(t, err)
	require.NoError(t, store.MarkFileDeleted(ctx, file.ID))

	target := filepath.Join(t.TempDir(), "w")
	result, err := New(store).Checkout(ctx, project, branch, target, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesWritten)
	_, err = os.Stat(filepath.Join(target, "a.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFindStale(t *testing.T) {
	store, project, branch := seedProject(t)
	ctx := context.Background()
	mgr := New(store)

	live := filepath.Join(t.TempDir(), "live")
	gone := filepath.Join(t.TempDir(), "gone")
	_, err := mgr.Checkout(ctx, project, branch, live, false)
	require.NoError(t, err)
	_, err = mgr.Checkout(ctx, project, branch, gone, false)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(gone))

	stale, err := mgr.FindStale(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, gone, stale[0].Path)
}

func TestDeleteCascadesSnapshots(t *testing.T) {
	store, project, branch := seedProject(t)
	ctx := context.Background()
	mgr := New(store)

	target := filepath.Join(t.TempDir(), "w")
	result, err := mgr.Checkout(ctx, project, branch, target, false)
	require.NoError(t, err)

	require.NoError(t, mgr.Delete(ctx, result.Checkout.ID))

	snaps, err := store.ListSnapshots(ctx, result.Checkout.ID)
	require.NoError(t, err)
	assert.Empty(t, snaps)

	checkouts, err := mgr.List(ctx, project.ID)
	require.NoError(t, err)
	assert.Empty(t, checkouts)
}

func TestRepeatCheckoutReplacesSnapshots(t *testing.T) {
	store, project, branch := seedProject(t)
	ctx := context.Background()
	mgr := New(store)
	target := filepath.Join(t.TempDir(), "w")

	first, err := mgr.Checkout(ctx, project, branch, target, false)
	require.NoError(t, err)

	// Advance a.txt and re-checkout: snapshot versions must follow.
	seedFile(t, store, project.ID, "a.txt", "alpha v2\n")
	second, err := mgr.Checkout(ctx, project, branch, target, true)
	require.NoError(t, err)
	assert.Equal(t, first.Checkout.ID, second.Checkout.ID, "same path keeps the same checkout row")

	file, err := store.GetFileByPath(ctx, project.ID, "a.txt")
	require.NoError(t, err)
	snap, err := store.GetSnapshot(ctx, second.Checkout.ID, file.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Version)
}
