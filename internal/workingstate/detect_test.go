package workingstate

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

type fixture struct {
	store    *sqlite.Store
	detector *Detector
	project  *types.Project
	branch   *types.Branch
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
		store:    store,
		detector: New(store, nil),
		project:  project,
		branch:   branch,
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

func write(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func statesByPath(entries []*types.WorkingState) map[string]types.WorkingFileState {
	out := make(map[string]types.WorkingFileState, len(entries))
	for _, e := range entries {
		out[e.Path] = e.State
	}
	return out
}

func TestDetectClassifiesAllStates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedFile(t, "same.txt", "same")
	f.seedFile(t, "changed.txt", "before")
	f.seedFile(t, "gone.txt", "gone")

	ws := t.TempDir()
	write(t, ws, "same.txt", "same")
	write(t, ws, "changed.txt", "after")
	write(t, ws, "extra.txt", "new")

	result, err := f.detector.Detect(ctx, f.project.ID, f.branch.ID, ws)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)
	assert.Equal(t, 1, result.Modified)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, 1, result.Unmodified)
	assert.True(t, result.Changed())

	states := statesByPath(result.Entries)
	assert.Equal(t, types.StateUnmodified, states["same.txt"])
	assert.Equal(t, types.StateModified, states["changed.txt"])
	assert.Equal(t, types.StateDeleted, states["gone.txt"])
	assert.Equal(t, types.StateAdded, states["extra.txt"])
}

func TestDetectPersistsUnstagedEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedFile(t, "a.txt", "A")

	ws := t.TempDir()
	write(t, ws, "a.txt", "AA")

	_, err := f.detector.Detect(ctx, f.project.ID, f.branch.ID, ws)
	require.NoError(t, err)

	entries, err := f.store.ListWorkingState(ctx, f.project.ID, f.branch.ID, false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.txt", entries[0].Path)
	assert.False(t, entries[0].Staged)

	staged, err := f.store.ListWorkingState(ctx, f.project.ID, f.branch.ID, true)
	require.NoError(t, err)
	assert.Empty(t, staged)
}

func TestDetectReplacesPreviousIndex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedFile(t, "a.txt", "A")

	ws := t.TempDir()
	write(t, ws, "a.txt", "AA")
	result, err := f.detector.Detect(ctx, f.project.ID, f.branch.ID, ws)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Modified)

	// Revert the edit; the next pass must drop the stale modified row.
	write(t, ws, "a.txt", "A")
	result, err = f.detector.Detect(ctx, f.project.ID, f.branch.ID, ws)
	require.NoError(t, err)
	assert.Zero(t, result.Modified)
	assert.Equal(t, 1, result.Unmodified)
	assert.False(t, result.Changed())

	entries, err := f.store.ListWorkingState(ctx, f.project.ID, f.branch.ID, false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, types.StateUnmodified, entries[0].State)
}

func TestDetectEmptyWorkspaceMarksAllDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedFile(t, "a.txt", "A")
	f.seedFile(t, "b.txt", "B")

	result, err := f.detector.Detect(ctx, f.project.ID, f.branch.ID, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Deleted)
	assert.Zero(t, result.Unmodified)
}
