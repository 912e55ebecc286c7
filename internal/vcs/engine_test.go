package vcs

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/templedb/templedb/internal/storage"
	"github.com/templedb/templedb/internal/storage/sqlite"
	"github.com/templedb/templedb/internal/types"
	"github.com/templedb/templedb/internal/workingstate"
)

type fixture struct {
	store    *sqlite.Store
	engine   *Engine
	detector *workingstate.Detector
	project  *types.Project
	branch   *types.Branch
	root     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.New(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	project := &types.Project{Slug: "demo", Name: "Demo", DefaultBranch: "main"}
	require.NoError(t, store.CreateProject(ctx, project))

	engine := New(store, nil)
	branch, err := engine.Branch(ctx, project.ID, "main")
	require.NoError(t, err)

	return &fixture{
		store:    store,
		engine:   engine,
		detector: workingstate.New(store, nil),
		project:  project,
		branch:   branch,
		root:     t.TempDir(),
	}
}

func (f *fixture) write(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(f.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func (f *fixture) detect(t *testing.T) *workingstate.Result {
	t.Helper()
	result, err := f.detector.Detect(context.Background(), f.project.ID, f.branch.ID, f.root)
	require.NoError(t, err)
	return result
}

func (f *fixture) commitAll(t *testing.T, message string) *CommitResult {
	t.Helper()
	ctx := context.Background()
	f.detect(t)
	_, err := f.engine.Stage(ctx, f.project.ID, f.branch.ID, nil)
	require.NoError(t, err)
	result, err := f.engine.CreateCommit(ctx, f.project, f.branch, "tester", message, f.root)
	require.NoError(t, err)
	return result
}

func TestCommitHashFormat(t *testing.T) {
	hash := CommitHash("demo", "main", "msg", time.Now())
	assert.Regexp(t, regexp.MustCompile(`^[0-9A-F]{16}$`), hash)

	// Same inputs at the same instant are deterministic.
	at := time.Now()
	assert.Equal(t, CommitHash("demo", "main", "msg", at), CommitHash("demo", "main", "msg", at))
}

func TestInitialImportCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "a.txt", "A")
	f.write(t, "b.txt", "B")

	result := f.commitAll(t, "initial import")
	assert.Equal(t, 2, result.Added)

	files, err := f.store.ListFiles(ctx, f.project.ID, true)
	require.NoError(t, err)
	require.Len(t, files, 2)
	for _, file := range files {
		assert.Equal(t, 1, file.CurrentVersion)
	}

	branches, err := f.store.ListBranches(ctx, f.project.ID)
	require.NoError(t, err)
	require.Len(t, branches, 1)
	assert.Equal(t, "main", branches[0].Name)
	assert.True(t, branches[0].IsDefault)
}

func TestModifyCommitBumpsVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "a.txt", "A")
	f.write(t, "b.txt", "B")
	f.commitAll(t, "initial")

	f.write(t, "a.txt", "AA")
	result := f.commitAll(t, "update a")
	assert.Equal(t, 1, result.Modified)
	assert.Zero(t, result.Added)

	file, err := f.store.GetFileByPath(ctx, f.project.ID, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, 2, file.CurrentVersion)

	contents, err := f.store.GetFileContents(ctx, file.ID)
	require.NoError(t, err)
	assert.Len(t, contents, 2)

	commitFiles, err := f.store.GetCommitFiles(ctx, result.Commit.ID)
	require.NoError(t, err)
	require.Len(t, commitFiles, 1)
	assert.Equal(t, types.ChangeModified, commitFiles[0].Change)
	assert.NotEmpty(t, commitFiles[0].OldHash)
	assert.NotEmpty(t, commitFiles[0].NewHash)
	assert.NotEqual(t, commitFiles[0].OldHash, commitFiles[0].NewHash)
}

func TestCommitCountsUnterminatedLastLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "frag.txt", "one\ntwo")
	f.commitAll(t, "no trailing newline")

	// The committed line count matches the blob's: the unterminated
	// last line counts.
	file, err := f.store.GetFileByPath(ctx, f.project.ID, "frag.txt")
	require.NoError(t, err)
	assert.Equal(t, 2, file.LineCount)

	blob, err := f.store.GetBlob(ctx, file.CurrentHash)
	require.NoError(t, err)
	assert.Equal(t, 2, blob.LineCount())

	f.write(t, "frag.txt", "one\ntwo\n")
	f.commitAll(t, "terminate it")
	file, err = f.store.GetFileByPath(ctx, f.project.ID, "frag.txt")
	require.NoError(t, err)
	assert.Equal(t, 2, file.LineCount)
}

func TestDeleteCommitKeepsFileRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "gone.txt", "bye")
	f.commitAll(t, "add")

	require.NoError(t, os.Remove(filepath.Join(f.root, "gone.txt")))
	result := f.commitAll(t, "remove")
	assert.Equal(t, 1, result.Deleted)

	// The file row survives with deleted status so identity persists
	// across delete and re-add.
	files, err := f.store.ListFiles(ctx, f.project.ID, false)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, types.FileDeleted, files[0].Status)

	// And its working-state entry is gone.
	entries, err := f.store.ListWorkingState(ctx, f.project.ID, f.branch.ID, false)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotEqual(t, "gone.txt", entry.Path)
	}
}

func TestStagePatterns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "src/a.go", "package a\n")
	f.write(t, "src/b.go", "package b\n")
	f.write(t, "docs/c.md", "# C\n")
	f.detect(t)

	n, err := f.engine.Stage(ctx, f.project.ID, f.branch.ID, []string{"src/**"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	staged, err := f.store.ListWorkingState(ctx, f.project.ID, f.branch.ID, true)
	require.NoError(t, err)
	require.Len(t, staged, 2)
	for _, entry := range staged {
		assert.True(t, strings.HasPrefix(entry.Path, "src/"))
	}

	n, err = f.engine.Unstage(ctx, f.project.ID, f.branch.ID, []string{"src/a.go"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStageInvalidPattern(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "A")
	f.detect(t)

	_, err := f.engine.Stage(context.Background(), f.project.ID, f.branch.ID, []string{"[bad"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestCommitRequiresStagedAndMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.CreateCommit(ctx, f.project, f.branch, "t", "", f.root)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = f.engine.CreateCommit(ctx, f.project, f.branch, "t", "empty", f.root)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestUnstagedChangesStayPut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "in.txt", "committed")
	f.write(t, "out.txt", "left behind")
	f.detect(t)

	_, err := f.engine.Stage(ctx, f.project.ID, f.branch.ID, []string{"in.txt"})
	require.NoError(t, err)
	_, err = f.engine.CreateCommit(ctx, f.project, f.branch, "t", "partial", f.root)
	require.NoError(t, err)

	entries, err := f.store.ListWorkingState(ctx, f.project.ID, f.branch.ID, false)
	require.NoError(t, err)
	byPath := map[string]*types.WorkingState{}
	for _, entry := range entries {
		byPath[entry.Path] = entry
	}
	require.Contains(t, byPath, "out.txt")
	assert.Equal(t, types.StateAdded, byPath["out.txt"].State)
	assert.False(t, byPath["out.txt"].Staged)
	assert.Equal(t, types.StateUnmodified, byPath["in.txt"].State)
}

func TestHistoryNewestFirst(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "1")
	first := f.commitAll(t, "one")
	f.write(t, "a.txt", "2")
	second := f.commitAll(t, "two")

	commits, err := f.engine.History(context.Background(), f.project.ID, "main", 0)
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, second.Commit.Hash, commits[0].Hash)
	assert.Equal(t, first.Commit.Hash, commits[1].Hash)
	assert.Equal(t, first.Commit.ID, *commits[0].ParentCommitID)
}

func TestDiffBetweenCommits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "a.txt", "old line\n")
	first := f.commitAll(t, "one")
	f.write(t, "a.txt", "new line\n")
	second := f.commitAll(t, "two")

	diff, err := f.engine.Diff(ctx, f.project.ID, "a.txt", first.Commit.Hash, second.Commit.Hash)
	require.NoError(t, err)
	assert.Contains(t, diff, "-old line")
	assert.Contains(t, diff, "+new line")
	assert.Contains(t, diff, "a/a.txt")
	assert.Contains(t, diff, "b/a.txt")
}

func TestDiffAddedFileAgainstEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "old.txt", "base\n")
	first := f.commitAll(t, "base")
	f.write(t, "fresh.txt", "hello\n")
	second := f.commitAll(t, "add fresh")

	diff, err := f.engine.Diff(ctx, f.project.ID, "fresh.txt", first.Commit.Hash, second.Commit.Hash)
	require.NoError(t, err)
	assert.Contains(t, diff, "+hello")
	assert.Contains(t, diff, "/dev/null")
}
