package project

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/templedb/templedb/internal/storage"
	"github.com/templedb/templedb/internal/storage/sqlite"
)

func newService(t *testing.T) (*Service, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store, nil), store
}

func write(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCreateProject(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	project, err := svc.Create(ctx, "demo", "Demo", "")
	require.NoError(t, err)
	assert.Equal(t, "main", project.DefaultBranch)

	branches, err := store.ListBranches(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, branches, 1)
	assert.Equal(t, "main", branches[0].Name)
	assert.True(t, branches[0].IsDefault)
}

func TestCreateProjectValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "", "No Slug", "main")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = svc.Create(ctx, "bad slug", "Spaces", "main")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestCreateDuplicateSlug(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "demo", "Demo", "main")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "demo", "Demo Again", "main")
	assert.ErrorIs(t, err, storage.ErrConflict)
}

func TestImportTree(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	project, err := svc.Create(ctx, "demo", "Demo", "main")
	require.NoError(t, err)

	root := t.TempDir()
	write(t, root, "a.txt", "A")
	write(t, root, "src/b.py", "print('B')\n")

	result, err := svc.ImportTree(ctx, project, root)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Files)

	files, err := store.ListFiles(ctx, project.ID, true)
	require.NoError(t, err)
	require.Len(t, files, 2)
	for _, f := range files {
		assert.Equal(t, 1, f.CurrentVersion)
	}

	sum := sha256.Sum256([]byte("A"))
	blob, err := store.GetBlob(ctx, hex.EncodeToString(sum[:]))
	require.NoError(t, err)
	assert.Equal(t, "A", string(blob.Bytes()))
}

func TestImportTreeRefusesSecondLoad(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	project, err := svc.Create(ctx, "demo", "Demo", "main")
	require.NoError(t, err)

	root := t.TempDir()
	write(t, root, "a.txt", "A")
	_, err = svc.ImportTree(ctx, project, root)
	require.NoError(t, err)

	_, err = svc.ImportTree(ctx, project, root)
	assert.ErrorIs(t, err, storage.ErrConflict)
}

func TestStatistics(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	project, err := svc.Create(ctx, "demo", "Demo", "main")
	require.NoError(t, err)

	root := t.TempDir()
	write(t, root, "a.txt", "A")
	_, err = svc.ImportTree(ctx, project, root)
	require.NoError(t, err)

	stats, err := svc.Statistics(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Files)
	assert.Equal(t, 1, stats.ActiveFiles)
}

func TestDeleteProjectCascades(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	project, err := svc.Create(ctx, "demo", "Demo", "main")
	require.NoError(t, err)
	root := t.TempDir()
	write(t, root, "a.txt", "A")
	_, err = svc.ImportTree(ctx, project, root)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "demo"))

	_, err = store.GetProject(ctx, "demo")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
