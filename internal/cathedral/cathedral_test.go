package cathedral

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/templedb/templedb/internal/storage"
	"github.com/templedb/templedb/internal/storage/sqlite"
	"github.com/templedb/templedb/internal/types"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// seedDemoProject builds a project with two files, two commits and one
// environment so exports have every section populated.
func seedDemoProject(t *testing.T, store *sqlite.Store) *types.Project {
	t.Helper()
	ctx := context.Background()

	project := &types.Project{Slug: "demo", Name: "Demo", DefaultBranch: "main"}
	require.NoError(t, store.CreateProject(ctx, project))
	branch, err := store.GetOrCreateBranch(ctx, project.ID, "main")
	require.NoError(t, err)

	mainV1 := putContent(t, store, project.ID, "src/main.py", "print('v1')\n")
	readme := putContent(t, store, project.ID, "README.md", "# Demo\n")
	mainV2 := putContent(t, store, project.ID, "src/main.py", "print('v2')\n")

	var c1ID int64
	require.NoError(t, store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		c1, err := tx.InsertCommit(ctx, &types.Commit{
			ProjectID: project.ID, BranchID: branch.ID,
			Hash: "AAAA000011112222", Author: "ana", Message: "initial",
		})
		if err != nil {
			return err
		}
		c1ID = c1
		if err := tx.InsertCommitFile(ctx, &types.CommitFile{
			CommitID: c1, Path: "src/main.py", Change: types.ChangeAdded, NewHash: mainV1,
		}); err != nil {
			return err
		}
		return tx.InsertCommitFile(ctx, &types.CommitFile{
			CommitID: c1, Path: "README.md", Change: types.ChangeAdded, NewHash: readme,
		})
	}))
	require.NoError(t, store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		c2, err := tx.InsertCommit(ctx, &types.Commit{
			ProjectID: project.ID, BranchID: branch.ID, ParentCommitID: &c1ID,
			Hash: "BBBB000011112222", Author: "ana", Message: "bump",
		})
		if err != nil {
			return err
		}
		return tx.InsertCommitFile(ctx, &types.CommitFile{
			CommitID: c2, Path: "src/main.py", Change: types.ChangeModified,
			OldHash: mainV1, NewHash: mainV2,
		})
	}))

	require.NoError(t, store.UpsertEnvironment(ctx, &types.Environment{
		ProjectID: project.ID, Name: "dev", Config: `{"PORT":"8080"}`,
	}))
	return project
}

// putContent stores a new content version for path and returns its hash.
func putContent(t *testing.T, store *sqlite.Store, projectID int64, path, content string) string {
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
	return blob.Hash
}

func TestExportPackageLayout(t *testing.T) {
	store := newTestStore(t)
	seedDemoProject(t, store)
	ctx := context.Background()
	out := t.TempDir()

	result, err := NewExporter(store).Export(ctx, "demo", out, ExportOptions{CreatedBy: "ana"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "demo.cathedral"), result.Path)
	assert.Equal(t, 2, result.Files)
	assert.Equal(t, 2, result.Commits)

	var manifest Manifest
	require.NoError(t, readJSON(result.Path, ManifestName, &manifest))
	assert.Equal(t, FormatName, manifest.Format)
	assert.Equal(t, "demo", manifest.Project.Slug)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), manifest.Checksums.SHA256)
	assert.Equal(t, "sha256", manifest.Checksums.Algorithm)
	assert.True(t, manifest.Contents.HasEnvironments)

	// The recorded checksum is reproducible from the package bytes.
	computed, err := PackageChecksum(result.Path)
	require.NoError(t, err)
	assert.Equal(t, manifest.Checksums.SHA256, computed)

	// Renumbering is deterministic by path: README.md sorts first.
	var entries []fileEntry
	require.NoError(t, readJSON(result.Path, "files/manifest.json", &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "file-000001", entries[0].FileID)
	assert.Equal(t, "README.md", entries[0].Path)
	assert.Equal(t, "src/main.py", entries[1].Path)
}

func TestRoundTrip(t *testing.T) {
	source := newTestStore(t)
	project := seedDemoProject(t, source)
	ctx := context.Background()

	result, err := NewExporter(source).Export(ctx, "demo", t.TempDir(), ExportOptions{})
	require.NoError(t, err)

	dest := newTestStore(t)
	imported, err := NewImporter(dest).Import(ctx, result.Path, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, imported.Files)
	assert.Equal(t, 2, imported.Commits)
	assert.Equal(t, 1, imported.Environments)

	// File set and contents survive.
	mainFile, err := dest.GetFileByPath(ctx, imported.Project.ID, "src/main.py")
	require.NoError(t, err)
	assert.Equal(t, 2, mainFile.CurrentVersion)
	blob, err := dest.GetBlob(ctx, mainFile.CurrentHash)
	require.NoError(t, err)
	assert.Equal(t, "print('v2')\n", string(blob.Bytes()))

	// Commit hashes and parent links survive.
	commits, err := dest.ListCommits(ctx, imported.Project.ID, nil, 0)
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, "BBBB000011112222", commits[0].Hash)
	assert.Equal(t, "AAAA000011112222", commits[1].Hash)
	require.NotNil(t, commits[0].ParentCommitID)
	assert.Equal(t, commits[1].ID, *commits[0].ParentCommitID)

	// Branch set survives.
	branches, err := dest.ListBranches(ctx, imported.Project.ID)
	require.NoError(t, err)
	require.Len(t, branches, 1)
	assert.Equal(t, "main", branches[0].Name)
	assert.True(t, branches[0].IsDefault)

	envs, err := dest.ListEnvironments(ctx, imported.Project.ID)
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, `{"PORT":"8080"}`, envs[0].Config)

	// A package re-exported from the imported store reproduces the
	// original bytes, checksum included.
	second, err := NewExporter(dest).Export(ctx, project.Slug, t.TempDir(), ExportOptions{})
	require.NoError(t, err)
	assert.Equal(t, result.Files, second.Files)
	assert.Equal(t, result.Commits, second.Commits)
	assert.Equal(t, result.Checksum, second.Checksum)
}

func TestArchiveRoundTrip(t *testing.T) {
	for _, compression := range []Compression{CompressionZstd, CompressionGzip} {
		t.Run(string(compression), func(t *testing.T) {
			source := newTestStore(t)
			seedDemoProject(t, source)
			ctx := context.Background()
			out := t.TempDir()

			result, err := NewExporter(source).Export(ctx, "demo", out, ExportOptions{
				Compression: compression,
			})
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(out, "demo.cathedral")+archiveSuffix(compression), result.Path)

			// The staging directory is gone, only the archive remains.
			_, err = os.Stat(filepath.Join(out, "demo.cathedral"))
			assert.ErrorIs(t, err, os.ErrNotExist)

			dest := newTestStore(t)
			imported, err := NewImporter(dest).Import(ctx, result.Path, ImportOptions{})
			require.NoError(t, err)
			assert.Equal(t, 2, imported.Files)
			assert.Equal(t, 2, imported.Commits)
		})
	}
}

func TestTamperedBlobDetected(t *testing.T) {
	source := newTestStore(t)
	seedDemoProject(t, source)
	ctx := context.Background()

	result, err := NewExporter(source).Export(ctx, "demo", t.TempDir(), ExportOptions{})
	require.NoError(t, err)

	blobPath := filepath.Join(result.Path, "files", "file-000001.blob")
	data, err := os.ReadFile(blobPath)
	require.NoError(t, err)
	data[0] ^= 0xff
	require.NoError(t, os.WriteFile(blobPath, data, 0o644))

	_, err = NewImporter(newTestStore(t)).Import(ctx, result.Path, ImportOptions{})
	assert.ErrorIs(t, err, storage.ErrIntegrity)
}

func TestTamperedJSONDetected(t *testing.T) {
	source := newTestStore(t)
	seedDemoProject(t, source)
	ctx := context.Background()

	result, err := NewExporter(source).Export(ctx, "demo", t.TempDir(), ExportOptions{})
	require.NoError(t, err)

	projectPath := filepath.Join(result.Path, "project.json")
	data, err := os.ReadFile(projectPath)
	require.NoError(t, err)
	data[len(data)/2] ^= 0x01
	require.NoError(t, os.WriteFile(projectPath, data, 0o644))

	_, err = NewImporter(newTestStore(t)).Import(ctx, result.Path, ImportOptions{})
	assert.ErrorIs(t, err, storage.ErrIntegrity)
}

func TestImportNewSlug(t *testing.T) {
	store := newTestStore(t)
	seedDemoProject(t, store)
	ctx := context.Background()

	result, err := NewExporter(store).Export(ctx, "demo", t.TempDir(), ExportOptions{})
	require.NoError(t, err)

	imported, err := NewImporter(store).Import(ctx, result.Path, ImportOptions{NewSlug: "demo-copy"})
	require.NoError(t, err)
	assert.Equal(t, "demo-copy", imported.Project.Slug)

	// Blobs deduplicate against the originals; both projects share them.
	copyFile, err := store.GetFileByPath(ctx, imported.Project.ID, "src/main.py")
	require.NoError(t, err)
	origProject, err := store.GetProject(ctx, "demo")
	require.NoError(t, err)
	origFile, err := store.GetFileByPath(ctx, origProject.ID, "src/main.py")
	require.NoError(t, err)
	assert.Equal(t, origFile.CurrentHash, copyFile.CurrentHash)
}

func TestImportConflictAndOverwrite(t *testing.T) {
	store := newTestStore(t)
	seedDemoProject(t, store)
	ctx := context.Background()

	result, err := NewExporter(store).Export(ctx, "demo", t.TempDir(), ExportOptions{})
	require.NoError(t, err)

	_, err = NewImporter(store).Import(ctx, result.Path, ImportOptions{})
	assert.ErrorIs(t, err, storage.ErrConflict)

	imported, err := NewImporter(store).Import(ctx, result.Path, ImportOptions{Overwrite: true})
	require.NoError(t, err)
	assert.Equal(t, 2, imported.Files)
	assert.Equal(t, 2, imported.Commits)
}

func TestExportExcludeGlobs(t *testing.T) {
	store := newTestStore(t)
	seedDemoProject(t, store)
	ctx := context.Background()

	result, err := NewExporter(store).Export(ctx, "demo", t.TempDir(), ExportOptions{
		ExcludeGlobs: []string{"**/*.md", "*.md"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Files)

	var entries []fileEntry
	require.NoError(t, readJSON(result.Path, "files/manifest.json", &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "src/main.py", entries[0].Path)
}

func TestExportRefusesExistingPackage(t *testing.T) {
	store := newTestStore(t)
	seedDemoProject(t, store)
	ctx := context.Background()
	out := t.TempDir()

	_, err := NewExporter(store).Export(ctx, "demo", out, ExportOptions{})
	require.NoError(t, err)
	_, err = NewExporter(store).Export(ctx, "demo", out, ExportOptions{})
	assert.ErrorIs(t, err, storage.ErrConflict)

	_, err = NewExporter(store).Export(ctx, "demo", out, ExportOptions{Overwrite: true})
	assert.NoError(t, err)
}
