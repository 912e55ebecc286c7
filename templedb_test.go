package templedb_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/templedb/templedb"
)

func TestOpenCreatesDatabase(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := templedb.Open(ctx, dbPath)
	require.NoError(t, err)
	defer store.Close()

	project := &templedb.Project{Slug: "embed", Name: "Embedded", DefaultBranch: "main"}
	require.NoError(t, store.CreateProject(ctx, project))

	got, err := store.GetProject(ctx, "embed")
	require.NoError(t, err)
	assert.Equal(t, project.ID, got.ID)
}

func TestOpenHonorsEnvOverride(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "env.db")
	t.Setenv("TEMPLEDB_DB", dbPath)

	store, err := templedb.Open(ctx, "")
	require.NoError(t, err)
	defer store.Close()

	_, err = store.GetProject(ctx, "missing")
	assert.ErrorIs(t, err, templedb.ErrNotFound)
}
