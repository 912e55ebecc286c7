// Package templedb provides a minimal public API for embedding the
// project store in other Go programs.
//
// Most callers want Open, which resolves the database path through
// config and returns the full storage interface. The subpackages under
// internal/ hold the engines (checkout, commit, cathedral,
// coordinator); this package re-exports only the types and
// constructors an embedder needs.
package templedb

import (
	"context"

	"github.com/templedb/templedb/internal/config"
	"github.com/templedb/templedb/internal/storage"
	"github.com/templedb/templedb/internal/storage/sqlite"
	"github.com/templedb/templedb/internal/types"
)

// Version is the templedb release version.
const Version = "0.4.0"

// Core types for working with projects and their files.
type (
	Project     = types.Project
	Branch      = types.Branch
	Commit      = types.Commit
	ProjectFile = types.ProjectFile
	ContentBlob = types.ContentBlob
	WorkItem    = types.WorkItem
	Priority    = types.Priority
)

// Work item status constants.
const (
	StatusPending    = types.StatusPending
	StatusAssigned   = types.StatusAssigned
	StatusInProgress = types.StatusInProgress
	StatusBlocked    = types.StatusBlocked
	StatusCompleted  = types.StatusCompleted
	StatusCancelled  = types.StatusCancelled
)

// Sentinel errors every operation maps into.
var (
	ErrNotFound     = storage.ErrNotFound
	ErrConflict     = storage.ErrConflict
	ErrIntegrity    = storage.ErrIntegrity
	ErrInvalidInput = storage.ErrInvalidInput
)

// Storage is the full persistence interface.
type Storage = storage.Storage

// Open opens (or creates) a templedb database at path. An empty path
// uses the configured default, honoring TEMPLEDB_DB.
func Open(ctx context.Context, path string) (Storage, error) {
	if path == "" {
		path = config.DBPath()
	}
	return sqlite.New(ctx, path)
}
