// Package checkout materializes a project's current files into a
// filesystem directory and records snapshots for later conflict
// detection.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/templedb/templedb/internal/debug"
	"github.com/templedb/templedb/internal/storage"
	"github.com/templedb/templedb/internal/types"
)

// ErrTargetNotEmpty is returned when the checkout target directory
// already has contents and force was not requested.
var ErrTargetNotEmpty = fmt.Errorf("checkout target is not empty: %w", storage.ErrConflict)

// LockFileName is the advisory lock taken in a workspace while it is
// being materialized or committed.
const LockFileName = ".templedb.lock"

// Manager materializes and tracks checkouts.
type Manager struct {
	store storage.Storage
}

// New builds a checkout manager.
func New(store storage.Storage) *Manager {
	return &Manager{store: store}
}

// Result reports what a checkout wrote.
type Result struct {
	Checkout     *types.Checkout
	FilesWritten int
	BytesWritten int64
}

// Checkout writes every active file of the project to targetDir and
// replaces the checkout's snapshot set with one row per written file.
// A non-empty target is refused unless force is set.
func (m *Manager) Checkout(ctx context.Context, project *types.Project, branch *types.Branch, targetDir string, force bool) (*Result, error) {
	targetDir, err := filepath.Abs(targetDir)
	if err != nil {
		return nil, fmt.Errorf("resolve checkout target: %w", err)
	}

	if !force {
		empty, err := dirEmpty(targetDir)
		if err != nil {
			return nil, err
		}
		if !empty {
			return nil, fmt.Errorf("%s: %w", targetDir, ErrTargetNotEmpty)
		}
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkout target: %w", err)
	}

	// Advisory lock held for the duration of materialization so a
	// concurrent commit from the same workspace waits.
	lock := flock.New(filepath.Join(targetDir, LockFileName))
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("lock workspace: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	files, err := m.store.ListFiles(ctx, project.ID, true)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	var snapshots []*types.CheckoutSnapshot
	for _, file := range files {
		if file.Status != types.FileActive {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if file.CurrentHash == "" {
			return nil, fmt.Errorf("active file %s has no current content: %w",
				file.Path, storage.ErrIntegrity)
		}
		blob, err := m.store.GetBlob(ctx, file.CurrentHash)
		if err != nil {
			return nil, err
		}
		n, err := writeFile(targetDir, file.Path, blob)
		if err != nil {
			return nil, err
		}
		result.FilesWritten++
		result.BytesWritten += n
		snapshots = append(snapshots, &types.CheckoutSnapshot{
			FileID:      file.ID,
			ContentHash: file.CurrentHash,
			Version:     file.CurrentVersion,
		})
	}

	checkout := &types.Checkout{
		ProjectID: project.ID,
		BranchID:  branch.ID,
		Path:      targetDir,
	}
	checkoutID, err := m.store.UpsertCheckout(ctx, checkout)
	if err != nil {
		return nil, err
	}
	for _, snap := range snapshots {
		snap.CheckoutID = checkoutID
	}
	if err := m.store.ReplaceSnapshots(ctx, checkoutID, snapshots); err != nil {
		return nil, err
	}

	result.Checkout = checkout
	debug.Infof("checkout %s: wrote %d files (%d bytes) to %s",
		project.Slug, result.FilesWritten, result.BytesWritten, targetDir)
	return result, nil
}

func writeFile(root, relPath string, blob *types.ContentBlob) (int64, error) {
	path := filepath.Join(root, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create parents of %s: %w", relPath, err)
	}
	data := blob.Bytes()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, fmt.Errorf("write %s: %w", relPath, err)
	}
	return int64(len(data)), nil
}

func dirEmpty(path string) (bool, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("open checkout target: %w", err)
	}
	defer func() { _ = f.Close() }()

	_, err = f.Readdirnames(1)
	if err == io.EOF {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("read checkout target: %w", err)
	}
	return false, nil
}

// List returns the project's recorded checkouts.
func (m *Manager) List(ctx context.Context, projectID int64) ([]*types.Checkout, error) {
	return m.store.ListCheckouts(ctx, projectID)
}

// FindStale returns checkouts whose directory no longer exists.
func (m *Manager) FindStale(ctx context.Context, projectID int64) ([]*types.Checkout, error) {
	checkouts, err := m.store.ListCheckouts(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var stale []*types.Checkout
	for _, c := range checkouts {
		if _, err := os.Stat(c.Path); errors.Is(err, os.ErrNotExist) {
			stale = append(stale, c)
		}
	}
	return stale, nil
}

// Delete removes a checkout record; its snapshots cascade away. The
// directory on disk is left alone.
func (m *Manager) Delete(ctx context.Context, checkoutID int64) error {
	return m.store.DeleteCheckout(ctx, checkoutID)
}
