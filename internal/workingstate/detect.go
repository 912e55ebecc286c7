// Package workingstate computes the diff between a project workspace
// on disk and the file registry's current content.
//
// Detection rebuilds the per-branch WorkingState index from scratch on
// every pass; the index is ephemeral and never trusted across scans.
package workingstate

import (
	"context"
	"fmt"

	"github.com/templedb/templedb/internal/scanner"
	"github.com/templedb/templedb/internal/storage"
	"github.com/templedb/templedb/internal/types"
)

// Detector compares workspaces against the registry.
type Detector struct {
	store   storage.Storage
	scanner *scanner.Scanner
}

// New builds a detector. A nil scanner gets the default rule table.
func New(store storage.Storage, sc *scanner.Scanner) *Detector {
	if sc == nil {
		sc = scanner.New()
	}
	return &Detector{store: store, scanner: sc}
}

// Result summarizes one detection pass.
type Result struct {
	Added      int
	Modified   int
	Deleted    int
	Unmodified int
	Entries    []*types.WorkingState
}

// Changed reports whether the pass found any non-unmodified entries.
func (r *Result) Changed() bool {
	return r.Added+r.Modified+r.Deleted > 0
}

// Detect scans root, classifies every surviving file against the
// registry's current hashes, and atomically replaces the WorkingState
// rows for (project, branch). All rows are written unstaged.
func (d *Detector) Detect(ctx context.Context, projectID, branchID int64, root string) (*Result, error) {
	scanned, err := d.scanner.Scan(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("scan workspace: %w", err)
	}

	registered, err := d.store.ListFiles(ctx, projectID, true)
	if err != nil {
		return nil, err
	}
	byPath := make(map[string]*types.ProjectFile, len(registered))
	for _, f := range registered {
		if f.Status == types.FileActive {
			byPath[f.Path] = f
		}
	}

	result := &Result{}
	onDisk := make(map[string]bool, len(scanned))
	for _, sf := range scanned {
		onDisk[sf.RelativePath] = true
		entry := &types.WorkingState{
			ProjectID:   projectID,
			BranchID:    branchID,
			Path:        sf.RelativePath,
			ContentHash: sf.Hash,
		}
		switch reg, ok := byPath[sf.RelativePath]; {
		case !ok:
			entry.State = types.StateAdded
			result.Added++
		case reg.CurrentHash != sf.Hash:
			entry.FileID = &reg.ID
			entry.State = types.StateModified
			result.Modified++
		default:
			entry.FileID = &reg.ID
			entry.State = types.StateUnmodified
			result.Unmodified++
		}
		result.Entries = append(result.Entries, entry)
	}

	// Active registry files missing from disk.
	for _, f := range registered {
		if f.Status != types.FileActive || onDisk[f.Path] {
			continue
		}
		fileID := f.ID
		result.Entries = append(result.Entries, &types.WorkingState{
			ProjectID:   projectID,
			BranchID:    branchID,
			FileID:      &fileID,
			Path:        f.Path,
			State:       types.StateDeleted,
			ContentHash: f.CurrentHash,
		})
		result.Deleted++
	}

	if err := d.store.ReplaceWorkingState(ctx, projectID, branchID, result.Entries); err != nil {
		return nil, err
	}
	return result, nil
}
