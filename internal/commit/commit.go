// Package commit implements the workspace commit engine: rescan,
// classify, detect conflicts against checkout snapshots, and persist
// atomically.
//
// Conflict detection is snapshot based, not lock based: each checkout
// remembers the version of every file it materialized, and a commit
// aborts when the registry has advanced past that version since. The
// writer whose transaction lands first wins.
package commit

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofrs/flock"

	"github.com/templedb/templedb/internal/checkout"
	"github.com/templedb/templedb/internal/debug"
	"github.com/templedb/templedb/internal/scanner"
	"github.com/templedb/templedb/internal/storage"
	"github.com/templedb/templedb/internal/telemetry"
	"github.com/templedb/templedb/internal/types"
	"github.com/templedb/templedb/internal/vcs"
)

// Strategy selects conflict resolution behavior.
type Strategy string

// Conflict strategies.
const (
	StrategyAbort  Strategy = "abort"
	StrategyForce  Strategy = "force"
	StrategyRebase Strategy = "rebase"
)

// FileConflict names one file whose registry version advanced past the
// committing workspace's snapshot.
type FileConflict struct {
	Path           string
	YourVersion    int
	CurrentVersion int
}

// ConflictError carries the full conflict list of an aborted commit.
// It matches storage.ErrConflict under errors.Is.
type ConflictError struct {
	Conflicts []FileConflict
}

func (e *ConflictError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "commit conflicts on %d file(s):", len(e.Conflicts))
	for _, c := range e.Conflicts {
		fmt.Fprintf(&b, " %s (your version %d, current %d)", c.Path, c.YourVersion, c.CurrentVersion)
	}
	return b.String()
}

// Is reports conflict-kind identity for errors.Is.
func (e *ConflictError) Is(target error) bool {
	return target == storage.ErrConflict
}

// Engine runs workspace commits.
type Engine struct {
	store storage.Storage
	sc    *scanner.Scanner
}

// New builds a commit engine. A nil scanner gets the default rules.
func New(store storage.Storage, sc *scanner.Scanner) *Engine {
	if sc == nil {
		sc = scanner.New()
	}
	return &Engine{store: store, sc: sc}
}

// Options configures one commit.
type Options struct {
	Author   string
	Message  string
	Force    bool
	Strategy Strategy // default abort
}

// Result reports what a commit persisted.
type Result struct {
	Commit   *types.Commit
	Added    int
	Modified int
	Deleted  int
}

// change is one classified difference between workspace and registry.
type change struct {
	path    string
	kind    types.ChangeType
	file    *types.ProjectFile // nil for added
	scanned *scanner.ScannedFile
}

// Commit rescans workspaceDir, classifies changes against the
// registry, detects version-skew conflicts through the workspace's
// checkout snapshots, and persists everything in one transaction.
func (e *Engine) Commit(ctx context.Context, project *types.Project, workspaceDir string, opts Options) (*Result, error) {
	if opts.Message == "" {
		return nil, fmt.Errorf("commit message is required: %w", storage.ErrInvalidInput)
	}
	switch opts.Strategy {
	case "", StrategyAbort, StrategyForce, StrategyRebase:
	default:
		return nil, fmt.Errorf("unknown strategy %q: %w", opts.Strategy, storage.ErrInvalidInput)
	}

	workspaceDir, err := filepath.Abs(workspaceDir)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	co, err := e.store.GetCheckout(ctx, project.ID, workspaceDir)
	if err != nil {
		return nil, fmt.Errorf("workspace %s is not a recorded checkout: %w", workspaceDir, err)
	}
	branch, err := e.branchByID(ctx, project.ID, co.BranchID)
	if err != nil {
		return nil, err
	}

	// Hold the workspace lock so checkout and commit of the same
	// directory never interleave.
	lock := flock.New(filepath.Join(workspaceDir, checkout.LockFileName))
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("lock workspace: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	changes, err := e.classify(ctx, project.ID, workspaceDir)
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return nil, fmt.Errorf("no changes to commit: %w", storage.ErrInvalidInput)
	}

	conflicts, err := e.detectConflicts(ctx, co.ID, changes)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 && !opts.Force {
		switch opts.Strategy {
		case StrategyForce:
			// Proceed, overwriting.
		case StrategyRebase:
			return nil, fmt.Errorf("rebase strategy: %w", storage.ErrNotImplemented)
		default:
			return nil, &ConflictError{Conflicts: conflicts}
		}
	}

	now := time.Now().UTC()
	commit := &types.Commit{
		ProjectID: project.ID,
		BranchID:  branch.ID,
		Hash:      vcs.CommitHash(project.Slug, branch.Name, opts.Message, now),
		Author:    opts.Author,
		Message:   opts.Message,
		CreatedAt: now,
	}
	if parent, err := e.store.LatestCommit(ctx, project.ID, branch.ID); err == nil {
		commit.ParentCommitID = &parent.ID
	}

	result := &Result{Commit: commit}
	err = e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		commitID, err := tx.InsertCommit(ctx, commit)
		if err != nil {
			return err
		}
		for _, ch := range changes {
			if err := e.persistChange(ctx, tx, project.ID, commitID, co.ID, ch, result); err != nil {
				return err
			}
		}
		return tx.TouchCheckout(ctx, co.ID)
	})
	if err != nil {
		return nil, err
	}

	telemetry.RecordCommit(ctx, result.Added+result.Modified)
	debug.Infof("commit %s in %s: %d added, %d modified, %d deleted",
		commit.Hash, workspaceDir, result.Added, result.Modified, result.Deleted)
	return result, nil
}

func (e *Engine) branchByID(ctx context.Context, projectID, branchID int64) (*types.Branch, error) {
	branches, err := e.store.ListBranches(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for _, b := range branches {
		if b.ID == branchID {
			return b, nil
		}
	}
	return nil, fmt.Errorf("branch %d: %w", branchID, storage.ErrNotFound)
}

// classify compares a fresh scan against the registry's current hashes.
// Changes come back sorted by path.
func (e *Engine) classify(ctx context.Context, projectID int64, root string) ([]*change, error) {
	scanned, err := e.sc.Scan(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("rescan workspace: %w", err)
	}
	registered, err := e.store.ListFiles(ctx, projectID, true)
	if err != nil {
		return nil, err
	}
	active := make(map[string]*types.ProjectFile, len(registered))
	for _, f := range registered {
		if f.Status == types.FileActive {
			active[f.Path] = f
		}
	}

	var changes []*change
	onDisk := make(map[string]bool, len(scanned))
	for _, sf := range scanned {
		onDisk[sf.RelativePath] = true
		reg, ok := active[sf.RelativePath]
		switch {
		case !ok:
			changes = append(changes, &change{path: sf.RelativePath, kind: types.ChangeAdded, scanned: sf})
		case reg.CurrentHash != sf.Hash:
			changes = append(changes, &change{path: sf.RelativePath, kind: types.ChangeModified, file: reg, scanned: sf})
		}
	}
	for _, f := range registered {
		if f.Status == types.FileActive && !onDisk[f.Path] {
			changes = append(changes, &change{path: f.Path, kind: types.ChangeDeleted, file: f})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].path < changes[j].path })
	return changes, nil
}

// detectConflicts compares the checkout's snapshot version of every
// modified file against the registry's current version.
func (e *Engine) detectConflicts(ctx context.Context, checkoutID int64, changes []*change) ([]FileConflict, error) {
	var conflicts []FileConflict
	for _, ch := range changes {
		if ch.kind != types.ChangeModified {
			continue
		}
		snap, err := e.store.GetSnapshot(ctx, checkoutID, ch.file.ID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("no snapshot for modified file %s: %w",
				ch.path, storage.ErrIntegrity)
		}
		if err != nil {
			return nil, err
		}
		if snap.Version != ch.file.CurrentVersion {
			conflicts = append(conflicts, FileConflict{
				Path:           ch.path,
				YourVersion:    snap.Version,
				CurrentVersion: ch.file.CurrentVersion,
			})
		}
	}
	return conflicts, nil
}

func (e *Engine) persistChange(ctx context.Context, tx storage.Transaction, projectID, commitID, checkoutID int64, ch *change, result *Result) error {
	cf := &types.CommitFile{CommitID: commitID, Path: ch.path, Change: ch.kind}

	switch ch.kind {
	case types.ChangeAdded, types.ChangeModified:
		blob, err := tx.PutBlob(ctx, ch.scanned.Content)
		if err != nil {
			return err
		}
		lineCount := 0
		if utf8.Valid(ch.scanned.Content) {
			lineCount = ch.scanned.LinesOfCode
		}

		var fileID int64
		if ch.kind == types.ChangeAdded {
			fileID, err = tx.UpsertFile(ctx, &types.ProjectFile{
				ProjectID: projectID,
				Path:      ch.path,
				Name:      ch.scanned.FileName,
				FileType:  ch.scanned.FileType,
				LineCount: lineCount,
			})
			if err != nil {
				return err
			}
			cf.NewHash = blob.Hash
			result.Added++
		} else {
			fileID = ch.file.ID
			cf.OldHash = ch.file.CurrentHash
			cf.NewHash = blob.Hash
			result.Modified++
		}
		cf.FileID = &fileID

		version, err := tx.SetCurrentContent(ctx, fileID, blob.Hash, blob.SizeBytes, lineCount)
		if err != nil {
			return err
		}
		if err := tx.UpsertSnapshot(ctx, &types.CheckoutSnapshot{
			CheckoutID:  checkoutID,
			FileID:      fileID,
			ContentHash: blob.Hash,
			Version:     version,
		}); err != nil {
			return err
		}

	case types.ChangeDeleted:
		cf.FileID = &ch.file.ID
		cf.OldHash = ch.file.CurrentHash
		if err := tx.MarkFileDeleted(ctx, ch.file.ID); err != nil {
			return err
		}
		if err := tx.DeleteSnapshot(ctx, checkoutID, ch.file.ID); err != nil {
			return err
		}
		result.Deleted++
	}

	return tx.InsertCommitFile(ctx, cf)
}
