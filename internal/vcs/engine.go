// Package vcs implements branching, staging, commits and history on
// top of the storage layer.
//
// The staging index is the staged flag on WorkingState rows; a commit
// captures exactly the rows staged at the moment it begins. Unstaged
// changes stay in WorkingState untouched.
package vcs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/templedb/templedb/internal/debug"
	"github.com/templedb/templedb/internal/scanner"
	"github.com/templedb/templedb/internal/storage"
	"github.com/templedb/templedb/internal/types"
)

// Engine runs version control operations for one store.
type Engine struct {
	store storage.Storage
	sc    *scanner.Scanner
}

// New builds an engine. A nil scanner gets the default rule table.
func New(store storage.Storage, sc *scanner.Scanner) *Engine {
	if sc == nil {
		sc = scanner.New()
	}
	return &Engine{store: store, sc: sc}
}

// CommitHash derives the opaque 16-character commit hash from the
// commit's identifying fields and wall time.
func CommitHash(slug, branch, message string, at time.Time) string {
	sum := sha256.Sum256([]byte(slug + branch + message + at.Format(time.RFC3339Nano)))
	return strings.ToUpper(hex.EncodeToString(sum[:])[:16])
}

// Branch returns the named branch, creating it if absent. The first
// branch of a project becomes its default.
func (e *Engine) Branch(ctx context.Context, projectID int64, name string) (*types.Branch, error) {
	return e.store.GetOrCreateBranch(ctx, projectID, name)
}

// Stage marks matching changed files for the next commit. Patterns use
// doublestar glob syntax; no patterns means everything changed.
// Returns the number of rows newly staged.
func (e *Engine) Stage(ctx context.Context, projectID, branchID int64, patterns []string) (int, error) {
	return e.setStaged(ctx, projectID, branchID, patterns, true)
}

// Unstage removes matching files from the staging index.
func (e *Engine) Unstage(ctx context.Context, projectID, branchID int64, patterns []string) (int, error) {
	return e.setStaged(ctx, projectID, branchID, patterns, false)
}

func (e *Engine) setStaged(ctx context.Context, projectID, branchID int64, patterns []string, staged bool) (int, error) {
	entries, err := e.store.ListWorkingState(ctx, projectID, branchID, false)
	if err != nil {
		return 0, err
	}
	var paths []string
	for _, entry := range entries {
		if entry.State == types.StateUnmodified {
			continue
		}
		ok, err := matchAny(patterns, entry.Path)
		if err != nil {
			return 0, err
		}
		if ok {
			paths = append(paths, entry.Path)
		}
	}
	return e.store.SetStaged(ctx, projectID, branchID, paths, staged)
}

func matchAny(patterns []string, path string) (bool, error) {
	if len(patterns) == 0 {
		return true, nil
	}
	for _, p := range patterns {
		ok, err := doublestar.Match(p, path)
		if err != nil {
			return false, fmt.Errorf("pattern %q: %w", p, storage.ErrInvalidInput)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// CommitResult reports what a commit captured.
type CommitResult struct {
	Commit   *types.Commit
	Added    int
	Modified int
	Deleted  int
}

// CreateCommit materializes the staged changes of (project, branch)
// into one commit, reading file content from root. Everything from the
// commit row to the working-state cleanup lands in one transaction.
func (e *Engine) CreateCommit(ctx context.Context, project *types.Project, branch *types.Branch, author, message, root string) (*CommitResult, error) {
	if message == "" {
		return nil, fmt.Errorf("commit message is required: %w", storage.ErrInvalidInput)
	}

	staged, err := e.store.ListWorkingState(ctx, project.ID, branch.ID, true)
	if err != nil {
		return nil, err
	}
	if len(staged) == 0 {
		return nil, fmt.Errorf("nothing staged to commit: %w", storage.ErrInvalidInput)
	}

	now := time.Now().UTC()
	commit := &types.Commit{
		ProjectID: project.ID,
		BranchID:  branch.ID,
		Hash:      CommitHash(project.Slug, branch.Name, message, now),
		Author:    author,
		Message:   message,
		CreatedAt: now,
	}
	if parent, err := e.store.LatestCommit(ctx, project.ID, branch.ID); err == nil {
		commit.ParentCommitID = &parent.ID
	}

	result := &CommitResult{Commit: commit}
	err = e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		commitID, err := tx.InsertCommit(ctx, commit)
		if err != nil {
			return err
		}

		paths := make([]string, 0, len(staged))
		for _, entry := range staged {
			paths = append(paths, entry.Path)
			if err := e.applyChange(ctx, tx, commitID, entry, root); err != nil {
				return err
			}
			switch entry.State {
			case types.StateAdded:
				result.Added++
			case types.StateModified:
				result.Modified++
			case types.StateDeleted:
				result.Deleted++
			}
		}
		return tx.ClearCommittedWorkingState(ctx, project.ID, branch.ID, paths)
	})
	if err != nil {
		return nil, err
	}
	debug.Infof("commit %s on %s/%s: %d added, %d modified, %d deleted",
		commit.Hash, project.Slug, branch.Name, result.Added, result.Modified, result.Deleted)
	return result, nil
}

func (e *Engine) applyChange(ctx context.Context, tx storage.Transaction, commitID int64, entry *types.WorkingState, root string) error {
	cf := &types.CommitFile{
		CommitID: commitID,
		Path:     entry.Path,
		FileID:   entry.FileID,
	}

	switch entry.State {
	case types.StateAdded, types.StateModified:
		content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(entry.Path)))
		if err != nil {
			return fmt.Errorf("read staged file %s: %w", entry.Path, err)
		}
		blob, err := tx.PutBlob(ctx, content)
		if err != nil {
			return err
		}
		// The blob already counted lines when it was stored; an
		// unterminated trailing line counts as a line there too.
		lineCount := blob.LineCount()

		if entry.State == types.StateAdded {
			fileID, err := tx.UpsertFile(ctx, &types.ProjectFile{
				ProjectID: entry.ProjectID,
				Path:      entry.Path,
				Name:      filepath.Base(entry.Path),
				FileType:  e.sc.Classify(entry.Path, content),
				LineCount: lineCount,
			})
			if err != nil {
				return err
			}
			cf.FileID = &fileID
			cf.Change = types.ChangeAdded
			cf.NewHash = blob.Hash
			if _, err := tx.SetCurrentContent(ctx, fileID, blob.Hash, blob.SizeBytes, lineCount); err != nil {
				return err
			}
		} else {
			file, err := tx.GetFileByPath(ctx, entry.ProjectID, entry.Path)
			if err != nil {
				return err
			}
			cf.FileID = &file.ID
			cf.Change = types.ChangeModified
			cf.OldHash = file.CurrentHash
			cf.NewHash = blob.Hash
			if _, err := tx.SetCurrentContent(ctx, file.ID, blob.Hash, blob.SizeBytes, lineCount); err != nil {
				return err
			}
		}

	case types.StateDeleted:
		if entry.FileID == nil {
			return fmt.Errorf("deleted entry %s has no file id: %w", entry.Path, storage.ErrIntegrity)
		}
		cf.Change = types.ChangeDeleted
		cf.OldHash = entry.ContentHash
		if err := tx.MarkFileDeleted(ctx, *entry.FileID); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unexpected staged state %q for %s: %w",
			entry.State, entry.Path, storage.ErrIntegrity)
	}

	return tx.InsertCommitFile(ctx, cf)
}

// History returns commits newest-first, optionally scoped to a branch
// by name and capped at limit (0 = no cap).
func (e *Engine) History(ctx context.Context, projectID int64, branchName string, limit int) ([]*types.Commit, error) {
	var branchID *int64
	if branchName != "" {
		branch, err := e.store.GetBranch(ctx, projectID, branchName)
		if err != nil {
			return nil, err
		}
		branchID = &branch.ID
	}
	return e.store.ListCommits(ctx, projectID, branchID, limit)
}
