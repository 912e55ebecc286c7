// Package project provides project registration and bulk tree import.
//
// ImportTree is the fast path for getting an existing source tree into
// the registry: every classified file lands as version 1 in a single
// transaction, deduplicated through the content store.
package project

import (
	"context"
	"fmt"

	"github.com/templedb/templedb/internal/config"
	"github.com/templedb/templedb/internal/debug"
	"github.com/templedb/templedb/internal/scanner"
	"github.com/templedb/templedb/internal/storage"
	"github.com/templedb/templedb/internal/types"
)

// Service manages project lifecycle.
type Service struct {
	store storage.Storage
	sc    *scanner.Scanner
}

// New builds a service. A nil scanner gets the default rule table.
func New(store storage.Storage, sc *scanner.Scanner) *Service {
	if sc == nil {
		sc = scanner.New()
	}
	return &Service{store: store, sc: sc}
}

// Create registers a new project and its default branch. An empty
// defaultBranch uses the configured default.
func (s *Service) Create(ctx context.Context, slug, name, defaultBranch string) (*types.Project, error) {
	if defaultBranch == "" {
		defaultBranch = config.DefaultBranch()
	}
	if name == "" {
		name = slug
	}
	project := &types.Project{Slug: slug, Name: name, DefaultBranch: defaultBranch}
	if err := project.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", err, storage.ErrInvalidInput)
	}
	if err := s.store.CreateProject(ctx, project); err != nil {
		return nil, err
	}
	if _, err := s.store.GetOrCreateBranch(ctx, project.ID, defaultBranch); err != nil {
		return nil, err
	}
	return project, nil
}

// Get and List pass through to storage.
func (s *Service) Get(ctx context.Context, slug string) (*types.Project, error) {
	return s.store.GetProject(ctx, slug)
}

// List returns all projects.
func (s *Service) List(ctx context.Context) ([]*types.Project, error) {
	return s.store.ListProjects(ctx)
}

// Delete removes a project and everything it owns.
func (s *Service) Delete(ctx context.Context, slug string) error {
	return s.store.DeleteProject(ctx, slug)
}

// Statistics aggregates per-project counts.
func (s *Service) Statistics(ctx context.Context, projectID int64) (*types.ProjectStatistics, error) {
	return s.store.GetProjectStatistics(ctx, projectID)
}

// ImportResult reports what an ImportTree registered.
type ImportResult struct {
	Files      int
	TotalBytes int64
}

// ImportTree scans root and registers every classified file at version
// 1 in one transaction. Files the rule table does not recognize are
// skipped. Files already registered for the project are
// rejected; ImportTree is for the first load, commits handle the rest.
func (s *Service) ImportTree(ctx context.Context, project *types.Project, root string) (*ImportResult, error) {
	existing, err := s.store.ListFiles(ctx, project.ID, false)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("project %s already has %d files: %w",
			project.Slug, len(existing), storage.ErrConflict)
	}

	scanned, err := s.sc.Scan(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}

	result := &ImportResult{}
	err = s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		for _, sf := range scanned {
			blob, err := tx.PutBlob(ctx, sf.Content)
			if err != nil {
				return err
			}
			fileID, err := tx.UpsertFile(ctx, &types.ProjectFile{
				ProjectID: project.ID,
				Path:      sf.RelativePath,
				Name:      sf.FileName,
				FileType:  sf.FileType,
				LineCount: sf.LinesOfCode,
			})
			if err != nil {
				return err
			}
			if _, err := tx.SetCurrentContent(ctx, fileID, blob.Hash, blob.SizeBytes, sf.LinesOfCode); err != nil {
				return err
			}
			result.Files++
			result.TotalBytes += sf.SizeBytes
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	debug.Infof("imported %d files (%d bytes) into %s from %s",
		result.Files, result.TotalBytes, project.Slug, root)
	return result, nil
}
