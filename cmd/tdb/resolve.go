package main

import (
	"fmt"

	"github.com/templedb/templedb/internal/storage"
	"github.com/templedb/templedb/internal/types"
)

// resolveProjectBranch looks up a project by slug and one of its
// branches by name, defaulting to the project's default branch.
func resolveProjectBranch(slug, branchName string) (*types.Project, *types.Branch, error) {
	p, err := store.GetProject(rootCtx, slug)
	if err != nil {
		return nil, nil, err
	}
	if branchName == "" {
		branchName = p.DefaultBranch
	}
	b, err := store.GetBranch(rootCtx, p.ID, branchName)
	if err != nil {
		return nil, nil, fmt.Errorf("branch %s: %w", branchName, err)
	}
	return p, b, nil
}

// parsePriority validates a --priority flag value; empty means unset.
func parsePriority(s string) (*types.Priority, error) {
	if s == "" {
		return nil, nil
	}
	p := types.Priority(s)
	if !p.IsValid() {
		return nil, fmt.Errorf("invalid priority %q (critical|high|medium|low): %w",
			s, storage.ErrInvalidInput)
	}
	return &p, nil
}
