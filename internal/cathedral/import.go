package cathedral

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/templedb/templedb/internal/debug"
	"github.com/templedb/templedb/internal/storage"
	"github.com/templedb/templedb/internal/types"
)

// ImportOptions configures one import.
type ImportOptions struct {
	Overwrite bool   // replace an existing project with the same slug
	NewSlug   string // import under a different slug
}

// ImportResult reports what an import created.
type ImportResult struct {
	Project        *types.Project
	Files          int
	Branches       int
	Commits        int
	SkippedCommits int
	Environments   int
}

// Importer deserializes cathedral packages into the store.
type Importer struct {
	store storage.Storage
}

// NewImporter builds an importer.
func NewImporter(store storage.Storage) *Importer {
	return &Importer{store: store}
}

// importedFile pairs a file's package metadata with its blob bytes.
type importedFile struct {
	meta    fileMeta
	content []byte
}

// Import reads a cathedral package (directory or tar container),
// verifies its checksum, and recreates the project in one transaction.
// Either the whole package lands or nothing does.
func (im *Importer) Import(ctx context.Context, packagePath string, opts ImportOptions) (*ImportResult, error) {
	dir, cleanup, err := resolvePackage(packagePath)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	var manifest Manifest
	if err := readJSON(dir, ManifestName, &manifest); err != nil {
		return nil, fmt.Errorf("read package manifest: %w", err)
	}
	if manifest.Format != FormatName {
		return nil, fmt.Errorf("not a cathedral package (format %q): %w", manifest.Format, storage.ErrInvalidInput)
	}

	// Integrity gate: nothing is read into the store before the
	// package-wide checksum verifies.
	computed, err := PackageChecksum(dir)
	if err != nil {
		return nil, err
	}
	if computed != manifest.Checksums.SHA256 {
		return nil, fmt.Errorf("package checksum mismatch: recorded %s, computed %s: %w",
			manifest.Checksums.SHA256, computed, storage.ErrIntegrity)
	}

	var record projectRecord
	if err := readJSON(dir, "project.json", &record); err != nil {
		return nil, fmt.Errorf("read project.json: %w", err)
	}
	project := types.Project{
		Slug:          record.Slug,
		Name:          record.Name,
		RepoURL:       record.RepoURL,
		DefaultBranch: record.DefaultBranch,
		Visibility:    record.Visibility,
		License:       record.License,
	}
	if opts.NewSlug != "" {
		project.Slug = opts.NewSlug
	}

	files, err := readFiles(dir)
	if err != nil {
		return nil, err
	}
	branches, commits, history, err := readVCS(dir)
	if err != nil {
		return nil, err
	}
	envs, err := readEnvironments(dir)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	err = im.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return im.apply(ctx, tx, &project, files, branches, commits, history, envs, opts, result)
	})
	if err != nil {
		return nil, err
	}

	debug.Infof("imported %s: %d files, %d commits (%d deduplicated), %d environments",
		result.Project.Slug, result.Files, result.Commits, result.SkippedCommits, result.Environments)
	return result, nil
}

func (im *Importer) apply(ctx context.Context, tx storage.Transaction, project *types.Project,
	files []importedFile, branches []branchRecord, commits []commitRecord,
	history map[string][]commitFileRecord, envs []*types.Environment,
	opts ImportOptions, result *ImportResult) error {

	target := &types.Project{
		Slug:          project.Slug,
		Name:          project.Name,
		RepoURL:       project.RepoURL,
		DefaultBranch: project.DefaultBranch,
		Visibility:    project.Visibility,
		License:       project.License,
	}
	existing, err := tx.GetProject(ctx, target.Slug)
	switch {
	case err == nil:
		if !opts.Overwrite {
			return fmt.Errorf("project %s already exists: %w", target.Slug, storage.ErrConflict)
		}
		if err := tx.DeleteProjectData(ctx, existing.ID); err != nil {
			return err
		}
		target.ID = existing.ID
	case errors.Is(err, storage.ErrNotFound):
		if err := tx.CreateProject(ctx, target); err != nil {
			return err
		}
	default:
		return err
	}

	// The default branch goes first so it claims the default flag.
	branchByName := make(map[string]*types.Branch, len(branches)+1)
	ensureBranch := func(name string) (*types.Branch, error) {
		if b, ok := branchByName[name]; ok {
			return b, nil
		}
		b, err := tx.GetOrCreateBranch(ctx, target.ID, name)
		if err != nil {
			return nil, err
		}
		branchByName[name] = b
		return b, nil
	}
	if _, err := ensureBranch(target.DefaultBranch); err != nil {
		return err
	}
	for _, br := range branches {
		if _, err := ensureBranch(br.Name); err != nil {
			return err
		}
	}
	result.Branches = len(branchByName)

	fileIDByPath := make(map[string]int64, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		blob, err := tx.PutBlob(ctx, f.content)
		if err != nil {
			return err
		}
		fileID, err := tx.UpsertFile(ctx, &types.ProjectFile{
			ProjectID: target.ID,
			Path:      f.meta.FilePath,
			Name:      path.Base(f.meta.FilePath),
			FileType:  f.meta.FileType,
			LineCount: f.meta.LinesOfCode,
		})
		if err != nil {
			return err
		}
		// The packaged timestamp carries over so a later export of this
		// store writes the same created_at the package holds.
		if err := tx.SetCurrentContentAt(ctx, fileID, blob.Hash,
			f.meta.FileSizeBytes, f.meta.LinesOfCode, f.meta.VersionNumber, f.meta.CreatedAt); err != nil {
			return err
		}
		fileIDByPath[f.meta.FilePath] = fileID
		result.Files++
	}

	commitIDByHash := make(map[string]int64, len(commits))
	for _, cr := range commits {
		if prior, err := tx.GetCommit(ctx, target.ID, cr.Hash); err == nil {
			commitIDByHash[cr.Hash] = prior.ID
			result.SkippedCommits++
			continue
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		branch, err := ensureBranch(cr.Branch)
		if err != nil {
			return err
		}
		commit := &types.Commit{
			ProjectID: target.ID,
			BranchID:  branch.ID,
			Hash:      cr.Hash,
			Author:    cr.Author,
			Message:   cr.Message,
			CreatedAt: cr.CreatedAt,
		}
		if cr.ParentHash != "" {
			if parentID, ok := commitIDByHash[cr.ParentHash]; ok {
				commit.ParentCommitID = &parentID
			}
		}
		commitID, err := tx.InsertCommit(ctx, commit)
		if err != nil {
			return err
		}
		commitIDByHash[cr.Hash] = commitID
		for _, fr := range history[cr.Hash] {
			cf := &types.CommitFile{
				CommitID: commitID,
				Path:     fr.Path,
				Change:   types.ChangeType(fr.Change),
				OldHash:  fr.OldHash,
				NewHash:  fr.NewHash,
			}
			if fileID, ok := fileIDByPath[fr.Path]; ok {
				cf.FileID = &fileID
			}
			if err := tx.InsertCommitFile(ctx, cf); err != nil {
				return err
			}
		}
		result.Commits++
	}

	for _, env := range envs {
		env.ProjectID = target.ID
		if err := tx.UpsertEnvironment(ctx, env); err != nil {
			return err
		}
		result.Environments++
	}

	result.Project = target
	return nil
}

// resolvePackage returns the package directory for a path that may be
// a bare directory or a compressed tar container.
func resolvePackage(packagePath string) (string, func(), error) {
	noop := func() {}
	info, err := os.Stat(packagePath)
	if err != nil {
		return "", noop, fmt.Errorf("open package %s: %w", packagePath, err)
	}
	if info.IsDir() {
		return packagePath, noop, nil
	}

	tmp, err := os.MkdirTemp("", "cathedral-import-*")
	if err != nil {
		return "", noop, fmt.Errorf("create extraction dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(tmp) }
	if err := unpack(packagePath, tmp); err != nil {
		cleanup()
		return "", noop, err
	}

	entries, err := os.ReadDir(tmp)
	if err != nil {
		cleanup()
		return "", noop, fmt.Errorf("read extraction dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() && strings.HasSuffix(entry.Name(), PackageSuffix) {
			return filepath.Join(tmp, entry.Name()), cleanup, nil
		}
	}
	cleanup()
	return "", noop, fmt.Errorf("archive holds no %s directory: %w", PackageSuffix, storage.ErrInvalidInput)
}

// readFiles loads the file manifest and every metadata/blob pair,
// verifying each blob against its recorded hash.
func readFiles(dir string) ([]importedFile, error) {
	var entries []fileEntry
	if err := readJSON(dir, "files/manifest.json", &entries); err != nil {
		return nil, fmt.Errorf("read file manifest: %w", err)
	}
	files := make([]importedFile, 0, len(entries))
	for _, entry := range entries {
		var meta fileMeta
		if err := readJSON(dir, "files/"+entry.FileID+".json", &meta); err != nil {
			return nil, fmt.Errorf("read metadata for %s: %w", entry.FileID, err)
		}
		content, err := os.ReadFile(filepath.Join(dir, "files", entry.FileID+".blob"))
		if err != nil {
			return nil, fmt.Errorf("read blob for %s: %w", entry.FileID, err)
		}
		sum := sha256.Sum256(content)
		if hex.EncodeToString(sum[:]) != meta.HashSHA256 {
			return nil, fmt.Errorf("blob %s does not match its recorded hash: %w",
				entry.FileID, storage.ErrIntegrity)
		}
		files = append(files, importedFile{meta: meta, content: content})
	}
	return files, nil
}

// readVCS loads branches, commits and history. A package exported with
// SkipVCS has none of the three; that is not an error.
func readVCS(dir string) ([]branchRecord, []commitRecord, map[string][]commitFileRecord, error) {
	var branches []branchRecord
	if err := readJSON(dir, "vcs/branches.json", &branches); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, nil, nil
		}
		return nil, nil, nil, fmt.Errorf("read branches: %w", err)
	}
	var commits []commitRecord
	if err := readJSON(dir, "vcs/commits.json", &commits); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, nil, nil, fmt.Errorf("read commits: %w", err)
	}
	var records []historyRecord
	if err := readJSON(dir, "vcs/history.json", &records); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, nil, nil, fmt.Errorf("read history: %w", err)
	}
	history := make(map[string][]commitFileRecord, len(records))
	for _, hr := range records {
		history[hr.CommitHash] = hr.Files
	}
	return branches, commits, history, nil
}

func readEnvironments(dir string) ([]*types.Environment, error) {
	entries, err := os.ReadDir(filepath.Join(dir, "environments"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read environments dir: %w", err)
	}
	var envs []*types.Environment
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		var record struct {
			Name   string `json:"name"`
			Config string `json:"config"`
		}
		if err := readJSON(dir, "environments/"+entry.Name(), &record); err != nil {
			return nil, fmt.Errorf("read environment %s: %w", entry.Name(), err)
		}
		envs = append(envs, &types.Environment{Name: record.Name, Config: record.Config})
	}
	return envs, nil
}
