package cathedral

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/templedb/templedb/internal/debug"
	"github.com/templedb/templedb/internal/storage"
	"github.com/templedb/templedb/internal/storage/sqlite"
	"github.com/templedb/templedb/internal/telemetry"
)

// ExportOptions configures one export.
type ExportOptions struct {
	Compression      Compression // empty means none
	ExcludeGlobs     []string    // doublestar patterns matched against file paths
	SkipVCS          bool
	SkipEnvironments bool
	Overwrite        bool
	CreatedBy        string
}

// ExportResult reports what an export wrote.
type ExportResult struct {
	Path       string // package directory or archive
	Checksum   string
	Files      int
	Commits    int
	Branches   int
	TotalBytes int64
}

// Exporter serializes projects into cathedral packages.
type Exporter struct {
	store storage.Storage
}

// NewExporter builds an exporter.
func NewExporter(store storage.Storage) *Exporter {
	return &Exporter{store: store}
}

// Export writes the project's full state as a `<slug>.cathedral`
// package under outDir, then optionally compresses it into a tar
// container. The manifest is written last with the package checksum
// embedded.
func (e *Exporter) Export(ctx context.Context, slug, outDir string, opts ExportOptions) (*ExportResult, error) {
	project, err := e.store.GetProject(ctx, slug)
	if err != nil {
		return nil, err
	}
	for _, pattern := range opts.ExcludeGlobs {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("bad exclude pattern %q: %w", pattern, storage.ErrInvalidInput)
		}
	}

	pkgDir := filepath.Join(outDir, slug+PackageSuffix)
	if _, err := os.Stat(pkgDir); err == nil {
		if !opts.Overwrite {
			return nil, fmt.Errorf("package %s already exists: %w", pkgDir, storage.ErrConflict)
		}
		if err := os.RemoveAll(pkgDir); err != nil {
			return nil, fmt.Errorf("clear existing package: %w", err)
		}
	}
	if err := os.MkdirAll(pkgDir, 0o755); err != nil {
		return nil, fmt.Errorf("create package dir: %w", err)
	}

	record := projectRecord{
		Slug:          project.Slug,
		Name:          project.Name,
		RepoURL:       project.RepoURL,
		DefaultBranch: project.DefaultBranch,
		Visibility:    project.Visibility,
		License:       project.License,
	}
	if err := writeJSON(pkgDir, "project.json", record); err != nil {
		return nil, err
	}

	result := &ExportResult{}
	if err := e.exportFiles(ctx, project.ID, pkgDir, opts.ExcludeGlobs, result); err != nil {
		return nil, err
	}
	hasEnvironments := false
	if !opts.SkipVCS {
		if err := e.exportVCS(ctx, project.ID, pkgDir, result); err != nil {
			return nil, err
		}
	}
	if !opts.SkipEnvironments {
		hasEnvironments, err = e.exportEnvironments(ctx, project.ID, pkgDir)
		if err != nil {
			return nil, err
		}
	}

	checksum, err := PackageChecksum(pkgDir)
	if err != nil {
		return nil, err
	}
	manifest := Manifest{
		Version:   FormatVersion,
		Format:    FormatName,
		CreatedAt: time.Now().UTC(),
		CreatedBy: opts.CreatedBy,
		Project: ManifestProject{
			Slug:       project.Slug,
			Name:       project.Name,
			Visibility: project.Visibility,
			License:    project.License,
		},
		Source: ManifestSource{
			TempleDBVersion: templedbVersion,
			SchemaVersion:   sqlite.SchemaVersion(),
			ExportMethod:    "full",
		},
		Contents: ManifestContents{
			Files:           result.Files,
			Commits:         result.Commits,
			Branches:        result.Branches,
			TotalSizeBytes:  result.TotalBytes,
			HasEnvironments: hasEnvironments,
		},
		Checksums: ManifestChecksums{SHA256: checksum, Algorithm: checksumAlgorithm},
	}
	if err := writeJSON(pkgDir, ManifestName, manifest); err != nil {
		return nil, err
	}

	result.Path = pkgDir
	result.Checksum = checksum
	if opts.Compression != "" && opts.Compression != CompressionNone {
		archive := pkgDir + archiveSuffix(opts.Compression)
		if err := pack(pkgDir, archive, opts.Compression); err != nil {
			return nil, err
		}
		if err := os.RemoveAll(pkgDir); err != nil {
			return nil, fmt.Errorf("remove staging dir: %w", err)
		}
		result.Path = archive
	}

	telemetry.RecordExport(ctx)
	debug.Infof("exported %s: %d files, %d commits, %d bytes to %s",
		slug, result.Files, result.Commits, result.TotalBytes, result.Path)
	return result, nil
}

// exportFiles reads all file data in one batched join and writes the
// per-file metadata and blob pairs, renumbered `file-NNNNNN` by path.
func (e *Exporter) exportFiles(ctx context.Context, projectID int64, pkgDir string, excludes []string, result *ExportResult) error {
	exports, err := e.store.ListFileExports(ctx, projectID)
	if err != nil {
		return err
	}

	var entries []fileEntry
	seq := 0
	for _, fe := range exports {
		if err := ctx.Err(); err != nil {
			return err
		}
		if matchesAny(excludes, fe.Path) {
			continue
		}
		seq++
		id := fmt.Sprintf("file-%06d", seq)
		meta := fileMeta{
			FileID:        id,
			FilePath:      fe.Path,
			FileType:      fe.FileType,
			LinesOfCode:   fe.LineCount,
			FileSizeBytes: fe.SizeBytes,
			HashSHA256:    fe.Hash,
			VersionNumber: fe.Version,
			CreatedAt:     fe.CreatedAt,
			Metadata:      map[string]string{},
		}
		if err := writeJSON(pkgDir, "files/"+id+".json", meta); err != nil {
			return err
		}
		blobPath := filepath.Join(pkgDir, "files", id+".blob")
		if err := os.WriteFile(blobPath, fe.Content, 0o644); err != nil {
			return fmt.Errorf("write blob for %s: %w", fe.Path, err)
		}
		entries = append(entries, fileEntry{FileID: id, Path: fe.Path, Hash: fe.Hash})
		result.TotalBytes += fe.SizeBytes
	}
	result.Files = len(entries)
	if entries == nil {
		entries = []fileEntry{}
	}
	return writeJSON(pkgDir, "files/manifest.json", entries)
}

func (e *Exporter) exportVCS(ctx context.Context, projectID int64, pkgDir string, result *ExportResult) error {
	branches, err := e.store.ListBranches(ctx, projectID)
	if err != nil {
		return err
	}
	branchRecords := make([]branchRecord, 0, len(branches))
	for _, b := range branches {
		branchRecords = append(branchRecords, branchRecord{Name: b.Name, IsDefault: b.IsDefault})
	}
	if err := writeJSON(pkgDir, "vcs/branches.json", branchRecords); err != nil {
		return err
	}
	result.Branches = len(branchRecords)

	commits, err := e.store.ListCommits(ctx, projectID, nil, 0)
	if err != nil {
		return err
	}
	// ListCommits is newest-first; the package stores oldest-first so
	// import can replay parent links in order.
	hashByID := make(map[int64]string, len(commits))
	for _, c := range commits {
		hashByID[c.ID] = c.Hash
	}
	commitRecords := make([]commitRecord, 0, len(commits))
	historyRecords := make([]historyRecord, 0, len(commits))
	for i := len(commits) - 1; i >= 0; i-- {
		c := commits[i]
		cr := commitRecord{
			Hash:      c.Hash,
			Branch:    c.BranchName,
			Author:    c.Author,
			Message:   c.Message,
			CreatedAt: c.CreatedAt,
		}
		if c.ParentCommitID != nil {
			cr.ParentHash = hashByID[*c.ParentCommitID]
		}
		commitRecords = append(commitRecords, cr)

		files, err := e.store.GetCommitFiles(ctx, c.ID)
		if err != nil {
			return err
		}
		hr := historyRecord{CommitHash: c.Hash, Files: make([]commitFileRecord, 0, len(files))}
		for _, cf := range files {
			hr.Files = append(hr.Files, commitFileRecord{
				Path:    cf.Path,
				Change:  string(cf.Change),
				OldHash: cf.OldHash,
				NewHash: cf.NewHash,
			})
		}
		historyRecords = append(historyRecords, hr)
	}
	if err := writeJSON(pkgDir, "vcs/commits.json", commitRecords); err != nil {
		return err
	}
	result.Commits = len(commitRecords)
	return writeJSON(pkgDir, "vcs/history.json", historyRecords)
}

func (e *Exporter) exportEnvironments(ctx context.Context, projectID int64, pkgDir string) (bool, error) {
	envs, err := e.store.ListEnvironments(ctx, projectID)
	if err != nil {
		return false, err
	}
	for _, env := range envs {
		record := struct {
			Name   string `json:"name"`
			Config string `json:"config"`
		}{Name: env.Name, Config: env.Config}
		if err := writeJSON(pkgDir, "environments/"+env.Name+".json", record); err != nil {
			return false, err
		}
	}
	return len(envs) > 0, nil
}

func matchesAny(patterns []string, path string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			return true
		}
	}
	return false
}
