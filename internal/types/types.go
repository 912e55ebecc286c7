// Package types defines core data structures for the TempleDB project store.
package types

import (
	"fmt"
	"strings"
	"time"
)

// Project is the top-level container. It owns all files, commits,
// branches, work items, checkouts and cathedral data.
type Project struct {
	ID            int64     `json:"id"`
	Slug          string    `json:"slug"`
	Name          string    `json:"name"`
	RepoURL       string    `json:"repo_url,omitempty"`
	DefaultBranch string    `json:"default_branch"`
	Visibility    string    `json:"visibility,omitempty"`
	License       string    `json:"license,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Validate checks required project fields.
func (p *Project) Validate() error {
	if p.Slug == "" {
		return fmt.Errorf("slug is required")
	}
	if strings.ContainsAny(p.Slug, " /\\") {
		return fmt.Errorf("slug must not contain spaces or path separators: %q", p.Slug)
	}
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if p.DefaultBranch == "" {
		return fmt.Errorf("default branch is required")
	}
	return nil
}

// BlobKind discriminates the two content blob variants.
type BlobKind string

// Blob kind constants
const (
	BlobText   BlobKind = "text"
	BlobBinary BlobKind = "binary"
)

// BlobPayload is the discriminated payload of a content blob.
// Consumers type-switch on the concrete payload rather than probing
// nullable fields.
type BlobPayload interface {
	Kind() BlobKind
}

// TextPayload is UTF-8 decodable blob content.
type TextPayload struct {
	Text      string `json:"text"`
	Encoding  string `json:"encoding"`
	LineCount int    `json:"line_count"`
}

// Kind implements BlobPayload.
func (TextPayload) Kind() BlobKind { return BlobText }

// BinaryPayload is opaque blob content.
type BinaryPayload struct {
	Data []byte `json:"data"`
}

// Kind implements BlobPayload.
func (BinaryPayload) Kind() BlobKind { return BlobBinary }

// ContentBlob is a deduplicated byte payload keyed by its SHA-256.
// Blobs are global, not project-scoped.
type ContentBlob struct {
	Hash      string      `json:"hash_sha256"`
	SizeBytes int64       `json:"size_bytes"`
	RefCount  int         `json:"reference_count"`
	Payload   BlobPayload `json:"-"`
	CreatedAt time.Time   `json:"created_at"`
}

// Bytes returns the raw content regardless of payload kind.
func (b *ContentBlob) Bytes() []byte {
	switch p := b.Payload.(type) {
	case TextPayload:
		return []byte(p.Text)
	case BinaryPayload:
		return p.Data
	default:
		return nil
	}
}

// LineCount returns the detected line count for text blobs, 0 otherwise.
func (b *ContentBlob) LineCount() int {
	if p, ok := b.Payload.(TextPayload); ok {
		return p.LineCount
	}
	return 0
}

// FileStatus is the lifecycle state of a project file.
type FileStatus string

// File status constants
const (
	FileActive  FileStatus = "active"
	FileDeleted FileStatus = "deleted"
)

// IsValid checks if the file status value is valid
func (s FileStatus) IsValid() bool {
	return s == FileActive || s == FileDeleted
}

// ProjectFile is a file identity within a project. The path is unique
// per project, not globally.
type ProjectFile struct {
	ID        int64      `json:"id"`
	ProjectID int64      `json:"project_id"`
	Path      string     `json:"file_path"`
	Name      string     `json:"file_name"`
	FileType  string     `json:"file_type"`
	LineCount int        `json:"line_count"`
	Status    FileStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	// Current content pointer, populated on list/get when requested.
	CurrentHash    string `json:"current_hash,omitempty"`
	CurrentVersion int    `json:"current_version,omitempty"`
}

// FileContent is one link in a file's version chain. Exactly one row
// per active file has IsCurrent set.
type FileContent struct {
	ID        int64     `json:"id"`
	FileID    int64     `json:"file_id"`
	Version   int       `json:"version"`
	Hash      string    `json:"content_hash"`
	SizeBytes int64     `json:"size_bytes"`
	LineCount int       `json:"line_count"`
	IsCurrent bool      `json:"is_current"`
	CreatedAt time.Time `json:"created_at"`
}

// FileType is a stable classification tag with a category.
type FileType struct {
	Tag      string `json:"tag"`
	Category string `json:"category"`
}

// Branch is a named line of development within a project. Exactly one
// branch per project is the default.
type Branch struct {
	ID             int64     `json:"id"`
	ProjectID      int64     `json:"project_id"`
	Name           string    `json:"name"`
	IsDefault      bool      `json:"is_default"`
	ParentBranchID *int64    `json:"parent_branch_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Commit is an immutable record of a set of file changes on a branch.
type Commit struct {
	ID             int64     `json:"id"`
	ProjectID      int64     `json:"project_id"`
	BranchID       int64     `json:"branch_id"`
	ParentCommitID *int64    `json:"parent_commit_id,omitempty"`
	Hash           string    `json:"commit_hash"`
	Author         string    `json:"author"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"created_at"`

	// Populated for export/history display only.
	BranchName string        `json:"branch_name,omitempty"`
	Files      []*CommitFile `json:"files,omitempty"`
}

// ChangeType categorizes a file change within a commit.
type ChangeType string

// Change type constants
const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeDeleted  ChangeType = "deleted"
	ChangeRenamed  ChangeType = "renamed"
)

// IsValid checks if the change type value is valid
func (c ChangeType) IsValid() bool {
	switch c {
	case ChangeAdded, ChangeModified, ChangeDeleted, ChangeRenamed:
		return true
	}
	return false
}

// CommitFile records one changed file within a commit.
// NewHash is set for added/modified/renamed; OldHash for
// modified/deleted/renamed.
type CommitFile struct {
	ID       int64      `json:"id"`
	CommitID int64      `json:"commit_id"`
	FileID   *int64     `json:"file_id,omitempty"`
	Path     string     `json:"file_path"`
	Change   ChangeType `json:"change_type"`
	OldHash  string     `json:"old_content_hash,omitempty"`
	NewHash  string     `json:"new_content_hash,omitempty"`
	OldPath  string     `json:"old_path,omitempty"`
	NewPath  string     `json:"new_path,omitempty"`
}

// Validate enforces the hash presence rules per change type.
func (cf *CommitFile) Validate() error {
	if cf.Path == "" {
		return fmt.Errorf("file path is required")
	}
	if !cf.Change.IsValid() {
		return fmt.Errorf("invalid change type: %s", cf.Change)
	}
	switch cf.Change {
	case ChangeAdded:
		if cf.NewHash == "" {
			return fmt.Errorf("added file %s requires new content hash", cf.Path)
		}
		if cf.OldHash != "" {
			return fmt.Errorf("added file %s must not carry old content hash", cf.Path)
		}
	case ChangeDeleted:
		if cf.OldHash == "" {
			return fmt.Errorf("deleted file %s requires old content hash", cf.Path)
		}
		if cf.NewHash != "" {
			return fmt.Errorf("deleted file %s must not carry new content hash", cf.Path)
		}
	case ChangeModified, ChangeRenamed:
		if cf.OldHash == "" || cf.NewHash == "" {
			return fmt.Errorf("%s file %s requires both content hashes", cf.Change, cf.Path)
		}
	}
	return nil
}

// WorkingFileState is the transient diff state of a file on a branch.
type WorkingFileState string

// Working state constants
const (
	StateUnmodified WorkingFileState = "unmodified"
	StateAdded      WorkingFileState = "added"
	StateModified   WorkingFileState = "modified"
	StateDeleted    WorkingFileState = "deleted"
)

// IsValid checks if the working state value is valid
func (s WorkingFileState) IsValid() bool {
	switch s {
	case StateUnmodified, StateAdded, StateModified, StateDeleted:
		return true
	}
	return false
}

// WorkingState is one row of the ephemeral per-branch index comparing
// the filesystem against the registry. Rebuilt from scratch on every
// detection pass; never trusted across scans.
type WorkingState struct {
	ProjectID   int64            `json:"project_id"`
	BranchID    int64            `json:"branch_id"`
	FileID      *int64           `json:"file_id,omitempty"` // nil for files not yet registered
	Path        string           `json:"file_path"`
	State       WorkingFileState `json:"state"`
	Staged      bool             `json:"staged"`
	ContentHash string           `json:"content_hash,omitempty"`
	DetectedAt  time.Time        `json:"detected_at"`
}

// Checkout records where a project is materialized on disk.
type Checkout struct {
	ID         int64      `json:"id"`
	ProjectID  int64      `json:"project_id"`
	Path       string     `json:"checkout_path"`
	BranchID   int64      `json:"branch_id"`
	CreatedAt  time.Time  `json:"created_at"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
}

// CheckoutSnapshot records the version and content hash of one file at
// the moment the checkout was materialized. It is the third point in
// three-way conflict detection at commit time.
type CheckoutSnapshot struct {
	CheckoutID  int64     `json:"checkout_id"`
	FileID      int64     `json:"file_id"`
	ContentHash string    `json:"content_hash"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
}

// Environment is a named configuration bundle attached to a project.
// Exported into cathedral packages under environments/.
type Environment struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"project_id"`
	Name      string    `json:"name"`
	Config    string    `json:"config"` // JSON blob
	CreatedAt time.Time `json:"created_at"`
}

// FileExport is one row of the batched export join: file identity,
// current content pointer, and the raw blob bytes in a single fetch.
type FileExport struct {
	FileID    int64      `json:"file_id"`
	Path      string     `json:"file_path"`
	Name      string     `json:"file_name"`
	FileType  string     `json:"file_type"`
	Status    FileStatus `json:"status"`
	Version   int        `json:"version_number"`
	Hash      string     `json:"hash_sha256"`
	SizeBytes int64      `json:"file_size_bytes"`
	LineCount int        `json:"lines_of_code"`
	Content   []byte     `json:"-"`
	CreatedAt time.Time  `json:"created_at"`
}

// ProjectStatistics provides aggregate counts for one project.
type ProjectStatistics struct {
	Files        int     `json:"files"`
	ActiveFiles  int     `json:"active_files"`
	Commits      int     `json:"commits"`
	Branches     int     `json:"branches"`
	WorkItems    int     `json:"work_items"`
	TotalBytes   int64   `json:"total_bytes"`
	TotalLines   int     `json:"total_lines"`
	AvgFileLines float64 `json:"avg_file_lines"`
}
