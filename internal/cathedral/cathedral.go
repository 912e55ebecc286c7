// Package cathedral implements the portable project package format: a
// checksum-verified directory holding a project's files, version
// history and environments, optionally wrapped in a compressed tar
// container. A package survives a round-trip through export and import
// with its file set, contents, branches and commit hashes intact.
package cathedral

import "time"

// Package format identification.
const (
	FormatName    = "cathedral-package"
	FormatVersion = "1.0.0"
	PackageSuffix = ".cathedral"
	ManifestName  = "manifest.json"

	checksumAlgorithm = "sha256"
	templedbVersion   = "0.4.0"
)

// Manifest is the package header, written last so it can embed the
// package-wide checksum.
type Manifest struct {
	Version   string            `json:"version"`
	Format    string            `json:"format"`
	CreatedAt time.Time         `json:"created_at"`
	CreatedBy string            `json:"created_by"`
	Project   ManifestProject   `json:"project"`
	Source    ManifestSource    `json:"source"`
	Contents  ManifestContents  `json:"contents"`
	Checksums ManifestChecksums `json:"checksums"`
	Signature string            `json:"signature,omitempty"`
}

// ManifestProject identifies the packaged project.
type ManifestProject struct {
	Slug       string `json:"slug"`
	Name       string `json:"name"`
	Visibility string `json:"visibility"`
	License    string `json:"license,omitempty"`
}

// ManifestSource records which installation produced the package.
type ManifestSource struct {
	TempleDBVersion string `json:"templedb_version"`
	SchemaVersion   int    `json:"schema_version"`
	ExportMethod    string `json:"export_method"`
}

// ManifestContents summarizes what the package holds.
type ManifestContents struct {
	Files           int   `json:"files"`
	Commits         int   `json:"commits"`
	Branches        int   `json:"branches"`
	TotalSizeBytes  int64 `json:"total_size_bytes"`
	HasSecrets      bool  `json:"has_secrets"`
	HasEnvironments bool  `json:"has_environments"`
}

// ManifestChecksums carries the package-wide checksum.
type ManifestChecksums struct {
	SHA256    string `json:"sha256"`
	Algorithm string `json:"algorithm"`
}

// projectRecord is project.json. Only identity fields are serialized;
// store-assigned ids and timestamps stay out so a package re-exported
// from an imported store reproduces the original bytes.
type projectRecord struct {
	Slug          string `json:"slug"`
	Name          string `json:"name"`
	RepoURL       string `json:"repo_url,omitempty"`
	DefaultBranch string `json:"default_branch"`
	Visibility    string `json:"visibility,omitempty"`
	License       string `json:"license,omitempty"`
}

// fileEntry is one row of files/manifest.json, ordered by path.
type fileEntry struct {
	FileID string `json:"file_id"`
	Path   string `json:"file_path"`
	Hash   string `json:"hash_sha256"`
}

// fileMeta is the per-file metadata JSON written next to each blob.
type fileMeta struct {
	FileID        string            `json:"file_id"`
	FilePath      string            `json:"file_path"`
	FileType      string            `json:"file_type"`
	LinesOfCode   int               `json:"lines_of_code"`
	FileSizeBytes int64             `json:"file_size_bytes"`
	HashSHA256    string            `json:"hash_sha256"`
	VersionNumber int               `json:"version_number"`
	Author        string            `json:"author,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	Metadata      map[string]string `json:"metadata"`
}

// branchRecord is one row of vcs/branches.json.
type branchRecord struct {
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default"`
}

// commitRecord is one row of vcs/commits.json, oldest first so import
// can replay parent links in order.
type commitRecord struct {
	Hash       string    `json:"commit_hash"`
	Branch     string    `json:"branch"`
	ParentHash string    `json:"parent_commit_hash,omitempty"`
	Author     string    `json:"author"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}

// historyRecord holds the change rows of one commit in vcs/history.json.
type historyRecord struct {
	CommitHash string             `json:"commit_hash"`
	Files      []commitFileRecord `json:"files"`
}

type commitFileRecord struct {
	Path    string `json:"file_path"`
	Change  string `json:"change_type"`
	OldHash string `json:"old_content_hash,omitempty"`
	NewHash string `json:"new_content_hash,omitempty"`
}
