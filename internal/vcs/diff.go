package vcs

import (
	"context"
	"fmt"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/templedb/templedb/internal/types"
)

// Diff renders the unified diff of one file between two revisions.
// Empty commit hashes resolve to the registry's current content; a
// side where the file does not exist (added or deleted) diffs against
// the empty string. Binary content is refused with a short notice.
func (e *Engine) Diff(ctx context.Context, projectID int64, path, commitA, commitB string) (string, error) {
	oldText, oldLabel, err := e.contentAt(ctx, projectID, path, commitA, "a")
	if err != nil {
		return "", err
	}
	newText, newLabel, err := e.contentAt(ctx, projectID, path, commitB, "b")
	if err != nil {
		return "", err
	}
	if oldText == binaryMarker || newText == binaryMarker {
		return fmt.Sprintf("Binary file %s differs\n", path), nil
	}

	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(oldText),
		B:        difflib.SplitLines(newText),
		FromFile: oldLabel,
		ToFile:   newLabel,
		Context:  3,
	})
}

const binaryMarker = "\x00templedb-binary\x00"

func (e *Engine) contentAt(ctx context.Context, projectID int64, path, commitHash, side string) (string, string, error) {
	hash, err := e.store.FileHashAt(ctx, projectID, path, commitHash)
	if err != nil {
		return "", "", err
	}
	label := side + "/" + path
	if hash == "" {
		// File absent at this revision: diff against empty.
		return "", "/dev/null", nil
	}
	blob, err := e.store.GetBlob(ctx, hash)
	if err != nil {
		return "", "", err
	}
	if p, ok := blob.Payload.(types.TextPayload); ok {
		return p.Text, label, nil
	}
	return binaryMarker, label, nil
}
