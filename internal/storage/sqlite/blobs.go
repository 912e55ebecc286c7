package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/templedb/templedb/internal/types"
)

// PutBlob stores content under its SHA-256, deduplicating against
// existing rows. Text versus binary is decided by a UTF-8 decode
// attempt; the hash is computed exactly once.
func (s *Store) PutBlob(ctx context.Context, data []byte) (*types.ContentBlob, error) {
	return putBlob(ctx, s.db, data)
}

func putBlob(ctx context.Context, q querier, data []byte) (*types.ContentBlob, error) {
	sum := sha256.Sum256(data)
	blob := &types.ContentBlob{
		Hash:      hex.EncodeToString(sum[:]),
		SizeBytes: int64(len(data)),
		CreatedAt: time.Now().UTC(),
	}

	var contentText, encoding interface{}
	var contentBytes interface{}
	var kind types.BlobKind
	var lineCount int
	if utf8.Valid(data) {
		kind = types.BlobText
		text := string(data)
		lineCount = countLines(text)
		blob.Payload = types.TextPayload{Text: text, Encoding: "utf-8", LineCount: lineCount}
		contentText, encoding = text, "utf-8"
	} else {
		kind = types.BlobBinary
		blob.Payload = types.BinaryPayload{Data: data}
		contentBytes, encoding = data, ""
	}

	// INSERT OR IGNORE keeps the call idempotent: a second put of the
	// same bytes is a no-op against the existing row.
	_, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO content_blobs
			(hash_sha256, kind, content_text, content_bytes, encoding, line_count, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		blob.Hash, string(kind), contentText, contentBytes, encoding, lineCount, blob.SizeBytes, blob.CreatedAt)
	if err != nil {
		return nil, wrapDBErrorf(err, "put blob %s", blob.Hash)
	}
	return blob, nil
}

// countLines counts newline-terminated lines; a trailing fragment
// without a newline still counts as one line.
func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}

// GetBlob fetches a blob by hash.
func (s *Store) GetBlob(ctx context.Context, hash string) (*types.ContentBlob, error) {
	return getBlob(ctx, s.db, hash)
}

func getBlob(ctx context.Context, q querier, hash string) (*types.ContentBlob, error) {
	var (
		blob        types.ContentBlob
		kind        string
		contentText sql.NullString
		contentData []byte
		encoding    string
		lineCount   int
	)
	err := q.QueryRowContext(ctx, `
		SELECT hash_sha256, kind, content_text, content_bytes, encoding, line_count, size_bytes, reference_count, created_at
		FROM content_blobs WHERE hash_sha256 = ?`, hash).
		Scan(&blob.Hash, &kind, &contentText, &contentData, &encoding, &lineCount,
			&blob.SizeBytes, &blob.RefCount, &blob.CreatedAt)
	if err != nil {
		return nil, wrapDBErrorf(err, "get blob %s", hash)
	}

	switch types.BlobKind(kind) {
	case types.BlobText:
		blob.Payload = types.TextPayload{
			Text:      contentText.String,
			Encoding:  encoding,
			LineCount: lineCount,
		}
	default:
		blob.Payload = types.BinaryPayload{Data: contentData}
	}
	return &blob, nil
}

// BlobExists reports whether a blob with the given hash is stored.
func (s *Store) BlobExists(ctx context.Context, hash string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM content_blobs WHERE hash_sha256 = ?`, hash).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, wrapDBErrorf(err, "blob exists %s", hash)
	}
	return true, nil
}

// IncBlobRef increments a blob's reference count.
func (s *Store) IncBlobRef(ctx context.Context, hash string) error {
	return adjustBlobRef(ctx, s.db, hash, +1)
}

// DecBlobRef decrements a blob's reference count. Reaching zero never
// deletes the row; reclamation is deferred to SweepUnreferencedBlobs.
func (s *Store) DecBlobRef(ctx context.Context, hash string) error {
	return adjustBlobRef(ctx, s.db, hash, -1)
}

func adjustBlobRef(ctx context.Context, q querier, hash string, delta int) error {
	res, err := q.ExecContext(ctx, `
		UPDATE content_blobs
		SET reference_count = MAX(0, reference_count + ?)
		WHERE hash_sha256 = ?`, delta, hash)
	if err != nil {
		return wrapDBErrorf(err, "adjust blob ref %s", hash)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError("adjust blob ref", err)
	}
	if n == 0 {
		return wrapDBErrorf(sql.ErrNoRows, "adjust blob ref %s", hash)
	}
	return nil
}

// SweepUnreferencedBlobs deletes blobs whose reference count is zero
// and that no file content row points at. Returns the number removed.
func (s *Store) SweepUnreferencedBlobs(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM content_blobs
		WHERE reference_count = 0
		  AND hash_sha256 NOT IN (SELECT DISTINCT content_hash FROM file_contents)`)
	if err != nil {
		return 0, wrapDBError("sweep unreferenced blobs", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapDBError("sweep unreferenced blobs", err)
	}
	return n, nil
}
