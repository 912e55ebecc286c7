package storage

import "errors"

// Sentinel errors for the store's failure taxonomy. Components wrap
// these with operation context via %w and never swallow them; callers
// classify with errors.Is.
var (
	// ErrNotFound indicates a project, file, commit, blob, checkout,
	// work item or session is not present.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness violation or a version-skew
	// conflict detected on the commit path.
	ErrConflict = errors.New("conflict")

	// ErrIntegrity indicates a checksum mismatch, a broken blob
	// reference, or a missing snapshot on the commit path.
	ErrIntegrity = errors.New("integrity violation")

	// ErrInvalidInput indicates a malformed path, empty commit message,
	// unknown strategy, or similar caller mistakes.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnavailable indicates the underlying store cannot accept
	// writes (disk full, locked, schema older than required).
	ErrUnavailable = errors.New("store unavailable")

	// ErrNotImplemented marks optional behavior that is deliberately
	// not provided (the rebase commit strategy).
	ErrNotImplemented = errors.New("not implemented")

	// ErrCycle indicates a work item parent chain would form a cycle.
	ErrCycle = errors.New("parent cycle detected")
)
