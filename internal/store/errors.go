package store

import "errors"

// Error kinds surfaced by the store. Concrete errors wrap one of these, so
// callers match with errors.Is.
var (
	// ErrStorageUnavailable means the index database could not be opened
	// or initialized.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrStorageWrite means a replace transaction failed and was rolled back.
	ErrStorageWrite = errors.New("storage write failed")

	// ErrStorageRead means a query against the index failed.
	ErrStorageRead = errors.New("storage read failed")

	// ErrDuplicatePath is returned under DuplicatePathsReject when a batch
	// names the same relative path more than once.
	ErrDuplicatePath = errors.New("duplicate relative path in batch")
)
