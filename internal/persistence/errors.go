// Package persistence defines the storage contract shared by every store
// implementation: the flat row models, the error taxonomy, and the Store
// interface the domain layer programs against. The pattern expansion and
// reflow engines never see this package; only the application layer does.
package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate indicates a unique constraint violation.
	ErrDuplicate = errors.New("persistence: duplicate key")
	// ErrForeignKeyViolation indicates that a foreign key constraint was
	// violated, including RESTRICT rules blocking a delete.
	ErrForeignKeyViolation = errors.New("persistence: foreign key violation")
	// ErrInvalidData is returned when a row fails a storage-level check.
	ErrInvalidData = errors.New("persistence: invalid data")
)
