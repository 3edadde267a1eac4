package contentlife

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrNotFound indicates a content record was not found.
	ErrNotFound = errors.New("content not found")

	// ErrBlobNotFound indicates a blob was not found in the blob store.
	ErrBlobNotFound = errors.New("blob not found")

	// ErrConcurrencyConflict indicates an optimistic-version mismatch on
	// update; the caller must re-read and retry.
	ErrConcurrencyConflict = errors.New("content version conflict")

	// ErrTaskNotFound indicates a cleanup task was not found in the queue.
	ErrTaskNotFound = errors.New("cleanup task not found")
)

// ValidationError indicates bad input. No store mutation was attempted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// StorageError represents a blob store I/O failure.
type StorageError struct {
	Op     string
	BlobID string
	Err    error
}

func (e *StorageError) Error() string {
	if e.BlobID == "" {
		return fmt.Sprintf("blob store %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("blob store %s failed for blob %s: %v", e.Op, e.BlobID, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ContentError wraps a failure of a coordinator operation on one record.
type ContentError struct {
	ContentID uuid.UUID
	Op        string
	Err       error
}

func (e *ContentError) Error() string {
	return fmt.Sprintf("content operation %s failed for content %s: %v", e.Op, e.ContentID, e.Err)
}

func (e *ContentError) Unwrap() error {
	return e.Err
}
