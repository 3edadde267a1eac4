package contentlife

import (
	"io"

	"github.com/google/uuid"
)

// CreateContentRequest contains parameters for creating a content record.
// Uploads maps slot name to the stream that should fill it.
type CreateContentRequest struct {
	Type    ContentType
	Title   string
	Body    string
	Fields  map[string]any
	Status  ContentStatus // defaults to draft
	Uploads map[string]io.Reader
}

// UpdateContentRequest contains a patch for an existing record. Nil pointer
// fields are left unchanged. Uploads adds or replaces slots; RemoveSlots
// clears slots without replacement (the displaced blobs are retired through
// the cleanup queue either way).
//
// ExpectedVersion must be the version the caller read; a stale value fails
// the whole update with ErrConcurrencyConflict and no partial application.
type UpdateContentRequest struct {
	ID              uuid.UUID
	ExpectedVersion int64
	Title           *string
	Body            *string
	Fields          map[string]any
	Status          *ContentStatus
	RemoveSlots     []string
	Uploads         map[string]io.Reader
}
