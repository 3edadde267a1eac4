package contentlife

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// Service is the lifecycle coordinator's public surface. HTTP handlers (and
// any other caller) go through it; they never touch the repository's slot
// maps or the blob store directly.
type Service interface {
	// CreateContent stores the uploads, persists the record referencing
	// them, and returns it. If anything fails after a blob was uploaded,
	// that blob is deleted before the error is returned; a failed create
	// leaves no blob behind.
	CreateContent(ctx context.Context, req CreateContentRequest) (*ContentRecord, error)

	// UpdateContent applies a patch and replacement uploads against the
	// version the caller read. On ErrConcurrencyConflict (or any other
	// failure) the newly uploaded blobs are deleted and nothing is applied.
	// On success, each blob the update displaced gets exactly one cleanup
	// task; the old blob is never deleted synchronously.
	UpdateContent(ctx context.Context, req UpdateContentRequest) (*ContentRecord, error)

	// DeleteContent removes the record and schedules cleanup of every blob
	// it owned. Deleting an absent record is success.
	DeleteContent(ctx context.Context, id uuid.UUID) error

	// GetContent returns the record or ErrNotFound.
	GetContent(ctx context.Context, id uuid.UUID) (*ContentRecord, error)

	// ListContent returns all records of a type, newest first.
	ListContent(ctx context.Context, contentType ContentType) ([]*ContentRecord, error)

	// GetAssetSlots returns the record's slot map, for handlers that stream
	// a blob back to a client.
	GetAssetSlots(ctx context.Context, id uuid.UUID) (map[string]BlobRef, error)

	// OpenAsset opens the blob held in one slot of a record.
	OpenAsset(ctx context.Context, id uuid.UUID, slot string) (io.ReadCloser, BlobRef, error)
}
