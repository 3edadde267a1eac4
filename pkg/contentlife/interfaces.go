package contentlife

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// BlobStore is opaque-key binary storage. It keeps no ownership bookkeeping;
// the lifecycle coordinator owns the mapping from records to blobs.
type BlobStore interface {
	// Store writes the stream under a freshly generated opaque key and
	// returns its info. Every call yields a distinct key, even for
	// byte-identical content, so a blob ID never has two owners.
	Store(ctx context.Context, r io.Reader) (BlobInfo, error)

	// Fetch opens the blob for reading. Returns ErrBlobNotFound if absent.
	Fetch(ctx context.Context, blobID string) (io.ReadCloser, error)

	// Delete removes the blob. Deleting an absent blob is success, not an
	// error: compensations and retried cleanup tasks must be safe to repeat.
	Delete(ctx context.Context, blobID string) error

	// List returns info for every blob created before olderThan. It is the
	// query contract the periodic reconciliation sweep runs against.
	List(ctx context.Context, olderThan time.Time) ([]BlobInfo, error)
}

// MetadataRepository is CRUD over content records with optimistic versioning.
// The version check in Update is the only concurrency-control primitive the
// coordinator relies on.
type MetadataRepository interface {
	// Create persists the record, assigning an ID if unset and version 1.
	Create(ctx context.Context, record *ContentRecord) error

	// Get returns the record or ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*ContentRecord, error)

	// Update loads the current record, verifies its version equals
	// expectedVersion (ErrConcurrencyConflict otherwise), applies mutate to
	// a copy, increments the version and persists. Returns the persisted
	// record.
	Update(ctx context.Context, id uuid.UUID, expectedVersion int64, mutate func(*ContentRecord) error) (*ContentRecord, error)

	// Delete removes the record and returns it, or ErrNotFound.
	Delete(ctx context.Context, id uuid.UUID) (*ContentRecord, error)

	// List returns all records of the given type, newest first.
	List(ctx context.Context, contentType ContentType) ([]*ContentRecord, error)
}

// CleanupQueue is a durable queue of blob deletions, drained asynchronously
// so the metadata write path never waits on blob-store latency.
type CleanupQueue interface {
	// Enqueue adds a task. Tasks are keyed by blob ID; enqueueing a blob
	// that already has a pending task is a no-op (duplicate deletes are
	// harmless anyway, since deleting an absent blob succeeds).
	Enqueue(ctx context.Context, task CleanupTask) error

	// Due returns every pending task whose NextAttemptAt is not after now.
	Due(ctx context.Context, now time.Time) ([]CleanupTask, error)

	// Ack removes a completed task.
	Ack(ctx context.Context, blobID string) error

	// Nack records a failed attempt: the attempt count is incremented and
	// the task rescheduled with exponential backoff, or moved to the
	// dead-letter surface once the attempt limit is reached.
	Nack(ctx context.Context, blobID string, taskErr error) error

	// Pending returns all tasks awaiting an attempt.
	Pending(ctx context.Context) ([]CleanupTask, error)

	// DeadLetters returns tasks that exhausted their attempts and now need
	// operator attention.
	DeadLetters(ctx context.Context) ([]CleanupTask, error)

	// Redrive moves a dead-lettered task back into the pending queue with
	// its attempt count reset.
	Redrive(ctx context.Context, blobID string) error
}

// EventSink receives notifications after successful commits. Sink failures
// are logged and never fail the operation.
type EventSink interface {
	ContentCreated(ctx context.Context, record *ContentRecord) error
	ContentUpdated(ctx context.Context, record *ContentRecord) error
	ContentDeleted(ctx context.Context, id uuid.UUID) error
}

// CacheInvalidator is called after each successful commit so read caches can
// drop stale entries. It decouples cache topology from lifecycle logic.
type CacheInvalidator interface {
	InvalidateContent(ctx context.Context, contentType ContentType, id uuid.UUID) error
}
