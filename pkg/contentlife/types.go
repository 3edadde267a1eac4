package contentlife

import (
	"time"

	"github.com/google/uuid"
)

// ContentType is the domain type for the kinds of content the magazine
// backend manages. The coordinator is generic over it; one engine serves
// every type.
type ContentType string

// Content type constants (typed).
const (
	ContentTypeArticle   ContentType = "article"
	ContentTypeEvent     ContentType = "event"
	ContentTypeMagazine  ContentType = "magazine"
	ContentTypeLivestock ContentType = "livestock"
	ContentTypeAuction   ContentType = "auction"
)

// ContentTypes returns every known content type.
func ContentTypes() []ContentType {
	return []ContentType{
		ContentTypeArticle,
		ContentTypeEvent,
		ContentTypeMagazine,
		ContentTypeLivestock,
		ContentTypeAuction,
	}
}

// Valid reports whether t is a known content type.
func (t ContentType) Valid() bool {
	switch t {
	case ContentTypeArticle, ContentTypeEvent, ContentTypeMagazine,
		ContentTypeLivestock, ContentTypeAuction:
		return true
	}
	return false
}

// ContentStatus is the domain type for record lifecycle states.
type ContentStatus string

// Content status constants (typed).
const (
	ContentStatusDraft     ContentStatus = "draft"
	ContentStatusPublished ContentStatus = "published"
)

// Valid reports whether s is a known content status.
func (s ContentStatus) Valid() bool {
	return s == ContentStatusDraft || s == ContentStatusPublished
}

// Well-known slot names. Slots are open-ended; these are the ones the
// magazine handlers use.
const (
	SlotImage     = "image"
	SlotThumbnail = "thumbnail"
	SlotPDF       = "pdf"
	SlotMedia     = "media"
)

// BlobRef ties a stored blob to the record and slot that own it. Refs are
// derived values: they exist only inside a ContentRecord's Slots map and are
// produced exclusively by a successful BlobStore.Store call. The blob store
// itself knows nothing about ownership.
type BlobRef struct {
	BlobID    string    `json:"blob_id"`
	RecordID  uuid.UUID `json:"record_id"`
	Slot      string    `json:"slot"`
	CreatedAt time.Time `json:"created_at"`
}

// ContentRecord is a metadata record plus the map of asset slots it owns.
//
// Version is a monotonic counter used for optimistic concurrency: every
// successful repository update increments it, and an update submitted with a
// stale expected version fails with ErrConcurrencyConflict.
type ContentRecord struct {
	ID        uuid.UUID          `json:"id"`
	Type      ContentType        `json:"type"`
	Title     string             `json:"title"`
	Body      string             `json:"body,omitempty"`
	Fields    map[string]any     `json:"fields,omitempty"`
	Slots     map[string]BlobRef `json:"slots,omitempty"`
	Status    ContentStatus      `json:"status"`
	Version   int64              `json:"version"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Clone returns a deep copy. Repositories hand out clones so callers can
// never mutate stored state in place.
func (r *ContentRecord) Clone() *ContentRecord {
	cp := *r
	if r.Fields != nil {
		cp.Fields = make(map[string]any, len(r.Fields))
		for k, v := range r.Fields {
			cp.Fields[k] = v
		}
	}
	if r.Slots != nil {
		cp.Slots = make(map[string]BlobRef, len(r.Slots))
		for k, v := range r.Slots {
			cp.Slots[k] = v
		}
	}
	return &cp
}

// BlobInfo describes a stored blob. The checksum is a hex BLAKE3 digest of
// the blob's bytes; it is informational, not the blob's identity.
type BlobInfo struct {
	BlobID    string    `json:"blob_id"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CleanupReason records why a blob was scheduled for deferred deletion.
type CleanupReason string

// Cleanup reason constants.
const (
	// CleanupReasonSuperseded marks a blob replaced or removed by a
	// successful update.
	CleanupReasonSuperseded CleanupReason = "superseded"
	// CleanupReasonRecordDeleted marks a blob owned by a deleted record.
	CleanupReasonRecordDeleted CleanupReason = "record-deleted"
	// CleanupReasonCompensation marks a blob whose synchronous
	// compensating delete failed and was handed to the queue instead.
	CleanupReasonCompensation CleanupReason = "compensation"
	// CleanupReasonReconciled marks an orphan found by the periodic
	// reconciliation sweep.
	CleanupReasonReconciled CleanupReason = "reconciled"
)

// CleanupTask is a durable instruction to delete one blob. Tasks are retried
// with backoff until the delete succeeds (or the blob is already gone), and
// moved to a dead-letter surface after too many attempts rather than dropped.
type CleanupTask struct {
	BlobID        string        `json:"blob_id"`
	Reason        CleanupReason `json:"reason"`
	Attempts      int           `json:"attempts"`
	NextAttemptAt time.Time     `json:"next_attempt_at"`
	EnqueuedAt    time.Time     `json:"enqueued_at"`
	LastError     string        `json:"last_error,omitempty"`
}
