package contentlife

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
)

// service implements the Service interface.
type service struct {
	repo        MetadataRepository
	blobs       BlobStore
	queue       CleanupQueue
	events      EventSink
	invalidator CacheInvalidator
	logger      *slog.Logger
	now         func() time.Time
}

// Option represents a functional option for configuring the coordinator.
type Option func(*service)

// WithRepository sets the metadata repository.
func WithRepository(repo MetadataRepository) Option {
	return func(s *service) { s.repo = repo }
}

// WithBlobStore sets the blob store.
func WithBlobStore(store BlobStore) Option {
	return func(s *service) { s.blobs = store }
}

// WithCleanupQueue sets the cleanup queue.
func WithCleanupQueue(q CleanupQueue) Option {
	return func(s *service) { s.queue = q }
}

// WithEventSink sets the event sink fired after successful commits.
func WithEventSink(sink EventSink) Option {
	return func(s *service) { s.events = sink }
}

// WithCacheInvalidator sets the cache invalidator called after successful
// commits.
func WithCacheInvalidator(inv CacheInvalidator) Option {
	return func(s *service) { s.invalidator = inv }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) { s.logger = logger }
}

// WithClock sets the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// New creates a lifecycle coordinator. A repository, a blob store and a
// cleanup queue are required.
func New(options ...Option) (Service, error) {
	s := &service{
		events:      NewNoopEventSink(),
		invalidator: NewNoopInvalidator(),
		logger:      slog.Default(),
		now:         time.Now,
	}

	for _, option := range options {
		option(s)
	}

	if s.repo == nil {
		return nil, fmt.Errorf("metadata repository is required")
	}
	if s.blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if s.queue == nil {
		return nil, fmt.Errorf("cleanup queue is required")
	}

	return s, nil
}

func (s *service) CreateContent(ctx context.Context, req CreateContentRequest) (*ContentRecord, error) {
	if req.Status == "" {
		req.Status = ContentStatusDraft
	}
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	id := uuid.New()
	slots, storedIDs, err := s.storeUploads(ctx, id, req.Uploads)
	if err != nil {
		s.compensate(ctx, storedIDs)
		return nil, &ContentError{ContentID: id, Op: "create", Err: err}
	}

	now := s.now().UTC()
	record := &ContentRecord{
		ID:        id,
		Type:      req.Type,
		Title:     req.Title,
		Body:      req.Body,
		Fields:    req.Fields,
		Slots:     slots,
		Status:    req.Status,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, record); err != nil {
		s.compensate(ctx, storedIDs)
		return nil, &ContentError{ContentID: id, Op: "create", Err: err}
	}

	s.afterCommit(ctx, record, func(c context.Context) error {
		return s.events.ContentCreated(c, record)
	})

	return record, nil
}

func (s *service) UpdateContent(ctx context.Context, req UpdateContentRequest) (*ContentRecord, error) {
	if err := validateUpdate(req); err != nil {
		return nil, err
	}

	old, err := s.repo.Get(ctx, req.ID)
	if err != nil {
		return nil, &ContentError{ContentID: req.ID, Op: "update", Err: err}
	}
	expected := req.ExpectedVersion
	if expected == 0 {
		expected = old.Version
	}

	newRefs, storedIDs, err := s.storeUploads(ctx, req.ID, req.Uploads)
	if err != nil {
		s.compensate(ctx, storedIDs)
		return nil, &ContentError{ContentID: req.ID, Op: "update", Err: err}
	}

	candidate := mergeSlots(old.Slots, newRefs, req.RemoveSlots)
	if err := ValidateSlots(candidate); err != nil {
		s.compensate(ctx, storedIDs)
		return nil, &ContentError{ContentID: req.ID, Op: "update", Err: err}
	}

	diff := DiffSlots(old.Slots, candidate)

	updated, err := s.repo.Update(ctx, req.ID, expected, func(r *ContentRecord) error {
		applyPatch(r, req)
		r.Slots = candidate
		r.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		// Conflict or any other write failure: the new blobs were never
		// referenced by a committed record, so they get plain synchronous
		// compensation, not cleanup tasks.
		s.compensate(ctx, storedIDs)
		return nil, &ContentError{ContentID: req.ID, Op: "update", Err: err}
	}

	// Retire displaced blobs only now that the commit is visible. Deleting
	// them synchronously would make the write path pay blob-store latency
	// twice, and deleting before the commit would risk removing a blob a
	// failed write still references.
	s.retire(ctx, diff.RetiredBlobIDs(), CleanupReasonSuperseded)

	s.afterCommit(ctx, updated, func(c context.Context) error {
		return s.events.ContentUpdated(c, updated)
	})

	return updated, nil
}

func (s *service) DeleteContent(ctx context.Context, id uuid.UUID) error {
	removed, err := s.repo.Delete(ctx, id)
	if err != nil {
		// Idempotent at this layer: a second delete finds nothing and
		// succeeds without enqueueing anything.
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return &ContentError{ContentID: id, Op: "delete", Err: err}
	}

	// The record is already gone from queries; a crash before the enqueue
	// below only risks a temporarily orphaned blob, which the
	// reconciliation sweep recovers. A dangling metadata reference can
	// never arise from this ordering.
	blobIDs := make([]string, 0, len(removed.Slots))
	for _, slot := range sortedSlots(removed.Slots) {
		blobIDs = append(blobIDs, removed.Slots[slot].BlobID)
	}
	s.retire(ctx, blobIDs, CleanupReasonRecordDeleted)

	s.afterCommit(ctx, removed, func(c context.Context) error {
		return s.events.ContentDeleted(c, id)
	})

	return nil
}

func (s *service) GetContent(ctx context.Context, id uuid.UUID) (*ContentRecord, error) {
	return s.repo.Get(ctx, id)
}

func (s *service) ListContent(ctx context.Context, contentType ContentType) ([]*ContentRecord, error) {
	if !contentType.Valid() {
		return nil, &ValidationError{Field: "type", Reason: "unknown content type " + string(contentType)}
	}
	return s.repo.List(ctx, contentType)
}

func (s *service) GetAssetSlots(ctx context.Context, id uuid.UUID) (map[string]BlobRef, error) {
	record, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	slots := make(map[string]BlobRef, len(record.Slots))
	for name, ref := range record.Slots {
		slots[name] = ref
	}
	return slots, nil
}

func (s *service) OpenAsset(ctx context.Context, id uuid.UUID, slot string) (io.ReadCloser, BlobRef, error) {
	record, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, BlobRef{}, err
	}
	ref, ok := record.Slots[slot]
	if !ok {
		return nil, BlobRef{}, ErrBlobNotFound
	}
	rc, err := s.blobs.Fetch(ctx, ref.BlobID)
	if err != nil {
		return nil, BlobRef{}, err
	}
	return rc, ref, nil
}

// storeUploads realizes the pending uploads, in slot-name order for
// determinism. It returns the refs for the stored blobs and the list of blob
// IDs actually stored so far: on error the caller compensates exactly those.
// A caller cancellation observed after an upload is treated like any other
// failure so cancelled operations cannot leak blobs.
func (s *service) storeUploads(ctx context.Context, recordID uuid.UUID, uploads map[string]io.Reader) (map[string]BlobRef, []string, error) {
	if len(uploads) == 0 {
		return nil, nil, nil
	}

	names := make([]string, 0, len(uploads))
	for name := range uploads {
		names = append(names, name)
	}
	sort.Strings(names)

	refs := make(map[string]BlobRef, len(uploads))
	var stored []string
	for _, name := range names {
		if name == "" {
			return nil, stored, &ValidationError{Field: "uploads", Reason: "empty slot name"}
		}
		if err := ctx.Err(); err != nil {
			return nil, stored, err
		}
		info, err := s.blobs.Store(ctx, uploads[name])
		if err != nil {
			return nil, stored, &StorageError{Op: "store", Err: err}
		}
		stored = append(stored, info.BlobID)
		refs[name] = BlobRef{
			BlobID:    info.BlobID,
			RecordID:  recordID,
			Slot:      name,
			CreatedAt: info.CreatedAt,
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, stored, err
	}
	return refs, stored, nil
}

// compensate deletes blobs that were uploaded for an operation that did not
// reach its metadata commit. Nothing ever referenced them, so this is a plain
// synchronous undo. It runs detached from the caller's cancellation: a
// timed-out request must still clean up after itself. A failed delete is
// handed to the cleanup queue so it surfaces on the dead-letter path instead
// of silently leaking.
func (s *service) compensate(ctx context.Context, blobIDs []string) {
	if len(blobIDs) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, id := range blobIDs {
		if err := s.blobs.Delete(ctx, id); err != nil {
			s.logger.Error("compensating blob delete failed, deferring to cleanup queue",
				"blob_id", id, "error", err)
			s.enqueue(ctx, id, CleanupReasonCompensation)
		}
	}
}

// retire schedules deferred deletion for blobs displaced by a committed
// update or delete.
func (s *service) retire(ctx context.Context, blobIDs []string, reason CleanupReason) {
	ctx = context.WithoutCancel(ctx)
	for _, id := range blobIDs {
		s.enqueue(ctx, id, reason)
	}
}

func (s *service) enqueue(ctx context.Context, blobID string, reason CleanupReason) {
	task := CleanupTask{
		BlobID:        blobID,
		Reason:        reason,
		NextAttemptAt: s.now().UTC(),
		EnqueuedAt:    s.now().UTC(),
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		// The commit already happened; failing the caller now would help
		// nobody. The reconciliation sweep picks the blob up later.
		s.logger.Error("enqueue cleanup task failed",
			"blob_id", blobID, "reason", reason, "error", err)
	}
}

// afterCommit fires the event sink and cache invalidator. Failures are
// logged, never propagated: the commit already happened.
func (s *service) afterCommit(ctx context.Context, record *ContentRecord, fire func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	if err := fire(ctx); err != nil {
		s.logger.Warn("event sink failed", "content_id", record.ID, "error", err)
	}
	if err := s.invalidator.InvalidateContent(ctx, record.Type, record.ID); err != nil {
		s.logger.Warn("cache invalidation failed", "content_id", record.ID, "error", err)
	}
}

func validateCreate(req CreateContentRequest) error {
	if !req.Type.Valid() {
		return &ValidationError{Field: "type", Reason: "unknown content type " + string(req.Type)}
	}
	if req.Title == "" {
		return &ValidationError{Field: "title", Reason: "title is required"}
	}
	if !req.Status.Valid() {
		return &ValidationError{Field: "status", Reason: "unknown status " + string(req.Status)}
	}
	return nil
}

func validateUpdate(req UpdateContentRequest) error {
	if req.ID == uuid.Nil {
		return &ValidationError{Field: "id", Reason: "id is required"}
	}
	if req.Title != nil && *req.Title == "" {
		return &ValidationError{Field: "title", Reason: "title cannot be cleared"}
	}
	if req.Status != nil && !req.Status.Valid() {
		return &ValidationError{Field: "status", Reason: "unknown status " + string(*req.Status)}
	}
	for _, slot := range req.RemoveSlots {
		if _, ok := req.Uploads[slot]; ok {
			return &ValidationError{Field: slot, Reason: "slot both removed and uploaded"}
		}
	}
	return nil
}

func applyPatch(r *ContentRecord, req UpdateContentRequest) {
	if req.Title != nil {
		r.Title = *req.Title
	}
	if req.Body != nil {
		r.Body = *req.Body
	}
	if req.Status != nil {
		r.Status = *req.Status
	}
	if req.Fields != nil {
		if r.Fields == nil {
			r.Fields = make(map[string]any, len(req.Fields))
		}
		for k, v := range req.Fields {
			r.Fields[k] = v
		}
	}
}

// mergeSlots builds the candidate slot map for an update: existing slots,
// minus removals, with new uploads layered on top.
func mergeSlots(old, uploaded map[string]BlobRef, removeSlots []string) map[string]BlobRef {
	merged := make(map[string]BlobRef, len(old)+len(uploaded))
	for name, ref := range old {
		merged[name] = ref
	}
	for _, name := range removeSlots {
		delete(merged, name)
	}
	for name, ref := range uploaded {
		merged[name] = ref
	}
	return merged
}
