package contentlife

import (
	"context"

	"github.com/google/uuid"
)

// NoopEventSink is an event sink that does nothing.
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-op event sink.
func NewNoopEventSink() *NoopEventSink { return &NoopEventSink{} }

func (NoopEventSink) ContentCreated(ctx context.Context, record *ContentRecord) error { return nil }
func (NoopEventSink) ContentUpdated(ctx context.Context, record *ContentRecord) error { return nil }
func (NoopEventSink) ContentDeleted(ctx context.Context, id uuid.UUID) error          { return nil }

// NoopInvalidator is a cache invalidator that does nothing, for deployments
// without a read cache.
type NoopInvalidator struct{}

// NewNoopInvalidator creates a new no-op cache invalidator.
func NewNoopInvalidator() *NoopInvalidator { return &NoopInvalidator{} }

func (NoopInvalidator) InvalidateContent(ctx context.Context, contentType ContentType, id uuid.UUID) error {
	return nil
}
