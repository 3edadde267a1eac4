package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressly-club/magazine-content/pkg/contentlife"
)

func newRecord(title string) *contentlife.ContentRecord {
	now := time.Now().UTC()
	return &contentlife.ContentRecord{
		Type:      contentlife.ContentTypeArticle,
		Title:     title,
		Status:    contentlife.ContentStatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCreateAssignsIDAndVersion(t *testing.T) {
	r := New()
	ctx := context.Background()

	record := newRecord("first")
	require.NoError(t, r.Create(ctx, record))
	assert.NotEqual(t, uuid.Nil, record.ID)
	assert.Equal(t, int64(1), record.Version)

	got, err := r.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Title)
}

func TestGetMissing(t *testing.T) {
	r := New()
	_, err := r.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, contentlife.ErrNotFound)
}

func TestUpdateOptimisticVersioning(t *testing.T) {
	r := New()
	ctx := context.Background()

	record := newRecord("original")
	require.NoError(t, r.Create(ctx, record))

	updated, err := r.Update(ctx, record.ID, 1, func(c *contentlife.ContentRecord) error {
		c.Title = "revised"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "revised", updated.Title)
	assert.Equal(t, int64(2), updated.Version)

	// Stale expected version loses.
	_, err = r.Update(ctx, record.ID, 1, func(c *contentlife.ContentRecord) error {
		c.Title = "stale write"
		return nil
	})
	assert.ErrorIs(t, err, contentlife.ErrConcurrencyConflict)

	got, err := r.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, "revised", got.Title)
}

func TestUpdateMutatorErrorLeavesRecordUntouched(t *testing.T) {
	r := New()
	ctx := context.Background()

	record := newRecord("keep me")
	require.NoError(t, r.Create(ctx, record))

	_, err := r.Update(ctx, record.ID, 1, func(c *contentlife.ContentRecord) error {
		c.Title = "never persisted"
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	got, err := r.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, "keep me", got.Title)
	assert.Equal(t, int64(1), got.Version)
}

func TestDeleteReturnsRemovedRecord(t *testing.T) {
	r := New()
	ctx := context.Background()

	record := newRecord("doomed")
	record.Slots = map[string]contentlife.BlobRef{
		contentlife.SlotImage: {BlobID: "ab/img"},
	}
	require.NoError(t, r.Create(ctx, record))

	removed, err := r.Delete(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, "ab/img", removed.Slots[contentlife.SlotImage].BlobID)

	_, err = r.Delete(ctx, record.ID)
	assert.ErrorIs(t, err, contentlife.ErrNotFound)
}

func TestListFiltersByTypeNewestFirst(t *testing.T) {
	r := New()
	ctx := context.Background()

	older := newRecord("older")
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, r.Create(ctx, older))

	newer := newRecord("newer")
	require.NoError(t, r.Create(ctx, newer))

	event := newRecord("an event")
	event.Type = contentlife.ContentTypeEvent
	require.NoError(t, r.Create(ctx, event))

	articles, err := r.List(ctx, contentlife.ContentTypeArticle)
	require.NoError(t, err)
	require.Len(t, articles, 2)
	assert.Equal(t, "newer", articles[0].Title)
	assert.Equal(t, "older", articles[1].Title)
}

func TestClonesIsolateCallers(t *testing.T) {
	r := New()
	ctx := context.Background()

	record := newRecord("isolated")
	record.Slots = map[string]contentlife.BlobRef{contentlife.SlotPDF: {BlobID: "ab/pdf"}}
	require.NoError(t, r.Create(ctx, record))

	got, err := r.Get(ctx, record.ID)
	require.NoError(t, err)
	got.Slots["sneaky"] = contentlife.BlobRef{BlobID: "ab/sneak"}

	again, err := r.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Len(t, again.Slots, 1)
}
