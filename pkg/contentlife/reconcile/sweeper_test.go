package reconcile

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressly-club/magazine-content/pkg/contentlife"
	"github.com/pressly-club/magazine-content/pkg/contentlife/queue"
	"github.com/pressly-club/magazine-content/pkg/contentlife/repo/memory"
	memorystorage "github.com/pressly-club/magazine-content/pkg/contentlife/storage/memory"
)

func TestSweepEnqueuesOrphans(t *testing.T) {
	repo := memory.New()
	blobs := memorystorage.New()
	q := queue.NewMemory()
	ctx := context.Background()

	old := time.Now().UTC().Add(-24 * time.Hour)
	blobs.SetClock(func() time.Time { return old })

	// A blob referenced by a live record.
	referenced, err := blobs.Store(ctx, strings.NewReader("referenced"))
	require.NoError(t, err)
	record := &contentlife.ContentRecord{
		Type:   contentlife.ContentTypeArticle,
		Title:  "holds a blob",
		Status: contentlife.ContentStatusDraft,
		Slots: map[string]contentlife.BlobRef{
			contentlife.SlotImage: {BlobID: referenced.BlobID},
		},
	}
	require.NoError(t, repo.Create(ctx, record))

	// A blob already tracked by the queue.
	queued, err := blobs.Store(ctx, strings.NewReader("queued"))
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, contentlife.CleanupTask{
		BlobID:        queued.BlobID,
		NextAttemptAt: time.Now().UTC().Add(time.Hour),
	}))

	// A true orphan: no reference, no task. The crash window between
	// repository delete and cleanup enqueue produces exactly this state.
	orphan, err := blobs.Store(ctx, strings.NewReader("orphan"))
	require.NoError(t, err)

	blobs.SetClock(time.Now)

	s := NewSweeper(repo, blobs, q, WithMinAge(time.Hour))
	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	var task contentlife.CleanupTask
	for _, p := range pending {
		if p.BlobID == orphan.BlobID {
			task = p
		}
	}
	assert.Equal(t, orphan.BlobID, task.BlobID)
	assert.Equal(t, contentlife.CleanupReasonReconciled, task.Reason)
}

func TestSweepIgnoresYoungBlobs(t *testing.T) {
	repo := memory.New()
	blobs := memorystorage.New()
	q := queue.NewMemory()
	ctx := context.Background()

	// Fresh blob: could belong to an in-flight operation, must be left alone.
	_, err := blobs.Store(ctx, strings.NewReader("in flight"))
	require.NoError(t, err)

	s := NewSweeper(repo, blobs, q, WithMinAge(time.Hour))
	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSweepSkipsDeadLetteredBlobs(t *testing.T) {
	repo := memory.New()
	blobs := memorystorage.New()
	q := queue.NewMemory(queue.WithMemoryMaxAttempts(1))
	ctx := context.Background()

	old := time.Now().UTC().Add(-24 * time.Hour)
	blobs.SetClock(func() time.Time { return old })
	info, err := blobs.Store(ctx, strings.NewReader("dead lettered"))
	require.NoError(t, err)
	blobs.SetClock(time.Now)

	require.NoError(t, q.Enqueue(ctx, contentlife.CleanupTask{BlobID: info.BlobID}))
	require.NoError(t, q.Nack(ctx, info.BlobID, errors.New("permanent failure")))

	// The blob sits in dead letters awaiting an operator; re-enqueueing it
	// would hide the failure.
	s := NewSweeper(repo, blobs, q, WithMinAge(time.Hour))
	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSweepDrainEndToEnd(t *testing.T) {
	repo := memory.New()
	blobs := memorystorage.New()
	q := queue.NewMemory()
	ctx := context.Background()

	old := time.Now().UTC().Add(-24 * time.Hour)
	blobs.SetClock(func() time.Time { return old })
	_, err := blobs.Store(ctx, strings.NewReader("crash leftover"))
	require.NoError(t, err)
	blobs.SetClock(time.Now)

	s := NewSweeper(repo, blobs, q, WithMinAge(time.Hour))
	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	w := queue.NewWorker(q, blobs)
	done, err := w.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, done)
	assert.Equal(t, 0, blobs.Len())
}
