package queue

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressly-club/magazine-content/pkg/contentlife"
	memorystorage "github.com/pressly-club/magazine-content/pkg/contentlife/storage/memory"
)

// flakyStore fails deletes until allowed, to exercise the retry path.
type flakyStore struct {
	contentlife.BlobStore
	failDeletes bool
}

func (s *flakyStore) Delete(ctx context.Context, blobID string) error {
	if s.failDeletes {
		return errors.New("backend unavailable")
	}
	return s.BlobStore.Delete(ctx, blobID)
}

func TestWorkerDrainDeletesBlobs(t *testing.T) {
	blobs := memorystorage.New()
	q := NewMemory()
	ctx := context.Background()

	info, err := blobs.Store(ctx, strings.NewReader("payload"))
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, contentlife.CleanupTask{
		BlobID: info.BlobID,
		Reason: contentlife.CleanupReasonSuperseded,
	}))

	w := NewWorker(q, blobs)
	n, err := w.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, blobs.Len())

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestWorkerAbsentBlobIsSuccess(t *testing.T) {
	blobs := memorystorage.New()
	q := NewMemory()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, contentlife.CleanupTask{BlobID: "ab/alreadygone"}))

	w := NewWorker(q, blobs)
	n, err := w.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestWorkerRetriesTransientFailure(t *testing.T) {
	current := time.Now().UTC()
	blobs := memorystorage.New()
	store := &flakyStore{BlobStore: blobs, failDeletes: true}
	q := NewMemory(
		WithMemoryBackoff(time.Millisecond, time.Second),
		WithMemoryNow(func() time.Time { return current }),
	)
	ctx := context.Background()

	info, err := blobs.Store(ctx, strings.NewReader("payload"))
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, contentlife.CleanupTask{BlobID: info.BlobID}))

	w := NewWorker(q, store, WithWorkerNow(func() time.Time { return current }))
	n, err := w.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Task survived the failure with an incremented attempt count.
	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)

	// Backend recovers; the next due drain completes the delete.
	store.failDeletes = false
	current = current.Add(time.Second)
	n, err = w.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, blobs.Len())
}
