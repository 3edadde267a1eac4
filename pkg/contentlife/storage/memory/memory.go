package memory

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/pressly-club/magazine-content/pkg/contentlife"
	"github.com/pressly-club/magazine-content/pkg/contentlife/blobkey"
)

// Backend is an in-memory implementation of the contentlife.BlobStore
// interface, used in tests and development.
type Backend struct {
	mu    sync.RWMutex
	blobs map[string][]byte
	infos map[string]contentlife.BlobInfo
	now   func() time.Time
}

// New creates a new in-memory blob store.
func New() *Backend {
	return &Backend{
		blobs: make(map[string][]byte),
		infos: make(map[string]contentlife.BlobInfo),
		now:   time.Now,
	}
}

// SetClock overrides the time source, for tests that probe the reconciliation
// list contract.
func (b *Backend) SetClock(now func() time.Time) { b.now = now }

func (b *Backend) Store(ctx context.Context, r io.Reader) (contentlife.BlobInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return contentlife.BlobInfo{}, err
	}

	sum := blake3.Sum256(data)
	info := contentlife.BlobInfo{
		BlobID:    blobkey.New(),
		Size:      int64(len(data)),
		Checksum:  hex.EncodeToString(sum[:]),
		CreatedAt: b.now().UTC(),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[info.BlobID] = data
	b.infos[info.BlobID] = info
	return info, nil
}

func (b *Backend) Fetch(ctx context.Context, blobID string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.blobs[blobID]
	if !exists {
		return nil, contentlife.ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes the blob. Deleting an absent blob is success.
func (b *Backend) Delete(ctx context.Context, blobID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.blobs, blobID)
	delete(b.infos, blobID)
	return nil
}

func (b *Backend) List(ctx context.Context, olderThan time.Time) ([]contentlife.BlobInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var infos []contentlife.BlobInfo
	for _, info := range b.infos {
		if info.CreatedAt.Before(olderThan) {
			infos = append(infos, info)
		}
	}
	return infos, nil
}

// Len returns the number of stored blobs, for tests.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.blobs)
}
