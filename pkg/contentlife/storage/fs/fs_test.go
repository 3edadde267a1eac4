package fs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressly-club/magazine-content/pkg/contentlife"
	"github.com/pressly-club/magazine-content/pkg/contentlife/blobkey"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	return b
}

func TestNewRequiresBaseDir(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestStoreFetchDelete(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	info, err := b.Store(ctx, strings.NewReader("pdf bytes"))
	require.NoError(t, err)
	assert.True(t, blobkey.Valid(info.BlobID))
	assert.Equal(t, int64(len("pdf bytes")), info.Size)
	assert.NotEmpty(t, info.Checksum)

	rc, err := b.Fetch(ctx, info.BlobID)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "pdf bytes", string(data))

	require.NoError(t, b.Delete(ctx, info.BlobID))
	require.NoError(t, b.Delete(ctx, info.BlobID))
	_, err = b.Fetch(ctx, info.BlobID)
	assert.ErrorIs(t, err, contentlife.ErrBlobNotFound)
}

func TestMalformedKeyRejected(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	_, err := b.Fetch(ctx, "../../etc/passwd")
	var serr *contentlife.StorageError
	assert.ErrorAs(t, err, &serr)

	err = b.Delete(ctx, "../escape")
	assert.ErrorAs(t, err, &serr)
}

func TestListSkipsStrays(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	info, err := b.Store(ctx, strings.NewReader("real blob"))
	require.NoError(t, err)

	// A leftover temp file must not appear as a blob.
	stray := filepath.Join(b.baseDir, "ab")
	require.NoError(t, os.MkdirAll(stray, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(stray, ".upload-zz"), []byte("junk"), 0o644))

	infos, err := b.List(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, info.BlobID, infos[0].BlobID)
}
