package fs

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"

	"github.com/pressly-club/magazine-content/pkg/contentlife"
	"github.com/pressly-club/magazine-content/pkg/contentlife/blobkey"
)

// Config options for the filesystem backend.
type Config struct {
	BaseDir string // Base directory for storing blobs
}

// Backend is a filesystem implementation of the contentlife.BlobStore
// interface. Blobs are written to a temp file first and renamed into place,
// so a crashed Store never leaves a readable half-written blob.
type Backend struct {
	baseDir string
}

// New creates a new filesystem blob store.
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	if err := os.MkdirAll(config.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &Backend{baseDir: config.BaseDir}, nil
}

func (b *Backend) Store(ctx context.Context, r io.Reader) (contentlife.BlobInfo, error) {
	key := blobkey.New()
	path := filepath.Join(b.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return contentlife.BlobInfo{}, fmt.Errorf("failed to create shard directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return contentlife.BlobInfo{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	hasher := blake3.New()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	if err != nil {
		tmp.Close()
		return contentlife.BlobInfo{}, fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return contentlife.BlobInfo{}, fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return contentlife.BlobInfo{}, fmt.Errorf("failed to place blob: %w", err)
	}

	return contentlife.BlobInfo{
		BlobID:    key,
		Size:      size,
		Checksum:  hex.EncodeToString(hasher.Sum(nil)),
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (b *Backend) Fetch(ctx context.Context, blobID string) (io.ReadCloser, error) {
	path, err := b.pathFor(blobID)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, contentlife.ErrBlobNotFound
		}
		return nil, err
	}
	return f, nil
}

// Delete removes the blob. Deleting an absent blob is success.
func (b *Backend) Delete(ctx context.Context, blobID string) error {
	path, err := b.pathFor(blobID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (b *Backend) List(ctx context.Context, olderThan time.Time) ([]contentlife.BlobInfo, error) {
	var infos []contentlife.BlobInfo
	err := filepath.WalkDir(b.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(b.baseDir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !blobkey.Valid(key) {
			// Temp files and strays are not blobs.
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		if fi.ModTime().Before(olderThan) {
			infos = append(infos, contentlife.BlobInfo{
				BlobID:    key,
				Size:      fi.Size(),
				CreatedAt: fi.ModTime(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return infos, nil
}

func (b *Backend) pathFor(blobID string) (string, error) {
	if !blobkey.Valid(blobID) {
		return "", &contentlife.StorageError{Op: "resolve", BlobID: blobID, Err: errors.New("malformed blob key")}
	}
	return filepath.Join(b.baseDir, filepath.FromSlash(blobID)), nil
}
