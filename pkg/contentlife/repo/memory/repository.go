package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pressly-club/magazine-content/pkg/contentlife"
)

// Repository implements contentlife.MetadataRepository using in-memory
// storage. Safe for concurrent use; the optimistic version check runs under
// the write lock, so two racing updates resolve exactly like they would
// against a real database.
type Repository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*contentlife.ContentRecord
}

// New creates a new in-memory repository.
func New() *Repository {
	return &Repository{
		records: make(map[uuid.UUID]*contentlife.ContentRecord),
	}
}

func (r *Repository) Create(ctx context.Context, record *contentlife.ContentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.Version == 0 {
		record.Version = 1
	}
	r.records[record.ID] = record.Clone()
	return nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*contentlife.ContentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, exists := r.records[id]
	if !exists {
		return nil, contentlife.ErrNotFound
	}
	return record.Clone(), nil
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, expectedVersion int64, mutate func(*contentlife.ContentRecord) error) (*contentlife.ContentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.records[id]
	if !exists {
		return nil, contentlife.ErrNotFound
	}
	if current.Version != expectedVersion {
		return nil, contentlife.ErrConcurrencyConflict
	}

	updated := current.Clone()
	if err := mutate(updated); err != nil {
		return nil, err
	}
	updated.ID = id
	updated.Version = expectedVersion + 1
	if updated.UpdatedAt.IsZero() || updated.UpdatedAt.Equal(current.UpdatedAt) {
		updated.UpdatedAt = time.Now().UTC()
	}

	r.records[id] = updated
	return updated.Clone(), nil
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (*contentlife.ContentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, exists := r.records[id]
	if !exists {
		return nil, contentlife.ErrNotFound
	}
	delete(r.records, id)
	return record, nil
}

func (r *Repository) List(ctx context.Context, contentType contentlife.ContentType) ([]*contentlife.ContentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*contentlife.ContentRecord
	for _, record := range r.records {
		if record.Type == contentType {
			result = append(result, record.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}
