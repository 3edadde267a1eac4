package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pressly-club/magazine-content/pkg/contentlife"
)

// DBTX is satisfied by both a pgx pool and a transaction.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository implements contentlife.MetadataRepository using PostgreSQL.
// The slots and fields maps are stored as jsonb; the version column carries
// the optimistic-concurrency counter and is checked in the UPDATE's WHERE
// clause, so the conflict decision happens inside the database.
type Repository struct {
	db DBTX
}

// NewWithPool creates a new PostgreSQL repository backed by a connection pool.
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

func (r *Repository) Create(ctx context.Context, record *contentlife.ContentRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.Version == 0 {
		record.Version = 1
	}

	fields, slots, err := marshalMaps(record)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO content (
			id, content_type, title, body, fields, slots,
			status, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.db.Exec(ctx, query,
		record.ID, record.Type, record.Title, record.Body, fields, slots,
		record.Status, record.Version, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create content: %w", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*contentlife.ContentRecord, error) {
	return scanContent(r.db.QueryRow(ctx, selectContent+` WHERE id = $1`, id))
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, expectedVersion int64, mutate func(*contentlife.ContentRecord) error) (*contentlife.ContentRecord, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanContent(tx.QueryRow(ctx, selectContent+` WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
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

	fields, slots, err := marshalMaps(updated)
	if err != nil {
		return nil, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE content
		SET title = $1, body = $2, fields = $3, slots = $4,
		    status = $5, version = $6, updated_at = $7
		WHERE id = $8 AND version = $9`,
		updated.Title, updated.Body, fields, slots,
		updated.Status, updated.Version, updated.UpdatedAt,
		id, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("update content: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, contentlife.ErrConcurrencyConflict
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return updated, nil
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (*contentlife.ContentRecord, error) {
	return scanContent(r.db.QueryRow(ctx, `
		DELETE FROM content WHERE id = $1
		RETURNING id, content_type, title, body, fields, slots,
		          status, version, created_at, updated_at`, id))
}

func (r *Repository) List(ctx context.Context, contentType contentlife.ContentType) ([]*contentlife.ContentRecord, error) {
	rows, err := r.db.Query(ctx, selectContent+` WHERE content_type = $1 ORDER BY created_at DESC`, contentType)
	if err != nil {
		return nil, fmt.Errorf("list content: %w", err)
	}
	defer rows.Close()

	var result []*contentlife.ContentRecord
	for rows.Next() {
		record, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, record)
	}
	return result, rows.Err()
}

const selectContent = `
	SELECT id, content_type, title, body, fields, slots,
	       status, version, created_at, updated_at
	FROM content`

func scanContent(row pgx.Row) (*contentlife.ContentRecord, error) {
	var record contentlife.ContentRecord
	var fields, slots []byte

	err := row.Scan(
		&record.ID, &record.Type, &record.Title, &record.Body, &fields, &slots,
		&record.Status, &record.Version, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, contentlife.ErrNotFound
		}
		return nil, fmt.Errorf("scan content: %w", err)
	}

	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &record.Fields); err != nil {
			return nil, fmt.Errorf("decode fields: %w", err)
		}
	}
	if len(slots) > 0 {
		if err := json.Unmarshal(slots, &record.Slots); err != nil {
			return nil, fmt.Errorf("decode slots: %w", err)
		}
	}
	return &record, nil
}

func marshalMaps(record *contentlife.ContentRecord) (fields, slots []byte, err error) {
	fields, err = json.Marshal(record.Fields)
	if err != nil {
		return nil, nil, fmt.Errorf("encode fields: %w", err)
	}
	slots, err = json.Marshal(record.Slots)
	if err != nil {
		return nil, nil, fmt.Errorf("encode slots: %w", err)
	}
	return fields, slots, nil
}
