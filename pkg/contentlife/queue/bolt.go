// Package queue provides CleanupQueue implementations and the background
// worker that drains them against a blob store.
package queue

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/pressly-club/magazine-content/pkg/contentlife"
)

// bbolt bucket names. Tasks are keyed by blob ID; the due index maps
// nextAttemptAt(uint64BE)+blobID → blobID so Due is a bounded cursor scan.
var (
	bucketTasks = []byte("cleanup_tasks")
	bucketDue   = []byte("cleanup_due")
	bucketDead  = []byte("cleanup_dead")
)

// Defaults for the retry policy.
const (
	DefaultMaxAttempts = 8
	DefaultBaseDelay   = 30 * time.Second
	DefaultMaxDelay    = 1 * time.Hour
)

// Bolt is a durable contentlife.CleanupQueue backed by bbolt. Tasks survive
// process restarts; a task is never dropped on transient failure, only moved
// to the dead-letter bucket once it exhausts its attempts.
type Bolt struct {
	db          *bbolt.DB
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	now         func() time.Time
}

// BoltOption configures a Bolt queue.
type BoltOption func(*Bolt)

// WithMaxAttempts sets the dead-letter threshold.
func WithMaxAttempts(n int) BoltOption {
	return func(b *Bolt) { b.maxAttempts = n }
}

// WithBackoff sets the base and cap of the exponential retry delay.
func WithBackoff(base, max time.Duration) BoltOption {
	return func(b *Bolt) { b.baseDelay, b.maxDelay = base, max }
}

// WithNow sets the time source, for tests.
func WithNow(now func() time.Time) BoltOption {
	return func(b *Bolt) { b.now = now }
}

// OpenBolt opens (or creates) the queue database at path.
func OpenBolt(path string, opts ...BoltOption) (*Bolt, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening queue database: %w", err)
	}

	b := &Bolt{
		db:          db,
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		maxDelay:    DefaultMaxDelay,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketTasks, bucketDue, bucketDead} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

// Close closes the underlying database.
func (b *Bolt) Close() error {
	return b.db.Close()
}

func (b *Bolt) Enqueue(ctx context.Context, task contentlife.CleanupTask) error {
	if task.BlobID == "" {
		return fmt.Errorf("cleanup task has empty blob id")
	}
	if task.NextAttemptAt.IsZero() {
		task.NextAttemptAt = b.now().UTC()
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = b.now().UTC()
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		tasks := tx.Bucket(bucketTasks)
		if tasks.Get([]byte(task.BlobID)) != nil {
			// Already pending; a second task for the same blob adds nothing,
			// since delete-of-absent is success anyway.
			return nil
		}
		if err := putTask(tx, task); err != nil {
			return err
		}
		return tx.Bucket(bucketDue).Put(dueKey(task), []byte(task.BlobID))
	})
}

func (b *Bolt) Due(ctx context.Context, now time.Time) ([]contentlife.CleanupTask, error) {
	var due []contentlife.CleanupTask
	err := b.db.View(func(tx *bbolt.Tx) error {
		tasks := tx.Bucket(bucketTasks)
		c := tx.Bucket(bucketDue).Cursor()
		max := uint64(now.UTC().UnixNano())
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if binary.BigEndian.Uint64(k[:8]) > max {
				break
			}
			raw := tasks.Get(v)
			if raw == nil {
				continue
			}
			var task contentlife.CleanupTask
			if err := json.Unmarshal(raw, &task); err != nil {
				return fmt.Errorf("decoding task %s: %w", v, err)
			}
			due = append(due, task)
		}
		return nil
	})
	return due, err
}

func (b *Bolt) Ack(ctx context.Context, blobID string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		task, err := getTask(tx, blobID)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketDue).Delete(dueKey(*task)); err != nil {
			return err
		}
		return tx.Bucket(bucketTasks).Delete([]byte(blobID))
	})
}

func (b *Bolt) Nack(ctx context.Context, blobID string, taskErr error) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		task, err := getTask(tx, blobID)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketDue).Delete(dueKey(*task)); err != nil {
			return err
		}

		task.Attempts++
		if taskErr != nil {
			task.LastError = taskErr.Error()
		}

		if task.Attempts >= b.maxAttempts {
			// Out of attempts: surface for manual reconciliation rather
			// than silently losing the task.
			if err := tx.Bucket(bucketTasks).Delete([]byte(blobID)); err != nil {
				return err
			}
			raw, err := json.Marshal(task)
			if err != nil {
				return err
			}
			return tx.Bucket(bucketDead).Put([]byte(blobID), raw)
		}

		task.NextAttemptAt = b.now().UTC().Add(backoff(task.Attempts, b.baseDelay, b.maxDelay))
		if err := putTask(tx, *task); err != nil {
			return err
		}
		return tx.Bucket(bucketDue).Put(dueKey(*task), []byte(blobID))
	})
}

func (b *Bolt) Pending(ctx context.Context) ([]contentlife.CleanupTask, error) {
	return b.listBucket(bucketTasks)
}

func (b *Bolt) DeadLetters(ctx context.Context) ([]contentlife.CleanupTask, error) {
	return b.listBucket(bucketDead)
}

func (b *Bolt) Redrive(ctx context.Context, blobID string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketDead).Get([]byte(blobID))
		if raw == nil {
			return contentlife.ErrTaskNotFound
		}
		var task contentlife.CleanupTask
		if err := json.Unmarshal(raw, &task); err != nil {
			return fmt.Errorf("decoding dead task %s: %w", blobID, err)
		}

		task.Attempts = 0
		task.LastError = ""
		task.NextAttemptAt = b.now().UTC()

		if err := tx.Bucket(bucketDead).Delete([]byte(blobID)); err != nil {
			return err
		}
		if err := putTask(tx, task); err != nil {
			return err
		}
		return tx.Bucket(bucketDue).Put(dueKey(task), []byte(blobID))
	})
}

func (b *Bolt) listBucket(name []byte) ([]contentlife.CleanupTask, error) {
	var tasks []contentlife.CleanupTask
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(name).ForEach(func(k, v []byte) error {
			var task contentlife.CleanupTask
			if err := json.Unmarshal(v, &task); err != nil {
				return fmt.Errorf("decoding task %s: %w", k, err)
			}
			tasks = append(tasks, task)
			return nil
		})
	})
	return tasks, err
}

func getTask(tx *bbolt.Tx, blobID string) (*contentlife.CleanupTask, error) {
	raw := tx.Bucket(bucketTasks).Get([]byte(blobID))
	if raw == nil {
		return nil, contentlife.ErrTaskNotFound
	}
	var task contentlife.CleanupTask
	if err := json.Unmarshal(raw, &task); err != nil {
		return nil, fmt.Errorf("decoding task %s: %w", blobID, err)
	}
	return &task, nil
}

func putTask(tx *bbolt.Tx, task contentlife.CleanupTask) error {
	raw, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketTasks).Put([]byte(task.BlobID), raw)
}

// dueKey builds the due-index key: nextAttemptAt as big-endian nanos followed
// by the blob ID, so cursor order is schedule order.
func dueKey(task contentlife.CleanupTask) []byte {
	key := make([]byte, 8+len(task.BlobID))
	binary.BigEndian.PutUint64(key[:8], uint64(task.NextAttemptAt.UTC().UnixNano()))
	copy(key[8:], task.BlobID)
	return key
}

// backoff returns base<<(attempts-1) capped at max.
func backoff(attempts int, base, max time.Duration) time.Duration {
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
