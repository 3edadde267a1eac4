package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pressly-club/magazine-content/pkg/contentlife"
)

// Memory is an in-memory contentlife.CleanupQueue with the same retry and
// dead-letter semantics as Bolt, minus durability. Used in tests and
// development.
type Memory struct {
	mu          sync.Mutex
	tasks       map[string]contentlife.CleanupTask
	dead        map[string]contentlife.CleanupTask
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	now         func() time.Time
}

// MemoryOption configures a Memory queue.
type MemoryOption func(*Memory)

// WithMemoryMaxAttempts sets the dead-letter threshold.
func WithMemoryMaxAttempts(n int) MemoryOption {
	return func(m *Memory) { m.maxAttempts = n }
}

// WithMemoryBackoff sets the base and cap of the retry delay.
func WithMemoryBackoff(base, max time.Duration) MemoryOption {
	return func(m *Memory) { m.baseDelay, m.maxDelay = base, max }
}

// WithMemoryNow sets the time source.
func WithMemoryNow(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory creates a new in-memory cleanup queue.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		tasks:       make(map[string]contentlife.CleanupTask),
		dead:        make(map[string]contentlife.CleanupTask),
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		maxDelay:    DefaultMaxDelay,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Enqueue(ctx context.Context, task contentlife.CleanupTask) error {
	if task.BlobID == "" {
		return fmt.Errorf("cleanup task has empty blob id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[task.BlobID]; exists {
		return nil
	}
	if task.NextAttemptAt.IsZero() {
		task.NextAttemptAt = m.now().UTC()
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = m.now().UTC()
	}
	m.tasks[task.BlobID] = task
	return nil
}

func (m *Memory) Due(ctx context.Context, now time.Time) ([]contentlife.CleanupTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []contentlife.CleanupTask
	for _, task := range m.tasks {
		if !task.NextAttemptAt.After(now) {
			due = append(due, task)
		}
	}
	return due, nil
}

func (m *Memory) Ack(ctx context.Context, blobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[blobID]; !exists {
		return contentlife.ErrTaskNotFound
	}
	delete(m.tasks, blobID)
	return nil
}

func (m *Memory) Nack(ctx context.Context, blobID string, taskErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, exists := m.tasks[blobID]
	if !exists {
		return contentlife.ErrTaskNotFound
	}

	task.Attempts++
	if taskErr != nil {
		task.LastError = taskErr.Error()
	}

	if task.Attempts >= m.maxAttempts {
		delete(m.tasks, blobID)
		m.dead[blobID] = task
		return nil
	}

	task.NextAttemptAt = m.now().UTC().Add(backoff(task.Attempts, m.baseDelay, m.maxDelay))
	m.tasks[blobID] = task
	return nil
}

func (m *Memory) Pending(ctx context.Context) ([]contentlife.CleanupTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tasks := make([]contentlife.CleanupTask, 0, len(m.tasks))
	for _, task := range m.tasks {
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (m *Memory) DeadLetters(ctx context.Context) ([]contentlife.CleanupTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tasks := make([]contentlife.CleanupTask, 0, len(m.dead))
	for _, task := range m.dead {
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (m *Memory) Redrive(ctx context.Context, blobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, exists := m.dead[blobID]
	if !exists {
		return contentlife.ErrTaskNotFound
	}
	delete(m.dead, blobID)

	task.Attempts = 0
	task.LastError = ""
	task.NextAttemptAt = m.now().UTC()
	m.tasks[blobID] = task
	return nil
}
