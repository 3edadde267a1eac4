// Package reconcile closes the residual orphan window the lifecycle
// coordinator leaves open: a crash between a repository delete and the
// cleanup enqueue strands a blob with no reference and no task. The sweeper
// finds such blobs and hands them to the cleanup queue.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/pressly-club/magazine-content/pkg/contentlife"
)

// DefaultMinAge is how old a blob must be before the sweeper will consider
// it an orphan candidate. Young blobs may belong to an operation still in
// flight.
const DefaultMinAge = 6 * time.Hour

// DefaultInterval is how often Run sweeps.
const DefaultInterval = time.Hour

// Sweeper re-enqueues orphaned blobs, either on demand via Sweep or
// periodically via Run.
type Sweeper struct {
	repo     contentlife.MetadataRepository
	blobs    contentlife.BlobStore
	queue    contentlife.CleanupQueue
	minAge   time.Duration
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithMinAge sets the minimum blob age for orphan candidacy.
func WithMinAge(d time.Duration) Option {
	return func(s *Sweeper) { s.minAge = d }
}

// WithInterval sets how often Run sweeps.
func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) { s.interval = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = logger }
}

// WithNow sets the time source, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// NewSweeper creates a sweeper over the given repository, blob store and
// cleanup queue.
func NewSweeper(repo contentlife.MetadataRepository, blobs contentlife.BlobStore, queue contentlife.CleanupQueue, opts ...Option) *Sweeper {
	s := &Sweeper{
		repo:     repo,
		blobs:    blobs,
		queue:    queue,
		minAge:   DefaultMinAge,
		interval: DefaultInterval,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("reconciliation sweep failed", "error", err)
			}
		}
	}
}

// Sweep lists blobs older than the minimum age, subtracts every blob still
// referenced by a live record and every blob already tracked by the queue
// (pending or dead-lettered), and enqueues a cleanup task for the rest.
// It returns the number of orphans enqueued.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.minAge)

	candidates, err := s.blobs.List(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	tracked, err := s.trackedBlobIDs(ctx)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, info := range candidates {
		if tracked[info.BlobID] {
			continue
		}
		task := contentlife.CleanupTask{
			BlobID:        info.BlobID,
			Reason:        contentlife.CleanupReasonReconciled,
			NextAttemptAt: s.now().UTC(),
			EnqueuedAt:    s.now().UTC(),
		}
		if err := s.queue.Enqueue(ctx, task); err != nil {
			return enqueued, err
		}
		s.logger.Info("orphan blob scheduled for cleanup",
			"blob_id", info.BlobID, "size", info.Size, "created_at", info.CreatedAt)
		enqueued++
	}
	return enqueued, nil
}

// trackedBlobIDs collects every blob ID that is either referenced by a live
// record or already known to the cleanup queue.
func (s *Sweeper) trackedBlobIDs(ctx context.Context) (map[string]bool, error) {
	tracked := make(map[string]bool)

	for _, contentType := range contentlife.ContentTypes() {
		records, err := s.repo.List(ctx, contentType)
		if err != nil {
			return nil, err
		}
		for _, record := range records {
			for _, ref := range record.Slots {
				tracked[ref.BlobID] = true
			}
		}
	}

	pending, err := s.queue.Pending(ctx)
	if err != nil {
		return nil, err
	}
	for _, task := range pending {
		tracked[task.BlobID] = true
	}

	dead, err := s.queue.DeadLetters(ctx)
	if err != nil {
		return nil, err
	}
	for _, task := range dead {
		tracked[task.BlobID] = true
	}

	return tracked, nil
}
