package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pressly-club/magazine-content/pkg/contentlife"
)

// DefaultDrainInterval is how often the worker polls for due tasks.
const DefaultDrainInterval = 15 * time.Second

// Worker drains a cleanup queue against a blob store on its own schedule,
// decoupled from request latency: a record update never waits for the old
// blob to actually be deleted.
type Worker struct {
	queue    contentlife.CleanupQueue
	blobs    contentlife.BlobStore
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) WorkerOption {
	return func(w *Worker) { w.interval = d }
}

// WithWorkerLogger sets the logger.
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) { w.logger = logger }
}

// WithWorkerNow sets the time source.
func WithWorkerNow(now func() time.Time) WorkerOption {
	return func(w *Worker) { w.now = now }
}

// NewWorker creates a drain worker over the given queue and blob store.
func NewWorker(q contentlife.CleanupQueue, blobs contentlife.BlobStore, opts ...WorkerOption) *Worker {
	w := &Worker{
		queue:    q,
		blobs:    blobs,
		interval: DefaultDrainInterval,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run drains the queue on every tick until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.DrainOnce(ctx); err != nil {
				w.logger.Error("cleanup drain failed", "error", err)
			}
		}
	}
}

// DrainOnce processes every currently-due task and returns how many blob
// deletions completed. A blob that is already gone counts as completed:
// deleting an absent blob is a success signal, never an error.
func (w *Worker) DrainOnce(ctx context.Context) (int, error) {
	due, err := w.queue.Due(ctx, w.now().UTC())
	if err != nil {
		return 0, err
	}

	completed := 0
	for _, task := range due {
		if err := ctx.Err(); err != nil {
			return completed, err
		}

		err := w.blobs.Delete(ctx, task.BlobID)
		if err == nil || errors.Is(err, contentlife.ErrBlobNotFound) {
			if err := w.queue.Ack(ctx, task.BlobID); err != nil {
				w.logger.Error("ack cleanup task failed", "blob_id", task.BlobID, "error", err)
				continue
			}
			completed++
			continue
		}

		w.logger.Warn("cleanup delete failed, will retry",
			"blob_id", task.BlobID, "reason", task.Reason,
			"attempts", task.Attempts+1, "error", err)
		if err := w.queue.Nack(ctx, task.BlobID, err); err != nil {
			w.logger.Error("nack cleanup task failed", "blob_id", task.BlobID, "error", err)
		}
	}
	return completed, nil
}
