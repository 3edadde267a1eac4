package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/pressly-club/magazine-content/pkg/contentlife"
)

// AdminHandler exposes the cleanup queue's operator surface: pending tasks,
// dead letters and redrive.
type AdminHandler struct {
	queue contentlife.CleanupQueue
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(queue contentlife.CleanupQueue) *AdminHandler {
	return &AdminHandler{queue: queue}
}

// Routes returns the admin routes.
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/cleanup/pending", h.ListPending)
	r.Get("/cleanup/dead", h.ListDeadLetters)
	r.Post("/cleanup/redrive", h.Redrive)

	return r
}

// TaskResponse is the response body for a cleanup task.
type TaskResponse struct {
	BlobID        string    `json:"blob_id"`
	Reason        string    `json:"reason"`
	Attempts      int       `json:"attempts"`
	NextAttemptAt time.Time `json:"next_attempt_at"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
	LastError     string    `json:"last_error,omitempty"`
}

func toTaskResponses(tasks []contentlife.CleanupTask) []TaskResponse {
	resp := make([]TaskResponse, 0, len(tasks))
	for _, task := range tasks {
		resp = append(resp, TaskResponse{
			BlobID:        task.BlobID,
			Reason:        string(task.Reason),
			Attempts:      task.Attempts,
			NextAttemptAt: task.NextAttemptAt,
			EnqueuedAt:    task.EnqueuedAt,
			LastError:     task.LastError,
		})
	}
	return resp
}

// ListPending handles GET /cleanup/pending.
func (h *AdminHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.queue.Pending(r.Context())
	if err != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: err.Error()})
		return
	}
	render.JSON(w, r, toTaskResponses(tasks))
}

// ListDeadLetters handles GET /cleanup/dead.
func (h *AdminHandler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.queue.DeadLetters(r.Context())
	if err != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: err.Error()})
		return
	}
	render.JSON(w, r, toTaskResponses(tasks))
}

// Redrive handles POST /cleanup/redrive?blob_id=... . The blob ID travels as
// a query parameter because sharded blob keys contain a path separator.
func (h *AdminHandler) Redrive(w http.ResponseWriter, r *http.Request) {
	blobID := r.URL.Query().Get("blob_id")
	if blobID == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "blob_id is required"})
		return
	}
	if err := h.queue.Redrive(r.Context(), blobID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, contentlife.ErrTaskNotFound) {
			status = http.StatusNotFound
		}
		render.Status(r, status)
		render.JSON(w, r, ErrorResponse{Error: err.Error()})
		return
	}
	render.NoContent(w, r)
}
