// Package api exposes the lifecycle coordinator over HTTP. It is a thin
// consuming surface: request parsing and response shaping only, with every
// consistency decision delegated to the coordinator.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/pressly-club/magazine-content/pkg/contentlife"
)

// maxUploadMemory bounds how much of a multipart body is buffered in memory.
const maxUploadMemory = 32 << 20

// ContentHandler handles HTTP requests for content records and their assets.
type ContentHandler struct {
	service contentlife.Service
	logger  *slog.Logger
}

// NewContentHandler creates a new content handler.
func NewContentHandler(service contentlife.Service, logger *slog.Logger) *ContentHandler {
	return &ContentHandler{service: service, logger: logger}
}

// Routes returns the routes for content.
func (h *ContentHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateContent)
	r.Get("/", h.ListContent)
	r.Get("/{id}", h.GetContent)
	r.Patch("/{id}", h.UpdateContent)
	r.Delete("/{id}", h.DeleteContent)

	r.Get("/{id}/assets", h.GetAssetSlots)
	r.Get("/{id}/assets/{slot}", h.DownloadAsset)

	return r
}

// ContentResponse is the response body for a content record.
type ContentResponse struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Body      string            `json:"body,omitempty"`
	Fields    map[string]any    `json:"fields,omitempty"`
	Slots     map[string]string `json:"slots,omitempty"` // slot -> blob id
	Status    string            `json:"status"`
	Version   int64             `json:"version"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func toContentResponse(record *contentlife.ContentRecord) ContentResponse {
	slots := make(map[string]string, len(record.Slots))
	for name, ref := range record.Slots {
		slots[name] = ref.BlobID
	}
	return ContentResponse{
		ID:        record.ID.String(),
		Type:      string(record.Type),
		Title:     record.Title,
		Body:      record.Body,
		Fields:    record.Fields,
		Slots:     slots,
		Status:    string(record.Status),
		Version:   record.Version,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}

// CreateContent handles POST /. The body is multipart/form-data: metadata in
// form values ("type", "title", "body", "status", "fields" as JSON), one file
// part per asset slot.
func (h *ContentHandler) CreateContent(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		h.renderError(w, r, &contentlife.ValidationError{Reason: "invalid multipart body"})
		return
	}

	req := contentlife.CreateContentRequest{
		Type:   contentlife.ContentType(r.FormValue("type")),
		Title:  r.FormValue("title"),
		Body:   r.FormValue("body"),
		Status: contentlife.ContentStatus(r.FormValue("status")),
	}
	if raw := r.FormValue("fields"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Fields); err != nil {
			h.renderError(w, r, &contentlife.ValidationError{Field: "fields", Reason: "invalid JSON"})
			return
		}
	}

	uploads, closeUploads, err := formUploads(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	defer closeUploads()
	req.Uploads = uploads

	record, err := h.service.CreateContent(r.Context(), req)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, toContentResponse(record))
}

// UpdateContent handles PATCH /{id}. Same multipart shape as create, plus
// "expected_version" (required), and "remove_slots" (comma-free repeated form
// values) for clearing slots.
func (h *ContentHandler) UpdateContent(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		h.renderError(w, r, &contentlife.ValidationError{Reason: "invalid multipart body"})
		return
	}

	req := contentlife.UpdateContentRequest{ID: id}

	if v := r.FormValue("expected_version"); v != "" {
		var version int64
		if err := json.Unmarshal([]byte(v), &version); err != nil {
			h.renderError(w, r, &contentlife.ValidationError{Field: "expected_version", Reason: "not an integer"})
			return
		}
		req.ExpectedVersion = version
	}
	if _, ok := r.Form["title"]; ok {
		title := r.FormValue("title")
		req.Title = &title
	}
	if _, ok := r.Form["body"]; ok {
		body := r.FormValue("body")
		req.Body = &body
	}
	if _, ok := r.Form["status"]; ok {
		status := contentlife.ContentStatus(r.FormValue("status"))
		req.Status = &status
	}
	if raw := r.FormValue("fields"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Fields); err != nil {
			h.renderError(w, r, &contentlife.ValidationError{Field: "fields", Reason: "invalid JSON"})
			return
		}
	}
	req.RemoveSlots = r.Form["remove_slots"]

	uploads, closeUploads, err := formUploads(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	defer closeUploads()
	req.Uploads = uploads

	record, err := h.service.UpdateContent(r.Context(), req)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	render.JSON(w, r, toContentResponse(record))
}

// GetContent handles GET /{id}.
func (h *ContentHandler) GetContent(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	record, err := h.service.GetContent(r.Context(), id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, toContentResponse(record))
}

// ListContent handles GET /?type=article.
func (h *ContentHandler) ListContent(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListContent(r.Context(), contentlife.ContentType(r.URL.Query().Get("type")))
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	resp := make([]ContentResponse, 0, len(records))
	for _, record := range records {
		resp = append(resp, toContentResponse(record))
	}
	render.JSON(w, r, resp)
}

// DeleteContent handles DELETE /{id}. Idempotent: deleting an absent record
// is success.
func (h *ContentHandler) DeleteContent(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	if err := h.service.DeleteContent(r.Context(), id); err != nil {
		h.renderError(w, r, err)
		return
	}
	render.NoContent(w, r)
}

// GetAssetSlots handles GET /{id}/assets.
func (h *ContentHandler) GetAssetSlots(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	slots, err := h.service.GetAssetSlots(r.Context(), id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	resp := make(map[string]string, len(slots))
	for name, ref := range slots {
		resp[name] = ref.BlobID
	}
	render.JSON(w, r, resp)
}

// DownloadAsset handles GET /{id}/assets/{slot}, streaming the blob.
func (h *ContentHandler) DownloadAsset(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	rc, ref, err := h.service.OpenAsset(r.Context(), id, chi.URLParam(r, "slot"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("asset stream interrupted", "content_id", id, "blob_id", ref.BlobID, "error", err)
	}
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *ContentHandler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	render.Status(r, statusForError(err))
	render.JSON(w, r, ErrorResponse{Error: err.Error()})
}

func statusForError(err error) int {
	var verr *contentlife.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, contentlife.ErrNotFound), errors.Is(err, contentlife.ErrBlobNotFound):
		return http.StatusNotFound
	case errors.Is(err, contentlife.ErrConcurrencyConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func parseID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, &contentlife.ValidationError{Field: "id", Reason: "not a valid UUID"}
	}
	return id, nil
}

// formUploads collects one upload reader per file field. Each field name is
// the slot the file should fill; only the first file per field is used.
func formUploads(r *http.Request) (map[string]io.Reader, func(), error) {
	if r.MultipartForm == nil || len(r.MultipartForm.File) == 0 {
		return nil, func() {}, nil
	}

	uploads := make(map[string]io.Reader, len(r.MultipartForm.File))
	var open []io.Closer
	closeAll := func() {
		for _, c := range open {
			c.Close()
		}
	}

	for slot, headers := range r.MultipartForm.File {
		if len(headers) == 0 {
			continue
		}
		f, err := headers[0].Open()
		if err != nil {
			closeAll()
			return nil, nil, &contentlife.ValidationError{Field: slot, Reason: "unreadable upload"}
		}
		open = append(open, f)
		uploads[slot] = f
	}
	return uploads, closeAll, nil
}
