package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressly-club/magazine-content/pkg/contentlife"
	"github.com/pressly-club/magazine-content/pkg/contentlife/queue"
	"github.com/pressly-club/magazine-content/pkg/contentlife/repo/memory"
	memorystorage "github.com/pressly-club/magazine-content/pkg/contentlife/storage/memory"
)

func newTestServer(t *testing.T) (*httptest.Server, *queue.Memory) {
	t.Helper()

	q := queue.NewMemory()
	svc, err := contentlife.New(
		contentlife.WithRepository(memory.New()),
		contentlife.WithBlobStore(memorystorage.New()),
		contentlife.WithCleanupQueue(q),
	)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Mount("/contents", NewContentHandler(svc, slog.Default()).Routes())
	r.Mount("/admin", NewAdminHandler(q).Routes())

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, q
}

func multipartBody(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for slot, content := range files {
		fw, err := w.CreateFormFile(slot, slot+".bin")
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func createArticle(t *testing.T, srv *httptest.Server) ContentResponse {
	t.Helper()

	body, contentType := multipartBody(t,
		map[string]string{
			"type":   "article",
			"title":  "Weaner Market Wrap",
			"fields": `{"region":"south"}`,
		},
		map[string]string{"image": "image bytes"},
	)
	resp, err := http.Post(srv.URL+"/contents/", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created ContentResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	return created
}

func TestCreateAndGetContent(t *testing.T) {
	srv, _ := newTestServer(t)

	created := createArticle(t, srv)
	assert.Equal(t, "article", created.Type)
	assert.Equal(t, "draft", created.Status)
	assert.Equal(t, int64(1), created.Version)
	require.Contains(t, created.Slots, "image")

	resp, err := http.Get(srv.URL + "/contents/" + created.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got ContentResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "south", got.Fields["region"])
}

func TestCreateContentValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	body, contentType := multipartBody(t, map[string]string{
		"type":  "recipe",
		"title": "not a magazine thing",
	}, nil)
	resp, err := http.Post(srv.URL+"/contents/", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDownloadAsset(t *testing.T) {
	srv, _ := newTestServer(t)
	created := createArticle(t, srv)

	resp, err := http.Get(srv.URL + "/contents/" + created.ID + "/assets/image")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "image bytes", string(data))

	resp, err = http.Get(srv.URL + "/contents/" + created.ID + "/assets/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateContentConflict(t *testing.T) {
	srv, _ := newTestServer(t)
	created := createArticle(t, srv)

	patch := func(version int64) *http.Response {
		body, contentType := multipartBody(t, map[string]string{
			"expected_version": fmt.Sprintf("%d", version),
			"title":            "Updated Wrap",
		}, nil)
		req, err := http.NewRequest(http.MethodPatch, srv.URL+"/contents/"+created.ID, body)
		require.NoError(t, err)
		req.Header.Set("Content-Type", contentType)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	resp := patch(created.Version)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated ContentResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&updated))
	assert.Equal(t, created.Version+1, updated.Version)

	// Same stale version again: conflict.
	stale := patch(created.Version)
	defer stale.Body.Close()
	assert.Equal(t, http.StatusConflict, stale.StatusCode)
}

func TestDeleteContentIdempotent(t *testing.T) {
	srv, q := newTestServer(t)
	created := createArticle(t, srv)

	del := func() int {
		req, err := http.NewRequest(http.MethodDelete, srv.URL+"/contents/"+created.ID, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusNoContent, del())
	assert.Equal(t, http.StatusNoContent, del())

	pending, err := q.Pending(context.Background())
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestAdminCleanupSurfaces(t *testing.T) {
	srv, q := newTestServer(t)

	require.NoError(t, q.Enqueue(context.Background(), contentlife.CleanupTask{
		BlobID: "ab/pendingblob",
		Reason: contentlife.CleanupReasonSuperseded,
	}))

	resp, err := http.Get(srv.URL + "/admin/cleanup/pending")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tasks []TaskResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, "ab/pendingblob", tasks[0].BlobID)

	// Nothing dead-lettered yet.
	resp, err = http.Get(srv.URL + "/admin/cleanup/dead")
	require.NoError(t, err)
	defer resp.Body.Close()
	var dead []TaskResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&dead))
	assert.Empty(t, dead)

	// Redrive of an unknown blob is a 404.
	resp, err = http.Post(srv.URL+"/admin/cleanup/redrive?blob_id=ab%2Fnope", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
