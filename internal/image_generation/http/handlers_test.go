package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelforge/imagegen-backend/internal/image_generation/domain"
	"github.com/pixelforge/imagegen-backend/internal/image_generation/service"
	"github.com/pixelforge/imagegen-backend/internal/platform/logger"
)

type fakeService struct {
	mu        sync.Mutex
	submitted *domain.CreateRequest
	submitErr error
	rows      map[string]*domain.GenerationRequest
	listArgs  [2]int
	listErr   error
	result    []byte
}

func (f *fakeService) Submit(_ context.Context, in domain.CreateRequest) (*domain.GenerationRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = &in
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &domain.GenerationRequest{ID: "new-id", Prompt: in.Prompt, Status: domain.StatusRunning, InputImages: []string{}}, nil
}

func (f *fakeService) Count(context.Context) (int, error) { return len(f.rows), nil }

func (f *fakeService) List(_ context.Context, offset, limit int) ([]domain.GenerationRequest, error) {
	f.listArgs = [2]int{offset, limit}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return nil, nil
}

func (f *fakeService) Get(_ context.Context, id string) (*domain.GenerationRequest, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, domain.ErrRequestNotFound
	}
	return row, nil
}

func (f *fakeService) OpenResult(ctx context.Context, id string) (*service.Result, error) {
	row, err := f.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if row.Status != domain.StatusDone {
		return nil, domain.ErrNotDownloadable
	}
	return &service.Result{
		Body:        io.NopCloser(bytes.NewReader(f.result)),
		ContentType: row.OutputFormat.ContentType(),
		FileName:    domain.DownloadFileName(row.ID, row.OutputFormat),
	}, nil
}

func setupRouter(svc RequestService, subscribe SubscribeFunc) (*gin.Engine, *Handler) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := New(svc, subscribe, logger.NewNop())
	h.Register(r.Group("/api/v1"))
	return r, h
}

func multipartBody(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for name, data := range files {
		fw, err := w.CreateFormFile("images", name)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func TestGenerateImage_Accepted(t *testing.T) {
	svc := &fakeService{}
	r, _ := setupRouter(svc, nil)

	body, ct := multipartBody(t,
		map[string]string{"prompt": "a red fox", "aspect_ratio": "16:9", "output_format": "jpg"},
		map[string][]byte{"fox.png": []byte("\x89PNG\r\n\x1a\nrest")},
	)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/generate-image", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	var resp struct {
		Request domain.GenerationRequest `json:"request"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "new-id", resp.Request.ID)
	assert.Equal(t, domain.StatusRunning, resp.Request.Status)

	require.NotNil(t, svc.submitted)
	assert.Equal(t, "a red fox", svc.submitted.Prompt)
	assert.Equal(t, domain.AspectRatio("16:9"), svc.submitted.AspectRatio)
	assert.Equal(t, domain.DefaultResolution, svc.submitted.Resolution, "missing fields fall back to defaults")
	assert.Equal(t, domain.OutputJPG, svc.submitted.OutputFormat)
	require.Len(t, svc.submitted.Images, 1)
	assert.Equal(t, "fox.png", svc.submitted.Images[0].Filename)
}

func TestGenerateImage_ValidationError(t *testing.T) {
	svc := &fakeService{submitErr: domain.ValidationErrors{
		{Field: "prompt", Message: "prompt is required"},
		{Message: "a.gif: Invalid file type. Only JPEG, PNG, and WebP are allowed."},
	}}
	r, _ := setupRouter(svc, nil)

	body, ct := multipartBody(t, map[string]string{"prompt": "  "}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/generate-image", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp struct {
		Error   string   `json:"error"`
		Details []string `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "validation failed", resp.Error)
	assert.Equal(t, []string{
		"prompt: prompt is required",
		"a.gif: Invalid file type. Only JPEG, PNG, and WebP are allowed.",
	}, resp.Details)
}

func TestGenerateImage_TooManyFiles(t *testing.T) {
	svc := &fakeService{}
	r, _ := setupRouter(svc, nil)

	files := map[string][]byte{}
	for _, n := range []string{"1", "2", "3", "4", "5", "6", "7", "8", "9"} {
		files[n+".png"] = []byte("\x89PNG\r\n\x1a\n")
	}
	body, ct := multipartBody(t, map[string]string{"prompt": "x"}, files)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/generate-image", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Maximum 8 files allowed.")
	assert.Nil(t, svc.submitted, "nothing reaches the trigger")
}

func TestGenerateImage_NotMultipart(t *testing.T) {
	r, _ := setupRouter(&fakeService{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/generate-image", strings.NewReader(`{"prompt":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerateImage_InternalError(t *testing.T) {
	r, _ := setupRouter(&fakeService{submitErr: errors.New("db down")}, nil)
	body, ct := multipartBody(t, map[string]string{"prompt": "x"}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/generate-image", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "db down")
}

func TestCountAndList(t *testing.T) {
	svc := &fakeService{rows: map[string]*domain.GenerationRequest{"a": {ID: "a"}, "b": {ID: "b"}}}
	r, _ := setupRouter(svc, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/requests/count", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"count":2}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/requests?offset=20&limit=10", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"requests":[]}`, w.Body.String())
	assert.Equal(t, [2]int{20, 10}, svc.listArgs)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/requests", nil))
	assert.Equal(t, [2]int{0, defaultListLimit}, svc.listArgs)

	for _, q := range []string{"offset=-1", "offset=abc", "limit=0"} {
		w = httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/requests?"+q, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestGetRequest(t *testing.T) {
	url := "https://cdn.example.com/results/a.png"
	svc := &fakeService{rows: map[string]*domain.GenerationRequest{
		"a": {ID: "a", Status: domain.StatusDone, ResultImageURL: &url},
	}}
	r, _ := setupRouter(svc, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/requests/a", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"generated_image_url":"https://cdn.example.com/results/a.png"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/requests/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDownloadResult(t *testing.T) {
	url := "https://cdn.example.com/results/abc.jpg"
	svc := &fakeService{
		rows: map[string]*domain.GenerationRequest{
			"abc":     {ID: "abc", Status: domain.StatusDone, OutputFormat: domain.OutputJPG, ResultImageURL: &url},
			"pending": {ID: "pending", Status: domain.StatusRunning},
		},
		result: []byte("jpeg-bytes"),
	}
	r, _ := setupRouter(svc, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/requests/abc/download", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "jpeg-bytes", w.Body.String())
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="generated-image-abc.jpg"`, w.Header().Get("Content-Disposition"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/requests/pending/download", nil))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/requests/nope/download", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStreamChanges_Unavailable(t *testing.T) {
	r, _ := setupRouter(&fakeService{}, func(context.Context) (EventStream, error) {
		return nil, errors.New("redis down")
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/requests/stream", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

