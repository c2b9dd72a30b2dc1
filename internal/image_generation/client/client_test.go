package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelforge/imagegen-backend/internal/image_generation/domain"
)

func TestClient_CountAndList(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/requests/count", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"count":25}`)
	})
	mux.HandleFunc("/api/v1/requests", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "20", r.URL.Query().Get("offset"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		fmt.Fprint(w, `{"requests":[{"id":"a","prompt":"p","images":[],"status":"running","generated_image_url":null,"created_at":"2026-01-02T03:04:05Z"}]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL + "/api/v1/")
	ctx := context.Background()

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 25, n)

	rows, err := c.List(ctx, 20, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "a", rows[0].ID)
	assert.Equal(t, domain.StatusRunning, rows[0].Status)
	assert.Nil(t, rows[0].ResultImageURL)
}

func TestClient_FetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":"failed to list requests"}`)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.List(context.Background(), 0, 10)

	var ferr *domain.FetchError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "range", ferr.Op)
	var herr *HTTPError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, http.StatusInternalServerError, herr.StatusCode)
	assert.Equal(t, "failed to list requests", herr.Message)

	_, err = c.Count(context.Background())
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "count", ferr.Op)
}

func TestClient_GetNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"request not found"}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Get(context.Background(), "missing")
	assert.True(t, IsNotFound(err))
}

func TestClient_Submit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generate-image", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "a lighthouse", r.FormValue("prompt"))
		assert.Equal(t, "4:5", r.FormValue("aspect_ratio"))
		assert.Equal(t, "4K", r.FormValue("resolution"))
		assert.Equal(t, "png", r.FormValue("output_format"))

		files := r.MultipartForm.File["images"]
		require.Len(t, files, 2)
		assert.Equal(t, "one.png", files[0].Filename)
		assert.Equal(t, "image/png", files[0].Header.Get("Content-Type"))
		f, _ := files[1].Open()
		data, _ := io.ReadAll(f)
		assert.Equal(t, []byte("two"), data)

		w.WriteHeader(http.StatusAccepted)
		fmt.Fprint(w, `{"request":{"id":"r1","prompt":"a lighthouse","status":"running"}}`)
	}))
	defer srv.Close()

	req, err := New(srv.URL).Submit(context.Background(), domain.CreateRequest{
		Prompt:       "a lighthouse",
		AspectRatio:  "4:5",
		Resolution:   domain.Resolution4K,
		OutputFormat: domain.OutputPNG,
		Images: []domain.ImageUpload{
			{Filename: "one.png", ContentType: "image/png", Data: []byte("one")},
			{Filename: "two.webp", ContentType: "image/webp", Data: []byte("two")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "r1", req.ID)
}

func TestClient_SubmitRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"validation failed","details":["prompt: prompt is required"]}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Submit(context.Background(), domain.CreateRequest{Prompt: " "})
	var serr *domain.SubmissionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusBadRequest, serr.StatusCode)
	assert.Contains(t, err.Error(), "prompt: prompt is required")
}

func TestClient_SubmitUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url).Submit(context.Background(), domain.CreateRequest{Prompt: "x"})
	var serr *domain.SubmissionError
	require.ErrorAs(t, err, &serr)
	assert.Zero(t, serr.StatusCode)
}

func TestClient_Download(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/results/ok.png" {
			w.Write([]byte("png-bytes"))
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(srv.URL)
	data, err := c.Download(context.Background(), srv.URL+"/results/ok.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)

	_, err = c.Download(context.Background(), srv.URL+"/results/nope.png")
	var herr *HTTPError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, http.StatusForbidden, herr.StatusCode)

	assert.Equal(t, srv.URL+"/requests/a%2Fb/download", c.DownloadURL("a/b"))
}

func TestClient_Subscribe(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/requests/stream", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		row, _ := json.Marshal(domain.GenerationRequest{ID: "r1", Status: domain.StatusRunning})
		fmt.Fprint(w, ": connected\n\n")
		fmt.Fprintf(w, "event: insert\ndata: %s\n\n", row)
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "event: delete\ndata: {\"id\":\"r1\"}\n\n")
		fmt.Fprint(w, "event: update\ndata: not-json\n\n")
		fmt.Fprint(w, "event: update\r\ndata: {\"id\":\"r1\",\"status\":\"failed\"}\r\n\r\n")
		flusher.Flush()

		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	stream, err := New(srv.URL).Subscribe(context.Background())
	require.NoError(t, err)

	first := next(t, stream)
	assert.Equal(t, domain.EventInsert, first.Type)
	assert.Equal(t, "r1", first.Row.ID)

	second := next(t, stream)
	assert.Equal(t, domain.EventUpdate, second.Type, "unknown and malformed events are skipped")
	assert.Equal(t, domain.StatusFailed, second.Row.Status)

	require.NoError(t, stream.Close())
	_, ok := <-stream.Events()
	assert.False(t, ok)
	assert.NoError(t, stream.Err(), "closing is not a failure")
}

func TestClient_SubscribeServerGone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": connected\n\n")
	}))
	defer srv.Close()

	stream, err := New(srv.URL).Subscribe(context.Background())
	require.NoError(t, err)

	select {
	case _, ok := <-stream.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end")
	}
	<-stream.done
	assert.Error(t, stream.Err())
}

func TestClient_SubscribeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":"change feed unavailable"}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Subscribe(context.Background())
	var herr *HTTPError
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, http.StatusServiceUnavailable, herr.StatusCode)
}

func next(t *testing.T, s *Stream) domain.ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		require.True(t, ok, "stream closed early")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change event")
	}
	return domain.ChangeEvent{}
}
