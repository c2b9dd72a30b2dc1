package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/pixelforge/imagegen-backend/internal/image_generation/domain"
	"github.com/pixelforge/imagegen-backend/internal/image_generation/provider"
	"github.com/pixelforge/imagegen-backend/internal/storage/objectstore"
)

var (
	pngBytes  = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)
	jpegBytes = append([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, make([]byte, 64)...)
	gifBytes  = append([]byte("GIF89a"), make([]byte, 64)...)
)

type memStore struct {
	mu   sync.Mutex
	rows map[string]*domain.GenerationRequest
	now  time.Time
}

func newMemStore() *memStore {
	return &memStore{rows: map[string]*domain.GenerationRequest{}, now: time.Now()}
}

func (m *memStore) Create(_ context.Context, req *domain.GenerationRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req.Status = domain.StatusRunning
	m.now = m.now.Add(time.Second)
	req.CreatedAt = m.now
	cp := *req
	m.rows[req.ID] = &cp
	return nil
}

func (m *memStore) Complete(_ context.Context, id string, status domain.Status, url *string) (*domain.GenerationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrRequestNotFound
	}
	var err error
	if status == domain.StatusDone {
		if url == nil {
			return nil, domain.ErrMissingResult
		}
		err = row.Complete(*url)
	} else {
		err = row.Fail()
	}
	if err != nil {
		return nil, err
	}
	cp := *row
	return &cp, nil
}

func (m *memStore) Get(_ context.Context, id string) (*domain.GenerationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrRequestNotFound
	}
	cp := *row
	return &cp, nil
}

func (m *memStore) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows), nil
}

func (m *memStore) sorted() []domain.GenerationRequest {
	out := make([]domain.GenerationRequest, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (m *memStore) List(_ context.Context, offset, limit int) ([]domain.GenerationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sorted()
	if offset >= len(all) {
		return []domain.GenerationRequest{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *memStore) FailStale(_ context.Context, cutoff time.Time) ([]domain.GenerationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.GenerationRequest
	for _, r := range m.rows {
		if r.Status == domain.StatusRunning && r.CreatedAt.Before(cutoff) {
			_ = r.Fail()
			out = append(out, *r)
		}
	}
	return out, nil
}

type recordingFeed struct {
	mu     sync.Mutex
	events []domain.ChangeEvent
	err    error
}

func (f *recordingFeed) Publish(_ context.Context, ev domain.ChangeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.err
}

func (f *recordingFeed) snapshot() []domain.ChangeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ChangeEvent(nil), f.events...)
}

type fakeGenerator struct {
	err      error
	fetchErr error
	block    chan struct{}
	mu       sync.Mutex
	calls    []provider.GenerateRequest
}

func (g *fakeGenerator) Generate(ctx context.Context, req provider.GenerateRequest) (*provider.Result, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	g.mu.Unlock()
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if g.err != nil {
		return nil, g.err
	}
	return &provider.Result{ImageURL: "https://provider.example.com/out.png", ContentType: "image/png"}, nil
}

func (g *fakeGenerator) FetchImage(context.Context, string) ([]byte, string, error) {
	if g.fetchErr != nil {
		return nil, "", g.fetchErr
	}
	return pngBytes, "image/png", nil
}

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemObjects() *memObjects { return &memObjects{objects: map[string][]byte{}} }

func (o *memObjects) Put(_ context.Context, key, _ string, body []byte) (string, error) {
	if o.putErr != nil {
		return "", o.putErr
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[key] = body
	return "https://cdn.example.com/" + key, nil
}

func (o *memObjects) Get(_ context.Context, key string) (io.ReadCloser, string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	body, ok := o.objects[key]
	if !ok {
		return nil, "", objectstore.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(body)), "", nil
}

var errProvider = errors.New("provider exploded")
