package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pixelforge/imagegen-backend/internal/image_generation/domain"
	"github.com/pixelforge/imagegen-backend/internal/image_generation/provider"
	"github.com/pixelforge/imagegen-backend/internal/platform/logger"
	"github.com/pixelforge/imagegen-backend/internal/storage/objectstore"
)

const MaxPageLimit = 100

// Store is the durable request table
type Store interface {
	Create(ctx context.Context, req *domain.GenerationRequest) error
	Complete(ctx context.Context, id string, status domain.Status, resultURL *string) (*domain.GenerationRequest, error)
	Get(ctx context.Context, id string) (*domain.GenerationRequest, error)
	Count(ctx context.Context) (int, error)
	List(ctx context.Context, offset, limit int) ([]domain.GenerationRequest, error)
	FailStale(ctx context.Context, cutoff time.Time) ([]domain.GenerationRequest, error)
}

// Publisher emits change-feed notifications
type Publisher interface {
	Publish(ctx context.Context, ev domain.ChangeEvent) error
}

// Generator is the external image generation provider
type Generator interface {
	Generate(ctx context.Context, req provider.GenerateRequest) (*provider.Result, error)
	FetchImage(ctx context.Context, url string) ([]byte, string, error)
}

// TriggerService accepts submissions, persists them and drives the provider job
// that moves each request to its terminal state.
type TriggerService struct {
	store      Store
	feed       Publisher
	generator  Generator
	objects    objectstore.Store
	log        *logger.Logger
	jobTimeout time.Duration

	jobs    sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewTriggerService creates a new TriggerService
func NewTriggerService(store Store, feed Publisher, generator Generator, objects objectstore.Store, log *logger.Logger, jobTimeout time.Duration) *TriggerService {
	if jobTimeout <= 0 {
		jobTimeout = 5 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TriggerService{
		store:      store,
		feed:       feed,
		generator:  generator,
		objects:    objects,
		log:        log.With("service", "TriggerService"),
		jobTimeout: jobTimeout,
		baseCtx:    ctx,
		cancel:     cancel,
	}
}

// Submit validates and stores a new request in the running state and starts its
// provider job. It returns once the request is accepted, not when it completes.
func (s *TriggerService) Submit(ctx context.Context, in domain.CreateRequest) (*domain.GenerationRequest, error) {
	if err := ValidateCreate(&in); err != nil {
		return nil, err
	}

	req := &domain.GenerationRequest{
		ID:           uuid.New().String(),
		Prompt:       in.Prompt,
		InputImages:  make([]string, 0, len(in.Images)),
		AspectRatio:  in.AspectRatio,
		Resolution:   in.Resolution,
		OutputFormat: in.OutputFormat,
	}

	for i, img := range in.Images {
		url, err := s.objects.Put(ctx, objectstore.InputKey(req.ID, i, img.ContentType), img.ContentType, img.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to store input image %d: %w", i, err)
		}
		req.InputImages = append(req.InputImages, url)
	}

	if err := s.store.Create(ctx, req); err != nil {
		return nil, err
	}
	s.publish(ctx, domain.EventInsert, req)

	s.log.Info("generation request accepted", "request_id", req.ID, "images", len(req.InputImages))

	s.jobs.Add(1)
	go func(row domain.GenerationRequest) {
		defer s.jobs.Done()
		s.runJob(row)
	}(*req)

	return req, nil
}

func (s *TriggerService) runJob(req domain.GenerationRequest) {
	ctx, cancel := context.WithTimeout(s.baseCtx, s.jobTimeout)
	defer cancel()

	status := domain.StatusFailed
	var resultURL *string

	url, err := s.generate(ctx, &req)
	if err != nil {
		s.log.Warn("generation failed", "request_id", req.ID, "error", err)
	} else {
		status = domain.StatusDone
		resultURL = &url
	}

	// The store update must land even when the job context has expired.
	writeCtx, writeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer writeCancel()

	updated, err := s.store.Complete(writeCtx, req.ID, status, resultURL)
	if errors.Is(err, domain.ErrAlreadyTerminal) {
		s.log.Info("request already finished, dropping job result", "request_id", req.ID, "status", status)
		return
	}
	if err != nil {
		s.log.Error("failed to record generation result", "request_id", req.ID, "error", err)
		return
	}

	s.publish(writeCtx, domain.EventUpdate, updated)
	s.log.Info("generation request finished", "request_id", req.ID, "status", updated.Status)
}

func (s *TriggerService) generate(ctx context.Context, req *domain.GenerationRequest) (string, error) {
	res, err := s.generator.Generate(ctx, provider.GenerateRequest{
		Prompt:       req.Prompt,
		ImageURLs:    req.InputImages,
		AspectRatio:  string(req.AspectRatio),
		Resolution:   string(req.Resolution),
		OutputFormat: string(req.OutputFormat),
	})
	if err != nil {
		return "", err
	}

	data, _, err := s.generator.FetchImage(ctx, res.ImageURL)
	if err != nil {
		return "", err
	}

	key := objectstore.ResultKey(req.ID, string(req.OutputFormat))
	url, err := s.objects.Put(ctx, key, req.OutputFormat.ContentType(), data)
	if err != nil {
		return "", err
	}
	return url, nil
}

func (s *TriggerService) publish(ctx context.Context, typ domain.EventType, req *domain.GenerationRequest) {
	if err := s.feed.Publish(ctx, domain.ChangeEvent{Type: typ, Row: *req}); err != nil {
		s.log.Warn("failed to publish change event", "request_id", req.ID, "event", typ, "error", err)
	}
}

// Count returns the total number of requests
func (s *TriggerService) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}

// List returns a window of requests ordered newest first
func (s *TriggerService) List(ctx context.Context, offset, limit int) ([]domain.GenerationRequest, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return s.store.List(ctx, offset, limit)
}

// Get retrieves a request by its ID
func (s *TriggerService) Get(ctx context.Context, id string) (*domain.GenerationRequest, error) {
	return s.store.Get(ctx, id)
}

// Result is an open result image stream
type Result struct {
	Body        io.ReadCloser
	ContentType string
	FileName    string
}

// OpenResult streams the result image of a done request
func (s *TriggerService) OpenResult(ctx context.Context, id string) (*Result, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.StatusDone {
		return nil, domain.ErrNotDownloadable
	}

	body, contentType, err := s.objects.Get(ctx, objectstore.ResultKey(req.ID, string(req.OutputFormat)))
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = req.OutputFormat.ContentType()
	}

	return &Result{
		Body:        body,
		ContentType: contentType,
		FileName:    domain.DownloadFileName(req.ID, req.OutputFormat),
	}, nil
}

// Shutdown waits for in-flight jobs; when ctx ends first the remaining jobs are cancelled
// and recorded as failed.
func (s *TriggerService) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.jobs.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}
