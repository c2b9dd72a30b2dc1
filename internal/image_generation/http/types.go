package http

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pixelforge/imagegen-backend/internal/api/http/middleware"
	"github.com/pixelforge/imagegen-backend/internal/image_generation/domain"
	"github.com/pixelforge/imagegen-backend/internal/image_generation/repository"
	"github.com/pixelforge/imagegen-backend/internal/image_generation/service"
	"github.com/pixelforge/imagegen-backend/internal/platform/logger"
)

const (
	defaultListLimit  = 10
	keepAliveInterval = 15 * time.Second
)

// RequestService is the trigger/store surface the handlers need
type RequestService interface {
	Submit(ctx context.Context, in domain.CreateRequest) (*domain.GenerationRequest, error)
	Count(ctx context.Context) (int, error)
	List(ctx context.Context, offset, limit int) ([]domain.GenerationRequest, error)
	Get(ctx context.Context, id string) (*domain.GenerationRequest, error)
	OpenResult(ctx context.Context, id string) (*service.Result, error)
}

// EventStream is one open change-feed subscription
type EventStream interface {
	Events() <-chan domain.ChangeEvent
	Close() error
}

// SubscribeFunc opens a change-feed subscription bound to ctx
type SubscribeFunc func(ctx context.Context) (EventStream, error)

// FeedSubscriber adapts a Redis change feed to SubscribeFunc
func FeedSubscriber(feed *repository.ChangeFeed) SubscribeFunc {
	return func(ctx context.Context) (EventStream, error) {
		sub, err := feed.Subscribe(ctx)
		if err != nil {
			return nil, err
		}
		return sub, nil
	}
}

// Handler handles HTTP requests for image generation requests
type Handler struct {
	svc       RequestService
	subscribe SubscribeFunc
	log       *logger.Logger
	keepAlive time.Duration

	closing   chan struct{}
	closeOnce sync.Once
}

// New creates a new Handler
func New(svc RequestService, subscribe SubscribeFunc, log *logger.Logger) *Handler {
	return &Handler{
		svc:       svc,
		subscribe: subscribe,
		log:       log.With("component", "ImageGenerationHandler"),
		keepAlive: keepAliveInterval,
		closing:   make(chan struct{}),
	}
}

// CloseStreams ends every open change stream. Other requests are unaffected.
func (h *Handler) CloseStreams() {
	h.closeOnce.Do(func() { close(h.closing) })
}

func (h *Handler) logFor(c *gin.Context) *logger.Logger {
	return h.log.With(middleware.ContextKeyRequestID, middleware.GetRequestID(c.Request.Context()))
}
