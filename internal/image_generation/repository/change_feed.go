package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/pixelforge/imagegen-backend/internal/image_generation/domain"
	"github.com/pixelforge/imagegen-backend/internal/platform/logger"
)

// ChangeFeed fans request table changes out over Redis Pub/Sub
type ChangeFeed struct {
	client  *redis.Client
	channel string
	log     *logger.Logger
}

// NewChangeFeed creates a new ChangeFeed publishing on channel
func NewChangeFeed(client *redis.Client, channel string, log *logger.Logger) *ChangeFeed {
	return &ChangeFeed{
		client:  client,
		channel: channel,
		log:     log.With("component", "ChangeFeed", "channel", channel),
	}
}

// Publish sends one insert/update notification to every subscriber
func (f *ChangeFeed) Publish(ctx context.Context, ev domain.ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}
	if err := f.client.Publish(ctx, f.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish change event: %w", err)
	}
	return nil
}

// Subscription delivers change events until Close is called or the context ends
type Subscription struct {
	pubsub *redis.PubSub
	events chan domain.ChangeEvent
	done   chan struct{}
	once   sync.Once
	err    error
}

// Subscribe opens a subscription; the caller must Close it to stop delivery
func (f *ChangeFeed) Subscribe(ctx context.Context) (*Subscription, error) {
	pubsub := f.client.Subscribe(ctx, f.channel)

	// ensures subscription actually started
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	sub := &Subscription{
		pubsub: pubsub,
		events: make(chan domain.ChangeEvent, 32),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(sub.events)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case <-sub.done:
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var ev domain.ChangeEvent
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					f.log.Warn("bad change event payload", "error", err)
					continue
				}
				select {
				case sub.events <- ev:
				case <-sub.done:
					return
				case <-ctx.Done():
					_ = sub.Close()
					return
				}
			}
		}
	}()

	return sub, nil
}

// Events is closed once the subscription ends
func (s *Subscription) Events() <-chan domain.ChangeEvent {
	return s.events
}

func (s *Subscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.err = s.pubsub.Close()
	})
	return s.err
}
