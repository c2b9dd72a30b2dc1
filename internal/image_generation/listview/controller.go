package listview

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pixelforge/imagegen-backend/internal/image_generation/client"
	"github.com/pixelforge/imagegen-backend/internal/image_generation/domain"
	"github.com/pixelforge/imagegen-backend/internal/platform/logger"
)

// Reader performs the count and range reads against the store
type Reader interface {
	Count(ctx context.Context) (int, error)
	List(ctx context.Context, offset, limit int) ([]domain.GenerationRequest, error)
}

// Subscription is one open change feed subscription
type Subscription interface {
	Events() <-chan domain.ChangeEvent
	Close() error
}

// SubscribeFunc opens a change feed subscription bound to ctx
type SubscribeFunc func(ctx context.Context) (Subscription, error)

// ClientFeed adapts the API client's change stream
func ClientFeed(c *client.Client) SubscribeFunc {
	return func(ctx context.Context) (Subscription, error) {
		s, err := c.Subscribe(ctx)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Controller owns the list view state. Every action, whether from the user,
// a finished fetch or the change feed, is applied on the single Run goroutine.
type Controller struct {
	reader    Reader
	subscribe SubscribeFunc
	log       *logger.Logger

	actions   chan Action
	snapshots chan State
	done      chan struct{}
	startOnce sync.Once

	// owned by the Run goroutine
	sub    Subscription
	subGen int
}

// internal actions carrying subscription lifecycle to the loop
type (
	subscribed struct {
		gen int
		sub Subscription
	}
	subscriptionEnded struct {
		gen int
		err error
	}
	feedEvent struct {
		gen int
		ev  domain.ChangeEvent
	}
)

func (subscribed) action()        {}
func (subscriptionEnded) action() {}
func (feedEvent) action()         {}

var errFeedClosed = errors.New("change feed closed")

// NewController creates a new Controller
func NewController(reader Reader, subscribe SubscribeFunc, log *logger.Logger) *Controller {
	return &Controller{
		reader:    reader,
		subscribe: subscribe,
		log:       log.With("component", "ListViewController"),
		actions:   make(chan Action, 64),
		snapshots: make(chan State, 1),
		done:      make(chan struct{}),
	}
}

// Snapshots delivers the latest state after each change; older unread snapshots are dropped
func (c *Controller) Snapshots() <-chan State {
	return c.snapshots
}

// Done is closed when Run has returned
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Dispatch queues a user action; it is dropped once Run has returned
func (c *Controller) Dispatch(a Action) {
	select {
	case c.actions <- a:
	case <-c.done:
	}
}

// Run mounts the view and processes actions until ctx ends, then unmounts it.
func (c *Controller) Run(ctx context.Context) {
	started := false
	c.startOnce.Do(func() { started = true })
	if !started {
		return
	}
	defer close(c.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var state State
	apply := func(a Action) {
		var effects []Effect
		state, effects = Reduce(state, a)
		c.publish(state)
		for _, eff := range effects {
			c.perform(ctx, eff)
		}
	}

	apply(Mounted{})
	for {
		select {
		case <-ctx.Done():
			apply(Unmounted{})
			return
		case a := <-c.actions:
			switch a := a.(type) {
			case subscribed:
				if a.gen != c.subGen {
					_ = a.sub.Close()
					continue
				}
				c.sub = a.sub
				apply(FeedConnected{})
			case feedEvent:
				if a.gen == c.subGen {
					apply(ChangeReceived{Event: a.ev})
				}
			case subscriptionEnded:
				if a.gen != c.subGen {
					continue
				}
				c.sub = nil
				c.log.Warn("change feed lost", "error", a.err)
				apply(FeedLost{Err: a.err})
			case FetchFailed:
				c.log.Warn("list fetch failed", "token", a.Token, "error", a.Err)
				apply(a)
			default:
				apply(a)
			}
		}
	}
}

func (c *Controller) perform(ctx context.Context, eff Effect) {
	switch eff := eff.(type) {
	case Fetch:
		go c.fetch(ctx, eff)
	case Subscribe:
		c.closeSubscription()
		c.subGen++
		go c.watch(ctx, c.subGen, eff.Delay)
	case Unsubscribe:
		c.closeSubscription()
		c.subGen++
	}
}

func (c *Controller) closeSubscription() {
	if c.sub != nil {
		_ = c.sub.Close()
		c.sub = nil
	}
}

func (c *Controller) fetch(ctx context.Context, f Fetch) {
	total, err := c.reader.Count(ctx)
	if err != nil {
		c.send(ctx, FetchFailed{Token: f.Token, Err: asFetchError("count", err)})
		return
	}
	rows, err := c.reader.List(ctx, f.Offset, f.Limit)
	if err != nil {
		c.send(ctx, FetchFailed{Token: f.Token, Err: asFetchError("range", err)})
		return
	}
	c.send(ctx, FetchSucceeded{Token: f.Token, Total: total, Rows: rows})
}

func (c *Controller) watch(ctx context.Context, gen int, delay time.Duration) {
	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return
		}
	}

	sub, err := c.subscribe(ctx)
	if err != nil {
		c.send(ctx, subscriptionEnded{gen: gen, err: err})
		return
	}
	if !c.send(ctx, subscribed{gen: gen, sub: sub}) {
		_ = sub.Close()
		return
	}

	for ev := range sub.Events() {
		if !c.send(ctx, feedEvent{gen: gen, ev: ev}) {
			return
		}
	}
	err = errFeedClosed
	if e, ok := sub.(interface{ Err() error }); ok && e.Err() != nil {
		err = e.Err()
	}
	c.send(ctx, subscriptionEnded{gen: gen, err: err})
}

func (c *Controller) send(ctx context.Context, a Action) bool {
	select {
	case c.actions <- a:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Controller) publish(s State) {
	select {
	case <-c.snapshots:
	default:
	}
	c.snapshots <- s
}

func asFetchError(op string, err error) error {
	var ferr *domain.FetchError
	if errors.As(err, &ferr) {
		return err
	}
	return &domain.FetchError{Op: op, Err: err}
}
