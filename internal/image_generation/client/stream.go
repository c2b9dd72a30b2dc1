package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/pixelforge/imagegen-backend/internal/image_generation/domain"
)

// Stream is a live change-feed subscription over Server-Sent Events
type Stream struct {
	events chan domain.ChangeEvent
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Subscribe opens the change stream. Events stops (is closed) when ctx ends,
// Close is called or the connection drops; Err tells the last case apart.
func (c *Client) Subscribe(ctx context.Context) (*Stream, error) {
	ctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/requests/stream", nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open change stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		cancel()
		return nil, decodeError(resp)
	}

	s := &Stream{
		events: make(chan domain.ChangeEvent, 32),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		defer close(s.events)
		defer resp.Body.Close()

		err := readEvents(ctx, bufio.NewReader(resp.Body), s.events)
		if ctx.Err() == nil {
			if err == nil {
				err = errStreamClosed
			}
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
		}
	}()

	return s, nil
}

var errStreamClosed = errors.New("change stream closed by server")

// Events delivers decoded change events in arrival order
func (s *Stream) Events() <-chan domain.ChangeEvent {
	return s.events
}

// Err is non-nil when the stream ended for any reason other than Close or the context
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stream) Close() error {
	s.cancel()
	<-s.done
	return nil
}

// readEvents parses the text/event-stream framing: "event:" and "data:" lines
// terminated by a blank line, ":" comments ignored.
func readEvents(ctx context.Context, r *bufio.Reader, out chan<- domain.ChangeEvent) error {
	var (
		eventType string
		data      strings.Builder
	)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if data.Len() > 0 {
				if ev, ok := decodeEvent(eventType, data.String()); ok {
					select {
					case out <- ev:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
			}
			eventType = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
}

func decodeEvent(eventType, data string) (domain.ChangeEvent, bool) {
	typ := domain.EventType(eventType)
	if typ != domain.EventInsert && typ != domain.EventUpdate {
		return domain.ChangeEvent{}, false
	}
	var row domain.GenerationRequest
	if err := json.Unmarshal([]byte(data), &row); err != nil {
		return domain.ChangeEvent{}, false
	}
	return domain.ChangeEvent{Type: typ, Row: row}, true
}
