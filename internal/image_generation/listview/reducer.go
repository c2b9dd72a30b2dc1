package listview

import (
	"time"

	"github.com/pixelforge/imagegen-backend/internal/image_generation/domain"
)

// Action is an input to Reduce
type Action interface{ action() }

type (
	// Mounted starts the view: first fetch and the feed subscription
	Mounted struct{}
	// Unmounted tears the view down and invalidates in-flight fetches
	Unmounted struct{}
	// PageRequested moves to a 1-based page; out of range pages are ignored
	PageRequested struct{ Page int }
	NextPage      struct{}
	PrevPage      struct{}
	// Refresh re-reads the current page
	Refresh struct{}

	FetchSucceeded struct {
		Token uint64
		Total int
		Rows  []domain.GenerationRequest
	}
	FetchFailed struct {
		Token uint64
		Err   error
	}

	ChangeReceived struct{ Event domain.ChangeEvent }
	FeedConnected  struct{}
	FeedLost       struct{ Err error }
)

func (Mounted) action()        {}
func (Unmounted) action()      {}
func (PageRequested) action()  {}
func (NextPage) action()       {}
func (PrevPage) action()       {}
func (Refresh) action()        {}
func (FetchSucceeded) action() {}
func (FetchFailed) action()    {}
func (ChangeReceived) action() {}
func (FeedConnected) action()  {}
func (FeedLost) action()       {}

// Effect is work Reduce asks the controller to perform
type Effect interface{ effect() }

type (
	// Fetch reads the count and the page window; its result carries Token back
	Fetch struct {
		Token  uint64
		Page   int
		Offset int
		Limit  int
	}
	Subscribe   struct{ Delay time.Duration }
	Unsubscribe struct{}
)

func (Fetch) effect()       {}
func (Subscribe) effect()   {}
func (Unsubscribe) effect() {}

const maxResubscribeDelay = 30 * time.Second

// Reduce applies one action. It is pure: all I/O is returned as effects.
func Reduce(s State, a Action) (State, []Effect) {
	switch a.(type) {
	case Mounted:
		if s.Mounted {
			return s, nil
		}
		s.Mounted = true
		if s.Page < 1 {
			s.Page = 1
		}
		next, effects := s.refetch()
		return next, append(effects, Subscribe{})

	case Unmounted:
		if !s.Mounted {
			return s, nil
		}
		s.Mounted = false
		s.Loading = false
		s.Live = false
		s.fetchToken++
		return s, []Effect{Unsubscribe{}}
	}

	if !s.Mounted {
		return s, nil
	}

	switch a := a.(type) {
	case PageRequested:
		return s.gotoPage(a.Page)

	case NextPage:
		if !s.HasNext() {
			return s, nil
		}
		return s.gotoPage(s.Page + 1)

	case PrevPage:
		if !s.HasPrev() {
			return s, nil
		}
		return s.gotoPage(s.Page - 1)

	case Refresh:
		return s.refetch()

	case FetchSucceeded:
		if a.Token != s.fetchToken {
			return s, nil
		}
		s.Loading = false
		s.Loaded = true
		s.Err = nil
		s.Total = a.Total
		s.Rows = keepFinished(s.Rows, a.Rows)
		return s, nil

	case FetchFailed:
		if a.Token != s.fetchToken {
			return s, nil
		}
		s.Loading = false
		s.Err = a.Err
		return s, nil

	case ChangeReceived:
		switch a.Event.Type {
		case domain.EventInsert:
			return s.refetch()
		case domain.EventUpdate:
			i := s.indexOf(a.Event.Row.ID)
			if i < 0 {
				return s, nil
			}
			rows := make([]domain.GenerationRequest, len(s.Rows))
			copy(rows, s.Rows)
			rows[i] = a.Event.Row
			s.Rows = rows
			return s, nil
		}
		return s, nil

	case FeedConnected:
		resync := s.feedRetry > 0
		s.Live = true
		s.FeedErr = nil
		s.feedRetry = 0
		if resync {
			// events may have been missed while disconnected
			return s.refetch()
		}
		return s, nil

	case FeedLost:
		s.Live = false
		s.FeedErr = a.Err
		s.feedRetry++
		return s, []Effect{Subscribe{Delay: resubscribeDelay(s.feedRetry)}}
	}

	return s, nil
}

func (s State) gotoPage(page int) (State, []Effect) {
	if page < 1 || page == s.Page {
		return s, nil
	}
	if s.Loaded && page > s.TotalPages() {
		return s, nil
	}
	s.Page = page
	return s.refetch()
}

// refetch issues a new token; results carrying an older token are discarded.
func (s State) refetch() (State, []Effect) {
	s.fetchToken++
	s.Loading = true
	return s, []Effect{Fetch{
		Token:  s.fetchToken,
		Page:   s.Page,
		Offset: Offset(s.Page),
		Limit:  PageSize,
	}}
}

func resubscribeDelay(retry int) time.Duration {
	if retry < 1 {
		return 0
	}
	d := time.Second << (retry - 1)
	if d <= 0 || d > maxResubscribeDelay {
		return maxResubscribeDelay
	}
	return d
}

// keepFinished returns fetched, except that a row already seen as done or
// failed is kept when the fetched copy still says running. Status never moves
// back from a terminal state, so such a copy was read before the update event.
func keepFinished(current, fetched []domain.GenerationRequest) []domain.GenerationRequest {
	if len(current) == 0 {
		return fetched
	}
	finished := make(map[string]domain.GenerationRequest, len(current))
	for _, row := range current {
		if row.Status.IsTerminal() {
			finished[row.ID] = row
		}
	}
	var out []domain.GenerationRequest
	for i, row := range fetched {
		prev, ok := finished[row.ID]
		if !ok || row.Status.IsTerminal() {
			continue
		}
		if out == nil {
			out = append([]domain.GenerationRequest(nil), fetched...)
		}
		out[i] = prev
	}
	if out == nil {
		return fetched
	}
	return out
}
