package listview

import (
	"fmt"

	"github.com/pixelforge/imagegen-backend/internal/image_generation/domain"
)

// PageSize is the number of rows per page
const PageSize = 10

// State is the list view projection of the request table. Rows is never mutated
// in place, so a State value can be handed to a renderer as is.
type State struct {
	Mounted bool
	Page    int
	Total   int
	Rows    []domain.GenerationRequest

	Loading bool
	Loaded  bool
	// Err is the last fetch failure; Rows still hold the last good page.
	Err error

	Live       bool
	FeedErr    error
	feedRetry  int
	fetchToken uint64
}

// TotalPages is ceil(total / PageSize)
func TotalPages(total int) int {
	if total <= 0 {
		return 0
	}
	return (total + PageSize - 1) / PageSize
}

// Offset is the first row index of a 1-based page
func Offset(page int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * PageSize
}

func (s State) TotalPages() int { return TotalPages(s.Total) }

// HasPrev reports whether "Previous" is enabled
func (s State) HasPrev() bool { return s.Page > 1 }

// HasNext reports whether "Next" is enabled
func (s State) HasNext() bool { return s.Page < s.TotalPages() }

// Empty is true once a fetch has completed and there is nothing to show
func (s State) Empty() bool {
	return s.Loaded && !s.Loading && s.Total == 0 && len(s.Rows) == 0
}

// Footer is the pagination summary, shown only when there is more than one page
func (s State) Footer() string {
	if s.TotalPages() <= 1 {
		return ""
	}
	return fmt.Sprintf("Page %d of %d (%d total requests)", s.Page, s.TotalPages(), s.Total)
}

// Clickable reports whether a row opens the detail view: it must be done and
// carry a result. Rows breaking the model invariants are never clickable.
func Clickable(row domain.GenerationRequest) bool {
	return row.Status == domain.StatusDone && row.CheckInvariants() == nil
}

func (s State) indexOf(id string) int {
	for i := range s.Rows {
		if s.Rows[i].ID == id {
			return i
		}
	}
	return -1
}
