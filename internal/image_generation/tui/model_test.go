package tui

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelforge/imagegen-backend/internal/image_generation/domain"
	"github.com/pixelforge/imagegen-backend/internal/image_generation/listview"
)

type fakeList struct {
	snapshots  chan listview.State
	dispatched []listview.Action
}

func newFakeList() *fakeList { return &fakeList{snapshots: make(chan listview.State, 1)} }

func (f *fakeList) Dispatch(a listview.Action)       { f.dispatched = append(f.dispatched, a) }
func (f *fakeList) Snapshots() <-chan listview.State { return f.snapshots }

type fakeFetcher struct{ err error }

func (f fakeFetcher) Download(context.Context, string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("img"), nil
}

func rows() []domain.GenerationRequest {
	url := "https://cdn.example.com/results/done.png"
	created := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	return []domain.GenerationRequest{
		{ID: "running", Prompt: "still going", Status: domain.StatusRunning, AspectRatio: "1:1", Resolution: "1K", OutputFormat: "png", CreatedAt: created},
		{ID: "done", Prompt: "finished", Status: domain.StatusDone, ResultImageURL: &url, AspectRatio: "1:1", Resolution: "1K", OutputFormat: "png", CreatedAt: created},
		{ID: "failed", Prompt: "broke", Status: domain.StatusFailed, AspectRatio: "1:1", Resolution: "1K", OutputFormat: "png", CreatedAt: created},
	}
}

func loaded(t *testing.T, list *fakeList, dir string, total int) Model {
	t.Helper()
	m := New(list, fakeFetcher{}, dir)
	m.loc = time.UTC
	next, cmd := m.Update(snapshotMsg{state: listview.State{
		Mounted: true, Page: 1, Total: total, Rows: rows(), Loaded: true, Live: true,
	}})
	require.NotNil(t, cmd, "keeps listening for snapshots")
	return next.(Model)
}

func press(m Model, k tea.KeyMsg) (Model, tea.Cmd) {
	next, cmd := m.Update(k)
	return next.(Model), cmd
}

var (
	keyEnter = tea.KeyMsg{Type: tea.KeyEnter}
	keyDown  = tea.KeyMsg{Type: tea.KeyDown}
	keyRight = tea.KeyMsg{Type: tea.KeyRight}
	keyLeft  = tea.KeyMsg{Type: tea.KeyLeft}
	keyEsc   = tea.KeyMsg{Type: tea.KeyEsc}
)

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func TestModel_OnlyDoneRowsOpen(t *testing.T) {
	list := newFakeList()
	m := loaded(t, list, t.TempDir(), 3)

	m, _ = press(m, keyEnter)
	assert.Nil(t, m.detail, "running rows are inert")

	m, _ = press(m, keyDown)
	m, _ = press(m, keyDown)
	m, _ = press(m, keyEnter)
	assert.Nil(t, m.detail, "failed rows are inert")

	m, _ = press(m, tea.KeyMsg{Type: tea.KeyUp})
	m, _ = press(m, keyEnter)
	require.NotNil(t, m.detail)
	assert.Equal(t, "done", m.detail.Request.ID)
	assert.Contains(t, m.View(), "generated-image-done.png")

	m, _ = press(m, keyEsc)
	assert.Nil(t, m.detail)
}

func TestModel_DoneRowWithoutResultIsInert(t *testing.T) {
	m := New(newFakeList(), fakeFetcher{}, t.TempDir())
	m.loc = time.UTC
	broken := domain.GenerationRequest{ID: "broken", Prompt: "no url", Status: domain.StatusDone, AspectRatio: "1:1", Resolution: "1K", OutputFormat: "png"}
	next, _ := m.Update(snapshotMsg{state: listview.State{
		Mounted: true, Page: 1, Total: 1, Rows: []domain.GenerationRequest{broken}, Loaded: true, Live: true,
	}})
	m = next.(Model)

	assert.Contains(t, m.View(), "Invalid")

	m, _ = press(m, keyEnter)
	assert.Nil(t, m.detail)
	assert.True(t, m.noticeErr)
	assert.Contains(t, m.View(), "Request broken is inconsistent")
}

func TestModel_PaginationRespectsBoundaries(t *testing.T) {
	list := newFakeList()
	m := loaded(t, list, t.TempDir(), 25)

	m, _ = press(m, keyLeft)
	assert.Empty(t, list.dispatched, "previous is disabled on page 1")

	m, _ = press(m, keyRight)
	m, _ = press(m, runes("n"))
	assert.Equal(t, []listview.Action{listview.NextPage{}, listview.NextPage{}}, list.dispatched)
	assert.Contains(t, m.View(), "Page 1 of 3 (25 total requests)")

	single := loaded(t, newFakeList(), t.TempDir(), 3)
	assert.NotContains(t, single.View(), "total requests")
}

func TestModel_Download(t *testing.T) {
	dir := t.TempDir()
	m := loaded(t, newFakeList(), dir, 3)
	m, _ = press(m, keyDown)
	m, _ = press(m, keyEnter)
	require.NotNil(t, m.detail)

	m, cmd := press(m, runes("d"))
	require.NotNil(t, cmd)
	assert.True(t, m.downloading)

	next, _ := m.Update(cmd())
	m = next.(Model)
	assert.False(t, m.downloading)
	assert.Contains(t, m.notice, "generated-image-done.png")
	assert.False(t, m.noticeErr)
}

func TestModel_DownloadFailureIsReported(t *testing.T) {
	m := loaded(t, newFakeList(), t.TempDir(), 3)
	m.fetcher = fakeFetcher{err: errors.New("bucket unreachable")}
	m, _ = press(m, keyDown)
	m, _ = press(m, keyEnter)

	m, cmd := press(m, runes("d"))
	next, _ := m.Update(cmd())
	m = next.(Model)

	assert.True(t, m.noticeErr)
	assert.Contains(t, m.notice, "bucket unreachable")
	require.NotNil(t, m.detail, "view stays open for a retry")

	_, cmd = press(m, runes("d"))
	assert.NotNil(t, cmd)
}

func TestModel_FetchErrorShownWithRows(t *testing.T) {
	m := loaded(t, newFakeList(), t.TempDir(), 3)
	st := m.state
	st.Err = &domain.FetchError{Op: "count", Err: fmt.Errorf("timeout")}
	next, _ := m.Update(snapshotMsg{state: st})
	view := next.(Model).View()

	assert.Contains(t, view, "Failed to refresh")
	assert.Contains(t, view, "still going")
}

func TestModel_Quit(t *testing.T) {
	m := loaded(t, newFakeList(), t.TempDir(), 3)
	_, cmd := press(m, runes("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a b c", truncate("a\n b\tc", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
