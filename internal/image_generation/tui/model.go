package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pixelforge/imagegen-backend/internal/image_generation/detail"
	"github.com/pixelforge/imagegen-backend/internal/image_generation/domain"
	"github.com/pixelforge/imagegen-backend/internal/image_generation/listview"
)

// ListSource is the list controller as seen by the UI
type ListSource interface {
	Dispatch(a listview.Action)
	Snapshots() <-chan listview.State
}

type snapshotMsg struct{ state listview.State }

type downloadedMsg struct {
	path string
	err  error
}

// Model renders the request list and the detail of done requests
type Model struct {
	list        ListSource
	fetcher     detail.Fetcher
	downloadDir string
	loc         *time.Location

	state  listview.State
	cursor int
	detail *detail.View

	downloading bool
	notice      string
	noticeErr   bool

	keys    keyMap
	help    help.Model
	spinner spinner.Model
	width   int
}

// New creates a new Model; downloads are written to downloadDir
func New(list ListSource, fetcher detail.Fetcher, downloadDir string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		list:        list,
		fetcher:     fetcher,
		downloadDir: downloadDir,
		loc:         time.Local,
		keys:        newKeyMap(),
		help:        help.New(),
		spinner:     sp,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForSnapshot(m.list), m.spinner.Tick)
}

func waitForSnapshot(list ListSource) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-list.Snapshots()
		if !ok {
			return nil
		}
		return snapshotMsg{state: s}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case snapshotMsg:
		m.state = msg.state
		m.clampCursor()
		return m, waitForSnapshot(m.list)

	case downloadedMsg:
		m.downloading = false
		if msg.err != nil {
			m.notice = msg.err.Error()
			m.noticeErr = true
		} else {
			m.notice = "Saved " + msg.path
			m.noticeErr = false
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.quit) {
			return m, tea.Quit
		}
		if m.detail != nil {
			return m.updateDetail(msg)
		}
		return m.updateList(msg)
	}
	return m, nil
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.down):
		if m.cursor < len(m.state.Rows)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.prevPage):
		if m.state.HasPrev() {
			m.list.Dispatch(listview.PrevPage{})
			m.cursor = 0
		}
	case key.Matches(msg, m.keys.nextPage):
		if m.state.HasNext() {
			m.list.Dispatch(listview.NextPage{})
			m.cursor = 0
		}
	case key.Matches(msg, m.keys.refresh):
		m.list.Dispatch(listview.Refresh{})
	case key.Matches(msg, m.keys.open):
		row, ok := m.selected()
		if !ok {
			return m, nil
		}
		if err := row.CheckInvariants(); err != nil {
			m.notice = "Request " + row.ID + " is inconsistent: " + err.Error()
			m.noticeErr = true
			return m, nil
		}
		if !listview.Clickable(row) {
			return m, nil
		}
		v, err := detail.Open(row)
		if err != nil {
			m.notice = err.Error()
			m.noticeErr = true
			return m, nil
		}
		m.detail = v
		m.notice = ""
	}
	return m, nil
}

func (m Model) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.back):
		m.detail = nil
		m.notice = ""
	case key.Matches(msg, m.keys.download):
		if m.downloading {
			return m, nil
		}
		m.downloading = true
		m.notice = ""
		return m, download(m.detail, m.fetcher, m.downloadDir)
	}
	return m, nil
}

func download(v *detail.View, f detail.Fetcher, dir string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		path, err := v.Download(ctx, f, dir)
		return downloadedMsg{path: path, err: err}
	}
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.state.Rows) {
		m.cursor = len(m.state.Rows) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m Model) selected() (domain.GenerationRequest, bool) {
	if m.cursor < 0 || m.cursor >= len(m.state.Rows) {
		return domain.GenerationRequest{}, false
	}
	return m.state.Rows[m.cursor], true
}

func (m Model) View() string {
	if m.detail != nil {
		return m.viewDetail()
	}
	return m.viewList()
}

func (m Model) viewList() string {
	var b strings.Builder

	title := titleStyle.Render("Generation requests")
	if m.state.Loading {
		title += " " + m.spinner.View()
	}
	if !m.state.Live && m.state.Mounted {
		title += " " + inertStyle.Render("(offline)")
	}
	b.WriteString(title + "\n\n")

	switch {
	case m.state.Empty():
		b.WriteString(inertStyle.Render("No requests yet.") + "\n")
	case !m.state.Loaded:
		b.WriteString(inertStyle.Render("Loading...") + "\n")
	default:
		b.WriteString(headerStyle.Render(fmt.Sprintf("  %-8s %-22s %-6s %-4s %-4s %s", "Status", "Created", "Ratio", "Res", "Fmt", "Prompt")) + "\n")
		for i, row := range m.state.Rows {
			label := row.Status.Label()
			invalid := row.CheckInvariants() != nil
			if invalid {
				label = "Invalid"
			}
			line := fmt.Sprintf("  %-8s %-22s %-6s %-4s %-4s %s",
				label,
				detail.FormatTimestamp(row.CreatedAt, m.loc),
				row.AspectRatio, row.Resolution, row.OutputFormat,
				truncate(row.Prompt, 40),
			)
			switch {
			case i == m.cursor:
				line = selectedStyle.Render(line)
			case invalid:
				line = errorStyle.Render(line)
			case !listview.Clickable(row):
				line = inertStyle.Render(line)
			}
			b.WriteString(line + "\n")
		}
	}

	if footer := m.state.Footer(); footer != "" {
		b.WriteString("\n" + footer + "\n")
	}
	if m.state.Err != nil {
		b.WriteString(errorStyle.Render("Failed to refresh: "+m.state.Err.Error()) + "\n")
	}
	m.writeNotice(&b)
	b.WriteString("\n" + m.help.View(listKeys{m.keys}))
	return b.String()
}

func (m Model) viewDetail() string {
	var b strings.Builder
	r := m.detail.Request

	b.WriteString(titleStyle.Render("Request "+r.ID) + "  " + badge(r.Status) + "\n\n")
	field := func(label, value string) {
		b.WriteString(labelStyle.Render(label) + value + "\n")
	}
	field("Prompt", r.Prompt)
	field("Aspect ratio", string(r.AspectRatio))
	field("Resolution", string(r.Resolution))
	field("Format", string(r.OutputFormat))
	field("Created", m.detail.CreatedAt(m.loc))
	field("Result", m.detail.ResultURL())
	if len(r.InputImages) == 0 {
		field("Inputs", inertStyle.Render("none"))
	}
	for i, u := range r.InputImages {
		field(fmt.Sprintf("Input %d", i+1), u)
	}
	field("Save as", m.detail.FileName())

	if m.downloading {
		b.WriteString("\n" + m.spinner.View() + " Downloading...\n")
	}
	m.writeNotice(&b)
	b.WriteString("\n" + m.help.View(detailKeys{m.keys}))
	return b.String()
}

func (m Model) writeNotice(b *strings.Builder) {
	if m.notice == "" {
		return
	}
	style := noticeStyle
	if m.noticeErr {
		style = errorStyle
	}
	b.WriteString("\n" + style.Render(m.notice) + "\n")
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
