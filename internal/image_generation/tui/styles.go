package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/pixelforge/imagegen-backend/internal/image_generation/domain"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("12"))
	inertStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	noticeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	labelStyle    = lipgloss.NewStyle().Bold(true).Width(14)

	badgeStyles = map[domain.Status]lipgloss.Style{
		domain.StatusRunning: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		domain.StatusDone:    lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		domain.StatusFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
)

func badge(s domain.Status) string {
	style, ok := badgeStyles[s]
	if !ok {
		return s.Label()
	}
	return style.Render(s.Label())
}
