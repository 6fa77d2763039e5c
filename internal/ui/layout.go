package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/taskboard/internal/theme"
)

// Layout tracks the terminal size and splits it into a header line, the
// inbox area, an optional notice line and the status bar.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	NoticeHeight    int
	StatusBarHeight int
}

// NewLayout creates a Layout for a width x height terminal.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		NoticeHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the rows left for the inbox list.
func (l Layout) ContentHeight() int {
	h := l.Height - l.HeaderHeight - l.NoticeHeight - l.StatusBarHeight
	if h < 0 {
		return 0
	}
	return h
}

// RenderHeader renders the title on the left and the channel and sync
// indicators on the right.
func (l Layout) RenderHeader(title, indicators string) string {
	left := theme.HeaderStyle.Render(title)
	right := theme.HeaderStyle.Align(lipgloss.Right).Render(indicators)
	return lipgloss.JoinHorizontal(lipgloss.Top, left, l.fill(theme.HeaderStyle, left, right), right)
}

// RenderNotice renders a one-line message, styled as an error when isErr.
func (l Layout) RenderNotice(msg string, isErr bool) string {
	style := theme.NoticeStyle
	if isErr {
		style = theme.ErrorStyle
	}
	return style.Width(l.Width).MaxHeight(l.NoticeHeight).Render(msg)
}

// RenderStatusBar renders the bottom bar with keyboard hints.
func (l Layout) RenderStatusBar(hints string) string {
	rendered := theme.StatusBarStyle.Render(hints)
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered, l.fill(theme.StatusBarStyle, rendered))
}

// RenderWithFrame stacks the four regions into the full view.
func (l Layout) RenderWithFrame(header, content, notice, statusBar string) string {
	content = lipgloss.NewStyle().Height(l.ContentHeight()).MaxHeight(l.ContentHeight()).Render(content)
	return lipgloss.JoinVertical(lipgloss.Left, header, content, notice, statusBar)
}

// fill pads a bar to the full width with its own background.
func (l Layout) fill(style lipgloss.Style, parts ...string) string {
	gap := l.Width
	for _, p := range parts {
		gap -= lipgloss.Width(p)
	}
	if gap <= 0 {
		return ""
	}
	return lipgloss.NewStyle().
		Width(gap).
		Background(style.GetBackground()).
		Render("")
}
