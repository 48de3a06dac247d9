package tui

import (
	"fmt"
	"image/color"
	"strings"
	"time"

	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/hylla/stamp/internal/domain"
)

// handleSummaryKey handles keys on the summary screen.
func (m Model) handleSummaryKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.back):
		return m.switchScreen(screenTasks)
	case key.Matches(msg, m.keys.prevWindow), key.Matches(msg, m.keys.nextWindow):
		if m.summary == nil {
			return m, nil
		}
		step := m.summaryWindow.End.Sub(m.summaryWindow.Start)
		if key.Matches(msg, m.keys.prevWindow) {
			step = -step
		}
		return m, m.loadSummary(shiftWindow(m.summaryWindow, step))
	case key.Matches(msg, m.keys.copy):
		if m.summary == nil {
			m.status = "summary not loaded yet"
			return m, nil
		}
		if err := m.copyToClipboard(SummaryMarkdown(*m.summary, m.loc)); err != nil {
			m.status = "copy failed: " + err.Error()
			return m, nil
		}
		m.status = "copied summary to clipboard"
		return m, nil
	}
	return m, nil
}

// SummaryMarkdown renders totals as two markdown tables with window bounds shown in loc.
func SummaryMarkdown(s domain.Summary, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Time summary\n\n%s\n\n", formatWindow(s.Window, loc))
	b.WriteString("| Task | Time |\n| --- | ---: |\n")
	if len(s.Tasks) == 0 {
		b.WriteString("| _none_ | 0h 0m |\n")
	}
	for _, t := range s.Tasks {
		fmt.Fprintf(&b, "| %s | %s |\n", escapeCell(t.Name), t.Formatted())
	}
	b.WriteString("\n| Tag | Time |\n| --- | ---: |\n")
	if len(s.Tags) == 0 {
		b.WriteString("| _none_ | 0h 0m |\n")
	}
	for _, t := range s.Tags {
		fmt.Fprintf(&b, "| %s | %s |\n", escapeCell(t.Name), t.Formatted())
	}
	return b.String()
}

// escapeCell keeps pipes in names from splitting table cells.
func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// renderSummary renders the summary screen.
func (m Model) renderSummary(muted color.Color) string {
	if m.summary == nil {
		return lipgloss.NewStyle().Foreground(muted).Render("loading summary...")
	}
	return m.markdown.render(SummaryMarkdown(*m.summary, m.loc), max(0, m.width-4))
}
