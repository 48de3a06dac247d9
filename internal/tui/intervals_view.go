package tui

import (
	"context"
	"fmt"
	"image/color"
	"slices"
	"strings"
	"time"

	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/hylla/stamp/internal/app"
	"github.com/hylla/stamp/internal/domain"
	"github.com/hylla/stamp/internal/timeexpr"
)

// editLayout is the prefill format for interval endpoint prompts.
const editLayout = "2006-01-02 15:04"

// newIntervalLength is the span given to an interval added with the add key.
const newIntervalLength = 30 * time.Minute

// handleIntervalsKey handles keys on the interval editor.
func (m Model) handleIntervalsKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.back):
		if m.dirty {
			m.status = "discarded interval edits"
		} else {
			m.status = "tasks"
		}
		m.screen = screenTasks
		m.rows = nil
		m.dirty = false
		return m, m.loadData
	case key.Matches(msg, m.keys.moveUp):
		m.selectedRow = clamp(m.selectedRow-1, 0, len(m.rows)-1)
		return m, nil
	case key.Matches(msg, m.keys.moveDown):
		m.selectedRow = clamp(m.selectedRow+1, 0, len(m.rows)-1)
		return m, nil
	case key.Matches(msg, m.keys.prevWindow), key.Matches(msg, m.keys.nextWindow):
		if m.dirty {
			m.status = "save (w) or discard (esc) interval edits first"
			return m, nil
		}
		step := m.intervalWindow.End.Sub(m.intervalWindow.Start)
		if key.Matches(msg, m.keys.prevWindow) {
			step = -step
		}
		return m, m.loadIntervals(m.intervalTask, shiftWindow(m.intervalWindow, step))
	case key.Matches(msg, m.keys.addInterval):
		stop := m.svc.Now().Truncate(time.Minute)
		m.rows = append(m.rows, intervalRow{interval: domain.ActivityInterval{
			Start: stop.Add(-newIntervalLength),
			Stop:  &stop,
			IsNew: true,
		}})
		m.sortRows()
		m.selectedRow = m.rowIndexOfNewest()
		m.dirty = true
		m.recomputeOverlaps()
		m.status = "added interval, edit with e/E then save with w"
		return m, nil
	case key.Matches(msg, m.keys.save):
		return m, m.saveIntervals()
	}

	if len(m.rows) == 0 {
		return m, nil
	}
	row := m.rows[m.selectedRow]
	switch {
	case key.Matches(msg, m.keys.deleteInterval):
		m.rows[m.selectedRow].deleted = !row.deleted
		m.dirty = true
		m.recomputeOverlaps()
		return m, nil
	case key.Matches(msg, m.keys.editStart):
		if row.deleted {
			m.status = "restore the interval (x) before editing it"
			return m, nil
		}
		return m, m.startInput(modeEditStart, "start: ", editLayout, row.interval.Start.In(m.loc).Format(editLayout))
	case key.Matches(msg, m.keys.editStop):
		if row.deleted {
			m.status = "restore the interval (x) before editing it"
			return m, nil
		}
		if row.interval.Open() {
			m.status = "stop the timer to close an open interval"
			return m, nil
		}
		return m, m.startInput(modeEditStop, "stop: ", editLayout, row.interval.Stop.In(m.loc).Format(editLayout))
	}
	return m, nil
}

// applyIntervalEdit parses a typed endpoint and applies it to the selected row.
func (m Model) applyIntervalEdit(mode inputMode, value string) (tea.Model, tea.Cmd) {
	if len(m.rows) == 0 {
		return m, nil
	}
	at, err := timeexpr.Parse(value, m.svc.Now().In(m.loc), timeexpr.BoundStart)
	if err != nil {
		m.status = "unrecognized time: " + value
		return m, nil
	}
	iv := m.rows[m.selectedRow].interval
	if mode == modeEditStart {
		iv.Start = at.UTC()
	} else {
		stop := at.UTC()
		iv.Stop = &stop
	}
	if iv.Stop != nil && !iv.Stop.After(iv.Start) {
		m.status = "start must be before stop"
		return m, nil
	}
	if !iv.IsNew {
		iv.IsModified = true
	}
	m.rows[m.selectedRow].interval = iv
	m.dirty = true
	m.sortRows()
	m.recomputeOverlaps()
	m.status = "edited, save with w"
	return m, nil
}

// saveIntervals writes pending edits through the service.
func (m Model) saveIntervals() tea.Cmd {
	edits := m.pendingEdits()
	if len(edits) == 0 {
		return func() tea.Msg { return actionMsg{status: "nothing to save"} }
	}
	svc := m.svc
	task := m.intervalTask.ID
	return func() tea.Msg {
		result, err := svc.SaveIntervals(context.Background(), task, edits)
		if err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{
			status:          fmt.Sprintf("saved %d event writes", len(result.Writes)),
			reload:          true,
			reloadIntervals: true,
		}
	}
}

// pendingEdits collects rows that need a write.
func (m Model) pendingEdits() []app.IntervalEdit {
	var edits []app.IntervalEdit
	for _, row := range m.rows {
		iv := row.interval
		if !row.deleted && !iv.IsNew && !iv.IsModified {
			continue
		}
		if row.deleted && iv.IsNew {
			continue
		}
		edits = append(edits, app.IntervalEdit{Interval: iv, Deleted: row.deleted})
	}
	return edits
}

// sortRows orders rows by start while keeping the selection on the same row.
func (m *Model) sortRows() {
	if len(m.rows) == 0 {
		return
	}
	selected := m.rows[m.selectedRow]
	slices.SortStableFunc(m.rows, func(a, b intervalRow) int {
		return a.interval.Start.Compare(b.interval.Start)
	})
	for i, row := range m.rows {
		if row == selected {
			m.selectedRow = i
			return
		}
	}
}

// rowIndexOfNewest returns the last new row, which is the one just added.
func (m Model) rowIndexOfNewest() int {
	idx := 0
	var latest time.Time
	for i, row := range m.rows {
		if row.interval.IsNew && !row.interval.Start.Before(latest) {
			latest = row.interval.Start
			idx = i
		}
	}
	return idx
}

// recomputeOverlaps refreshes overlap markers over the rows that will survive a save.
func (m *Model) recomputeOverlaps() {
	kept := make([]domain.ActivityInterval, 0, len(m.rows))
	index := make([]int, 0, len(m.rows))
	for i := range m.rows {
		m.rows[i].interval.HasOverlap = false
		if m.rows[i].deleted {
			continue
		}
		kept = append(kept, m.rows[i].interval)
		index = append(index, i)
	}
	for i, iv := range domain.DetectOverlaps(kept, m.svc.Now()) {
		m.rows[index[i]].interval.HasOverlap = iv.HasOverlap
	}
}

// shiftWindow moves both bounds by step.
func shiftWindow(w domain.Window, step time.Duration) domain.Window {
	return domain.Window{Start: w.Start.Add(step), End: w.End.Add(step)}
}

// formatWindow renders a window in loc.
func formatWindow(w domain.Window, loc *time.Location) string {
	return w.Start.In(loc).Format(editLayout) + " → " + w.End.In(loc).Format(editLayout)
}

// renderIntervals renders the interval editor.
func (m Model) renderIntervals(accent, muted color.Color) string {
	selectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	mutedStyle := lipgloss.NewStyle().Foreground(muted)
	overlapStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	pendingStyle := lipgloss.NewStyle().Foreground(accent)
	deletedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Strikethrough(true)

	var b strings.Builder
	title := m.intervalTask.Name
	if m.dirty {
		title += " *"
	}
	b.WriteString(lipgloss.NewStyle().Bold(true).Render(title) + "\n")
	b.WriteString(mutedStyle.Render(formatWindow(m.intervalWindow, m.loc)) + "\n\n")
	if len(m.rows) == 0 {
		b.WriteString(mutedStyle.Render("no intervals in this window, press a to add one"))
		return b.String()
	}

	now := m.svc.Now()
	var total time.Duration
	for i, row := range m.rows {
		iv := row.interval
		cursor := "  "
		if i == m.selectedRow {
			cursor = "> "
		}
		stop := "running"
		if iv.Stop != nil {
			stop = iv.Stop.In(m.loc).Format(editLayout)
		}
		line := fmt.Sprintf("%s  %-16s  %8s", iv.Start.In(m.loc).Format(editLayout), stop, domain.FormatHours(iv.Duration(now).Hours()))
		var flags []string
		switch {
		case row.deleted:
			flags = append(flags, "deleted")
		case iv.IsNew:
			flags = append(flags, "new")
		case iv.IsModified:
			flags = append(flags, "modified")
		}
		if iv.HasOverlap && !row.deleted {
			flags = append(flags, overlapStyle.Render("overlap"))
		}
		switch {
		case row.deleted:
			line = deletedStyle.Render(line)
		case i == m.selectedRow:
			line = selectedStyle.Render(line)
		case iv.IsNew || iv.IsModified:
			line = pendingStyle.Render(line)
		}
		if !row.deleted {
			total += iv.Duration(now)
		}
		b.WriteString(cursor + line)
		if len(flags) > 0 {
			b.WriteString("  " + strings.Join(flags, " "))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n" + mutedStyle.Render("total "+domain.FormatHours(total.Hours())))
	return b.String()
}
