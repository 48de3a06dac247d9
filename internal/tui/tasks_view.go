package tui

import (
	"context"
	"fmt"
	"image/color"
	"strings"
	"time"

	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/hylla/stamp/internal/app"
	"github.com/hylla/stamp/internal/domain"
)

// handleTasksKey handles keys on the task list.
func (m Model) handleTasksKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.moveUp):
		m.selectedTask = clamp(m.selectedTask-1, 0, len(m.tasks)-1)
		return m, nil
	case key.Matches(msg, m.keys.moveDown):
		m.selectedTask = clamp(m.selectedTask+1, 0, len(m.tasks)-1)
		return m, nil
	case key.Matches(msg, m.keys.newTask):
		return m, m.startInput(modeNewTask, "new task: ", "name #tag #tag", "")
	case key.Matches(msg, m.keys.filterTags):
		return m, m.startInput(modeTagFilter, "tags: ", "comma-separated tag names, empty clears", m.tagNames(m.tagFilter))
	case key.Matches(msg, m.keys.back):
		if len(m.tagFilter) > 0 {
			m.tagFilter = nil
			m.selectedTask = 0
			m.status = "filter cleared"
			return m, m.loadData
		}
		return m, nil
	}

	task, ok := m.selectedTaskValue()
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.toggleTimer):
		return m, m.toggleTimer(task)
	case key.Matches(msg, m.keys.open):
		m.selectedRow = 0
		return m, m.loadIntervals(task, m.svc.DefaultWindow())
	case key.Matches(msg, m.keys.deleteTask):
		m.mode = modeConfirmDelete
		m.status = fmt.Sprintf("delete %q and all of its events? (y/n)", task.Name)
		return m, nil
	}
	return m, nil
}

// selectedTaskValue returns the highlighted task.
func (m Model) selectedTaskValue() (domain.Task, bool) {
	if len(m.tasks) == 0 || m.selectedTask < 0 || m.selectedTask >= len(m.tasks) {
		return domain.Task{}, false
	}
	return m.tasks[m.selectedTask], true
}

// toggleTimer starts a stopped timer or stops a running one.
func (m Model) toggleTimer(task domain.Task) tea.Cmd {
	svc := m.svc
	_, running := m.running[task.ID]
	return func() tea.Msg {
		ctx := context.Background()
		if running {
			if _, err := svc.StopTimer(ctx, task.ID); err != nil {
				return actionMsg{err: err, reload: true}
			}
			return actionMsg{status: "stopped " + task.Name, reload: true}
		}
		if _, err := svc.StartTimer(ctx, task.ID); err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{status: "started " + task.Name, reload: true}
	}
}

// createTask creates a task, adding any tags that do not exist yet.
func (m Model) createTask(name string, tagNames []string) tea.Cmd {
	svc := m.svc
	known := m.tags
	return func() tea.Msg {
		ctx := context.Background()
		ids := make([]domain.TagID, 0, len(tagNames))
		for _, tagName := range tagNames {
			if tag, ok := findTag(known, tagName); ok {
				ids = append(ids, tag.ID)
				continue
			}
			tag, err := svc.CreateTag(ctx, tagName)
			if err != nil {
				return actionMsg{err: err}
			}
			known = append(known, tag)
			ids = append(ids, tag.ID)
		}
		task, err := svc.CreateTask(ctx, app.CreateTaskInput{Name: name, Tags: ids})
		if err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{status: "created " + task.Name, reload: true}
	}
}

// deleteTask removes a task and its events.
func (m Model) deleteTask(task domain.Task) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		if err := svc.DeleteTask(context.Background(), task.ID); err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{status: "deleted " + task.Name, reload: true}
	}
}

// splitTaskInput separates "name #tag #tag" into the name and tag names.
func splitTaskInput(raw string) (string, []string) {
	var name []string
	var tags []string
	for _, field := range strings.Fields(raw) {
		if tag, ok := strings.CutPrefix(field, "#"); ok {
			if tag != "" {
				tags = append(tags, tag)
			}
			continue
		}
		name = append(name, field)
	}
	return strings.Join(name, " "), tags
}

// splitTagNames reads a comma-separated tag list.
func splitTagNames(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimPrefix(strings.TrimSpace(part), "#")
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// findTag looks a tag up by case-insensitive name.
func findTag(tags []domain.Tag, name string) (domain.Tag, bool) {
	for _, tag := range tags {
		if strings.EqualFold(tag.Name, name) {
			return tag, true
		}
	}
	return domain.Tag{}, false
}

// resolveTagNames maps names to ids from the loaded catalog.
func (m Model) resolveTagNames(names []string) ([]domain.TagID, error) {
	ids := make([]domain.TagID, 0, len(names))
	for _, name := range names {
		tag, ok := findTag(m.tags, name)
		if !ok {
			return nil, fmt.Errorf("unknown tag %q", name)
		}
		ids = append(ids, tag.ID)
	}
	return ids, nil
}

// tagNames renders a tag set as comma-separated names.
func (m Model) tagNames(set domain.TagSet) string {
	names := make([]string, 0, len(set))
	for _, id := range set {
		names = append(names, m.tagName(id))
	}
	return strings.Join(names, ", ")
}

// tagName returns the catalog name for id, or a placeholder for an unknown id.
func (m Model) tagName(id domain.TagID) string {
	for _, tag := range m.tags {
		if tag.ID == id {
			return tag.Name
		}
	}
	return fmt.Sprintf("tag-%d", id)
}

// formatElapsed renders a running duration as h:mm:ss.
func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Truncate(time.Second)
	h := int(d / time.Hour)
	mins := int(d%time.Hour) / int(time.Minute)
	secs := int(d%time.Minute) / int(time.Second)
	return fmt.Sprintf("%d:%02d:%02d", h, mins, secs)
}

// renderTasks renders the task list.
func (m Model) renderTasks(accent, muted color.Color) string {
	selectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	runningStyle := lipgloss.NewStyle().Foreground(accent).Bold(true)
	tagStyle := lipgloss.NewStyle().Foreground(muted)

	var b strings.Builder
	if len(m.tagFilter) > 0 {
		b.WriteString(tagStyle.Render("filter: "+m.tagNames(m.tagFilter)) + "\n\n")
	}
	if len(m.tasks) == 0 {
		b.WriteString(tagStyle.Render("no tasks yet, press n to add one"))
		return b.String()
	}

	nameWidth := max(12, min(40, m.width/2))
	now := m.svc.Now()
	for i, task := range m.tasks {
		cursor := "  "
		nameStyle := lipgloss.NewStyle()
		if i == m.selectedTask {
			cursor = "> "
			nameStyle = selectedStyle
		}
		marker := "  "
		elapsed := ""
		if started, ok := m.running[task.ID]; ok {
			marker = runningStyle.Render("● ")
			elapsed = runningStyle.Render(formatElapsed(now.Sub(started)))
		}
		name := fmt.Sprintf("%-*s", nameWidth, truncate(task.Name, nameWidth))
		tags := ""
		if len(task.Tags) > 0 {
			labels := make([]string, 0, len(task.Tags))
			for _, id := range task.Tags {
				labels = append(labels, "#"+m.tagName(id))
			}
			tags = tagStyle.Render(strings.Join(labels, " "))
		}
		b.WriteString(cursor + marker + nameStyle.Render(name) + " " + tags)
		if elapsed != "" {
			b.WriteString("  " + elapsed)
		}
		if i < len(m.tasks)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}
