package tui

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"strings"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/atotto/clipboard"
	"github.com/hylla/stamp/internal/app"
	"github.com/hylla/stamp/internal/domain"
)

// Service represents service data used by this package.
type Service interface {
	ListTasks(context.Context, app.ListTasksInput) ([]domain.Task, error)
	ListTags(context.Context) ([]domain.Tag, error)
	CreateTag(context.Context, string) (domain.Tag, error)
	CreateTask(context.Context, app.CreateTaskInput) (domain.Task, error)
	DeleteTask(context.Context, domain.TaskID) error
	StartTimer(context.Context, domain.TaskID) (domain.TimestampEvent, error)
	StopTimer(context.Context, domain.TaskID) (domain.TimestampEvent, error)
	RunningTimers(context.Context) (map[domain.TaskID]time.Time, error)
	ListIntervals(context.Context, domain.TaskID, domain.Window) ([]domain.ActivityInterval, error)
	SaveIntervals(context.Context, domain.TaskID, []app.IntervalEdit) (app.SaveResult, error)
	Summary(context.Context, domain.Window) (domain.Summary, error)
	DefaultWindow() domain.Window
	Now() time.Time
}

// screen identifies the active top-level view.
type screen int

// screenTasks and related constants define package defaults.
const (
	screenTasks screen = iota
	screenIntervals
	screenSummary
	screenAbout
)

// tabScreens lists the screens reachable with tab, in order.
var tabScreens = []screen{screenTasks, screenSummary, screenAbout}

// String returns the screen label.
func (s screen) String() string {
	switch s {
	case screenIntervals:
		return "intervals"
	case screenSummary:
		return "summary"
	case screenAbout:
		return "about"
	default:
		return "tasks"
	}
}

// inputMode represents a selectable mode.
type inputMode int

// modeNone and related constants define package defaults.
const (
	modeNone inputMode = iota
	modeNewTask
	modeTagFilter
	modeEditStart
	modeEditStop
	modeConfirmDelete
	modeConfirmDiscard
)

// defaultRefresh is the running-timer redraw interval.
const defaultRefresh = time.Second

// intervalRow is one editable interval plus its pending delete flag.
type intervalRow struct {
	interval domain.ActivityInterval
	deleted  bool
}

// Model is the bubbletea model for the stamp terminal UI.
type Model struct {
	svc Service

	ready  bool
	width  int
	height int
	err    error
	status string

	help help.Model
	keys keyMap

	screen screen
	mode   inputMode
	input  textinput.Model

	tasks        []domain.Task
	tags         []domain.Tag
	running      map[domain.TaskID]time.Time
	tagFilter    domain.TagSet
	selectedTask int

	intervalTask   domain.Task
	intervalWindow domain.Window
	rows           []intervalRow
	selectedRow    int
	dirty          bool

	summaryWindow domain.Window
	summary       *domain.Summary

	refresh         time.Duration
	ticking         bool
	loc             *time.Location
	version         string
	copyToClipboard func(string) error
	markdown        *markdownRenderer
}

// loadedMsg carries the task list, tag catalog, and running timers.
type loadedMsg struct {
	tasks   []domain.Task
	tags    []domain.Tag
	running map[domain.TaskID]time.Time
	err     error
}

// intervalsLoadedMsg carries a task's rebuilt intervals.
type intervalsLoadedMsg struct {
	task      domain.Task
	window    domain.Window
	intervals []domain.ActivityInterval
	err       error
}

// summaryLoadedMsg carries aggregated totals.
type summaryLoadedMsg struct {
	summary domain.Summary
	err     error
}

// actionMsg reports the outcome of one write. Reloading intervals also reloads tasks.
type actionMsg struct {
	status          string
	err             error
	reload          bool
	reloadIntervals bool
}

// tickMsg redraws running timers.
type tickMsg time.Time

// NewModel constructs a new value for this package.
func NewModel(svc Service, opts ...Option) Model {
	h := help.New()
	h.ShowAll = false
	m := Model{
		svc:             svc,
		status:          "loading...",
		help:            h,
		keys:            newKeyMap(),
		input:           newModalInput("", "", "", 120),
		running:         map[domain.TaskID]time.Time{},
		refresh:         defaultRefresh,
		loc:             time.Local,
		version:         "dev",
		copyToClipboard: clipboard.WriteAll,
		markdown:        &markdownRenderer{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}
	return m
}

// Init handles init.
func (m Model) Init() tea.Cmd {
	return m.loadData
}

// Update updates state for the requested operation.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.tasks = msg.tasks
		m.tags = msg.tags
		m.running = msg.running
		m.selectedTask = clamp(m.selectedTask, 0, len(m.tasks)-1)
		if m.status == "" || m.status == "loading..." || m.status == "reloading..." {
			m.status = "ready"
		}
		cmd := m.ensureTicking()
		return m, cmd

	case intervalsLoadedMsg:
		if msg.err != nil {
			m.status = "load intervals failed: " + msg.err.Error()
			return m, nil
		}
		m.screen = screenIntervals
		m.intervalTask = msg.task
		m.intervalWindow = msg.window
		m.rows = make([]intervalRow, 0, len(msg.intervals))
		for _, iv := range msg.intervals {
			m.rows = append(m.rows, intervalRow{interval: iv})
		}
		m.selectedRow = clamp(m.selectedRow, 0, len(m.rows)-1)
		m.dirty = false
		m.recomputeOverlaps()
		return m, m.loadData

	case summaryLoadedMsg:
		if msg.err != nil {
			m.status = "load summary failed: " + msg.err.Error()
			return m, nil
		}
		summary := msg.summary
		m.summary = &summary
		m.summaryWindow = summary.Window
		return m, nil

	case actionMsg:
		if msg.err != nil {
			m.status = describeError(msg.err)
			return m, nil
		}
		if msg.status != "" {
			m.status = msg.status
		}
		switch {
		case msg.reloadIntervals:
			return m, m.loadIntervals(m.intervalTask, m.intervalWindow)
		case msg.reload:
			return m, m.loadData
		}
		return m, nil

	case tickMsg:
		m.ticking = false
		cmd := m.ensureTicking()
		return m, cmd

	case tea.KeyPressMsg:
		if m.mode != modeNone {
			return m.handleInputModeKey(msg)
		}
		return m.handleNormalModeKey(msg)

	default:
		return m, nil
	}
}

// ensureTicking schedules a redraw while any timer runs.
func (m *Model) ensureTicking() tea.Cmd {
	if m.ticking || len(m.running) == 0 {
		return nil
	}
	m.ticking = true
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// loadData loads tasks, tags, and running timers.
func (m Model) loadData() tea.Msg {
	ctx := context.Background()
	tasks, err := m.svc.ListTasks(ctx, app.ListTasksInput{Tags: m.tagFilter})
	if err != nil {
		return loadedMsg{err: err}
	}
	tags, err := m.svc.ListTags(ctx)
	if err != nil {
		return loadedMsg{err: err}
	}
	running, err := m.svc.RunningTimers(ctx)
	if err != nil {
		return loadedMsg{err: err}
	}
	return loadedMsg{tasks: tasks, tags: tags, running: running}
}

// loadIntervals returns a command that rebuilds one task's intervals.
func (m Model) loadIntervals(task domain.Task, window domain.Window) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		intervals, err := svc.ListIntervals(context.Background(), task.ID, window)
		return intervalsLoadedMsg{task: task, window: window, intervals: intervals, err: err}
	}
}

// loadSummary returns a command that aggregates totals over window.
func (m Model) loadSummary(window domain.Window) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		summary, err := svc.Summary(context.Background(), window)
		return summaryLoadedMsg{summary: summary, err: err}
	}
}

// newModalInput constructs one single-line prompt input.
func newModalInput(prompt, placeholder, value string, limit int) textinput.Model {
	in := textinput.New()
	in.Prompt = prompt
	in.Placeholder = placeholder
	in.CharLimit = limit
	styles := in.Styles()
	styles.Cursor.Blink = false
	in.SetStyles(styles)
	in.SetValue(value)
	return in
}

// startInput switches into an input mode with a fresh prompt.
func (m *Model) startInput(mode inputMode, prompt, placeholder, value string) tea.Cmd {
	m.mode = mode
	m.input = newModalInput(prompt, placeholder, value, 120)
	m.input.CursorEnd()
	return m.input.Focus()
}

// handleNormalModeKey dispatches keys shared by every screen, then per-screen keys.
func (m Model) handleNormalModeKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		if m.screen == screenIntervals && m.dirty {
			m.mode = modeConfirmDiscard
			m.status = "discard unsaved interval edits and quit? (y/n)"
			return m, nil
		}
		return m, tea.Quit
	case key.Matches(msg, m.keys.toggleHelp):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.reload):
		m.status = "reloading..."
		switch m.screen {
		case screenIntervals:
			return m, m.loadIntervals(m.intervalTask, m.intervalWindow)
		case screenSummary:
			return m, m.loadSummary(m.summaryWindow)
		}
		return m, m.loadData
	case key.Matches(msg, m.keys.nextScreen), key.Matches(msg, m.keys.prevScreen):
		if m.screen == screenIntervals && m.dirty {
			m.status = "save (w) or discard (esc) interval edits first"
			return m, nil
		}
		delta := 1
		if key.Matches(msg, m.keys.prevScreen) {
			delta = -1
		}
		return m.switchScreen(tabScreens[wrapIndex(tabIndex(m.screen), delta, len(tabScreens))])
	}

	switch m.screen {
	case screenIntervals:
		return m.handleIntervalsKey(msg)
	case screenSummary:
		return m.handleSummaryKey(msg)
	case screenAbout:
		if key.Matches(msg, m.keys.back) {
			return m.switchScreen(screenTasks)
		}
		return m, nil
	default:
		return m.handleTasksKey(msg)
	}
}

// switchScreen activates s and loads what it needs.
func (m Model) switchScreen(s screen) (tea.Model, tea.Cmd) {
	m.screen = s
	m.status = s.String()
	if s == screenSummary {
		window := m.summaryWindow
		if window.End.IsZero() {
			window = m.svc.DefaultWindow()
		}
		return m, m.loadSummary(window)
	}
	return m, nil
}

// handleInputModeKey routes keys while a prompt or confirmation is open.
func (m Model) handleInputModeKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case modeConfirmDelete, modeConfirmDiscard:
		mode := m.mode
		m.mode = modeNone
		if msg.String() != "y" {
			m.status = "cancelled"
			return m, nil
		}
		if mode == modeConfirmDiscard {
			return m, tea.Quit
		}
		task, ok := m.selectedTaskValue()
		if !ok {
			return m, nil
		}
		return m, m.deleteTask(task)
	}

	switch msg.String() {
	case "esc":
		m.mode = modeNone
		m.input.Blur()
		m.status = "cancelled"
		return m, nil
	case "enter":
		value := strings.TrimSpace(m.input.Value())
		mode := m.mode
		m.mode = modeNone
		m.input.Blur()
		return m.submitInput(mode, value)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submitInput applies a completed prompt.
func (m Model) submitInput(mode inputMode, value string) (tea.Model, tea.Cmd) {
	switch mode {
	case modeNewTask:
		name, tagNames := splitTaskInput(value)
		if name == "" {
			m.status = "task name is required"
			return m, nil
		}
		m.status = "creating task..."
		return m, m.createTask(name, tagNames)
	case modeTagFilter:
		ids, err := m.resolveTagNames(splitTagNames(value))
		if err != nil {
			m.status = err.Error()
			return m, nil
		}
		m.tagFilter = domain.NewTagSet(ids...)
		m.selectedTask = 0
		if len(m.tagFilter) == 0 {
			m.status = "filter cleared"
		} else {
			m.status = "filter: " + m.tagNames(m.tagFilter)
		}
		return m, m.loadData
	case modeEditStart, modeEditStop:
		return m.applyIntervalEdit(mode, value)
	}
	return m, nil
}

// describeError renders a write failure for the status line.
func describeError(err error) string {
	var partial *app.PartialWriteError
	switch {
	case errors.As(err, &partial):
		return fmt.Sprintf("save stopped after %d of %d writes: %v (reload with r)", partial.Applied, partial.Total, partial.Err)
	case errors.Is(err, domain.ErrInvalidInterval):
		return "invalid interval: every start must precede its stop"
	case errors.Is(err, app.ErrTimerRunning):
		return "timer already running"
	case errors.Is(err, app.ErrTimerNotRunning):
		return "timer not running"
	default:
		return "error: " + err.Error()
	}
}

// View handles view.
func (m Model) View() tea.View {
	v := tea.NewView(m.render())
	v.AltScreen = true
	return v
}

// render composes the full screen as text.
func (m Model) render() string {
	if m.err != nil {
		return "error: " + m.err.Error() + "\n\npress r to retry • q quit\n"
	}
	if !m.ready {
		return "loading..."
	}

	accent := lipgloss.Color("62")
	muted := lipgloss.Color("241")
	dim := lipgloss.Color("239")
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	tabStyle := lipgloss.NewStyle().Foreground(muted)
	activeTabStyle := lipgloss.NewStyle().Foreground(accent).Bold(true).Underline(true)
	statusStyle := lipgloss.NewStyle().Foreground(dim)

	tabs := make([]string, 0, len(tabScreens)+1)
	for _, s := range []screen{screenTasks, screenIntervals, screenSummary, screenAbout} {
		if s == screenIntervals && m.screen != screenIntervals {
			continue
		}
		style := tabStyle
		if s == m.screen {
			style = activeTabStyle
		}
		tabs = append(tabs, style.Render(s.String()))
	}
	header := titleStyle.Render("stamp") + "  " + strings.Join(tabs, "  ")
	if len(m.running) > 0 {
		header += statusStyle.Render(fmt.Sprintf("  running: %d", len(m.running)))
	}

	var body string
	switch m.screen {
	case screenIntervals:
		body = m.renderIntervals(accent, muted)
	case screenSummary:
		body = m.renderSummary(muted)
	case screenAbout:
		body = m.renderAbout(accent, muted)
	default:
		body = m.renderTasks(accent, muted)
	}

	footer := statusStyle.Render(m.status)
	if m.mode != modeNone && m.mode != modeConfirmDelete && m.mode != modeConfirmDiscard {
		footer = m.input.View()
	}
	helpBubble := m.help
	helpBubble.SetWidth(max(0, m.width-2))
	helpLine := lipgloss.NewStyle().
		Foreground(muted).
		BorderTop(true).
		BorderForeground(dim).
		Padding(0, 1).
		Width(max(0, m.width)).
		Render(helpBubble.View(m.keys))

	content := header + "\n\n" + body
	if m.height > 0 {
		reserved := lipgloss.Height(helpLine) + lipgloss.Height(footer)
		content = fitLines(content, max(1, m.height-reserved))
	}
	return content + "\n" + footer + "\n" + helpLine
}

// renderAbout renders the about screen.
func (m Model) renderAbout(accent, muted color.Color) string {
	title := lipgloss.NewStyle().Bold(true).Foreground(accent)
	body := lipgloss.NewStyle().Foreground(muted)
	lines := []string{
		title.Render("stamp " + m.version),
		"",
		"A local time tracker built on an append-only log of start and stop events.",
		"Intervals are rebuilt from the log on every read; edits are written back as event changes.",
		"",
		body.Render("tab switches screens • enter on a task opens its intervals • y on the summary copies it"),
	}
	return strings.Join(lines, "\n")
}

// tabIndex returns the position of s in tabScreens.
func tabIndex(s screen) int {
	for i, candidate := range tabScreens {
		if candidate == s {
			return i
		}
	}
	return 0
}

// clamp bounds v to [minV, maxV]; an empty range yields minV.
func clamp(v, minV, maxV int) int {
	if maxV < minV {
		return minV
	}
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}

// wrapIndex moves current by delta with wrap-around.
func wrapIndex(current int, delta int, total int) int {
	if total <= 0 {
		return 0
	}
	next := (current + delta) % total
	if next < 0 {
		next += total
	}
	return next
}

// fitLines pads or truncates content to exactly maxLines lines.
func fitLines(content string, maxLines int) string {
	if maxLines <= 0 {
		return ""
	}
	lines := strings.Split(content, "\n")
	switch {
	case len(lines) > maxLines:
		if maxLines == 1 {
			lines = []string{"…"}
		} else {
			lines = append(lines[:maxLines-1], "…")
		}
	case len(lines) < maxLines:
		lines = append(lines, make([]string, maxLines-len(lines))...)
	}
	return strings.Join(lines, "\n")
}

// truncate shortens s to max runes with an ellipsis.
func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= max {
		return s
	}
	if max <= 1 {
		return string(rs[:max])
	}
	return string(rs[:max-1]) + "…"
}
