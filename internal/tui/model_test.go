package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/hylla/stamp/internal/adapters/storage/sqlite"
	"github.com/hylla/stamp/internal/app"
	"github.com/hylla/stamp/internal/domain"
)

var _ Service = (*app.Service)(nil)

// testNow is the fixed clock used by model tests.
var testNow = time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)

// newTestService builds an app service over an in-memory store with a fixed clock.
func newTestService(t *testing.T) *app.Service {
	t.Helper()
	repo, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return app.NewService(repo, func() time.Time { return testNow }, app.ServiceConfig{
		SummaryPolicy: domain.SummaryPolicy{IncludeOngoing: true},
	})
}

// seedTask creates a task with an optional closed interval ending at stop.
func seedTask(t *testing.T, svc *app.Service, name string, tags []domain.TagID, start, stop time.Time) domain.Task {
	t.Helper()
	ctx := context.Background()
	task, err := svc.CreateTask(ctx, app.CreateTaskInput{Name: name, Tags: tags})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if start.IsZero() {
		return task
	}
	if _, err := svc.CreateEvent(ctx, app.CreateEventInput{Task: task.ID, Timestamp: start, Type: domain.EventStart}); err != nil {
		t.Fatalf("CreateEvent(start) error = %v", err)
	}
	if _, err := svc.CreateEvent(ctx, app.CreateEventInput{Task: task.ID, Timestamp: stop, Type: domain.EventStop}); err != nil {
		t.Fatalf("CreateEvent(stop) error = %v", err)
	}
	return task
}

// newTestModel returns a ready model with test-friendly options.
func newTestModel(t *testing.T, svc Service, opts ...Option) Model {
	t.Helper()
	base := []Option{WithRefreshInterval(time.Millisecond), WithLocation(time.UTC), WithVersion("v-test")}
	return loadReadyModel(t, NewModel(svc, append(base, opts...)...))
}

// failingService fails every read.
type failingService struct {
	Service
	err error
}

func (f failingService) ListTasks(context.Context, app.ListTasksInput) ([]domain.Task, error) {
	return nil, f.err
}

func TestModelLoadAndNavigation(t *testing.T) {
	svc := newTestService(t)
	seedTask(t, svc, "Write report", nil, time.Time{}, time.Time{})
	seedTask(t, svc, "Review", nil, time.Time{}, time.Time{})

	m := newTestModel(t, svc)
	if len(m.tasks) != 2 || m.status != "ready" {
		t.Fatalf("unexpected loaded model tasks=%d status=%q", len(m.tasks), m.status)
	}
	m = applyMsg(t, m, keyRune('j'))
	if m.selectedTask != 1 {
		t.Fatalf("expected selectedTask=1, got %d", m.selectedTask)
	}
	m = applyMsg(t, m, keyRune('j'))
	if m.selectedTask != 1 {
		t.Fatalf("expected selection clamped at 1, got %d", m.selectedTask)
	}
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyUp})
	if m.selectedTask != 0 {
		t.Fatalf("expected selectedTask=0, got %d", m.selectedTask)
	}
	view := m.render()
	if !strings.Contains(view, "Write report") || !strings.Contains(view, "Review") {
		t.Fatalf("expected tasks in view, got %q", view)
	}
}

func TestModelCreateTaskWithHashtags(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	work, err := svc.CreateTag(ctx, "work")
	if err != nil {
		t.Fatalf("CreateTag() error = %v", err)
	}

	m := newTestModel(t, svc)
	m = applyMsg(t, m, keyRune('n'))
	if m.mode != modeNewTask {
		t.Fatalf("expected new task mode, got %v", m.mode)
	}
	for _, r := range "Plan sprint #Work #deep" {
		m = applyMsg(t, m, keyRune(r))
	}
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	if m.mode != modeNone {
		t.Fatalf("expected prompt closed, got %v", m.mode)
	}
	if len(m.tasks) != 1 || m.tasks[0].Name != "Plan sprint" {
		t.Fatalf("unexpected tasks %#v", m.tasks)
	}
	if len(m.tasks[0].Tags) != 2 || !m.tasks[0].Tags.Contains(work.ID) {
		t.Fatalf("expected existing and new tag, got %v", m.tasks[0].Tags)
	}
	if len(m.tags) != 2 {
		t.Fatalf("expected deep tag to be created, got %#v", m.tags)
	}
	if m.status != "created Plan sprint" {
		t.Fatalf("unexpected status %q", m.status)
	}
}

func TestModelTagFilter(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	work, _ := svc.CreateTag(ctx, "work")
	seedTask(t, svc, "Tagged", []domain.TagID{work.ID}, time.Time{}, time.Time{})
	seedTask(t, svc, "Untagged", nil, time.Time{}, time.Time{})

	m := newTestModel(t, svc)
	m = applyMsg(t, m, keyRune('f'))
	for _, r := range "work" {
		m = applyMsg(t, m, keyRune(r))
	}
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	if len(m.tasks) != 1 || m.tasks[0].Name != "Tagged" {
		t.Fatalf("expected filtered tasks, got %#v", m.tasks)
	}
	if !strings.Contains(m.render(), "filter: work") {
		t.Fatalf("expected filter line in view")
	}

	m = applyMsg(t, m, keyRune('f'))
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEscape})
	if m.mode != modeNone || m.status != "cancelled" {
		t.Fatalf("expected cancelled prompt, got mode=%v status=%q", m.mode, m.status)
	}

	m = applyMsg(t, m, keyRune('f'))
	for _, r := range "nope" {
		m = applyMsg(t, m, keyRune(r))
	}
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	if !strings.Contains(m.status, "unknown tag") {
		t.Fatalf("expected unknown tag status, got %q", m.status)
	}

	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEscape})
	if len(m.tagFilter) != 0 || len(m.tasks) != 2 {
		t.Fatalf("expected esc to clear filter, got filter=%v tasks=%d", m.tagFilter, len(m.tasks))
	}
}

func TestModelToggleTimer(t *testing.T) {
	svc := newTestService(t)
	task := seedTask(t, svc, "Deep work", nil, time.Time{}, time.Time{})

	m := newTestModel(t, svc)
	m = applyMsg(t, m, keyRune(' '))
	if _, ok := m.running[task.ID]; !ok {
		t.Fatalf("expected running timer, got %#v", m.running)
	}
	if m.status != "started Deep work" {
		t.Fatalf("unexpected status %q", m.status)
	}
	if !strings.Contains(m.render(), "running: 1") {
		t.Fatalf("expected running indicator in header")
	}

	m = applyMsg(t, m, keyRune('s'))
	if len(m.running) != 0 {
		t.Fatalf("expected timer stopped, got %#v", m.running)
	}
	if m.status != "stopped Deep work" {
		t.Fatalf("unexpected status %q", m.status)
	}
}

func TestModelDeleteTaskConfirm(t *testing.T) {
	svc := newTestService(t)
	seedTask(t, svc, "Throwaway", nil, time.Time{}, time.Time{})

	m := newTestModel(t, svc)
	m = applyMsg(t, m, keyRune('d'))
	if m.mode != modeConfirmDelete {
		t.Fatalf("expected confirm mode, got %v", m.mode)
	}
	m = applyMsg(t, m, keyRune('n'))
	if len(m.tasks) != 1 || m.status != "cancelled" {
		t.Fatalf("expected delete cancelled, tasks=%d status=%q", len(m.tasks), m.status)
	}
	m = applyMsg(t, m, keyRune('d'))
	m = applyMsg(t, m, keyRune('y'))
	if len(m.tasks) != 0 {
		t.Fatalf("expected task deleted, got %#v", m.tasks)
	}
}

func TestModelIntervalEditing(t *testing.T) {
	svc := newTestService(t)
	task := seedTask(t, svc, "Focus", nil, testNow.Add(-3*time.Hour), testNow.Add(-2*time.Hour))

	m := newTestModel(t, svc)
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	if m.screen != screenIntervals || len(m.rows) != 1 {
		t.Fatalf("expected interval screen with one row, got screen=%v rows=%d", m.screen, len(m.rows))
	}

	m = applyMsg(t, m, keyRune('e'))
	if m.mode != modeEditStart || m.input.Value() != "2026-02-21 09:00" {
		t.Fatalf("expected prefilled start prompt, got mode=%v value=%q", m.mode, m.input.Value())
	}
	m.input.SetValue("2026-02-21 09:30")
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	if !m.dirty || !m.rows[0].interval.IsModified {
		t.Fatalf("expected modified row, got %#v", m.rows[0])
	}

	m = applyMsg(t, m, keyRune('a'))
	if len(m.rows) != 2 || !m.rows[m.selectedRow].interval.IsNew {
		t.Fatalf("expected new row selected, got %#v", m.rows)
	}

	m = applyMsg(t, m, keyRune('w'))
	if m.dirty {
		t.Fatalf("expected clean editor after save")
	}
	if !strings.Contains(m.status, "saved 4 event writes") {
		t.Fatalf("unexpected status %q", m.status)
	}
	intervals, err := svc.ListIntervals(context.Background(), task.ID, svc.DefaultWindow())
	if err != nil {
		t.Fatalf("ListIntervals() error = %v", err)
	}
	if len(intervals) != 2 || !intervals[0].Start.Equal(testNow.Add(-150*time.Minute)) {
		t.Fatalf("unexpected stored intervals %#v", intervals)
	}
}

func TestModelIntervalValidation(t *testing.T) {
	svc := newTestService(t)
	seedTask(t, svc, "Focus", nil, testNow.Add(-3*time.Hour), testNow.Add(-2*time.Hour))

	m := newTestModel(t, svc)
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})

	m = applyMsg(t, m, keyRune('e'))
	m.input.SetValue("2026-02-21 11:00")
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	if m.status != "start must be before stop" || m.dirty {
		t.Fatalf("expected rejected edit, status=%q dirty=%v", m.status, m.dirty)
	}

	m = applyMsg(t, m, keyRune('E'))
	m.input.SetValue("zzz")
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	if !strings.HasPrefix(m.status, "unrecognized time") {
		t.Fatalf("expected parse failure status, got %q", m.status)
	}

	m = applyMsg(t, m, keyRune('x'))
	if !m.rows[0].deleted || !m.dirty {
		t.Fatalf("expected row marked deleted")
	}
	m = applyMsg(t, m, keyRune('e'))
	if m.mode != modeNone || !strings.Contains(m.status, "restore") {
		t.Fatalf("expected deleted row to refuse edits, got %q", m.status)
	}
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyTab})
	if m.screen != screenIntervals {
		t.Fatalf("expected dirty editor to block screen change")
	}
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEscape})
	if m.screen != screenTasks || m.status != "discarded interval edits" {
		t.Fatalf("expected discard back to tasks, got screen=%v status=%q", m.screen, m.status)
	}
}

func TestModelOpenIntervalStopIsReadOnly(t *testing.T) {
	svc := newTestService(t)
	task := seedTask(t, svc, "Running", nil, time.Time{}, time.Time{})
	if _, err := svc.StartTimer(context.Background(), task.ID); err != nil {
		t.Fatalf("StartTimer() error = %v", err)
	}

	m := newTestModel(t, svc)
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	if len(m.rows) != 1 || !m.rows[0].interval.Open() {
		t.Fatalf("expected one open interval, got %#v", m.rows)
	}
	m = applyMsg(t, m, keyRune('E'))
	if m.mode != modeNone || m.status != "stop the timer to close an open interval" {
		t.Fatalf("expected open stop edit refused, mode=%v status=%q", m.mode, m.status)
	}
	if !strings.Contains(m.render(), "running") {
		t.Fatalf("expected running marker in interval view")
	}
}

func TestModelOverlapMarkers(t *testing.T) {
	svc := newTestService(t)
	seedTask(t, svc, "Focus", nil, testNow.Add(-3*time.Hour), testNow.Add(-time.Hour))

	m := newTestModel(t, svc)
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	m = applyMsg(t, m, keyRune('a'))
	m.selectedRow = 0
	m = applyMsg(t, m, keyRune('E'))
	m.input.SetValue("2026-02-21 11:45")
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	overlaps := 0
	for _, row := range m.rows {
		if row.interval.HasOverlap {
			overlaps++
		}
	}
	if overlaps != 2 {
		t.Fatalf("expected both rows flagged, got %#v", m.rows)
	}
	if !strings.Contains(m.render(), "overlap") {
		t.Fatalf("expected overlap marker in view")
	}

	m = applyMsg(t, m, keyRune('x'))
	for _, row := range m.rows {
		if row.interval.HasOverlap {
			t.Fatalf("expected deleted row to clear overlaps, got %#v", m.rows)
		}
	}
}

func TestModelSummaryScreenAndCopy(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	work, _ := svc.CreateTag(ctx, "work")
	seedTask(t, svc, "Report", []domain.TagID{work.ID}, testNow.Add(-90*time.Minute), testNow)

	var copied string
	m := newTestModel(t, svc, WithClipboard(func(s string) error {
		copied = s
		return nil
	}))
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyTab})
	if m.screen != screenSummary || m.summary == nil {
		t.Fatalf("expected loaded summary screen, got screen=%v", m.screen)
	}
	if len(m.summary.Tasks) != 1 || m.summary.Tasks[0].Formatted() != "1h 30m" {
		t.Fatalf("unexpected summary %#v", m.summary)
	}

	m = applyMsg(t, m, keyRune('y'))
	if m.status != "copied summary to clipboard" {
		t.Fatalf("unexpected status %q", m.status)
	}
	for _, want := range []string{"| Report | 1h 30m |", "| work | 1h 30m |"} {
		if !strings.Contains(copied, want) {
			t.Fatalf("expected %q in copied markdown %q", want, copied)
		}
	}

	window := m.summaryWindow
	m = applyMsg(t, m, keyRune('['))
	if !m.summaryWindow.End.Equal(window.Start) {
		t.Fatalf("expected window shifted back, got %v", m.summaryWindow)
	}
	if len(m.summary.Tasks) != 0 {
		t.Fatalf("expected empty earlier window, got %#v", m.summary.Tasks)
	}
}

func TestModelClipboardFailure(t *testing.T) {
	svc := newTestService(t)
	m := newTestModel(t, svc, WithClipboard(func(string) error { return errors.New("no display") }))
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyTab})
	m = applyMsg(t, m, keyRune('y'))
	if m.status != "copy failed: no display" {
		t.Fatalf("unexpected status %q", m.status)
	}
}

func TestModelScreensCycle(t *testing.T) {
	m := newTestModel(t, newTestService(t))
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyTab})
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyTab})
	if m.screen != screenAbout {
		t.Fatalf("expected about screen, got %v", m.screen)
	}
	if !strings.Contains(m.render(), "stamp v-test") {
		t.Fatalf("expected version on about screen")
	}
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyTab})
	if m.screen != screenTasks {
		t.Fatalf("expected wrap to tasks, got %v", m.screen)
	}
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyTab, Mod: tea.ModShift})
	if m.screen != screenAbout {
		t.Fatalf("expected shift+tab to about, got %v", m.screen)
	}
}

func TestModelLoadErrorAndQuit(t *testing.T) {
	m := loadReadyModel(t, NewModel(failingService{err: errors.New("disk gone")}))
	if m.err == nil || !strings.Contains(m.render(), "disk gone") {
		t.Fatalf("expected error view, got err=%v", m.err)
	}
	_, cmd := m.Update(keyRune('q'))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
}

func TestDescribeError(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&app.PartialWriteError{Applied: 1, Total: 3, Err: app.ErrStore}, "save stopped after 1 of 3 writes"},
		{domain.ErrInvalidInterval, "invalid interval"},
		{app.ErrTimerRunning, "timer already running"},
		{app.ErrTimerNotRunning, "timer not running"},
		{errors.New("boom"), "error: boom"},
	}
	for _, tc := range cases {
		if got := describeError(tc.err); !strings.Contains(got, tc.want) {
			t.Fatalf("describeError(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestHelpers(t *testing.T) {
	if got := clamp(5, 0, 2); got != 2 {
		t.Fatalf("clamp high = %d", got)
	}
	if got := clamp(1, 0, -1); got != 0 {
		t.Fatalf("clamp empty range = %d", got)
	}
	if got := wrapIndex(0, -1, 3); got != 2 {
		t.Fatalf("wrapIndex = %d", got)
	}
	if got := truncate("abcdef", 4); got != "abc…" {
		t.Fatalf("truncate = %q", got)
	}
	if got := fitLines("a\nb\nc", 2); got != "a\n…" {
		t.Fatalf("fitLines = %q", got)
	}
	if got := formatElapsed(time.Hour + 2*time.Minute + 3*time.Second); got != "1:02:03" {
		t.Fatalf("formatElapsed = %q", got)
	}
	name, tags := splitTaskInput("  Write  #a docs #b #")
	if name != "Write docs" || len(tags) != 2 || tags[0] != "a" || tags[1] != "b" {
		t.Fatalf("splitTaskInput = %q %v", name, tags)
	}
	if got := splitTagNames(" #a, ,b "); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("splitTagNames = %v", got)
	}
}

func loadReadyModel(t *testing.T, m Model) Model {
	t.Helper()
	return applyMsg(t, applyCmd(t, m, m.Init()), tea.WindowSizeMsg{Width: 120, Height: 40})
}

func applyMsg(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	updated, cmd := m.Update(msg)
	out, ok := updated.(Model)
	if !ok {
		t.Fatalf("expected Model, got %T", updated)
	}
	return applyCmd(t, out, cmd)
}

func applyCmd(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	out := m
	currentCmd := cmd
	for i := 0; i < 6 && currentCmd != nil; i++ {
		msg := currentCmd()
		updated, nextCmd := out.Update(msg)
		casted, ok := updated.(Model)
		if !ok {
			t.Fatalf("expected Model, got %T", updated)
		}
		out = casted
		currentCmd = nextCmd
	}
	return out
}

func keyRune(r rune) tea.KeyPressMsg {
	return tea.KeyPressMsg{Code: r, Text: string(r)}
}
