package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hylla/stamp/internal/app"
	"github.com/hylla/stamp/internal/domain"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "stamp.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	return repo
}

func TestRepository_CatalogLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)

	workID, err := repo.CreateTag(ctx, domain.Tag{Name: "work"})
	if err != nil {
		t.Fatalf("CreateTag() error = %v", err)
	}
	homeID, err := repo.CreateTag(ctx, domain.Tag{Name: "home"})
	if err != nil {
		t.Fatalf("CreateTag() error = %v", err)
	}
	if _, err := repo.CreateTag(ctx, domain.Tag{Name: "work"}); !errors.Is(err, app.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate tag, got %v", err)
	}

	task, err := domain.NewTask(domain.TaskInput{Name: "report", Tags: []domain.TagID{homeID, workID}}, now)
	if err != nil {
		t.Fatalf("NewTask() error = %v", err)
	}
	taskID, err := repo.CreateTask(ctx, task)
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	loaded, err := repo.GetTask(ctx, taskID)
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if loaded.Name != "report" || !loaded.Tags.ContainsAll(domain.NewTagSet(workID, homeID)) {
		t.Fatalf("unexpected task %#v", loaded)
	}
	if !loaded.CreatedAt.Equal(now) {
		t.Fatalf("unexpected created_at %v", loaded.CreatedAt)
	}

	loaded.Name = "quarterly report"
	if err := repo.UpdateTask(ctx, loaded); err != nil {
		t.Fatalf("UpdateTask() error = %v", err)
	}
	if err := repo.UpdateTag(ctx, domain.Tag{ID: homeID, Name: "personal"}); err != nil {
		t.Fatalf("UpdateTag() error = %v", err)
	}

	if err := repo.DeleteTag(ctx, workID); err != nil {
		t.Fatalf("DeleteTag() error = %v", err)
	}
	loaded, err = repo.GetTask(ctx, taskID)
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if loaded.Tags.Contains(workID) || !loaded.Tags.Contains(homeID) || loaded.Name != "quarterly report" {
		t.Fatalf("unexpected task after tag delete %#v", loaded)
	}
	tags, err := repo.ListTags(ctx)
	if err != nil {
		t.Fatalf("ListTags() error = %v", err)
	}
	if len(tags) != 1 || tags[0].Name != "personal" {
		t.Fatalf("unexpected tags %#v", tags)
	}
	if err := repo.DeleteTag(ctx, workID); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRepository_EventLog(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)

	taskID, err := repo.CreateTask(ctx, domain.Task{Name: "a", CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	otherID, err := repo.CreateTask(ctx, domain.Task{Name: "b", CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	inputs := []domain.TimestampEvent{
		{Task: taskID, Timestamp: base.Add(90 * time.Minute), Type: domain.EventStop},
		{Task: taskID, Timestamp: base, Type: domain.EventStart},
		{Task: otherID, Timestamp: base.Add(time.Hour), Type: domain.EventStart},
		{Task: taskID, Timestamp: base.Add(500 * time.Millisecond), Type: domain.EventStop},
	}
	var ids []domain.EventID
	for _, in := range inputs {
		id, err := repo.CreateEvent(ctx, in)
		if err != nil {
			t.Fatalf("CreateEvent() error = %v", err)
		}
		ids = append(ids, id)
	}
	if ids[0] >= ids[1] || ids[1] >= ids[2] {
		t.Fatalf("expected increasing ids, got %v", ids)
	}

	events, err := repo.ListEvents(ctx, app.EventFilter{TaskID: &taskID})
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %#v", events)
	}
	if !events[0].Timestamp.Equal(base) || !events[1].Timestamp.Equal(base.Add(500*time.Millisecond)) || events[2].Type != domain.EventStop {
		t.Fatalf("expected timestamp ordering including sub-second values, got %#v", events)
	}

	from := base.Add(time.Second)
	to := base.Add(time.Hour)
	windowed, err := repo.ListEvents(ctx, app.EventFilter{From: &from, To: &to})
	if err != nil {
		t.Fatalf("ListEvents(window) error = %v", err)
	}
	if len(windowed) != 1 || windowed[0].Task != otherID {
		t.Fatalf("expected only the inclusive upper-bound event, got %#v", windowed)
	}

	if err := repo.UpdateEvent(ctx, ids[0], base.Add(2*time.Hour), domain.EventStop); err != nil {
		t.Fatalf("UpdateEvent() error = %v", err)
	}
	got, err := repo.GetEvent(ctx, ids[0])
	if err != nil {
		t.Fatalf("GetEvent() error = %v", err)
	}
	if !got.Timestamp.Equal(base.Add(2 * time.Hour)) {
		t.Fatalf("unexpected updated event %#v", got)
	}
	if err := repo.UpdateEvent(ctx, 9999, base, domain.EventStart); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.DeleteEvent(ctx, ids[3]); err != nil {
		t.Fatalf("DeleteEvent() error = %v", err)
	}
	if _, err := repo.GetEvent(ctx, ids[3]); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.CreateEvent(ctx, domain.TimestampEvent{Task: 9999, Timestamp: base, Type: domain.EventStart}); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown task, got %v", err)
	}

	if err := repo.DeleteTask(ctx, taskID); err != nil {
		t.Fatalf("DeleteTask() error = %v", err)
	}
	remaining, err := repo.ListEvents(ctx, app.EventFilter{})
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(remaining) != 1 || remaining[0].Task != otherID {
		t.Fatalf("expected task events removed with the task, got %#v", remaining)
	}
}

func TestRepository_ExplicitIDsAndInMemory(t *testing.T) {
	ctx := context.Background()
	repo, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)

	id, err := repo.CreateTask(ctx, domain.Task{ID: 42, Name: "imported", CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if id != 42 {
		t.Fatalf("expected explicit id 42, got %d", id)
	}
	if _, err := repo.CreateTask(ctx, domain.Task{ID: 42, Name: "dup", CreatedAt: now, UpdatedAt: now}); !errors.Is(err, app.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	next, err := repo.CreateTask(ctx, domain.Task{Name: "next", CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if next <= 42 {
		t.Fatalf("expected autoincrement past explicit id, got %d", next)
	}
	evID, err := repo.CreateEvent(ctx, domain.TimestampEvent{ID: 7, Task: id, Timestamp: now, Type: domain.EventStart})
	if err != nil {
		t.Fatalf("CreateEvent() error = %v", err)
	}
	if evID != 7 {
		t.Fatalf("expected explicit event id 7, got %d", evID)
	}
}

func TestRepository_ServiceIntegration(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	svc := app.NewService(repo, func() time.Time { return now }, app.ServiceConfig{})

	task, err := svc.CreateTask(ctx, app.CreateTaskInput{Name: "T"})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	stop := time.Date(2024, 1, 1, 11, 30, 0, 0, time.UTC)
	if _, err := svc.SaveIntervals(ctx, task.ID, []app.IntervalEdit{
		{Interval: domain.ActivityInterval{Start: start, Stop: &stop, IsNew: true}},
	}); err != nil {
		t.Fatalf("SaveIntervals() error = %v", err)
	}

	window := domain.Window{Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC)}
	intervals, err := svc.ListIntervals(ctx, task.ID, window)
	if err != nil {
		t.Fatalf("ListIntervals() error = %v", err)
	}
	if len(intervals) != 1 || !intervals[0].Start.Equal(start) || !intervals[0].Stop.Equal(stop) {
		t.Fatalf("unexpected intervals %#v", intervals)
	}
	summary, err := svc.Summary(ctx, window)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if len(summary.Tasks) != 1 || summary.Tasks[0].Formatted() != "1h 30m" {
		t.Fatalf("unexpected summary %#v", summary)
	}
}
