package common

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hylla/stamp/internal/app"
	"github.com/hylla/stamp/internal/domain"
	"github.com/hylla/stamp/internal/timeexpr"
)

// AppServiceAdapter maps app service operations to transport-facing contracts.
type AppServiceAdapter struct {
	service  *app.Service
	notifier ChangeNotifier
	location *time.Location
}

// AdapterOption configures an AppServiceAdapter.
type AdapterOption func(*AppServiceAdapter)

// WithNotifier publishes a Change after every successful write.
func WithNotifier(notifier ChangeNotifier) AdapterOption {
	return func(a *AppServiceAdapter) {
		a.notifier = notifier
	}
}

// WithLocation sets the zone used for time expressions without an explicit offset.
func WithLocation(loc *time.Location) AdapterOption {
	return func(a *AppServiceAdapter) {
		if loc != nil {
			a.location = loc
		}
	}
}

// NewAppServiceAdapter constructs a transport adapter over the app service.
func NewAppServiceAdapter(service *app.Service, opts ...AdapterOption) *AppServiceAdapter {
	a := &AppServiceAdapter{service: service, location: time.Local}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// ListTasks lists tasks and marks the ones with a running timer.
func (a *AppServiceAdapter) ListTasks(ctx context.Context, in ListTasksRequest) ([]Task, error) {
	if a == nil || a.service == nil {
		return nil, fmt.Errorf("app service adapter is not configured: %w", ErrStore)
	}
	tasks, err := a.service.ListTasks(ctx, app.ListTasksInput{Tags: tagIDs(in.Tags)})
	if err != nil {
		return nil, mapAppError("list tasks", err)
	}
	running, err := a.service.RunningTimers(ctx)
	if err != nil {
		return nil, mapAppError("list running timers", err)
	}
	out := make([]Task, 0, len(tasks))
	for _, task := range tasks {
		_, on := running[task.ID]
		out = append(out, taskFromDomain(task, on))
	}
	return out, nil
}

// GetTask returns one task.
func (a *AppServiceAdapter) GetTask(ctx context.Context, id int64) (Task, error) {
	if a == nil || a.service == nil {
		return Task{}, fmt.Errorf("app service adapter is not configured: %w", ErrStore)
	}
	task, err := a.service.GetTask(ctx, domain.TaskID(id))
	if err != nil {
		return Task{}, mapAppError("get task", err)
	}
	running, err := a.service.RunningTimers(ctx)
	if err != nil {
		return Task{}, mapAppError("list running timers", err)
	}
	_, on := running[task.ID]
	return taskFromDomain(task, on), nil
}

// CreateTask creates one task.
func (a *AppServiceAdapter) CreateTask(ctx context.Context, in CreateTaskRequest) (Task, error) {
	if a == nil || a.service == nil {
		return Task{}, fmt.Errorf("app service adapter is not configured: %w", ErrStore)
	}
	task, err := a.service.CreateTask(ctx, app.CreateTaskInput{Name: in.Name, Tags: tagIDs(in.Tags)})
	if err != nil {
		return Task{}, mapAppError("create task", err)
	}
	a.publish(Change{Kind: ChangeTaskCreated, TaskID: int64(task.ID)})
	return taskFromDomain(task, false), nil
}

// UpdateTask renames a task or replaces its tags.
func (a *AppServiceAdapter) UpdateTask(ctx context.Context, in UpdateTaskRequest) (Task, error) {
	if a == nil || a.service == nil {
		return Task{}, fmt.Errorf("app service adapter is not configured: %w", ErrStore)
	}
	update := app.UpdateTaskInput{ID: domain.TaskID(in.ID), Name: in.Name}
	if in.Tags != nil {
		tags := tagIDs(*in.Tags)
		update.Tags = &tags
	}
	task, err := a.service.UpdateTask(ctx, update)
	if err != nil {
		return Task{}, mapAppError("update task", err)
	}
	a.publish(Change{Kind: ChangeTaskUpdated, TaskID: int64(task.ID)})
	return taskFromDomain(task, false), nil
}

// DeleteTask removes a task and its events.
func (a *AppServiceAdapter) DeleteTask(ctx context.Context, id int64) error {
	if a == nil || a.service == nil {
		return fmt.Errorf("app service adapter is not configured: %w", ErrStore)
	}
	if err := a.service.DeleteTask(ctx, domain.TaskID(id)); err != nil {
		return mapAppError("delete task", err)
	}
	a.publish(Change{Kind: ChangeTaskDeleted, TaskID: id})
	return nil
}

// ListTags lists every tag.
func (a *AppServiceAdapter) ListTags(ctx context.Context) ([]Tag, error) {
	if a == nil || a.service == nil {
		return nil, fmt.Errorf("app service adapter is not configured: %w", ErrStore)
	}
	tags, err := a.service.ListTags(ctx)
	if err != nil {
		return nil, mapAppError("list tags", err)
	}
	out := make([]Tag, 0, len(tags))
	for _, tag := range tags {
		out = append(out, tagFromDomain(tag))
	}
	return out, nil
}

// GetTag returns one tag.
func (a *AppServiceAdapter) GetTag(ctx context.Context, id int64) (Tag, error) {
	if a == nil || a.service == nil {
		return Tag{}, fmt.Errorf("app service adapter is not configured: %w", ErrStore)
	}
	tag, err := a.service.GetTag(ctx, domain.TagID(id))
	if err != nil {
		return Tag{}, mapAppError("get tag", err)
	}
	return tagFromDomain(tag), nil
}

// CreateTag creates one tag.
func (a *AppServiceAdapter) CreateTag(ctx context.Context, name string) (Tag, error) {
	if a == nil || a.service == nil {
		return Tag{}, fmt.Errorf("app service adapter is not configured: %w", ErrStore)
	}
	tag, err := a.service.CreateTag(ctx, name)
	if err != nil {
		return Tag{}, mapAppError("create tag", err)
	}
	a.publish(Change{Kind: ChangeTagCreated, TagID: int64(tag.ID)})
	return tagFromDomain(tag), nil
}

// RenameTag renames one tag.
func (a *AppServiceAdapter) RenameTag(ctx context.Context, id int64, name string) (Tag, error) {
	if a == nil || a.service == nil {
		return Tag{}, fmt.Errorf("app service adapter is not configured: %w", ErrStore)
	}
	tag, err := a.service.RenameTag(ctx, domain.TagID(id), name)
	if err != nil {
		return Tag{}, mapAppError("rename tag", err)
	}
	a.publish(Change{Kind: ChangeTagUpdated, TagID: int64(tag.ID)})
	return tagFromDomain(tag), nil
}

// DeleteTag removes a tag and strips it from tasks.
func (a *AppServiceAdapter) DeleteTag(ctx context.Context, id int64) error {
	if a == nil || a.service == nil {
		return fmt.Errorf("app service adapter is not configured: %w", ErrStore)
	}
	if err := a.service.DeleteTag(ctx, domain.TagID(id)); err != nil {
		return mapAppError("delete tag", err)
	}
	a.publish(Change{Kind: ChangeTagDeleted, TagID: id})
	return nil
}

// ListEvents lists raw events ordered by timestamp then id.
func (a *AppServiceAdapter) ListEvents(ctx context.Context, in ListEventsRequest) ([]Event, error) {
	if a == nil || a.service == nil {
		return nil, fmt.Errorf("app service adapter is not configured: %w", ErrStore)
	}
	var filter app.EventFilter
	if in.TaskID != nil {
		task := domain.TaskID(*in.TaskID)
		filter.TaskID = &task
	}
	base := a.base()
	if strings.TrimSpace(in.From) != "" {
		from, err := timeexpr.Parse(in.From, base, timeexpr.BoundStart)
		if err != nil {
			return nil, invalidRequest("from", err)
		}
		filter.From = &from
	}
	if strings.TrimSpace(in.To) != "" {
		to, err := timeexpr.Parse(in.To, base, timeexpr.BoundEnd)
		if err != nil {
			return nil, invalidRequest("to", err)
		}
		filter.To = &to
	}
	events, err := a.service.ListEvents(ctx, filter)
	if err != nil {
		return nil, mapAppError("list events", err)
	}
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		out = append(out, eventFromDomain(ev))
	}
	return out, nil
}

// CreateEvent appends one event.
func (a *AppServiceAdapter) CreateEvent(ctx context.Context, in CreateEventRequest) (Event, error) {
	if a == nil || a.service == nil {
		return Event{}, fmt.Errorf("app service adapter is not configured: %w", ErrStore)
	}
	ts, typ, err := a.parseEvent(in.Timestamp, in.Type)
	if err != nil {
		return Event{}, err
	}
	ev, err := a.service.CreateEvent(ctx, app.CreateEventInput{Task: domain.TaskID(in.Task), Timestamp: ts, Type: typ})
	if err != nil {
		return Event{}, mapAppError("create event", err)
	}
	a.publish(Change{Kind: ChangeEventCreated, TaskID: int64(ev.Task), EventID: int64(ev.ID)})
	return eventFromDomain(ev), nil
}

// UpdateEvent rewrites one event.
func (a *AppServiceAdapter) UpdateEvent(ctx context.Context, in UpdateEventRequest) (Event, error) {
	if a == nil || a.service == nil {
		return Event{}, fmt.Errorf("app service adapter is not configured: %w", ErrStore)
	}
	ts, typ, err := a.parseEvent(in.Timestamp, in.Type)
	if err != nil {
		return Event{}, err
	}
	ev, err := a.service.UpdateEvent(ctx, app.UpdateEventInput{ID: domain.EventID(in.ID), Timestamp: ts, Type: typ})
	if err != nil {
		return Event{}, mapAppError("update event", err)
	}
	a.publish(Change{Kind: ChangeEventUpdated, TaskID: int64(ev.Task), EventID: int64(ev.ID)})
	return eventFromDomain(ev), nil
}

// DeleteEvent removes one event.
func (a *AppServiceAdapter) DeleteEvent(ctx context.Context, id int64) error {
	if a == nil || a.service == nil {
		return fmt.Errorf("app service adapter is not configured: %w", ErrStore)
	}
	if err := a.service.DeleteEvent(ctx, domain.EventID(id)); err != nil {
		return mapAppError("delete event", err)
	}
	a.publish(Change{Kind: ChangeEventDeleted, EventID: id})
	return nil
}

// StartTimer starts a task's timer at the current time.
func (a *AppServiceAdapter) StartTimer(ctx context.Context, task int64) (Event, error) {
	if a == nil || a.service == nil {
		return Event{}, fmt.Errorf("app service adapter is not configured: %w", ErrStore)
	}
	ev, err := a.service.StartTimer(ctx, domain.TaskID(task))
	if err != nil {
		return Event{}, mapAppError("start timer", err)
	}
	a.publish(Change{Kind: ChangeTimerStarted, TaskID: task, EventID: int64(ev.ID)})
	return eventFromDomain(ev), nil
}

// StopTimer stops a task's running timer.
func (a *AppServiceAdapter) StopTimer(ctx context.Context, task int64) (Event, error) {
	if a == nil || a.service == nil {
		return Event{}, fmt.Errorf("app service adapter is not configured: %w", ErrStore)
	}
	ev, err := a.service.StopTimer(ctx, domain.TaskID(task))
	if err != nil {
		return Event{}, mapAppError("stop timer", err)
	}
	a.publish(Change{Kind: ChangeTimerStopped, TaskID: task, EventID: int64(ev.ID)})
	return eventFromDomain(ev), nil
}

// ListIntervals rebuilds a task's intervals over a window.
func (a *AppServiceAdapter) ListIntervals(ctx context.Context, in ListIntervalsRequest) ([]Interval, error) {
	if a == nil || a.service == nil {
		return nil, fmt.Errorf("app service adapter is not configured: %w", ErrStore)
	}
	window, err := a.window(in.From, in.To)
	if err != nil {
		return nil, err
	}
	intervals, err := a.service.ListIntervals(ctx, domain.TaskID(in.TaskID), window)
	if err != nil {
		return nil, mapAppError("list intervals", err)
	}
	return a.intervalsFromDomain(intervals), nil
}

// SaveIntervals applies interval edits and returns the rebuilt window.
func (a *AppServiceAdapter) SaveIntervals(ctx context.Context, in SaveIntervalsRequest) (SaveIntervalsResult, error) {
	if a == nil || a.service == nil {
		return SaveIntervalsResult{}, fmt.Errorf("app service adapter is not configured: %w", ErrStore)
	}
	window, err := a.window(in.From, in.To)
	if err != nil {
		return SaveIntervalsResult{}, err
	}
	edits := make([]app.IntervalEdit, 0, len(in.Edits))
	for _, edit := range in.Edits {
		edits = append(edits, intervalEditToDomain(edit))
	}
	task := domain.TaskID(in.TaskID)
	result, err := a.service.SaveIntervals(ctx, task, edits)
	if err != nil {
		var partial *app.PartialWriteError
		if errors.As(err, &partial) && partial.Applied > 0 {
			a.publish(Change{Kind: ChangeIntervalsSaved, TaskID: in.TaskID})
		}
		return SaveIntervalsResult{}, mapAppError("save intervals", err)
	}
	if len(result.Writes) > 0 {
		a.publish(Change{Kind: ChangeIntervalsSaved, TaskID: in.TaskID})
	}
	intervals, err := a.service.ListIntervals(ctx, task, window)
	if err != nil {
		return SaveIntervalsResult{}, mapAppError("list intervals", err)
	}
	out := SaveIntervalsResult{
		Writes:    len(result.Writes),
		Created:   make([]int64, 0, len(result.Created)),
		Intervals: a.intervalsFromDomain(intervals),
	}
	for _, id := range result.Created {
		out.Created = append(out.Created, int64(id))
	}
	return out, nil
}

// Summary aggregates per-task and per-tag totals.
func (a *AppServiceAdapter) Summary(ctx context.Context, in SummaryRequest) (Summary, error) {
	if a == nil || a.service == nil {
		return Summary{}, fmt.Errorf("app service adapter is not configured: %w", ErrStore)
	}
	window, err := a.window(in.From, in.To)
	if err != nil {
		return Summary{}, err
	}
	policy := a.service.Config().SummaryPolicy
	if in.IncludeOngoing != nil {
		policy.IncludeOngoing = *in.IncludeOngoing
	}
	summary, err := a.service.SummaryWithPolicy(ctx, window, policy)
	if err != nil {
		return Summary{}, mapAppError("summary", err)
	}
	out := Summary{
		WindowStart:    summary.Window.Start,
		WindowEnd:      summary.Window.End,
		IncludeOngoing: policy.IncludeOngoing,
		Tasks:          make([]Total, 0, len(summary.Tasks)),
		Tags:           make([]Total, 0, len(summary.Tags)),
	}
	for _, row := range summary.Tasks {
		out.Tasks = append(out.Tasks, Total{ID: int64(row.TaskID), Name: row.Name, Hours: row.Hours(), Formatted: row.Formatted()})
	}
	for _, row := range summary.Tags {
		out.Tags = append(out.Tags, Total{ID: int64(row.TagID), Name: row.Name, Hours: row.Hours(), Formatted: row.Formatted()})
	}
	return out, nil
}

// base returns the reference instant for time expressions.
func (a *AppServiceAdapter) base() time.Time {
	return a.service.Now().In(a.location)
}

// window resolves optional bounds against the configured default window.
func (a *AppServiceAdapter) window(from, to string) (domain.Window, error) {
	window, err := timeexpr.Window(from, to, a.base(), a.service.DefaultWindow())
	if err != nil {
		return domain.Window{}, invalidRequest("window", err)
	}
	return window, nil
}

// parseEvent resolves an event's timestamp expression and type.
func (a *AppServiceAdapter) parseEvent(rawTS, rawType string) (time.Time, domain.EventType, error) {
	ts, err := timeexpr.Parse(rawTS, a.base(), timeexpr.BoundStart)
	if err != nil {
		return time.Time{}, 0, invalidRequest("timestamp", err)
	}
	typ, err := domain.ParseEventType(rawType)
	if err != nil {
		return time.Time{}, 0, invalidRequest("type", err)
	}
	return ts.UTC(), typ, nil
}

// publish forwards one change to the configured notifier.
func (a *AppServiceAdapter) publish(change Change) {
	if a.notifier == nil {
		return
	}
	if change.At.IsZero() {
		change.At = a.service.Now()
	}
	a.notifier.Publish(change)
}

func (a *AppServiceAdapter) intervalsFromDomain(in []domain.ActivityInterval) []Interval {
	now := a.service.Now()
	out := make([]Interval, 0, len(in))
	for _, iv := range in {
		out = append(out, Interval{
			Start:        iv.Start,
			Stop:         iv.Stop,
			StartEventID: int64(iv.StartEventID),
			StopEventID:  int64(iv.StopEventID),
			Open:         iv.Open(),
			IsNew:        iv.IsNew,
			IsModified:   iv.IsModified,
			HasOverlap:   iv.HasOverlap,
			Duration:     domain.FormatHours(iv.Duration(now).Hours()),
		})
	}
	return out
}

func intervalEditToDomain(in IntervalEdit) app.IntervalEdit {
	iv := domain.ActivityInterval{
		Start:        in.Start.UTC(),
		StartEventID: domain.EventID(in.StartEventID),
		StopEventID:  domain.EventID(in.StopEventID),
		IsNew:        in.IsNew,
		IsModified:   in.IsModified,
	}
	if in.Stop != nil {
		stop := in.Stop.UTC()
		iv.Stop = &stop
	}
	return app.IntervalEdit{Interval: iv, Deleted: in.Deleted}
}

func taskFromDomain(task domain.Task, running bool) Task {
	tags := make([]int64, 0, len(task.Tags))
	for _, id := range task.Tags {
		tags = append(tags, int64(id))
	}
	return Task{
		ID:        int64(task.ID),
		Name:      task.Name,
		Tags:      tags,
		Running:   running,
		CreatedAt: task.CreatedAt,
		UpdatedAt: task.UpdatedAt,
	}
}

func tagFromDomain(tag domain.Tag) Tag {
	return Tag{ID: int64(tag.ID), Name: tag.Name}
}

func eventFromDomain(ev domain.TimestampEvent) Event {
	return Event{
		ID:        int64(ev.ID),
		Task:      int64(ev.Task),
		Timestamp: ev.Timestamp,
		Type:      ev.Type.String(),
		TypeCode:  int(ev.Type),
	}
}

func tagIDs(in []int64) []domain.TagID {
	out := make([]domain.TagID, 0, len(in))
	for _, id := range in {
		out = append(out, domain.TagID(id))
	}
	return out
}

// invalidRequest wraps a parse failure as ErrInvalidRequest.
func invalidRequest(field string, err error) error {
	return fmt.Errorf("%s: %w", field, errors.Join(ErrInvalidRequest, err))
}

// mapAppError maps app/domain errors into transport-facing error categories.
func mapAppError(operation string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrInvalidInterval),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrStore),
		errors.Is(err, ErrPartialWrite):
		return fmt.Errorf("%s: %w", operation, err)
	}

	var partial *app.PartialWriteError
	switch {
	case errors.As(err, &partial):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrPartialWrite, err))
	case errors.Is(err, app.ErrNotFound):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrNotFound, err))
	case errors.Is(err, app.ErrConflict),
		errors.Is(err, app.ErrTimerRunning),
		errors.Is(err, app.ErrTimerNotRunning):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrConflict, err))
	case errors.Is(err, domain.ErrInvalidInterval):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrInvalidInterval, err))
	case errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidName),
		errors.Is(err, domain.ErrInvalidType),
		errors.Is(err, domain.ErrInvalidTime),
		errors.Is(err, domain.ErrInvalidWindow):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrInvalidRequest, err))
	case errors.Is(err, app.ErrStore):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrStore, err))
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}

var _ Service = (*AppServiceAdapter)(nil)
