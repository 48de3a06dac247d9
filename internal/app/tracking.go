package app

import (
	"context"
	"time"

	"github.com/hylla/stamp/internal/domain"
)

// ListIntervals rebuilds a task's intervals inside window and marks overlaps.
func (s *Service) ListIntervals(ctx context.Context, task domain.TaskID, window domain.Window) ([]domain.ActivityInterval, error) {
	if _, err := s.GetTask(ctx, task); err != nil {
		return nil, err
	}
	events, err := s.repo.ListEvents(ctx, EventFilter{TaskID: &task, From: &window.Start, To: &window.End})
	if err != nil {
		return nil, storeErr("list events", err)
	}
	now := s.clock().UTC()
	return domain.DetectOverlaps(domain.Reconstruct(events, task, window, now), now), nil
}

// Summary totals time per task and per tag inside window.
func (s *Service) Summary(ctx context.Context, window domain.Window) (domain.Summary, error) {
	return s.SummaryWithPolicy(ctx, window, s.config().SummaryPolicy)
}

// SummaryWithPolicy is Summary with an explicit ongoing-time policy.
func (s *Service) SummaryWithPolicy(ctx context.Context, window domain.Window, policy domain.SummaryPolicy) (domain.Summary, error) {
	events, err := s.repo.ListEvents(ctx, EventFilter{From: &window.Start, To: &window.End})
	if err != nil {
		return domain.Summary{}, storeErr("list events", err)
	}
	tasks, err := s.repo.ListTasks(ctx)
	if err != nil {
		return domain.Summary{}, storeErr("list tasks", err)
	}
	tags, err := s.repo.ListTags(ctx)
	if err != nil {
		return domain.Summary{}, storeErr("list tags", err)
	}
	return domain.Aggregate(events, tasks, tags, window, s.clock().UTC(), policy), nil
}

// StartTimer records a start event at the current time.
func (s *Service) StartTimer(ctx context.Context, task domain.TaskID) (domain.TimestampEvent, error) {
	return s.toggleTimer(ctx, task, domain.EventStart)
}

// StopTimer records a stop event at the current time.
func (s *Service) StopTimer(ctx context.Context, task domain.TaskID) (domain.TimestampEvent, error) {
	return s.toggleTimer(ctx, task, domain.EventStop)
}

func (s *Service) toggleTimer(ctx context.Context, task domain.TaskID, typ domain.EventType) (domain.TimestampEvent, error) {
	unlock := s.locks.lock(task)
	defer unlock()

	if _, err := s.GetTask(ctx, task); err != nil {
		return domain.TimestampEvent{}, err
	}
	events, err := s.repo.ListEvents(ctx, EventFilter{TaskID: &task})
	if err != nil {
		return domain.TimestampEvent{}, storeErr("list events", err)
	}
	latest, found := domain.LatestEvent(events, task)
	running := found && latest.Type == domain.EventStart
	switch {
	case typ == domain.EventStart && running:
		return domain.TimestampEvent{}, ErrTimerRunning
	case typ == domain.EventStop && !running:
		return domain.TimestampEvent{}, ErrTimerNotRunning
	}
	return s.createEvent(ctx, task, s.clock(), typ)
}

// RunningTimers maps each task whose latest event is a start to that start time.
func (s *Service) RunningTimers(ctx context.Context) (map[domain.TaskID]time.Time, error) {
	events, err := s.repo.ListEvents(ctx, EventFilter{})
	if err != nil {
		return nil, storeErr("list events", err)
	}
	latest := map[domain.TaskID]domain.TimestampEvent{}
	for _, ev := range domain.SortEvents(events) {
		latest[ev.Task] = ev
	}
	out := map[domain.TaskID]time.Time{}
	for task, ev := range latest {
		if ev.Type == domain.EventStart {
			out[task] = ev.Timestamp
		}
	}
	return out, nil
}
