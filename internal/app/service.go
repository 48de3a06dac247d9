package app

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hylla/stamp/internal/domain"
)

// WindowEnd selects where the default summary window stops.
type WindowEnd string

// WindowEndOfDay and related constants define package defaults.
const (
	WindowEndOfDay WindowEnd = "end_of_day"
	WindowEndNow   WindowEnd = "now"

	DefaultLookback = 7 * 24 * time.Hour
)

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	SummaryPolicy   domain.SummaryPolicy
	DefaultLookback time.Duration
	WindowEnd       WindowEnd
}

// Clock returns the current time.
type Clock func() time.Time

// Service coordinates the event log, the catalogs, and the interval engine.
type Service struct {
	repo  Repository
	clock Clock
	locks taskLocks

	mu  sync.RWMutex
	cfg ServiceConfig
}

// NewService constructs a new value for this package.
func NewService(repo Repository, clock Clock, cfg ServiceConfig) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		repo:  repo,
		clock: clock,
		cfg:   normalizeServiceConfig(cfg),
	}
}

func normalizeServiceConfig(cfg ServiceConfig) ServiceConfig {
	if cfg.DefaultLookback <= 0 {
		cfg.DefaultLookback = DefaultLookback
	}
	if cfg.WindowEnd != WindowEndNow {
		cfg.WindowEnd = WindowEndOfDay
	}
	return cfg
}

// Configure swaps the summary settings at runtime.
func (s *Service) Configure(cfg ServiceConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = normalizeServiceConfig(cfg)
}

// Config returns the active summary settings.
func (s *Service) Config() ServiceConfig {
	return s.config()
}

func (s *Service) config() ServiceConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Now returns the service clock reading in UTC.
func (s *Service) Now() time.Time {
	return s.clock().UTC()
}

// DefaultWindow returns the configured summary window relative to the clock.
func (s *Service) DefaultWindow() domain.Window {
	cfg := s.config()
	now := s.clock()
	end := now
	if cfg.WindowEnd == WindowEndOfDay {
		y, m, d := now.Date()
		end = time.Date(y, m, d+1, 0, 0, 0, 0, now.Location()).Add(-time.Nanosecond)
	}
	return domain.Window{Start: end.Add(-cfg.DefaultLookback).UTC(), End: end.UTC()}
}

// ListTasksInput holds input values for list tasks operations.
type ListTasksInput struct {
	Tags []domain.TagID
}

// ListTasks lists tasks carrying every requested tag, ordered by id.
func (s *Service) ListTasks(ctx context.Context, in ListTasksInput) ([]domain.Task, error) {
	tasks, err := s.repo.ListTasks(ctx)
	if err != nil {
		return nil, storeErr("list tasks", err)
	}
	filter := domain.NewTagSet(in.Tags...)
	out := make([]domain.Task, 0, len(tasks))
	for _, task := range tasks {
		if task.HasAllTags(filter) {
			out = append(out, task)
		}
	}
	slices.SortFunc(out, func(a, b domain.Task) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// GetTask returns one task.
func (s *Service) GetTask(ctx context.Context, id domain.TaskID) (domain.Task, error) {
	task, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, storeErr("get task", err)
	}
	return task, nil
}

// CreateTaskInput holds input values for create task operations.
type CreateTaskInput struct {
	Name string
	Tags []domain.TagID
}

// CreateTask creates task.
func (s *Service) CreateTask(ctx context.Context, in CreateTaskInput) (domain.Task, error) {
	task, err := domain.NewTask(domain.TaskInput{Name: in.Name, Tags: in.Tags}, s.clock())
	if err != nil {
		return domain.Task{}, err
	}
	if err := s.ensureTags(ctx, task.Tags); err != nil {
		return domain.Task{}, err
	}
	id, err := s.repo.CreateTask(ctx, task)
	if err != nil {
		return domain.Task{}, storeErr("create task", err)
	}
	task.ID = id
	return task, nil
}

// UpdateTaskInput holds input values for update task operations. Nil fields are left alone.
type UpdateTaskInput struct {
	ID   domain.TaskID
	Name *string
	Tags *[]domain.TagID
}

// UpdateTask renames a task and/or replaces its tag set.
func (s *Service) UpdateTask(ctx context.Context, in UpdateTaskInput) (domain.Task, error) {
	task, err := s.GetTask(ctx, in.ID)
	if err != nil {
		return domain.Task{}, err
	}
	now := s.clock()
	if in.Name != nil {
		if err := task.Rename(*in.Name, now); err != nil {
			return domain.Task{}, err
		}
	}
	if in.Tags != nil {
		if err := task.SetTags(*in.Tags, now); err != nil {
			return domain.Task{}, err
		}
		if err := s.ensureTags(ctx, task.Tags); err != nil {
			return domain.Task{}, err
		}
	}
	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return domain.Task{}, storeErr("update task", err)
	}
	return task, nil
}

// DeleteTask removes a task together with its events.
func (s *Service) DeleteTask(ctx context.Context, id domain.TaskID) error {
	unlock := s.locks.lock(id)
	defer unlock()
	return storeErr("delete task", s.repo.DeleteTask(ctx, id))
}

// ensureTags rejects tag ids that are not in the catalog.
func (s *Service) ensureTags(ctx context.Context, tags domain.TagSet) error {
	if len(tags) == 0 {
		return nil
	}
	known, err := s.repo.ListTags(ctx)
	if err != nil {
		return storeErr("list tags", err)
	}
	ids := make(map[domain.TagID]struct{}, len(known))
	for _, tag := range known {
		ids[tag.ID] = struct{}{}
	}
	for _, id := range tags {
		if _, ok := ids[id]; !ok {
			return fmt.Errorf("tag %d: %w", id, ErrNotFound)
		}
	}
	return nil
}

// ListTags lists tags ordered by id.
func (s *Service) ListTags(ctx context.Context) ([]domain.Tag, error) {
	tags, err := s.repo.ListTags(ctx)
	if err != nil {
		return nil, storeErr("list tags", err)
	}
	slices.SortFunc(tags, func(a, b domain.Tag) int { return cmp.Compare(a.ID, b.ID) })
	return tags, nil
}

// GetTag returns one tag.
func (s *Service) GetTag(ctx context.Context, id domain.TagID) (domain.Tag, error) {
	tag, err := s.repo.GetTag(ctx, id)
	if err != nil {
		return domain.Tag{}, storeErr("get tag", err)
	}
	return tag, nil
}

// CreateTag creates tag.
func (s *Service) CreateTag(ctx context.Context, name string) (domain.Tag, error) {
	tag, err := domain.NewTag(name)
	if err != nil {
		return domain.Tag{}, err
	}
	id, err := s.repo.CreateTag(ctx, tag)
	if err != nil {
		return domain.Tag{}, storeErr("create tag", err)
	}
	tag.ID = id
	return tag, nil
}

// RenameTag renames tag.
func (s *Service) RenameTag(ctx context.Context, id domain.TagID, name string) (domain.Tag, error) {
	tag, err := s.GetTag(ctx, id)
	if err != nil {
		return domain.Tag{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Tag{}, domain.ErrInvalidName
	}
	tag.Name = name
	if err := s.repo.UpdateTag(ctx, tag); err != nil {
		return domain.Tag{}, storeErr("update tag", err)
	}
	return tag, nil
}

// DeleteTag removes a tag and strips it from every task.
func (s *Service) DeleteTag(ctx context.Context, id domain.TagID) error {
	return storeErr("delete tag", s.repo.DeleteTag(ctx, id))
}

// ListEvents lists raw events in (timestamp, id) order.
func (s *Service) ListEvents(ctx context.Context, filter EventFilter) ([]domain.TimestampEvent, error) {
	events, err := s.repo.ListEvents(ctx, filter)
	if err != nil {
		return nil, storeErr("list events", err)
	}
	return domain.SortEvents(events), nil
}

// CreateEventInput holds input values for create event operations.
type CreateEventInput struct {
	Task      domain.TaskID
	Timestamp time.Time
	Type      domain.EventType
}

// CreateEvent appends one event to a task's log.
func (s *Service) CreateEvent(ctx context.Context, in CreateEventInput) (domain.TimestampEvent, error) {
	if err := domain.ValidateEvent(in.Task, in.Timestamp, in.Type); err != nil {
		return domain.TimestampEvent{}, err
	}
	unlock := s.locks.lock(in.Task)
	defer unlock()
	if _, err := s.GetTask(ctx, in.Task); err != nil {
		return domain.TimestampEvent{}, err
	}
	return s.createEvent(ctx, in.Task, in.Timestamp, in.Type)
}

func (s *Service) createEvent(ctx context.Context, task domain.TaskID, ts time.Time, typ domain.EventType) (domain.TimestampEvent, error) {
	ev := domain.TimestampEvent{Task: task, Timestamp: ts.UTC(), Type: typ}
	id, err := s.repo.CreateEvent(ctx, ev)
	if err != nil {
		return domain.TimestampEvent{}, storeErr("create event", err)
	}
	ev.ID = id
	return ev, nil
}

// UpdateEventInput holds input values for update event operations.
type UpdateEventInput struct {
	ID        domain.EventID
	Timestamp time.Time
	Type      domain.EventType
}

// UpdateEvent rewrites an event's timestamp and type.
func (s *Service) UpdateEvent(ctx context.Context, in UpdateEventInput) (domain.TimestampEvent, error) {
	existing, err := s.repo.GetEvent(ctx, in.ID)
	if err != nil {
		return domain.TimestampEvent{}, storeErr("get event", err)
	}
	if err := domain.ValidateEvent(existing.Task, in.Timestamp, in.Type); err != nil {
		return domain.TimestampEvent{}, err
	}
	unlock := s.locks.lock(existing.Task)
	defer unlock()
	if err := s.repo.UpdateEvent(ctx, in.ID, in.Timestamp.UTC(), in.Type); err != nil {
		return domain.TimestampEvent{}, storeErr("update event", err)
	}
	existing.Timestamp = in.Timestamp.UTC()
	existing.Type = in.Type
	return existing, nil
}

// DeleteEvent deletes one event under its task's lock.
func (s *Service) DeleteEvent(ctx context.Context, id domain.EventID) error {
	existing, err := s.repo.GetEvent(ctx, id)
	if err != nil {
		return storeErr("get event", err)
	}
	unlock := s.locks.lock(existing.Task)
	defer unlock()
	return storeErr("delete event", s.repo.DeleteEvent(ctx, id))
}

// taskLocks serialises writes per task inside one process.
type taskLocks struct {
	mu    sync.Mutex
	locks map[domain.TaskID]*sync.Mutex
}

func (l *taskLocks) lock(id domain.TaskID) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = map[domain.TaskID]*sync.Mutex{}
	}
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}
