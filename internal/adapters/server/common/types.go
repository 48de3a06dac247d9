// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidRequest and related errors are the transport-visible failure classes.
var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrInvalidInterval = errors.New("invalid interval")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrStore           = errors.New("store error")
	ErrPartialWrite    = errors.New("partial write")
)

// Task is the transport shape of a task.
type Task struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Tags      []int64   `json:"tags"`
	Running   bool      `json:"running"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tag is the transport shape of a tag.
type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Event is the transport shape of a timestamp event. TypeCode keeps the stored 0/1 form.
type Event struct {
	ID        int64     `json:"id"`
	Task      int64     `json:"task"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	TypeCode  int       `json:"type_code"`
}

// Interval is the transport shape of a reconstructed interval. Zero event ids are omitted.
type Interval struct {
	Start        time.Time  `json:"start"`
	Stop         *time.Time `json:"stop,omitempty"`
	StartEventID int64      `json:"start_event_id,omitempty"`
	StopEventID  int64      `json:"stop_event_id,omitempty"`
	Open         bool       `json:"open"`
	IsNew        bool       `json:"is_new,omitempty"`
	IsModified   bool       `json:"is_modified,omitempty"`
	HasOverlap   bool       `json:"has_overlap"`
	Duration     string     `json:"duration"`
}

// IntervalEdit is one requested change to a task's intervals.
type IntervalEdit struct {
	Start        time.Time  `json:"start"`
	Stop         *time.Time `json:"stop,omitempty"`
	StartEventID int64      `json:"start_event_id,omitempty"`
	StopEventID  int64      `json:"stop_event_id,omitempty"`
	IsNew        bool       `json:"is_new,omitempty"`
	IsModified   bool       `json:"is_modified,omitempty"`
	Deleted      bool       `json:"deleted,omitempty"`
}

// Total is one row of a summary.
type Total struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Hours     float64 `json:"hours"`
	Formatted string  `json:"formatted"`
}

// Summary is the transport shape of per-task and per-tag totals.
type Summary struct {
	WindowStart    time.Time `json:"window_start"`
	WindowEnd      time.Time `json:"window_end"`
	IncludeOngoing bool      `json:"include_ongoing"`
	Tasks          []Total   `json:"tasks"`
	Tags           []Total   `json:"tags"`
}

// ListTasksRequest filters tasks to those carrying every listed tag.
type ListTasksRequest struct {
	Tags []int64
}

// CreateTaskRequest creates one task.
type CreateTaskRequest struct {
	Name string
	Tags []int64
}

// UpdateTaskRequest changes the fields that are non-nil.
type UpdateTaskRequest struct {
	ID   int64
	Name *string
	Tags *[]int64
}

// ListEventsRequest filters the raw event log. From and To accept any time expression.
type ListEventsRequest struct {
	TaskID *int64
	From   string
	To     string
}

// CreateEventRequest appends one event. Type is start, stop, 0, or 1.
type CreateEventRequest struct {
	Task      int64
	Timestamp string
	Type      string
}

// UpdateEventRequest rewrites one event.
type UpdateEventRequest struct {
	ID        int64
	Timestamp string
	Type      string
}

// ListIntervalsRequest reads a task's intervals. Empty bounds use the default window.
type ListIntervalsRequest struct {
	TaskID int64
	From   string
	To     string
}

// SaveIntervalsRequest applies interval edits and then re-reads the window.
type SaveIntervalsRequest struct {
	TaskID int64
	Edits  []IntervalEdit
	From   string
	To     string
}

// SaveIntervalsResult reports applied writes and the rebuilt intervals.
type SaveIntervalsResult struct {
	Writes    int        `json:"writes"`
	Created   []int64    `json:"created"`
	Intervals []Interval `json:"intervals"`
}

// SummaryRequest reads totals. A nil IncludeOngoing uses the configured policy.
type SummaryRequest struct {
	From           string
	To             string
	IncludeOngoing *bool
}

// CatalogService manages tasks and tags.
type CatalogService interface {
	ListTasks(context.Context, ListTasksRequest) ([]Task, error)
	GetTask(context.Context, int64) (Task, error)
	CreateTask(context.Context, CreateTaskRequest) (Task, error)
	UpdateTask(context.Context, UpdateTaskRequest) (Task, error)
	DeleteTask(context.Context, int64) error

	ListTags(context.Context) ([]Tag, error)
	GetTag(context.Context, int64) (Tag, error)
	CreateTag(context.Context, string) (Tag, error)
	RenameTag(context.Context, int64, string) (Tag, error)
	DeleteTag(context.Context, int64) error
}

// EventLogService exposes the raw event log.
type EventLogService interface {
	ListEvents(context.Context, ListEventsRequest) ([]Event, error)
	CreateEvent(context.Context, CreateEventRequest) (Event, error)
	UpdateEvent(context.Context, UpdateEventRequest) (Event, error)
	DeleteEvent(context.Context, int64) error
}

// TrackingService exposes timers, intervals, and summaries.
type TrackingService interface {
	StartTimer(context.Context, int64) (Event, error)
	StopTimer(context.Context, int64) (Event, error)
	ListIntervals(context.Context, ListIntervalsRequest) ([]Interval, error)
	SaveIntervals(context.Context, SaveIntervalsRequest) (SaveIntervalsResult, error)
	Summary(context.Context, SummaryRequest) (Summary, error)
}

// Service is everything the HTTP and MCP adapters call.
type Service interface {
	CatalogService
	EventLogService
	TrackingService
}

// Change kinds published after successful writes.
const (
	ChangeTaskCreated    = "task.created"
	ChangeTaskUpdated    = "task.updated"
	ChangeTaskDeleted    = "task.deleted"
	ChangeTagCreated     = "tag.created"
	ChangeTagUpdated     = "tag.updated"
	ChangeTagDeleted     = "tag.deleted"
	ChangeEventCreated   = "event.created"
	ChangeEventUpdated   = "event.updated"
	ChangeEventDeleted   = "event.deleted"
	ChangeTimerStarted   = "timer.started"
	ChangeTimerStopped   = "timer.stopped"
	ChangeIntervalsSaved = "intervals.saved"
)

// Change describes one write for live subscribers.
type Change struct {
	Kind    string    `json:"kind"`
	TaskID  int64     `json:"task_id,omitempty"`
	TagID   int64     `json:"tag_id,omitempty"`
	EventID int64     `json:"event_id,omitempty"`
	At      time.Time `json:"at"`
}

// ChangeNotifier receives changes after writes succeed.
type ChangeNotifier interface {
	Publish(Change)
}
