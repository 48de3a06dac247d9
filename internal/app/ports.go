package app

import (
	"context"
	"time"

	"github.com/hylla/stamp/internal/domain"
)

// EventFilter narrows ListEvents. Nil fields do not filter; From and To are inclusive.
type EventFilter struct {
	TaskID *domain.TaskID
	From   *time.Time
	To     *time.Time
}

// Repository is the storage port for the event log and the task and tag catalogs.
// Create calls assign a new id when the given id is zero and keep it otherwise.
type Repository interface {
	ListEvents(context.Context, EventFilter) ([]domain.TimestampEvent, error)
	GetEvent(context.Context, domain.EventID) (domain.TimestampEvent, error)
	CreateEvent(context.Context, domain.TimestampEvent) (domain.EventID, error)
	UpdateEvent(context.Context, domain.EventID, time.Time, domain.EventType) error
	DeleteEvent(context.Context, domain.EventID) error

	ListTasks(context.Context) ([]domain.Task, error)
	GetTask(context.Context, domain.TaskID) (domain.Task, error)
	CreateTask(context.Context, domain.Task) (domain.TaskID, error)
	UpdateTask(context.Context, domain.Task) error
	DeleteTask(context.Context, domain.TaskID) error

	ListTags(context.Context) ([]domain.Tag, error)
	GetTag(context.Context, domain.TagID) (domain.Tag, error)
	CreateTag(context.Context, domain.Tag) (domain.TagID, error)
	UpdateTag(context.Context, domain.Tag) error
	DeleteTag(context.Context, domain.TagID) error
}
