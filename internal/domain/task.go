package domain

import (
	"strings"
	"time"
)

type TaskID int64

type Task struct {
	ID        TaskID
	Name      string
	Tags      TagSet
	CreatedAt time.Time
	UpdatedAt time.Time
}

type TaskInput struct {
	Name string
	Tags []TagID
}

func NewTask(in TaskInput, now time.Time) (Task, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return Task{}, ErrInvalidName
	}
	for _, id := range in.Tags {
		if id <= 0 {
			return Task{}, ErrInvalidID
		}
	}
	return Task{
		Name:      in.Name,
		Tags:      NewTagSet(in.Tags...),
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}, nil
}

func (t *Task) Rename(name string, now time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	t.Name = name
	t.UpdatedAt = now.UTC()
	return nil
}

func (t *Task) SetTags(tags []TagID, now time.Time) error {
	for _, id := range tags {
		if id <= 0 {
			return ErrInvalidID
		}
	}
	t.Tags = NewTagSet(tags...)
	t.UpdatedAt = now.UTC()
	return nil
}

// HasAllTags reports whether the task carries every tag in filter. An empty filter matches.
func (t Task) HasAllTags(filter TagSet) bool {
	return t.Tags.ContainsAll(filter)
}
