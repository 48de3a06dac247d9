package app

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hylla/stamp/internal/domain"
)

// SnapshotVersion defines a package constant value.
const SnapshotVersion = "stamp.snapshot.v1"

// SnapshotFormat selects the snapshot encoding.
type SnapshotFormat string

// SnapshotJSON and related constants define package defaults.
const (
	SnapshotJSON SnapshotFormat = "json"
	SnapshotYAML SnapshotFormat = "yaml"
)

// ParseSnapshotFormat accepts json, yaml, or yml. Empty input means json.
func ParseSnapshotFormat(raw string) (SnapshotFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "json":
		return SnapshotJSON, nil
	case "yaml", "yml":
		return SnapshotYAML, nil
	default:
		return "", fmt.Errorf("unsupported snapshot format %q", raw)
	}
}

// Snapshot represents snapshot data used by this package.
type Snapshot struct {
	Version    string          `json:"version" yaml:"version"`
	ExportedAt time.Time       `json:"exported_at" yaml:"exported_at"`
	Tags       []SnapshotTag   `json:"tags" yaml:"tags"`
	Tasks      []SnapshotTask  `json:"tasks" yaml:"tasks"`
	Events     []SnapshotEvent `json:"events" yaml:"events"`
}

// SnapshotTag represents snapshot tag data used by this package.
type SnapshotTag struct {
	ID   domain.TagID `json:"id" yaml:"id"`
	Name string       `json:"name" yaml:"name"`
}

// SnapshotTask represents snapshot task data used by this package.
type SnapshotTask struct {
	ID        domain.TaskID  `json:"id" yaml:"id"`
	Name      string         `json:"name" yaml:"name"`
	Tags      []domain.TagID `json:"tags" yaml:"tags"`
	CreatedAt time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" yaml:"updated_at"`
}

// SnapshotEvent represents snapshot event data used by this package.
type SnapshotEvent struct {
	ID        domain.EventID `json:"id" yaml:"id"`
	Task      domain.TaskID  `json:"task" yaml:"task"`
	Timestamp time.Time      `json:"timestamp" yaml:"timestamp"`
	Type      string         `json:"type" yaml:"type"`
}

// ExportSnapshot collects every tag, task, and event.
func (s *Service) ExportSnapshot(ctx context.Context) (Snapshot, error) {
	tags, err := s.repo.ListTags(ctx)
	if err != nil {
		return Snapshot{}, storeErr("list tags", err)
	}
	tasks, err := s.repo.ListTasks(ctx)
	if err != nil {
		return Snapshot{}, storeErr("list tasks", err)
	}
	events, err := s.repo.ListEvents(ctx, EventFilter{})
	if err != nil {
		return Snapshot{}, storeErr("list events", err)
	}

	snap := Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: s.clock().UTC(),
		Tags:       make([]SnapshotTag, 0, len(tags)),
		Tasks:      make([]SnapshotTask, 0, len(tasks)),
		Events:     make([]SnapshotEvent, 0, len(events)),
	}
	for _, tag := range tags {
		snap.Tags = append(snap.Tags, SnapshotTag{ID: tag.ID, Name: tag.Name})
	}
	for _, task := range tasks {
		snap.Tasks = append(snap.Tasks, snapshotTaskFromDomain(task))
	}
	for _, ev := range events {
		snap.Events = append(snap.Events, SnapshotEvent{ID: ev.ID, Task: ev.Task, Timestamp: ev.Timestamp.UTC(), Type: ev.Type.String()})
	}
	snap.sort()
	return snap, nil
}

// ImportSnapshot upserts every record in snap, keeping its ids.
func (s *Service) ImportSnapshot(ctx context.Context, snap Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	snap.sort()

	for _, tag := range snap.Tags {
		if err := s.upsertTag(ctx, domain.Tag{ID: tag.ID, Name: strings.TrimSpace(tag.Name)}); err != nil {
			return err
		}
	}
	for _, task := range snap.Tasks {
		if err := s.upsertTask(ctx, task.toDomain()); err != nil {
			return err
		}
	}
	for _, ev := range snap.Events {
		dev, err := ev.toDomain()
		if err != nil {
			return err
		}
		if err := s.upsertEvent(ctx, dev); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the requested operation.
func (s *Snapshot) Validate() error {
	if s.Version != "" && s.Version != SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version: %q", s.Version)
	}

	tagIDs := map[domain.TagID]struct{}{}
	for i, tag := range s.Tags {
		if tag.ID <= 0 {
			return fmt.Errorf("tags[%d].id is required", i)
		}
		if strings.TrimSpace(tag.Name) == "" {
			return fmt.Errorf("tags[%d].name is required", i)
		}
		if _, exists := tagIDs[tag.ID]; exists {
			return fmt.Errorf("duplicate tag id: %d", tag.ID)
		}
		tagIDs[tag.ID] = struct{}{}
	}

	taskIDs := map[domain.TaskID]struct{}{}
	for i, task := range s.Tasks {
		if task.ID <= 0 {
			return fmt.Errorf("tasks[%d].id is required", i)
		}
		if strings.TrimSpace(task.Name) == "" {
			return fmt.Errorf("tasks[%d].name is required", i)
		}
		if _, exists := taskIDs[task.ID]; exists {
			return fmt.Errorf("duplicate task id: %d", task.ID)
		}
		for _, tagID := range task.Tags {
			if _, ok := tagIDs[tagID]; !ok {
				return fmt.Errorf("tasks[%d] references unknown tag %d", i, tagID)
			}
		}
		taskIDs[task.ID] = struct{}{}
	}

	eventIDs := map[domain.EventID]struct{}{}
	for i, ev := range s.Events {
		if ev.ID <= 0 {
			return fmt.Errorf("events[%d].id is required", i)
		}
		if _, exists := eventIDs[ev.ID]; exists {
			return fmt.Errorf("duplicate event id: %d", ev.ID)
		}
		if _, ok := taskIDs[ev.Task]; !ok {
			return fmt.Errorf("events[%d] references unknown task %d", i, ev.Task)
		}
		if ev.Timestamp.IsZero() {
			return fmt.Errorf("events[%d].timestamp is required", i)
		}
		if _, err := domain.ParseEventType(ev.Type); err != nil {
			return fmt.Errorf("events[%d]: %w", i, err)
		}
		eventIDs[ev.ID] = struct{}{}
	}
	return nil
}

// EncodeSnapshot writes snap in the given format.
func EncodeSnapshot(w io.Writer, snap Snapshot, format SnapshotFormat) error {
	switch format {
	case SnapshotYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("encode snapshot yaml: %w", err)
		}
		return enc.Close()
	case SnapshotJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("encode snapshot json: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported snapshot format %q", format)
	}
}

// DecodeSnapshot reads one snapshot in the given format.
func DecodeSnapshot(r io.Reader, format SnapshotFormat) (Snapshot, error) {
	var snap Snapshot
	switch format {
	case SnapshotYAML:
		if err := yaml.NewDecoder(r).Decode(&snap); err != nil {
			return Snapshot{}, fmt.Errorf("decode snapshot yaml: %w", err)
		}
	case SnapshotJSON, "":
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&snap); err != nil {
			return Snapshot{}, fmt.Errorf("decode snapshot json: %w", err)
		}
	default:
		return Snapshot{}, fmt.Errorf("unsupported snapshot format %q", format)
	}
	return snap, nil
}

func (s *Service) upsertTag(ctx context.Context, tag domain.Tag) error {
	if _, err := s.repo.GetTag(ctx, tag.ID); err == nil {
		return storeErr("update tag", s.repo.UpdateTag(ctx, tag))
	} else if !errors.Is(err, ErrNotFound) {
		return storeErr("get tag", err)
	}
	_, err := s.repo.CreateTag(ctx, tag)
	return storeErr("create tag", err)
}

func (s *Service) upsertTask(ctx context.Context, task domain.Task) error {
	if _, err := s.repo.GetTask(ctx, task.ID); err == nil {
		return storeErr("update task", s.repo.UpdateTask(ctx, task))
	} else if !errors.Is(err, ErrNotFound) {
		return storeErr("get task", err)
	}
	_, err := s.repo.CreateTask(ctx, task)
	return storeErr("create task", err)
}

func (s *Service) upsertEvent(ctx context.Context, ev domain.TimestampEvent) error {
	if _, err := s.repo.GetEvent(ctx, ev.ID); err == nil {
		return storeErr("update event", s.repo.UpdateEvent(ctx, ev.ID, ev.Timestamp, ev.Type))
	} else if !errors.Is(err, ErrNotFound) {
		return storeErr("get event", err)
	}
	_, err := s.repo.CreateEvent(ctx, ev)
	return storeErr("create event", err)
}

func (s *Snapshot) sort() {
	slices.SortFunc(s.Tags, func(a, b SnapshotTag) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortFunc(s.Tasks, func(a, b SnapshotTask) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortFunc(s.Events, func(a, b SnapshotEvent) int { return cmp.Compare(a.ID, b.ID) })
}

func snapshotTaskFromDomain(t domain.Task) SnapshotTask {
	return SnapshotTask{
		ID:        t.ID,
		Name:      t.Name,
		Tags:      append([]domain.TagID{}, t.Tags...),
		CreatedAt: t.CreatedAt.UTC(),
		UpdatedAt: t.UpdatedAt.UTC(),
	}
}

func (t SnapshotTask) toDomain() domain.Task {
	created := t.CreatedAt.UTC()
	if created.IsZero() {
		created = time.Unix(0, 0).UTC()
	}
	updated := t.UpdatedAt.UTC()
	if updated.IsZero() {
		updated = created
	}
	return domain.Task{
		ID:        t.ID,
		Name:      strings.TrimSpace(t.Name),
		Tags:      domain.NewTagSet(t.Tags...),
		CreatedAt: created,
		UpdatedAt: updated,
	}
}

func (e SnapshotEvent) toDomain() (domain.TimestampEvent, error) {
	typ, err := domain.ParseEventType(e.Type)
	if err != nil {
		return domain.TimestampEvent{}, err
	}
	return domain.TimestampEvent{ID: e.ID, Task: e.Task, Timestamp: e.Timestamp.UTC(), Type: typ}, nil
}
