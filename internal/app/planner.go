package app

import (
	"context"
	"fmt"
	"time"

	"github.com/hylla/stamp/internal/domain"
)

// IntervalEdit is one user change to a task's interval list.
type IntervalEdit struct {
	Interval domain.ActivityInterval
	Deleted  bool
}

// WriteKind names the store operation of an EventWrite.
type WriteKind string

// WriteCreate and related constants define package defaults.
const (
	WriteCreate WriteKind = "create"
	WriteUpdate WriteKind = "update"
	WriteDelete WriteKind = "delete"
)

// EventWrite is a single planned change to the event log.
type EventWrite struct {
	Kind      WriteKind
	EventID   domain.EventID
	Task      domain.TaskID
	Timestamp time.Time
	Type      domain.EventType
}

// PlanIntervalWrites turns interval edits into event writes. Every edit is checked before any write
// is produced, so an invalid batch yields no writes at all.
//
// New intervals become a start and a stop event, modified ones update their source events, and
// deleted ones remove them. Deleting an interval that was never stored needs no write.
func PlanIntervalWrites(task domain.TaskID, edits []IntervalEdit) ([]EventWrite, error) {
	for i, edit := range edits {
		if err := validateEdit(edit); err != nil {
			return nil, fmt.Errorf("edit %d: %w", i, err)
		}
	}

	var writes []EventWrite
	for _, edit := range edits {
		iv := edit.Interval
		switch {
		case edit.Deleted && iv.IsNew:
		case edit.Deleted:
			writes = append(writes, EventWrite{Kind: WriteDelete, EventID: iv.StartEventID, Task: task})
			if iv.StopEventID != 0 {
				writes = append(writes, EventWrite{Kind: WriteDelete, EventID: iv.StopEventID, Task: task})
			}
		case iv.IsNew:
			writes = append(writes,
				EventWrite{Kind: WriteCreate, Task: task, Timestamp: iv.Start, Type: domain.EventStart},
				EventWrite{Kind: WriteCreate, Task: task, Timestamp: *iv.Stop, Type: domain.EventStop},
			)
		case iv.IsModified:
			writes = append(writes, EventWrite{Kind: WriteUpdate, EventID: iv.StartEventID, Task: task, Timestamp: iv.Start, Type: domain.EventStart})
			if iv.Stop != nil {
				writes = append(writes, EventWrite{Kind: WriteUpdate, EventID: iv.StopEventID, Task: task, Timestamp: *iv.Stop, Type: domain.EventStop})
			}
		}
	}
	return writes, nil
}

func validateEdit(edit IntervalEdit) error {
	iv := edit.Interval
	if edit.Deleted {
		if !iv.IsNew && iv.StartEventID == 0 {
			return domain.ErrInvalidInterval
		}
		return nil
	}
	if !iv.IsNew && !iv.IsModified {
		return nil
	}
	if !iv.IsNew && iv.StartEventID == 0 {
		return domain.ErrInvalidInterval
	}
	if !iv.IsNew && iv.Stop != nil && iv.StopEventID == 0 {
		return domain.ErrInvalidInterval
	}
	return iv.Validate()
}

// SaveResult describes the writes a SaveIntervals call issued.
type SaveResult struct {
	Writes  []EventWrite
	Created []domain.EventID
}

// SaveIntervals plans and applies interval edits for one task. Writes run in order without a
// transaction; a failure stops the batch and returns a *PartialWriteError.
func (s *Service) SaveIntervals(ctx context.Context, task domain.TaskID, edits []IntervalEdit) (SaveResult, error) {
	writes, err := PlanIntervalWrites(task, edits)
	if err != nil {
		return SaveResult{}, err
	}

	unlock := s.locks.lock(task)
	defer unlock()
	if _, err := s.GetTask(ctx, task); err != nil {
		return SaveResult{}, err
	}
	if err := s.checkEditSources(ctx, task, edits); err != nil {
		return SaveResult{}, err
	}

	result := SaveResult{Writes: writes}
	for i, w := range writes {
		if err := s.applyWrite(ctx, w, &result); err != nil {
			return result, &PartialWriteError{Applied: i, Total: len(writes), Err: err}
		}
	}
	return result, nil
}

// checkEditSources verifies that every stored interval an edit touches is a start and a stop event
// of task. It runs under the task lock and before any write.
func (s *Service) checkEditSources(ctx context.Context, task domain.TaskID, edits []IntervalEdit) error {
	for i, edit := range edits {
		iv := edit.Interval
		if iv.IsNew || (!edit.Deleted && !iv.IsModified) {
			continue
		}
		if iv.StopEventID != 0 && iv.StopEventID == iv.StartEventID {
			return fmt.Errorf("edit %d: start and stop share event %d: %w", i, iv.StartEventID, domain.ErrInvalidInterval)
		}
		sources := []struct {
			id  domain.EventID
			typ domain.EventType
		}{{iv.StartEventID, domain.EventStart}, {iv.StopEventID, domain.EventStop}}
		for _, src := range sources {
			if src.id == 0 {
				continue
			}
			ev, err := s.repo.GetEvent(ctx, src.id)
			if err != nil {
				return fmt.Errorf("edit %d: %w", i, storeErr("get event", err))
			}
			if ev.Task != task {
				return fmt.Errorf("edit %d: event %d belongs to task %d: %w", i, ev.ID, ev.Task, domain.ErrInvalidInterval)
			}
			if ev.Type != src.typ {
				return fmt.Errorf("edit %d: event %d is a %s, want %s: %w", i, ev.ID, ev.Type, src.typ, domain.ErrInvalidInterval)
			}
		}
	}
	return nil
}

func (s *Service) applyWrite(ctx context.Context, w EventWrite, result *SaveResult) error {
	switch w.Kind {
	case WriteCreate:
		ev, err := s.createEvent(ctx, w.Task, w.Timestamp, w.Type)
		if err != nil {
			return err
		}
		result.Created = append(result.Created, ev.ID)
		return nil
	case WriteUpdate:
		return storeErr("update event", s.repo.UpdateEvent(ctx, w.EventID, w.Timestamp.UTC(), w.Type))
	case WriteDelete:
		return storeErr("delete event", s.repo.DeleteEvent(ctx, w.EventID))
	default:
		return fmt.Errorf("unknown write kind %q", w.Kind)
	}
}
