package domain

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"
)

type EventID int64

// EventType is stored as 0 for start and 1 for stop.
type EventType int

const (
	EventStart EventType = 0
	EventStop  EventType = 1
)

func (t EventType) Valid() bool {
	return t == EventStart || t == EventStop
}

func (t EventType) String() string {
	switch t {
	case EventStart:
		return "start"
	case EventStop:
		return "stop"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// ParseEventType accepts "start"/"stop" as well as the numeric forms "0"/"1".
func ParseEventType(raw string) (EventType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "start", "0":
		return EventStart, nil
	case "stop", "1":
		return EventStop, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidType, raw)
	}
}

// TimestampEvent is one start or stop mark in a task's event log.
type TimestampEvent struct {
	ID        EventID
	Task      TaskID
	Timestamp time.Time
	Type      EventType
}

func ValidateEvent(task TaskID, ts time.Time, typ EventType) error {
	if task <= 0 {
		return ErrInvalidID
	}
	if ts.IsZero() {
		return ErrInvalidTime
	}
	if !typ.Valid() {
		return ErrInvalidType
	}
	return nil
}

func compareEvents(a, b TimestampEvent) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// SortEvents orders events by timestamp, breaking ties by id, without touching the input.
func SortEvents(events []TimestampEvent) []TimestampEvent {
	out := slices.Clone(events)
	slices.SortStableFunc(out, compareEvents)
	return out
}

// LatestEvent returns the most recent event for task, by timestamp and then id.
func LatestEvent(events []TimestampEvent, task TaskID) (TimestampEvent, bool) {
	var (
		latest TimestampEvent
		found  bool
	)
	for _, ev := range events {
		if ev.Task != task {
			continue
		}
		if !found || compareEvents(ev, latest) > 0 {
			latest = ev
			found = true
		}
	}
	return latest, found
}
