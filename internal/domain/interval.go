package domain

import (
	"slices"
	"time"
)

// ActivityInterval is a derived span of work on one task. A nil Stop marks an ongoing interval.
// Zero event ids mean the endpoint has no stored event yet.
type ActivityInterval struct {
	Start        time.Time
	Stop         *time.Time
	StartEventID EventID
	StopEventID  EventID
	IsNew        bool
	IsModified   bool
	HasOverlap   bool
}

func (i ActivityInterval) Open() bool {
	return i.Stop == nil
}

// End returns the stop time, or now for an ongoing interval.
func (i ActivityInterval) End(now time.Time) time.Time {
	if i.Stop == nil {
		return now
	}
	return *i.Stop
}

func (i ActivityInterval) Duration(now time.Time) time.Duration {
	return i.End(now).Sub(i.Start)
}

// Validate checks the endpoints. Only persisted intervals without a stop event may stay open.
func (i ActivityInterval) Validate() error {
	if i.Start.IsZero() {
		return ErrInvalidInterval
	}
	if i.Stop == nil {
		if i.IsNew || i.StopEventID != 0 {
			return ErrInvalidInterval
		}
		return nil
	}
	if !i.Stop.After(i.Start) {
		return ErrInvalidInterval
	}
	return nil
}

// reconstructState is the fold state for Reconstruct.
type reconstructState struct {
	pending *TimestampEvent
	out     []ActivityInterval
}

func (s reconstructState) step(ev TimestampEvent) reconstructState {
	switch ev.Type {
	case EventStart:
		s.pending = &ev
	case EventStop:
		if s.pending == nil {
			return s
		}
		stop := ev.Timestamp
		s.out = append(s.out, ActivityInterval{
			Start:        s.pending.Timestamp,
			Stop:         &stop,
			StartEventID: s.pending.ID,
			StopEventID:  ev.ID,
		})
		s.pending = nil
	}
	return s
}

// Reconstruct rebuilds the activity intervals of one task inside window.
//
// Events are read in (timestamp, id) order. A start replaces any start still waiting for its stop,
// and a stop with nothing waiting is ignored. A start left over at the end becomes an open interval
// only while now is before the end of the window.
func Reconstruct(events []TimestampEvent, task TaskID, window Window, now time.Time) []ActivityInterval {
	selected := make([]TimestampEvent, 0, len(events))
	for _, ev := range events {
		if ev.Task == task && window.Contains(ev.Timestamp) {
			selected = append(selected, ev)
		}
	}
	slices.SortStableFunc(selected, compareEvents)

	state := reconstructState{}
	for _, ev := range selected {
		state = state.step(ev)
	}
	if state.pending != nil && window.Open(now) {
		state.out = append(state.out, ActivityInterval{
			Start:        state.pending.Timestamp,
			StartEventID: state.pending.ID,
		})
	}
	SortIntervals(state.out)
	return state.out
}

// SortIntervals orders intervals by start. Equal starts keep their relative order.
func SortIntervals(intervals []ActivityInterval) {
	slices.SortStableFunc(intervals, func(a, b ActivityInterval) int {
		return a.Start.Compare(b.Start)
	})
}
