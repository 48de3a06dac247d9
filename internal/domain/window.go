package domain

import "time"

// Window is a closed time range. Both bounds are inclusive.
type Window struct {
	Start time.Time
	End   time.Time
}

func NewWindow(start, end time.Time) (Window, error) {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return Window{}, ErrInvalidWindow
	}
	return Window{Start: start.UTC(), End: end.UTC()}, nil
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Open reports whether now still falls before the end of the window.
func (w Window) Open(now time.Time) bool {
	return now.Before(w.End)
}
