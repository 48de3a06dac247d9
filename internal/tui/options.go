package tui

import "time"

// Option configures a Model.
type Option func(*Model)

// WithRefreshInterval sets how often running timers re-render.
func WithRefreshInterval(d time.Duration) Option {
	return func(m *Model) {
		if d > 0 {
			m.refresh = d
		}
	}
}

// WithClipboard replaces the clipboard writer used by the summary screen.
func WithClipboard(write func(string) error) Option {
	return func(m *Model) {
		if write != nil {
			m.copyToClipboard = write
		}
	}
}

// WithLocation sets the zone times are shown and parsed in.
func WithLocation(loc *time.Location) Option {
	return func(m *Model) {
		if loc != nil {
			m.loc = loc
		}
	}
}

// WithVersion sets the version shown on the about screen.
func WithVersion(version string) Option {
	return func(m *Model) {
		m.version = version
	}
}
