// Package timeexpr parses the instants users type for window bounds: RFC3339, the
// datetime-local form browsers submit, plain dates, and natural phrases like "yesterday 9am".
package timeexpr

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/hylla/stamp/internal/domain"
)

// ErrUnrecognized is returned when no layout or phrase rule matches.
var ErrUnrecognized = errors.New("unrecognized time expression")

// Bound says which end of a window an expression fills. Bare dates expand to the start or end
// of that day accordingly.
type Bound int

const (
	BoundStart Bound = iota
	BoundEnd
)

// localLayouts carry no zone and are read in the base location.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

const dateLayout = "2006-01-02"

var (
	parserOnce sync.Once
	parser     *when.Parser
)

func naturalParser() *when.Parser {
	parserOnce.Do(func() {
		parser = when.New(nil)
		parser.Add(en.All...)
		parser.Add(common.All...)
	})
	return parser
}

// Parse reads one instant relative to base. Layouts without a zone use base's location.
func Parse(raw string, base time.Time, bound Bound) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrUnrecognized)
	}
	loc := base.Location()

	switch strings.ToLower(raw) {
	case "now":
		return base, nil
	case "today":
		return dayBound(base, bound), nil
	}

	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	if t, err := time.ParseInLocation(dateLayout, raw, loc); err == nil {
		return dayBound(t, bound), nil
	}

	res, err := naturalParser().Parse(raw, base)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q: %w", raw, err)
	}
	if res == nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnrecognized, raw)
	}
	return res.Time, nil
}

// Window resolves optional from/to expressions. Empty expressions fall back to def.
func Window(from, to string, base time.Time, def domain.Window) (domain.Window, error) {
	start, end := def.Start, def.End
	if strings.TrimSpace(from) != "" {
		t, err := Parse(from, base, BoundStart)
		if err != nil {
			return domain.Window{}, fmt.Errorf("from: %w", err)
		}
		start = t
	}
	if strings.TrimSpace(to) != "" {
		t, err := Parse(to, base, BoundEnd)
		if err != nil {
			return domain.Window{}, fmt.Errorf("to: %w", err)
		}
		end = t
	}
	return domain.NewWindow(start, end)
}

func dayBound(t time.Time, bound Bound) time.Time {
	y, m, d := t.Date()
	if bound == BoundEnd {
		return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location()).Add(-time.Nanosecond)
	}
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
