package domain

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"
)

// SummaryPolicy controls how Aggregate treats a timer that is still running.
type SummaryPolicy struct {
	IncludeOngoing bool
}

// HoursMinutes is a duration rendered as whole hours plus rounded minutes.
type HoursMinutes struct {
	Hours   int
	Minutes int
}

// NewHoursMinutes splits fractional hours. Minutes that round to 60 roll into the hour.
func NewHoursMinutes(hours float64) HoursMinutes {
	whole := math.Floor(hours)
	minutes := int(math.Round((hours - whole) * 60))
	h := int(whole)
	if minutes == 60 {
		h++
		minutes = 0
	}
	return HoursMinutes{Hours: h, Minutes: minutes}
}

func (hm HoursMinutes) String() string {
	return fmt.Sprintf("%dh %dm", hm.Hours, hm.Minutes)
}

// FormatHours renders fractional hours as "{h}h {m}m".
func FormatHours(hours float64) string {
	return NewHoursMinutes(hours).String()
}

type TaskTotal struct {
	TaskID TaskID
	Name   string
	Total  time.Duration
}

func (t TaskTotal) Hours() float64 {
	return t.Total.Hours()
}

func (t TaskTotal) Formatted() string {
	return FormatHours(t.Hours())
}

type TagTotal struct {
	TagID TagID
	Name  string
	Total time.Duration
}

func (t TagTotal) Hours() float64 {
	return t.Total.Hours()
}

func (t TagTotal) Formatted() string {
	return FormatHours(t.Hours())
}

// Summary holds per-task and per-tag totals for one window, each sorted by id.
type Summary struct {
	Window Window
	Tasks  []TaskTotal
	Tags   []TagTotal
}

// Aggregate totals active time per task and per tag inside window.
//
// Every event is walked once in (timestamp, id) order with one pending start per task, using the
// same orphan handling as Reconstruct. Each paired span counts in full toward its task and toward
// every tag on that task. Tasks and tags that receive no time are left out.
func Aggregate(events []TimestampEvent, tasks []Task, tags []Tag, window Window, now time.Time, policy SummaryPolicy) Summary {
	taskByID := make(map[TaskID]Task, len(tasks))
	for _, task := range tasks {
		taskByID[task.ID] = task
	}
	tagNames := make(map[TagID]string, len(tags))
	for _, tag := range tags {
		tagNames[tag.ID] = tag.Name
	}

	selected := make([]TimestampEvent, 0, len(events))
	for _, ev := range events {
		if window.Contains(ev.Timestamp) {
			selected = append(selected, ev)
		}
	}
	slices.SortStableFunc(selected, compareEvents)

	taskTotals := map[TaskID]time.Duration{}
	tagTotals := map[TagID]time.Duration{}
	credit := func(task TaskID, d time.Duration) {
		taskTotals[task] += d
		for _, tagID := range taskByID[task].Tags {
			tagTotals[tagID] += d
		}
	}

	lastStart := map[TaskID]time.Time{}
	for _, ev := range selected {
		switch ev.Type {
		case EventStart:
			lastStart[ev.Task] = ev.Timestamp
		case EventStop:
			start, ok := lastStart[ev.Task]
			if !ok {
				continue
			}
			credit(ev.Task, ev.Timestamp.Sub(start))
			delete(lastStart, ev.Task)
		}
	}
	if policy.IncludeOngoing && window.Open(now) {
		for task, start := range lastStart {
			if now.After(start) {
				credit(task, now.Sub(start))
			}
		}
	}

	out := Summary{Window: window}
	for id, total := range taskTotals {
		name := fmt.Sprintf("Task %d", id)
		if task, ok := taskByID[id]; ok {
			name = task.Name
		}
		out.Tasks = append(out.Tasks, TaskTotal{TaskID: id, Name: name, Total: total})
	}
	for id, total := range tagTotals {
		name, ok := tagNames[id]
		if !ok {
			name = fmt.Sprintf("Unknown Tag %d", id)
		}
		out.Tags = append(out.Tags, TagTotal{TagID: id, Name: name, Total: total})
	}
	slices.SortFunc(out.Tasks, func(a, b TaskTotal) int { return cmp.Compare(a.TaskID, b.TaskID) })
	slices.SortFunc(out.Tags, func(a, b TagTotal) int { return cmp.Compare(a.TagID, b.TagID) })
	return out
}
