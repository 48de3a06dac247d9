package domain

import (
	"slices"
	"strconv"
	"strings"
)

type TagID int64

// Tag represents a label that can be attached to any number of tasks.
type Tag struct {
	ID   TagID
	Name string
}

func NewTag(name string) (Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Tag{}, ErrInvalidName
	}
	return Tag{Name: name}, nil
}

// TagSet is a sorted, duplicate-free set of tag ids.
type TagSet []TagID

func NewTagSet(ids ...TagID) TagSet {
	out := make(TagSet, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		out = append(out, id)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// ParseTagSet reads the comma-separated column form used by storage.
// Blank and non-numeric entries are ignored.
func ParseTagSet(raw string) TagSet {
	parts := strings.Split(raw, ",")
	ids := make([]TagID, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, TagID(n))
	}
	return NewTagSet(ids...)
}

func (s TagSet) Contains(id TagID) bool {
	_, ok := slices.BinarySearch(s, id)
	return ok
}

func (s TagSet) ContainsAll(other TagSet) bool {
	for _, id := range other {
		if !s.Contains(id) {
			return false
		}
	}
	return true
}

func (s TagSet) Without(id TagID) TagSet {
	out := make(TagSet, 0, len(s))
	for _, existing := range s {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}

// String renders the set in its comma-separated storage form.
func (s TagSet) String() string {
	parts := make([]string, 0, len(s))
	for _, id := range s {
		parts = append(parts, strconv.FormatInt(int64(id), 10))
	}
	return strings.Join(parts, ",")
}
