package domain

import (
	"slices"
	"time"
)

// DetectOverlaps returns a copy of intervals with HasOverlap recomputed. The input must be sorted
// by start; an ongoing interval is treated as ending at now.
//
// An interval overlaps an earlier one when the furthest end seen so far is past its start, and it
// overlaps a later one when its own end is past the next start.
func DetectOverlaps(intervals []ActivityInterval, now time.Time) []ActivityInterval {
	out := slices.Clone(intervals)
	for i := range out {
		out[i].HasOverlap = false
	}
	if len(out) < 2 {
		return out
	}

	furthest := out[0].End(now)
	for i := 1; i < len(out); i++ {
		if furthest.After(out[i].Start) {
			out[i].HasOverlap = true
		}
		if end := out[i].End(now); end.After(furthest) {
			furthest = end
		}
	}
	for i := 0; i < len(out)-1; i++ {
		if out[i].End(now).After(out[i+1].Start) {
			out[i].HasOverlap = true
		}
	}
	return out
}
