package record

import (
	"sort"
	"strings"
	"time"
)

// SearchNotes returns the notes whose content contains q or whose tags
// include q exactly. An empty q matches every note.
func SearchNotes(notes []Note, q string) []Note {
	q = strings.TrimSpace(q)
	out := make([]Note, 0, len(notes))
	for _, n := range notes {
		if q == "" || strings.Contains(n.Content, q) || hasTag(n.Tags, q) {
			out = append(out, n)
		}
	}
	return out
}

func hasTag(tags []string, q string) bool {
	for _, t := range tags {
		if t == q {
			return true
		}
	}
	return false
}

// Upcoming returns events starting at or after now, soonest first. A limit
// of zero or less returns all of them.
func Upcoming(events []CalendarEvent, now time.Time, limit int) []CalendarEvent {
	from := NewLocalTime(now)
	out := make([]CalendarEvent, 0, len(events))
	for _, e := range events {
		if !e.Start.Before(from.Time) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start.Time)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
