// Package record defines the structured entries the assistant keeps: calendar
// events, finance entries and notes. Each kind lives in its own collection.
package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Kind identifies a record variant and, by default, the collection holding it.
type Kind string

const (
	KindCalendar Kind = "calendar"
	KindFinance  Kind = "finance"
	KindNote     Kind = "note"
)

// Kinds lists every record kind in display order.
var Kinds = []Kind{KindCalendar, KindFinance, KindNote}

// ParseKind accepts a kind name or its collection name ("events", "notes").
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "calendar", "event", "events":
		return KindCalendar, nil
	case "finance", "expense", "expenses":
		return KindFinance, nil
	case "note", "notes":
		return KindNote, nil
	}
	return "", fmt.Errorf("unknown record kind %q", s)
}

// Collection returns the default collection name for k.
func (k Kind) Collection() string {
	switch k {
	case KindCalendar:
		return "events"
	case KindFinance:
		return "finance"
	case KindNote:
		return "notes"
	}
	return string(k)
}

// DefaultPath returns the default backing file for k, e.g. "events.json".
func (k Kind) DefaultPath() string {
	return k.Collection() + ".json"
}

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid record")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// CalendarEvent is one entry of the events collection.
type CalendarEvent struct {
	Title    string     `json:"title"`
	Start    LocalTime  `json:"start"`
	End      *LocalTime `json:"end,omitempty"`
	Location string     `json:"location,omitempty"`
	AllDay   bool       `json:"all_day"`
}

// Validate checks the required fields and the start/end ordering.
func (e CalendarEvent) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return invalid("event title is empty")
	}
	if e.Start.IsZero() {
		return invalid("event %q has no start", e.Title)
	}
	if e.End != nil && !e.End.IsZero() && e.End.Before(e.Start.Time) {
		return invalid("event %q ends before it starts", e.Title)
	}
	return nil
}

// calendarWire mirrors CalendarEvent plus the legacy {date, time} fields
// written by early revisions of the events file.
type calendarWire struct {
	Title    string     `json:"title"`
	Start    LocalTime  `json:"start"`
	End      *LocalTime `json:"end"`
	Location string     `json:"location"`
	AllDay   bool       `json:"all_day"`
	Date     string     `json:"date"`
	Time     string     `json:"time"`
}

func (e *CalendarEvent) UnmarshalJSON(data []byte) error {
	var w calendarWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*e = CalendarEvent{
		Title:    w.Title,
		Start:    w.Start,
		End:      w.End,
		Location: w.Location,
		AllDay:   w.AllDay,
	}
	if e.End != nil && e.End.IsZero() {
		e.End = nil
	}
	if e.Start.IsZero() && strings.TrimSpace(w.Date) != "" {
		clock := strings.TrimSpace(w.Time)
		if clock == "" {
			clock = "00:00"
			e.AllDay = true
		}
		start, err := ParseLocalTime(strings.TrimSpace(w.Date) + " " + clock)
		if err != nil {
			return fmt.Errorf("legacy event date: %w", err)
		}
		e.Start = start
	}
	return nil
}

// FinanceEntry is one expense (negative amount) or income (positive amount) line.
type FinanceEntry struct {
	Item     string  `json:"item"`
	Amount   float64 `json:"amount"`
	Category string  `json:"category"`
	Date     Date    `json:"date"`
}

// DefaultCategory is used when a finance entry arrives without one.
const DefaultCategory = "other"

// IsExpense reports whether the entry is money going out.
func (f FinanceEntry) IsExpense() bool { return f.Amount < 0 }

// Validate checks the required fields. It does not normalize; see Normalize.
func (f FinanceEntry) Validate() error {
	if strings.TrimSpace(f.Item) == "" {
		return invalid("finance item is empty")
	}
	if math.IsNaN(f.Amount) || math.IsInf(f.Amount, 0) || f.Amount == 0 {
		return invalid("finance entry %q has no amount", f.Item)
	}
	if f.Date.IsZero() {
		return invalid("finance entry %q has no date", f.Item)
	}
	return nil
}

// Normalize trims text fields and fills the default category.
func (f FinanceEntry) Normalize() FinanceEntry {
	f.Item = strings.TrimSpace(f.Item)
	f.Category = strings.TrimSpace(f.Category)
	if f.Category == "" {
		f.Category = DefaultCategory
	}
	return f
}

// Note is a free-text entry with order-preserving tags.
type Note struct {
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	CreatedAt LocalTime `json:"created_at"`
}

func (n Note) Validate() error {
	if strings.TrimSpace(n.Content) == "" {
		return invalid("note content is empty")
	}
	return nil
}

// Normalize trims the content and deduplicates tags.
func (n Note) Normalize() Note {
	n.Content = strings.TrimSpace(n.Content)
	n.Tags = NormalizeTags(n.Tags)
	return n
}

// NormalizeTags trims tags, drops empty ones and removes duplicates while
// keeping first-seen order. The result is never nil.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// SplitTags splits a user-typed tag string on whitespace and commas.
func SplitTags(s string) []string {
	return NormalizeTags(strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	}))
}
