package record

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the canonical on-disk form of every record timestamp:
// local time, explicit seconds, 24-hour clock.
const TimestampLayout = "2006-01-02T15:04:05"

// DateLayout is the canonical on-disk form of calendar dates.
const DateLayout = "2006-01-02"

// acceptedLayouts lists the timestamp forms tolerated on input, most specific first.
var acceptedLayouts = []string{
	TimestampLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	DateLayout,
}

// LocalTime is a wall-clock timestamp with no zone, serialized as TimestampLayout.
type LocalTime struct {
	time.Time
}

// NewLocalTime truncates t to whole seconds and drops its zone.
func NewLocalTime(t time.Time) LocalTime {
	t = t.Truncate(time.Second)
	return LocalTime{time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)}
}

// ParseLocalTime parses s in any accepted layout.
func ParseLocalTime(s string) (LocalTime, error) {
	s = strings.TrimSpace(s)
	for _, layout := range acceptedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return LocalTime{t}, nil
		}
	}
	return LocalTime{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// String formats t in TimestampLayout. The zero value formats as "".
func (t LocalTime) String() string {
	if t.IsZero() {
		return ""
	}
	return t.Format(TimestampLayout)
}

// Equal reports whether t and u denote the same wall-clock instant.
func (t LocalTime) Equal(u LocalTime) bool {
	return t.Time.Equal(u.Time)
}

func (t LocalTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *LocalTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	if s == "" {
		*t = LocalTime{}
		return nil
	}
	parsed, err := ParseLocalTime(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Date is a calendar date serialized as DateLayout.
type Date struct {
	time.Time
}

// NewDate keeps only the year, month and day of t.
func NewDate(t time.Time) Date {
	return Date{time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts DateLayout or any timestamp layout and keeps the date part.
func ParseDate(s string) (Date, error) {
	lt, err := ParseLocalTime(s)
	if err != nil {
		return Date{}, fmt.Errorf("unrecognized date %q", strings.TrimSpace(s))
	}
	return NewDate(lt.Time), nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) Equal(o Date) bool {
	return d.Time.Equal(o.Time)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
