package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Record is the constraint on collection element types.
type Record interface {
	Validate() error
}

// State describes what a read found at the collection path.
type State int

const (
	StateMissing State = iota
	StatePresent
	StateMalformed
)

func (s State) String() string {
	switch s {
	case StateMissing:
		return "missing"
	case StatePresent:
		return "present"
	case StateMalformed:
		return "malformed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Encode serializes records with 4-space indentation, literal non-ASCII and
// HTML characters, and no trailing newline. A nil slice encodes as [].
func Encode[T any](records []T) ([]byte, error) {
	if records == nil {
		records = []T{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("encoding collection: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Decode parses collection content. It never fails: content that is not a
// record array yields an empty slice, StateMalformed and a description of the
// problem. A bare object is accepted as a single record only if it validates.
func Decode[T Record](data []byte) ([]T, State, string) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return []T{}, StateMalformed, "content is empty"
	}

	switch trimmed[0] {
	case '[':
		var records []T
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return []T{}, StateMalformed, fmt.Sprintf("decoding array: %v", err)
		}
		if records == nil {
			records = []T{}
		}
		return records, StatePresent, ""
	case '{':
		var rec T
		if err := json.Unmarshal(trimmed, &rec); err != nil {
			return []T{}, StateMalformed, fmt.Sprintf("decoding object: %v", err)
		}
		if err := rec.Validate(); err != nil {
			return []T{}, StateMalformed, fmt.Sprintf("top-level object is not a record: %v", err)
		}
		return []T{rec}, StatePresent, ""
	}

	if !json.Valid(trimmed) {
		return []T{}, StateMalformed, "content is not JSON"
	}
	return []T{}, StateMalformed, "top-level value is not an array"
}
