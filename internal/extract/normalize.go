package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// StripFences removes a leading ```json (or bare ```) marker and a trailing
// ``` marker, ignoring surrounding whitespace. Matching is case-sensitive.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "```json"):
		s = strings.TrimPrefix(s, "```json")
	case strings.HasPrefix(s, "```"):
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// parseJSON strips fences and checks the remainder is a single JSON value.
func parseJSON(raw string) (json.RawMessage, error) {
	body := StripFences(raw)
	if body == "" {
		return nil, errors.New("empty reply")
	}
	var msg json.RawMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return nil, fmt.Errorf("reply is not JSON: %w", err)
	}
	return bytes.TrimSpace(msg), nil
}

// asArray returns the elements of an array, or a bare object as a single
// element.
func asArray(msg json.RawMessage) ([]json.RawMessage, error) {
	if len(msg) == 0 {
		return nil, errors.New("empty value")
	}
	switch msg[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(msg, &items); err != nil {
			return nil, err
		}
		return items, nil
	case '{':
		return []json.RawMessage{msg}, nil
	}
	return nil, fmt.Errorf("expected an array or object, got %.20s", msg)
}

// asObject returns an object, or the first element of an array. An empty
// array is an error.
func asObject(msg json.RawMessage) (json.RawMessage, error) {
	if len(msg) == 0 {
		return nil, errors.New("empty value")
	}
	switch msg[0] {
	case '{':
		return msg, nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(msg, &items); err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return nil, errors.New("empty array where an object was expected")
		}
		first := bytes.TrimSpace(items[0])
		if len(first) == 0 || first[0] != '{' {
			return nil, fmt.Errorf("expected an object, got %.20s", first)
		}
		return first, nil
	}
	return nil, fmt.Errorf("expected an object, got %.20s", msg)
}

// number accepts a JSON number or a numeric string such as "20" or "¥-20.5".
type number float64

func (n *number) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*n = number(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("amount must be a number: %s", data)
	}
	s = strings.TrimFunc(s, func(r rune) bool {
		return !(r >= '0' && r <= '9') && r != '-' && r != '+' && r != '.'
	})
	s = strings.ReplaceAll(s, ",", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("amount must be a number: %w", err)
	}
	*n = number(f)
	return nil
}
