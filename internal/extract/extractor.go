// Package extract turns free-form text into validated records through a
// single language-model call per operation.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/kalambet/aide/internal/llm"
	"github.com/kalambet/aide/internal/record"
)

// DefaultTimeout bounds a single extraction call.
const DefaultTimeout = 60 * time.Second

// ErrNotUnderstood is wrapped by every extraction failure. Callers never
// receive partial data alongside it.
var ErrNotUnderstood = errors.New("could not understand the text")

func notUnderstood(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotUnderstood, fmt.Sprintf(format, args...))
}

// Extractor runs extraction prompts against a Completer.
type Extractor struct {
	llm     llm.Completer
	timeout time.Duration
	logger  *slog.Logger
}

// New returns an Extractor. A zero timeout uses DefaultTimeout and a nil
// logger uses slog.Default().
func New(c llm.Completer, timeout time.Duration, logger *slog.Logger) *Extractor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{llm: c, timeout: timeout, logger: logger}
}

func (e *Extractor) complete(ctx context.Context, prompt string, shape llm.Shape) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.llm.Complete(ctx, llm.Request{System: systemPrompt, Prompt: prompt, Shape: shape})
	if err != nil {
		e.logger.Warn("extraction call failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrNotUnderstood, err)
	}
	msg, err := parseJSON(raw)
	if err != nil {
		e.logger.Warn("extraction reply is not JSON", "error", err, "response", raw)
		return nil, fmt.Errorf("%w: %w", ErrNotUnderstood, err)
	}
	return msg, nil
}

// financeReply is the shape the model is asked for.
type financeReply struct {
	Item     string `json:"item"`
	Amount   number `json:"amount"`
	Type     string `json:"type"`
	Category string `json:"category"`
	Date     string `json:"date"`
}

func (r financeReply) entry(now time.Time) (record.FinanceEntry, error) {
	amount := float64(r.Amount)
	// An explicit type wins; otherwise the sign the model sent stands.
	switch strings.ToLower(strings.TrimSpace(r.Type)) {
	case "income":
		amount = math.Abs(amount)
	case "expense":
		amount = -math.Abs(amount)
	}

	date := record.NewDate(now)
	if strings.TrimSpace(r.Date) != "" {
		d, err := record.ParseDate(r.Date)
		if err != nil {
			return record.FinanceEntry{}, err
		}
		date = d
	}

	f := record.FinanceEntry{Item: r.Item, Amount: amount, Category: r.Category, Date: date}.Normalize()
	if err := f.Validate(); err != nil {
		return record.FinanceEntry{}, err
	}
	return f, nil
}

// Finance extracts one finance entry. A reply "type" of income or expense
// fixes the sign; without one the reply's own sign is kept. A missing date
// is today.
func (e *Extractor) Finance(ctx context.Context, text string, now time.Time) (record.FinanceEntry, error) {
	if strings.TrimSpace(text) == "" {
		return record.FinanceEntry{}, notUnderstood("empty text")
	}
	msg, err := e.complete(ctx, financePrompt(text, now), llm.ShapeObject)
	if err != nil {
		return record.FinanceEntry{}, err
	}
	return e.finance(msg, now)
}

func (e *Extractor) finance(msg json.RawMessage, now time.Time) (record.FinanceEntry, error) {
	obj, err := asObject(msg)
	if err != nil {
		return record.FinanceEntry{}, notUnderstood("finance reply: %v", err)
	}
	var reply financeReply
	if err := json.Unmarshal(obj, &reply); err != nil {
		return record.FinanceEntry{}, notUnderstood("finance reply: %v", err)
	}
	f, err := reply.entry(now)
	if err != nil {
		e.logger.Warn("finance reply rejected", "error", err, "response", string(obj))
		return record.FinanceEntry{}, notUnderstood("finance reply: %v", err)
	}
	return f, nil
}

// Calendar extracts one or more events. Invalid events are dropped; an empty
// result is a failure.
func (e *Extractor) Calendar(ctx context.Context, text string, now time.Time) ([]record.CalendarEvent, error) {
	if strings.TrimSpace(text) == "" {
		return nil, notUnderstood("empty text")
	}
	msg, err := e.complete(ctx, calendarPrompt(text, now), llm.ShapeArray)
	if err != nil {
		return nil, err
	}
	return e.calendar(msg)
}

func (e *Extractor) calendar(msg json.RawMessage) ([]record.CalendarEvent, error) {
	items, err := asArray(msg)
	if err != nil {
		return nil, notUnderstood("calendar reply: %v", err)
	}

	events := make([]record.CalendarEvent, 0, len(items))
	for i, item := range items {
		var ev record.CalendarEvent
		if err := json.Unmarshal(item, &ev); err != nil {
			e.logger.Warn("dropping undecodable event", "index", i, "error", err)
			continue
		}
		ev.Title = strings.TrimSpace(ev.Title)
		ev.Location = strings.TrimSpace(ev.Location)
		if err := ev.Validate(); err != nil {
			e.logger.Warn("dropping invalid event", "index", i, "error", err)
			continue
		}
		events = append(events, ev)
	}
	if len(events) == 0 {
		return nil, notUnderstood("no events found")
	}
	return events, nil
}

// Result is the outcome of Classify. Exactly one of Events, Finance or Note
// is set, according to Kind.
type Result struct {
	Kind    record.Kind
	Events  []record.CalendarEvent
	Finance *record.FinanceEntry
	Note    *record.Note
}

type classifyReply struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

type noteReply struct {
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// Classify decides the record kind and extracts it in one round trip.
func (e *Extractor) Classify(ctx context.Context, text string, now time.Time) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, notUnderstood("empty text")
	}
	msg, err := e.complete(ctx, classifyPrompt(text, now), llm.ShapeObject)
	if err != nil {
		return Result{}, err
	}
	obj, err := asObject(msg)
	if err != nil {
		return Result{}, notUnderstood("classify reply: %v", err)
	}

	var reply classifyReply
	if err := json.Unmarshal(obj, &reply); err != nil {
		return Result{}, notUnderstood("classify reply: %v", err)
	}
	kind, err := record.ParseKind(reply.Kind)
	if err != nil {
		return Result{}, notUnderstood("classify reply: %v", err)
	}
	if len(reply.Payload) == 0 || string(reply.Payload) == "null" {
		return Result{}, notUnderstood("classify reply has no payload")
	}

	switch kind {
	case record.KindCalendar:
		events, err := e.calendar(reply.Payload)
		if err != nil {
			return Result{}, err
		}
		return Result{Kind: kind, Events: events}, nil
	case record.KindFinance:
		f, err := e.finance(reply.Payload, now)
		if err != nil {
			return Result{}, err
		}
		return Result{Kind: kind, Finance: &f}, nil
	default:
		payload, err := asObject(reply.Payload)
		if err != nil {
			return Result{}, notUnderstood("note payload: %v", err)
		}
		var nr noteReply
		if err := json.Unmarshal(payload, &nr); err != nil {
			return Result{}, notUnderstood("note payload: %v", err)
		}
		n := record.Note{Content: nr.Content, Tags: nr.Tags, CreatedAt: record.NewLocalTime(now)}.Normalize()
		if err := n.Validate(); err != nil {
			return Result{}, notUnderstood("note payload: %v", err)
		}
		return Result{Kind: kind, Note: &n}, nil
	}
}
