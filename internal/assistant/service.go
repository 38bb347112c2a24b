// Package assistant runs the read, extract, write cycle behind every user
// action. Each operation performs exactly one collection read and at most one
// conditional write.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/aide/internal/extract"
	"github.com/kalambet/aide/internal/record"
	"github.com/kalambet/aide/internal/storage"
)

// pageConcurrency bounds parallel extraction calls in ImportPages.
const pageConcurrency = 4

var (
	// ErrUnknownKind is returned for a kind with no collection.
	ErrUnknownKind = errors.New("unknown record kind")
	// ErrIndexRange is returned by Delete for an index outside the collection.
	ErrIndexRange = errors.New("record index out of range")
)

// Extractor turns text into records.
type Extractor interface {
	Finance(ctx context.Context, text string, now time.Time) (record.FinanceEntry, error)
	Calendar(ctx context.Context, text string, now time.Time) ([]record.CalendarEvent, error)
	Classify(ctx context.Context, text string, now time.Time) (extract.Result, error)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Events    *storage.Collection[record.CalendarEvent]
	Finance   *storage.Collection[record.FinanceEntry]
	Notes     *storage.Collection[record.Note]
	Extractor Extractor
	// Clock defaults to time.Now.
	Clock  func() time.Time
	Logger *slog.Logger
}

// Service implements the assistant operations.
type Service struct {
	events    *storage.Collection[record.CalendarEvent]
	finance   *storage.Collection[record.FinanceEntry]
	notes     *storage.Collection[record.Note]
	extractor Extractor
	now       func() time.Time
	logger    *slog.Logger
}

// New returns a Service wired to deps.
func New(deps Deps) *Service {
	s := &Service{
		events:    deps.Events,
		finance:   deps.Finance,
		notes:     deps.Notes,
		extractor: deps.Extractor,
		now:       deps.Clock,
		logger:    deps.Logger,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// AddEvents extracts events from text and puts them at the front of the
// events collection.
func (s *Service) AddEvents(ctx context.Context, text string) ([]record.CalendarEvent, error) {
	events, err := s.extractor.Calendar(ctx, text, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.prependEvents(ctx, events); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Service) prependEvents(ctx context.Context, events []record.CalendarEvent) error {
	snap, err := s.events.ReadForUpdate(ctx)
	if err != nil {
		return err
	}
	_, err = s.events.Write(ctx, record.Prepend(snap.Records, events...), snap.Token, "Add event")
	if err != nil {
		return err
	}
	s.logger.Info("events added", "count", len(events))
	return nil
}

// ImportResult reports which candidate events were stored.
type ImportResult struct {
	Added   []record.CalendarEvent `json:"added"`
	Skipped []record.CalendarEvent `json:"skipped"`
}

// ImportEvents extracts events from text and appends those not already
// present. Nothing is written when every candidate is a duplicate.
func (s *Service) ImportEvents(ctx context.Context, text string) (ImportResult, error) {
	candidates, err := s.extractor.Calendar(ctx, text, s.now())
	if err != nil {
		return ImportResult{}, err
	}
	return s.merge(ctx, candidates)
}

// ImportPages extracts every page concurrently and merges the events in page
// order. Pages that cannot be understood are skipped; if none can, the
// result is extract.ErrNotUnderstood.
func (s *Service) ImportPages(ctx context.Context, pages []string) (ImportResult, error) {
	now := s.now()
	found := make([][]record.CalendarEvent, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pageConcurrency)
	for i, page := range pages {
		g.Go(func() error {
			events, err := s.extractor.Calendar(gctx, page, now)
			if err != nil {
				if errors.Is(err, extract.ErrNotUnderstood) {
					s.logger.Warn("skipping schedule page", "page", i+1, "error", err)
					return nil
				}
				return fmt.Errorf("page %d: %w", i+1, err)
			}
			found[i] = events
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ImportResult{}, err
	}

	var candidates []record.CalendarEvent
	for _, events := range found {
		candidates = append(candidates, events...)
	}
	if len(candidates) == 0 {
		return ImportResult{}, fmt.Errorf("%w: no events in %d pages", extract.ErrNotUnderstood, len(pages))
	}
	return s.merge(ctx, candidates)
}

func (s *Service) merge(ctx context.Context, candidates []record.CalendarEvent) (ImportResult, error) {
	snap, err := s.events.ReadForUpdate(ctx)
	if err != nil {
		return ImportResult{}, err
	}
	merged, added, skipped := record.MergeNew(snap.Records, candidates)
	res := ImportResult{Added: nonNil(added), Skipped: nonNil(skipped)}
	if len(added) == 0 {
		s.logger.Info("import found nothing new", "skipped", len(skipped))
		return res, nil
	}

	msg := fmt.Sprintf("Import %d events", len(added))
	if _, err := s.events.Write(ctx, merged, snap.Token, msg); err != nil {
		return ImportResult{}, err
	}
	s.logger.Info("events imported", "added", len(added), "skipped", len(skipped))
	return res, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// AddExpense extracts one finance entry from text and appends it.
func (s *Service) AddExpense(ctx context.Context, text string) (record.FinanceEntry, error) {
	entry, err := s.extractor.Finance(ctx, text, s.now())
	if err != nil {
		return record.FinanceEntry{}, err
	}
	if err := s.appendFinance(ctx, entry); err != nil {
		return record.FinanceEntry{}, err
	}
	return entry, nil
}

func (s *Service) appendFinance(ctx context.Context, entry record.FinanceEntry) error {
	snap, err := s.finance.ReadForUpdate(ctx)
	if err != nil {
		return err
	}
	records := append(snap.Records[:len(snap.Records):len(snap.Records)], entry)
	if _, err := s.finance.Write(ctx, records, snap.Token, "Add finance record"); err != nil {
		return err
	}
	s.logger.Info("finance entry added", "item", entry.Item, "amount", entry.Amount)
	return nil
}

// AddNote stores a manually entered note, stamped with the current time.
func (s *Service) AddNote(ctx context.Context, content string, tags []string) (record.Note, error) {
	n := record.Note{Content: content, Tags: tags, CreatedAt: record.NewLocalTime(s.now())}.Normalize()
	if err := n.Validate(); err != nil {
		return record.Note{}, err
	}
	if err := s.prependNote(ctx, n); err != nil {
		return record.Note{}, err
	}
	return n, nil
}

func (s *Service) prependNote(ctx context.Context, n record.Note) error {
	snap, err := s.notes.ReadForUpdate(ctx)
	if err != nil {
		return err
	}
	if _, err := s.notes.Write(ctx, record.Prepend(snap.Records, n), snap.Token, "Add note"); err != nil {
		return err
	}
	s.logger.Info("note added", "tags", len(n.Tags))
	return nil
}

// Outcome is what Assist stored. Exactly one of Events, Finance or Note is
// set, according to Kind.
type Outcome struct {
	Kind    record.Kind            `json:"kind"`
	Events  []record.CalendarEvent `json:"events,omitempty"`
	Finance *record.FinanceEntry   `json:"finance,omitempty"`
	Note    *record.Note           `json:"note,omitempty"`
}

// Assist classifies text and stores it in the collection of its kind.
func (s *Service) Assist(ctx context.Context, text string) (Outcome, error) {
	res, err := s.extractor.Classify(ctx, text, s.now())
	if err != nil {
		return Outcome{}, err
	}

	switch res.Kind {
	case record.KindCalendar:
		err = s.prependEvents(ctx, res.Events)
	case record.KindFinance:
		err = s.appendFinance(ctx, *res.Finance)
	case record.KindNote:
		err = s.prependNote(ctx, *res.Note)
	default:
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownKind, res.Kind)
	}
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: res.Kind, Events: res.Events, Finance: res.Finance, Note: res.Note}, nil
}

// Delete removes the records at indices from the collection of kind. A
// non-empty seen token must match the collection's current token.
func (s *Service) Delete(ctx context.Context, kind record.Kind, indices []int, seen storage.Token) (int, error) {
	switch kind {
	case record.KindCalendar:
		return deleteFrom(ctx, s, s.events, indices, seen)
	case record.KindFinance:
		return deleteFrom(ctx, s, s.finance, indices, seen)
	case record.KindNote:
		return deleteFrom(ctx, s, s.notes, indices, seen)
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

func deleteFrom[T storage.Record](ctx context.Context, s *Service, c *storage.Collection[T], indices []int, seen storage.Token) (int, error) {
	snap, err := c.ReadForUpdate(ctx)
	if err != nil {
		return 0, err
	}
	if seen != "" && seen != snap.Token {
		return 0, fmt.Errorf("deleting from %s: %w", c.Path(), storage.ErrConflict)
	}

	distinct := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(snap.Records) {
			return 0, fmt.Errorf("%w: %d (collection has %d records)", ErrIndexRange, i, len(snap.Records))
		}
		distinct[i] = struct{}{}
	}
	if len(distinct) == 0 {
		return 0, nil
	}

	kept := record.RemoveIndices(snap.Records, indices)
	msg := fmt.Sprintf("Delete %d records", len(distinct))
	if _, err := c.Write(ctx, kept, snap.Token, msg); err != nil {
		return 0, err
	}
	s.logger.Info("records deleted", "path", c.Path(), "count", len(distinct))
	return len(distinct), nil
}

// Listing is the content of one collection.
type Listing struct {
	Kind    record.Kind   `json:"kind"`
	State   storage.State `json:"state"`
	Token   storage.Token `json:"token"`
	Problem string        `json:"problem,omitempty"`
	Records any           `json:"records"`
}

// List returns every record of kind with the token needed to modify it.
func (s *Service) List(ctx context.Context, kind record.Kind) (Listing, error) {
	switch kind {
	case record.KindCalendar:
		return listing(ctx, kind, s.events)
	case record.KindFinance:
		return listing(ctx, kind, s.finance)
	case record.KindNote:
		return listing(ctx, kind, s.notes)
	}
	return Listing{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

func listing[T storage.Record](ctx context.Context, kind record.Kind, c *storage.Collection[T]) (Listing, error) {
	snap, err := c.Read(ctx)
	if err != nil {
		return Listing{}, err
	}
	return Listing{Kind: kind, State: snap.State, Token: snap.Token, Problem: snap.Problem, Records: snap.Records}, nil
}

// FinanceSummary totals the finance collection.
func (s *Service) FinanceSummary(ctx context.Context) (record.Summary, error) {
	snap, err := s.finance.Read(ctx)
	if err != nil {
		return record.Summary{}, err
	}
	return record.Summarize(snap.Records), nil
}

// SearchNotes returns the notes matching q.
func (s *Service) SearchNotes(ctx context.Context, q string) ([]record.Note, error) {
	snap, err := s.notes.Read(ctx)
	if err != nil {
		return nil, err
	}
	return record.SearchNotes(snap.Records, q), nil
}

// Upcoming returns up to limit events that have not started yet.
func (s *Service) Upcoming(ctx context.Context, limit int) ([]record.CalendarEvent, error) {
	snap, err := s.events.Read(ctx)
	if err != nil {
		return nil, err
	}
	return record.Upcoming(snap.Records, s.now(), limit), nil
}
