package assistant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kalambet/aide/internal/extract"
	"github.com/kalambet/aide/internal/record"
	"github.com/kalambet/aide/internal/storage"
	"github.com/kalambet/aide/internal/storage/memory"
)

var now = time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC)

// fakeExtractor answers from fixed tables keyed by input text.
type fakeExtractor struct {
	mu       sync.Mutex
	calls    int
	events   map[string][]record.CalendarEvent
	finance  map[string]record.FinanceEntry
	classify map[string]extract.Result
}

func (f *fakeExtractor) count() {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

func (f *fakeExtractor) Calendar(ctx context.Context, text string, _ time.Time) ([]record.CalendarEvent, error) {
	f.count()
	if ev, ok := f.events[text]; ok {
		return ev, nil
	}
	return nil, fmt.Errorf("%w: %q", extract.ErrNotUnderstood, text)
}

func (f *fakeExtractor) Finance(ctx context.Context, text string, _ time.Time) (record.FinanceEntry, error) {
	f.count()
	if e, ok := f.finance[text]; ok {
		return e, nil
	}
	return record.FinanceEntry{}, extract.ErrNotUnderstood
}

func (f *fakeExtractor) Classify(ctx context.Context, text string, _ time.Time) (extract.Result, error) {
	f.count()
	if r, ok := f.classify[text]; ok {
		return r, nil
	}
	return extract.Result{}, extract.ErrNotUnderstood
}

func newService(t *testing.T, b storage.Backend, x *fakeExtractor) *Service {
	t.Helper()
	return New(Deps{
		Events:    storage.NewCollection[record.CalendarEvent](b, "events.json", nil),
		Finance:   storage.NewCollection[record.FinanceEntry](b, "finance.json", nil),
		Notes:     storage.NewCollection[record.Note](b, "notes.json", nil),
		Extractor: x,
		Clock:     func() time.Time { return now },
	})
}

func ev(t *testing.T, title, start string) record.CalendarEvent {
	t.Helper()
	lt, err := record.ParseLocalTime(start)
	if err != nil {
		t.Fatal(err)
	}
	return record.CalendarEvent{Title: title, Start: lt}
}

func readEvents(t *testing.T, b storage.Backend) []record.CalendarEvent {
	t.Helper()
	snap, err := storage.NewCollection[record.CalendarEvent](b, "events.json", nil).Read(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	return snap.Records
}

func TestAddEventsPrepends(t *testing.T) {
	b := memory.New()
	old := ev(t, "Old", "2025-03-01T09:00:00")
	seed, _ := storage.Encode([]record.CalendarEvent{old})
	b.Set("events.json", seed)

	dentist := ev(t, "Dentist", "2025-03-15T15:00:00")
	svc := newService(t, b, &fakeExtractor{events: map[string][]record.CalendarEvent{
		"dentist tomorrow afternoon 3": {dentist},
	}})

	got, err := svc.AddEvents(t.Context(), "dentist tomorrow afternoon 3")
	if err != nil {
		t.Fatalf("AddEvents: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d events", len(got))
	}
	if diff := cmp.Diff([]record.CalendarEvent{dentist, old}, readEvents(t, b)); diff != "" {
		t.Errorf("stored (-want +got):\n%s", diff)
	}
	commits := b.Commits()
	if commits[len(commits)-1].Message != "Add event" {
		t.Errorf("commit message = %q", commits[len(commits)-1].Message)
	}
}

func TestExtractionFailureWritesNothing(t *testing.T) {
	b := memory.New()
	svc := newService(t, b, &fakeExtractor{})

	if _, err := svc.AddEvents(t.Context(), "gibberish"); !errors.Is(err, extract.ErrNotUnderstood) {
		t.Errorf("AddEvents err = %v", err)
	}
	if _, err := svc.AddExpense(t.Context(), "gibberish"); !errors.Is(err, extract.ErrNotUnderstood) {
		t.Errorf("AddExpense err = %v", err)
	}
	if _, err := svc.Assist(t.Context(), "gibberish"); !errors.Is(err, extract.ErrNotUnderstood) {
		t.Errorf("Assist err = %v", err)
	}
	if n := len(b.Commits()); n != 0 {
		t.Errorf("%d writes after failed extraction", n)
	}
}

func TestImportEventsDedupes(t *testing.T) {
	b := memory.New()
	existing := ev(t, "Math", "2025-03-17T09:00:00")
	seed, _ := storage.Encode([]record.CalendarEvent{existing})
	b.Set("events.json", seed)

	fresh := ev(t, "Physics", "2025-03-18T14:00:00")
	svc := newService(t, b, &fakeExtractor{events: map[string][]record.CalendarEvent{
		"schedule": {existing, fresh},
		"again":    {existing},
	}})

	res, err := svc.ImportEvents(t.Context(), "schedule")
	if err != nil {
		t.Fatalf("ImportEvents: %v", err)
	}
	if len(res.Added) != 1 || len(res.Skipped) != 1 || res.Added[0].Title != "Physics" {
		t.Errorf("result = %+v", res)
	}
	if got := readEvents(t, b); len(got) != 2 || got[1].Title != "Physics" {
		t.Errorf("stored = %+v", got)
	}
	if msg := b.Commits()[0].Message; msg != "Import 1 events" {
		t.Errorf("commit message = %q", msg)
	}

	res, err = svc.ImportEvents(t.Context(), "again")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Added) != 0 || len(res.Skipped) != 1 {
		t.Errorf("result = %+v", res)
	}
	if n := len(b.Commits()); n != 1 {
		t.Errorf("all-duplicate import wrote: %d commits", n)
	}
}

func TestImportPagesKeepsOrderAndSkipsFailures(t *testing.T) {
	b := memory.New()
	x := &fakeExtractor{events: map[string][]record.CalendarEvent{
		"p1": {ev(t, "A", "2025-03-17T09:00:00")},
		"p3": {ev(t, "C", "2025-03-19T09:00:00"), ev(t, "A", "2025-03-17T09:00:00")},
		"p4": {ev(t, "D", "2025-03-20T09:00:00")},
	}}
	svc := newService(t, b, x)

	res, err := svc.ImportPages(t.Context(), []string{"p1", "unreadable", "p3", "p4", "p5-garbage"})
	if err != nil {
		t.Fatalf("ImportPages: %v", err)
	}
	var titles []string
	for _, e := range readEvents(t, b) {
		titles = append(titles, e.Title)
	}
	if diff := cmp.Diff([]string{"A", "C", "D"}, titles); diff != "" {
		t.Errorf("order (-want +got):\n%s", diff)
	}
	if len(res.Skipped) != 1 || x.calls != 5 {
		t.Errorf("skipped = %d, calls = %d", len(res.Skipped), x.calls)
	}
	if n := len(b.Commits()); n != 1 {
		t.Errorf("expected one write, got %d", n)
	}
}

func TestImportPagesAllFail(t *testing.T) {
	b := memory.New()
	svc := newService(t, b, &fakeExtractor{})
	if _, err := svc.ImportPages(t.Context(), []string{"x", "y"}); !errors.Is(err, extract.ErrNotUnderstood) {
		t.Errorf("err = %v", err)
	}
	if len(b.Commits()) != 0 {
		t.Error("wrote after failed import")
	}
}

func TestAddExpenseAppends(t *testing.T) {
	b := memory.New()
	first := record.FinanceEntry{Item: "salary", Amount: 3000, Category: "work", Date: record.NewDate(now)}
	seed, _ := storage.Encode([]record.FinanceEntry{first})
	b.Set("finance.json", seed)

	lunch := record.FinanceEntry{Item: "lunch", Amount: -20, Category: "food", Date: record.NewDate(now)}
	svc := newService(t, b, &fakeExtractor{finance: map[string]record.FinanceEntry{"lunch 20": lunch}})

	if _, err := svc.AddExpense(t.Context(), "lunch 20"); err != nil {
		t.Fatalf("AddExpense: %v", err)
	}
	sum, err := svc.FinanceSummary(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Count != 2 || sum.Balance != 2980 || sum.Expense != 20 {
		t.Errorf("summary = %+v", sum)
	}
	if msg := b.Commits()[0].Message; msg != "Add finance record" {
		t.Errorf("commit message = %q", msg)
	}
}

func TestAddNote(t *testing.T) {
	b := memory.New()
	svc := newService(t, b, &fakeExtractor{})

	n, err := svc.AddNote(t.Context(), "  buy oat milk ", []string{"shopping", "shopping", " "})
	if err != nil {
		t.Fatalf("AddNote: %v", err)
	}
	want := record.Note{Content: "buy oat milk", Tags: []string{"shopping"}, CreatedAt: record.NewLocalTime(now)}
	if diff := cmp.Diff(want, n); diff != "" {
		t.Errorf("note (-want +got):\n%s", diff)
	}
	if _, err := svc.AddNote(t.Context(), "   ", nil); !errors.Is(err, record.ErrInvalid) {
		t.Errorf("blank note err = %v", err)
	}

	found, err := svc.SearchNotes(t.Context(), "shopping")
	if err != nil || len(found) != 1 {
		t.Errorf("SearchNotes = %v, %v", found, err)
	}
}

func TestAssistDispatchesByKind(t *testing.T) {
	b := memory.New()
	entry := record.FinanceEntry{Item: "book", Amount: -12, Category: "shopping", Date: record.NewDate(now)}
	note := record.Note{Content: "ramen", Tags: []string{}, CreatedAt: record.NewLocalTime(now)}
	svc := newService(t, b, &fakeExtractor{classify: map[string]extract.Result{
		"gym":   {Kind: record.KindCalendar, Events: []record.CalendarEvent{ev(t, "Gym", "2025-03-14T20:00:00")}},
		"book":  {Kind: record.KindFinance, Finance: &entry},
		"ramen": {Kind: record.KindNote, Note: &note},
	}})

	for text, kind := range map[string]record.Kind{"gym": record.KindCalendar, "book": record.KindFinance, "ramen": record.KindNote} {
		out, err := svc.Assist(t.Context(), text)
		if err != nil {
			t.Fatalf("Assist(%q): %v", text, err)
		}
		if out.Kind != kind {
			t.Errorf("Assist(%q).Kind = %q", text, out.Kind)
		}
		l, err := svc.List(t.Context(), kind)
		if err != nil {
			t.Fatal(err)
		}
		if l.State != storage.StatePresent || l.Token == "" {
			t.Errorf("%s listing = %+v", kind, l)
		}
	}
}

func TestDelete(t *testing.T) {
	b := memory.New()
	seed, _ := storage.Encode([]record.CalendarEvent{
		ev(t, "A", "2025-03-17T09:00:00"),
		ev(t, "B", "2025-03-18T09:00:00"),
		ev(t, "C", "2025-03-19T09:00:00"),
	})
	token := b.Set("events.json", seed)
	svc := newService(t, b, &fakeExtractor{})

	if _, err := svc.Delete(t.Context(), record.KindCalendar, []int{3}, token); !errors.Is(err, ErrIndexRange) {
		t.Errorf("out of range err = %v", err)
	}
	if _, err := svc.Delete(t.Context(), record.KindCalendar, []int{0}, "stale"); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("stale token err = %v", err)
	}

	n, err := svc.Delete(t.Context(), record.KindCalendar, []int{2, 0, 2}, token)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d, want 2", n)
	}
	if got := readEvents(t, b); len(got) != 1 || got[0].Title != "B" {
		t.Errorf("remaining = %+v", got)
	}
	if msg := b.Commits()[0].Message; msg != "Delete 2 records" {
		t.Errorf("commit message = %q", msg)
	}

	if _, err := svc.Delete(t.Context(), record.Kind("todo"), []int{0}, ""); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("unknown kind err = %v", err)
	}
}

func TestMalformedCollectionIsKept(t *testing.T) {
	b := memory.New()
	// One bad element makes the whole array undecodable.
	garbage := []byte(`[{"item":"rent","amount":-1200,"category":"housing","date":"2025-03-01"},` +
		`{"item":"salary","amount":"10000","category":"salary","date":"2025-03-02"}]`)
	b.Set("finance.json", garbage)
	x := &fakeExtractor{finance: map[string]record.FinanceEntry{
		"paid 35 for a taxi": {Item: "taxi", Amount: -35, Category: "transport", Date: record.NewDate(now)},
	}}
	svc := newService(t, b, x)

	l, err := svc.List(t.Context(), record.KindFinance)
	if err != nil {
		t.Fatal(err)
	}
	if l.State != storage.StateMalformed || l.Token != "" || l.Problem == "" {
		t.Errorf("listing = %+v", l)
	}

	if _, err := svc.AddExpense(t.Context(), "paid 35 for a taxi"); !errors.Is(err, storage.ErrMalformed) {
		t.Fatalf("AddExpense err = %v, want ErrMalformed", err)
	}
	if _, err := svc.Delete(t.Context(), record.KindFinance, []int{0}, ""); !errors.Is(err, storage.ErrMalformed) {
		t.Errorf("Delete err = %v, want ErrMalformed", err)
	}
	if len(b.Commits()) != 0 {
		t.Errorf("wrote over malformed content: %+v", b.Commits())
	}
	blob, _ := b.Fetch(t.Context(), "finance.json")
	if string(blob.Data) != string(garbage) {
		t.Errorf("content changed to %s", blob.Data)
	}
}

func TestUpcoming(t *testing.T) {
	b := memory.New()
	seed, _ := storage.Encode([]record.CalendarEvent{
		ev(t, "Later", "2025-03-20T09:00:00"),
		ev(t, "Past", "2025-03-13T09:00:00"),
		ev(t, "Soon", "2025-03-14T11:00:00"),
	})
	b.Set("events.json", seed)
	svc := newService(t, b, &fakeExtractor{})

	got, err := svc.Upcoming(t.Context(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Title != "Soon" {
		t.Errorf("Upcoming = %+v", got)
	}
}

// failingBackend fails every call with err.
type failingBackend struct{ err error }

func (f failingBackend) Fetch(context.Context, string) (storage.Blob, error) {
	return storage.Blob{}, f.err
}

func (f failingBackend) Put(context.Context, string, []byte, storage.Token, string) (storage.Token, error) {
	return "", f.err
}

func TestReadFailureIsReturned(t *testing.T) {
	boom := errors.New("connection reset")
	svc := newService(t, failingBackend{boom}, &fakeExtractor{finance: map[string]record.FinanceEntry{
		"x": {Item: "x", Amount: -1, Category: "other", Date: record.NewDate(now)},
	}})
	if _, err := svc.AddExpense(t.Context(), "x"); !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
	if _, err := svc.FinanceSummary(t.Context()); !errors.Is(err, boom) {
		t.Errorf("summary err = %v", err)
	}
}
