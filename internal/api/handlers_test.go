package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/aide/internal/assistant"
	"github.com/kalambet/aide/internal/extract"
	"github.com/kalambet/aide/internal/record"
	"github.com/kalambet/aide/internal/storage"
	"github.com/kalambet/aide/internal/storage/memory"
)

const testToken = "test-token-12345"

var testNow = time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC)

// stubExtractor returns fixed results, or ErrNotUnderstood for unknown text.
type stubExtractor struct {
	events   map[string][]record.CalendarEvent
	finance  map[string]record.FinanceEntry
	classify map[string]extract.Result
}

func (s *stubExtractor) Calendar(_ context.Context, text string, _ time.Time) ([]record.CalendarEvent, error) {
	if ev, ok := s.events[text]; ok {
		return ev, nil
	}
	return nil, extract.ErrNotUnderstood
}

func (s *stubExtractor) Finance(_ context.Context, text string, _ time.Time) (record.FinanceEntry, error) {
	if f, ok := s.finance[text]; ok {
		return f, nil
	}
	return record.FinanceEntry{}, extract.ErrNotUnderstood
}

func (s *stubExtractor) Classify(_ context.Context, text string, _ time.Time) (extract.Result, error) {
	if r, ok := s.classify[text]; ok {
		return r, nil
	}
	return extract.Result{}, extract.ErrNotUnderstood
}

func mustEvent(t *testing.T, title, start string) record.CalendarEvent {
	t.Helper()
	lt, err := record.ParseLocalTime(start)
	if err != nil {
		t.Fatal(err)
	}
	return record.CalendarEvent{Title: title, Start: lt}
}

func newTestService(b storage.Backend, x assistant.Extractor) *assistant.Service {
	return assistant.New(assistant.Deps{
		Events:    storage.NewCollection[record.CalendarEvent](b, "events.json", nil),
		Finance:   storage.NewCollection[record.FinanceEntry](b, "finance.json", nil),
		Notes:     storage.NewCollection[record.Note](b, "notes.json", nil),
		Extractor: x,
		Clock:     func() time.Time { return testNow },
	})
}

func setupHandler(t *testing.T, x *stubExtractor) (http.Handler, *memory.Store) {
	t.Helper()
	b := memory.New()
	h := NewHandler(Deps{Service: newTestService(b, x), Token: testToken})
	return h, b
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func errorType(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body is not JSON: %s", rr.Body.String())
	}
	return body.Error.Type
}

func TestHealth_NoAuthAndRequestID(t *testing.T) {
	h, _ := setupHandler(t, &stubExtractor{})
	rr := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"ok"`) {
		t.Fatalf("health = %d %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc")
	if got := serve(h, req).Header().Get("X-Request-ID"); got != "abc" {
		t.Errorf("request id = %q, want caller's", got)
	}
}

func TestAuthRequired(t *testing.T) {
	h, _ := setupHandler(t, &stubExtractor{})
	for _, token := range []string{"", "wrong"} {
		rr := serve(h, authReq(http.MethodGet, "/collections/notes", "", token))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("token %q: status = %d", token, rr.Code)
		}
	}
}

func TestAddEventsAndList(t *testing.T) {
	h, _ := setupHandler(t, &stubExtractor{events: map[string][]record.CalendarEvent{
		"dentist at 3": {mustEvent(t, "Dentist", "2025-03-15T15:00:00")},
	}})

	rr := serve(h, authReq(http.MethodPost, "/events", `{"text":"dentist at 3"}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	rr = serve(h, authReq(http.MethodGet, "/collections/events", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	var listing struct {
		Kind    string                 `json:"kind"`
		State   string                 `json:"state"`
		Token   string                 `json:"token"`
		Records []record.CalendarEvent `json:"records"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &listing); err != nil {
		t.Fatal(err)
	}
	if listing.Kind != "calendar" || listing.State != "present" || listing.Token == "" || len(listing.Records) != 1 {
		t.Errorf("listing = %+v", listing)
	}
}

func TestListUnknownKind(t *testing.T) {
	h, _ := setupHandler(t, &stubExtractor{})
	rr := serve(h, authReq(http.MethodGet, "/collections/todos", "", testToken))
	if rr.Code != http.StatusNotFound || errorType(t, rr) != "not_found" {
		t.Errorf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
}

func TestNotUnderstoodIs422(t *testing.T) {
	h, b := setupHandler(t, &stubExtractor{})
	for _, path := range []string{"/events", "/finance", "/assist"} {
		rr := serve(h, authReq(http.MethodPost, path, `{"text":"blah"}`, testToken))
		if rr.Code != http.StatusUnprocessableEntity || errorType(t, rr) != "not_understood" {
			t.Errorf("%s: status = %d; body = %s", path, rr.Code, rr.Body.String())
		}
	}
	if len(b.Commits()) != 0 {
		t.Error("failed extraction wrote to storage")
	}
}

func TestBadRequests(t *testing.T) {
	h, _ := setupHandler(t, &stubExtractor{})
	cases := []struct{ method, path, body string }{
		{http.MethodPost, "/events", `{"text":"  "}`},
		{http.MethodPost, "/finance", `not json`},
		{http.MethodPost, "/notes", `{"tags":["x"]}`},
		{http.MethodPost, "/events/import", `{}`},
		{http.MethodDelete, "/collections/notes/records", `{"indices":[]}`},
	}
	for _, c := range cases {
		rr := serve(h, authReq(c.method, c.path, c.body, testToken))
		if rr.Code != http.StatusBadRequest || errorType(t, rr) != "invalid_request_error" {
			t.Errorf("%s %s %s: status = %d", c.method, c.path, c.body, rr.Code)
		}
	}
}

func TestFinanceFlow(t *testing.T) {
	h, _ := setupHandler(t, &stubExtractor{finance: map[string]record.FinanceEntry{
		"lunch 20":    {Item: "lunch", Amount: -20, Category: "food", Date: record.NewDate(testNow)},
		"salary 3000": {Item: "salary", Amount: 3000, Category: "work", Date: record.NewDate(testNow)},
	}})
	for _, text := range []string{"lunch 20", "salary 3000"} {
		rr := serve(h, authReq(http.MethodPost, "/finance", `{"text":"`+text+`"}`, testToken))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: status = %d; body = %s", text, rr.Code, rr.Body.String())
		}
	}

	rr := serve(h, authReq(http.MethodGet, "/finance/summary", "", testToken))
	var sum record.Summary
	if err := json.Unmarshal(rr.Body.Bytes(), &sum); err != nil {
		t.Fatal(err)
	}
	if sum.Balance != 2980 || sum.Expense != 20 || sum.Income != 3000 || len(sum.ByCategory) != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestNotesFlow(t *testing.T) {
	h, _ := setupHandler(t, &stubExtractor{})
	rr := serve(h, authReq(http.MethodPost, "/notes", `{"content":"try ramen","tags":["food"]}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	serve(h, authReq(http.MethodPost, "/notes", `{"content":"call mom"}`, testToken))

	rr = serve(h, authReq(http.MethodGet, "/notes/search?q=food", "", testToken))
	var notes []record.Note
	if err := json.Unmarshal(rr.Body.Bytes(), &notes); err != nil {
		t.Fatal(err)
	}
	if len(notes) != 1 || notes[0].Content != "try ramen" {
		t.Errorf("search = %+v", notes)
	}
}

func TestDeleteConflictAndRange(t *testing.T) {
	h, b := setupHandler(t, &stubExtractor{})
	seed, _ := storage.Encode([]record.Note{{Content: "a", Tags: []string{}}, {Content: "b", Tags: []string{}}})
	token := b.Set("notes.json", seed)

	rr := serve(h, authReq(http.MethodDelete, "/collections/notes/records", `{"indices":[0],"token":"stale"}`, testToken))
	if rr.Code != http.StatusConflict || errorType(t, rr) != "conflict" {
		t.Errorf("stale: status = %d", rr.Code)
	}
	rr = serve(h, authReq(http.MethodDelete, "/collections/notes/records", `{"indices":[5]}`, testToken))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("range: status = %d", rr.Code)
	}
	rr = serve(h, authReq(http.MethodDelete, "/collections/notes/records", `{"indices":[1],"token":"`+string(token)+`"}`, testToken))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"deleted":1`) {
		t.Errorf("delete: status = %d; body = %s", rr.Code, rr.Body.String())
	}
}

func TestMalformedCollectionIs409(t *testing.T) {
	h, b := setupHandler(t, &stubExtractor{})
	b.Set("notes.json", []byte(`[{"content":"keep me","tags":[]}, 7]`))

	rr := serve(h, authReq(http.MethodPost, "/notes", `{"content":"new","tags":[]}`, testToken))
	if rr.Code != http.StatusConflict || errorType(t, rr) != "malformed_collection" {
		t.Errorf("add note: status = %d; body = %s", rr.Code, rr.Body.String())
	}
	if len(b.Commits()) != 0 {
		t.Error("malformed collection was overwritten")
	}
}

func TestImportFromURL(t *testing.T) {
	doc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/schedule.html":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<p>Math Mon 09:00</p>"))
		case "/logo.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte{0x89, 'P', 'N', 'G'})
		default:
			http.NotFound(w, r)
		}
	}))
	defer doc.Close()

	b := memory.New()
	svc := newTestService(b, &stubExtractor{events: map[string][]record.CalendarEvent{
		"Math Mon 09:00": {mustEvent(t, "Math", "2025-03-17T09:00:00")},
	}})
	h := NewHandler(Deps{Service: svc, Token: testToken, HTTPClient: doc.Client()})

	rr := serve(h, authReq(http.MethodPost, "/events/import", `{"url":"`+doc.URL+`/schedule.html"}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var res assistant.ImportResult
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Added) != 1 || len(res.Skipped) != 0 {
		t.Errorf("result = %+v", res)
	}

	rr = serve(h, authReq(http.MethodPost, "/events/import", `{"url":"`+doc.URL+`/schedule.html"}`, testToken))
	if !strings.Contains(rr.Body.String(), `"added":[]`) {
		t.Errorf("second import body = %s", rr.Body.String())
	}

	rr = serve(h, authReq(http.MethodPost, "/events/import", `{"url":"`+doc.URL+`/logo.png"}`, testToken))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("png: status = %d", rr.Code)
	}
	rr = serve(h, authReq(http.MethodPost, "/events/import", `{"url":"`+doc.URL+`/missing"}`, testToken))
	if rr.Code != http.StatusBadGateway || errorType(t, rr) != "api_error" {
		t.Errorf("missing: status = %d", rr.Code)
	}
}

// brokenBackend fails every read.
type brokenBackend struct{}

func (brokenBackend) Fetch(context.Context, string) (storage.Blob, error) {
	return storage.Blob{}, errors.New("connection refused")
}

func (brokenBackend) Put(context.Context, string, []byte, storage.Token, string) (storage.Token, error) {
	return "", errors.New("connection refused")
}

func TestStorageFailureIs502(t *testing.T) {
	h := NewHandler(Deps{Service: newTestService(brokenBackend{}, &stubExtractor{}), Token: testToken})
	rr := serve(h, authReq(http.MethodGet, "/finance/summary", "", testToken))
	if rr.Code != http.StatusBadGateway || errorType(t, rr) != "storage_error" {
		t.Errorf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
}

func TestBodyLimit(t *testing.T) {
	h, _ := setupHandler(t, &stubExtractor{})
	big := `{"text":"` + strings.Repeat("x", maxRequestBodySize) + `"}`
	rr := serve(h, authReq(http.MethodPost, "/assist", big, testToken))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rr.Code)
	}
}
