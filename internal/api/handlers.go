package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/aide/internal/assistant"
	"github.com/kalambet/aide/internal/extract"
	"github.com/kalambet/aide/internal/record"
	"github.com/kalambet/aide/internal/schedule"
	"github.com/kalambet/aide/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps holds what the HTTP handlers need.
type Deps struct {
	Service *assistant.Service
	Token   string
	// HTTPClient fetches schedule documents for URL imports.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type textRequest struct {
	Text string `json:"text"`
}

type importRequest struct {
	Text  string   `json:"text"`
	URL   string   `json:"url"`
	Pages []string `json:"pages"`
}

type noteRequest struct {
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

type deleteRequest struct {
	Indices []int         `json:"indices"`
	Token   storage.Token `json:"token"`
}

// NewHandler returns the assistant REST API. Every route except /health
// requires the bearer token.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = http.DefaultClient
	}

	r := chi.NewRouter()
	r.Use(RequestLog(deps.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/collections/{kind}", handleList(deps))
		r.Delete("/collections/{kind}/records", handleDelete(deps))

		r.Post("/events", handleAddEvents(deps))
		r.Post("/events/import", handleImportEvents(deps))
		r.Get("/events/upcoming", handleUpcoming(deps))

		r.Post("/finance", handleAddExpense(deps))
		r.Get("/finance/summary", handleFinanceSummary(deps))

		r.Post("/notes", handleAddNote(deps))
		r.Get("/notes/search", handleSearchNotes(deps))

		r.Post("/assist", handleAssist(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleList(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := record.ParseKind(chi.URLParam(r, "kind"))
		if err != nil {
			httpError(w, http.StatusNotFound, "not_found", "%v", err)
			return
		}
		listing, err := deps.Service.List(r.Context(), kind)
		if err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, listing)
	}
}

func handleDelete(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := record.ParseKind(chi.URLParam(r, "kind"))
		if err != nil {
			httpError(w, http.StatusNotFound, "not_found", "%v", err)
			return
		}
		var req deleteRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if len(req.Indices) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "indices is required and must not be empty")
			return
		}

		n, err := deps.Service.Delete(r.Context(), kind, req.Indices, req.Token)
		if err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, map[string]int{"deleted": n})
	}
}

func handleAddEvents(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		text, ok := decodeText(w, r)
		if !ok {
			return
		}
		events, err := deps.Service.AddEvents(r.Context(), text)
		if err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, map[string]any{"events": events})
	}
}

func handleImportEvents(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req importRequest
		if !decodeBody(w, r, &req) {
			return
		}

		var (
			res assistant.ImportResult
			err error
		)
		switch {
		case strings.TrimSpace(req.URL) != "":
			res, err = importURL(r.Context(), deps, req.URL)
		case len(req.Pages) > 0:
			res, err = deps.Service.ImportPages(r.Context(), req.Pages)
		case strings.TrimSpace(req.Text) != "":
			res, err = deps.Service.ImportEvents(r.Context(), req.Text)
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "one of text, pages or url is required")
			return
		}

		var fe *fetchError
		switch {
		case errors.As(err, &fe):
			httpError(w, http.StatusBadGateway, "api_error", "%v", fe.err)
		case errors.Is(err, schedule.ErrUnsupported):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		case err != nil:
			serviceError(w, deps.Logger, err)
		default:
			writeJSON(w, res)
		}
	}
}

// fetchError marks a failure to download or read an import document.
type fetchError struct{ err error }

func (e *fetchError) Error() string { return e.err.Error() }
func (e *fetchError) Unwrap() error { return e.err }

// importURL downloads a schedule document and imports its pages.
func importURL(ctx context.Context, deps Deps, url string) (assistant.ImportResult, error) {
	body, contentType, err := schedule.Fetch(ctx, deps.HTTPClient, url, schedule.MaxFetchSize)
	if err != nil {
		return assistant.ImportResult{}, &fetchError{err}
	}
	pages, err := schedule.Pages(contentType, body)
	if err != nil {
		if errors.Is(err, schedule.ErrUnsupported) {
			return assistant.ImportResult{}, err
		}
		return assistant.ImportResult{}, &fetchError{err}
	}
	deps.Logger.Info("importing schedule", "url", url, "pages", len(pages))
	return deps.Service.ImportPages(ctx, pages)
}

func handleUpcoming(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 10, 100)
		events, err := deps.Service.Upcoming(r.Context(), limit)
		if err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, events)
	}
}

func handleAddExpense(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		text, ok := decodeText(w, r)
		if !ok {
			return
		}
		entry, err := deps.Service.AddExpense(r.Context(), text)
		if err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, entry)
	}
}

func handleFinanceSummary(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sum, err := deps.Service.FinanceSummary(r.Context())
		if err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, sum)
	}
}

func handleAddNote(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req noteRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Content) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "content is required")
			return
		}
		n, err := deps.Service.AddNote(r.Context(), req.Content, req.Tags)
		if err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, n)
	}
}

func handleSearchNotes(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		notes, err := deps.Service.SearchNotes(r.Context(), r.URL.Query().Get("q"))
		if err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, notes)
	}
}

func handleAssist(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		text, ok := decodeText(w, r)
		if !ok {
			return
		}
		out, err := deps.Service.Assist(r.Context(), text)
		if err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, out)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func decodeText(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req textRequest
	if !decodeBody(w, r, &req) {
		return "", false
	}
	if strings.TrimSpace(req.Text) == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "text is required")
		return "", false
	}
	return req.Text, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// serviceError maps an assistant error onto a status and error type.
func serviceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, extract.ErrNotUnderstood):
		httpError(w, http.StatusUnprocessableEntity, "not_understood", "%v", err)
	case errors.Is(err, record.ErrInvalid), errors.Is(err, assistant.ErrIndexRange):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, assistant.ErrUnknownKind):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	case errors.Is(err, storage.ErrMalformed):
		httpError(w, http.StatusConflict, "malformed_collection", "%v", err)
	case errors.Is(err, storage.ErrConflict):
		httpError(w, http.StatusConflict, "conflict", "%v; reload and retry", err)
	default:
		logger.Error("storage operation failed", "error", err)
		httpError(w, http.StatusBadGateway, "storage_error", "%v", err)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
