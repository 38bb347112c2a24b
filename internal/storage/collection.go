package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Snapshot is the result of reading a collection.
type Snapshot[T any] struct {
	Records []T
	Token   Token
	State   State
	// Problem describes why a malformed collection could not be decoded.
	Problem string
}

// Collection is a typed view of one backend path.
type Collection[T Record] struct {
	backend Backend
	path    string
	logger  *slog.Logger
}

// NewCollection binds path on backend. A nil logger uses slog.Default().
func NewCollection[T Record](backend Backend, path string, logger *slog.Logger) *Collection[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collection[T]{backend: backend, path: path, logger: logger}
}

// Path returns the backend path the collection is bound to.
func (c *Collection[T]) Path() string { return c.path }

// Read fetches and decodes the collection. A missing collection and
// malformed content are reported through Snapshot.State, not as errors.
// Malformed content reads as empty with no token, so a write based on it is
// a create that the backend rejects instead of an overwrite.
func (c *Collection[T]) Read(ctx context.Context) (Snapshot[T], error) {
	blob, err := c.backend.Fetch(ctx, c.path)
	if errors.Is(err, ErrNotExist) {
		return Snapshot[T]{Records: []T{}, State: StateMissing}, nil
	}
	if err != nil {
		return Snapshot[T]{Records: []T{}}, fmt.Errorf("reading %s: %w", c.path, err)
	}

	records, state, problem := Decode[T](blob.Data)
	if state == StateMalformed {
		c.logger.Warn("collection content is malformed, treating as empty",
			"path", c.path, "token", string(blob.Token), "problem", problem)
		return Snapshot[T]{Records: records, State: state, Problem: problem}, nil
	}
	return Snapshot[T]{Records: records, Token: blob.Token, State: state, Problem: problem}, nil
}

// ReadForUpdate is Read for callers about to write the collection back.
// Malformed content is an error wrapping ErrMalformed.
func (c *Collection[T]) ReadForUpdate(ctx context.Context) (Snapshot[T], error) {
	snap, err := c.Read(ctx)
	if err != nil {
		return snap, err
	}
	if snap.State == StateMalformed {
		return snap, fmt.Errorf("%w: %s: %s; fix or remove it before adding records", ErrMalformed, c.path, snap.Problem)
	}
	return snap, nil
}

// Load returns the records and token, or an empty slice and empty token on
// any failure. Failures are logged, never returned.
func (c *Collection[T]) Load(ctx context.Context) ([]T, Token) {
	snap, err := c.Read(ctx)
	if err != nil {
		c.logger.Warn("loading collection failed", "path", c.path, "error", err)
		return []T{}, ""
	}
	return snap.Records, snap.Token
}

// Write replaces the collection with records. An empty token creates the
// collection; otherwise the backend's current token must equal token.
func (c *Collection[T]) Write(ctx context.Context, records []T, token Token, message string) (Token, error) {
	data, err := Encode(records)
	if err != nil {
		return "", err
	}
	next, err := c.backend.Put(ctx, c.path, data, token, message)
	if err != nil {
		return "", fmt.Errorf("writing %s: %w", c.path, err)
	}
	c.logger.Debug("collection written", "path", c.path, "records", len(records), "token", string(next))
	return next, nil
}

// Save is Write reporting only success. Failures are logged.
func (c *Collection[T]) Save(ctx context.Context, records []T, token Token, message string) bool {
	if _, err := c.Write(ctx, records, token, message); err != nil {
		c.logger.Warn("saving collection failed", "path", c.path, "error", err)
		return false
	}
	return true
}
