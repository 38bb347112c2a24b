// Package memory is an in-process storage backend used by tests and the
// --storage memory mode.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/kalambet/aide/internal/storage"
)

type entry struct {
	data  []byte
	token storage.Token
}

// Store keeps collections in a map. Tokens come from a counter shared by all
// paths, so a token is never reused.
type Store struct {
	mu      sync.Mutex
	files   map[string]entry
	counter int
	commits []Commit
}

// Commit records one accepted write.
type Commit struct {
	Path    string
	Token   storage.Token
	Message string
}

func New() *Store {
	return &Store{files: make(map[string]entry)}
}

func (s *Store) Fetch(ctx context.Context, path string) (storage.Blob, error) {
	if err := ctx.Err(); err != nil {
		return storage.Blob{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.files[path]
	if !ok {
		return storage.Blob{}, storage.ErrNotExist
	}
	data := make([]byte, len(e.data))
	copy(data, e.data)
	return storage.Blob{Data: data, Token: e.token}, nil
}

func (s *Store) Put(ctx context.Context, path string, data []byte, token storage.Token, message string) (storage.Token, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, exists := s.files[path]
	switch {
	case token == "" && exists:
		return "", storage.ErrConflict
	case token != "" && (!exists || cur.token != token):
		return "", storage.ErrConflict
	}

	s.counter++
	next := storage.Token(strconv.Itoa(s.counter))
	stored := make([]byte, len(data))
	copy(stored, data)
	s.files[path] = entry{data: stored, token: next}
	s.commits = append(s.commits, Commit{Path: path, Token: next, Message: message})
	return next, nil
}

// Set stores raw content unconditionally. Tests use it to plant malformed data.
func (s *Store) Set(path string, data []byte) storage.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter++
	next := storage.Token(strconv.Itoa(s.counter))
	s.files[path] = entry{data: append([]byte(nil), data...), token: next}
	return next
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.files))
	for p := range s.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// Commits returns the accepted writes in order.
func (s *Store) Commits() []Commit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Commit(nil), s.commits...)
}
