// Package storage persists record collections as JSON arrays in a versioned
// backend. Every write is conditional on an opaque concurrency token.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotExist is returned by Fetch when the path has never been written.
	ErrNotExist = errors.New("collection does not exist")
	// ErrConflict is returned by Put when the token is stale, or when a
	// create (empty token) targets a path that already exists.
	ErrConflict = errors.New("collection changed since it was read")
	// ErrUnauthorized is returned when the backend rejects the credentials.
	ErrUnauthorized = errors.New("storage credentials rejected")
	// ErrMalformed is returned by ReadForUpdate when the stored content is
	// not a record array. The content is left in place for manual repair.
	ErrMalformed = errors.New("collection content is malformed")
)

// Token identifies the version of a collection. The empty token means the
// caller believes the collection is absent.
type Token string

// Blob is the raw content of a collection together with its version.
type Blob struct {
	Data  []byte
	Token Token
}

// Backend is a versioned file store.
type Backend interface {
	Fetch(ctx context.Context, path string) (Blob, error)
	Put(ctx context.Context, path string, data []byte, token Token, message string) (Token, error)
}

// Lister is implemented by backends that can enumerate stored collections.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

// Pinger is implemented by backends that support a cheap reachability check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks b if it supports it.
func Ping(ctx context.Context, b Backend) error {
	if p, ok := b.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
