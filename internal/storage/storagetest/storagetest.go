// Package storagetest holds the conformance suite every storage backend runs.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kalambet/aide/internal/storage"
)

// Run exercises the Backend contract. newBackend must return an empty backend.
func Run(t *testing.T, newBackend func(t *testing.T) storage.Backend) {
	t.Helper()

	t.Run("MissingPath", func(t *testing.T) {
		b := newBackend(t)
		_, err := b.Fetch(ctx(t), "never-written.json")
		require.ErrorIs(t, err, storage.ErrNotExist)
	})

	t.Run("CreateThenFetch", func(t *testing.T) {
		b := newBackend(t)
		data := []byte(`[{"content": "héllo <b>"}]`)
		tok, err := b.Put(ctx(t), "notes.json", data, "", "Add note")
		require.NoError(t, err)
		require.NotEmpty(t, tok)

		blob, err := b.Fetch(ctx(t), "notes.json")
		require.NoError(t, err)
		require.Equal(t, data, blob.Data)
		require.Equal(t, tok, blob.Token)
	})

	t.Run("ConditionalReplace", func(t *testing.T) {
		b := newBackend(t)
		t1, err := b.Put(ctx(t), "events.json", []byte(`[]`), "", "create")
		require.NoError(t, err)

		t2, err := b.Put(ctx(t), "events.json", []byte(`[1]`), t1, "first update")
		require.NoError(t, err)
		require.NotEqual(t, t1, t2)

		_, err = b.Put(ctx(t), "events.json", []byte(`[2]`), t1, "stale update")
		require.ErrorIs(t, err, storage.ErrConflict)

		blob, err := b.Fetch(ctx(t), "events.json")
		require.NoError(t, err)
		require.Equal(t, []byte(`[1]`), blob.Data)
		require.Equal(t, t2, blob.Token)
	})

	t.Run("CreateWhenExists", func(t *testing.T) {
		b := newBackend(t)
		_, err := b.Put(ctx(t), "finance.json", []byte(`[]`), "", "create")
		require.NoError(t, err)
		_, err = b.Put(ctx(t), "finance.json", []byte(`[]`), "", "create again")
		require.ErrorIs(t, err, storage.ErrConflict)
	})

	t.Run("TokenForMissingPath", func(t *testing.T) {
		b := newBackend(t)
		_, err := b.Put(ctx(t), "ghost.json", []byte(`[]`), "bogus-token", "update")
		require.Error(t, err)
		require.True(t, errors.Is(err, storage.ErrConflict) || errors.Is(err, storage.ErrNotExist),
			"unexpected error %v", err)
	})

	t.Run("PathsAreIndependent", func(t *testing.T) {
		b := newBackend(t)
		for i, p := range []string{"a.json", "b.json"} {
			_, err := b.Put(ctx(t), p, []byte(fmt.Sprintf("[%d]", i)), "", "create")
			require.NoError(t, err)
		}
		blob, err := b.Fetch(ctx(t), "a.json")
		require.NoError(t, err)
		require.Equal(t, []byte(`[0]`), blob.Data)

		if l, ok := b.(storage.Lister); ok {
			paths, err := l.List(ctx(t))
			require.NoError(t, err)
			require.Subset(t, paths, []string{"a.json", "b.json"})
		}
	})

	t.Run("Ping", func(t *testing.T) {
		require.NoError(t, storage.Ping(ctx(t), newBackend(t)))
	})
}

func ctx(t *testing.T) context.Context {
	c, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return c
}
