// Package postgres stores collections in a Postgres table, one row per path,
// guarded by an integer version.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kalambet/aide/internal/storage"
)

const ddl = `
CREATE TABLE IF NOT EXISTS aide_collections (
  path       text PRIMARY KEY,
  content    bytea NOT NULL,
  version    bigint NOT NULL,
  updated_at timestamptz NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS aide_commits (
  id         uuid PRIMARY KEY,
  path       text NOT NULL,
  version    bigint NOT NULL,
  message    text NOT NULL DEFAULT '',
  created_at timestamptz NOT NULL DEFAULT now()
);
`

// Store is a storage.Backend over a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, ddl); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Fetch(ctx context.Context, path string) (storage.Blob, error) {
	var (
		data    []byte
		version int64
	)
	err := s.pool.QueryRow(ctx,
		`SELECT content, version FROM aide_collections WHERE path = $1`, path,
	).Scan(&data, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Blob{}, storage.ErrNotExist
	}
	if err != nil {
		return storage.Blob{}, fmt.Errorf("querying %s: %w", path, err)
	}
	return storage.Blob{Data: data, Token: storage.Token(strconv.FormatInt(version, 10))}, nil
}

func (s *Store) Put(ctx context.Context, path string, data []byte, token storage.Token, message string) (storage.Token, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var next int64
	if token == "" {
		tag, err := tx.Exec(ctx,
			`INSERT INTO aide_collections (path, content, version) VALUES ($1, $2, 1)
			 ON CONFLICT (path) DO NOTHING`, path, data)
		if err != nil {
			return "", fmt.Errorf("creating %s: %w", path, err)
		}
		if tag.RowsAffected() == 0 {
			return "", storage.ErrConflict
		}
		next = 1
	} else {
		cur, err := strconv.ParseInt(string(token), 10, 64)
		if err != nil {
			return "", storage.ErrConflict
		}
		tag, err := tx.Exec(ctx,
			`UPDATE aide_collections SET content = $1, version = version + 1, updated_at = now()
			 WHERE path = $2 AND version = $3`, data, path, cur)
		if err != nil {
			return "", fmt.Errorf("updating %s: %w", path, err)
		}
		if tag.RowsAffected() == 0 {
			return "", storage.ErrConflict
		}
		next = cur + 1
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO aide_commits (id, path, version, message) VALUES ($1, $2, $3, $4)`,
		uuid.New().String(), path, next, message); err != nil {
		return "", fmt.Errorf("recording commit for %s: %w", path, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("committing %s: %w", path, err)
	}
	return storage.Token(strconv.FormatInt(next, 10)), nil
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT path FROM aide_collections ORDER BY path`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
