// Package sqlite stores collections in a local SQLite database. Each
// collection is a row whose integer version is its concurrency token.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kalambet/aide/internal/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a storage.Backend over SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) aide.db in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "aide.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// One connection: writes serialize and ":memory:" stays a single database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (s *Store) Fetch(ctx context.Context, path string) (storage.Blob, error) {
	var (
		data    []byte
		version int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT content, version FROM collections WHERE path = ?", path,
	).Scan(&data, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Blob{}, storage.ErrNotExist
	}
	if err != nil {
		return storage.Blob{}, fmt.Errorf("querying %s: %w", path, err)
	}
	return storage.Blob{Data: data, Token: versionToken(version)}, nil
}

func (s *Store) Put(ctx context.Context, path string, data []byte, token storage.Token, message string) (storage.Token, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var next int64
	if token == "" {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO collections (path, content, version, updated_at) VALUES (?, ?, 1, ?)
			 ON CONFLICT(path) DO NOTHING`,
			path, data, now)
		if err != nil {
			return "", fmt.Errorf("creating %s: %w", path, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return "", storage.ErrConflict
		}
		next = 1
	} else {
		cur, err := strconv.ParseInt(string(token), 10, 64)
		if err != nil {
			return "", storage.ErrConflict
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE collections SET content = ?, version = version + 1, updated_at = ?
			 WHERE path = ? AND version = ?`,
			data, now, path, cur)
		if err != nil {
			return "", fmt.Errorf("updating %s: %w", path, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return "", storage.ErrConflict
		}
		next = cur + 1
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO commits (id, path, version, message, created_at) VALUES (?, ?, ?, ?, ?)",
		uuid.New().String(), path, next, message, now); err != nil {
		return "", fmt.Errorf("recording commit for %s: %w", path, err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing %s: %w", path, err)
	}
	return versionToken(next), nil
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT path FROM collections ORDER BY path")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Commit is one entry of a collection's write log.
type Commit struct {
	ID        string
	Version   int64
	Message   string
	CreatedAt time.Time
}

// History returns the write log of path, oldest first.
func (s *Store) History(ctx context.Context, path string) ([]Commit, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, version, message, created_at FROM commits WHERE path = ? ORDER BY version ASC", path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Commit
	for rows.Next() {
		var (
			c       Commit
			created string
		)
		if err := rows.Scan(&c.ID, &c.Version, &c.Message, &created); err != nil {
			return nil, err
		}
		c.CreatedAt, err = time.Parse(time.RFC3339, created)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func versionToken(v int64) storage.Token {
	return storage.Token(strconv.FormatInt(v, 10))
}
