// Package localfs stores collections as files under a data directory. The
// token of a file is its git blob SHA-1, so it matches what `git hash-object`
// and the GitHub contents API report for the same bytes.
package localfs

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/kalambet/aide/internal/storage"
)

const (
	lockName       = ".aide.lock"
	tempFilePrefix = "aide-tmp-"
	lockTimeout    = 10 * time.Second
)

// Store is a storage.Backend over a directory.
type Store struct {
	dir    string
	git    *gitClient
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithGit commits every write to a git repository rooted at the data dir.
func WithGit() Option {
	return func(s *Store) { s.git = &gitClient{dir: s.dir, logger: s.logger} }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates dir if needed. With WithGit the directory is initialised as a
// repository.
func New(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	s := &Store{dir: dir, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	if s.git != nil {
		s.git.logger = s.logger
		if err := s.git.init(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// HashBlob returns the git blob SHA-1 of data.
func HashBlob(data []byte) storage.Token {
	h := sha1.New()
	h.Write([]byte("blob " + strconv.Itoa(len(data)) + "\x00"))
	h.Write(data)
	return storage.Token(hex.EncodeToString(h.Sum(nil)))
}

func (s *Store) resolve(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if !filepath.IsLocal(clean) {
		return "", fmt.Errorf("collection path %q escapes the data directory", path)
	}
	return filepath.Join(s.dir, clean), nil
}

func (s *Store) Fetch(ctx context.Context, path string) (storage.Blob, error) {
	full, err := s.resolve(path)
	if err != nil {
		return storage.Blob{}, err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return storage.Blob{}, storage.ErrNotExist
	}
	if err != nil {
		return storage.Blob{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return storage.Blob{Data: data, Token: HashBlob(data)}, nil
}

func (s *Store) Put(ctx context.Context, path string, data []byte, token storage.Token, message string) (storage.Token, error) {
	full, err := s.resolve(path)
	if err != nil {
		return "", err
	}

	unlock, err := s.lock(ctx)
	if err != nil {
		return "", err
	}
	defer unlock()

	current, err := os.ReadFile(full)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if token != "" {
			return "", storage.ErrConflict
		}
	case err != nil:
		return "", fmt.Errorf("reading %s: %w", path, err)
	default:
		if token == "" || HashBlob(current) != token {
			return "", storage.ErrConflict
		}
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("creating directory for %s: %w", path, err)
	}
	if err := writeFileAtomic(full, data, 0o644); err != nil {
		return "", err
	}

	if s.git != nil {
		if err := s.git.commit(filepath.ToSlash(path), message); err != nil {
			// The file is already in place; the commit log just lags.
			s.logger.Warn("git commit failed", "path", path, "error", err)
		}
	}
	return HashBlob(data), nil
}

// List returns every JSON file under the data directory, slash separated.
func (s *Store) List(ctx context.Context) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(s.dir), "**/*.json")
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", s.dir, err)
	}
	sort.Strings(matches)
	return matches, nil
}

func (s *Store) Ping(ctx context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.dir)
	}
	return nil
}

// lock takes the directory lock file, polling until ctx ends or lockTimeout
// elapses. A lock file older than lockTimeout was left by a process that died
// mid-write and is removed.
func (s *Store) lock(ctx context.Context) (func(), error) {
	path := filepath.Join(s.dir, lockName)
	deadline := time.Now().Add(lockTimeout)
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			f.Close()
			return func() { os.Remove(path) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("acquiring lock: %w", err)
		}
		if info, err := os.Stat(path); err == nil && time.Since(info.ModTime()) > lockTimeout {
			s.logger.Warn("removing stale lock", "path", path, "age", time.Since(info.ModTime()).Round(time.Second))
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("removing stale lock: %w", err)
			}
			continue
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("acquiring lock: %s held for more than %s; remove it if no aide process is running", path, lockTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// writeFileAtomic writes to a temp file in the target directory and renames
// it over filename.
func writeFileAtomic(filename string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(filename), tempFilePrefix+"*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		return fmt.Errorf("renaming temp file to %s: %w", filename, err)
	}
	return nil
}
