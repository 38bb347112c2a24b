// Package github stores collections as files in a GitHub repository through
// the contents API. The blob sha of each file is its concurrency token.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/kalambet/aide/internal/storage"
)

const (
	DefaultBaseURL = "https://api.github.com"
	apiVersion     = "2022-11-28"
)

// Config locates the repository.
type Config struct {
	// Repo is "owner/name".
	Repo   string
	Branch string
	Token  string
	// BaseURL defaults to DefaultBaseURL; set it for GitHub Enterprise or tests.
	BaseURL    string
	HTTPClient *http.Client
}

// Store is a storage.Backend over the GitHub contents API.
type Store struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) (*Store, error) {
	if cfg.Token == "" {
		return nil, errors.New("github token is required")
	}
	if owner, name, ok := strings.Cut(cfg.Repo, "/"); !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("github repo must be owner/name, got %q", cfg.Repo)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Store{cfg: cfg, client: client}, nil
}

type contentResponse struct {
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	Type     string `json:"type"`
	Name     string `json:"name"`
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

type putResponse struct {
	Content contentResponse `json:"content"`
}

func (s *Store) contentsURL(path string) string {
	u := fmt.Sprintf("%s/repos/%s/contents/%s", s.cfg.BaseURL, s.cfg.Repo, escapePath(path))
	if s.cfg.Branch != "" {
		u += "?ref=" + url.QueryEscape(s.cfg.Branch)
	}
	return u
}

func escapePath(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

func (s *Store) newRequest(ctx context.Context, method, u string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (s *Store) do(req *http.Request, out any) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("github request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return mapStatus(resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if raw, ok := out.(*[]byte); ok {
		*raw, err = io.ReadAll(resp.Body)
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding github response: %w", err)
	}
	return nil
}

// mapStatus turns an error status into the storage sentinels. 409 and 422
// are how the contents API reports a stale or missing sha.
func mapStatus(code int, body []byte) error {
	var apiErr struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &apiErr)
	msg := apiErr.Message
	if msg == "" {
		msg = http.StatusText(code)
	}

	switch code {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", storage.ErrNotExist, msg)
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", storage.ErrConflict, msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", storage.ErrUnauthorized, msg)
	}
	return fmt.Errorf("github returned %d: %s", code, msg)
}

func (s *Store) Fetch(ctx context.Context, path string) (storage.Blob, error) {
	req, err := s.newRequest(ctx, http.MethodGet, s.contentsURL(path), nil)
	if err != nil {
		return storage.Blob{}, err
	}
	var payload contentResponse
	if err := s.do(req, &payload); err != nil {
		return storage.Blob{}, err
	}
	if payload.Type != "" && payload.Type != "file" {
		return storage.Blob{}, fmt.Errorf("%s is a %s, not a file", path, payload.Type)
	}

	var data []byte
	switch payload.Encoding {
	case "base64":
		data, err = base64.StdEncoding.DecodeString(strings.ReplaceAll(payload.Content, "\n", ""))
		if err != nil {
			return storage.Blob{}, fmt.Errorf("decoding %s: %w", path, err)
		}
	case "none", "":
		// Files above 1 MB come back without inline content.
		data, err = s.fetchRaw(ctx, path)
		if err != nil {
			return storage.Blob{}, err
		}
	default:
		return storage.Blob{}, fmt.Errorf("unsupported content encoding %q for %s", payload.Encoding, path)
	}
	return storage.Blob{Data: data, Token: storage.Token(payload.SHA)}, nil
}

func (s *Store) fetchRaw(ctx context.Context, path string) ([]byte, error) {
	req, err := s.newRequest(ctx, http.MethodGet, s.contentsURL(path), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github.raw+json")
	var data []byte
	if err := s.do(req, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Store) Put(ctx context.Context, path string, data []byte, token storage.Token, message string) (storage.Token, error) {
	body, err := json.Marshal(putRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(data),
		SHA:     string(token),
		Branch:  s.cfg.Branch,
	})
	if err != nil {
		return "", err
	}
	u := fmt.Sprintf("%s/repos/%s/contents/%s", s.cfg.BaseURL, s.cfg.Repo, escapePath(path))
	req, err := s.newRequest(ctx, http.MethodPut, u, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	var resp putResponse
	if err := s.do(req, &resp); err != nil {
		return "", err
	}
	if resp.Content.SHA == "" {
		return "", errors.New("github response carried no content sha")
	}
	return storage.Token(resp.Content.SHA), nil
}

// List returns the JSON files at the repository root.
func (s *Store) List(ctx context.Context) ([]string, error) {
	u := fmt.Sprintf("%s/repos/%s/contents", s.cfg.BaseURL, s.cfg.Repo)
	if s.cfg.Branch != "" {
		u += "?ref=" + url.QueryEscape(s.cfg.Branch)
	}
	req, err := s.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	var entries []contentResponse
	if err := s.do(req, &entries); err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.Type != "file" {
			continue
		}
		if ok, _ := doublestar.Match("*.json", e.Name); ok {
			out = append(out, e.Path)
		}
	}
	return out, nil
}

// Ping checks that the repository is reachable with the configured token.
func (s *Store) Ping(ctx context.Context) error {
	req, err := s.newRequest(ctx, http.MethodGet, fmt.Sprintf("%s/repos/%s", s.cfg.BaseURL, s.cfg.Repo), nil)
	if err != nil {
		return err
	}
	return s.do(req, nil)
}
