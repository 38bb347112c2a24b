package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/aide/internal/assistant"
	"github.com/kalambet/aide/internal/config"
	"github.com/kalambet/aide/internal/extract"
	"github.com/kalambet/aide/internal/llm"
	"github.com/kalambet/aide/internal/llm/provider"
	"github.com/kalambet/aide/internal/record"
	"github.com/kalambet/aide/internal/storage"
	"github.com/kalambet/aide/internal/storage/github"
	"github.com/kalambet/aide/internal/storage/localfs"
	"github.com/kalambet/aide/internal/storage/memory"
	"github.com/kalambet/aide/internal/storage/postgres"
	"github.com/kalambet/aide/internal/storage/s3"
	"github.com/kalambet/aide/internal/storage/sqlite"
)

// openBackend builds the configured storage backend. The returned close
// function is never nil.
func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage.Backend, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Storage.Backend {
	case "localfs":
		opts := []localfs.Option{localfs.WithLogger(logger)}
		if cfg.Storage.LocalFSGit {
			opts = append(opts, localfs.WithGit())
		}
		b, err := localfs.New(cfg.Storage.DataDir, opts...)
		if err != nil {
			return nil, nil, err
		}
		return b, noop, nil
	case "github":
		b, err := github.New(github.Config{
			Repo:       cfg.GitHub.Repo,
			Branch:     cfg.GitHub.Branch,
			Token:      cfg.GitHub.Token,
			BaseURL:    cfg.GitHub.BaseURL,
			HTTPClient: &http.Client{Timeout: 30 * time.Second},
		})
		if err != nil {
			return nil, nil, err
		}
		return b, noop, nil
	case "sqlite":
		b, err := sqlite.Open(cfg.Storage.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	case "postgres":
		b, err := postgres.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	case "s3":
		b, err := s3.New(s3.Config{
			Endpoint:  cfg.S3.Endpoint,
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			UseSSL:    cfg.S3.UseSSL,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		})
		if err != nil {
			return nil, nil, err
		}
		return b, noop, nil
	case "memory":
		return memory.New(), noop, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

func llmConfig(cfg config.Config) provider.Config {
	return provider.Config{
		Provider:      cfg.LLM.Provider,
		Model:         cfg.LLM.Model,
		Timeout:       cfg.LLM.TimeoutDuration(),
		OpenAIBaseURL: cfg.OpenAI.BaseURL,
		OpenAIKey:     cfg.OpenAI.APIKey,
		OllamaBaseURL: cfg.Ollama.BaseURL,
		GeminiKey:     cfg.Gemini.APIKey,
	}
}

func modelName(cfg config.Config) string {
	if cfg.LLM.Model != "" {
		return cfg.LLM.Model
	}
	return provider.DefaultModel(cfg.LLM.Provider)
}

// buildService opens storage, checks that it and the model are usable, and
// assembles the assistant. Progress from the checks goes to w. Callers must
// invoke the returned close function.
func buildService(ctx context.Context, cfg config.Config, logger *slog.Logger, w io.Writer) (*assistant.Service, func() error, error) {
	backend, closeBackend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s storage: %w", cfg.Storage.Backend, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := storage.Ping(pingCtx, backend); err != nil {
		closeBackend()
		return nil, nil, fmt.Errorf("%s storage is not reachable: %w", cfg.Storage.Backend, err)
	}
	fmt.Fprintf(w, "storage %s: ready\n", cfg.Storage.Backend)

	completer, err := provider.New(ctx, llmConfig(cfg))
	if err != nil {
		closeBackend()
		return nil, nil, fmt.Errorf("configuring %s: %w", cfg.LLM.Provider, err)
	}
	if c, ok := completer.(llm.Checker); ok {
		if err := c.Check(ctx, w); err != nil {
			closeBackend()
			return nil, nil, err
		}
	}

	svc := assistant.New(assistant.Deps{
		Events:    storage.NewCollection[record.CalendarEvent](backend, collectionPath(cfg.Collections.EventsPath, record.KindCalendar), logger),
		Finance:   storage.NewCollection[record.FinanceEntry](backend, collectionPath(cfg.Collections.FinancePath, record.KindFinance), logger),
		Notes:     storage.NewCollection[record.Note](backend, collectionPath(cfg.Collections.NotesPath, record.KindNote), logger),
		Extractor: extract.New(completer, cfg.LLM.TimeoutDuration(), logger),
		Logger:    logger,
	})
	return svc, closeBackend, nil
}

func collectionPath(configured string, kind record.Kind) string {
	if p := strings.TrimSpace(configured); p != "" {
		return p
	}
	return kind.DefaultPath()
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
