package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

// account is the keychain account name of a secret, e.g. "github_token".
func (s keySpec) account() string {
	return strings.ReplaceAll(s.key, ".", "_")
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "AIDE_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "log.level", typ: kString, env: "AIDE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "storage.backend", typ: kString, env: "AIDE_STORAGE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Storage.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Backend },
	},
	{
		key: "storage.data_dir", typ: kString, env: "AIDE_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.localfs.git", typ: kBool, env: "AIDE_STORAGE_LOCALFS_GIT",
		apply:   func(cfg *Config, v any) { cfg.Storage.LocalFSGit = v.(bool) },
		extract: func(cfg Config) any { return cfg.Storage.LocalFSGit },
	},
	{
		key: "github.repo", typ: kString, env: "AIDE_GITHUB_REPO",
		apply:   func(cfg *Config, v any) { cfg.GitHub.Repo = v.(string) },
		extract: func(cfg Config) any { return cfg.GitHub.Repo },
	},
	{
		key: "github.branch", typ: kString, env: "AIDE_GITHUB_BRANCH",
		apply:   func(cfg *Config, v any) { cfg.GitHub.Branch = v.(string) },
		extract: func(cfg Config) any { return cfg.GitHub.Branch },
	},
	{
		key: "github.base_url", typ: kString, env: "AIDE_GITHUB_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.GitHub.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.GitHub.BaseURL },
	},
	{
		key: "github.token", typ: kString, env: "AIDE_GITHUB_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.GitHub.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.GitHub.Token },
	},
	{
		key: "postgres.dsn", typ: kString, env: "AIDE_POSTGRES_DSN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Postgres.DSN = v.(string) },
		extract: func(cfg Config) any { return cfg.Postgres.DSN },
	},
	{
		key: "s3.endpoint", typ: kString, env: "AIDE_S3_ENDPOINT",
		apply:   func(cfg *Config, v any) { cfg.S3.Endpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.S3.Endpoint },
	},
	{
		key: "s3.bucket", typ: kString, env: "AIDE_S3_BUCKET",
		apply:   func(cfg *Config, v any) { cfg.S3.Bucket = v.(string) },
		extract: func(cfg Config) any { return cfg.S3.Bucket },
	},
	{
		key: "s3.region", typ: kString, env: "AIDE_S3_REGION",
		apply:   func(cfg *Config, v any) { cfg.S3.Region = v.(string) },
		extract: func(cfg Config) any { return cfg.S3.Region },
	},
	{
		key: "s3.use_ssl", typ: kBool, env: "AIDE_S3_USE_SSL",
		apply:   func(cfg *Config, v any) { cfg.S3.UseSSL = v.(bool) },
		extract: func(cfg Config) any { return cfg.S3.UseSSL },
	},
	{
		key: "s3.access_key", typ: kString, env: "AIDE_S3_ACCESS_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.S3.AccessKey = v.(string) },
		extract: func(cfg Config) any { return cfg.S3.AccessKey },
	},
	{
		key: "s3.secret_key", typ: kString, env: "AIDE_S3_SECRET_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.S3.SecretKey = v.(string) },
		extract: func(cfg Config) any { return cfg.S3.SecretKey },
	},
	{
		key: "collections.events_path", typ: kString, env: "AIDE_COLLECTIONS_EVENTS_PATH",
		apply:   func(cfg *Config, v any) { cfg.Collections.EventsPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Collections.EventsPath },
	},
	{
		key: "collections.finance_path", typ: kString, env: "AIDE_COLLECTIONS_FINANCE_PATH",
		apply:   func(cfg *Config, v any) { cfg.Collections.FinancePath = v.(string) },
		extract: func(cfg Config) any { return cfg.Collections.FinancePath },
	},
	{
		key: "collections.notes_path", typ: kString, env: "AIDE_COLLECTIONS_NOTES_PATH",
		apply:   func(cfg *Config, v any) { cfg.Collections.NotesPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Collections.NotesPath },
	},
	{
		key: "llm.provider", typ: kString, env: "AIDE_LLM_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.LLM.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Provider },
	},
	{
		key: "llm.model", typ: kString, env: "AIDE_LLM_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Model },
	},
	{
		key: "llm.timeout", typ: kString, env: "AIDE_LLM_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.LLM.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Timeout },
	},
	{
		key: "openai.base_url", typ: kString, env: "AIDE_OPENAI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.BaseURL },
	},
	{
		key: "openai.api_key", typ: kString, env: "AIDE_OPENAI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.OpenAI.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.APIKey },
	},
	{
		key: "ollama.base_url", typ: kString, env: "AIDE_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "gemini.api_key", typ: kString, env: "AIDE_GEMINI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Gemini.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.APIKey },
	},
}

func envFor(key string) string {
	for _, s := range specs {
		if s.key == key {
			return s.env
		}
	}
	return ""
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
