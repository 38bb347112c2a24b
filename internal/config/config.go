package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// keychainService is the keychain service name every secret is stored under.
const keychainService = "aide"

type Config struct {
	Server      ServerConfig
	Log         LogConfig
	Storage     StorageConfig
	GitHub      GitHubConfig
	Postgres    PostgresConfig
	S3          S3Config
	Collections CollectionsConfig
	LLM         LLMConfig
	OpenAI      OpenAIConfig
	Ollama      OllamaConfig
	Gemini      GeminiConfig
}

type ServerConfig struct {
	Port int
}

type LogConfig struct {
	Level string
}

type StorageConfig struct {
	Backend    string
	DataDir    string
	LocalFSGit bool
}

type GitHubConfig struct {
	Repo    string
	Branch  string
	BaseURL string
	Token   string
}

type PostgresConfig struct {
	DSN string
}

type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	UseSSL    bool
	AccessKey string
	SecretKey string
}

type CollectionsConfig struct {
	EventsPath  string
	FinancePath string
	NotesPath   string
}

type LLMConfig struct {
	Provider string
	Model    string
	Timeout  string
}

// TimeoutDuration parses Timeout. Load has already validated it.
func (c LLMConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

type OpenAIConfig struct {
	BaseURL string
	APIKey  string
}

type OllamaConfig struct {
	BaseURL string
}

type GeminiConfig struct {
	APIKey string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{Port: 4100},
		Log:    LogConfig{Level: "info"},
		Storage: StorageConfig{
			Backend: "localfs",
			DataDir: defaultDataDir(),
		},
		GitHub: GitHubConfig{
			Branch:  "main",
			BaseURL: "https://api.github.com",
		},
		S3: S3Config{
			Region: "us-east-1",
			UseSSL: true,
		},
		Collections: CollectionsConfig{
			EventsPath:  "events.json",
			FinancePath: "finance.json",
			NotesPath:   "notes.json",
		},
		LLM: LLMConfig{
			Provider: "openai",
			Timeout:  "60s",
		},
		OpenAI: OpenAIConfig{BaseURL: "https://api.openai.com/v1"},
		Ollama: OllamaConfig{BaseURL: "http://localhost:11434"},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.aide.app) and secrets
// fall back to macOS Keychain.
// On Linux the backend is a YAML file at $XDG_CONFIG_HOME/aide/config.yaml
// and secrets fall back to $XDG_DATA_HOME/aide/secrets.json.
//
// Environment variables (AIDE_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), NewKeychain())
}

// keychain abstracts Keychain access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

// Keychain reads and writes secrets in the platform secret store.
type Keychain interface {
	keychain
	Set(service, account, value string) error
}

// NewKeychain returns the platform secret store.
func NewKeychain() Keychain { return keychainStore{} }

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Secrets still empty after env come from the keychain.
	for _, s := range specs {
		if !s.secret || s.extract(cfg) != "" {
			continue
		}
		if v, err := kc.Get(keychainService, s.account()); err == nil && v != "" {
			s.apply(&cfg, v)
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg Config) validate() error {
	var errs []error
	missing := func(what, key string) {
		errs = append(errs, fmt.Errorf("missing required config: %s. Set %s via environment variable %s%s",
			what, key, envFor(key), secretHint(key)))
	}

	switch cfg.Storage.Backend {
	case "localfs", "sqlite":
		if cfg.Storage.DataDir == "" {
			missing("data directory", "storage.data_dir")
		}
	case "memory":
	case "github":
		if !strings.Contains(cfg.GitHub.Repo, "/") {
			missing("GitHub repository as owner/name", "github.repo")
		}
		if cfg.GitHub.Token == "" {
			missing("GitHub token", "github.token")
		}
	case "postgres":
		if cfg.Postgres.DSN == "" {
			missing("Postgres DSN", "postgres.dsn")
		}
	case "s3":
		if cfg.S3.Endpoint == "" {
			missing("S3 endpoint", "s3.endpoint")
		}
		if cfg.S3.Bucket == "" {
			missing("S3 bucket", "s3.bucket")
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.backend %q (want localfs, github, sqlite, postgres, s3 or memory)", cfg.Storage.Backend))
	}

	switch cfg.LLM.Provider {
	case "openai":
		if cfg.OpenAI.APIKey == "" {
			missing("OpenAI API key", "openai.api_key")
		}
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			missing("Gemini API key", "gemini.api_key")
		}
	case "ollama":
	default:
		errs = append(errs, fmt.Errorf("unknown llm.provider %q (want openai, ollama or gemini)", cfg.LLM.Provider))
	}

	if d, err := time.ParseDuration(cfg.LLM.Timeout); err != nil || d <= 0 {
		errs = append(errs, fmt.Errorf("invalid llm.timeout %q", cfg.LLM.Timeout))
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log.level %q (want debug, info, warn or error)", cfg.Log.Level))
	}

	return errors.Join(errs...)
}

func secretHint(key string) string {
	for _, s := range specs {
		if s.key == key && s.secret {
			return keychainHint(s.account())
		}
	}
	return ""
}

// GetAPIToken returns the bearer token protecting the HTTP API. It comes
// from AIDE_API_TOKEN, else the keychain; when neither has one a new token
// is generated and stored in the keychain.
func GetAPIToken(kc Keychain) (string, error) {
	if tok := os.Getenv("AIDE_API_TOKEN"); tok != "" {
		return tok, nil
	}
	if tok, err := kc.Get(keychainService, "api_token"); err == nil && tok != "" {
		return tok, nil
	}

	tok := uuid.New().String()
	if err := kc.Set(keychainService, "api_token", tok); err != nil {
		return "", fmt.Errorf("storing generated API token: %w", err)
	}
	return tok, nil
}

// keychainStore reads and writes the platform secret store.
type keychainStore struct{}

func (keychainStore) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (keychainStore) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}
