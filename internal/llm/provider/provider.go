// Package provider builds the configured llm.Completer: an
// OpenAI-compatible endpoint, a local Ollama, or Gemini.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/kalambet/aide/internal/llm"
	"github.com/kalambet/aide/internal/llm/gemini"
	"github.com/kalambet/aide/internal/llm/ollama"
	"github.com/kalambet/aide/internal/llm/openai"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderGemini = "gemini"
)

// DefaultModel returns the model used when none is configured.
func DefaultModel(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderOllama:
		return "qwen2.5"
	case ProviderGemini:
		return gemini.DefaultModel
	}
	return ""
}

// Config selects and configures a provider.
type Config struct {
	Provider string
	Model    string
	Timeout  time.Duration

	OpenAIBaseURL string
	OpenAIKey     string
	OllamaBaseURL string
	GeminiKey     string
}

// New builds the configured provider. An unknown provider is an error.
func New(ctx context.Context, cfg Config) (llm.Completer, error) {
	model := cfg.Model
	if model == "" {
		model = DefaultModel(cfg.Provider)
	}

	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		return &OpenAI{Client: openai.NewClient(cfg.OpenAIKey, cfg.OpenAIBaseURL), Model: model}, nil
	case ProviderOllama:
		return &Ollama{Client: ollama.New(cfg.OllamaBaseURL), Model: model}, nil
	case ProviderGemini:
		c, err := gemini.New(ctx, gemini.Config{APIKey: cfg.GeminiKey, Model: model})
		if err != nil {
			return nil, err
		}
		return &Gemini{Client: c}, nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
}
