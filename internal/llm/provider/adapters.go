package provider

import (
	"context"
	"fmt"
	"io"

	"github.com/kalambet/aide/internal/llm"
	"github.com/kalambet/aide/internal/llm/gemini"
	"github.com/kalambet/aide/internal/llm/ollama"
	"github.com/kalambet/aide/internal/llm/openai"
)

// OpenAI adapts an OpenAI-compatible client.
type OpenAI struct {
	Client *openai.Client
	Model  string
}

func (p *OpenAI) Complete(ctx context.Context, req llm.Request) (string, error) {
	zero := 0.0
	cr := openai.ChatRequest{
		Model:       p.Model,
		Messages:    messages[openai.Message](req, func(role, content string) openai.Message { return openai.Message{Role: role, Content: content} }),
		Temperature: &zero,
	}
	// json_object mode rejects top-level arrays, so arrays go without a hint.
	if req.Shape == llm.ShapeObject {
		cr.ResponseFormat = &openai.ResponseFormat{Type: "json_object"}
	}
	return p.Client.Chat(ctx, cr)
}

func (p *OpenAI) Check(ctx context.Context, w io.Writer) error {
	if _, err := p.Client.ListModels(ctx); err != nil {
		return fmt.Errorf("openai endpoint unreachable: %w", err)
	}
	fmt.Fprintf(w, "model %s: ready\n", p.Model)
	return nil
}

// Ollama adapts a local Ollama client.
type Ollama struct {
	Client *ollama.Client
	Model  string
}

func (p *Ollama) Complete(ctx context.Context, req llm.Request) (string, error) {
	format := ""
	if req.Shape != llm.ShapeText {
		format = ollama.FormatJSON
	}
	msgs := messages[ollama.Message](req, func(role, content string) ollama.Message { return ollama.Message{Role: role, Content: content} })
	return p.Client.Chat(ctx, p.Model, msgs, format)
}

func (p *Ollama) Check(ctx context.Context, w io.Writer) error {
	return ollama.EnsureReady(ctx, p.Client, p.Model, w)
}

// Gemini adapts the Gemini client.
type Gemini struct {
	Client *gemini.Client
}

func (p *Gemini) Complete(ctx context.Context, req llm.Request) (string, error) {
	return p.Client.Generate(ctx, req.System, req.Prompt, req.Shape != llm.ShapeText)
}

func messages[M any](req llm.Request, mk func(role, content string) M) []M {
	var out []M
	if req.System != "" {
		out = append(out, mk("system", req.System))
	}
	return append(out, mk("user", req.Prompt))
}
