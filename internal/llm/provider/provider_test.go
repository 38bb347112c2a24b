package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kalambet/aide/internal/llm"
	"github.com/kalambet/aide/internal/llm/ollama"
	"github.com/kalambet/aide/internal/llm/openai"
)

func openAIServer(t *testing.T, captured *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(captured)
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIShapeHints(t *testing.T) {
	for shape, wantHint := range map[llm.Shape]bool{llm.ShapeText: false, llm.ShapeObject: true, llm.ShapeArray: false} {
		var body map[string]any
		srv := openAIServer(t, &body)
		p := &OpenAI{Client: openai.NewClient("k", srv.URL), Model: "gpt-4o-mini"}

		if _, err := p.Complete(context.Background(), llm.Request{System: "sys", Prompt: "hi", Shape: shape}); err != nil {
			t.Fatalf("Complete(shape %d): %v", shape, err)
		}
		_, hasHint := body["response_format"]
		if hasHint != wantHint {
			t.Errorf("shape %d: response_format present = %v, want %v", shape, hasHint, wantHint)
		}
		msgs, _ := body["messages"].([]any)
		if len(msgs) != 2 {
			t.Errorf("shape %d: %d messages, want system+user", shape, len(msgs))
		}
	}
}

func TestOllamaJSONFormat(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{"message":{"role":"assistant","content":"[]"}}`))
	}))
	defer srv.Close()

	p := &Ollama{Client: ollama.New(srv.URL), Model: "qwen2.5"}
	out, err := p.Complete(context.Background(), llm.Request{Prompt: "x", Shape: llm.ShapeArray})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "[]" || body["format"] != "json" || body["model"] != "qwen2.5" {
		t.Errorf("out=%q body=%v", out, body)
	}
	if msgs, _ := body["messages"].([]any); len(msgs) != 1 {
		t.Errorf("expected only the user message without a system prompt, got %v", body["messages"])
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	if _, err := New(ctx, Config{Provider: "claude"}); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := New(ctx, Config{Provider: ProviderOpenAI}); err == nil {
		t.Error("expected error for openai without key")
	}
	c, err := New(ctx, Config{Provider: ProviderOllama})
	if err != nil {
		t.Fatalf("New(ollama): %v", err)
	}
	if o, ok := c.(*Ollama); !ok || o.Model != "qwen2.5" {
		t.Errorf("New(ollama) = %#v", c)
	}
	if _, ok := c.(llm.Checker); !ok {
		t.Error("ollama provider should implement Checker")
	}
	c, err = New(ctx, Config{Provider: ProviderOpenAI, OpenAIKey: "k", Model: "gpt-4.1"})
	if err != nil {
		t.Fatalf("New(openai): %v", err)
	}
	if o := c.(*OpenAI); o.Model != "gpt-4.1" {
		t.Errorf("model = %s", o.Model)
	}
}
