package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerateJSONMode(t *testing.T) {
	var body map[string]any
	var path, key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		key = r.Header.Get("x-goog-api-key")
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"kind\":\"note\"}"}]},"finishReason":"STOP"}]}`))
	}))
	defer srv.Close()

	c, err := New(context.Background(), Config{APIKey: "g-key", BaseURL: srv.URL, HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := c.Generate(context.Background(), "be terse", "remember the milk", true)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != `{"kind":"note"}` {
		t.Errorf("text = %q", out)
	}
	if !strings.HasSuffix(path, "/models/"+DefaultModel+":generateContent") {
		t.Errorf("path = %s", path)
	}
	if key != "g-key" {
		t.Errorf("api key header = %q", key)
	}
	gen, _ := body["generationConfig"].(map[string]any)
	if gen["responseMimeType"] != "application/json" {
		t.Errorf("generationConfig = %v", gen)
	}
	if _, ok := body["systemInstruction"]; !ok {
		t.Error("system instruction not sent")
	}
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Error("expected error without API key")
	}
}
