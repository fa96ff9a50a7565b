package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPAdapter_Generate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("auth header = %q", got)
		}

		body, _ := io.ReadAll(r.Body)
		var req chatRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("invalid request body: %v", err)
		}
		if req.Model != "gpt-x" {
			t.Errorf("model = %q", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "hello" {
			t.Errorf("messages = %+v", req.Messages)
		}

		w.Header().Set("X-Trace-Id", "tr-42")
		_, _ = io.WriteString(w, `{
			"choices":[{"message":{"content":"world"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":10,"completion_tokens":3,"total_tokens":13}
		}`)
	}))
	defer srv.Close()

	a := NewHTTPAdapter(srv.URL, WithAPIKey("sk-test"))
	gen, err := a.Generate(context.Background(),
		map[string]any{"prompt": "hello", "system": "be brief"}, "gpt-x")
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	if gen.Output.Final() != "world" {
		t.Errorf("output = %q", gen.Output.Final())
	}
	if gen.TraceID != "tr-42" {
		t.Errorf("trace id = %q", gen.TraceID)
	}
	if gen.Metadata["input_tokens"] != 10 || gen.Metadata["output_tokens"] != 3 {
		t.Errorf("metadata = %v", gen.Metadata)
	}
	if _, ok := gen.Metadata["latency_ms"].(int64); !ok {
		t.Errorf("latency_ms missing: %v", gen.Metadata)
	}
}

func TestHTTPAdapter_DefaultModel(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req chatRequest
		_ = json.Unmarshal(body, &req)
		if req.Model != "fallback-model" {
			t.Errorf("model = %q, want fallback-model", req.Model)
		}
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer srv.Close()

	a := NewHTTPAdapter(srv.URL, WithModel("fallback-model"))
	if _, err := a.Generate(context.Background(), map[string]any{"prompt": "p"}, ""); err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
}

func TestHTTPAdapter_Non2xx(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a := NewHTTPAdapter(srv.URL)
	_, err := a.Generate(context.Background(), map[string]any{"prompt": "p"}, "m")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("Generate() = %v, want status error", err)
	}
}

func TestHTTPAdapter_InvalidBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "not json")
	}))
	defer srv.Close()

	a := NewHTTPAdapter(srv.URL)
	if _, err := a.Generate(context.Background(), map[string]any{"prompt": "p"}, "m"); err == nil {
		t.Error("Generate() should fail on invalid body")
	}
}

func TestSSEAdapter_Generate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req chatRequest
		_ = json.Unmarshal(body, &req)
		if !req.Stream {
			t.Error("stream flag not set")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"choices":[{"delta":{"content":"Hel"}}]}`,
			`{"choices":[{"delta":{"content":"lo"}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"function":{"name":"lookup","arguments":"{\"q\":1}"}}]}}]}`,
			`{"choices":[],"usage":{"prompt_tokens":7,"completion_tokens":2}}`,
		}
		for _, c := range chunks {
			_, _ = io.WriteString(w, "data: "+c+"\n\n")
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	a := NewSSEAdapter(srv.URL)
	gen, err := a.Generate(context.Background(), map[string]any{"prompt": "hi"}, "gpt-x")
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	if !gen.Output.IsEnriched() {
		t.Fatal("output should be enriched")
	}
	env := gen.Output.Enriched
	if env.FinalOutput != "Hello" {
		t.Errorf("final output = %q", env.FinalOutput)
	}
	if len(env.ToolsCalled) != 1 || env.ToolsCalled[0].Name != "lookup" {
		t.Errorf("tools called = %+v", env.ToolsCalled)
	}
	if len(env.Events) != 4 {
		t.Errorf("events = %d, want 4", len(env.Events))
	}
	if env.Metrics.InputTokens != 7 || env.Metrics.OutputTokens != 2 {
		t.Errorf("metrics = %+v", env.Metrics)
	}
}

func TestSSEAdapter_InvalidEvent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "data: {broken\n\n")
	}))
	defer srv.Close()

	a := NewSSEAdapter(srv.URL)
	if _, err := a.Generate(context.Background(), map[string]any{"prompt": "p"}, "m"); err == nil {
		t.Error("Generate() should fail on malformed stream event")
	}
}
