package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const chatCompletionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "local-7b",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"title\": \"Report\"}"}, "finish_reason": "stop"}],
  "usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
}`

func TestCompatProvider_Execute(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("expected path /chat/completions, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatCompletionBody))
	}))
	defer server.Close()

	p, err := NewCompatProvider(ProviderConfig{BaseURL: server.URL, Model: "local-7b", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := p.Execute(context.Background(), Request{
		Messages:   []Message{{Role: RoleUser, Content: "hello"}},
		JSONSchema: map[string]any{"type": "object"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != `{"title": "Report"}` {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 5 {
		t.Errorf("unexpected usage %+v", resp.Usage)
	}

	format, _ := got["response_format"].(map[string]any)
	if format["type"] != "json_schema" {
		t.Errorf("expected json_schema response format, got %v", got["response_format"])
	}
	schema, _ := format["json_schema"].(map[string]any)
	if schema["name"] != DefaultSchemaName {
		t.Errorf("expected schema name %q, got %v", DefaultSchemaName, schema["name"])
	}
}

func TestCompatProvider_JSONMode(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(chatCompletionBody))
	}))
	defer server.Close()

	p, _ := NewCompatProvider(ProviderConfig{BaseURL: server.URL, Model: "local-7b"})
	if _, err := p.Execute(context.Background(), Request{JSONMode: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	format, _ := got["response_format"].(map[string]any)
	if format["type"] != "json_object" {
		t.Errorf("expected json_object response format, got %v", got["response_format"])
	}
}

func TestCompatProvider_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusServiceUnavailable, true},
		{"bad request", http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error": {"message": "nope", "type": "test"}}`))
			}))
			defer server.Close()

			p, _ := NewCompatProvider(ProviderConfig{BaseURL: server.URL, Model: "m"})
			_, err := p.Execute(context.Background(), Request{})
			if err == nil {
				t.Fatal("expected error")
			}
			if IsTransient(err) != tt.transient {
				t.Errorf("expected transient=%v, got %v", tt.transient, err)
			}
			var te *TransportError
			if tt.transient && errors.As(err, &te) && te.StatusCode != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, te.StatusCode)
			}
		})
	}
}

func TestCompatProvider_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	p, _ := NewCompatProvider(ProviderConfig{BaseURL: url, Model: "m"})
	_, err := p.Execute(context.Background(), Request{})
	if !errors.Is(err, ErrConnection) {
		t.Errorf("expected connection error, got %v", err)
	}
}

func TestCompatProvider_ListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("expected path /models, got %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"object": "list", "data": [{"id": "koboldcpp/mistral-7b", "object": "model"}]}`))
	}))
	defer server.Close()

	p, _ := NewCompatProvider(ProviderConfig{BaseURL: server.URL})
	if got := ResolveModel(context.Background(), p, FallbackModel, nil); got != "koboldcpp/mistral-7b" {
		t.Errorf("expected koboldcpp/mistral-7b, got %q", got)
	}
}
