// Package llm provides a unified interface for the chat completion backends
// used for extraction and type inference.
package llm

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a chat message.
type Message struct {
	Role    Role
	Content string
}

// Request represents a completion request to the LLM.
//
// With JSONSchema set the provider asks for structured output conforming to
// it. With JSONMode set (and no schema) the provider asks for a plain JSON
// object. With neither, the response is free text.
type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
	JSONSchema  map[string]any
	SchemaName  string // defaults to "extraction_result"
	StrictMode  bool   // strict schema adherence, where supported
	JSONMode    bool
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response represents the result of an LLM execution.
type Response struct {
	Content      string
	FinishReason string
	Usage        Usage
	Model        string // model reported by the backend
	Duration     time.Duration
}

// Provider is the core interface that all LLM backends must implement.
type Provider interface {
	// Execute sends a completion request and returns the response. Transport
	// failures are reported as *TransportError.
	Execute(ctx context.Context, req Request) (*Response, error)

	// Name returns the provider identifier (e.g., "openai", "compat").
	Name() string

	// Model returns the configured model name.
	Model() string
}

// ModelInfo describes a model offered by a backend.
type ModelInfo struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// ErrListUnsupported is returned by wrappers whose provider cannot list models.
var ErrListUnsupported = errors.New("model listing not supported")

// ModelLister is an optional interface for providers that can list available
// models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// ProviderConfig holds common configuration for providers.
type ProviderConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration

	// HTTPClient overrides the client used by the SDK. Mostly for tests.
	HTTPClient *http.Client
}

// DefaultSchemaName is the schema name sent when a request does not set one.
const DefaultSchemaName = "extraction_result"

// DefaultMaxTokens is used when a request leaves MaxTokens at zero.
const DefaultMaxTokens = 4096

func (r Request) schemaName() string {
	if r.SchemaName != "" {
		return r.SchemaName
	}
	return DefaultSchemaName
}

func (r Request) maxTokens() int {
	if r.MaxTokens > 0 {
		return r.MaxTokens
	}
	return DefaultMaxTokens
}

func (c ProviderConfig) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: c.Timeout}
}

// AsModelLister returns the provider as a ModelLister if it implements the
// interface.
func AsModelLister(p Provider) (ModelLister, bool) {
	ml, ok := p.(ModelLister)
	return ml, ok
}

// ResolveModel returns the provider's configured model. When none is
// configured it asks the backend for its models and picks the first, falling
// back to fallback when listing is unsupported, fails or returns nothing.
func ResolveModel(ctx context.Context, p Provider, fallback string, logger *slog.Logger) string {
	if m := p.Model(); m != "" {
		return m
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	lister, ok := AsModelLister(p)
	if !ok {
		return fallback
	}
	models, err := lister.ListModels(ctx)
	if errors.Is(err, ErrListUnsupported) {
		return fallback
	}
	if err != nil {
		logger.Warn("model listing failed, using fallback", "provider", p.Name(), "fallback", fallback, "error", err)
		return fallback
	}
	if len(models) == 0 {
		logger.Warn("no models available, using fallback", "provider", p.Name(), "fallback", fallback)
		return fallback
	}
	logger.Debug("resolved model", "provider", p.Name(), "model", models[0].ID)
	return models[0].ID
}
