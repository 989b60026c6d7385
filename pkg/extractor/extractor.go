// Package extractor turns a compiled schema, a rendered prompt and an LLM
// provider into validated records.
package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"github.com/travis4dams/metaminer/pkg/llm"
	"github.com/travis4dams/metaminer/pkg/record"
	"github.com/travis4dams/metaminer/pkg/schema"
)

// ErrEmptyResponse is returned when the model answers with no content.
var ErrEmptyResponse = errors.New("empty response from LLM")

// ParseError reports a response that is not valid JSON.
type ParseError struct {
	Content string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse response as JSON: %v (response: %s)", e.Err, truncateForError(e.Content))
}

func (e *ParseError) Unwrap() error { return e.Err }

// RetryError is returned once every attempt failed with a transient error.
type RetryError struct {
	Attempts int
	Last     error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("extraction failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetryError) Unwrap() error { return e.Last }

// Config holds the extraction settings.
type Config struct {
	// MaxRetries for transient errors (default: 3). Parse and validation
	// errors are never retried.
	MaxRetries int

	// BaseDelay is the first backoff delay; it doubles per retry (default: 1s).
	BaseDelay time.Duration

	// Temperature for LLM responses (default: 0).
	Temperature float64

	// MaxTokens for LLM responses (default: 4096).
	MaxTokens int

	// StrictMode asks for strict schema adherence where the provider supports it.
	StrictMode bool

	// Structured enables the structured output attempt before JSON mode
	// (default: true).
	Structured bool

	Logger *slog.Logger
}

// DefaultConfig returns the default extraction settings.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxTokens:  llm.DefaultMaxTokens,
		Structured: true,
	}
}

// Option configures an Extractor.
type Option func(*Config)

// WithMaxRetries sets the maximum number of retries.
func WithMaxRetries(n int) Option {
	return func(c *Config) { c.MaxRetries = n }
}

// WithBaseDelay sets the first backoff delay.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Config) { c.BaseDelay = d }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Config) { c.Temperature = t }
}

// WithMaxTokens sets the maximum output tokens.
func WithMaxTokens(n int) Option {
	return func(c *Config) { c.MaxTokens = n }
}

// WithStrictMode enables strict JSON schema validation.
func WithStrictMode(strict bool) Option {
	return func(c *Config) { c.StrictMode = strict }
}

// WithStructuredOutput toggles the structured output attempt.
func WithStructuredOutput(enabled bool) Option {
	return func(c *Config) { c.Structured = enabled }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Extractor runs extraction calls against one provider.
type Extractor struct {
	provider llm.Provider
	config   Config
	logger   *slog.Logger
}

// New creates an extractor for p.
func New(p llm.Provider, opts ...Option) *Extractor {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Extractor{provider: p, config: config, logger: logger}
}

// Provider returns the provider used for calls.
func (e *Extractor) Provider() llm.Provider { return e.provider }

// Extract sends prompt to the model and validates the answer against sch.
// A structured output request is tried first; if it fails for any reason a
// JSON mode request follows. Transient transport errors restart the attempt
// with exponential backoff. On success meta is appended after the schema
// fields.
func (e *Extractor) Extract(ctx context.Context, sch *schema.Schema, prompt string, meta record.Metadata) (*record.Record, error) {
	log := e.logger.With("request_id", uuid.NewString())
	maxAttempts := e.config.MaxRetries + 1
	log.Debug("extractor starting",
		"provider", e.provider.Name(),
		"model", e.provider.Model(),
		"fields", len(sch.Fields()),
		"prompt_size", len(prompt),
		"max_attempts", maxAttempts)

	start := time.Now()
	attempts := 0
	rec, err := retry.DoWithData(
		func() (*record.Record, error) {
			attempts++
			log.Debug("extractor attempt", "attempt", attempts, "max_attempts", maxAttempts)
			return e.attempt(ctx, log, sch, prompt)
		},
		retry.Context(ctx),
		retry.Attempts(uint(maxAttempts)),
		retry.Delay(e.config.BaseDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(llm.IsTransient),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn("extractor attempt failed", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		log.Debug("extractor failed", "attempts", attempts, "duration", time.Since(start), "error", err)
		if llm.IsTransient(err) {
			return nil, &RetryError{Attempts: attempts, Last: err}
		}
		return nil, err
	}

	rec.Merge(meta)
	log.Debug("extractor success", "attempts", attempts, "duration", time.Since(start))
	return rec, nil
}

// attempt runs one pass of the structured then JSON mode sequence.
func (e *Extractor) attempt(ctx context.Context, log *slog.Logger, sch *schema.Schema, prompt string) (*record.Record, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: SystemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	}
	req := llm.Request{
		Messages:    messages,
		MaxTokens:   e.config.MaxTokens,
		Temperature: e.config.Temperature,
	}

	if e.config.Structured {
		structured := req
		structured.JSONSchema = sch.JSONSchema()
		structured.StrictMode = e.config.StrictMode
		rec, err := e.call(ctx, sch, structured)
		if err == nil {
			return rec, nil
		}
		log.Debug("structured output failed, falling back to JSON mode", "error", err)
	}

	req.JSONMode = true
	return e.call(ctx, sch, req)
}

func (e *Extractor) call(ctx context.Context, sch *schema.Schema, req llm.Request) (*record.Record, error) {
	resp, err := e.provider.Execute(ctx, req)
	if err != nil {
		return nil, err
	}

	content := StripMarkdownCodeBlock(resp.Content)
	if content == "" {
		return nil, ErrEmptyResponse
	}

	var raw any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, &ParseError{Content: resp.Content, Err: err}
	}
	return sch.Validate(raw)
}

// truncateForError truncates content for error messages.
func truncateForError(s string) string {
	if len(s) <= 200 {
		return s
	}
	return s[:200] + "..."
}
