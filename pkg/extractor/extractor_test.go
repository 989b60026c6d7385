package extractor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/travis4dams/metaminer/pkg/llm"
	"github.com/travis4dams/metaminer/pkg/question"
	"github.com/travis4dams/metaminer/pkg/record"
	"github.com/travis4dams/metaminer/pkg/schema"
)

type reply struct {
	content string
	err     error
}

// scriptedProvider answers calls from a fixed script; once the script runs
// out the last reply repeats.
type scriptedProvider struct {
	mu       sync.Mutex
	replies  []reply
	requests []llm.Request
}

func (p *scriptedProvider) Execute(ctx context.Context, req llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := len(p.requests)
	p.requests = append(p.requests, req)
	if i >= len(p.replies) {
		i = len(p.replies) - 1
	}
	r := p.replies[i]
	if r.err != nil {
		return nil, r.err
	}
	return &llm.Response{Content: r.content}, nil
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Model() string { return "test-model" }

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

var rateLimited = &llm.TransportError{Kind: llm.KindRateLimit, Provider: "scripted", StatusCode: 429, Err: errors.New("slow down")}

func titleSchema(t *testing.T) *schema.Schema {
	t.Helper()
	set, err := question.Normalize([]any{
		map[string]any{"question": "What is the title?", "output_name": "title"},
		map[string]any{"question": "How many pages?", "output_name": "pages", "type": "int"},
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	sch, err := schema.Compile(set)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return sch
}

func fastExtractor(p llm.Provider, opts ...Option) *Extractor {
	return New(p, append([]Option{WithBaseDelay(time.Millisecond)}, opts...)...)
}

func TestExtract_Success(t *testing.T) {
	p := &scriptedProvider{replies: []reply{{content: `{"title": "Annual Report", "pages": "12"}`}}}
	meta := record.NewMetadata(record.KeyDocumentPath, "/docs/report.txt", record.KeyDocumentName, "report.txt")

	rec, err := fastExtractor(p).Extract(context.Background(), titleSchema(t), "prompt", meta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantKeys := []string{"title", "pages", record.KeyDocumentPath, record.KeyDocumentName}
	keys := rec.Keys()
	if len(keys) != len(wantKeys) {
		t.Fatalf("expected keys %v, got %v", wantKeys, keys)
	}
	for i := range wantKeys {
		if keys[i] != wantKeys[i] {
			t.Errorf("expected key %q at %d, got %q", wantKeys[i], i, keys[i])
		}
	}
	if v, _ := rec.Get("title"); v != "Annual Report" {
		t.Errorf("expected %q, got %v", "Annual Report", v)
	}
	if v, _ := rec.Get("pages"); v != int64(12) {
		t.Errorf("expected 12, got %#v", v)
	}

	if p.calls() != 1 {
		t.Fatalf("expected 1 call, got %d", p.calls())
	}
	req := p.requests[0]
	if req.JSONSchema == nil || req.JSONMode {
		t.Error("expected a structured output request first")
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != llm.RoleSystem || req.Messages[1].Content != "prompt" {
		t.Errorf("unexpected messages %+v", req.Messages)
	}
}

func TestExtract_FallsBackToJSONMode(t *testing.T) {
	p := &scriptedProvider{replies: []reply{
		{content: "I cannot do structured output"},
		{content: "```json\n{\"title\": \"Report\", \"pages\": 3}\n```"},
	}}

	rec, err := fastExtractor(p).Extract(context.Background(), titleSchema(t), "prompt", record.Metadata{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := rec.Get("title"); v != "Report" {
		t.Errorf("expected %q, got %v", "Report", v)
	}
	if p.calls() != 2 {
		t.Fatalf("expected 2 calls, got %d", p.calls())
	}
	if second := p.requests[1]; !second.JSONMode || second.JSONSchema != nil {
		t.Errorf("expected JSON mode request, got %+v", second)
	}
}

func TestExtract_RetriesTransientErrors(t *testing.T) {
	p := &scriptedProvider{replies: []reply{
		{err: rateLimited},
		{err: rateLimited},
		{content: `{"title": "Report", "pages": null}`},
	}}

	rec, err := fastExtractor(p, WithMaxRetries(2)).Extract(context.Background(), titleSchema(t), "prompt", record.Metadata{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, ok := rec.Get("pages"); !ok || v != nil {
		t.Errorf("expected null pages, got %v", v)
	}
	if p.calls() != 3 {
		t.Errorf("expected 3 calls, got %d", p.calls())
	}
}

func TestExtract_RetryExhausted(t *testing.T) {
	p := &scriptedProvider{replies: []reply{{err: rateLimited}}}

	_, err := fastExtractor(p, WithMaxRetries(2), WithStructuredOutput(false)).
		Extract(context.Background(), titleSchema(t), "prompt", record.Metadata{})

	var re *RetryError
	if !errors.As(err, &re) {
		t.Fatalf("expected RetryError, got %v", err)
	}
	if re.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", re.Attempts)
	}
	if !errors.Is(err, llm.ErrRateLimited) {
		t.Errorf("expected last error in chain, got %v", err)
	}
	if p.calls() != 3 {
		t.Errorf("expected 3 calls, got %d", p.calls())
	}
}

func TestExtract_FatalErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name    string
		content string
		check   func(error) bool
	}{
		{"parse error", "not json at all", func(err error) bool {
			var pe *ParseError
			return errors.As(err, &pe)
		}},
		{"empty response", "   ", func(err error) bool { return errors.Is(err, ErrEmptyResponse) }},
		{"shape error", `["a", "b"]`, func(err error) bool {
			var se *schema.ShapeError
			return errors.As(err, &se)
		}},
		{"field error", `{"title": "x", "pages": "many"}`, func(err error) bool {
			var fe *schema.FieldError
			return errors.As(err, &fe) && fe.Field == "pages"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &scriptedProvider{replies: []reply{{content: tt.content}}}
			_, err := fastExtractor(p, WithMaxRetries(3)).Extract(context.Background(), titleSchema(t), "prompt", record.Metadata{})
			if !tt.check(err) {
				t.Errorf("unexpected error %v", err)
			}
			// structured attempt plus JSON mode attempt, no retries
			if p.calls() != 2 {
				t.Errorf("expected 2 calls, got %d", p.calls())
			}
		})
	}
}

func TestExtract_NonTransientProviderError(t *testing.T) {
	bad := errors.New("openai API error: invalid api key")
	p := &scriptedProvider{replies: []reply{{err: bad}}}

	_, err := fastExtractor(p, WithStructuredOutput(false)).Extract(context.Background(), titleSchema(t), "prompt", record.Metadata{})
	if !errors.Is(err, bad) {
		t.Errorf("expected provider error, got %v", err)
	}
	var re *RetryError
	if errors.As(err, &re) {
		t.Error("non-transient errors must not be wrapped as RetryError")
	}
	if p.calls() != 1 {
		t.Errorf("expected 1 call, got %d", p.calls())
	}
}

func TestExtract_CancelledContext(t *testing.T) {
	p := &scriptedProvider{replies: []reply{{content: `{}`}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fastExtractor(p).Extract(ctx, titleSchema(t), "prompt", record.Metadata{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if p.calls() != 0 {
		t.Errorf("expected no calls, got %d", p.calls())
	}
}

func TestExtract_StrictModeAndTemperature(t *testing.T) {
	p := &scriptedProvider{replies: []reply{{content: `{"title": "a", "pages": 1}`}}}
	ex := fastExtractor(p, WithStrictMode(true), WithTemperature(0.3), WithMaxTokens(100))

	if _, err := ex.Extract(context.Background(), titleSchema(t), "prompt", record.Metadata{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req := p.requests[0]
	if !req.StrictMode || req.Temperature != 0.3 || req.MaxTokens != 100 {
		t.Errorf("options not applied: %+v", req)
	}
}
