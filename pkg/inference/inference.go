// Package inference suggests types for questions that did not declare one.
package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/travis4dams/metaminer/pkg/extractor"
	"github.com/travis4dams/metaminer/pkg/llm"
	"github.com/travis4dams/metaminer/pkg/question"
	"github.com/travis4dams/metaminer/pkg/typespec"
)

// DefaultMaxAlternatives caps the alternatives kept per suggestion.
const DefaultMaxAlternatives = 3

// Temperature used for inference calls.
const Temperature = 0.1

// SchemaName names the structured output schema of inference calls.
const SchemaName = "type_suggestions"

// Suggestion is a proposed type for one question.
type Suggestion struct {
	Type         typespec.Spec
	Reasoning    string
	Alternatives []typespec.Spec

	// Heuristic is true when the suggestion came from keyword matching
	// rather than the model.
	Heuristic bool
}

// Option configures an Inferrer.
type Option func(*Inferrer)

// WithMaxAlternatives sets how many alternatives are kept per suggestion.
func WithMaxAlternatives(n int) Option {
	return func(i *Inferrer) { i.maxAlternatives = n }
}

// WithMaxTokens sets the maximum output tokens.
func WithMaxTokens(n int) Option {
	return func(i *Inferrer) { i.maxTokens = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Inferrer) { i.logger = l }
}

// Inferrer asks a model for question types.
type Inferrer struct {
	provider        llm.Provider
	maxAlternatives int
	maxTokens       int
	logger          *slog.Logger
}

// New creates an Inferrer backed by p.
func New(p llm.Provider, opts ...Option) *Inferrer {
	i := &Inferrer{
		provider:        p,
		maxAlternatives: DefaultMaxAlternatives,
		maxTokens:       llm.DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.logger == nil {
		i.logger = slog.New(slog.DiscardHandler)
	}
	if i.maxAlternatives < 0 {
		i.maxAlternatives = 0
	}
	return i
}

// Infer returns a suggestion for every question, keyed by output name. All
// questions go to the model in one request. Entries the model leaves out or
// gets wrong fall back to Heuristic, as does every question when the call
// fails.
func (i *Inferrer) Infer(ctx context.Context, questions []question.Question) map[string]Suggestion {
	out := make(map[string]Suggestion, len(questions))
	if len(questions) == 0 {
		return out
	}
	i.logger.Info("inferring types", "questions", len(questions))

	entries, err := i.request(ctx, questions)
	if err != nil {
		i.logger.Warn("type inference failed, using heuristics", "error", err)
		for _, q := range questions {
			out[q.OutputName] = Heuristic(q.Text)
		}
		return out
	}

	for _, q := range questions {
		s, ok := i.suggestion(q.OutputName, entries[q.OutputName])
		if !ok {
			s = Heuristic(q.Text)
		}
		out[q.OutputName] = s
	}
	return out
}

// Apply infers types for the questions of set that did not declare one and
// stores them. Declared types are never sent or changed.
func (i *Inferrer) Apply(ctx context.Context, set *question.Set) map[string]Suggestion {
	suggestions := i.Infer(ctx, set.Pending())
	for name, s := range suggestions {
		set.SetType(name, s.Type)
		i.logger.Debug("inferred type", "field", name, "type", s.Type.String(), "heuristic", s.Heuristic)
	}
	return suggestions
}

// request asks for structured output and falls back to JSON mode.
func (i *Inferrer) request(ctx context.Context, questions []question.Question) (map[string]any, error) {
	ids := make([]string, len(questions))
	for n, q := range questions {
		ids[n] = q.OutputName
	}
	req := llm.Request{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: BuildPrompt(questions)}},
		MaxTokens:   i.maxTokens,
		Temperature: Temperature,
	}

	structured := req
	structured.JSONSchema = requestSchema(ids)
	structured.SchemaName = SchemaName
	entries, err := i.call(ctx, structured)
	if err == nil {
		return entries, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	i.logger.Debug("structured output failed, falling back to JSON mode", "error", err)

	req.JSONMode = true
	return i.call(ctx, req)
}

func (i *Inferrer) call(ctx context.Context, req llm.Request) (map[string]any, error) {
	resp, err := i.provider.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	content := extractor.StripMarkdownCodeBlock(resp.Content)
	if content == "" {
		return nil, extractor.ErrEmptyResponse
	}

	var raw any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, &extractor.ParseError{Content: resp.Content, Err: err}
	}
	if err := responseSchema.Validate(raw); err != nil {
		return nil, fmt.Errorf("response does not match schema: %w", err)
	}
	return raw.(map[string]any)["suggestions"].(map[string]any), nil
}

// suggestion converts one response entry.
func (i *Inferrer) suggestion(name string, entry any) (Suggestion, bool) {
	if entry == nil {
		return Suggestion{}, false
	}
	if err := entrySchema.Validate(entry); err != nil {
		i.logger.Warn("invalid suggestion, using heuristic", "field", name, "error", err)
		return Suggestion{}, false
	}
	m := entry.(map[string]any)

	raw, _ := m["suggested_type"].(string)
	spec, err := typespec.Parse(raw)
	if err != nil {
		i.logger.Warn("invalid suggested type, using str", "field", name, "type", raw)
		spec = typespec.Scalar(typespec.KindString)
	}

	s := Suggestion{Type: spec}
	s.Reasoning, _ = m["reasoning"].(string)
	if s.Reasoning == "" {
		s.Reasoning = "Inferred from question content"
	}

	alts, _ := m["alternatives"].([]any)
	for _, a := range alts {
		if len(s.Alternatives) >= i.maxAlternatives {
			break
		}
		str, _ := a.(string)
		alt, err := typespec.Parse(str)
		if err != nil {
			i.logger.Warn("invalid alternative type, skipping", "field", name, "type", str)
			continue
		}
		s.Alternatives = append(s.Alternatives, alt)
	}
	return s, true
}

// BuildPrompt renders the inference prompt for questions.
func BuildPrompt(questions []question.Question) string {
	var basic, arrays, enums []string
	for _, v := range typespec.Vocabulary() {
		switch {
		case strings.HasPrefix(v, "list("):
			arrays = append(arrays, v)
		case strings.Contains(v, "enum("):
			enums = append(enums, v)
		default:
			basic = append(basic, v)
		}
	}

	lines := make([]string, len(questions))
	for n, q := range questions {
		lines[n] = strconv.Quote(q.OutputName) + ": " + strconv.Quote(q.Text)
	}

	var sb strings.Builder
	sb.WriteString("You are a data type inference expert. Analyze the following questions and suggest the most appropriate data types for each one.\n\n")
	sb.WriteString("Available data types:\n")
	sb.WriteString("- Basic types: " + strings.Join(basic, ", ") + "\n")
	sb.WriteString("- Array types: " + strings.Join(arrays, ", ") + "\n")
	for _, e := range enums {
		if strings.HasPrefix(e, "multi_") {
			sb.WriteString("- Multi-enum types: " + e + " for multiple selections from predefined values\n")
		} else {
			sb.WriteString("- Enum types: " + e + " for single selection from predefined values\n")
		}
	}
	sb.WriteString("\nQuestions to analyze:\n{\n  " + strings.Join(lines, ",\n  ") + "\n}\n\n")
	sb.WriteString(`For each question, consider:
1. What type of answer is expected (text, number, date, boolean, etc.)?
2. Is this likely to be a single value or multiple values (array)?
3. Are there likely to be predefined categorical options (enum)?
4. What are the most probable enum values if applicable?

Guidelines:
- Use "date" for questions asking for dates without time
- Use "datetime" for questions asking for dates with time
- Use "int" for whole numbers, "float" for decimal numbers
- Use "bool" for yes/no or true/false questions
- Use "enum" when there are likely predefined categorical options
- Use "multi_enum" when multiple categories can be selected
- Use "list(type)" when multiple values of the same type are expected
- Use "str" as fallback for text that doesn't fit other categories

For enum types, suggest realistic values based on the question context.

Return your response as a JSON object with this exact structure:
{
  "suggestions": {
    "question_name": {
      "suggested_type": "type_string",
      "reasoning": "explanation of why this type was chosen",
      "alternatives": ["alternative_type1", "alternative_type2"]
    }
  }
}

Only suggest valid data types from the list above. Provide clear reasoning for each suggestion.
`)
	return sb.String()
}
