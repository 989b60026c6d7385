package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
)

// DefaultCompatBaseURL is the endpoint of a local OpenAI-compatible server
// (KoboldCpp, llama.cpp server, LM Studio).
const DefaultCompatBaseURL = "http://localhost:5001/api/v1"

// CompatProvider talks to any server implementing the OpenAI chat
// completions API. No API key is required.
type CompatProvider struct {
	client *openai.Client
	model  string
}

// NewCompatProvider creates a provider for an OpenAI-compatible endpoint.
// The model may be empty; ResolveModel then asks the server.
func NewCompatProvider(cfg ProviderConfig) (*CompatProvider, error) {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = cfg.BaseURL
	if clientConfig.BaseURL == "" {
		clientConfig.BaseURL = DefaultCompatBaseURL
	}
	clientConfig.HTTPClient = cfg.httpClient()

	return &CompatProvider{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
	}, nil
}

// Execute sends a chat completion request.
func (p *CompatProvider) Execute(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		MaxTokens:   req.maxTokens(),
		Temperature: float32(req.Temperature),
	}

	switch {
	case req.JSONSchema != nil:
		schema, err := json.Marshal(req.JSONSchema)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal JSON schema: %w", err)
		}
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   req.schemaName(),
				Schema: json.RawMessage(schema),
				Strict: req.StrictMode,
			},
		}
	case req.JSONMode:
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, classify(p.Name(), err, compatStatus(err))
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("compat: no choices in response")
	}

	return &Response{
		Content:      resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
		Model:    resp.Model,
		Duration: time.Since(start),
	}, nil
}

// Name returns the provider identifier.
func (p *CompatProvider) Name() string {
	return "compat"
}

// Model returns the configured model name, possibly empty.
func (p *CompatProvider) Model() string {
	return p.model
}

// ListModels returns the models the server reports.
func (p *CompatProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	list, err := p.client.ListModels(ctx)
	if err != nil {
		return nil, classify(p.Name(), err, compatStatus(err))
	}
	models := make([]ModelInfo, 0, len(list.Models))
	for _, m := range list.Models {
		models = append(models, ModelInfo{ID: m.ID, Name: m.ID})
	}
	return models, nil
}

func compatStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

var (
	_ Provider    = (*CompatProvider)(nil)
	_ ModelLister = (*CompatProvider)(nil)
)
