package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"studybot/internal/schema"
)

// DefaultModel is the chat model used for answer synthesis.
const DefaultModel = "gpt-3.5-turbo-0125"

// OpenAI is a chat-completion client for the OpenAI API.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates a completion client for the given model. An empty model
// name selects DefaultModel.
func NewOpenAI(apiKey, model string) *OpenAI {
	if model == "" {
		model = DefaultModel
	}
	config := openai.DefaultConfig(apiKey)
	return &OpenAI{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

// Complete sends one free-form completion request and returns the raw
// response text.
func (o *OpenAI) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return o.complete(ctx, systemPrompt, userPrompt, nil)
}

// CompleteJSON locks the response to a single JSON object so the output can
// be decoded against a strict schema.
func (o *OpenAI) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return o.complete(ctx, systemPrompt, userPrompt, &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONObject,
	})
}

// complete sends the request. Network-level failures are wrapped as transport
// errors so callers can classify them as retryable; API-level failures (auth,
// quota, bad request) are returned as-is and must not be retried.
func (o *OpenAI) complete(ctx context.Context, systemPrompt, userPrompt string, format *openai.ChatCompletionResponseFormat) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:          o.model,
		ResponseFormat: format,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("failed to create chat completion: %w", err)
		}
		return "", &schema.TransportError{Op: "create chat completion", Err: err}
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

var _ Client = (*OpenAI)(nil)
