package llm

import "context"

// Client is the interface for a chat-completion model.
type Client interface {
	// Complete sends one free-form completion request and returns the raw
	// response text.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// CompleteJSON is Complete with the response constrained to a single
	// JSON object. The prompt must mention JSON or the service rejects the
	// request.
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
