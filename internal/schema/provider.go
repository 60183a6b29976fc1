package schema

import "context"

// ChatOptions configures a single LLM chat request.
type ChatOptions struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Stop        []string // stop sequences, e.g. the user's speaker tag
}

// NewChatOptions builds ChatOptions with the given model and budget.
func NewChatOptions(model string, maxTokens int, temperature float64) ChatOptions {
	return ChatOptions{Model: model, MaxTokens: maxTokens, Temperature: temperature}
}

// LLMProvider is the completion backend the worker calls. Implementations
// must honour ctx cancellation; a slow or failing endpoint is expected and
// handled by the queue's retry policy.
type LLMProvider interface {
	// Chat sends the role-tagged messages and returns the generated text.
	Chat(ctx context.Context, messages Messages, opts ChatOptions) (string, error)
	// DefaultModel returns the model used when ChatOptions.Model is empty.
	DefaultModel() string
}
