package interfaces

import (
	"context"
)

// Message represents a single message in a chat conversation
type Message struct {
	// Role identifies the message sender: "user", "assistant", or "system"
	Role string

	// Content contains the text content of the message
	Content string
}

// LLMService defines the interface for language model completions. The report
// generator treats the provider as opaque: one blocking Chat call with a
// timeout, regardless of how many internal steps the provider performs.
type LLMService interface {
	// Chat generates a completion response based on the conversation history.
	// The messages slice should contain the full conversation context in
	// chronological order, including system prompts and user messages.
	Chat(ctx context.Context, messages []Message) (string, error)

	// HealthCheck verifies the provider is configured and reachable.
	HealthCheck(ctx context.Context) error

	// GetModelInfo returns the provider and model identifiers for logging.
	GetModelInfo() (provider string, model string)
}
