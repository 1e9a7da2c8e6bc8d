// Package llm provides the client boundary to large-language-model
// providers: a provider abstraction, the compiled transport form of a
// story, and the generation/continuation request plumbing.
package llm

import (
	"context"
	"errors"
)

// Common errors returned by LLM providers.
var (
	// ErrContextTooLong is returned when the input exceeds the model's
	// context window.
	ErrContextTooLong = errors.New("context length exceeds model maximum")

	// ErrRateLimited is returned when the API rate limit has been exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrAPIError is returned when the API returns an unexpected error.
	ErrAPIError = errors.New("API error")

	// ErrInvalidAPIKey is returned when the API key is invalid or missing.
	ErrInvalidAPIKey = errors.New("invalid or missing API key")
)

// Role constants for chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Provider defines the interface for LLM providers. Implementations should
// be safe for concurrent use.
type Provider interface {
	// Chat sends a chat request and returns the complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// Capabilities returns the capabilities of this provider.
	Capabilities() Capabilities

	// Close releases any resources held by the provider.
	Close() error
}

// ChatRequest represents a request to the chat API.
type ChatRequest struct {
	// Messages is the conversation to send.
	Messages []ChatMessage

	// MaxTokens is the maximum number of tokens to generate.
	// If 0, the provider's default is used.
	MaxTokens int

	// Temperature controls randomness in the response (0.0-2.0).
	Temperature float64
}

// ChatMessage represents a single message in a conversation.
type ChatMessage struct {
	// Role indicates the message author: system, user or assistant.
	Role string

	// Content is the text content of the message.
	Content string
}

// ChatResponse represents the complete response from a chat request.
type ChatResponse struct {
	// Message is the assistant's response message.
	Message ChatMessage

	// Usage contains token usage statistics.
	Usage TokenUsage

	// Model is the actual model used.
	Model string
}

// TokenUsage contains token usage statistics for a request.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Capabilities describes what a provider supports.
type Capabilities struct {
	// MaxContextTokens is the maximum context window size.
	MaxContextTokens int

	// MaxOutputTokens is the maximum number of tokens the model can
	// generate.
	MaxOutputTokens int

	// TokenizerType identifies the tokenizer to use for token counting.
	TokenizerType string
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}
