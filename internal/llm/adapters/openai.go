// Package adapters provides LLM provider implementations.
package adapters

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"storyloom/internal/llm"
)

// openaiModelCapabilities maps model names to their capabilities.
var openaiModelCapabilities = map[string]llm.Capabilities{
	"gpt-4o": {
		MaxContextTokens: 128000,
		MaxOutputTokens:  16384,
		TokenizerType:    "o200k_base",
	},
	"gpt-4o-mini": {
		MaxContextTokens: 128000,
		MaxOutputTokens:  16384,
		TokenizerType:    "o200k_base",
	},
	"gpt-4-turbo": {
		MaxContextTokens: 128000,
		MaxOutputTokens:  4096,
		TokenizerType:    "cl100k_base",
	},
	"gpt-3.5-turbo": {
		MaxContextTokens: 16385,
		MaxOutputTokens:  4096,
		TokenizerType:    "cl100k_base",
	},
}

// defaultOpenAICapabilities is used for unknown models.
var defaultOpenAICapabilities = llm.Capabilities{
	MaxContextTokens: 128000,
	MaxOutputTokens:  4096,
	TokenizerType:    "cl100k_base",
}

// OpenAIAdapter implements the Provider interface for the OpenAI API.
type OpenAIAdapter struct {
	client *openai.Client
	model  string
}

// NewOpenAIAdapter creates a new OpenAI adapter. An empty baseURL uses the
// default API endpoint; setting it targets Azure or compatible servers.
func NewOpenAIAdapter(apiKey, model, baseURL string) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", llm.ErrInvalidAPIKey)
	}
	if model == "" {
		model = "gpt-4o"
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &OpenAIAdapter{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

// Chat sends a chat completion request and returns the complete response.
func (a *OpenAIAdapter) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return nil, a.wrapError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response", llm.ErrAPIError)
	}

	return &llm.ChatResponse{
		Message: llm.ChatMessage{
			Role:    llm.RoleAssistant,
			Content: resp.Choices[0].Message.Content,
		},
		Usage: llm.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Model: resp.Model,
	}, nil
}

// Capabilities returns the provider's capabilities.
func (a *OpenAIAdapter) Capabilities() llm.Capabilities {
	if caps, ok := openaiModelCapabilities[a.model]; ok {
		return caps
	}
	for prefix, caps := range openaiModelCapabilities {
		if strings.HasPrefix(a.model, prefix) {
			return caps
		}
	}
	return defaultOpenAICapabilities
}

// Close releases resources held by the adapter.
func (a *OpenAIAdapter) Close() error {
	return nil
}

// wrapError maps API failures onto the package sentinel errors.
func (a *OpenAIAdapter) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 401:
			return fmt.Errorf("%w: %v", llm.ErrInvalidAPIKey, err)
		case 429:
			return fmt.Errorf("%w: %v", llm.ErrRateLimited, err)
		}
		if apiErr.Code == "context_length_exceeded" {
			return fmt.Errorf("%w: %v", llm.ErrContextTooLong, err)
		}
	}
	return fmt.Errorf("%w: %v", llm.ErrAPIError, err)
}
