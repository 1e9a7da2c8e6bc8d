package adapters

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"storyloom/internal/llm"
)

// geminiModelCapabilities maps model names to their capabilities.
var geminiModelCapabilities = map[string]llm.Capabilities{
	"gemini-2.0-flash": {
		MaxContextTokens: 1048576,
		MaxOutputTokens:  8192,
		TokenizerType:    "gemini",
	},
	"gemini-2.5-pro": {
		MaxContextTokens: 1048576,
		MaxOutputTokens:  65536,
		TokenizerType:    "gemini",
	},
	"gemini-2.5-flash": {
		MaxContextTokens: 1048576,
		MaxOutputTokens:  65536,
		TokenizerType:    "gemini",
	},
}

// defaultGeminiCapabilities are used when the model is not in the known
// list.
var defaultGeminiCapabilities = llm.Capabilities{
	MaxContextTokens: 128000,
	MaxOutputTokens:  8192,
	TokenizerType:    "gemini",
}

// GeminiAdapter implements the Provider interface for Google's Gemini API.
type GeminiAdapter struct {
	client *genai.Client
	model  string
}

// NewGeminiAdapter creates a new adapter for Google's Gemini API.
func NewGeminiAdapter(ctx context.Context, apiKey, model string) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, llm.ErrInvalidAPIKey
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiAdapter{client: client, model: model}, nil
}

// Chat sends a chat completion request and returns the complete response.
func (a *GeminiAdapter) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	contents, systemInstruction := a.convertMessages(req.Messages)

	config := &genai.GenerateContentConfig{}
	if systemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		}
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		config.Temperature = &temp
	}

	result, err := a.client.Models.GenerateContent(ctx, a.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", llm.ErrAPIError, err)
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return nil, fmt.Errorf("%w: empty response", llm.ErrAPIError)
	}

	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}

	resp := &llm.ChatResponse{
		Message: llm.ChatMessage{
			Role:    llm.RoleAssistant,
			Content: sb.String(),
		},
		Model: a.model,
	}
	if result.UsageMetadata != nil {
		resp.Usage = llm.TokenUsage{
			PromptTokens:     int(result.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(result.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(result.UsageMetadata.TotalTokenCount),
		}
	}
	return resp, nil
}

// convertMessages maps chat messages to Gemini contents, lifting system
// messages into the system instruction.
func (a *GeminiAdapter) convertMessages(messages []llm.ChatMessage) ([]*genai.Content, string) {
	var contents []*genai.Content
	var system []string

	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			system = append(system, msg.Content)
		case llm.RoleAssistant:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		}
	}

	return contents, strings.Join(system, "\n\n")
}

// Capabilities returns the provider's capabilities.
func (a *GeminiAdapter) Capabilities() llm.Capabilities {
	if caps, ok := geminiModelCapabilities[a.model]; ok {
		return caps
	}
	for prefix, caps := range geminiModelCapabilities {
		if strings.HasPrefix(a.model, prefix) {
			return caps
		}
	}
	return defaultGeminiCapabilities
}

// Close releases resources held by the adapter.
func (a *GeminiAdapter) Close() error {
	return nil
}
