package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"storyloom/pkg/types"
)

// Generation errors. Malformed payloads are hard failures of the whole
// request; there is no partial recovery or option padding.
var (
	// ErrEmptyPrompt is returned when a request carries no usable input.
	ErrEmptyPrompt = errors.New("prompt cannot be empty")

	// ErrNoJSON is returned when the model response contains no JSON
	// payload.
	ErrNoJSON = errors.New("no JSON payload in response")

	// ErrMalformedPayload is returned when the JSON payload does not match
	// the expected shape.
	ErrMalformedPayload = errors.New("malformed generation payload")

	// ErrBadOptionCount is returned when a continuation response does not
	// contain exactly three options.
	ErrBadOptionCount = errors.New("continuation response must contain exactly 3 options")

	// ErrUnknownMode is returned for continuation modes outside the fixed
	// set.
	ErrUnknownMode = errors.New("unknown continuation mode")
)

// continuationOptionCount is fixed by the endpoint contract; responses with
// any other count are rejected, never clamped or padded.
const continuationOptionCount = 3

// Generator drives the generation and continuation endpoints.
type Generator struct {
	provider Provider
	compiler *Compiler
	logger   *slog.Logger
}

// NewGenerator creates a generator over the given provider.
func NewGenerator(provider Provider, compiler *Compiler, logger *slog.Logger) *Generator {
	if compiler == nil {
		compiler = NewCompiler(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{provider: provider, compiler: compiler, logger: logger}
}

// GenerateRequest seeds a fresh story generation.
type GenerateRequest struct {
	Title string
	Idea  string
	Genre string
	Tone  string
}

// Generate asks the model for a complete story payload. The returned
// payload still uses positional element references; callers convert it via
// the story controller's transform.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) (*types.GeneratedStory, error) {
	if strings.TrimSpace(req.Idea) == "" && strings.TrimSpace(req.Title) == "" {
		return nil, ErrEmptyPrompt
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Title: %s\nIdea: %s\n", req.Title, req.Idea)
	if req.Genre != "" {
		fmt.Fprintf(&sb, "Genre: %s\n", req.Genre)
	}
	if req.Tone != "" {
		fmt.Fprintf(&sb, "Tone: %s\n", req.Tone)
	}

	resp, err := g.chat(ctx, generateSystemPrompt, sb.String(), 0.8)
	if err != nil {
		return nil, err
	}

	var generated types.GeneratedStory
	if err := decodePayload(resp, &generated); err != nil {
		return nil, err
	}
	if generated.Title == "" {
		generated.Title = req.Title
	}
	return &generated, nil
}

// Regenerate submits the compiled state together with the field edits and
// returns the model's suggestions and proposed new elements.
func (g *Generator) Regenerate(ctx context.Context, s *types.Story, changes []types.FieldChange) (*types.RegenerateResult, error) {
	if len(changes) == 0 {
		return nil, ErrEmptyPrompt
	}

	payload := struct {
		Story      types.CompiledState `json:"story"`
		Regenerate bool                `json:"regenerate"`
		Changes    []types.FieldChange `json:"changes"`
	}{Story: g.compiler.Compile(s), Regenerate: true, Changes: changes}

	user, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode regeneration request: %w", err)
	}

	resp, err := g.chat(ctx, regenerateSystemPrompt, string(user), 0.7)
	if err != nil {
		return nil, err
	}

	var result types.RegenerateResult
	if err := decodePayload(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Continue submits the compiled state and returns exactly three
// continuation options. Any other count, or an unparsable payload, fails
// the whole request.
func (g *Generator) Continue(ctx context.Context, s *types.Story, mode types.ContinueMode, userPrompt string) ([]types.ContinuationOption, error) {
	if !types.ValidContinueMode(mode) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	state := g.compiler.Compile(s)
	g.logger.Debug("compiled story state", "story_id", s.ID, "tokens", g.compiler.Tokens(state))

	payload := struct {
		Story      types.CompiledState `json:"story"`
		Mode       types.ContinueMode  `json:"mode"`
		UserPrompt string              `json:"user_prompt,omitempty"`
	}{Story: state, Mode: mode, UserPrompt: userPrompt}

	user, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode continuation request: %w", err)
	}

	resp, err := g.chat(ctx, continueSystemPrompt, string(user), 0.8)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Options []types.ContinuationOption `json:"options"`
	}
	if err := decodePayload(resp, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Options) != continuationOptionCount {
		return nil, fmt.Errorf("%w: got %d", ErrBadOptionCount, len(parsed.Options))
	}
	return parsed.Options, nil
}

// chat runs one system+user exchange against the provider.
func (g *Generator) chat(ctx context.Context, system, user string, temperature float64) (string, error) {
	resp, err := g.provider.Chat(ctx, ChatRequest{
		Messages: []ChatMessage{
			NewSystemMessage(system),
			NewUserMessage(user),
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("provider error: %w", err)
	}
	return resp.Message.Content, nil
}

// decodePayload extracts the JSON document from a model response and
// unmarshals it into out.
func decodePayload(content string, out any) error {
	raw, err := extractJSON(content)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

// extractJSON locates the JSON document inside a model response, tolerating
// markdown fences and surrounding prose.
func extractJSON(content string) (string, error) {
	if idx := strings.Index(content, "```json"); idx >= 0 {
		content = content[idx+len("```json"):]
		if end := strings.Index(content, "```"); end >= 0 {
			content = content[:end]
		}
	} else if idx := strings.Index(content, "```"); idx >= 0 {
		content = content[idx+len("```"):]
		if end := strings.Index(content, "```"); end >= 0 {
			content = content[:end]
		}
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return "", ErrNoJSON
	}
	return content[start : end+1], nil
}

const generateSystemPrompt = `You are a story development assistant. Given a title and an idea, produce a complete story foundation as a single JSON object with this exact shape:

{
  "title": "...",
  "genre": "...",
  "tone": "...",
  "synopsis": "...",
  "setting": "...",
  "elements": {
    "character": [{"name": "...", "description": "...", "role": "...", "motivation": "...", "backstory": "..."}],
    "antagonist": [{"name": "...", "description": "...", "role": "...", "motivation": "..."}],
    "location": [{"name": "...", "description": "...", "atmosphere": "...", "significance": "..."}],
    "arc": [{"name": "...", "description": "...", "summary": "..."}],
    "theme": [{"name": "...", "description": "...", "statement": "..."}]
  },
  "chapters": [{"title": "Chapter 1", "content": "..."}],
  "relationships": [{"source_type": "character", "source_index": 0, "target_type": "antagonist", "target_index": 0, "type": "enemy", "description": "..."}]
}

Relationship endpoints reference elements by type and zero-based position within that type's list in this same payload. Valid relationship types: ally, enemy, family, romance, mentor, rival. Respond with JSON only.`

const regenerateSystemPrompt = `You are a story development assistant. The user changed foundational fields of an existing story; the request carries the abbreviated story state and the list of changes. Suggest how existing elements could be adapted and propose new elements where the changes open gaps. Respond with a single JSON object:

{
  "suggestions": ["..."],
  "new_elements": {"character": [{"name": "...", "description": "..."}]}
}

Respond with JSON only.`

const continueSystemPrompt = `You are a story continuation assistant. The request carries the abbreviated story state, a continuation mode and an optional user prompt. Chapter content includes only its most recent portion. Respond with a single JSON object containing exactly 3 options:

{
  "options": [
    {
      "title": "...",
      "preview": "...",
      "tone": "...",
      "impact": "high|medium|low",
      "continuation": {
        "chapter_content": "...",
        "synopsis": "optional updated synopsis",
        "new_elements": {"character": [{"name": "...", "description": "..."}]},
        "updated_elements": [{"id": "...", "description": "..."}],
        "new_relationships": [{"source": "name or id", "target": "name or id", "type": "ally", "description": "..."}]
      }
    }
  ]
}

Exactly 3 options, no more, no fewer. Respond with JSON only.`
