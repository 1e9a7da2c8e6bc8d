package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyloom/internal/story"
	"storyloom/pkg/types"
)

// stubProvider returns canned responses in order.
type stubProvider struct {
	responses []string
	requests  []ChatRequest
}

func (p *stubProvider) Chat(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	p.requests = append(p.requests, req)
	if len(p.responses) == 0 {
		return nil, ErrAPIError
	}
	content := p.responses[0]
	p.responses = p.responses[1:]
	return &ChatResponse{
		Message: ChatMessage{Role: RoleAssistant, Content: content},
		Model:   "stub",
	}, nil
}

func (p *stubProvider) Capabilities() Capabilities {
	return Capabilities{MaxContextTokens: 128000, MaxOutputTokens: 4096}
}

func (p *stubProvider) Close() error { return nil }

func newTestGenerator(responses ...string) (*Generator, *stubProvider) {
	provider := &stubProvider{responses: responses}
	return NewGenerator(provider, NewCompiler(nil), nil), provider
}

const continuationPayload = `{
  "options": [
    {"title": "A", "preview": "a", "tone": "calm", "impact": "low", "continuation": {"chapter_content": "aaa"}},
    {"title": "B", "preview": "b", "tone": "tense", "impact": "medium", "continuation": {"chapter_content": "bbb"}},
    {"title": "C", "preview": "c", "tone": "dark", "impact": "high", "continuation": {"chapter_content": "ccc"}}
  ]
}`

func TestExtractJSON(t *testing.T) {
	t.Run("raw object", func(t *testing.T) {
		out, err := extractJSON(`{"a": 1}`)
		require.NoError(t, err)
		assert.Equal(t, `{"a": 1}`, out)
	})

	t.Run("json fence", func(t *testing.T) {
		out, err := extractJSON("Here you go:\n```json\n{\"a\": 1}\n```\nEnjoy!")
		require.NoError(t, err)
		assert.Equal(t, `{"a": 1}`, out)
	})

	t.Run("bare fence", func(t *testing.T) {
		out, err := extractJSON("```\n{\"a\": 1}\n```")
		require.NoError(t, err)
		assert.Equal(t, `{"a": 1}`, out)
	})

	t.Run("surrounding prose", func(t *testing.T) {
		out, err := extractJSON(`The result is {"a": 1} as requested.`)
		require.NoError(t, err)
		assert.Equal(t, `{"a": 1}`, out)
	})

	t.Run("no JSON at all", func(t *testing.T) {
		_, err := extractJSON("I cannot help with that.")
		assert.ErrorIs(t, err, ErrNoJSON)
	})
}

func TestGenerate(t *testing.T) {
	t.Run("parses a full payload", func(t *testing.T) {
		generator, _ := newTestGenerator(`{
			"title": "Generated",
			"genre": "fantasy",
			"elements": {"character": [{"name": "Mira"}]},
			"chapters": [{"title": "Opening", "content": "It begins."}]
		}`)

		generated, err := generator.Generate(context.Background(), GenerateRequest{Title: "Generated", Idea: "a map that lies"})
		require.NoError(t, err)
		assert.Equal(t, "fantasy", generated.Genre)
		assert.Len(t, generated.Elements[types.ElementCharacter], 1)
	})

	t.Run("rejects an empty request", func(t *testing.T) {
		generator, _ := newTestGenerator()
		_, err := generator.Generate(context.Background(), GenerateRequest{})
		assert.ErrorIs(t, err, ErrEmptyPrompt)
	})

	t.Run("malformed payload is a hard failure", func(t *testing.T) {
		generator, _ := newTestGenerator(`{"elements": "not-a-map"}`)
		_, err := generator.Generate(context.Background(), GenerateRequest{Idea: "x"})
		assert.ErrorIs(t, err, ErrMalformedPayload)
	})
}

func TestRegenerate(t *testing.T) {
	generator, provider := newTestGenerator(`{
		"suggestions": ["darken the atlas subplot"],
		"new_elements": {"theme": [{"name": "Deception"}]}
	}`)

	changes := []types.FieldChange{{Field: "genre", OldValue: "fantasy", NewValue: "horror"}}
	result, err := generator.Regenerate(context.Background(), story.New("S"), changes)
	require.NoError(t, err)

	assert.Equal(t, []string{"darken the atlas subplot"}, result.Suggestions)
	assert.Len(t, result.NewElements[types.ElementTheme], 1)
	require.Len(t, provider.requests, 1)
	assert.Contains(t, provider.requests[0].Messages[1].Content, `"field":"genre"`)
}

func TestContinue(t *testing.T) {
	t.Run("accepts exactly three options", func(t *testing.T) {
		generator, _ := newTestGenerator(continuationPayload)

		options, err := generator.Continue(context.Background(), story.New("S"), types.ModeNatural, "")
		require.NoError(t, err)
		require.Len(t, options, 3)
		assert.Equal(t, "aaa", options[0].Continuation.ChapterContent)
		assert.Equal(t, types.ImpactHigh, options[2].Impact)
	})

	t.Run("two options is a hard failure", func(t *testing.T) {
		generator, _ := newTestGenerator(`{"options": [
			{"title": "A", "continuation": {"chapter_content": "a"}},
			{"title": "B", "continuation": {"chapter_content": "b"}}
		]}`)

		_, err := generator.Continue(context.Background(), story.New("S"), types.ModeNatural, "")
		assert.ErrorIs(t, err, ErrBadOptionCount)
	})

	t.Run("four options is also a hard failure", func(t *testing.T) {
		generator, _ := newTestGenerator(`{"options": [
			{"title": "A"}, {"title": "B"}, {"title": "C"}, {"title": "D"}
		]}`)

		_, err := generator.Continue(context.Background(), story.New("S"), types.ModeNatural, "")
		assert.ErrorIs(t, err, ErrBadOptionCount)
	})

	t.Run("unparsable payload is never padded or clamped", func(t *testing.T) {
		generator, _ := newTestGenerator("Sorry, something went wrong.")
		_, err := generator.Continue(context.Background(), story.New("S"), types.ModeNatural, "")
		assert.ErrorIs(t, err, ErrNoJSON)
	})

	t.Run("unknown mode is rejected before any request", func(t *testing.T) {
		generator, provider := newTestGenerator(continuationPayload)
		_, err := generator.Continue(context.Background(), story.New("S"), "epilogue", "")
		assert.ErrorIs(t, err, ErrUnknownMode)
		assert.Empty(t, provider.requests)
	})

	t.Run("fenced responses parse", func(t *testing.T) {
		generator, _ := newTestGenerator("```json\n" + continuationPayload + "\n```")
		options, err := generator.Continue(context.Background(), story.New("S"), types.ModeTwist, "raise the stakes")
		require.NoError(t, err)
		assert.Len(t, options, 3)
	})
}
