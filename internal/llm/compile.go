package llm

import (
	"encoding/json"
	"strings"

	"storyloom/internal/token"
	"storyloom/pkg/types"
)

// chapterTailTokens caps a compiled chapter tail. The rune window alone
// overshoots the prompt budget for token-dense scripts, where a single
// character can cost one or more tokens.
const chapterTailTokens = 800

// Compiler produces the abbreviated transport form of a story for the
// generation endpoints.
type Compiler struct {
	counter *token.Counter
}

// NewCompiler creates a compiler. The counter may be nil, in which case
// token accounting falls back to the character heuristic.
func NewCompiler(counter *token.Counter) *Compiler {
	return &Compiler{counter: counter}
}

// Compile abbreviates each element to its identifying fields and truncates
// every chapter to the trailing window of types.ChapterTailChars
// characters (further trimmed to chapterTailTokens when a counter is
// available). Continuations are therefore generated without awareness of
// chapter content before that tail.
func (c *Compiler) Compile(s *types.Story) types.CompiledState {
	state := types.CompiledState{
		ID:       s.ID,
		Title:    s.Title,
		Genre:    s.Genre,
		Tone:     s.Tone,
		Synopsis: s.Synopsis,
		Setting:  s.Setting,
		Elements: make(map[types.ElementType][]types.CompiledElement, len(types.ElementTypes)),
	}

	names := make(map[string]string)
	for _, typ := range types.ElementTypes {
		compiled := make([]types.CompiledElement, 0, len(s.Elements[typ]))
		for _, el := range s.Elements[typ] {
			names[el.ID] = el.Name
			compiled = append(compiled, types.CompiledElement{
				ID:          el.ID,
				Name:        el.Name,
				Type:        el.Type,
				Role:        el.Role,
				Description: el.Description,
				Details:     elementDetails(el),
			})
		}
		state.Elements[typ] = compiled
	}

	for _, rel := range s.Relationships {
		source, okSource := names[rel.SourceID]
		target, okTarget := names[rel.TargetID]
		if !okSource || !okTarget {
			continue
		}
		state.Relationships = append(state.Relationships, types.CompiledRelationship{
			Source: source,
			Target: target,
			Type:   rel.Type,
		})
	}

	for _, ch := range s.Chapters {
		state.Chapters = append(state.Chapters, types.CompiledChapter{
			Title:   ch.Title,
			Content: c.chapterTail(ch.Content),
		})
	}

	return state
}

// chapterTail trims chapter content to the trailing rune window, then to
// the token budget when a counter is available.
func (c *Compiler) chapterTail(content string) string {
	trimmed := tail(content, types.ChapterTailChars)
	if c.counter == nil {
		return trimmed
	}
	return c.counter.TruncateToFit(trimmed, chapterTailTokens, true)
}

// Tokens reports the token footprint of a compiled state as it will be
// embedded in a prompt.
func (c *Compiler) Tokens(state types.CompiledState) int {
	data, err := json.Marshal(state)
	if err != nil {
		return 0
	}
	if c.counter == nil {
		return token.Estimate(string(data))
	}
	return c.counter.Count(string(data))
}

// elementDetails joins the type-specific attribute fields into one
// transport string.
func elementDetails(el types.Element) string {
	var parts []string
	add := func(label, v string) {
		if v != "" {
			parts = append(parts, label+": "+v)
		}
	}

	switch el.Type {
	case types.ElementCharacter, types.ElementAntagonist:
		add("motivation", el.Motivation)
		add("backstory", el.Backstory)
	case types.ElementLocation:
		add("atmosphere", el.Atmosphere)
		add("significance", el.Significance)
	case types.ElementArc:
		add("summary", el.Summary)
		add("resolution", el.Resolution)
	case types.ElementTheme:
		add("statement", el.Statement)
		add("exploration", el.Exploration)
	}

	return strings.Join(parts, "; ")
}

// tail returns the trailing n runes of s.
func tail(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
