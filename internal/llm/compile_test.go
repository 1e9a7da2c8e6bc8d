package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyloom/internal/story"
	"storyloom/internal/token"
	"storyloom/pkg/types"
)

func compiledFixture(t *testing.T) *types.Story {
	t.Helper()
	s := story.New("Compiled Story")

	mira := story.CreateElement(s, types.ElementCharacter, types.ElementData{
		Name:       "Mira",
		Role:       "protagonist",
		Motivation: "find the lost atlas",
	})
	require.Empty(t, mira.Errors)
	voss := story.CreateElement(mira.Story, types.ElementAntagonist, types.ElementData{Name: "Voss"})
	require.Empty(t, voss.Errors)
	s = voss.Story

	rel := story.CreateRelationship(s, story.RelationshipData{
		SourceID: mira.Element.ID,
		TargetID: voss.Element.ID,
		Type:     types.RelationEnemy,
	})
	require.Empty(t, rel.Errors)
	return rel.Story
}

func TestCompile(t *testing.T) {
	compiler := NewCompiler(nil)

	t.Run("elements are abbreviated with details string", func(t *testing.T) {
		state := compiler.Compile(compiledFixture(t))

		require.Len(t, state.Elements[types.ElementCharacter], 1)
		el := state.Elements[types.ElementCharacter][0]
		assert.Equal(t, "Mira", el.Name)
		assert.Equal(t, "protagonist", el.Role)
		assert.Contains(t, el.Details, "motivation: find the lost atlas")
	})

	t.Run("relationships reference elements by name", func(t *testing.T) {
		state := compiler.Compile(compiledFixture(t))

		require.Len(t, state.Relationships, 1)
		assert.Equal(t, "Mira", state.Relationships[0].Source)
		assert.Equal(t, "Voss", state.Relationships[0].Target)
	})

	t.Run("chapter content is truncated to the tail window", func(t *testing.T) {
		s := compiledFixture(t)
		long := strings.Repeat("a", 3000) + "THE END"
		out, errs := story.UpdateChapter(s, s.Chapters[0].ID, story.ChapterPatch{Content: &long})
		require.Nil(t, errs)

		state := compiler.Compile(out)
		require.Len(t, state.Chapters, 1)
		content := state.Chapters[0].Content
		assert.Equal(t, types.ChapterTailChars, len([]rune(content)))
		assert.True(t, strings.HasSuffix(content, "THE END"), "the tail keeps the end of the chapter")
	})

	t.Run("token-dense tails are trimmed to the token budget", func(t *testing.T) {
		counter, err := token.NewCounter("cl100k_base")
		require.NoError(t, err)
		budgeted := NewCompiler(counter)

		s := compiledFixture(t)
		long := strings.Repeat("物語の断片", 600)
		out, errs := story.UpdateChapter(s, s.Chapters[0].ID, story.ChapterPatch{Content: &long})
		require.Nil(t, errs)

		state := budgeted.Compile(out)
		require.Len(t, state.Chapters, 1)
		content := state.Chapters[0].Content
		assert.LessOrEqual(t, counter.Count(content), chapterTailTokens)
		assert.Less(t, len([]rune(content)), types.ChapterTailChars)
		assert.True(t, strings.HasSuffix(long, content), "the budgeted tail is still a suffix")
	})

	t.Run("short chapters pass through untouched", func(t *testing.T) {
		s := compiledFixture(t)
		short := "brief"
		out, errs := story.UpdateChapter(s, s.Chapters[0].ID, story.ChapterPatch{Content: &short})
		require.Nil(t, errs)

		state := compiler.Compile(out)
		assert.Equal(t, "brief", state.Chapters[0].Content)
	})
}

func TestCompilerTokens(t *testing.T) {
	compiler := NewCompiler(nil)
	state := compiler.Compile(compiledFixture(t))

	assert.Greater(t, compiler.Tokens(state), 0)
}
