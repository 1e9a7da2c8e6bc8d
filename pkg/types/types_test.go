package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidElementType(t *testing.T) {
	for _, typ := range ElementTypes {
		assert.True(t, ValidElementType(typ))
	}
	assert.False(t, ValidElementType("sidekick"))
	assert.False(t, ValidElementType(""))
}

func TestValidRelationType(t *testing.T) {
	assert.True(t, ValidRelationType(RelationMentor))
	assert.False(t, ValidRelationType("frenemy"))
}

func TestRelationTypesDirectionality(t *testing.T) {
	assert.True(t, RelationTypes[RelationMentor].Directed)
	assert.False(t, RelationTypes[RelationAlly].Directed)
}

func TestStoryClone(t *testing.T) {
	original := &Story{
		ID:    "s1",
		Title: "Original",
		Elements: map[ElementType][]Element{
			ElementCharacter: {{ID: "c1", Name: "Mira"}},
			ElementTheme:     {},
		},
		Relationships: []Relationship{{ID: "r1", SourceID: "c1", TargetID: "c2"}},
		Chapters:      []Chapter{{ID: "ch1", Title: "Chapter 1", Content: "text"}},
		Versions: []Version{{
			ID:       "v1",
			Number:   1,
			Snapshot: VersionSnapshot{ElementCounts: map[ElementType]int{ElementCharacter: 1}},
		}},
	}

	clone := original.Clone()
	require.NotSame(t, original, clone)

	clone.Elements[ElementCharacter][0].Name = "Changed"
	clone.Elements[ElementCharacter] = append(clone.Elements[ElementCharacter], Element{ID: "c2"})
	clone.Relationships[0].Type = RelationEnemy
	clone.Chapters[0].Content = "rewritten"
	clone.Versions[0].Snapshot.ElementCounts[ElementCharacter] = 99

	assert.Equal(t, "Mira", original.Elements[ElementCharacter][0].Name)
	assert.Len(t, original.Elements[ElementCharacter], 1)
	assert.Empty(t, original.Relationships[0].Type)
	assert.Equal(t, "text", original.Chapters[0].Content)
	assert.Equal(t, 1, original.Versions[0].Snapshot.ElementCounts[ElementCharacter])
}

func TestTotalElements(t *testing.T) {
	s := &Story{Elements: map[ElementType][]Element{
		ElementCharacter: {{}, {}},
		ElementLocation:  {{}},
		ElementArc:       {},
	}}
	assert.Equal(t, 3, s.TotalElements())
}

func TestValidContinueMode(t *testing.T) {
	for _, mode := range []ContinueMode{ModeNatural, ModeTwist, ModeConflict, ModeResolution} {
		assert.True(t, ValidContinueMode(mode))
	}
	assert.False(t, ValidContinueMode("epilogue"))
}

func TestDefaultGlobalConfig(t *testing.T) {
	config := DefaultGlobalConfig()
	assert.Equal(t, 1, config.Version)
	assert.Equal(t, "openai", config.Defaults.Provider)
	assert.NotNil(t, config.Providers)
	assert.Equal(t, "info", config.Logging.Level)
}
