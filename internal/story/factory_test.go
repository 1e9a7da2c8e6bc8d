package story

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyloom/pkg/types"
)

func TestNewElement(t *testing.T) {
	t.Run("rejects types outside the closed set", func(t *testing.T) {
		_, err := NewElement("sidekick", types.ElementData{Name: "X"})
		assert.ErrorIs(t, err, ErrInvalidElementType)
	})

	t.Run("applies caller data", func(t *testing.T) {
		el, err := NewElement(types.ElementArc, types.ElementData{
			Name:    "The Fall",
			Summary: "everything unravels",
		})
		require.NoError(t, err)
		assert.Equal(t, types.ElementArc, el.Type)
		assert.Equal(t, "everything unravels", el.Summary)
	})
}

func TestValidateElement(t *testing.T) {
	el, err := NewElement(types.ElementCharacter, types.ElementData{})
	require.NoError(t, err)

	v := ValidateElement(el, types.ElementCharacter)
	assert.False(t, v.IsValid)
	require.Len(t, v.Errors, 1)
	assert.Equal(t, "name is required", v.Errors[0])
}

func TestNewRelationship(t *testing.T) {
	t.Run("rejects missing endpoints", func(t *testing.T) {
		_, err := NewRelationship("", "b", types.RelationAlly, "")
		assert.ErrorIs(t, err, ErrMissingEndpoint)
	})

	t.Run("rejects unknown type", func(t *testing.T) {
		_, err := NewRelationship("a", "b", "frenemy", "")
		assert.ErrorIs(t, err, ErrInvalidRelationType)
	})
}

func TestNewVersion(t *testing.T) {
	s := New("Test Story")
	s, _ = addElement(t, s, types.ElementCharacter, "Mira")
	s, _ = addElement(t, s, types.ElementTheme, "Decay")

	v := NewVersion(s, "checkpoint")
	assert.Equal(t, s.CurrentVersion, v.Number)
	assert.Equal(t, "checkpoint", v.Summary)
	assert.Equal(t, 1, v.Snapshot.ElementCounts[types.ElementCharacter])
	assert.Equal(t, 1, v.Snapshot.ElementCounts[types.ElementTheme])
	assert.Equal(t, 1, v.Snapshot.ChapterCount)
	assert.Equal(t, 0, v.Snapshot.RelationshipCount)
}
