// Package story implements the story aggregate's factories, validators and
// mutation controllers. Every mutation takes the current story snapshot and
// returns a new one; the input is never modified.
package story

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"storyloom/pkg/types"
)

var (
	// ErrInvalidElementType is returned when an element type is not in the
	// closed set.
	ErrInvalidElementType = errors.New("unknown element type")

	// ErrInvalidRelationType is returned when a relationship type is not in
	// the closed set.
	ErrInvalidRelationType = errors.New("unknown relationship type")

	// ErrMissingEndpoint is returned when a relationship is constructed
	// without both endpoints.
	ErrMissingEndpoint = errors.New("relationship requires both endpoints")

	// ErrLastChapter is raised (panicked) when a removal would leave a story
	// with zero chapters. There is no valid story state without a chapter,
	// so this is not returned as data.
	ErrLastChapter = errors.New("a story must keep at least one chapter")
)

// requiredFields lists the validated fields per element type. Name is
// currently the only required field for every type.
var requiredFields = map[types.ElementType][]string{
	types.ElementCharacter:  {"name"},
	types.ElementAntagonist: {"name"},
	types.ElementLocation:   {"name"},
	types.ElementArc:        {"name"},
	types.ElementTheme:      {"name"},
}

// New creates a story with one default chapter, an empty bucket for every
// element type, no relationships, version 1 and no snapshots.
func New(title string) *types.Story {
	now := time.Now()

	elements := make(map[types.ElementType][]types.Element, len(types.ElementTypes))
	for _, typ := range types.ElementTypes {
		elements[typ] = []types.Element{}
	}

	return &types.Story{
		ID:             uuid.NewString(),
		Title:          title,
		Elements:       elements,
		Relationships:  []types.Relationship{},
		Chapters:       []types.Chapter{NewChapter("Chapter 1", "")},
		CurrentChapter: 0,
		Versions:       []types.Version{},
		CurrentVersion: 1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// NewElement constructs an element of the given type with a generated id
// and timestamps. It rejects unknown types but does not validate required
// fields; that is ValidateElement's job.
func NewElement(typ types.ElementType, data types.ElementData) (types.Element, error) {
	if !types.ValidElementType(typ) {
		return types.Element{}, fmt.Errorf("%w: %q", ErrInvalidElementType, typ)
	}

	now := time.Now()
	el := types.Element{
		ID:        uuid.NewString(),
		Type:      typ,
		CreatedAt: now,
		UpdatedAt: now,
	}
	mergeElementData(&el, data)
	return el, nil
}

// mergeElementData overwrites the element's attribute fields with the
// non-empty fields of data. ID, Type and timestamps are left untouched.
func mergeElementData(el *types.Element, data types.ElementData) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&el.Name, data.Name)
	set(&el.Description, data.Description)
	set(&el.Role, data.Role)
	set(&el.Motivation, data.Motivation)
	set(&el.Backstory, data.Backstory)
	set(&el.Atmosphere, data.Atmosphere)
	set(&el.Significance, data.Significance)
	set(&el.Summary, data.Summary)
	set(&el.Resolution, data.Resolution)
	set(&el.Statement, data.Statement)
	set(&el.Exploration, data.Exploration)
}

// ValidationResult reports field-level validation of an element.
type ValidationResult struct {
	IsValid bool
	Errors  []string
}

// ValidateElement checks the type's required fields. It returns one error
// string per missing field.
func ValidateElement(el types.Element, typ types.ElementType) ValidationResult {
	var errs []string
	for _, field := range requiredFields[typ] {
		switch field {
		case "name":
			if strings.TrimSpace(el.Name) == "" {
				errs = append(errs, "name is required")
			}
		}
	}
	return ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}

// NewRelationship constructs a relationship with a generated id. Both
// endpoints must be present and the type must be known.
func NewRelationship(sourceID, targetID string, typ types.RelationType, description string) (types.Relationship, error) {
	if sourceID == "" || targetID == "" {
		return types.Relationship{}, ErrMissingEndpoint
	}
	if !types.ValidRelationType(typ) {
		return types.Relationship{}, fmt.Errorf("%w: %q", ErrInvalidRelationType, typ)
	}

	return types.Relationship{
		ID:          uuid.NewString(),
		SourceID:    sourceID,
		TargetID:    targetID,
		Type:        typ,
		Description: description,
		CreatedAt:   time.Now(),
	}, nil
}

// ValidateRelationship checks endpoints, type and self-reference. The
// returned map is keyed by field name; an empty map means valid.
func ValidateRelationship(rel types.Relationship) map[string]string {
	errs := make(map[string]string)
	if rel.SourceID == "" {
		errs["source_id"] = "source is required"
	}
	if rel.TargetID == "" {
		errs["target_id"] = "target is required"
	}
	if !types.ValidRelationType(rel.Type) {
		errs["type"] = "unknown relationship type"
	}
	if rel.SourceID != "" && rel.SourceID == rel.TargetID {
		errs["target_id"] = "an element cannot relate to itself"
	}
	return errs
}

// NewChapter constructs a chapter with a generated id.
func NewChapter(title, content string) types.Chapter {
	return types.Chapter{
		ID:        uuid.NewString(),
		Title:     title,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewVersion captures a count-only snapshot of the story. The version
// number is the story's current version; incrementing it is the story
// controller's responsibility.
func NewVersion(s *types.Story, summary string) types.Version {
	counts := make(map[types.ElementType]int, len(types.ElementTypes))
	for _, typ := range types.ElementTypes {
		counts[typ] = len(s.Elements[typ])
	}

	return types.Version{
		ID:      uuid.NewString(),
		Number:  s.CurrentVersion,
		Summary: summary,
		Snapshot: types.VersionSnapshot{
			ElementCounts:     counts,
			ChapterCount:      len(s.Chapters),
			RelationshipCount: len(s.Relationships),
		},
		CreatedAt: time.Now(),
	}
}
