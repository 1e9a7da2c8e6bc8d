// Package types provides shared data models for storyloom.
package types

import (
	"time"
)

// ElementType identifies one of the fixed story element categories.
type ElementType string

// The closed set of element types. Every story carries a bucket for each,
// even when empty.
const (
	ElementCharacter  ElementType = "character"
	ElementAntagonist ElementType = "antagonist"
	ElementLocation   ElementType = "location"
	ElementArc        ElementType = "arc"
	ElementTheme      ElementType = "theme"
)

// ElementTypes lists all element types in canonical order.
var ElementTypes = []ElementType{
	ElementCharacter,
	ElementAntagonist,
	ElementLocation,
	ElementArc,
	ElementTheme,
}

// ValidElementType reports whether t is a member of the closed set.
func ValidElementType(t ElementType) bool {
	for _, known := range ElementTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Element is a tracked story entity owned by exactly one story.
// Name is required for every type; the remaining attribute fields are
// meaningful only for the types noted on each field.
type Element struct {
	ID          string      `yaml:"id" json:"id"`
	Type        ElementType `yaml:"type" json:"type"`
	Name        string      `yaml:"name" json:"name"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`

	// character, antagonist
	Role       string `yaml:"role,omitempty" json:"role,omitempty"`
	Motivation string `yaml:"motivation,omitempty" json:"motivation,omitempty"`
	Backstory  string `yaml:"backstory,omitempty" json:"backstory,omitempty"`

	// location
	Atmosphere   string `yaml:"atmosphere,omitempty" json:"atmosphere,omitempty"`
	Significance string `yaml:"significance,omitempty" json:"significance,omitempty"`

	// arc
	Summary    string `yaml:"summary,omitempty" json:"summary,omitempty"`
	Resolution string `yaml:"resolution,omitempty" json:"resolution,omitempty"`

	// theme
	Statement   string `yaml:"statement,omitempty" json:"statement,omitempty"`
	Exploration string `yaml:"exploration,omitempty" json:"exploration,omitempty"`

	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at" json:"updated_at"`
}

// ElementData carries the caller-supplied attribute fields for creating or
// updating an element. On update, only non-empty fields overwrite the
// existing values; ID, Type and timestamps are never caller-controlled.
type ElementData struct {
	Name         string `json:"name,omitempty"`
	Description  string `json:"description,omitempty"`
	Role         string `json:"role,omitempty"`
	Motivation   string `json:"motivation,omitempty"`
	Backstory    string `json:"backstory,omitempty"`
	Atmosphere   string `json:"atmosphere,omitempty"`
	Significance string `json:"significance,omitempty"`
	Summary      string `json:"summary,omitempty"`
	Resolution   string `json:"resolution,omitempty"`
	Statement    string `json:"statement,omitempty"`
	Exploration  string `json:"exploration,omitempty"`
}

// RelationType identifies a typed edge between two elements.
type RelationType string

// The closed set of relationship types.
const (
	RelationAlly    RelationType = "ally"
	RelationEnemy   RelationType = "enemy"
	RelationFamily  RelationType = "family"
	RelationRomance RelationType = "romance"
	RelationMentor  RelationType = "mentor"
	RelationRival   RelationType = "rival"
)

// RelationInfo carries display and directionality metadata for a
// relationship type.
type RelationInfo struct {
	Label    string
	Directed bool
}

// RelationTypes maps each known relationship type to its metadata.
var RelationTypes = map[RelationType]RelationInfo{
	RelationAlly:    {Label: "Ally", Directed: false},
	RelationEnemy:   {Label: "Enemy", Directed: false},
	RelationFamily:  {Label: "Family", Directed: false},
	RelationRomance: {Label: "Romance", Directed: false},
	RelationMentor:  {Label: "Mentor", Directed: true},
	RelationRival:   {Label: "Rival", Directed: false},
}

// ValidRelationType reports whether t is a member of the closed set.
func ValidRelationType(t RelationType) bool {
	_, ok := RelationTypes[t]
	return ok
}

// Relationship is a typed, optionally directional edge between two elements
// of the same story. At most one relationship may exist per unordered
// {source, target} pair.
type Relationship struct {
	ID          string       `yaml:"id" json:"id"`
	SourceID    string       `yaml:"source_id" json:"source_id"`
	TargetID    string       `yaml:"target_id" json:"target_id"`
	Type        RelationType `yaml:"type" json:"type"`
	Description string       `yaml:"description,omitempty" json:"description,omitempty"`
	CreatedAt   time.Time    `yaml:"created_at" json:"created_at"`
}

// Chapter is a unit of narrative text.
type Chapter struct {
	ID        string    `yaml:"id" json:"id"`
	Title     string    `yaml:"title" json:"title"`
	Content   string    `yaml:"content" json:"content"`
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
}

// VersionSnapshot is the count-only state captured with a version. It exists
// for rollback awareness, not full-content undo.
type VersionSnapshot struct {
	ElementCounts     map[ElementType]int `yaml:"element_counts" json:"element_counts"`
	ChapterCount      int                 `yaml:"chapter_count" json:"chapter_count"`
	RelationshipCount int                 `yaml:"relationship_count" json:"relationship_count"`
}

// Version is a lightweight checkpoint recorded before AI continuations and
// on demand.
type Version struct {
	ID        string          `yaml:"id" json:"id"`
	Number    int             `yaml:"number" json:"number"`
	Summary   string          `yaml:"summary" json:"summary"`
	Snapshot  VersionSnapshot `yaml:"snapshot" json:"snapshot"`
	CreatedAt time.Time       `yaml:"created_at" json:"created_at"`
}

// MaxVersions caps the retained version list. Oldest entries are evicted
// first, by insertion order rather than by version number.
const MaxVersions = 3

// Story is the root aggregate for one narrative project. It exclusively
// owns every nested collection; no element, relationship or chapter exists
// outside it.
//
// Invariants: every element type key is present even when its list is
// empty, at least one chapter always exists, and CurrentChapter is always a
// valid index into Chapters.
type Story struct {
	ID             string                    `yaml:"id" json:"id"`
	Title          string                    `yaml:"title" json:"title"`
	Genre          string                    `yaml:"genre,omitempty" json:"genre,omitempty"`
	Tone           string                    `yaml:"tone,omitempty" json:"tone,omitempty"`
	Synopsis       string                    `yaml:"synopsis,omitempty" json:"synopsis,omitempty"`
	Setting        string                    `yaml:"setting,omitempty" json:"setting,omitempty"`
	Elements       map[ElementType][]Element `yaml:"elements" json:"elements"`
	Relationships  []Relationship            `yaml:"relationships" json:"relationships"`
	Chapters       []Chapter                 `yaml:"chapters" json:"chapters"`
	CurrentChapter int                       `yaml:"current_chapter" json:"current_chapter"`
	Versions       []Version                 `yaml:"versions" json:"versions"`
	CurrentVersion int                       `yaml:"current_version" json:"current_version"`
	CreatedAt      time.Time                 `yaml:"created_at" json:"created_at"`
	UpdatedAt      time.Time                 `yaml:"updated_at" json:"updated_at"`
}

// Clone returns a deep copy of the story. Mutation controllers operate on a
// clone and return it; the input snapshot is never modified.
func (s *Story) Clone() *Story {
	out := *s

	out.Elements = make(map[ElementType][]Element, len(s.Elements))
	for typ, list := range s.Elements {
		copied := make([]Element, len(list))
		copy(copied, list)
		out.Elements[typ] = copied
	}

	out.Relationships = make([]Relationship, len(s.Relationships))
	copy(out.Relationships, s.Relationships)

	out.Chapters = make([]Chapter, len(s.Chapters))
	copy(out.Chapters, s.Chapters)

	out.Versions = make([]Version, len(s.Versions))
	for i, v := range s.Versions {
		out.Versions[i] = v
		if v.Snapshot.ElementCounts != nil {
			counts := make(map[ElementType]int, len(v.Snapshot.ElementCounts))
			for t, n := range v.Snapshot.ElementCounts {
				counts[t] = n
			}
			out.Versions[i].Snapshot.ElementCounts = counts
		}
	}

	return &out
}

// TotalElements returns the number of elements across all type buckets.
func (s *Story) TotalElements() int {
	total := 0
	for _, list := range s.Elements {
		total += len(list)
	}
	return total
}

// GeneratedChapter is a chapter proposed by a freshly generated story
// payload.
type GeneratedChapter struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// GeneratedRelationship references its endpoints positionally: the element
// at SourceIndex within the SourceType bucket of the same payload, and
// likewise for the target. The positional convention is shared with the
// generated-story transform, which resolves it through an explicit lookup
// table built once per payload.
type GeneratedRelationship struct {
	SourceType  ElementType  `json:"source_type"`
	SourceIndex int          `json:"source_index"`
	TargetType  ElementType  `json:"target_type"`
	TargetIndex int          `json:"target_index"`
	Type        RelationType `json:"type"`
	Description string       `json:"description,omitempty"`
}

// GeneratedStory is the payload shape returned by the generation endpoint
// before it is transformed into the canonical id-based Story.
type GeneratedStory struct {
	Title         string                        `json:"title"`
	Genre         string                        `json:"genre,omitempty"`
	Tone          string                        `json:"tone,omitempty"`
	Synopsis      string                        `json:"synopsis,omitempty"`
	Setting       string                        `json:"setting,omitempty"`
	Elements      map[ElementType][]ElementData `json:"elements"`
	Chapters      []GeneratedChapter            `json:"chapters"`
	Relationships []GeneratedRelationship       `json:"relationships,omitempty"`
}

// ElementUpdate patches an existing element by id inside a continuation.
type ElementUpdate struct {
	ID string `json:"id"`
	ElementData
}

// RelationshipProposal references its endpoints by element name or id.
type RelationshipProposal struct {
	Source      string       `json:"source"`
	Target      string       `json:"target"`
	Type        RelationType `json:"type"`
	Description string       `json:"description,omitempty"`
}

// Continuation is an AI-proposed narrative extension plus entity deltas.
type Continuation struct {
	ChapterContent   string                        `json:"chapter_content"`
	Synopsis         string                        `json:"synopsis,omitempty"`
	NewElements      map[ElementType][]ElementData `json:"new_elements,omitempty"`
	UpdatedElements  []ElementUpdate               `json:"updated_elements,omitempty"`
	NewRelationships []RelationshipProposal        `json:"new_relationships,omitempty"`
}

// Impact levels for continuation options.
const (
	ImpactHigh   = "high"
	ImpactMedium = "medium"
	ImpactLow    = "low"
)

// ContinuationOption is one of the exactly three choices returned by the
// continuation endpoint.
type ContinuationOption struct {
	Title        string       `json:"title"`
	Preview      string       `json:"preview"`
	Tone         string       `json:"tone"`
	Impact       string       `json:"impact"`
	Continuation Continuation `json:"continuation"`
}

// CompiledElement is the abbreviated transport form of an element.
type CompiledElement struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Type        ElementType `json:"type"`
	Role        string      `json:"role,omitempty"`
	Description string      `json:"description,omitempty"`
	Details     string      `json:"details,omitempty"`
}

// CompiledRelationship is the abbreviated transport form of a relationship.
type CompiledRelationship struct {
	Source string       `json:"source"`
	Target string       `json:"target"`
	Type   RelationType `json:"type"`
}

// CompiledChapter carries only the tail of a chapter's content.
// Continuations are generated without awareness of anything before the tail
// window.
type CompiledChapter struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ChapterTailChars is the per-chapter content window included in a
// CompiledState.
const ChapterTailChars = 2000

// CompiledState is the abbreviated representation of a story sent to the
// generation endpoints. Chapter content is truncated to the trailing
// ChapterTailChars characters as a context-window economy.
type CompiledState struct {
	ID            string                            `json:"id"`
	Title         string                            `json:"title"`
	Genre         string                            `json:"genre,omitempty"`
	Tone          string                            `json:"tone,omitempty"`
	Synopsis      string                            `json:"synopsis,omitempty"`
	Setting       string                            `json:"setting,omitempty"`
	Elements      map[ElementType][]CompiledElement `json:"elements"`
	Relationships []CompiledRelationship            `json:"relationships,omitempty"`
	Chapters      []CompiledChapter                 `json:"chapters"`
}

// FieldChange describes one story field edit sent with a regeneration
// request.
type FieldChange struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// RegenerateResult is the response payload of a regeneration request.
type RegenerateResult struct {
	Suggestions []string                      `json:"suggestions"`
	NewElements map[ElementType][]ElementData `json:"new_elements,omitempty"`
}

// ContinueMode selects the narrative direction for a continuation request.
type ContinueMode string

// The fixed set of continuation modes.
const (
	ModeNatural    ContinueMode = "natural"
	ModeTwist      ContinueMode = "twist"
	ModeConflict   ContinueMode = "conflict"
	ModeResolution ContinueMode = "resolution"
)

// ValidContinueMode reports whether m is a known continuation mode.
func ValidContinueMode(m ContinueMode) bool {
	switch m {
	case ModeNatural, ModeTwist, ModeConflict, ModeResolution:
		return true
	}
	return false
}

// GlobalConfig is the user-wide configuration at
// ~/.config/storyloom/config.yaml.
type GlobalConfig struct {
	Version   int                        `yaml:"version"`
	Providers map[string]*ProviderConfig `yaml:"providers"`
	Defaults  DefaultsConfig             `yaml:"defaults"`
	Storage   StorageConfig              `yaml:"storage"`
	Logging   LoggingConfig              `yaml:"logging"`
}

// ProviderConfig holds API configuration for an LLM provider.
type ProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	BaseURL      string `yaml:"base_url,omitempty"`
}

// DefaultsConfig specifies default settings.
type DefaultsConfig struct {
	Provider string `yaml:"provider"`
}

// StorageConfig selects the persistence backend. Presence of MongoURI
// selects the remote backend; otherwise a non-empty LibraryPath selects the
// local SQLite library; otherwise the single-story file at Path is used.
type StorageConfig struct {
	Path          string `yaml:"path"`
	LibraryPath   string `yaml:"library_path,omitempty"`
	MongoURI      string `yaml:"mongo_uri,omitempty"`
	MongoDatabase string `yaml:"mongo_database,omitempty"`
	OwnerID       string `yaml:"owner_id,omitempty"`
}

// LoggingConfig specifies logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultGlobalConfig returns a new GlobalConfig with sensible defaults.
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		Version:   1,
		Providers: make(map[string]*ProviderConfig),
		Defaults: DefaultsConfig{
			Provider: "openai",
		},
		Storage: StorageConfig{
			Path:          "~/storyloom/story.json",
			MongoDatabase: "storyloom",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
