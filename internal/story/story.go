package story

import (
	"fmt"
	"time"

	"storyloom/pkg/types"
)

// Trigger fields: editing one of these on a story that already has
// substantial content should prompt the user to regenerate dependent
// elements. The heuristic is intentionally conservative; false positives
// are acceptable.
var regenerationTriggers = map[string]bool{
	"genre":    true,
	"tone":     true,
	"synopsis": true,
}

const (
	substantialElementCount = 2
	substantialChapterChars = 100
)

// Fields is a patch over the story's top-level text fields. Nil pointers
// leave the field untouched.
type Fields struct {
	Title    *string
	Genre    *string
	Tone     *string
	Synopsis *string
	Setting  *string
}

// FieldsResult reports a field update together with the regeneration
// prompt decision.
type FieldsResult struct {
	Story                    *types.Story
	ShouldPromptRegeneration bool
	ChangedFields            []string
}

// UpdateFields applies the patch and decides whether the UI should offer to
// regenerate dependent elements: true when a trigger field actually changed
// and the story already has substantial content.
func UpdateFields(s *types.Story, f Fields) FieldsResult {
	out := s.Clone()
	var changed []string

	apply := func(name string, dst *string, v *string) {
		if v != nil && *v != *dst {
			*dst = *v
			changed = append(changed, name)
		}
	}
	apply("title", &out.Title, f.Title)
	apply("genre", &out.Genre, f.Genre)
	apply("tone", &out.Tone, f.Tone)
	apply("synopsis", &out.Synopsis, f.Synopsis)
	apply("setting", &out.Setting, f.Setting)

	if len(changed) == 0 {
		return FieldsResult{Story: s}
	}
	out.UpdatedAt = time.Now()

	prompt := false
	if hasSubstantialContent(s) {
		for _, name := range changed {
			if regenerationTriggers[name] {
				prompt = true
				break
			}
		}
	}

	return FieldsResult{Story: out, ShouldPromptRegeneration: prompt, ChangedFields: changed}
}

// hasSubstantialContent reports whether regenerating dependent elements
// would discard meaningful work.
func hasSubstantialContent(s *types.Story) bool {
	if s.TotalElements() > substantialElementCount {
		return true
	}
	for _, ch := range s.Chapters {
		if len(ch.Content) > substantialChapterChars {
			return true
		}
	}
	return false
}

// AddChapter appends a chapter and makes it current. An empty title
// defaults to "Chapter N".
func AddChapter(s *types.Story, title, content string) (*types.Story, *types.Chapter) {
	if title == "" {
		title = fmt.Sprintf("Chapter %d", len(s.Chapters)+1)
	}

	out := s.Clone()
	out.Chapters = append(out.Chapters, NewChapter(title, content))
	out.CurrentChapter = len(out.Chapters) - 1
	out.UpdatedAt = time.Now()

	return out, &out.Chapters[len(out.Chapters)-1]
}

// ChapterPatch is a partial chapter update. Nil pointers leave the field
// untouched.
type ChapterPatch struct {
	Title   *string
	Content *string
}

// UpdateChapter patches a chapter by id. An unknown id is reported as data.
func UpdateChapter(s *types.Story, id string, patch ChapterPatch) (*types.Story, map[string]string) {
	idx := locateChapter(s, id)
	if idx < 0 {
		return s, notFound("chapter")
	}

	out := s.Clone()
	ch := &out.Chapters[idx]
	if patch.Title != nil {
		ch.Title = *patch.Title
	}
	if patch.Content != nil {
		ch.Content = *patch.Content
	}
	out.UpdatedAt = time.Now()
	return out, nil
}

// RemoveChapter deletes a chapter by id and clamps CurrentChapter back into
// range. Removing the last remaining chapter panics with ErrLastChapter:
// a story with zero chapters has no valid representation, so this is the
// one invariant enforced by panic rather than an error value.
func RemoveChapter(s *types.Story, id string) *types.Story {
	idx := locateChapter(s, id)
	if idx < 0 {
		return s
	}
	if len(s.Chapters) <= 1 {
		panic(ErrLastChapter)
	}

	out := s.Clone()
	out.Chapters = append(out.Chapters[:idx], out.Chapters[idx+1:]...)
	if out.CurrentChapter >= len(out.Chapters) {
		out.CurrentChapter = len(out.Chapters) - 1
	}
	out.UpdatedAt = time.Now()
	return out
}

// SetCurrentChapter moves the chapter cursor, clamping it into range.
func SetCurrentChapter(s *types.Story, index int) *types.Story {
	if index < 0 {
		index = 0
	}
	if index >= len(s.Chapters) {
		index = len(s.Chapters) - 1
	}
	if index == s.CurrentChapter {
		return s
	}

	out := s.Clone()
	out.CurrentChapter = index
	return out
}

// CreateVersion appends a count-only snapshot, increments CurrentVersion
// and evicts the oldest entries past the cap. Eviction is FIFO over the
// combined list, so the displayed version number is not the list index.
func CreateVersion(s *types.Story, summary string) (*types.Story, *types.Version) {
	out := s.Clone()
	out.Versions = append(out.Versions, NewVersion(out, summary))
	out.CurrentVersion++
	if len(out.Versions) > types.MaxVersions {
		out.Versions = out.Versions[len(out.Versions)-types.MaxVersions:]
	}
	out.UpdatedAt = time.Now()

	return out, &out.Versions[len(out.Versions)-1]
}

// ApplyContinuation folds an accepted continuation option into the story:
//
//  1. records an automatic version snapshot labeled with the option's title
//     before any change,
//  2. appends the narrative text to the target chapter (never replaces),
//  3. overwrites the synopsis if the payload supplies one,
//  4. adds proposed new elements per type,
//  5. applies element patches by id,
//  6. resolves relationship proposals whose endpoints are given by name or
//     id.
//
// The operation is not transactional beyond the pre-snapshot: partial
// application is normal. Proposals that cannot be applied are returned as
// warnings instead of being dropped silently.
func ApplyContinuation(s *types.Story, opt types.ContinuationOption, chapterIndex int) (*types.Story, []string) {
	out, _ := CreateVersion(s, opt.Title)
	var warnings []string

	c := opt.Continuation

	if chapterIndex < 0 || chapterIndex >= len(out.Chapters) {
		chapterIndex = out.CurrentChapter
	}
	ch := &out.Chapters[chapterIndex]
	if ch.Content == "" {
		ch.Content = c.ChapterContent
	} else {
		ch.Content += "\n\n" + c.ChapterContent
	}

	if c.Synopsis != "" {
		out.Synopsis = c.Synopsis
	}

	for _, typ := range types.ElementTypes {
		for _, data := range c.NewElements[typ] {
			el, err := NewElement(typ, data)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("skipped new element %q: %v", data.Name, err))
				continue
			}
			if v := ValidateElement(el, typ); !v.IsValid {
				warnings = append(warnings, fmt.Sprintf("skipped invalid %s element: %s", typ, v.Errors[0]))
				continue
			}
			out.Elements[typ] = append(out.Elements[typ], el)
		}
	}

	for _, patch := range c.UpdatedElements {
		typ, idx := locateElement(out, patch.ID)
		if idx < 0 {
			warnings = append(warnings, fmt.Sprintf("skipped update for unknown element %q", patch.ID))
			continue
		}
		el := out.Elements[typ][idx]
		mergeElementData(&el, patch.ElementData)
		el.UpdatedAt = time.Now()
		out.Elements[typ][idx] = el
	}

	for _, prop := range c.NewRelationships {
		sourceID, ok := resolveElementRef(out, prop.Source)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("unresolved relationship endpoint %q", prop.Source))
			continue
		}
		targetID, ok := resolveElementRef(out, prop.Target)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("unresolved relationship endpoint %q", prop.Target))
			continue
		}
		if check := CanCreateRelationship(out, sourceID, targetID, prop.Type); !check.CanCreate {
			warnings = append(warnings, fmt.Sprintf("skipped relationship %s -> %s: %s", prop.Source, prop.Target, check.Reason))
			continue
		}
		rel, err := NewRelationship(sourceID, targetID, prop.Type, prop.Description)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("skipped relationship %s -> %s: %v", prop.Source, prop.Target, err))
			continue
		}
		out.Relationships = append(out.Relationships, rel)
	}

	out.UpdatedAt = time.Now()
	return out, warnings
}

// resolveElementRef matches a continuation endpoint against element ids
// first, then names, scanning buckets in canonical order. The first match
// wins; name collisions resolve to whichever element comes first.
func resolveElementRef(s *types.Story, ref string) (string, bool) {
	if _, idx := locateElement(s, ref); idx >= 0 {
		return ref, true
	}
	for _, typ := range types.ElementTypes {
		for _, el := range s.Elements[typ] {
			if el.Name == ref {
				return el.ID, true
			}
		}
	}
	return "", false
}

// TransformGenerated converts a freshly generated story payload, whose
// relationships reference elements positionally, into the canonical
// id-based Story shape. Ids are synthesized from a single timestamp shared
// by all elements of the payload, and positional references are resolved
// through a lookup table built once per transform so the encoding lives in
// exactly one place.
func TransformGenerated(g *types.GeneratedStory) *types.Story {
	out := New(g.Title)
	out.Genre = g.Genre
	out.Tone = g.Tone
	out.Synopsis = g.Synopsis
	out.Setting = g.Setting

	ts := time.Now().UnixMilli()
	ids := make(map[string]string)
	key := func(typ types.ElementType, idx int) string {
		return fmt.Sprintf("%s/%d", typ, idx)
	}

	now := time.Now()
	for _, typ := range types.ElementTypes {
		for i, data := range g.Elements[typ] {
			el := types.Element{
				ID:        fmt.Sprintf("%s-%d-%d", typ, ts, i),
				Type:      typ,
				CreatedAt: now,
				UpdatedAt: now,
			}
			mergeElementData(&el, data)
			if v := ValidateElement(el, typ); !v.IsValid {
				// Nameless proposals are dropped; their positional slot
				// stays unmapped so relationships cannot dangle.
				continue
			}
			ids[key(typ, i)] = el.ID
			out.Elements[typ] = append(out.Elements[typ], el)
		}
	}

	if len(g.Chapters) > 0 {
		out.Chapters = out.Chapters[:0]
		for i, gc := range g.Chapters {
			title := gc.Title
			if title == "" {
				title = fmt.Sprintf("Chapter %d", i+1)
			}
			out.Chapters = append(out.Chapters, NewChapter(title, gc.Content))
		}
		out.CurrentChapter = 0
	}

	for _, gr := range g.Relationships {
		sourceID, okSource := ids[key(gr.SourceType, gr.SourceIndex)]
		targetID, okTarget := ids[key(gr.TargetType, gr.TargetIndex)]
		if !okSource || !okTarget {
			continue
		}
		if check := CanCreateRelationship(out, sourceID, targetID, gr.Type); !check.CanCreate {
			continue
		}
		rel, err := NewRelationship(sourceID, targetID, gr.Type, gr.Description)
		if err != nil {
			continue
		}
		out.Relationships = append(out.Relationships, rel)
	}

	return out
}

func locateChapter(s *types.Story, id string) int {
	for i, ch := range s.Chapters {
		if ch.ID == id {
			return i
		}
	}
	return -1
}
