package story

import (
	"strings"
	"time"

	"storyloom/pkg/types"
)

// ElementResult is the outcome of an element mutation. Story always holds a
// usable snapshot: the new one on success, the unmodified input on
// rejection. Errors is a field-keyed map; business-rule rejections are data,
// never panics.
type ElementResult struct {
	Story   *types.Story
	Element *types.Element
	Errors  map[string]string
}

// DefaultSearchLimit bounds element searches when the caller does not set
// an explicit limit.
const DefaultSearchLimit = 50

// CreateElement validates and appends a new element to the type's bucket.
// On validation failure the input story is returned unmodified together
// with the field errors.
func CreateElement(s *types.Story, typ types.ElementType, data types.ElementData) ElementResult {
	el, err := NewElement(typ, data)
	if err != nil {
		return ElementResult{Story: s, Errors: map[string]string{"type": "unknown element type"}}
	}

	if v := ValidateElement(el, typ); !v.IsValid {
		errs := make(map[string]string, len(v.Errors))
		for _, field := range requiredFields[typ] {
			for _, msg := range v.Errors {
				if strings.HasPrefix(msg, field) {
					errs[field] = msg
				}
			}
		}
		return ElementResult{Story: s, Errors: errs}
	}

	out := s.Clone()
	out.Elements[typ] = append(out.Elements[typ], el)
	out.UpdatedAt = time.Now()

	added := &out.Elements[typ][len(out.Elements[typ])-1]
	return ElementResult{Story: out, Element: added}
}

// UpdateElement merges the non-empty fields of data over the element with
// the given id, preserving its id and type. An unknown id is reported as
// data, not raised.
func UpdateElement(s *types.Story, id string, data types.ElementData) ElementResult {
	typ, idx := locateElement(s, id)
	if idx < 0 {
		return ElementResult{Story: s, Errors: notFound("element")}
	}

	out := s.Clone()
	el := out.Elements[typ][idx]
	mergeElementData(&el, data)
	el.UpdatedAt = time.Now()

	if v := ValidateElement(el, typ); !v.IsValid {
		return ElementResult{Story: s, Errors: map[string]string{"name": v.Errors[0]}}
	}

	out.Elements[typ][idx] = el
	out.UpdatedAt = el.UpdatedAt
	return ElementResult{Story: out, Element: &out.Elements[typ][idx]}
}

// RemoveElement deletes the element from its type bucket and, as part of
// the same operation's guarantee, prunes every relationship that references
// it. The returned Element is the removed one.
func RemoveElement(s *types.Story, id string) ElementResult {
	typ, idx := locateElement(s, id)
	if idx < 0 {
		return ElementResult{Story: s, Errors: notFound("element")}
	}

	out := s.Clone()
	removed := out.Elements[typ][idx]
	out.Elements[typ] = append(out.Elements[typ][:idx], out.Elements[typ][idx+1:]...)

	kept := out.Relationships[:0]
	for _, rel := range out.Relationships {
		if rel.SourceID != id && rel.TargetID != id {
			kept = append(kept, rel)
		}
	}
	out.Relationships = kept
	out.UpdatedAt = time.Now()

	return ElementResult{Story: out, Element: &removed}
}

// DuplicateElement clones an existing element's data under a new id, with
// " (Copy)" appended to the name, and delegates to CreateElement.
func DuplicateElement(s *types.Story, id string) ElementResult {
	src := ElementByID(s, id)
	if src == nil {
		return ElementResult{Story: s, Errors: notFound("element")}
	}

	data := types.ElementData{
		Name:         src.Name + " (Copy)",
		Description:  src.Description,
		Role:         src.Role,
		Motivation:   src.Motivation,
		Backstory:    src.Backstory,
		Atmosphere:   src.Atmosphere,
		Significance: src.Significance,
		Summary:      src.Summary,
		Resolution:   src.Resolution,
		Statement:    src.Statement,
		Exploration:  src.Exploration,
	}
	return CreateElement(s, src.Type, data)
}

// ReorderElements moves an element within its type bucket. Out-of-bounds
// indices are a silent no-op: the same snapshot is returned unchanged, not
// an error.
func ReorderElements(s *types.Story, typ types.ElementType, fromIndex, toIndex int) *types.Story {
	list := s.Elements[typ]
	if fromIndex < 0 || fromIndex >= len(list) || toIndex < 0 || toIndex >= len(list) {
		return s
	}
	if fromIndex == toIndex {
		return s
	}

	out := s.Clone()
	moved := out.Elements[typ][fromIndex]
	reordered := append(out.Elements[typ][:fromIndex], out.Elements[typ][fromIndex+1:]...)
	reordered = append(reordered, types.Element{})
	copy(reordered[toIndex+1:], reordered[toIndex:])
	reordered[toIndex] = moved
	out.Elements[typ] = reordered
	out.UpdatedAt = time.Now()
	return out
}

// SearchOptions narrow an element search.
type SearchOptions struct {
	// Types restricts the scanned buckets; empty means all.
	Types []types.ElementType
	// Limit caps the result count; zero means DefaultSearchLimit.
	Limit int
}

// SearchElements performs a case-insensitive substring match on name or
// description, short-circuiting once the limit is reached. Pure read.
func SearchElements(s *types.Story, query string, opts SearchOptions) []types.Element {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	scan := opts.Types
	if len(scan) == 0 {
		scan = types.ElementTypes
	}

	needle := strings.ToLower(query)
	var results []types.Element
	for _, typ := range scan {
		for _, el := range s.Elements[typ] {
			if strings.Contains(strings.ToLower(el.Name), needle) ||
				strings.Contains(strings.ToLower(el.Description), needle) {
				results = append(results, el)
				if len(results) >= limit {
					return results
				}
			}
		}
	}
	return results
}

// Stats summarizes element counts.
type Stats struct {
	ByType map[types.ElementType]int
	Total  int
}

// ElementStats returns per-type and total element counts.
func ElementStats(s *types.Story) Stats {
	byType := make(map[types.ElementType]int, len(types.ElementTypes))
	total := 0
	for _, typ := range types.ElementTypes {
		byType[typ] = len(s.Elements[typ])
		total += len(s.Elements[typ])
	}
	return Stats{ByType: byType, Total: total}
}

// AllElements flattens every bucket in canonical type order.
func AllElements(s *types.Story) []types.Element {
	var all []types.Element
	for _, typ := range types.ElementTypes {
		all = append(all, s.Elements[typ]...)
	}
	return all
}

// ElementsByType returns the ordered list for one type.
func ElementsByType(s *types.Story, typ types.ElementType) []types.Element {
	return s.Elements[typ]
}

// ElementByID returns the element with the given id, or nil. The scan is
// linear across all buckets.
func ElementByID(s *types.Story, id string) *types.Element {
	typ, idx := locateElement(s, id)
	if idx < 0 {
		return nil
	}
	el := s.Elements[typ][idx]
	return &el
}

// locateElement finds an element's bucket and index by id. idx is -1 when
// absent.
func locateElement(s *types.Story, id string) (types.ElementType, int) {
	for _, typ := range types.ElementTypes {
		for i, el := range s.Elements[typ] {
			if el.ID == id {
				return typ, i
			}
		}
	}
	return "", -1
}

func notFound(what string) map[string]string {
	return map[string]string{"id": what + " not found"}
}
