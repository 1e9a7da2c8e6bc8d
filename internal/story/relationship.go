package story

import (
	"time"

	"storyloom/pkg/types"
)

// RelationshipResult is the outcome of a relationship mutation, with the
// same conventions as ElementResult.
type RelationshipResult struct {
	Story        *types.Story
	Relationship *types.Relationship
	Errors       map[string]string
}

// RelationshipData carries the caller-supplied fields for creating or
// updating a relationship.
type RelationshipData struct {
	SourceID    string
	TargetID    string
	Type        types.RelationType
	Description string
}

// CanCreateResult reports whether a relationship may be created and, when
// not, the first failing reason.
type CanCreateResult struct {
	CanCreate bool
	Reason    string
}

// CanCreateRelationship runs the creation preconditions in order:
// self-reference, existing relationship between the unordered pair (either
// direction), unknown type. The first failing check wins.
func CanCreateRelationship(s *types.Story, sourceID, targetID string, typ types.RelationType) CanCreateResult {
	if sourceID == targetID {
		return CanCreateResult{Reason: "an element cannot relate to itself"}
	}
	for _, rel := range s.Relationships {
		if (rel.SourceID == sourceID && rel.TargetID == targetID) ||
			(rel.SourceID == targetID && rel.TargetID == sourceID) {
			return CanCreateResult{Reason: "Relationship already exists"}
		}
	}
	if !types.ValidRelationType(typ) {
		return CanCreateResult{Reason: "unknown relationship type"}
	}
	return CanCreateResult{CanCreate: true}
}

// CreateRelationship appends a relationship after the CanCreate checks and
// field validation pass. Rejections come back as a general error with the
// reason string.
func CreateRelationship(s *types.Story, data RelationshipData) RelationshipResult {
	if check := CanCreateRelationship(s, data.SourceID, data.TargetID, data.Type); !check.CanCreate {
		return RelationshipResult{Story: s, Errors: map[string]string{"general": check.Reason}}
	}

	rel, err := NewRelationship(data.SourceID, data.TargetID, data.Type, data.Description)
	if err != nil {
		return RelationshipResult{Story: s, Errors: map[string]string{"general": err.Error()}}
	}
	if errs := ValidateRelationship(rel); len(errs) > 0 {
		return RelationshipResult{Story: s, Errors: errs}
	}

	out := s.Clone()
	out.Relationships = append(out.Relationships, rel)
	out.UpdatedAt = time.Now()

	added := &out.Relationships[len(out.Relationships)-1]
	return RelationshipResult{Story: out, Relationship: added}
}

// UpdateRelationship applies type and description changes. ID, SourceID and
// TargetID are preserved even if the caller supplies them; changing
// endpoints goes through SwapRelationshipDirection. This keeps a
// relationship's identity stable across edits.
func UpdateRelationship(s *types.Story, id string, data RelationshipData) RelationshipResult {
	idx := locateRelationship(s, id)
	if idx < 0 {
		return RelationshipResult{Story: s, Errors: notFound("relationship")}
	}

	out := s.Clone()
	rel := &out.Relationships[idx]
	if data.Type != "" {
		if !types.ValidRelationType(data.Type) {
			return RelationshipResult{Story: s, Errors: map[string]string{"type": "unknown relationship type"}}
		}
		rel.Type = data.Type
	}
	if data.Description != "" {
		rel.Description = data.Description
	}
	out.UpdatedAt = time.Now()

	return RelationshipResult{Story: out, Relationship: rel}
}

// SwapRelationshipDirection exchanges source and target. It is the
// sanctioned way to change a relationship's endpoints.
func SwapRelationshipDirection(s *types.Story, id string) RelationshipResult {
	idx := locateRelationship(s, id)
	if idx < 0 {
		return RelationshipResult{Story: s, Errors: notFound("relationship")}
	}

	out := s.Clone()
	rel := &out.Relationships[idx]
	rel.SourceID, rel.TargetID = rel.TargetID, rel.SourceID
	out.UpdatedAt = time.Now()

	return RelationshipResult{Story: out, Relationship: rel}
}

// RemoveRelationship deletes one relationship by id.
func RemoveRelationship(s *types.Story, id string) RelationshipResult {
	idx := locateRelationship(s, id)
	if idx < 0 {
		return RelationshipResult{Story: s, Errors: notFound("relationship")}
	}

	out := s.Clone()
	removed := out.Relationships[idx]
	out.Relationships = append(out.Relationships[:idx], out.Relationships[idx+1:]...)
	out.UpdatedAt = time.Now()

	return RelationshipResult{Story: out, Relationship: &removed}
}

// RemoveRelationshipsFor strips every relationship referencing the element,
// returning the new snapshot and the number removed. This is the bulk
// cascade used by element deletion.
func RemoveRelationshipsFor(s *types.Story, elementID string) (*types.Story, int) {
	out := s.Clone()
	kept := out.Relationships[:0]
	removed := 0
	for _, rel := range out.Relationships {
		if rel.SourceID == elementID || rel.TargetID == elementID {
			removed++
			continue
		}
		kept = append(kept, rel)
	}
	out.Relationships = kept
	if removed > 0 {
		out.UpdatedAt = time.Now()
	}
	return out, removed
}

// NetworkNode is a visualization-ready graph node.
type NetworkNode struct {
	ID   string            `json:"id"`
	Name string            `json:"name"`
	Type types.ElementType `json:"type"`
}

// NetworkEdge is a visualization-ready graph edge.
type NetworkEdge struct {
	ID       string             `json:"id"`
	Source   string             `json:"source"`
	Target   string             `json:"target"`
	Type     types.RelationType `json:"type"`
	Label    string             `json:"label"`
	Directed bool               `json:"directed"`
}

// Network is the adjacency projection consumed by graph views.
type Network struct {
	Nodes []NetworkNode `json:"nodes"`
	Edges []NetworkEdge `json:"edges"`
}

// NetworkData projects the story's relationships onto the given element
// subset. Edges are kept only when both endpoints are present in the
// subset.
func NetworkData(s *types.Story, elements []types.Element) Network {
	nodes := make([]NetworkNode, 0, len(elements))
	present := make(map[string]bool, len(elements))
	for _, el := range elements {
		nodes = append(nodes, NetworkNode{ID: el.ID, Name: el.Name, Type: el.Type})
		present[el.ID] = true
	}

	edges := make([]NetworkEdge, 0, len(s.Relationships))
	for _, rel := range s.Relationships {
		if !present[rel.SourceID] || !present[rel.TargetID] {
			continue
		}
		info := types.RelationTypes[rel.Type]
		edges = append(edges, NetworkEdge{
			ID:       rel.ID,
			Source:   rel.SourceID,
			Target:   rel.TargetID,
			Type:     rel.Type,
			Label:    info.Label,
			Directed: info.Directed,
		})
	}

	return Network{Nodes: nodes, Edges: edges}
}

func locateRelationship(s *types.Story, id string) int {
	for i, rel := range s.Relationships {
		if rel.ID == id {
			return i
		}
	}
	return -1
}
