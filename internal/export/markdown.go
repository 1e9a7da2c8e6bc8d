// Package export renders a story as a markdown document and reads the
// structural counts back out of one.
package export

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"storyloom/pkg/types"
)

// sectionTitles maps element types to their document section headings. The
// headings double as parse anchors for Counts, so they must stay stable.
var sectionTitles = map[types.ElementType]string{
	types.ElementCharacter:  "Characters",
	types.ElementAntagonist: "Antagonists",
	types.ElementLocation:   "Locations",
	types.ElementArc:        "Story Arcs",
	types.ElementTheme:      "Themes",
}

const (
	relationshipsTitle = "Relationships"
	chaptersTitle      = "Chapters"
)

// Counts summarizes the structural content of an exported document.
type Counts struct {
	Elements      map[types.ElementType]int
	Relationships int
	Chapters      int
}

// Total returns the element count across all types.
func (c Counts) Total() int {
	total := 0
	for _, n := range c.Elements {
		total += n
	}
	return total
}

// ToMarkdown renders the full story as a markdown document. Every element
// appears as a level-3 heading under its type's section, every chapter as a
// level-3 heading under Chapters, and every relationship as one list item,
// so the document carries the same entity counts as the story.
func ToMarkdown(s *types.Story) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n\n", inline(s.Title))
	if s.Genre != "" {
		fmt.Fprintf(&sb, "**Genre:** %s\n\n", inline(s.Genre))
	}
	if s.Tone != "" {
		fmt.Fprintf(&sb, "**Tone:** %s\n\n", inline(s.Tone))
	}
	if s.Synopsis != "" {
		fmt.Fprintf(&sb, "## Synopsis\n\n%s\n\n", escapeBody(s.Synopsis))
	}
	if s.Setting != "" {
		fmt.Fprintf(&sb, "## Setting\n\n%s\n\n", escapeBody(s.Setting))
	}

	names := make(map[string]string)
	for _, typ := range types.ElementTypes {
		elements := s.Elements[typ]
		for _, el := range elements {
			names[el.ID] = inline(el.Name)
		}
		if len(elements) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "## %s\n\n", sectionTitles[typ])
		for _, el := range elements {
			fmt.Fprintf(&sb, "### %s\n\n", inline(el.Name))
			if el.Description != "" {
				fmt.Fprintf(&sb, "%s\n\n", escapeBody(el.Description))
			}
			writeElementFields(&sb, el)
		}
	}

	if len(s.Relationships) > 0 {
		fmt.Fprintf(&sb, "## %s\n\n", relationshipsTitle)
		for _, rel := range s.Relationships {
			label := string(rel.Type)
			if info, ok := types.RelationTypes[rel.Type]; ok {
				label = info.Label
			}
			line := fmt.Sprintf("- %s (%s) %s", names[rel.SourceID], label, names[rel.TargetID])
			if rel.Description != "" {
				line += ": " + inline(rel.Description)
			}
			sb.WriteString(line + "\n")
		}
		sb.WriteString("\n")
	}

	if len(s.Chapters) > 0 {
		fmt.Fprintf(&sb, "## %s\n\n", chaptersTitle)
		for _, ch := range s.Chapters {
			fmt.Fprintf(&sb, "### %s\n\n", inline(ch.Title))
			if ch.Content != "" {
				fmt.Fprintf(&sb, "%s\n\n", escapeBody(ch.Content))
			}
		}
	}

	return strings.TrimRight(sb.String(), "\n") + "\n"
}

// writeElementFields emits the type-specific attributes as labeled lines.
func writeElementFields(sb *strings.Builder, el types.Element) {
	write := func(label, v string) {
		if v != "" {
			fmt.Fprintf(sb, "- **%s:** %s\n", label, inline(v))
		}
	}

	switch el.Type {
	case types.ElementCharacter, types.ElementAntagonist:
		write("Role", el.Role)
		write("Motivation", el.Motivation)
		write("Backstory", el.Backstory)
	case types.ElementLocation:
		write("Atmosphere", el.Atmosphere)
		write("Significance", el.Significance)
	case types.ElementArc:
		write("Summary", el.Summary)
		write("Resolution", el.Resolution)
	case types.ElementTheme:
		write("Statement", el.Statement)
		write("Exploration", el.Exploration)
	}

	if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n\n") {
		sb.WriteString("\n")
	}
}

// inline collapses whitespace runs into single spaces, so names and
// attribute values stay on the one line the document assigns them.
func inline(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// escapeBody neutralizes heading syntax in free-form prose. Descriptions
// and chapter text are often model-written and may contain markdown;
// unescaped, an embedded heading would count as a document section in
// ParseCounts. ATX marks at the start of a line and setext underlines are
// backslash-escaped, which renders them as literal text.
func escapeBody(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(trimmed, "#") || isSetextUnderline(trimmed) {
			lines[i] = "\\" + trimmed
		}
	}
	return strings.Join(lines, "\n")
}

// isSetextUnderline reports whether a line consists solely of = or -
// marks, which would promote the preceding paragraph line to a heading.
func isSetextUnderline(line string) bool {
	if line == "" {
		return false
	}
	marker := line[0]
	if marker != '=' && marker != '-' {
		return false
	}
	for i := 0; i < len(line); i++ {
		if line[i] != marker {
			return false
		}
	}
	return true
}

// ParseCounts walks an exported document and tallies its elements,
// relationships and chapters by section. A story rendered with ToMarkdown
// parses back to the same counts.
func ParseCounts(markdown string) Counts {
	counts := Counts{Elements: make(map[types.ElementType]int)}

	typeBySection := make(map[string]types.ElementType, len(sectionTitles))
	for typ, title := range sectionTitles {
		typeBySection[title] = typ
	}

	source := []byte(markdown)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var section string
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Heading:
			title := string(node.Text(source))
			switch node.Level {
			case 2:
				section = title
			case 3:
				if typ, ok := typeBySection[section]; ok {
					counts.Elements[typ]++
				} else if section == chaptersTitle {
					counts.Chapters++
				}
			}
		case *ast.ListItem:
			if section == relationshipsTitle {
				counts.Relationships++
			}
		}
		return ast.WalkContinue, nil
	})

	return counts
}
