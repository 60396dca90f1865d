package outline

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ErrNoSections means the generated text contained nothing storable. A
// "successful" parse with zero output is indistinguishable from a parser
// defect, so this always fails loudly.
var ErrNoSections = errors.New("no sections detected in outline text")

type Section struct {
	ID               uuid.UUID
	Title            string
	OrderIndex       int
	EstimatedMinutes int
	Objectives       []string
}

type Part struct {
	ID               uuid.UUID
	Title            string
	OrderIndex       int
	EstimatedMinutes int
	Sections         []Section
}

type Outline struct {
	Title string
	Parts []Part
}

// TotalSectionMinutes sums estimated minutes across every section.
func (o *Outline) TotalSectionMinutes() int {
	total := 0
	for _, p := range o.Parts {
		for _, s := range p.Sections {
			total += s.EstimatedMinutes
		}
	}
	return total
}

var (
	durationSuffixRe = regexp.MustCompile(`(?i)[\s\-–—]*[\(\[]?\s*~?\s*(\d+)\s*min(?:ute)?s?\.?\s*[\)\]]?\s*$`)
	durationAnyRe    = regexp.MustCompile(`(?i)(\d+)\s*min`)
)

// splitDuration pulls a trailing duration annotation like "(12 min)" or
// "- 12 minutes" off a heading or bullet, returning the cleaned title.
func splitDuration(raw string) (title string, minutes int) {
	raw = strings.TrimSpace(raw)
	if m := durationSuffixRe.FindStringSubmatchIndex(raw); m != nil {
		n, _ := strconv.Atoi(raw[m[2]:m[3]])
		return strings.TrimSpace(raw[:m[0]]), n
	}
	if m := durationAnyRe.FindStringSubmatch(raw); m != nil {
		n, _ := strconv.Atoi(m[1])
		return raw, n
	}
	return raw, 0
}

// namespace gives every course its own SHA1 id namespace so that re-parsing
// identical text for the same course reproduces identical part and section
// ids. This determinism is what makes the storage upsert a true no-op on
// replay.
func namespace(courseID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("coursepilot:outline:"+courseID.String()))
}

func partID(ns uuid.UUID, partIdx int) uuid.UUID {
	return uuid.NewSHA1(ns, []byte(fmt.Sprintf("part/%d", partIdx)))
}

func sectionID(ns uuid.UUID, partIdx, sectionIdx int) uuid.UUID {
	return uuid.NewSHA1(ns, []byte(fmt.Sprintf("part/%d/section/%d", partIdx, sectionIdx)))
}

// Parse converts semi-structured outline markdown into a Part/Section tree.
// Level-2 headings open parts; level-3 headings and list items beneath a part
// become sections; nested bullets under a section become its learning
// objectives. Text with sections but no part headings parses into one
// synthesized part holding every section in original order.
func Parse(courseID uuid.UUID, src string) (*Outline, error) {
	source := []byte(src)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	out := &Outline{}
	var current *Part

	appendSection := func(title string, minutes int) {
		if current == nil {
			out.Parts = append(out.Parts, Part{})
			current = &out.Parts[len(out.Parts)-1]
		}
		current.Sections = append(current.Sections, Section{
			Title:            title,
			EstimatedMinutes: minutes,
		})
	}

	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			raw := strings.TrimSpace(string(node.Text(source)))
			if raw == "" {
				return ast.WalkSkipChildren, nil
			}
			switch {
			case node.Level == 1:
				if out.Title == "" {
					out.Title = raw
				}
			case node.Level == 2:
				title, minutes := splitDuration(raw)
				out.Parts = append(out.Parts, Part{Title: title, EstimatedMinutes: minutes})
				current = &out.Parts[len(out.Parts)-1]
			default:
				title, minutes := splitDuration(raw)
				appendSection(title, minutes)
			}
			return ast.WalkSkipChildren, nil
		case *ast.ListItem:
			raw := strings.TrimSpace(itemText(node, source))
			if raw == "" {
				return ast.WalkContinue, nil
			}
			if listDepth(node) >= 2 {
				if current != nil && len(current.Sections) > 0 {
					sec := &current.Sections[len(current.Sections)-1]
					sec.Objectives = append(sec.Objectives, raw)
				}
				return ast.WalkSkipChildren, nil
			}
			title, minutes := splitDuration(raw)
			appendSection(title, minutes)
			return ast.WalkContinue, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}

	// Drop parts that never accumulated sections; a heading with nothing
	// beneath it is noise, not structure.
	kept := out.Parts[:0]
	for _, p := range out.Parts {
		if len(p.Sections) > 0 {
			kept = append(kept, p)
		}
	}
	out.Parts = kept

	total := 0
	for i := range out.Parts {
		total += len(out.Parts[i].Sections)
	}
	if total == 0 {
		return nil, ErrNoSections
	}

	// Single implicit part fallback keeps storage from ever receiving an
	// empty parts list.
	for i := range out.Parts {
		if out.Parts[i].Title == "" {
			title := out.Title
			if title == "" {
				title = "Full course"
			}
			out.Parts[i].Title = title
		}
	}

	ns := namespace(courseID)
	for pi := range out.Parts {
		p := &out.Parts[pi]
		p.OrderIndex = pi
		p.ID = partID(ns, pi)
		sectionSum := 0
		for si := range p.Sections {
			s := &p.Sections[si]
			s.OrderIndex = si
			s.ID = sectionID(ns, pi, si)
			sectionSum += s.EstimatedMinutes
		}
		if p.EstimatedMinutes == 0 {
			p.EstimatedMinutes = sectionSum
		}
	}

	if out.Title == "" && len(out.Parts) > 0 {
		out.Title = out.Parts[0].Title
	}
	return out, nil
}

// itemText returns only the list item's own line, skipping nested lists so a
// section title is not polluted by its objective bullets.
func itemText(item *ast.ListItem, source []byte) string {
	for c := item.FirstChild(); c != nil; c = c.NextSibling() {
		switch c.Kind() {
		case ast.KindTextBlock, ast.KindParagraph:
			return string(c.Text(source))
		}
	}
	return ""
}

func listDepth(n ast.Node) int {
	depth := 0
	for p := n.Parent(); p != nil; p = p.Parent() {
		if p.Kind() == ast.KindList {
			depth++
		}
	}
	return depth
}
