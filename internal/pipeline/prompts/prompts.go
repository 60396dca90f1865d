package prompts

import (
	"fmt"
	"strings"

	"github.com/coursepilot/coursepilot-backend/internal/pipeline/record"
)

const PlannerSystem = `You are a curriculum planner. You design course outlines
sized to a learner's available time. Follow the output format exactly; do not
add commentary before or after it.`

// PartsPlan asks for a bounded list of part titles with minute allocations
// summing to the target.
func PartsPlan(query string, targetMinutes int, sources []record.CandidateSource) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan the top-level parts of a course for this request:\n\n%s\n\n", strings.TrimSpace(query))
	fmt.Fprintf(&b, "The course must total %d minutes. Produce between 2 and 6 parts.\n", targetMinutes)
	writeSources(&b, sources)
	b.WriteString("\nOn the first line output the course title as: # <course title>\n")
	b.WriteString("Then output one part per line, numbered, with a minute allocation:\n")
	b.WriteString("1. <part title> — <minutes> min\n")
	b.WriteString("The minute allocations must sum to the course total.\n")
	return b.String()
}

// PartsPlanRetry is the single adjusted re-prompt issued when the first
// plan's minutes fell outside tolerance.
func PartsPlanRetry(query string, targetMinutes, previousSum int, sources []record.CandidateSource) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your previous plan allocated %d minutes but the course must total %d minutes.\n", previousSum, targetMinutes)
	fmt.Fprintf(&b, "Re-plan the parts for this request so the allocations sum to exactly %d minutes:\n\n%s\n\n", targetMinutes, strings.TrimSpace(query))
	writeSources(&b, sources)
	b.WriteString("\nOutput one part per line, numbered, with a minute allocation:\n")
	b.WriteString("1. <part title> — <minutes> min\n")
	return b.String()
}

// SectionsForPart expands one part into sections. Summaries of already
// expanded parts are included so later parts do not duplicate their coverage;
// this data dependency is why parts expand strictly in order.
func SectionsForPart(query string, part record.DraftPart, earlier []string, sources []record.CandidateSource) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Course request: %s\n\n", strings.TrimSpace(query))
	fmt.Fprintf(&b, "Expand this part into sections: %q (%d minutes total).\n", part.Title, part.TargetMinutes)
	if len(earlier) > 0 {
		b.WriteString("\nParts already covered earlier in the course — do not repeat their material:\n")
		for _, s := range earlier {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	writeSources(&b, sources)
	b.WriteString("\nOutput markdown only:\n")
	b.WriteString("- <section title> (<minutes> min)\n")
	b.WriteString("  - <learning objective>\n")
	fmt.Fprintf(&b, "Section minutes must sum to %d. Give 2-6 sections with 1-3 objectives each.\n", part.TargetMinutes)
	return b.String()
}

// ReviseOutline is the reconciler's single corrective call for an outline
// whose section minutes missed the target beyond tolerance.
func ReviseOutline(outlineText string, targetMinutes, totalMinutes int, variance float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The outline below totals %d minutes against a target of %d (%.0f%% off).\n", totalMinutes, targetMinutes, variance*100)
	fmt.Fprintf(&b, "Rewrite it, keeping the structure and headings format, so section minutes sum to %d.\n\n", targetMinutes)
	b.WriteString(outlineText)
	return b.String()
}

func writeSources(b *strings.Builder, sources []record.CandidateSource) {
	if len(sources) == 0 {
		return
	}
	b.WriteString("\nRelevant source material:\n")
	for _, s := range sources {
		summary := strings.TrimSpace(s.Summary)
		if summary == "" {
			summary = s.ChunkID
		}
		fmt.Fprintf(b, "- [%s] %s\n", s.ChunkID, summary)
	}
}
