package stage

import (
	"fmt"

	"github.com/coursepilot/coursepilot-backend/internal/pipeline/command"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/event"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/prompts"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/record"
)

// ExpandStage handles the sequential part-expansion loop. It is registered
// for both the loop-entry and loop-continue events; the cursor lives on the
// record. The loop is sequential on purpose: each part's prompt carries the
// titles of already expanded parts so later parts do not duplicate coverage.
type ExpandStage struct{}

func NewExpandStage() *ExpandStage { return &ExpandStage{} }

func (s *ExpandStage) Kinds() []event.Kind {
	return []event.Kind{event.KindPartsGenerated, event.KindPartExpanded}
}

func (s *ExpandStage) Decide(rec *record.CourseGenerationRecord, _ event.Event) (Plan, error) {
	if len(rec.DraftParts) == 0 {
		return Plan{}, command.Permanent("expand_stage", fmt.Errorf("record has no draft parts"))
	}
	if rec.PartsExpanded >= len(rec.DraftParts) {
		// Redelivery after the last part was already expanded.
		return Plan{}, nil
	}

	part := rec.DraftParts[rec.PartsExpanded]
	earlier := make([]string, 0, rec.PartsExpanded)
	for _, p := range rec.DraftParts[:rec.PartsExpanded] {
		earlier = append(earlier, p.Title)
	}
	return Plan{Commands: []command.Command{
		command.GenerateText{
			System: prompts.PlannerSystem,
			User:   prompts.SectionsForPart(rec.OriginalQuery, part, earlier, rec.CandidateSources),
		},
	}}, nil
}

func (s *ExpandStage) Apply(rec *record.CourseGenerationRecord, _ event.Event, results []command.Result) (Outcome, error) {
	next := rec.Clone()

	if len(results) > 0 {
		text, err := textResult(results, 0)
		if err != nil {
			return Outcome{}, command.Permanent("expand_stage", err)
		}
		part := rec.DraftParts[rec.PartsExpanded]

		if next.GeneratedOutlineText == "" && next.DraftTitle != "" {
			next.GeneratedOutlineText = "# " + next.DraftTitle + "\n\n"
		}
		next.GeneratedOutlineText += fmt.Sprintf("## %s (%d min)\n\n%s\n\n", part.Title, part.TargetMinutes, text)
		next.PartsExpanded++
	}

	if next.PartsExpanded < len(next.DraftParts) {
		next.Phase = record.PhasePartsGenerated
		return Outcome{
			Record: next,
			Next:   &event.Event{Kind: event.KindPartExpanded, CourseID: rec.CourseID},
		}, nil
	}

	next.Phase = record.PhaseSectionsGenerated
	return Outcome{
		Record: next,
		Next:   &event.Event{Kind: event.KindSectionsGenerated, CourseID: rec.CourseID},
	}, nil
}
