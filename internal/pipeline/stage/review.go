package stage

import (
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/command"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/event"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/outline"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/prompts"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/record"
)

// ReviewStage handles sections_generated → outline_reviewed: run the
// time-budget reconciler and, on a failing verdict, issue one corrective
// generation call. The pipeline proceeds to storage regardless of the
// correction's outcome; the reconciler is never re-run on the result.
type ReviewStage struct{}

func NewReviewStage() *ReviewStage { return &ReviewStage{} }

func (s *ReviewStage) Kinds() []event.Kind {
	return []event.Kind{event.KindSectionsGenerated}
}

func (s *ReviewStage) Decide(rec *record.CourseGenerationRecord, _ event.Event) (Plan, error) {
	parsed, err := outline.Parse(rec.CourseID, rec.GeneratedOutlineText)
	if err != nil {
		return Plan{}, command.Permanent("review_stage", err)
	}
	verdict := outline.Assess(rec.TargetMinutes, parsed.TotalSectionMinutes(), outline.DefaultTolerance)
	if verdict.WithinTolerance {
		return Plan{}, nil
	}
	return Plan{Commands: []command.Command{
		command.GenerateText{
			System: prompts.PlannerSystem,
			User: prompts.ReviseOutline(
				rec.GeneratedOutlineText,
				verdict.TargetMinutes,
				verdict.TotalMinutes,
				verdict.Variance,
			),
		},
	}}, nil
}

func (s *ReviewStage) Apply(rec *record.CourseGenerationRecord, _ event.Event, results []command.Result) (Outcome, error) {
	next := rec.Clone()
	if len(results) > 0 {
		revised, err := textResult(results, 0)
		if err != nil {
			return Outcome{}, command.Permanent("review_stage", err)
		}
		// Keep the revision only if it still parses; otherwise storage gets
		// the original outline rather than nothing.
		if _, parseErr := outline.Parse(rec.CourseID, revised); parseErr == nil {
			next.GeneratedOutlineText = revised
		}
	}
	next.Phase = record.PhaseOutlineReviewed
	return Outcome{
		Record: next,
		Next:   &event.Event{Kind: event.KindOutlineReviewed, CourseID: rec.CourseID},
	}, nil
}
