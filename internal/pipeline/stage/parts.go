package stage

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/coursepilot/coursepilot-backend/internal/pipeline/command"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/event"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/outline"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/prompts"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/record"
)

// maxParts bounds the generated parts list; anything past this is a planning
// failure, not a usable outline.
const maxParts = 12

// PartsStage handles sources_found → parts_generated: ask the generation
// service for a minute-allocated parts plan and validate the sum against the
// target. One adjusted re-prompt is allowed; a second miss is terminal.
type PartsStage struct{}

func NewPartsStage() *PartsStage { return &PartsStage{} }

func (s *PartsStage) Kinds() []event.Kind {
	return []event.Kind{event.KindSourcesFound}
}

func (s *PartsStage) Decide(rec *record.CourseGenerationRecord, _ event.Event) (Plan, error) {
	return Plan{Commands: []command.Command{
		command.GenerateText{
			System: prompts.PlannerSystem,
			User:   prompts.PartsPlan(rec.OriginalQuery, rec.TargetMinutes, rec.CandidateSources),
		},
	}}, nil
}

func (s *PartsStage) Apply(rec *record.CourseGenerationRecord, _ event.Event, results []command.Result) (Outcome, error) {
	round := len(results)
	if round < 1 {
		return Outcome{}, command.Permanent("parts_stage", fmt.Errorf("missing plan generation result"))
	}
	text, err := textResult(results, round-1)
	if err != nil {
		return Outcome{}, command.Permanent("parts_stage", err)
	}

	title, parts, err := parsePartsPlan(text)
	if err != nil {
		return Outcome{}, command.Permanent("parts_stage", err)
	}

	sum := 0
	for _, p := range parts {
		sum += p.TargetMinutes
	}
	verdict := outline.Assess(rec.TargetMinutes, sum, outline.DefaultTolerance)

	if !verdict.WithinTolerance {
		if round == 1 {
			// Exactly one adjusted re-prompt.
			return Outcome{
				Record: rec,
				FollowUp: &Plan{Commands: []command.Command{
					command.GenerateText{
						System: prompts.PlannerSystem,
						User:   prompts.PartsPlanRetry(rec.OriginalQuery, rec.TargetMinutes, sum, rec.CandidateSources),
					},
				}},
			}, nil
		}
		return Outcome{}, command.Permanent("parts_stage",
			fmt.Errorf("parts plan minutes never converged: got %d against target %d after one retry", sum, rec.TargetMinutes))
	}

	next := rec.Clone()
	next.DraftTitle = title
	next.DraftParts = parts
	next.PartsExpanded = 0
	// A fresh plan restarts the expansion loop from nothing.
	next.GeneratedOutlineText = ""
	next.Phase = record.PhasePartsGenerated
	return Outcome{
		Record: next,
		Next:   &event.Event{Kind: event.KindPartsGenerated, CourseID: rec.CourseID},
	}, nil
}

var partLineRe = regexp.MustCompile(`(?i)^\s*(?:\d+[.)]\s*)(.+?)\s*(?:[—–-]|:)\s*~?\s*(\d+)\s*min`)

// parsePartsPlan reads the planner's output: an optional "# <title>" line
// followed by numbered "<n>. <title> — <minutes> min" lines.
func parsePartsPlan(text string) (title string, parts []record.DraftPart, err error) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if title == "" && strings.HasPrefix(line, "#") {
			title = strings.TrimSpace(strings.TrimLeft(line, "# "))
			continue
		}
		m := partLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		minutes, convErr := strconv.Atoi(m[2])
		if convErr != nil || minutes <= 0 {
			continue
		}
		parts = append(parts, record.DraftPart{
			Title:         strings.TrimSpace(m[1]),
			TargetMinutes: minutes,
		})
	}
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("no parts found in plan output")
	}
	if len(parts) > maxParts {
		return "", nil, fmt.Errorf("plan produced %d parts, maximum is %d", len(parts), maxParts)
	}
	return title, parts, nil
}
