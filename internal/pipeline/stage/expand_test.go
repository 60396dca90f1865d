package stage

import (
	"strings"
	"testing"

	"github.com/coursepilot/coursepilot-backend/internal/pipeline/command"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/event"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/record"
)

func recordWithParts(t *testing.T) *record.CourseGenerationRecord {
	t.Helper()
	rec := newTestRecord(t, 120)
	rec.Phase = record.PhasePartsGenerated
	rec.DraftTitle = "DCF Valuation"
	rec.DraftParts = []record.DraftPart{
		{Title: "Foundations", TargetMinutes: 40},
		{Title: "Building the Model", TargetMinutes: 40},
		{Title: "Interpreting Results", TargetMinutes: 38},
	}
	return rec
}

func TestExpandStageWalksPartsInOrder(t *testing.T) {
	rec := recordWithParts(t)
	s := NewExpandStage()

	ev := event.Event{Kind: event.KindPartsGenerated, CourseID: rec.CourseID}
	plan, err := s.Decide(rec, ev)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	gen, ok := plan.Commands[0].(command.GenerateText)
	if !ok {
		t.Fatalf("command type = %T", plan.Commands[0])
	}
	if !strings.Contains(gen.User, "Foundations") {
		t.Fatal("first expansion must target the first part")
	}
	if strings.Contains(gen.User, "already covered") {
		t.Fatal("first expansion has no earlier parts to summarize")
	}

	out, err := s.Apply(rec, ev, []command.Result{command.TextResult{Text: "- Intro (20 min)\n- TVM (20 min)"}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Record.PartsExpanded != 1 {
		t.Fatalf("cursor = %d", out.Record.PartsExpanded)
	}
	if out.Next == nil || out.Next.Kind != event.KindPartExpanded {
		t.Fatalf("next = %+v", out.Next)
	}
	if !strings.HasPrefix(out.Record.GeneratedOutlineText, "# DCF Valuation") {
		t.Fatalf("outline text missing title heading: %q", out.Record.GeneratedOutlineText[:40])
	}
	if !strings.Contains(out.Record.GeneratedOutlineText, "## Foundations (40 min)") {
		t.Fatal("outline text missing part heading")
	}
}

func TestExpandStageIncludesEarlierPartsSummary(t *testing.T) {
	rec := recordWithParts(t)
	rec.PartsExpanded = 2
	s := NewExpandStage()

	plan, err := s.Decide(rec, event.Event{Kind: event.KindPartExpanded, CourseID: rec.CourseID})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	gen := plan.Commands[0].(command.GenerateText)
	if !strings.Contains(gen.User, "Foundations") || !strings.Contains(gen.User, "Building the Model") {
		t.Fatal("later expansions must carry earlier part titles to avoid duplicated coverage")
	}
	if !strings.Contains(gen.User, "Interpreting Results") {
		t.Fatal("expansion must target the cursor part")
	}
}

func TestExpandStageAdvancesToReviewAfterLastPart(t *testing.T) {
	rec := recordWithParts(t)
	rec.PartsExpanded = 2
	rec.GeneratedOutlineText = "# DCF Valuation\n\n## Foundations (40 min)\n\n- a (40 min)\n\n"
	s := NewExpandStage()

	out, err := s.Apply(rec, event.Event{Kind: event.KindPartExpanded, CourseID: rec.CourseID},
		[]command.Result{command.TextResult{Text: "- Sensitivity (38 min)"}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Record.Phase != record.PhaseSectionsGenerated {
		t.Fatalf("phase = %s", out.Record.Phase)
	}
	if out.Next == nil || out.Next.Kind != event.KindSectionsGenerated {
		t.Fatalf("next = %+v", out.Next)
	}
}

func TestExpandStageRedeliveryAfterCompletionIsHarmless(t *testing.T) {
	rec := recordWithParts(t)
	rec.PartsExpanded = 3
	s := NewExpandStage()

	plan, err := s.Decide(rec, event.Event{Kind: event.KindPartExpanded, CourseID: rec.CourseID})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if len(plan.Commands) != 0 {
		t.Fatal("completed loop must not generate again")
	}

	out, err := s.Apply(rec, event.Event{Kind: event.KindPartExpanded, CourseID: rec.CourseID}, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Record.Phase != record.PhaseSectionsGenerated {
		t.Fatalf("phase = %s", out.Record.Phase)
	}
}
