package stage

import (
	"fmt"

	"github.com/coursepilot/coursepilot-backend/internal/pipeline/command"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/event"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/record"
)

// TopKSources is how many ranked candidates the similarity search keeps.
// There is deliberately no similarity floor: course generation must always
// surface something to outline against, however weakly relevant.
const TopKSources = 5

// SourcesStage handles embedding → sources_found via semantic search over
// the source-summary index.
type SourcesStage struct{}

func NewSourcesStage() *SourcesStage { return &SourcesStage{} }

func (s *SourcesStage) Kinds() []event.Kind {
	return []event.Kind{event.KindEmbedded}
}

func (s *SourcesStage) Decide(rec *record.CourseGenerationRecord, _ event.Event) (Plan, error) {
	if len(rec.SemanticQueryVector) == 0 {
		return Plan{}, command.Permanent("sources_stage", fmt.Errorf("record has no semantic query vector"))
	}
	return Plan{Commands: []command.Command{
		command.SearchSimilar{Vector: rec.SemanticQueryVector, TopK: TopKSources},
	}}, nil
}

func (s *SourcesStage) Apply(rec *record.CourseGenerationRecord, _ event.Event, results []command.Result) (Outcome, error) {
	matches, err := searchResult(results, 0)
	if err != nil {
		return Outcome{}, command.Permanent("sources_stage", err)
	}
	next := rec.Clone()
	next.CandidateSources = matches
	next.Phase = record.PhaseSourcesFound
	return Outcome{
		Record: next,
		Next:   &event.Event{Kind: event.KindSourcesFound, CourseID: rec.CourseID},
	}, nil
}
