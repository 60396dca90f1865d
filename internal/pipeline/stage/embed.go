package stage

import (
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/command"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/event"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/record"
)

// EmbedStage handles requested → embedding: compute the semantic query
// vector for the original request.
type EmbedStage struct{}

func NewEmbedStage() *EmbedStage { return &EmbedStage{} }

func (s *EmbedStage) Kinds() []event.Kind {
	return []event.Kind{event.KindRequested}
}

func (s *EmbedStage) Decide(rec *record.CourseGenerationRecord, _ event.Event) (Plan, error) {
	if len(rec.SemanticQueryVector) > 0 {
		// Redelivery after the vector was already persisted; nothing to do.
		return Plan{}, nil
	}
	return Plan{Commands: []command.Command{
		command.ComputeEmbedding{Text: rec.OriginalQuery},
	}}, nil
}

func (s *EmbedStage) Apply(rec *record.CourseGenerationRecord, _ event.Event, results []command.Result) (Outcome, error) {
	next := rec.Clone()
	if len(results) > 0 {
		vec, err := embeddingResult(results, 0)
		if err != nil {
			return Outcome{}, command.Permanent("embed_stage", err)
		}
		next.SemanticQueryVector = vec
	}
	next.Phase = record.PhaseEmbedding
	return Outcome{
		Record: next,
		Next:   &event.Event{Kind: event.KindEmbedded, CourseID: rec.CourseID},
	}, nil
}
