package stage

import (
	"fmt"

	"github.com/coursepilot/coursepilot-backend/internal/pipeline/command"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/event"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/record"
)

// Plan is the ordered list of commands a stage wants executed.
type Plan struct {
	Commands []command.Command
}

// Outcome is a stage's verdict after seeing its command results. When
// FollowUp is set the worker executes it and calls Apply once more with the
// combined result slice; stages use this for their single bounded corrective
// round. Record is the full successor record (the delta already applied).
type Outcome struct {
	Record   *record.CourseGenerationRecord
	Next     *event.Event
	FollowUp *Plan
	Done     bool
}

// Stage is the pure logic of one phase transition. Decide and Apply are
// referentially transparent: identical (record, event, results) inputs always
// produce identical outputs, which is what makes at-least-once delivery safe.
// Neither performs I/O.
type Stage interface {
	Kinds() []event.Kind
	Decide(rec *record.CourseGenerationRecord, ev event.Event) (Plan, error)
	Apply(rec *record.CourseGenerationRecord, ev event.Event, results []command.Result) (Outcome, error)
}

type Registry struct {
	stages map[event.Kind]Stage
}

func NewRegistry(stages ...Stage) (*Registry, error) {
	r := &Registry{stages: map[event.Kind]Stage{}}
	for _, s := range stages {
		for _, k := range s.Kinds() {
			if _, dup := r.stages[k]; dup {
				return nil, fmt.Errorf("duplicate stage registration for %s", k)
			}
			r.stages[k] = s
		}
	}
	return r, nil
}

func (r *Registry) Get(kind event.Kind) (Stage, bool) {
	s, ok := r.stages[kind]
	return s, ok
}

func textResult(results []command.Result, i int) (string, error) {
	if i >= len(results) {
		return "", fmt.Errorf("missing result at index %d", i)
	}
	tr, ok := results[i].(command.TextResult)
	if !ok {
		return "", fmt.Errorf("result %d: expected TextResult, got %T", i, results[i])
	}
	return tr.Text, nil
}

func embeddingResult(results []command.Result, i int) ([]float32, error) {
	if i >= len(results) {
		return nil, fmt.Errorf("missing result at index %d", i)
	}
	er, ok := results[i].(command.EmbeddingResult)
	if !ok {
		return nil, fmt.Errorf("result %d: expected EmbeddingResult, got %T", i, results[i])
	}
	return er.Vector, nil
}

func searchResult(results []command.Result, i int) ([]record.CandidateSource, error) {
	if i >= len(results) {
		return nil, fmt.Errorf("missing result at index %d", i)
	}
	sr, ok := results[i].(command.SearchResult)
	if !ok {
		return nil, fmt.Errorf("result %d: expected SearchResult, got %T", i, results[i])
	}
	return sr.Matches, nil
}
