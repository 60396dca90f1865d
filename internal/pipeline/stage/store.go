package stage

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"github.com/coursepilot/coursepilot-backend/internal/domain"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/command"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/event"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/outline"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/record"
)

// StoreStage is the terminal success transition: parse the reviewed outline
// and emit the full persistence batch. Section ids come out of the parser
// deterministically, so a replayed batch upserts as a no-op.
type StoreStage struct{}

func NewStoreStage() *StoreStage { return &StoreStage{} }

func (s *StoreStage) Kinds() []event.Kind {
	return []event.Kind{event.KindOutlineReviewed}
}

func (s *StoreStage) Decide(rec *record.CourseGenerationRecord, _ event.Event) (Plan, error) {
	parsed, err := outline.Parse(rec.CourseID, rec.GeneratedOutlineText)
	if err != nil {
		return Plan{}, command.Permanent("store_stage", err)
	}

	course := &domain.Course{
		ID:            rec.CourseID,
		UserID:        rec.UserID,
		Title:         parsed.Title,
		OriginalQuery: rec.OriginalQuery,
		TargetMinutes: rec.TargetMinutes,
		Status:        domain.CourseStatusReady,
	}

	sections, err := flatten(rec, parsed)
	if err != nil {
		return Plan{}, command.Permanent("store_stage", err)
	}

	sectionCount := 0
	for _, p := range parsed.Parts {
		sectionCount += len(p.Sections)
	}

	return Plan{Commands: []command.Command{
		command.CreateCourseRecord{Course: course},
		command.CreateSections{Sections: sections},
		command.RecordPipelineEvent{
			CourseID: rec.CourseID,
			Phase:    record.PhaseStored,
			Kind:     "course.stored",
			Detail:   fmt.Sprintf("parts=%d sections=%d", len(parsed.Parts), sectionCount),
		},
	}}, nil
}

func (s *StoreStage) Apply(rec *record.CourseGenerationRecord, _ event.Event, _ []command.Result) (Outcome, error) {
	next := rec.Clone()
	next.Phase = record.PhaseStored
	return Outcome{Record: next, Done: true}, nil
}

// flatten turns the parsed tree into one ordered batch: part rows first (nil
// parent), then each part's sections referencing it.
func flatten(rec *record.CourseGenerationRecord, parsed *outline.Outline) ([]*domain.CourseSection, error) {
	chunkIDs := make([]string, 0, len(rec.CandidateSources))
	for _, src := range rec.CandidateSources {
		chunkIDs = append(chunkIDs, src.ChunkID)
	}
	chunkJSON, err := json.Marshal(chunkIDs)
	if err != nil {
		return nil, err
	}

	var rows []*domain.CourseSection
	for pi := range parsed.Parts {
		p := &parsed.Parts[pi]
		partID := p.ID
		rows = append(rows, &domain.CourseSection{
			ID:               partID,
			CourseID:         rec.CourseID,
			ParentSectionID:  nil,
			OrderIndex:       p.OrderIndex,
			Title:            p.Title,
			EstimatedMinutes: p.EstimatedMinutes,
			Status:           domain.SectionStatusReady,
		})
		for si := range p.Sections {
			sec := &p.Sections[si]
			objectives, mErr := json.Marshal(sec.Objectives)
			if mErr != nil {
				return nil, mErr
			}
			parent := partID
			rows = append(rows, &domain.CourseSection{
				ID:                 sec.ID,
				CourseID:           rec.CourseID,
				ParentSectionID:    &parent,
				OrderIndex:         sec.OrderIndex,
				Title:              sec.Title,
				LearningObjectives: datatypes.JSON(objectives),
				EstimatedMinutes:   sec.EstimatedMinutes,
				SourceChunkIDs:     datatypes.JSON(chunkJSON),
				Status:             domain.SectionStatusReady,
			})
		}
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("flatten produced no rows")
	}
	return rows, nil
}
