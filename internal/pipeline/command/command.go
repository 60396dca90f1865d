package command

import (
	"github.com/google/uuid"

	"github.com/coursepilot/coursepilot-backend/internal/domain"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/record"
)

// Command is the closed union of side effects a logic stage may request.
// Stages produce commands as pure data; only the executor performs them.
type Command interface{ isCommand() }

// ComputeEmbedding asks the generation service for a vector of Text.
type ComputeEmbedding struct {
	Text string
}

// SearchSimilar runs a ranked top-K similarity query over the source-summary
// index. No similarity floor: course generation must always surface
// something to outline, however weak.
type SearchSimilar struct {
	Vector []float32
	TopK   int
}

// GenerateText invokes the generation service with a system/user prompt pair.
type GenerateText struct {
	System string
	User   string
}

// CreateCourseRecord persists the user-visible Course row.
type CreateCourseRecord struct {
	Course *domain.Course
}

// CreateSections persists the full flattened part/section batch atomically.
type CreateSections struct {
	Sections []*domain.CourseSection
}

// RecordPipelineEvent appends one row to the durable pipeline trace.
type RecordPipelineEvent struct {
	CourseID uuid.UUID
	Phase    record.Phase
	Kind     string
	Detail   string
}

func (ComputeEmbedding) isCommand()    {}
func (SearchSimilar) isCommand()       {}
func (GenerateText) isCommand()        {}
func (CreateCourseRecord) isCommand()  {}
func (CreateSections) isCommand()      {}
func (RecordPipelineEvent) isCommand() {}

// Result is the closed union of executor outputs, index-aligned with the
// executed commands.
type Result interface{ isResult() }

type EmbeddingResult struct {
	Vector []float32
}

type SearchResult struct {
	Matches []record.CandidateSource
}

type TextResult struct {
	Text string
}

// Ack is the result of persistence commands, which return no data.
type Ack struct{}

func (EmbeddingResult) isResult() {}
func (SearchResult) isResult()    {}
func (TextResult) isResult()      {}
func (Ack) isResult()             {}
