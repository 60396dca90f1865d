package record

import (
	"time"

	"github.com/google/uuid"
)

// Phase is one discrete named state of a course generation's progress. Each
// phase transition is a case handled by exactly one stage.
type Phase string

const (
	PhaseRequested         Phase = "requested"
	PhaseEmbedding         Phase = "embedding"
	PhaseSourcesFound      Phase = "sources_found"
	PhasePartsGenerated    Phase = "parts_generated"
	PhaseSectionsGenerated Phase = "sections_generated"
	PhaseOutlineReviewed   Phase = "outline_reviewed"
	PhaseStored            Phase = "stored"
	PhaseFailed            Phase = "failed"
)

func (p Phase) Terminal() bool {
	return p == PhaseStored || p == PhaseFailed
}

// DraftPart is a planned top-level grouping before section expansion.
type DraftPart struct {
	Title         string `json:"title"`
	TargetMinutes int    `json:"target_minutes"`
}

// CandidateSource is one ranked semantic-search hit over the source-summary
// index.
type CandidateSource struct {
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
	Summary string  `json:"summary,omitempty"`
}

// CourseGenerationRecord is the single durable coordination point of the
// pipeline. It is owned exclusively by the stage workers and advanced only
// through version-checked puts.
type CourseGenerationRecord struct {
	CourseID            uuid.UUID         `json:"course_id"`
	UserID              uuid.UUID         `json:"user_id"`
	OriginalQuery       string            `json:"original_query"`
	TargetMinutes       int               `json:"target_minutes"`
	Phase               Phase             `json:"phase"`
	SemanticQueryVector []float32         `json:"semantic_query_vector,omitempty"`
	CandidateSources    []CandidateSource `json:"candidate_sources,omitempty"`
	DraftTitle          string            `json:"draft_title,omitempty"`
	DraftParts          []DraftPart       `json:"draft_parts,omitempty"`

	// PartsExpanded is the cursor of the sequential section-expansion loop.
	// It lives on the record because events carry no substantive data.
	PartsExpanded int `json:"parts_expanded"`

	GeneratedOutlineText string `json:"generated_outline_text,omitempty"`
	Error                string `json:"error,omitempty"`

	// Attempts counts transient failures per phase; the worker gives up and
	// fails the course once a phase exhausts its budget.
	Attempts map[Phase]int `json:"attempts,omitempty"`

	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	SchemaVersion int64     `json:"schema_version"`
}

func New(courseID, userID uuid.UUID, query string, targetMinutes int, now time.Time) *CourseGenerationRecord {
	return &CourseGenerationRecord{
		CourseID:      courseID,
		UserID:        userID,
		OriginalQuery: query,
		TargetMinutes: targetMinutes,
		Phase:         PhaseRequested,
		CreatedAt:     now.UTC(),
		UpdatedAt:     now.UTC(),
		SchemaVersion: 1,
	}
}

func (r *CourseGenerationRecord) AttemptCount(p Phase) int {
	if r.Attempts == nil {
		return 0
	}
	return r.Attempts[p]
}

func (r *CourseGenerationRecord) IncAttempt(p Phase) {
	if r.Attempts == nil {
		r.Attempts = map[Phase]int{}
	}
	r.Attempts[p]++
}

// Clone returns a deep copy so pure stages can produce a delta without
// mutating the loaded record.
func (r *CourseGenerationRecord) Clone() *CourseGenerationRecord {
	out := *r
	if r.SemanticQueryVector != nil {
		out.SemanticQueryVector = append([]float32(nil), r.SemanticQueryVector...)
	}
	if r.CandidateSources != nil {
		out.CandidateSources = append([]CandidateSource(nil), r.CandidateSources...)
	}
	if r.DraftParts != nil {
		out.DraftParts = append([]DraftPart(nil), r.DraftParts...)
	}
	if r.Attempts != nil {
		out.Attempts = make(map[Phase]int, len(r.Attempts))
		for k, v := range r.Attempts {
			out.Attempts[k] = v
		}
	}
	return &out
}
