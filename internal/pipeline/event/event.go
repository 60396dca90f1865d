package event

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Kind names a phase transition and is the sole routing key. All substantive
// data stays on the durable record, keeping replays cheap and event size
// independent of outline length.
type Kind string

const (
	KindRequested         Kind = "course.requested"
	KindEmbedded          Kind = "course.embedded"
	KindSourcesFound      Kind = "course.sources_found"
	KindPartsGenerated    Kind = "course.parts_generated"
	KindPartExpanded      Kind = "course.part_expanded"
	KindSectionsGenerated Kind = "course.sections_generated"
	KindOutlineReviewed   Kind = "course.outline_reviewed"
)

type Event struct {
	Kind         Kind
	CourseID     uuid.UUID
	AttemptCount int
}

func (e Event) Fields() map[string]any {
	return map[string]any{
		"kind":      string(e.Kind),
		"course_id": e.CourseID.String(),
		"attempt":   strconv.Itoa(e.AttemptCount),
	}
}

func FromFields(values map[string]any) (Event, error) {
	kind, _ := values["kind"].(string)
	if kind == "" {
		return Event{}, fmt.Errorf("event missing kind")
	}
	rawID, _ := values["course_id"].(string)
	courseID, err := uuid.Parse(rawID)
	if err != nil {
		return Event{}, fmt.Errorf("event course_id: %w", err)
	}
	attempt := 0
	if rawAttempt, ok := values["attempt"].(string); ok {
		if n, err := strconv.Atoi(rawAttempt); err == nil {
			attempt = n
		}
	}
	return Event{Kind: Kind(kind), CourseID: courseID, AttemptCount: attempt}, nil
}
