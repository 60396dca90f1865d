package pipeline

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/coursepilot/coursepilot-backend/internal/pipeline/command"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/event"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/record"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/stage"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/state"
	"github.com/coursepilot/coursepilot-backend/internal/platform/logger"
)

// MaxAttemptsPerPhase bounds transient retries: the worker re-publishes the
// triggering event up to this many times before failing the course.
const MaxAttemptsPerPhase = 3

// kindPhase maps each event kind to the record phase it fires from. Delivery
// is at-least-once, so an event whose transition already committed can come
// back after the record advanced; it must be dropped, not re-applied against
// the newer record.
var kindPhase = map[event.Kind]record.Phase{
	event.KindRequested:         record.PhaseRequested,
	event.KindEmbedded:          record.PhaseEmbedding,
	event.KindSourcesFound:      record.PhaseSourcesFound,
	event.KindPartsGenerated:    record.PhasePartsGenerated,
	event.KindPartExpanded:      record.PhasePartsGenerated,
	event.KindSectionsGenerated: record.PhaseSectionsGenerated,
	event.KindOutlineReviewed:   record.PhaseOutlineReviewed,
}

// CommandRunner is the executor surface the worker needs; split out so tests
// can substitute a fake.
type CommandRunner interface {
	Execute(ctx context.Context, cmd command.Command) (command.Result, error)
	ExecuteAll(ctx context.Context, cmds []command.Command) ([]command.Result, error)
}

// Worker is the per-event stage invocation: load the record, run the pure
// stage, execute its commands, persist the delta behind a version check and
// publish the next event. Instances are stateless; all coordination flows
// through the state store.
type Worker struct {
	log      *logger.Logger
	store    state.Store
	registry *stage.Registry
	exec     CommandRunner
	pub      event.Publisher
}

func NewWorker(baseLog *logger.Logger, store state.Store, registry *stage.Registry, exec CommandRunner, pub event.Publisher) *Worker {
	return &Worker{
		log:      baseLog.With("component", "StageWorker"),
		store:    store,
		registry: registry,
		exec:     exec,
		pub:      pub,
	}
}

// Handle processes one delivered event. A nil return acknowledges the event;
// an error leaves it pending for transport-level redelivery. Pipeline-level
// retries and failures are handled here and always acknowledge.
func (w *Worker) Handle(ctx context.Context, ev event.Event) error {
	log := w.log.With("kind", ev.Kind, "course_id", ev.CourseID, "attempt", ev.AttemptCount)

	tracer := otel.Tracer("coursepilot/pipeline")
	ctx, span := tracer.Start(ctx, "stage."+string(ev.Kind))
	span.SetAttributes(
		attribute.String("course_id", ev.CourseID.String()),
		attribute.Int("attempt", ev.AttemptCount),
	)
	defer span.End()

	rec, err := w.store.Get(ctx, ev.CourseID)
	if errors.Is(err, state.ErrNotFound) {
		log.Warn("Record not found for event, dropping")
		return nil
	}
	if err != nil {
		span.RecordError(err)
		return err
	}
	if rec.Phase.Terminal() {
		log.Debug("Record already terminal, dropping event", "phase", rec.Phase)
		return nil
	}
	if want, ok := kindPhase[ev.Kind]; ok && rec.Phase != want {
		log.Debug("Stale redelivery, record already advanced, dropping", "phase", rec.Phase)
		return nil
	}

	st, ok := w.registry.Get(ev.Kind)
	if !ok {
		log.Error("No stage registered for event kind, dropping")
		return nil
	}

	plan, err := st.Decide(rec, ev)
	if err != nil {
		// Decide is pure; its errors are deterministic and terminal.
		w.failCourse(ctx, log, rec, ev, err)
		return nil
	}

	results, err := w.exec.ExecuteAll(ctx, plan.Commands)
	if err != nil {
		span.RecordError(err)
		w.handleExecError(ctx, log, rec, ev, err)
		return nil
	}

	outcome, err := st.Apply(rec, ev, results)
	if err != nil {
		w.failCourse(ctx, log, rec, ev, err)
		return nil
	}

	if outcome.FollowUp != nil {
		more, err := w.exec.ExecuteAll(ctx, outcome.FollowUp.Commands)
		if err != nil {
			span.RecordError(err)
			w.handleExecError(ctx, log, rec, ev, err)
			return nil
		}
		results = append(results, more...)
		outcome, err = st.Apply(rec, ev, results)
		if err != nil {
			w.failCourse(ctx, log, rec, ev, err)
			return nil
		}
	}

	if outcome.Record == nil {
		log.Error("Stage returned no successor record, dropping")
		return nil
	}

	if err := w.store.Put(ctx, outcome.Record, rec.SchemaVersion); err != nil {
		if errors.Is(err, state.ErrVersionConflict) {
			// A concurrent delivery already advanced this transition.
			log.Debug("Version conflict, another worker won the transition")
			return nil
		}
		span.RecordError(err)
		return err
	}

	if outcome.Next != nil {
		if err := w.pub.Publish(ctx, *outcome.Next); err != nil {
			span.RecordError(err)
			// The delta is persisted; redelivery of this event resumes from
			// the advanced record.
			return err
		}
		log.Info("Stage complete", "next_kind", outcome.Next.Kind, "phase", outcome.Record.Phase)
		return nil
	}

	log.Info("Pipeline terminal", "phase", outcome.Record.Phase)
	return nil
}

func (w *Worker) handleExecError(ctx context.Context, log *logger.Logger, rec *record.CourseGenerationRecord, ev event.Event, err error) {
	if command.IsTransient(err) {
		w.retryOrFail(ctx, log, rec, ev, err)
		return
	}
	w.failCourse(ctx, log, rec, ev, err)
}

// retryOrFail charges one attempt against the current phase and either
// re-publishes the same event or gives up and fails the course.
func (w *Worker) retryOrFail(ctx context.Context, log *logger.Logger, rec *record.CourseGenerationRecord, ev event.Event, cause error) {
	attempts := rec.AttemptCount(rec.Phase) + 1
	if attempts > MaxAttemptsPerPhase {
		w.failCourse(ctx, log, rec, ev, cause)
		return
	}

	next := rec.Clone()
	next.IncAttempt(rec.Phase)
	if err := w.store.Put(ctx, next, rec.SchemaVersion); err != nil {
		if errors.Is(err, state.ErrVersionConflict) {
			log.Debug("Version conflict while recording retry, dropping")
			return
		}
		log.Error("Failed to persist retry counter", "error", err)
		return
	}

	retry := event.Event{Kind: ev.Kind, CourseID: ev.CourseID, AttemptCount: attempts}
	if err := w.pub.Publish(ctx, retry); err != nil {
		log.Error("Failed to re-publish event for retry", "error", err)
		return
	}
	log.Warn("Transient failure, retrying phase", "phase", rec.Phase, "attempts", attempts, "cause", cause)
}

// failCourse is the terminal failure transition: record the error, move to
// Failed, publish nothing further.
func (w *Worker) failCourse(ctx context.Context, log *logger.Logger, rec *record.CourseGenerationRecord, ev event.Event, cause error) {
	next := rec.Clone()
	next.Phase = record.PhaseFailed
	next.Error = cause.Error()

	if err := w.store.Put(ctx, next, rec.SchemaVersion); err != nil {
		if errors.Is(err, state.ErrVersionConflict) {
			log.Debug("Version conflict while failing course, dropping")
			return
		}
		log.Error("Failed to persist failure", "error", err)
		return
	}

	// Best-effort durable trace; the record already carries the error.
	_, _ = w.exec.Execute(ctx, command.RecordPipelineEvent{
		CourseID: rec.CourseID,
		Phase:    record.PhaseFailed,
		Kind:     string(ev.Kind),
		Detail:   cause.Error(),
	})

	log.Error("Course generation failed", "phase", rec.Phase, "error", cause)
}
