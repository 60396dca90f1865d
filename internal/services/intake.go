package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coursepilot/coursepilot-backend/internal/pipeline/event"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/record"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/state"
	"github.com/coursepilot/coursepilot-backend/internal/platform/logger"
)

var ErrCourseNotFound = errors.New("course not found")

type GenerationStatus struct {
	CourseID uuid.UUID    `json:"course_id"`
	Phase    record.Phase `json:"phase"`
	Error    string       `json:"error,omitempty"`
}

// IntakeService is the pipeline's front door: it mints the course id, writes
// the initial record and publishes the first event. The status read is a pure
// store lookup and never touches the pipeline.
type IntakeService interface {
	Create(ctx context.Context, userID uuid.UUID, query string, targetMinutes int) (uuid.UUID, error)
	GetStatus(ctx context.Context, courseID uuid.UUID) (GenerationStatus, error)
}

type intakeService struct {
	log   *logger.Logger
	store state.Store
	pub   event.Publisher
}

func NewIntakeService(baseLog *logger.Logger, store state.Store, pub event.Publisher) IntakeService {
	return &intakeService{
		log:   baseLog.With("service", "IntakeService"),
		store: store,
		pub:   pub,
	}
}

func (s *intakeService) Create(ctx context.Context, userID uuid.UUID, query string, targetMinutes int) (uuid.UUID, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return uuid.Nil, fmt.Errorf("query is required")
	}
	if userID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("user id is required")
	}
	if targetMinutes <= 0 {
		return uuid.Nil, fmt.Errorf("target minutes must be positive")
	}

	courseID := uuid.New()
	rec := record.New(courseID, userID, query, targetMinutes, time.Now())

	if err := s.store.Put(ctx, rec, 0); err != nil {
		return uuid.Nil, fmt.Errorf("create record: %w", err)
	}
	if err := s.pub.Publish(ctx, event.Event{Kind: event.KindRequested, CourseID: courseID}); err != nil {
		return uuid.Nil, fmt.Errorf("publish first event: %w", err)
	}

	s.log.Info("Course generation requested", "course_id", courseID, "user_id", userID, "target_minutes", targetMinutes)
	return courseID, nil
}

func (s *intakeService) GetStatus(ctx context.Context, courseID uuid.UUID) (GenerationStatus, error) {
	rec, err := s.store.Get(ctx, courseID)
	if errors.Is(err, state.ErrNotFound) {
		return GenerationStatus{}, ErrCourseNotFound
	}
	if err != nil {
		return GenerationStatus{}, err
	}
	return GenerationStatus{CourseID: courseID, Phase: rec.Phase, Error: rec.Error}, nil
}
