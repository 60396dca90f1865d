package executor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coursepilot/coursepilot-backend/internal/domain"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/command"
	"github.com/coursepilot/coursepilot-backend/internal/platform/logger"
	"github.com/coursepilot/coursepilot-backend/internal/platform/openai"
	"github.com/coursepilot/coursepilot-backend/internal/platform/pinecone"
)

type fakeAI struct {
	embedErr    error
	embedVecs   [][]float32
	generateErr error
	text        string
}

func (f *fakeAI) Embed(_ context.Context, _ []string) ([][]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return f.embedVecs, nil
}

func (f *fakeAI) GenerateText(_ context.Context, _, _ string) (string, error) {
	if f.generateErr != nil {
		return "", f.generateErr
	}
	return f.text, nil
}

type fakeVectors struct {
	err     error
	matches []pinecone.VectorMatch
}

func (f *fakeVectors) QueryMatches(_ context.Context, _ string, _ []float32, _ int) ([]pinecone.VectorMatch, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

type fakeCourseRepo struct {
	created []*domain.Course
	err     error
}

func (f *fakeCourseRepo) Create(_ context.Context, _ *gorm.DB, courses []*domain.Course) ([]*domain.Course, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, courses...)
	return courses, nil
}

func (f *fakeCourseRepo) GetByIDs(_ context.Context, _ *gorm.DB, _ []uuid.UUID) ([]*domain.Course, error) {
	return nil, nil
}

func (f *fakeCourseRepo) GetByUserIDs(_ context.Context, _ *gorm.DB, _ []uuid.UUID) ([]*domain.Course, error) {
	return nil, nil
}

type fakeSectionRepo struct {
	batches [][]*domain.CourseSection
}

func (f *fakeSectionRepo) CreateBatch(_ context.Context, _ *gorm.DB, sections []*domain.CourseSection) error {
	f.batches = append(f.batches, sections)
	return nil
}

func (f *fakeSectionRepo) GetByCourseIDs(_ context.Context, _ *gorm.DB, _ []uuid.UUID) ([]*domain.CourseSection, error) {
	return nil, nil
}

type fakeEventRepo struct {
	rows []*domain.PipelineEventLog
}

func (f *fakeEventRepo) Append(_ context.Context, _ *gorm.DB, ev *domain.PipelineEventLog) error {
	f.rows = append(f.rows, ev)
	return nil
}

func (f *fakeEventRepo) GetByCourseID(_ context.Context, _ *gorm.DB, _ uuid.UUID) ([]*domain.PipelineEventLog, error) {
	return nil, nil
}

func newTestExecutor(t *testing.T, ai openai.Client, vectors pinecone.VectorStore) (*Executor, *fakeCourseRepo, *fakeSectionRepo, *fakeEventRepo) {
	t.Helper()
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	courses := &fakeCourseRepo{}
	sections := &fakeSectionRepo{}
	events := &fakeEventRepo{}
	return New(log, nil, ai, vectors, courses, sections, events), courses, sections, events
}

func TestExecuteComputeEmbedding(t *testing.T) {
	e, _, _, _ := newTestExecutor(t, &fakeAI{embedVecs: [][]float32{{0.1, 0.2}}}, &fakeVectors{})

	res, err := e.Execute(context.Background(), command.ComputeEmbedding{Text: "intro to statistics"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	vec := res.(command.EmbeddingResult).Vector
	if len(vec) != 2 {
		t.Fatalf("vector = %v", vec)
	}

	e, _, _, _ = newTestExecutor(t, &fakeAI{embedVecs: [][]float32{}}, &fakeVectors{})
	if _, err := e.Execute(context.Background(), command.ComputeEmbedding{Text: "x"}); !command.IsPermanent(err) {
		t.Fatalf("empty embedding: err = %v, want permanent", err)
	}
}

func TestExecuteSearchSimilarMapsMetadata(t *testing.T) {
	e, _, _, _ := newTestExecutor(t, &fakeAI{}, &fakeVectors{matches: []pinecone.VectorMatch{
		{ID: "chunk-0", Score: 0.91, Metadata: map[string]any{"summary": "bayes theorem"}},
		{ID: "chunk-1", Score: 0.82, Metadata: map[string]any{"page": 4}},
	}})

	res, err := e.Execute(context.Background(), command.SearchSimilar{Vector: []float32{0.1}, TopK: 2})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	matches := res.(command.SearchResult).Matches
	if len(matches) != 2 {
		t.Fatalf("matches = %d", len(matches))
	}
	if matches[0].Summary != "bayes theorem" {
		t.Fatalf("summary = %q", matches[0].Summary)
	}
	if matches[1].Summary != "" {
		t.Fatalf("missing summary must stay empty, got %q", matches[1].Summary)
	}
}

func TestExecuteClassifiesUpstreamErrors(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		transient bool
	}{
		{"rate limited", &openai.HTTPError{StatusCode: http.StatusTooManyRequests, Body: "slow down"}, true},
		{"server error", &openai.HTTPError{StatusCode: http.StatusBadGateway, Body: "upstream"}, true},
		{"bad request", &openai.HTTPError{StatusCode: http.StatusBadRequest, Body: "prompt too long"}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"unclassified", errors.New("connection reset"), true},
	}
	for _, tc := range cases {
		e, _, _, _ := newTestExecutor(t, &fakeAI{generateErr: tc.err}, &fakeVectors{})
		_, err := e.Execute(context.Background(), command.GenerateText{System: "s", User: "u"})
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if command.IsTransient(err) != tc.transient {
			t.Fatalf("%s: err = %v, transient = %v, want %v", tc.name, err, command.IsTransient(err), tc.transient)
		}
	}
}

func TestExecuteAllStopsAtFirstFailure(t *testing.T) {
	e, courses, sections, _ := newTestExecutor(t,
		&fakeAI{generateErr: &openai.HTTPError{StatusCode: http.StatusBadRequest, Body: "no"}},
		&fakeVectors{},
	)

	course := &domain.Course{ID: uuid.New(), UserID: uuid.New(), Title: "t"}
	results, err := e.ExecuteAll(context.Background(), []command.Command{
		command.CreateCourseRecord{Course: course},
		command.GenerateText{System: "s", User: "u"},
		command.CreateSections{Sections: []*domain.CourseSection{{ID: uuid.New()}}},
	})
	if err == nil {
		t.Fatal("expected failure from second command")
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want the executed prefix only", len(results))
	}
	if len(courses.created) != 1 {
		t.Fatalf("courses created = %d", len(courses.created))
	}
	if len(sections.batches) != 0 {
		t.Fatal("commands after the failure must not run")
	}
}

func TestExecutePersistenceGuards(t *testing.T) {
	e, _, _, events := newTestExecutor(t, &fakeAI{}, &fakeVectors{})

	if _, err := e.Execute(context.Background(), command.CreateCourseRecord{Course: nil}); !command.IsPermanent(err) {
		t.Fatalf("nil course: err = %v, want permanent", err)
	}
	if _, err := e.Execute(context.Background(), command.CreateSections{Sections: nil}); !command.IsPermanent(err) {
		t.Fatalf("empty sections: err = %v, want permanent", err)
	}

	courseID := uuid.New()
	if _, err := e.Execute(context.Background(), command.RecordPipelineEvent{
		CourseID: courseID,
		Phase:    "stored",
		Kind:     "course.stored",
		Detail:   "parts=3 sections=6",
	}); err != nil {
		t.Fatalf("RecordPipelineEvent: %v", err)
	}
	if len(events.rows) != 1 || events.rows[0].CourseID != courseID {
		t.Fatalf("event rows = %+v", events.rows)
	}

	// Repo failures on persistence are transient: the batch is idempotent,
	// so a redelivered attempt can safely retry it.
	failing := &fakeCourseRepo{err: fmt.Errorf("connection refused")}
	log, _ := logger.New("dev")
	e2 := New(log, nil, &fakeAI{}, &fakeVectors{}, failing, &fakeSectionRepo{}, &fakeEventRepo{})
	course := &domain.Course{ID: uuid.New(), UserID: uuid.New(), Title: "t"}
	if _, err := e2.Execute(context.Background(), command.CreateCourseRecord{Course: course}); !command.IsTransient(err) {
		t.Fatalf("repo failure: err = %v, want transient", err)
	}
}
