package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/coursepilot/coursepilot-backend/internal/pipeline/record"
	"github.com/coursepilot/coursepilot-backend/internal/platform/logger"
	"github.com/coursepilot/coursepilot-backend/internal/services"
)

type fakeIntake struct {
	courseID uuid.UUID
	status   services.GenerationStatus
	err      error

	createdQuery   string
	createdMinutes int
}

func (f *fakeIntake) Create(_ context.Context, _ uuid.UUID, query string, targetMinutes int) (uuid.UUID, error) {
	if f.err != nil {
		return uuid.Nil, f.err
	}
	f.createdQuery = query
	f.createdMinutes = targetMinutes
	return f.courseID, nil
}

func (f *fakeIntake) GetStatus(_ context.Context, courseID uuid.UUID) (services.GenerationStatus, error) {
	if f.err != nil {
		return services.GenerationStatus{}, f.err
	}
	return f.status, nil
}

func newTestRouter(t *testing.T, intake services.IntakeService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	h := NewCourseGenHandler(log, intake)
	r := gin.New()
	r.POST("/api/v1/courses", h.Create)
	r.GET("/api/v1/courses/:id/status", h.Status)
	return r
}

func TestCreateCourseAccepted(t *testing.T) {
	courseID := uuid.New()
	intake := &fakeIntake{courseID: courseID}
	r := newTestRouter(t, intake)

	body := `{"user_id":"` + uuid.New().String() + `","query":"intro to statistics","target_minutes":90}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/courses", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		CourseID uuid.UUID `json:"course_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.CourseID != courseID {
		t.Fatalf("course_id = %s, want %s", resp.CourseID, courseID)
	}
	if intake.createdQuery != "intro to statistics" || intake.createdMinutes != 90 {
		t.Fatalf("intake received query %q minutes %d", intake.createdQuery, intake.createdMinutes)
	}
}

func TestCreateCourseRejectsBadBody(t *testing.T) {
	r := newTestRouter(t, &fakeIntake{courseID: uuid.New()})

	for _, body := range []string{
		``,
		`{`,
		`{"query":"intro to statistics","target_minutes":90}`,
		`{"user_id":"` + uuid.New().String() + `","target_minutes":90}`,
		`{"user_id":"` + uuid.New().String() + `","query":"intro to statistics"}`,
	} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/courses", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d, want 400", body, w.Code)
		}
	}
}

func TestStatusReturnsGenerationState(t *testing.T) {
	courseID := uuid.New()
	intake := &fakeIntake{status: services.GenerationStatus{
		CourseID: courseID,
		Phase:    record.PhaseFailed,
		Error:    "parts plan minutes never converged",
	}}
	r := newTestRouter(t, intake)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/courses/"+courseID.String()+"/status", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got services.GenerationStatus
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Phase != record.PhaseFailed || got.Error == "" {
		t.Fatalf("status = %+v", got)
	}
}

func TestStatusBadAndMissingIDs(t *testing.T) {
	intake := &fakeIntake{err: services.ErrCourseNotFound}
	r := newTestRouter(t, intake)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/courses/not-a-uuid/status", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad id: status = %d, want 400", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/courses/"+uuid.New().String()+"/status", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing course: status = %d, want 404", w.Code)
	}
	if !strings.Contains(w.Body.String(), "course_not_found") {
		t.Fatalf("body = %s", w.Body.String())
	}
}
