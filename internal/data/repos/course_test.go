package repos

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/coursepilot/coursepilot-backend/internal/data/repos/testutil"
	"github.com/coursepilot/coursepilot-backend/internal/domain"
)

func TestCourseRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewCourseRepo(db, testutil.Logger(t))

	userID := uuid.New()
	c := &domain.Course{
		ID:            uuid.New(),
		UserID:        userID,
		Title:         "Machine Learning Basics",
		OriginalQuery: "intro to machine learning",
		TargetMinutes: 120,
		Status:        domain.CourseStatusReady,
	}
	if _, err := repo.Create(ctx, tx, []*domain.Course{c}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if rows, err := repo.GetByIDs(ctx, tx, []uuid.UUID{c.ID}); err != nil || len(rows) != 1 {
		t.Fatalf("GetByIDs: err=%v len=%d", err, len(rows))
	}
	if rows, err := repo.GetByUserIDs(ctx, tx, []uuid.UUID{userID}); err != nil || len(rows) != 1 {
		t.Fatalf("GetByUserIDs: err=%v len=%d", err, len(rows))
	}

	// Redelivered insert of the same id is a no-op, not an error.
	dup := *c
	dup.Title = "changed title must not win"
	if _, err := repo.Create(ctx, tx, []*domain.Course{&dup}); err != nil {
		t.Fatalf("duplicate Create: %v", err)
	}
	rows, err := repo.GetByIDs(ctx, tx, []uuid.UUID{c.ID})
	if err != nil || len(rows) != 1 {
		t.Fatalf("after duplicate Create GetByIDs: err=%v len=%d", err, len(rows))
	}
	if rows[0].Title != "Machine Learning Basics" {
		t.Fatalf("duplicate insert overwrote row: title=%q", rows[0].Title)
	}

	if rows, err := repo.GetByIDs(ctx, tx, nil); err != nil || len(rows) != 0 {
		t.Fatalf("GetByIDs empty: err=%v len=%d", err, len(rows))
	}
}
