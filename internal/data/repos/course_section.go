package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/coursepilot/coursepilot-backend/internal/domain"
	"github.com/coursepilot/coursepilot-backend/internal/platform/logger"
)

type CourseSectionRepo interface {
	// CreateBatch inserts all parts and sections of one course in a single
	// transaction. Section ids are derived deterministically upstream, so a
	// redelivered batch hits the primary-key conflict and does nothing.
	CreateBatch(ctx context.Context, tx *gorm.DB, sections []*domain.CourseSection) error
	GetByCourseIDs(ctx context.Context, tx *gorm.DB, courseIDs []uuid.UUID) ([]*domain.CourseSection, error)
}

type courseSectionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCourseSectionRepo(db *gorm.DB, baseLog *logger.Logger) CourseSectionRepo {
	return &courseSectionRepo{db: db, log: baseLog.With("repo", "CourseSectionRepo")}
}

func (r *courseSectionRepo) CreateBatch(ctx context.Context, tx *gorm.DB, sections []*domain.CourseSection) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(sections) == 0 {
		return nil
	}

	return transaction.WithContext(ctx).Transaction(func(inner *gorm.DB) error {
		return inner.
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&sections).Error
	})
}

func (r *courseSectionRepo) GetByCourseIDs(ctx context.Context, tx *gorm.DB, courseIDs []uuid.UUID) ([]*domain.CourseSection, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*domain.CourseSection
	if len(courseIDs) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("course_id IN ?", courseIDs).
		Order("parent_section_id NULLS FIRST, order_index ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
