package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coursepilot/coursepilot-backend/internal/domain"
	"github.com/coursepilot/coursepilot-backend/internal/platform/logger"
)

type PipelineEventRepo interface {
	Append(ctx context.Context, tx *gorm.DB, ev *domain.PipelineEventLog) error
	GetByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) ([]*domain.PipelineEventLog, error)
}

type pipelineEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPipelineEventRepo(db *gorm.DB, baseLog *logger.Logger) PipelineEventRepo {
	return &pipelineEventRepo{db: db, log: baseLog.With("repo", "PipelineEventRepo")}
}

func (r *pipelineEventRepo) Append(ctx context.Context, tx *gorm.DB, ev *domain.PipelineEventLog) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(ev).Error
}

func (r *pipelineEventRepo) GetByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) ([]*domain.PipelineEventLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*domain.PipelineEventLog
	if err := transaction.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
