package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	CourseStatusReady = "ready"

	SectionStatusReady = "ready"
)

// Course is the user-visible row written once by the storage stage.
type Course struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Title         string    `gorm:"column:title;not null" json:"title"`
	OriginalQuery string    `gorm:"column:original_query;type:text;not null" json:"original_query"`
	TargetMinutes int       `gorm:"column:target_minutes;not null" json:"target_minutes"`
	Status        string    `gorm:"column:status;not null;default:'ready';index" json:"status"`
	CreatedAt     time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Course) TableName() string { return "course" }

// CourseSection holds both parts and sections: a row with a nil
// ParentSectionID is a part; every other row references a part in the same
// course. OrderIndex is unique within (course_id, parent_section_id). Part
// rows carry a NULL parent, which Postgres treats as distinct, so they need
// their own partial unique index.
type CourseSection struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID           uuid.UUID      `gorm:"type:uuid;not null;index;uniqueIndex:ux_course_section_order,priority:1;uniqueIndex:ux_course_part_order,priority:1,where:parent_section_id IS NULL" json:"course_id"`
	ParentSectionID    *uuid.UUID     `gorm:"type:uuid;index;uniqueIndex:ux_course_section_order,priority:2" json:"parent_section_id,omitempty"`
	OrderIndex         int            `gorm:"column:order_index;not null;uniqueIndex:ux_course_section_order,priority:3;uniqueIndex:ux_course_part_order,priority:2,where:parent_section_id IS NULL" json:"order_index"`
	Title              string         `gorm:"column:title;not null" json:"title"`
	LearningObjectives datatypes.JSON `gorm:"column:learning_objectives;type:jsonb" json:"learning_objectives,omitempty"`
	EstimatedMinutes   int            `gorm:"column:estimated_minutes;not null;default:0" json:"estimated_minutes"`
	SourceChunkIDs     datatypes.JSON `gorm:"column:source_chunk_ids;type:jsonb" json:"source_chunk_ids,omitempty"`
	Status             string         `gorm:"column:status;not null;default:'ready'" json:"status"`
	CreatedAt          time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (CourseSection) TableName() string { return "course_section" }

// PipelineEventLog is the append-only trace written by the
// RecordPipelineEvent command.
type PipelineEventLog struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CourseID  uuid.UUID `gorm:"type:uuid;not null;index" json:"course_id"`
	Phase     string    `gorm:"column:phase;not null" json:"phase"`
	Kind      string    `gorm:"column:kind;not null" json:"kind"`
	Detail    string    `gorm:"column:detail;type:text" json:"detail"`
	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (PipelineEventLog) TableName() string { return "pipeline_event_log" }
