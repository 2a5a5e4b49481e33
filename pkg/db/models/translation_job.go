package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nclamvn/prismy-production-sub017/pkg/enums"
)

// TranslationJob is the lightweight record the polling-status endpoint
// reads. Progress is never stored; it is derived from UpdatedAt on read.
type TranslationJob struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID         uuid.UUID       `gorm:"column:user_id;type:uuid;not null;index"`
	DocumentID     uuid.UUID       `gorm:"column:document_id;type:uuid;not null;index"`
	BatchID        *uuid.UUID      `gorm:"column:batch_id;type:uuid;index"`
	SourceLanguage string          `gorm:"column:source_language;not null"`
	TargetLanguage string          `gorm:"column:target_language;not null"`
	Status         enums.JobStatus `gorm:"column:status;not null;default:'pending';index"`
	ResultPath     *string         `gorm:"column:result_path"`
	ErrorMessage   *string         `gorm:"column:error_message"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// Batch groups translation jobs for aggregate polling. Statistics are
// always recomputed from the live constituent set, never materialized.
type Batch struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
