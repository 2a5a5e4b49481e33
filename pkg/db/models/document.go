package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nclamvn/prismy-production-sub017/pkg/enums"
)

// Document is the pipeline's unit of work. The processor is the sole
// mutator of status and content fields after creation; every status write
// is a compare-and-swap on the previous status.
type Document struct {
	ID               uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID           uuid.UUID            `gorm:"column:user_id;type:uuid;not null;index"`
	FileName         string               `gorm:"column:file_name;not null"`
	FileSize         int64                `gorm:"column:file_size;not null"`
	MimeType         string               `gorm:"column:mime_type;not null"`
	StoragePath      string               `gorm:"column:storage_path;not null"`
	Status           enums.DocumentStatus `gorm:"column:status;not null;default:'uploaded';index"`
	SourceLanguage   *string              `gorm:"column:source_language"`
	TargetLanguage   *string              `gorm:"column:target_language"`
	ExtractedText    *string              `gorm:"column:extracted_text"`
	DetectedLanguage *string              `gorm:"column:detected_language"`
	TranslatedText   *string              `gorm:"column:translated_text"`
	OutputFilePath   *string              `gorm:"column:output_file_path"`
	ErrorMessage     *string              `gorm:"column:error_message"`
	CreatedAt        time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time            `gorm:"column:updated_at;autoUpdateTime"`
	ProcessedAt      *time.Time           `gorm:"column:processed_at"`
}
