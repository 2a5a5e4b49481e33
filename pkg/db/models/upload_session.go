package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nclamvn/prismy-production-sub017/pkg/enums"
)

// UploadSession tracks a chunked upload until its parts are reassembled.
type UploadSession struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID         uuid.UUID          `gorm:"column:user_id;type:uuid;not null;index"`
	FileName       string             `gorm:"column:file_name;not null"`
	TotalSize      int64              `gorm:"column:total_size;not null"`
	TotalChunks    int                `gorm:"column:total_chunks;not null"`
	ChunksUploaded int                `gorm:"column:chunks_uploaded;not null;default:0"`
	Status         enums.UploadStatus `gorm:"column:status;not null;default:'pending'"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// UploadChunk records a single stored chunk of an upload session.
// The (session_id, chunk_index) pair is unique so re-uploading a chunk
// replaces it instead of double-counting.
type UploadChunk struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SessionID  uuid.UUID `gorm:"column:session_id;type:uuid;not null;uniqueIndex:idx_session_chunk"`
	ChunkIndex int       `gorm:"column:chunk_index;not null;uniqueIndex:idx_session_chunk"`
	SizeBytes  int64     `gorm:"column:size_bytes;not null"`
	StorageKey string    `gorm:"column:storage_key;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}
