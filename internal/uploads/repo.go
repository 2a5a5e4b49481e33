package uploads

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nclamvn/prismy-production-sub017/internal/repo"
	"github.com/nclamvn/prismy-production-sub017/pkg/db/models"
	"github.com/nclamvn/prismy-production-sub017/pkg/enums"
)

// ErrSessionConflict is returned when a conditional session update matched no
// row, which means another caller finalized the session first.
var ErrSessionConflict = errors.New("upload session already finalized")

// Repository exposes upload-session persistence operations.
type Repository struct {
	repo.Base
}

// NewRepository constructs an uploads repository bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// CreateSession persists a new upload session.
func (r *Repository) CreateSession(ctx context.Context, session *models.UploadSession) (*models.UploadSession, error) {
	if err := r.DB(ctx).Create(session).Error; err != nil {
		return nil, err
	}
	return session, nil
}

// FindSessionByID retrieves an upload session by ID.
func (r *Repository) FindSessionByID(ctx context.Context, id uuid.UUID) (*models.UploadSession, error) {
	var session models.UploadSession
	if err := r.DB(ctx).First(&session, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// SaveChunk upserts a chunk row keyed on (session_id, chunk_index) so a
// re-uploaded chunk replaces the previous one instead of double-counting.
func (r *Repository) SaveChunk(ctx context.Context, chunk *models.UploadChunk) error {
	return r.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "chunk_index"}},
		DoUpdates: clause.AssignmentColumns([]string{"size_bytes", "storage_key"}),
	}).Create(chunk).Error
}

// RefreshChunkCount recomputes chunks_uploaded from the stored chunk rows and
// returns the new count.
func (r *Repository) RefreshChunkCount(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var count int64
	if err := r.DB(ctx).Model(&models.UploadChunk{}).Where("session_id = ?", sessionID).Count(&count).Error; err != nil {
		return 0, err
	}
	err := r.DB(ctx).Model(&models.UploadSession{}).
		Where("id = ?", sessionID).
		Updates(map[string]any{
			"chunks_uploaded": count,
			"updated_at":      time.Now().UTC(),
		}).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// CompleteSession marks a pending session completed. The update is conditional
// on the pending status; zero rows affected yields ErrSessionConflict.
func (r *Repository) CompleteSession(ctx context.Context, id uuid.UUID) error {
	return r.finalizeSession(ctx, id, enums.UploadStatusCompleted)
}

// FailSession marks a pending session failed.
func (r *Repository) FailSession(ctx context.Context, id uuid.UUID) error {
	return r.finalizeSession(ctx, id, enums.UploadStatusFailed)
}

func (r *Repository) finalizeSession(ctx context.Context, id uuid.UUID, status enums.UploadStatus) error {
	tx := r.DB(ctx).Model(&models.UploadSession{}).
		Where("id = ? AND status = ?", id, enums.UploadStatusPending).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now().UTC(),
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrSessionConflict
	}
	return nil
}

// ListChunks returns the stored chunk rows for a session ordered by index.
func (r *Repository) ListChunks(ctx context.Context, sessionID uuid.UUID) ([]models.UploadChunk, error) {
	var chunks []models.UploadChunk
	err := r.DB(ctx).
		Where("session_id = ?", sessionID).
		Order("chunk_index ASC").
		Find(&chunks).Error
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// DeleteChunks removes the chunk rows for a session.
func (r *Repository) DeleteChunks(ctx context.Context, sessionID uuid.UUID) error {
	return r.DB(ctx).Where("session_id = ?", sessionID).Delete(&models.UploadChunk{}).Error
}

// FindStaleSessions lists pending sessions whose last activity predates the
// cutoff. Used by the cleanup job.
func (r *Repository) FindStaleSessions(ctx context.Context, cutoff time.Time) ([]models.UploadSession, error) {
	var sessions []models.UploadSession
	err := r.DB(ctx).
		Where("status = ?", enums.UploadStatusPending).
		Where("updated_at < ?", cutoff).
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}
