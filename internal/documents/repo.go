package documents

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nclamvn/prismy-production-sub017/internal/repo"
	"github.com/nclamvn/prismy-production-sub017/pkg/db/models"
	"github.com/nclamvn/prismy-production-sub017/pkg/enums"
)

// ErrStatusConflict is returned when a conditional status update matched no
// row: either the document is gone or another writer moved it first.
var ErrStatusConflict = errors.New("document status changed concurrently")

// Repository exposes document persistence operations. All status writes go
// through TransitionStatus so the expected-status predicate acts as the
// concurrency token.
type Repository struct {
	repo.Base
}

// NewRepository constructs a document repository bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// Create persists a document record.
func (r *Repository) Create(ctx context.Context, doc *models.Document) (*models.Document, error) {
	if err := r.DB(ctx).Create(doc).Error; err != nil {
		return nil, err
	}
	return doc, nil
}

// FindByID retrieves a document by ID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	var doc models.Document
	if err := r.DB(ctx).First(&doc, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// Delete removes a document record.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.DB(ctx).Where("id = ?", id).Delete(&models.Document{}).Error
}

// TransitionStatus moves a document from one status to another, optionally
// writing extra fields in the same statement. The update is conditional on
// the current status; zero rows affected yields ErrStatusConflict.
func (r *Repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.DocumentStatus, fields map[string]any) error {
	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range fields {
		updates[k] = v
	}

	tx := r.DB(ctx).
		Model(&models.Document{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

// MarkFailed forces a document into the failed status from any non-terminal
// status, persisting the failure message verbatim.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	tx := r.DB(ctx).
		Model(&models.Document{}).
		Where("id = ? AND status NOT IN ?", id, []enums.DocumentStatus{
			enums.DocumentStatusCompleted,
			enums.DocumentStatusFailed,
		}).
		Updates(map[string]any{
			"status":        enums.DocumentStatusFailed,
			"error_message": message,
			"updated_at":    time.Now().UTC(),
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

// SetLanguages records the requested language pair on a document before the
// pipeline is dispatched.
func (r *Repository) SetLanguages(ctx context.Context, id uuid.UUID, source, target string) error {
	return r.DB(ctx).
		Model(&models.Document{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"source_language": source,
			"target_language": target,
			"updated_at":      time.Now().UTC(),
		}).Error
}

// FindStuck lists documents sitting in a non-terminal processing status whose
// last transition predates the cutoff. Used by the watchdog.
func (r *Repository) FindStuck(ctx context.Context, cutoff time.Time) ([]models.Document, error) {
	var docs []models.Document
	err := r.DB(ctx).
		Where("status IN ?", []enums.DocumentStatus{
			enums.DocumentStatusProcessing,
			enums.DocumentStatusOCRProcessing,
			enums.DocumentStatusTranslationProcessing,
			enums.DocumentStatusRebuilding,
		}).
		Where("updated_at < ?", cutoff).
		Find(&docs).Error
	if err != nil {
		return nil, err
	}
	return docs, nil
}
