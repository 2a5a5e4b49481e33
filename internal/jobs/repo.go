package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nclamvn/prismy-production-sub017/internal/repo"
	"github.com/nclamvn/prismy-production-sub017/pkg/db/models"
	"github.com/nclamvn/prismy-production-sub017/pkg/enums"
)

// Repository exposes translation-job and batch persistence operations.
type Repository struct {
	repo.Base
}

// NewRepository constructs a jobs repository bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// CreateJob persists a translation job.
func (r *Repository) CreateJob(ctx context.Context, job *models.TranslationJob) (*models.TranslationJob, error) {
	if err := r.DB(ctx).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

// FindJobByID retrieves a translation job by ID.
func (r *Repository) FindJobByID(ctx context.Context, id uuid.UUID) (*models.TranslationJob, error) {
	var job models.TranslationJob
	if err := r.DB(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// MarkJobProcessing moves a pending job to processing. Re-marking an already
// processing job is a no-op so dispatch redeliveries stay idempotent.
func (r *Repository) MarkJobProcessing(ctx context.Context, id uuid.UUID) error {
	return r.DB(ctx).Model(&models.TranslationJob{}).
		Where("id = ? AND status = ?", id, enums.JobStatusPending).
		Updates(map[string]any{
			"status":     enums.JobStatusProcessing,
			"updated_at": time.Now().UTC(),
		}).Error
}

// MarkJobCompleted finalizes a job with its result pointer.
func (r *Repository) MarkJobCompleted(ctx context.Context, id uuid.UUID, resultPath *string) error {
	return r.DB(ctx).Model(&models.TranslationJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      enums.JobStatusCompleted,
			"result_path": resultPath,
			"updated_at":  time.Now().UTC(),
		}).Error
}

// MarkJobFailed finalizes a non-terminal job with the failure message.
// Terminal jobs are left untouched so a stale failure can never overwrite a
// recorded outcome.
func (r *Repository) MarkJobFailed(ctx context.Context, id uuid.UUID, message string) error {
	return r.DB(ctx).Model(&models.TranslationJob{}).
		Where("id = ? AND status IN ?", id, []enums.JobStatus{
			enums.JobStatusPending,
			enums.JobStatusProcessing,
		}).
		Updates(map[string]any{
			"status":        enums.JobStatusFailed,
			"error_message": message,
			"updated_at":    time.Now().UTC(),
		}).Error
}

// FailJobsForDocument fails every non-terminal job bound to a document. Used
// by the watchdog when it times a document out.
func (r *Repository) FailJobsForDocument(ctx context.Context, documentID uuid.UUID, message string) error {
	return r.DB(ctx).Model(&models.TranslationJob{}).
		Where("document_id = ? AND status IN ?", documentID, []enums.JobStatus{
			enums.JobStatusPending,
			enums.JobStatusProcessing,
		}).
		Updates(map[string]any{
			"status":        enums.JobStatusFailed,
			"error_message": message,
			"updated_at":    time.Now().UTC(),
		}).Error
}

// ListJobsByBatch returns the constituent jobs of a batch ordered by creation.
func (r *Repository) ListJobsByBatch(ctx context.Context, batchID uuid.UUID) ([]models.TranslationJob, error) {
	var jobList []models.TranslationJob
	err := r.DB(ctx).
		Where("batch_id = ?", batchID).
		Order("created_at ASC").
		Find(&jobList).Error
	if err != nil {
		return nil, err
	}
	return jobList, nil
}

// CreateBatch persists a batch.
func (r *Repository) CreateBatch(ctx context.Context, batch *models.Batch) (*models.Batch, error) {
	if err := r.DB(ctx).Create(batch).Error; err != nil {
		return nil, err
	}
	return batch, nil
}

// FindBatchByID retrieves a batch by ID.
func (r *Repository) FindBatchByID(ctx context.Context, id uuid.UUID) (*models.Batch, error) {
	var batch models.Batch
	if err := r.DB(ctx).First(&batch, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}
