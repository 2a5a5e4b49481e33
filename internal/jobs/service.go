package jobs

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nclamvn/prismy-production-sub017/internal/pipeline"
	"github.com/nclamvn/prismy-production-sub017/pkg/db/models"
	"github.com/nclamvn/prismy-production-sub017/pkg/enums"
	pkgerrors "github.com/nclamvn/prismy-production-sub017/pkg/errors"
	"github.com/nclamvn/prismy-production-sub017/pkg/logger"
)

// progressCeiling keeps derived progress below 100 while a job is still
// processing, so clients never see completion before the terminal status
// write lands.
const progressCeiling = 95

type jobsRepository interface {
	CreateJob(ctx context.Context, job *models.TranslationJob) (*models.TranslationJob, error)
	FindJobByID(ctx context.Context, id uuid.UUID) (*models.TranslationJob, error)
	MarkJobFailed(ctx context.Context, id uuid.UUID, message string) error
	ListJobsByBatch(ctx context.Context, batchID uuid.UUID) ([]models.TranslationJob, error)
	CreateBatch(ctx context.Context, batch *models.Batch) (*models.Batch, error)
	FindBatchByID(ctx context.Context, id uuid.UUID) (*models.Batch, error)
}

type documentsRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
	SetLanguages(ctx context.Context, id uuid.UUID, source, target string) error
}

type dispatcher interface {
	Dispatch(ctx context.Context, msg pipeline.DispatchMessage) error
}

// Service exposes translation-job semantics: starting a job and the
// read-only status/batch/admin reporting paths.
type Service interface {
	Start(ctx context.Context, userID uuid.UUID, input StartInput) (*StartOutput, error)
	Status(ctx context.Context, userID, jobID uuid.UUID) (*StatusOutput, error)
	CreateBatch(ctx context.Context, userID uuid.UUID) (*BatchCreatedOutput, error)
	Batch(ctx context.Context, userID, batchID uuid.UUID) (*BatchOutput, error)
	AdminJob(ctx context.Context, jobID uuid.UUID) (*AdminJobOutput, error)
}

type service struct {
	jobs            jobsRepository
	documents       documentsRepository
	dispatch        dispatcher
	logg            *logger.Logger
	assumedDuration time.Duration
	now             func() time.Time
}

// NewService constructs a jobs service.
func NewService(jobs jobsRepository, documents documentsRepository, dispatch dispatcher, logg *logger.Logger, assumedDuration time.Duration) (Service, error) {
	if jobs == nil {
		return nil, fmt.Errorf("jobs repository required")
	}
	if documents == nil {
		return nil, fmt.Errorf("documents repository required")
	}
	if dispatch == nil {
		return nil, fmt.Errorf("dispatcher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if assumedDuration <= 0 {
		return nil, fmt.Errorf("assumed duration must be positive")
	}
	return &service{
		jobs:            jobs,
		documents:       documents,
		dispatch:        dispatch,
		logg:            logg,
		assumedDuration: assumedDuration,
		now:             time.Now,
	}, nil
}

// StartInput models the payload required to start a translation job.
type StartInput struct {
	DocumentID     uuid.UUID
	SourceLanguage string
	TargetLanguage string
	BatchID        *uuid.UUID
}

// StartOutput is returned to the client after the job is queued.
type StartOutput struct {
	TranslationID uuid.UUID       `json:"translation_id"`
	Status        enums.JobStatus `json:"status"`
}

// JobView is the read-model shared by the status, batch and admin paths.
type JobView struct {
	TranslationID  uuid.UUID       `json:"translation_id"`
	DocumentID     uuid.UUID       `json:"document_id"`
	SourceLanguage string          `json:"source_language"`
	TargetLanguage string          `json:"target_language"`
	Status         enums.JobStatus `json:"status"`
	Progress       int             `json:"progress"`
	ResultPath     *string         `json:"result_path,omitempty"`
	ErrorMessage   *string         `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// StatusOutput answers the polling endpoint.
type StatusOutput struct {
	JobView
	ETASeconds *int64 `json:"eta_seconds,omitempty"`
}

// BatchCreatedOutput identifies a freshly opened batch.
type BatchCreatedOutput struct {
	BatchID uuid.UUID `json:"batch_id"`
}

// BatchStats aggregates constituent job statuses. Always computed fresh on
// read, never materialized.
type BatchStats struct {
	Total        int     `json:"total"`
	Pending      int     `json:"pending"`
	Processing   int     `json:"processing"`
	Completed    int     `json:"completed"`
	Failed       int     `json:"failed"`
	MeanProgress float64 `json:"mean_progress"`
}

// BatchOutput is the batch polling response.
type BatchOutput struct {
	BatchID   uuid.UUID  `json:"batch_id"`
	CreatedAt time.Time  `json:"created_at"`
	Jobs      []JobView  `json:"jobs"`
	Stats     BatchStats `json:"stats"`
}

// AdminJobOutput is the operator view of one job.
type AdminJobOutput struct {
	JobView
	Duration            string     `json:"duration"`
	EstimatedCompletion *time.Time `json:"estimated_completion,omitempty"`
}

func (s *service) Start(ctx context.Context, userID uuid.UUID, input StartInput) (*StartOutput, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user identity missing")
	}
	if input.DocumentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "document_id is required")
	}

	target, err := pipeline.NormalizeLanguage(input.TargetLanguage)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}
	source := "auto"
	if input.SourceLanguage != "" {
		source, err = pipeline.NormalizeLanguage(input.SourceLanguage)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
		}
	}

	doc, err := s.documents.FindByID(ctx, input.DocumentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load document")
	}
	if doc.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "document belongs to another user")
	}
	if doc.Status != enums.DocumentStatusUploaded {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("document is %s, expected %s", doc.Status, enums.DocumentStatusUploaded))
	}

	if input.BatchID != nil {
		batch, err := s.jobs.FindBatchByID(ctx, *input.BatchID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "batch not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load batch")
		}
		if batch.UserID != userID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "batch belongs to another user")
		}
	}

	if err := s.documents.SetLanguages(ctx, doc.ID, source, target); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record language pair")
	}

	job := &models.TranslationJob{
		ID:             uuid.New(),
		UserID:         userID,
		DocumentID:     doc.ID,
		BatchID:        input.BatchID,
		SourceLanguage: source,
		TargetLanguage: target,
		Status:         enums.JobStatusPending,
	}
	if _, err := s.jobs.CreateJob(ctx, job); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist translation job")
	}

	if err := s.dispatch.Dispatch(ctx, pipeline.DispatchMessage{DocumentID: doc.ID, JobID: job.ID}); err != nil {
		if failErr := s.jobs.MarkJobFailed(ctx, job.ID, fmt.Sprintf("dispatch failed: %v", err)); failErr != nil {
			s.logg.Error(ctx, "mark job failed after dispatch error", failErr)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "dispatch pipeline run")
	}

	return &StartOutput{TranslationID: job.ID, Status: job.Status}, nil
}

func (s *service) Status(ctx context.Context, userID, jobID uuid.UUID) (*StatusOutput, error) {
	job, err := s.loadOwnedJob(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	view := s.jobView(job, now)
	return &StatusOutput{
		JobView:    view,
		ETASeconds: etaSeconds(job.Status, view.Progress, now.Sub(job.UpdatedAt)),
	}, nil
}

func (s *service) CreateBatch(ctx context.Context, userID uuid.UUID) (*BatchCreatedOutput, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user identity missing")
	}
	batch := &models.Batch{ID: uuid.New(), UserID: userID}
	if _, err := s.jobs.CreateBatch(ctx, batch); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist batch")
	}
	return &BatchCreatedOutput{BatchID: batch.ID}, nil
}

func (s *service) Batch(ctx context.Context, userID, batchID uuid.UUID) (*BatchOutput, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user identity missing")
	}
	if batchID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "batch id is required")
	}

	batch, err := s.jobs.FindBatchByID(ctx, batchID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "batch not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load batch")
	}
	if batch.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "batch belongs to another user")
	}

	jobRows, err := s.jobs.ListJobsByBatch(ctx, batch.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list batch jobs")
	}

	now := s.now()
	views := make([]JobView, 0, len(jobRows))
	stats := BatchStats{Total: len(jobRows)}
	var progressSum int
	for i := range jobRows {
		view := s.jobView(&jobRows[i], now)
		views = append(views, view)
		progressSum += view.Progress
		switch view.Status {
		case enums.JobStatusPending:
			stats.Pending++
		case enums.JobStatusProcessing:
			stats.Processing++
		case enums.JobStatusCompleted:
			stats.Completed++
		case enums.JobStatusFailed:
			stats.Failed++
		}
	}
	if stats.Total > 0 {
		stats.MeanProgress = float64(progressSum) / float64(stats.Total)
	}

	return &BatchOutput{
		BatchID:   batch.ID,
		CreatedAt: batch.CreatedAt,
		Jobs:      views,
		Stats:     stats,
	}, nil
}

func (s *service) AdminJob(ctx context.Context, jobID uuid.UUID) (*AdminJobOutput, error) {
	if jobID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "job id is required")
	}
	job, err := s.jobs.FindJobByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "translation job not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load translation job")
	}

	now := s.now()
	view := s.jobView(job, now)

	elapsed := now.Sub(job.CreatedAt)
	if job.Status.IsTerminal() {
		elapsed = job.UpdatedAt.Sub(job.CreatedAt)
	}

	var estimated *time.Time
	if eta := etaSeconds(job.Status, view.Progress, now.Sub(job.UpdatedAt)); eta != nil {
		at := now.Add(time.Duration(*eta) * time.Second)
		estimated = &at
	}

	return &AdminJobOutput{
		JobView:             view,
		Duration:            formatDuration(elapsed),
		EstimatedCompletion: estimated,
	}, nil
}

func (s *service) loadOwnedJob(ctx context.Context, userID, jobID uuid.UUID) (*models.TranslationJob, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user identity missing")
	}
	if jobID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "translation id is required")
	}
	job, err := s.jobs.FindJobByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "translation job not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load translation job")
	}
	if job.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "translation job belongs to another user")
	}
	return job, nil
}

func (s *service) jobView(job *models.TranslationJob, now time.Time) JobView {
	return JobView{
		TranslationID:  job.ID,
		DocumentID:     job.DocumentID,
		SourceLanguage: job.SourceLanguage,
		TargetLanguage: job.TargetLanguage,
		Status:         job.Status,
		Progress:       computeProgress(job.Status, now.Sub(job.UpdatedAt), s.assumedDuration),
		ResultPath:     job.ResultPath,
		ErrorMessage:   job.ErrorMessage,
		CreatedAt:      job.CreatedAt,
		UpdatedAt:      job.UpdatedAt,
	}
}

// computeProgress derives progress from elapsed time since the last status
// transition. Capped below 100 while processing; exact at the terminals.
func computeProgress(status enums.JobStatus, elapsed time.Duration, assumed time.Duration) int {
	switch status {
	case enums.JobStatusCompleted:
		return 100
	case enums.JobStatusProcessing:
		if elapsed < 0 {
			elapsed = 0
		}
		naive := int(math.Round(100 * float64(elapsed) / float64(assumed)))
		if naive > progressCeiling {
			return progressCeiling
		}
		return naive
	default:
		return 0
	}
}

// etaSeconds linearly extrapolates remaining seconds from current progress.
// Offered only while processing with observable progress.
func etaSeconds(status enums.JobStatus, progress int, elapsed time.Duration) *int64 {
	if status != enums.JobStatusProcessing || progress <= 0 {
		return nil
	}
	if elapsed < 0 {
		elapsed = 0
	}
	estimatedTotal := float64(elapsed) / (float64(progress) / 100)
	remaining := int64(math.Round((estimatedTotal - float64(elapsed)) / float64(time.Second)))
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

// formatDuration renders an operator-friendly duration: 42s, 3m10s, 2h5m.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) - minutes*60
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	default:
		hours := int(d.Hours())
		minutes := int(d.Minutes()) - hours*60
		return fmt.Sprintf("%dh%dm", hours, minutes)
	}
}
