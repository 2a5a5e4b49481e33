package jobs

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nclamvn/prismy-production-sub017/pkg/db/models"
	"github.com/nclamvn/prismy-production-sub017/pkg/enums"
)

func setupJobsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	batches := `
CREATE TABLE IF NOT EXISTS batches (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  created_at DATETIME
);`
	jobs := `
CREATE TABLE IF NOT EXISTS translation_jobs (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  document_id TEXT NOT NULL,
  batch_id TEXT,
  source_language TEXT NOT NULL,
  target_language TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  result_path TEXT,
  error_message TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(batches).Error)
	require.NoError(t, db.Exec(jobs).Error)
	return db
}

func seedJob(t *testing.T, db *gorm.DB, status enums.JobStatus) *models.TranslationJob {
	t.Helper()
	job := &models.TranslationJob{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		DocumentID:     uuid.New(),
		SourceLanguage: "en",
		TargetLanguage: "es",
		Status:         status,
	}
	require.NoError(t, db.Create(job).Error)
	return job
}

func TestMarkJobProcessingOnlyClaimsPending(t *testing.T) {
	t.Parallel()

	db := setupJobsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	job := seedJob(t, db, enums.JobStatusPending)
	require.NoError(t, repo.MarkJobProcessing(ctx, job.ID))

	got, err := repo.FindJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.JobStatusProcessing, got.Status)

	// A redelivered message finds the job already processing and the
	// claim becomes a no-op rather than an error.
	require.NoError(t, repo.MarkJobProcessing(ctx, job.ID))
	got, err = repo.FindJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.JobStatusProcessing, got.Status)
}

func TestMarkJobCompletedRecordsResultPath(t *testing.T) {
	t.Parallel()

	db := setupJobsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	job := seedJob(t, db, enums.JobStatusProcessing)
	resultPath := "output/doc/report.txt"
	require.NoError(t, repo.MarkJobCompleted(ctx, job.ID, &resultPath))

	got, err := repo.FindJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.JobStatusCompleted, got.Status)
	require.NotNil(t, got.ResultPath)
	assert.Equal(t, resultPath, *got.ResultPath)
}

func TestMarkJobFailedLeavesTerminalJobsAlone(t *testing.T) {
	t.Parallel()

	db := setupJobsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	resultPath := "output/doc/report.txt"
	completed := seedJob(t, db, enums.JobStatusCompleted)
	completed.ResultPath = &resultPath
	require.NoError(t, db.Save(completed).Error)

	// A stale failure write after completion must not rewrite the outcome.
	require.NoError(t, repo.MarkJobFailed(ctx, completed.ID, "document already claimed by another run"))

	got, err := repo.FindJobByID(ctx, completed.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.JobStatusCompleted, got.Status)
	assert.Nil(t, got.ErrorMessage)
	require.NotNil(t, got.ResultPath)
	assert.Equal(t, resultPath, *got.ResultPath)

	processing := seedJob(t, db, enums.JobStatusProcessing)
	require.NoError(t, repo.MarkJobFailed(ctx, processing.ID, "extraction failed"))
	got, err = repo.FindJobByID(ctx, processing.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.JobStatusFailed, got.Status)
}

func TestFailJobsForDocumentSkipsTerminalJobs(t *testing.T) {
	t.Parallel()

	db := setupJobsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	documentID := uuid.New()
	pending := seedJob(t, db, enums.JobStatusPending)
	pending.DocumentID = documentID
	require.NoError(t, db.Save(pending).Error)

	completed := seedJob(t, db, enums.JobStatusCompleted)
	completed.DocumentID = documentID
	require.NoError(t, db.Save(completed).Error)

	require.NoError(t, repo.FailJobsForDocument(ctx, documentID, "Timeout: no pipeline transition within 15m0s"))

	got, err := repo.FindJobByID(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.JobStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "Timeout: no pipeline transition within 15m0s", *got.ErrorMessage)

	got, err = repo.FindJobByID(ctx, completed.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.JobStatusCompleted, got.Status)
	assert.Nil(t, got.ErrorMessage)
}

func TestListJobsByBatchOrdersByCreation(t *testing.T) {
	t.Parallel()

	db := setupJobsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	batch := &models.Batch{ID: uuid.New(), UserID: uuid.New()}
	require.NoError(t, db.Create(batch).Error)

	first := seedJob(t, db, enums.JobStatusPending)
	first.BatchID = &batch.ID
	require.NoError(t, db.Save(first).Error)

	second := seedJob(t, db, enums.JobStatusPending)
	second.BatchID = &batch.ID
	require.NoError(t, db.Save(second).Error)

	unrelated := seedJob(t, db, enums.JobStatusPending)
	_ = unrelated

	listed, err := repo.ListJobsByBatch(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, first.ID, listed[0].ID)
	assert.Equal(t, second.ID, listed[1].ID)
}
