package documents

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nclamvn/prismy-production-sub017/pkg/db/models"
	"github.com/nclamvn/prismy-production-sub017/pkg/enums"
)

func setupDocumentsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	documents := `
CREATE TABLE IF NOT EXISTS documents (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  file_name TEXT NOT NULL,
  file_size INTEGER NOT NULL,
  mime_type TEXT NOT NULL,
  storage_path TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'uploaded',
  source_language TEXT,
  target_language TEXT,
  extracted_text TEXT,
  detected_language TEXT,
  translated_text TEXT,
  output_file_path TEXT,
  error_message TEXT,
  created_at DATETIME,
  updated_at DATETIME,
  processed_at DATETIME
);`
	require.NoError(t, db.Exec(documents).Error)
	return db
}

func seedDocument(t *testing.T, db *gorm.DB, status enums.DocumentStatus) *models.Document {
	t.Helper()
	doc := &models.Document{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		FileName:    "report.txt",
		FileSize:    11,
		MimeType:    "text/plain",
		StoragePath: "documents/x/report.txt",
		Status:      status,
	}
	require.NoError(t, db.Create(doc).Error)
	return doc
}

func TestTransitionStatus_MovesForwardAndWritesFields(t *testing.T) {
	db := setupDocumentsTestDB(t)
	r := NewRepository(db)
	ctx := context.Background()

	doc := seedDocument(t, db, enums.DocumentStatusUploaded)

	err := r.TransitionStatus(ctx, doc.ID, enums.DocumentStatusUploaded, enums.DocumentStatusProcessing, nil)
	require.NoError(t, err)

	extracted := "hello world"
	err = r.TransitionStatus(ctx, doc.ID, enums.DocumentStatusProcessing, enums.DocumentStatusOCRProcessing, map[string]any{
		"extracted_text":    extracted,
		"detected_language": "en",
	})
	require.NoError(t, err)

	got, err := r.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.DocumentStatusOCRProcessing, got.Status)
	require.NotNil(t, got.ExtractedText)
	assert.Equal(t, extracted, *got.ExtractedText)
	require.NotNil(t, got.DetectedLanguage)
	assert.Equal(t, "en", *got.DetectedLanguage)
}

func TestTransitionStatus_LosesClaimRace(t *testing.T) {
	db := setupDocumentsTestDB(t)
	r := NewRepository(db)
	ctx := context.Background()

	doc := seedDocument(t, db, enums.DocumentStatusUploaded)

	require.NoError(t, r.TransitionStatus(ctx, doc.ID, enums.DocumentStatusUploaded, enums.DocumentStatusProcessing, nil))

	// second claim against the already-consumed status must fail
	err := r.TransitionStatus(ctx, doc.ID, enums.DocumentStatusUploaded, enums.DocumentStatusProcessing, nil)
	assert.ErrorIs(t, err, ErrStatusConflict)

	got, err := r.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.DocumentStatusProcessing, got.Status)
}

func TestMarkFailed_SkipsTerminalStatuses(t *testing.T) {
	db := setupDocumentsTestDB(t)
	r := NewRepository(db)
	ctx := context.Background()

	active := seedDocument(t, db, enums.DocumentStatusTranslationProcessing)
	done := seedDocument(t, db, enums.DocumentStatusCompleted)

	require.NoError(t, r.MarkFailed(ctx, active.ID, "translation failed: provider unavailable"))
	err := r.MarkFailed(ctx, done.ID, "should not apply")
	assert.ErrorIs(t, err, ErrStatusConflict)

	got, err := r.FindByID(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.DocumentStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "translation failed: provider unavailable", *got.ErrorMessage)

	untouched, err := r.FindByID(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.DocumentStatusCompleted, untouched.Status)
	assert.Nil(t, untouched.ErrorMessage)
}

func TestFindStuck_FiltersByStatusAndAge(t *testing.T) {
	db := setupDocumentsTestDB(t)
	r := NewRepository(db)
	ctx := context.Background()

	stale := seedDocument(t, db, enums.DocumentStatusOCRProcessing)
	fresh := seedDocument(t, db, enums.DocumentStatusOCRProcessing)
	uploaded := seedDocument(t, db, enums.DocumentStatusUploaded)

	old := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, db.Model(&models.Document{}).Where("id = ?", stale.ID).Update("updated_at", old).Error)

	docs, err := r.FindStuck(ctx, time.Now().UTC().Add(-30*time.Minute))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, stale.ID, docs[0].ID)

	_ = fresh
	_ = uploaded
}
