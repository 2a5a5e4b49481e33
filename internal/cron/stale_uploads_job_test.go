package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nclamvn/prismy-production-sub017/internal/uploads"
	"github.com/nclamvn/prismy-production-sub017/pkg/db/models"
)

type fakeStaleSessionStore struct {
	rows          []models.UploadSession
	chunks        map[uuid.UUID][]models.UploadChunk
	failErr       map[uuid.UUID]error
	lastCutoff    time.Time
	failedIDs     []uuid.UUID
	deletedChunks []uuid.UUID
}

func (f *fakeStaleSessionStore) FindStaleSessions(_ context.Context, cutoff time.Time) ([]models.UploadSession, error) {
	f.lastCutoff = cutoff
	return f.rows, nil
}

func (f *fakeStaleSessionStore) FailSession(_ context.Context, id uuid.UUID) error {
	if err, ok := f.failErr[id]; ok {
		return err
	}
	f.failedIDs = append(f.failedIDs, id)
	return nil
}

func (f *fakeStaleSessionStore) ListChunks(_ context.Context, sessionID uuid.UUID) ([]models.UploadChunk, error) {
	return f.chunks[sessionID], nil
}

func (f *fakeStaleSessionStore) DeleteChunks(_ context.Context, sessionID uuid.UUID) error {
	f.deletedChunks = append(f.deletedChunks, sessionID)
	return nil
}

type fakeChunkObjectStore struct {
	deletedKeys []string
	deleteErr   error
}

func (f *fakeChunkObjectStore) Delete(_ context.Context, key string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletedKeys = append(f.deletedKeys, key)
	return nil
}

func TestStaleUploadsExpiresSessionsAndReclaimsChunks(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	sessionID := uuid.New()
	sessions := &fakeStaleSessionStore{
		rows: []models.UploadSession{{ID: sessionID}},
		chunks: map[uuid.UUID][]models.UploadChunk{
			sessionID: {
				{SessionID: sessionID, ChunkIndex: 0, StorageKey: "uploads/" + sessionID.String() + "/chunks/0"},
				{SessionID: sessionID, ChunkIndex: 1, StorageKey: "uploads/" + sessionID.String() + "/chunks/1"},
			},
		},
	}
	store := &fakeChunkObjectStore{}
	job := newStaleUploadsJob(t, sessions, store, 24*time.Hour)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	expectedCutoff := now.Add(-24 * time.Hour)
	if !sessions.lastCutoff.Equal(expectedCutoff) {
		t.Fatalf("expected cutoff %s got %s", expectedCutoff, sessions.lastCutoff)
	}
	if len(sessions.failedIDs) != 1 || sessions.failedIDs[0] != sessionID {
		t.Fatalf("expected session failed, got %v", sessions.failedIDs)
	}
	if len(store.deletedKeys) != 2 {
		t.Fatalf("expected 2 chunk objects deleted, got %d", len(store.deletedKeys))
	}
	if len(sessions.deletedChunks) != 1 {
		t.Fatalf("expected chunk rows deleted, got %d calls", len(sessions.deletedChunks))
	}
}

func TestStaleUploadsSkipsSessionsFinalizedMeanwhile(t *testing.T) {
	t.Parallel()

	completed := uuid.New()
	sessions := &fakeStaleSessionStore{
		rows:    []models.UploadSession{{ID: completed}},
		failErr: map[uuid.UUID]error{completed: uploads.ErrSessionConflict},
	}
	store := &fakeChunkObjectStore{}
	job := newStaleUploadsJob(t, sessions, store, time.Hour)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(store.deletedKeys) != 0 || len(sessions.deletedChunks) != 0 {
		t.Fatal("expected no cleanup for a session that completed")
	}
}

func TestStaleUploadsReturnsPerSessionWriteErrors(t *testing.T) {
	t.Parallel()

	healthy := uuid.New()
	broken := uuid.New()
	sessions := &fakeStaleSessionStore{
		rows:    []models.UploadSession{{ID: healthy}, {ID: broken}},
		failErr: map[uuid.UUID]error{broken: errors.New("connection reset")},
	}
	store := &fakeChunkObjectStore{}
	job := newStaleUploadsJob(t, sessions, store, time.Hour)

	runErr := job.Run(context.Background())
	if runErr == nil {
		t.Fatal("expected combined error when a session write fails")
	}
	if !strings.Contains(runErr.Error(), broken.String()) {
		t.Fatalf("error should name the failing session, got %q", runErr.Error())
	}
	if len(sessions.failedIDs) != 1 || sessions.failedIDs[0] != healthy {
		t.Fatalf("expected %s expired, got %v", healthy, sessions.failedIDs)
	}
}

func TestStaleUploadsStillDeletesRowsWhenObjectDeleteFails(t *testing.T) {
	t.Parallel()

	sessionID := uuid.New()
	sessions := &fakeStaleSessionStore{
		rows: []models.UploadSession{{ID: sessionID}},
		chunks: map[uuid.UUID][]models.UploadChunk{
			sessionID: {{SessionID: sessionID, StorageKey: "uploads/x/chunks/0"}},
		},
	}
	store := &fakeChunkObjectStore{deleteErr: errors.New("storage unavailable")}
	job := newStaleUploadsJob(t, sessions, store, time.Hour)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sessions.deletedChunks) != 1 {
		t.Fatal("expected chunk rows deleted despite object delete failure")
	}
}

func newStaleUploadsJob(t *testing.T, sessions *fakeStaleSessionStore, store *fakeChunkObjectStore, ttl time.Duration) *StaleUploadsJob {
	t.Helper()
	job, err := NewStaleUploadsJob(sessions, store, cronTestLogger(), ttl)
	if err != nil {
		t.Fatalf("NewStaleUploadsJob: %v", err)
	}
	return job
}
