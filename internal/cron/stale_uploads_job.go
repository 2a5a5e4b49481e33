package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/nclamvn/prismy-production-sub017/internal/uploads"
	"github.com/nclamvn/prismy-production-sub017/pkg/db/models"
	"github.com/nclamvn/prismy-production-sub017/pkg/logger"
)

type staleSessionStore interface {
	FindStaleSessions(ctx context.Context, cutoff time.Time) ([]models.UploadSession, error)
	FailSession(ctx context.Context, id uuid.UUID) error
	ListChunks(ctx context.Context, sessionID uuid.UUID) ([]models.UploadChunk, error)
	DeleteChunks(ctx context.Context, sessionID uuid.UUID) error
}

type chunkObjectStore interface {
	Delete(ctx context.Context, key string) error
}

// StaleUploadsJob fails upload sessions abandoned mid-transfer and reclaims
// their chunk storage.
type StaleUploadsJob struct {
	sessions staleSessionStore
	store    chunkObjectStore
	logg     *logger.Logger
	ttl      time.Duration
	now      func() time.Time
}

// NewStaleUploadsJob builds the stale upload cleanup job.
func NewStaleUploadsJob(sessions staleSessionStore, store chunkObjectStore, logg *logger.Logger, ttl time.Duration) (*StaleUploadsJob, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session store required")
	}
	if store == nil {
		return nil, fmt.Errorf("object store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("ttl must be positive")
	}
	return &StaleUploadsJob{sessions: sessions, store: store, logg: logg, ttl: ttl, now: time.Now}, nil
}

func (j *StaleUploadsJob) Name() string { return "stale-upload-cleanup" }

func (j *StaleUploadsJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	stale, err := j.sessions.FindStaleSessions(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("find stale sessions: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	var errs []error
	var cleaned int
	for _, session := range stale {
		sessCtx := j.logg.WithField(ctx, "session_id", session.ID.String())
		if err := j.sessions.FailSession(sessCtx, session.ID); err != nil {
			// The session completed or was failed since the scan.
			if errors.Is(err, uploads.ErrSessionConflict) {
				continue
			}
			j.logg.Error(sessCtx, "failed to expire upload session", err)
			errs = append(errs, fmt.Errorf("expire session %s: %w", session.ID, err))
			continue
		}
		j.reclaimChunks(sessCtx, session.ID)
		cleaned++
	}
	j.logg.Info(j.logg.WithField(ctx, "expired", cleaned), "stale upload pass complete")
	return multierr.Combine(errs...)
}

// reclaimChunks is best effort: the session is already failed, and orphaned
// chunk objects are harmless beyond their storage cost.
func (j *StaleUploadsJob) reclaimChunks(ctx context.Context, sessionID uuid.UUID) {
	chunks, err := j.sessions.ListChunks(ctx, sessionID)
	if err != nil {
		j.logg.Warn(j.logg.WithField(ctx, "error", err.Error()), "failed to list chunks for cleanup")
		return
	}
	for _, chunk := range chunks {
		if err := j.store.Delete(ctx, chunk.StorageKey); err != nil {
			j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
				"key":   chunk.StorageKey,
				"error": err.Error(),
			}), "failed to delete chunk object")
		}
	}
	if err := j.sessions.DeleteChunks(ctx, sessionID); err != nil {
		j.logg.Warn(j.logg.WithField(ctx, "error", err.Error()), "failed to delete chunk rows")
	}
}
