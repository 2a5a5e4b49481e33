package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/nclamvn/prismy-production-sub017/internal/documents"
	"github.com/nclamvn/prismy-production-sub017/pkg/db/models"
	"github.com/nclamvn/prismy-production-sub017/pkg/logger"
)

type stuckDocumentStore interface {
	FindStuck(ctx context.Context, cutoff time.Time) ([]models.Document, error)
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error
}

type jobFailer interface {
	FailJobsForDocument(ctx context.Context, documentID uuid.UUID, message string) error
}

// WatchdogJob fails documents whose pipeline has not made a transition
// within the configured window, along with their translation jobs.
type WatchdogJob struct {
	documents stuckDocumentStore
	jobs      jobFailer
	logg      *logger.Logger
	window    time.Duration
	now       func() time.Time
}

// NewWatchdogJob builds the pipeline watchdog.
func NewWatchdogJob(docs stuckDocumentStore, jobs jobFailer, logg *logger.Logger, window time.Duration) (*WatchdogJob, error) {
	if docs == nil {
		return nil, fmt.Errorf("document store required")
	}
	if jobs == nil {
		return nil, fmt.Errorf("job store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive")
	}
	return &WatchdogJob{documents: docs, jobs: jobs, logg: logg, window: window, now: time.Now}, nil
}

func (j *WatchdogJob) Name() string { return "pipeline-watchdog" }

func (j *WatchdogJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.window)
	stuck, err := j.documents.FindStuck(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("find stuck documents: %w", err)
	}
	if len(stuck) == 0 {
		return nil
	}

	message := fmt.Sprintf("Timeout: no pipeline transition within %s", j.window)
	var errs []error
	var failed int
	for _, doc := range stuck {
		docCtx := j.logg.WithDocumentID(ctx, doc.ID.String())
		if err := j.documents.MarkFailed(docCtx, doc.ID, message); err != nil {
			// Someone else finished or failed the document between the
			// scan and the write. Leave it alone.
			if errors.Is(err, documents.ErrStatusConflict) {
				continue
			}
			j.logg.Error(docCtx, "failed to time out document", err)
			errs = append(errs, fmt.Errorf("time out document %s: %w", doc.ID, err))
			continue
		}
		if err := j.jobs.FailJobsForDocument(docCtx, doc.ID, message); err != nil {
			j.logg.Error(docCtx, "failed to time out translation jobs", err)
			errs = append(errs, fmt.Errorf("fail jobs for document %s: %w", doc.ID, err))
			continue
		}
		failed++
	}
	j.logg.Info(j.logg.WithField(ctx, "timed_out", failed), "watchdog pass complete")
	return multierr.Combine(errs...)
}
