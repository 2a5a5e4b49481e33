package consumer

import (
	"context"
	"encoding/json"
	"errors"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nclamvn/prismy-production-sub017/internal/pipeline"
	"github.com/nclamvn/prismy-production-sub017/pkg/db/models"
	pkgerrors "github.com/nclamvn/prismy-production-sub017/pkg/errors"
	"github.com/nclamvn/prismy-production-sub017/pkg/logger"
)

type documentProcessor interface {
	Process(ctx context.Context, documentID uuid.UUID) error
}

type jobsRepository interface {
	MarkJobProcessing(ctx context.Context, id uuid.UUID) error
	MarkJobCompleted(ctx context.Context, id uuid.UUID, resultPath *string) error
	MarkJobFailed(ctx context.Context, id uuid.UUID, message string) error
}

type documentsFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
}

// DispatchConsumer receives pipeline dispatch messages and drives the
// processor, keeping the translation job record in step with the run.
type DispatchConsumer struct {
	processor    documentProcessor
	jobs         jobsRepository
	documents    documentsFinder
	subscription *pubsub.Subscriber
	logg         *logger.Logger
}

// NewDispatchConsumer wires the dependencies for pipeline dispatch handling.
func NewDispatchConsumer(processor documentProcessor, jobs jobsRepository, documents documentsFinder, subscription *pubsub.Subscriber, logg *logger.Logger) (*DispatchConsumer, error) {
	if processor == nil {
		return nil, errors.New("processor is required")
	}
	if jobs == nil {
		return nil, errors.New("jobs repository is required")
	}
	if documents == nil {
		return nil, errors.New("documents finder is required")
	}
	if subscription == nil {
		return nil, errors.New("pipeline subscription is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &DispatchConsumer{
		processor:    processor,
		jobs:         jobs,
		documents:    documents,
		subscription: subscription,
		logg:         logg,
	}, nil
}

// Run processes dispatch messages until the context is canceled.
func (c *DispatchConsumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.handle(ctx, msg) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// handle reports whether the message should be acked. Only transient
// dependency failures are worth a redelivery; everything else has already
// landed on the document/job records.
func (c *DispatchConsumer) handle(ctx context.Context, msg *pubsub.Message) bool {
	var dispatch pipeline.DispatchMessage
	if err := json.Unmarshal(msg.Data, &dispatch); err != nil {
		c.logg.Error(c.logg.WithField(ctx, "message_id", msg.ID), "malformed dispatch message", err)
		return true
	}
	if dispatch.DocumentID == uuid.Nil {
		c.logg.Warn(c.logg.WithField(ctx, "message_id", msg.ID), "dispatch message missing document id")
		return true
	}

	ctx = c.logg.WithDocumentID(ctx, dispatch.DocumentID.String())
	if dispatch.JobID != uuid.Nil {
		ctx = c.logg.WithJobID(ctx, dispatch.JobID.String())

		if err := c.jobs.MarkJobProcessing(ctx, dispatch.JobID); err != nil {
			c.logg.Error(ctx, "mark job processing", err)
			return false
		}
	}

	runErr := c.processor.Process(ctx, dispatch.DocumentID)
	if runErr != nil {
		typed := pkgerrors.As(runErr)
		if typed != nil && typed.Code() == pkgerrors.CodeDependency {
			c.logg.Error(ctx, "pipeline dependency failure, requesting redelivery", runErr)
			return false
		}
		// A lost claim means another run already owns (or finished) this
		// document; on redelivery the job record already reflects the true
		// outcome, so failing it here would regress a completed job.
		if typed != nil && typed.Code() == pkgerrors.CodeStateConflict {
			c.logg.Warn(ctx, "document claimed elsewhere, dropping dispatch")
			return true
		}
		if dispatch.JobID != uuid.Nil {
			if err := c.jobs.MarkJobFailed(ctx, dispatch.JobID, runErr.Error()); err != nil {
				c.logg.Error(ctx, "mark job failed", err)
			}
		}
		c.logg.Warn(ctx, "pipeline run ended in failure")
		return true
	}

	if dispatch.JobID != uuid.Nil {
		var resultPath *string
		doc, err := c.documents.FindByID(ctx, dispatch.DocumentID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			c.logg.Error(ctx, "load document for job result", err)
		}
		if doc != nil {
			resultPath = doc.OutputFilePath
		}
		if err := c.jobs.MarkJobCompleted(ctx, dispatch.JobID, resultPath); err != nil {
			c.logg.Error(ctx, "mark job completed", err)
		}
	}

	c.logg.Info(ctx, "dispatch message processed")
	return true
}
