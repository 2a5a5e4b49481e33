package consumer

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nclamvn/prismy-production-sub017/internal/pipeline"
	"github.com/nclamvn/prismy-production-sub017/pkg/db/models"
	pkgerrors "github.com/nclamvn/prismy-production-sub017/pkg/errors"
	"github.com/nclamvn/prismy-production-sub017/pkg/logger"
)

type fakeProcessor struct {
	err  error
	runs int
}

func (f *fakeProcessor) Process(_ context.Context, _ uuid.UUID) error {
	f.runs++
	return f.err
}

type fakeJobsRepo struct {
	processing []uuid.UUID
	completed  []uuid.UUID
	failed     []uuid.UUID
	resultPath *string
	failedMsg  string
}

func (f *fakeJobsRepo) MarkJobProcessing(_ context.Context, id uuid.UUID) error {
	f.processing = append(f.processing, id)
	return nil
}

func (f *fakeJobsRepo) MarkJobCompleted(_ context.Context, id uuid.UUID, resultPath *string) error {
	f.completed = append(f.completed, id)
	f.resultPath = resultPath
	return nil
}

func (f *fakeJobsRepo) MarkJobFailed(_ context.Context, id uuid.UUID, message string) error {
	f.failed = append(f.failed, id)
	f.failedMsg = message
	return nil
}

type fakeDocumentsFinder struct {
	doc *models.Document
}

func (f *fakeDocumentsFinder) FindByID(_ context.Context, _ uuid.UUID) (*models.Document, error) {
	if f.doc == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return f.doc, nil
}

func consumerTestLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "consumer-test", Output: io.Discard})
}

func newTestConsumer(processor *fakeProcessor, jobs *fakeJobsRepo, docs *fakeDocumentsFinder) *DispatchConsumer {
	return &DispatchConsumer{
		processor: processor,
		jobs:      jobs,
		documents: docs,
		logg:      consumerTestLogger(),
	}
}

func dispatchPayload(t *testing.T, documentID, jobID uuid.UUID) []byte {
	t.Helper()
	data, err := json.Marshal(pipeline.DispatchMessage{DocumentID: documentID, JobID: jobID})
	if err != nil {
		t.Fatalf("marshal dispatch: %v", err)
	}
	return data
}

func TestHandleRedeliveryForFinishedDocumentLeavesJobAlone(t *testing.T) {
	t.Parallel()

	// At-least-once delivery: the first run completed the job, then the
	// message came back and the claim race is lost immediately.
	processor := &fakeProcessor{err: pkgerrors.New(pkgerrors.CodeStateConflict, "document already claimed by another run")}
	jobs := &fakeJobsRepo{}
	c := newTestConsumer(processor, jobs, &fakeDocumentsFinder{})

	msg := &pubsub.Message{ID: "m1", Data: dispatchPayload(t, uuid.New(), uuid.New())}
	if ack := c.handle(context.Background(), msg); !ack {
		t.Fatal("claim-race conflict should ack, not request redelivery")
	}
	if len(jobs.failed) != 0 {
		t.Fatalf("job must not be failed on redelivery, got %d failure writes", len(jobs.failed))
	}
	if len(jobs.completed) != 0 {
		t.Fatalf("job must not be re-completed on redelivery, got %d completion writes", len(jobs.completed))
	}
}

func TestHandleDependencyFailureRequestsRedelivery(t *testing.T) {
	t.Parallel()

	processor := &fakeProcessor{err: pkgerrors.New(pkgerrors.CodeDependency, "storage unavailable")}
	jobs := &fakeJobsRepo{}
	c := newTestConsumer(processor, jobs, &fakeDocumentsFinder{})

	msg := &pubsub.Message{ID: "m2", Data: dispatchPayload(t, uuid.New(), uuid.New())}
	if ack := c.handle(context.Background(), msg); ack {
		t.Fatal("dependency failure should nack for redelivery")
	}
	if len(jobs.failed) != 0 {
		t.Fatal("transient failure must not finalize the job")
	}
}

func TestHandleTerminalFailureFailsJob(t *testing.T) {
	t.Parallel()

	processor := &fakeProcessor{err: pkgerrors.New(pkgerrors.CodeValidation, "unsupported document type")}
	jobs := &fakeJobsRepo{}
	c := newTestConsumer(processor, jobs, &fakeDocumentsFinder{})

	jobID := uuid.New()
	msg := &pubsub.Message{ID: "m3", Data: dispatchPayload(t, uuid.New(), jobID)}
	if ack := c.handle(context.Background(), msg); !ack {
		t.Fatal("terminal failure should ack")
	}
	if len(jobs.failed) != 1 || jobs.failed[0] != jobID {
		t.Fatalf("expected job %s failed, got %v", jobID, jobs.failed)
	}
}

func TestHandleSuccessCompletesJobWithResultPath(t *testing.T) {
	t.Parallel()

	resultPath := "output/doc/report.txt"
	processor := &fakeProcessor{}
	jobs := &fakeJobsRepo{}
	docs := &fakeDocumentsFinder{doc: &models.Document{ID: uuid.New(), OutputFilePath: &resultPath}}
	c := newTestConsumer(processor, jobs, docs)

	jobID := uuid.New()
	msg := &pubsub.Message{ID: "m4", Data: dispatchPayload(t, uuid.New(), jobID)}
	if ack := c.handle(context.Background(), msg); !ack {
		t.Fatal("successful run should ack")
	}
	if len(jobs.processing) != 1 || jobs.processing[0] != jobID {
		t.Fatalf("expected job %s claimed, got %v", jobID, jobs.processing)
	}
	if len(jobs.completed) != 1 || jobs.completed[0] != jobID {
		t.Fatalf("expected job %s completed, got %v", jobID, jobs.completed)
	}
	if jobs.resultPath == nil || *jobs.resultPath != resultPath {
		t.Fatalf("expected result path %q, got %v", resultPath, jobs.resultPath)
	}
}

func TestHandleMalformedMessageIsDropped(t *testing.T) {
	t.Parallel()

	processor := &fakeProcessor{}
	c := newTestConsumer(processor, &fakeJobsRepo{}, &fakeDocumentsFinder{})

	msg := &pubsub.Message{ID: "m5", Data: []byte("not-json")}
	if ack := c.handle(context.Background(), msg); !ack {
		t.Fatal("malformed message should ack, redelivery cannot fix it")
	}
	if processor.runs != 0 {
		t.Fatal("processor must not run for malformed input")
	}
}
