package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/nclamvn/prismy-production-sub017/internal/jobs"
	pkgerrors "github.com/nclamvn/prismy-production-sub017/pkg/errors"
)

type stubJobsService struct {
	startInput jobs.StartInput
	startErr   error
	statusErr  error
}

func (s *stubJobsService) Start(_ context.Context, _ uuid.UUID, input jobs.StartInput) (*jobs.StartOutput, error) {
	s.startInput = input
	if s.startErr != nil {
		return nil, s.startErr
	}
	return &jobs.StartOutput{TranslationID: uuid.New()}, nil
}

func (s *stubJobsService) Status(_ context.Context, _, jobID uuid.UUID) (*jobs.StatusOutput, error) {
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	return &jobs.StatusOutput{JobView: jobs.JobView{TranslationID: jobID}}, nil
}

func (s *stubJobsService) CreateBatch(_ context.Context, _ uuid.UUID) (*jobs.BatchCreatedOutput, error) {
	return &jobs.BatchCreatedOutput{BatchID: uuid.New()}, nil
}

func (s *stubJobsService) Batch(_ context.Context, _, batchID uuid.UUID) (*jobs.BatchOutput, error) {
	return &jobs.BatchOutput{BatchID: batchID}, nil
}

func (s *stubJobsService) AdminJob(_ context.Context, jobID uuid.UUID) (*jobs.AdminJobOutput, error) {
	return &jobs.AdminJobOutput{JobView: jobs.JobView{TranslationID: jobID}}, nil
}

func TestTranslationStartParsesBatchID(t *testing.T) {
	t.Parallel()

	svc := &stubJobsService{}
	handler := TranslationStart(svc, nil)
	docID := uuid.New()
	batchID := uuid.New()
	body := `{"document_id":"` + docID.String() + `","source_language":"en","target_language":"es","batch_id":"` + batchID.String() + `"}`
	req := authedRequest(http.MethodPost, "/api/v1/translations", body)
	resp := httptest.NewRecorder()
	handler(resp, req)

	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.startInput.DocumentID != docID {
		t.Fatalf("expected document %s got %s", docID, svc.startInput.DocumentID)
	}
	if svc.startInput.BatchID == nil || *svc.startInput.BatchID != batchID {
		t.Fatalf("expected batch %s got %v", batchID, svc.startInput.BatchID)
	}
}

func TestTranslationStartRequiresTargetLanguage(t *testing.T) {
	t.Parallel()

	handler := TranslationStart(&stubJobsService{}, nil)
	body := `{"document_id":"` + uuid.NewString() + `"}`
	req := authedRequest(http.MethodPost, "/api/v1/translations", body)
	resp := httptest.NewRecorder()
	handler(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestTranslationStartSurfacesStateConflict(t *testing.T) {
	t.Parallel()

	svc := &stubJobsService{startErr: pkgerrors.New(pkgerrors.CodeStateConflict, "document is processing, expected uploaded")}
	handler := TranslationStart(svc, nil)
	body := `{"document_id":"` + uuid.NewString() + `","target_language":"es"}`
	req := authedRequest(http.MethodPost, "/api/v1/translations", body)
	resp := httptest.NewRecorder()
	handler(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "document is processing") {
		t.Fatalf("expected conflict message surfaced, got %s", resp.Body.String())
	}
}

func TestTranslationStatusRejectsBadID(t *testing.T) {
	t.Parallel()

	handler := TranslationStatus(&stubJobsService{}, nil)
	req := authedRequest(http.MethodGet, "/api/v1/translations/nope", "")
	req = withURLParams(req, map[string]string{"id": "nope"})
	resp := httptest.NewRecorder()
	handler(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestTranslationStatusNotFound(t *testing.T) {
	t.Parallel()

	svc := &stubJobsService{statusErr: pkgerrors.New(pkgerrors.CodeNotFound, "translation job not found")}
	handler := TranslationStatus(svc, nil)
	jobID := uuid.New()
	req := authedRequest(http.MethodGet, "/api/v1/translations/"+jobID.String(), "")
	req = withURLParams(req, map[string]string{"id": jobID.String()})
	resp := httptest.NewRecorder()
	handler(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}
