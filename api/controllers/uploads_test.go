package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nclamvn/prismy-production-sub017/api/middleware"
	"github.com/nclamvn/prismy-production-sub017/internal/uploads"
	pkgerrors "github.com/nclamvn/prismy-production-sub017/pkg/errors"
)

type stubUploadService struct {
	registerErr error
	chunkInput  struct {
		sessionID uuid.UUID
		index     int
		size      int
	}
}

func (s *stubUploadService) RegisterSession(_ context.Context, _ uuid.UUID, input uploads.RegisterInput) (*uploads.SessionOutput, error) {
	if s.registerErr != nil {
		return nil, s.registerErr
	}
	return &uploads.SessionOutput{UploadID: uuid.New(), TotalChunks: input.TotalChunks}, nil
}

func (s *stubUploadService) StoreChunk(_ context.Context, _, sessionID uuid.UUID, index int, data []byte) (*uploads.ChunkOutput, error) {
	s.chunkInput.sessionID = sessionID
	s.chunkInput.index = index
	s.chunkInput.size = len(data)
	return &uploads.ChunkOutput{UploadID: sessionID, ChunkIndex: index}, nil
}

func (s *stubUploadService) Complete(_ context.Context, _ uuid.UUID, _ uploads.CompleteInput) (*uploads.CompleteOutput, error) {
	return &uploads.CompleteOutput{FileID: uuid.New()}, nil
}

func authedRequest(method, target string, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	return req.WithContext(middleware.WithUserID(req.Context(), uuid.NewString()))
}

func withURLParams(req *http.Request, params map[string]string) *http.Request {
	rc := chi.NewRouteContext()
	for key, value := range params {
		rc.URLParams.Add(key, value)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestUploadRegisterRejectsMissingUser(t *testing.T) {
	t.Parallel()

	handler := UploadRegister(&stubUploadService{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", strings.NewReader(`{"file_name":"a.txt","total_size":10,"total_chunks":1}`))
	resp := httptest.NewRecorder()
	handler(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestUploadRegisterRejectsInvalidBody(t *testing.T) {
	t.Parallel()

	handler := UploadRegister(&stubUploadService{}, nil)
	req := authedRequest(http.MethodPost, "/api/v1/uploads", `{"file_name":"a.txt"}`)
	resp := httptest.NewRecorder()
	handler(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestUploadRegisterPropagatesServiceErrors(t *testing.T) {
	t.Parallel()

	svc := &stubUploadService{registerErr: pkgerrors.New(pkgerrors.CodeValidation, "upload exceeds size limit")}
	handler := UploadRegister(svc, nil)
	req := authedRequest(http.MethodPost, "/api/v1/uploads", `{"file_name":"a.txt","total_size":10,"total_chunks":1}`)
	resp := httptest.NewRecorder()
	handler(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "upload exceeds size limit") {
		t.Fatalf("expected service message in body, got %s", resp.Body.String())
	}
}

func TestUploadChunkParsesPathAndBody(t *testing.T) {
	t.Parallel()

	svc := &stubUploadService{}
	handler := UploadChunk(svc, nil, 1024)
	sessionID := uuid.New()
	req := authedRequest(http.MethodPut, "/api/v1/uploads/"+sessionID.String()+"/chunks/3", "chunk-payload")
	req = withURLParams(req, map[string]string{"id": sessionID.String(), "index": "3"})
	resp := httptest.NewRecorder()
	handler(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.chunkInput.sessionID != sessionID {
		t.Fatalf("expected session %s got %s", sessionID, svc.chunkInput.sessionID)
	}
	if svc.chunkInput.index != 3 {
		t.Fatalf("expected index 3 got %d", svc.chunkInput.index)
	}
	if svc.chunkInput.size != len("chunk-payload") {
		t.Fatalf("expected %d bytes got %d", len("chunk-payload"), svc.chunkInput.size)
	}
}

func TestUploadChunkRejectsBadIndex(t *testing.T) {
	t.Parallel()

	handler := UploadChunk(&stubUploadService{}, nil, 1024)
	sessionID := uuid.New()
	req := authedRequest(http.MethodPut, "/api/v1/uploads/"+sessionID.String()+"/chunks/abc", "data")
	req = withURLParams(req, map[string]string{"id": sessionID.String(), "index": "abc"})
	resp := httptest.NewRecorder()
	handler(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestUploadCompleteRejectsInvalidUploadID(t *testing.T) {
	t.Parallel()

	handler := UploadComplete(&stubUploadService{}, nil)
	req := authedRequest(http.MethodPost, "/api/v1/uploads/complete", `{"upload_id":"nope","file_name":"a.txt","file_size":10,"file_type":"text/plain"}`)
	resp := httptest.NewRecorder()
	handler(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
