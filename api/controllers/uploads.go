package controllers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nclamvn/prismy-production-sub017/api/middleware"
	"github.com/nclamvn/prismy-production-sub017/api/responses"
	"github.com/nclamvn/prismy-production-sub017/api/validators"
	"github.com/nclamvn/prismy-production-sub017/internal/uploads"
	pkgerrors "github.com/nclamvn/prismy-production-sub017/pkg/errors"
	"github.com/nclamvn/prismy-production-sub017/pkg/logger"
)

type uploadRegisterRequest struct {
	FileName    string `json:"file_name" validate:"required"`
	TotalSize   int64  `json:"total_size" validate:"required,min=1"`
	TotalChunks int    `json:"total_chunks" validate:"required,min=1"`
}

type uploadCompleteRequest struct {
	UploadID string `json:"upload_id" validate:"required,uuid"`
	FileName string `json:"file_name" validate:"required"`
	FileSize int64  `json:"file_size" validate:"required,min=1"`
	FileType string `json:"file_type" validate:"required"`
}

// UploadRegister opens a chunked upload session.
func UploadRegister(svc uploads.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "upload service unavailable"))
			return
		}

		uid, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload uploadRegisterRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp, err := svc.RegisterSession(r.Context(), uid, uploads.RegisterInput{
			FileName:    payload.FileName,
			TotalSize:   payload.TotalSize,
			TotalChunks: payload.TotalChunks,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, resp)
	}
}

// UploadChunk ingests one raw chunk body for a session.
func UploadChunk(svc uploads.Service, logg *logger.Logger, maxChunkBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "upload service unavailable"))
			return
		}

		uid, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid upload id"))
			return
		}

		index, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid chunk index"))
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxChunkBytes))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "chunk body too large or unreadable"))
			return
		}

		resp, err := svc.StoreChunk(r.Context(), uid, sessionID, index, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, resp)
	}
}

// UploadComplete reassembles the stored chunks into a document.
func UploadComplete(svc uploads.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "upload service unavailable"))
			return
		}

		uid, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload uploadCompleteRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		uploadID, err := uuid.Parse(payload.UploadID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid upload id"))
			return
		}

		resp, err := svc.Complete(r.Context(), uid, uploads.CompleteInput{
			UploadID: uploadID,
			FileName: payload.FileName,
			FileSize: payload.FileSize,
			FileType: payload.FileType,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, resp)
	}
}

func callerID(r *http.Request) (uuid.UUID, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
	}
	return uid, nil
}
