package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nclamvn/prismy-production-sub017/api/responses"
	"github.com/nclamvn/prismy-production-sub017/api/validators"
	"github.com/nclamvn/prismy-production-sub017/internal/jobs"
	pkgerrors "github.com/nclamvn/prismy-production-sub017/pkg/errors"
	"github.com/nclamvn/prismy-production-sub017/pkg/logger"
)

type translationStartRequest struct {
	DocumentID     string  `json:"document_id" validate:"required,uuid"`
	SourceLanguage string  `json:"source_language"`
	TargetLanguage string  `json:"target_language" validate:"required"`
	BatchID        *string `json:"batch_id,omitempty"`
}

// TranslationStart queues the translation pipeline for an uploaded document.
func TranslationStart(svc jobs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "translation service unavailable"))
			return
		}

		uid, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload translationStartRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		documentID, err := uuid.Parse(payload.DocumentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid document id"))
			return
		}

		input := jobs.StartInput{
			DocumentID:     documentID,
			SourceLanguage: payload.SourceLanguage,
			TargetLanguage: payload.TargetLanguage,
		}
		if payload.BatchID != nil && *payload.BatchID != "" {
			batchID, err := uuid.Parse(*payload.BatchID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid batch id"))
				return
			}
			input.BatchID = &batchID
		}

		resp, err := svc.Start(r.Context(), uid, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusAccepted, resp)
	}
}

// TranslationStatus answers job polling with progress and an ETA.
func TranslationStatus(svc jobs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "translation service unavailable"))
			return
		}

		uid, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		jobID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid translation id"))
			return
		}

		resp, err := svc.Status(r.Context(), uid, jobID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, resp)
	}
}
