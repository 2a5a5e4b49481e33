package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nclamvn/prismy-production-sub017/api/responses"
	"github.com/nclamvn/prismy-production-sub017/internal/jobs"
	pkgerrors "github.com/nclamvn/prismy-production-sub017/pkg/errors"
	"github.com/nclamvn/prismy-production-sub017/pkg/logger"
)

// AdminJob returns the operator view of one translation job, including
// elapsed duration and the projected completion time.
func AdminJob(svc jobs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "translation service unavailable"))
			return
		}

		jobID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid job id"))
			return
		}

		resp, err := svc.AdminJob(r.Context(), jobID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, resp)
	}
}
