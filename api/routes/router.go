package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nclamvn/prismy-production-sub017/api/controllers"
	"github.com/nclamvn/prismy-production-sub017/api/middleware"
	"github.com/nclamvn/prismy-production-sub017/internal/jobs"
	"github.com/nclamvn/prismy-production-sub017/internal/uploads"
	"github.com/nclamvn/prismy-production-sub017/pkg/config"
	"github.com/nclamvn/prismy-production-sub017/pkg/logger"
	"github.com/nclamvn/prismy-production-sub017/pkg/redis"
)

// RouterParams carries the dependencies the HTTP surface needs.
type RouterParams struct {
	Config       *config.Config
	Logger       *logger.Logger
	Redis        *redis.Client
	UploadSvc    uploads.Service
	JobsSvc      jobs.Service
	Dependencies map[string]controllers.Pinger
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.Dependencies))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Auth, logg))
		if params.Redis != nil {
			r.Use(middleware.Idempotency(params.Redis, logg))
		}

		r.Route("/v1/uploads", func(r chi.Router) {
			r.Post("/", controllers.UploadRegister(params.UploadSvc, logg))
			r.Put("/{id}/chunks/{index}", controllers.UploadChunk(params.UploadSvc, logg, cfg.Upload.MaxUploadBytes()))
			r.Post("/complete", controllers.UploadComplete(params.UploadSvc, logg))
		})

		r.Route("/v1/translations", func(r chi.Router) {
			r.Post("/", controllers.TranslationStart(params.JobsSvc, logg))
			r.Get("/{id}", controllers.TranslationStatus(params.JobsSvc, logg))
		})

		r.Route("/v1/batches", func(r chi.Router) {
			r.Post("/", controllers.BatchCreate(params.JobsSvc, logg))
			r.Get("/{id}", controllers.BatchStatus(params.JobsSvc, logg))
		})

		r.Route("/admin/v1", func(r chi.Router) {
			r.Get("/jobs/{id}", controllers.AdminJob(params.JobsSvc, logg))
		})
	})

	return r
}
