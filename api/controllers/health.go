package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/nclamvn/prismy-production-sub017/api/responses"
	"github.com/nclamvn/prismy-production-sub017/pkg/config"
	pkgerrors "github.com/nclamvn/prismy-production-sub017/pkg/errors"
	"github.com/nclamvn/prismy-production-sub017/pkg/logger"
)

const readinessTimeout = 5 * time.Second

// Pinger is satisfied by the db, redis, storage and pubsub clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Prismy-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings each dependency and reports per-dependency status.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Prismy-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		statuses := map[string]string{}
		healthy := true
		for name, dep := range deps {
			if dep == nil {
				statuses[name] = "not configured"
				healthy = false
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				statuses[name] = err.Error()
				healthy = false
				continue
			}
			statuses[name] = "ok"
		}

		if !healthy {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").WithDetails(statuses))
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"status":       "ready",
			"dependencies": statuses,
		})
	}
}
