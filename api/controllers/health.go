package controllers

import (
	"context"
	"net/http"

	"github.com/dariomatias/vendora-backend/api/responses"
	"github.com/dariomatias/vendora-backend/pkg/config"
	pkgerrors "github.com/dariomatias/vendora-backend/pkg/errors"
	"github.com/dariomatias/vendora-backend/pkg/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Vendora-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports readiness only when every backing dependency answers.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP, redisP pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Vendora-Env", cfg.App.Env)

		checks := map[string]pinger{
			"db":    dbP,
			"redis": redisP,
		}
		status := map[string]string{}
		healthy := true
		for name, p := range checks {
			if p == nil {
				status[name] = "unconfigured"
				healthy = false
				continue
			}
			if err := p.Ping(r.Context()); err != nil {
				status[name] = "down"
				healthy = false
				if logg != nil {
					ctx := logg.WithField(r.Context(), "dependency", name)
					logg.Error(ctx, "readiness check failed", err)
				}
				continue
			}
			status[name] = "ok"
		}

		if !healthy {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").WithDetails(status))
			return
		}
		responses.WriteSuccess(w, status)
	}
}
