package controllers

import (
	"context"
	"net/http"

	"github.com/keylock-io/keylock/api/responses"
	"github.com/keylock-io/keylock/pkg/config"
	pkgerrors "github.com/keylock-io/keylock/pkg/errors"
	"github.com/keylock-io/keylock/pkg/logger"
)

const envHeader = "X-Keylock-Env"

type pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the license store plus redis when configured.
func HealthReady(cfg *config.Config, logg *logger.Logger, store pinger, redis pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		checks := map[string]string{}

		if store != nil {
			if err := store.Ping(r.Context()); err != nil {
				checks["store"] = "unreachable"
				ctx := logg.WithField(r.Context(), "checks", checks)
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "license store unreachable"))
				return
			}
			checks["store"] = "ok"
		}

		if redis != nil {
			if err := redis.Ping(r.Context()); err != nil {
				checks["redis"] = "unreachable"
				ctx := logg.WithField(r.Context(), "checks", checks)
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis unreachable"))
				return
			}
			checks["redis"] = "ok"
		}

		checks["status"] = "ready"
		responses.WriteSuccess(w, checks)
	}
}
