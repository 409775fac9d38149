package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/guildmarket/api/responses"
	"github.com/angelmondragon/guildmarket/pkg/config"
	pkgerrors "github.com/angelmondragon/guildmarket/pkg/errors"
	"github.com/angelmondragon/guildmarket/pkg/logger"
)

const (
	envHeader    = "X-GuildMarket-Env"
	readyTimeout = 2 * time.Second
)

// Pinger is any dependency the readiness check pings.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every named dependency and reports which ones are down.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		checks := make(map[string]string, len(deps))
		var firstErr error
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				checks[name] = "down"
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			checks[name] = "up"
		}

		if firstErr != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeDependency, firstErr, "dependency unavailable").WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
