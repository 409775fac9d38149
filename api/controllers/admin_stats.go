package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/guildmarket/api/responses"
	"github.com/angelmondragon/guildmarket/internal/stats"
	pkgerrors "github.com/angelmondragon/guildmarket/pkg/errors"
	"github.com/angelmondragon/guildmarket/pkg/logger"
)

type statsSource interface {
	Snapshot(ctx context.Context) (*stats.Stats, error)
}

// AdminStats returns the marketplace overview shown by /stats.
func AdminStats(src statsSource, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if src == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stats unavailable"))
			return
		}
		snapshot, err := src.Snapshot(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snapshot)
	}
}
