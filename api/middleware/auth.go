package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/guildmarket/api/responses"
	"github.com/angelmondragon/guildmarket/pkg/auth"
	"github.com/angelmondragon/guildmarket/pkg/config"
	pkgerrors "github.com/angelmondragon/guildmarket/pkg/errors"
	"github.com/angelmondragon/guildmarket/pkg/logger"
)

// Auth accepts admin API requests carrying a valid "Bearer <jwt>" header
// and stores the claims on the context.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "bearer token required"))
				return
			}
			claims, err := auth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := withClaims(r.Context(), claims)
			if logg != nil {
				ctx = logg.WithUserID(ctx, claims.UserID)
				ctx = logg.WithActorRole(ctx, claims.Role.String())
				ctx = logg.WithField(ctx, "token_id", claims.ID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
