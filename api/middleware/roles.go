package middleware

import (
	"net/http"
	"slices"

	"github.com/angelmondragon/guildmarket/api/responses"
	"github.com/angelmondragon/guildmarket/pkg/enums"
	pkgerrors "github.com/angelmondragon/guildmarket/pkg/errors"
	"github.com/angelmondragon/guildmarket/pkg/logger"
)

// RequireRole admits requests whose token role is one of allowed. It must
// run after Auth.
func RequireRole(logg *logger.Logger, allowed ...enums.MemberRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !slices.Contains(allowed, RoleFromContext(r.Context())) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "role not permitted for this endpoint"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
