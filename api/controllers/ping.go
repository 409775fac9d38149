package controllers

import (
	"net/http"
	"time"

	"github.com/angelmondragon/guildmarket/api/middleware"
	"github.com/angelmondragon/guildmarket/api/responses"
)

type adminPingResponse struct {
	UserID    string     `json:"user_id"`
	Role      string     `json:"role"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// AdminPing echoes the caller's token so operators can check a freshly
// minted one.
func AdminPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := adminPingResponse{
			UserID: middleware.UserIDFromContext(r.Context()),
			Role:   middleware.RoleFromContext(r.Context()).String(),
		}
		if claims := middleware.ClaimsFromContext(r.Context()); claims != nil && claims.ExpiresAt != nil {
			exp := claims.ExpiresAt.UTC()
			resp.ExpiresAt = &exp
		}
		responses.WriteSuccess(w, resp)
	}
}
