package middleware

import (
	"context"

	"github.com/angelmondragon/guildmarket/pkg/auth"
	"github.com/angelmondragon/guildmarket/pkg/enums"
)

type claimsKey struct{}

func withClaims(ctx context.Context, claims *auth.AccessTokenClaims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the token claims stored by Auth, or nil.
func ClaimsFromContext(ctx context.Context) *auth.AccessTokenClaims {
	if ctx == nil {
		return nil
	}
	claims, _ := ctx.Value(claimsKey{}).(*auth.AccessTokenClaims)
	return claims
}

func UserIDFromContext(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.UserID
	}
	return ""
}

func RoleFromContext(ctx context.Context) enums.MemberRole {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.Role
	}
	return ""
}
