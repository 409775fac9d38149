package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/guildmarket/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	// UserID is the Discord user id of the operator.
	UserID string
	Role   enums.MemberRole
	JTI    string
}

// AccessTokenClaims represents the typed JWT accepted by the admin API.
type AccessTokenClaims struct {
	UserID string           `json:"user_id"`
	Role   enums.MemberRole `json:"role"`
	jwt.RegisteredClaims
}
