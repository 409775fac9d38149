package middleware

import (
	"crypto/ed25519"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/angelmondragon/guildmarket/api/responses"
	pkgerrors "github.com/angelmondragon/guildmarket/pkg/errors"
	"github.com/angelmondragon/guildmarket/pkg/logger"
)

// DiscordSignature rejects interaction webhooks that were not signed by
// Discord. The body is restored after verification so handlers can decode it.
func DiscordSignature(key ed25519.PublicKey, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(key) != ed25519.PublicKeySize || !discordgo.VerifyInteraction(r, key) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid request signature"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
