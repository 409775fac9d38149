package controllers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/angelmondragon/guildmarket/api/responses"
	pkgerrors "github.com/angelmondragon/guildmarket/pkg/errors"
	"github.com/angelmondragon/guildmarket/pkg/logger"
)

const maxInteractionBody = 1 << 20

type InteractionHandler interface {
	HandleInteraction(ctx context.Context, i *discordgo.Interaction) *discordgo.InteractionResponse
}

// DiscordInteractions decodes a signed interaction webhook and answers with
// the bot's response as the HTTP body.
func DiscordInteractions(handler InteractionHandler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if handler == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "interaction handler unavailable"))
			return
		}

		var interaction discordgo.Interaction
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxInteractionBody)).Decode(&interaction); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid interaction payload"))
			return
		}

		resp := handler.HandleInteraction(r.Context(), &interaction)
		if resp == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "no interaction response"))
			return
		}
		responses.WriteRaw(w, http.StatusOK, resp)
	}
}
