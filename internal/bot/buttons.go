package bot

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/angelmondragon/guildmarket/internal/capabilities"
	"github.com/angelmondragon/guildmarket/internal/orders"
	"github.com/angelmondragon/guildmarket/pkg/enums"
	pkgerrors "github.com/angelmondragon/guildmarket/pkg/errors"
)

type buttonHandler func(a *App, ctx context.Context, input orders.TransitionInput) (*orders.TransitionResult, error)

// buttonTable routes a redeemed control to the lifecycle operation.
var buttonTable = map[enums.OrderAction]buttonHandler{
	enums.OrderActionConfirm: func(a *App, ctx context.Context, input orders.TransitionInput) (*orders.TransitionResult, error) {
		return a.orders.Confirm(ctx, input)
	},
	enums.OrderActionCancel: func(a *App, ctx context.Context, input orders.TransitionInput) (*orders.TransitionResult, error) {
		return a.orders.Cancel(ctx, input)
	},
}

// handleButton redeems the token carried by a button and runs the action it
// grants. A token is single use; it goes back to the store only when the
// failure was on our side and the member may retry.
func (a *App) handleButton(ctx context.Context, i *discordgo.Interaction) *discordgo.InteractionResponse {
	data, ok := i.Data.(discordgo.MessageComponentInteractionData)
	if !ok {
		return errorResponse("malformed control")
	}
	user := interactionUser(i)
	if user == nil || user.ID == "" {
		return errorResponse("could not identify you")
	}

	ctx = a.logg.WithInteraction(ctx, i.ID, "button")
	ctx = a.logg.WithUserID(ctx, user.ID)

	action, token, err := capabilities.ParseCustomID(data.CustomID)
	if err != nil {
		a.logFailure(ctx, err)
		return errorResponse(userMessage(err))
	}
	handler, ok := buttonTable[action]
	if !ok {
		return errorResponse("unknown control")
	}

	grant, err := a.capabilities.Redeem(ctx, token, user.ID)
	if err != nil {
		a.logFailure(ctx, err)
		return errorResponse(userMessage(err))
	}
	ctx = a.logg.WithFields(ctx, map[string]any{"order_id": grant.OrderID, "action": string(action)})
	ctx = a.logg.WithActorRole(ctx, string(grant.Role))

	if err := capabilities.Authorize(*grant, action); err != nil {
		a.restore(ctx, token, *grant)
		a.logFailure(ctx, err)
		return errorResponse(userMessage(err))
	}

	res, err := handler(a, ctx, orders.TransitionInput{
		OrderID:      grant.OrderID,
		ActorID:      user.ID,
		ExpectedRole: grant.Role,
	})
	if err != nil {
		if pkgerrors.MetadataFor(pkgerrors.CodeOf(err)).Retryable {
			a.restore(ctx, token, *grant)
		}
		a.logFailure(ctx, err)
		return errorResponse(userMessage(err))
	}

	reply := transitionReply(res)
	reply.Update = true
	if i.Message != nil {
		reply.Embeds = i.Message.Embeds
		reply.Components = withoutControls(i.Message.Components, token)
		if i.Message.Content != "" {
			reply.Content = i.Message.Content + "\n" + reply.Content
		}
	}
	return reply.response()
}

func (a *App) restore(ctx context.Context, token string, grant capabilities.Capability) {
	if err := a.capabilities.Restore(ctx, token, grant); err != nil {
		a.logg.Error(ctx, "capability.restore_failed", err)
	}
}

// withoutControls drops every button bound to token and any row left empty,
// so a list keeps the controls for its other orders.
func withoutControls(components []discordgo.MessageComponent, token string) []discordgo.MessageComponent {
	var out []discordgo.MessageComponent
	for _, component := range components {
		var row discordgo.ActionsRow
		switch c := component.(type) {
		case *discordgo.ActionsRow:
			row = *c
		case discordgo.ActionsRow:
			row = c
		default:
			continue
		}
		kept := discordgo.ActionsRow{}
		for _, inner := range row.Components {
			var customID string
			switch b := inner.(type) {
			case *discordgo.Button:
				customID = b.CustomID
			case discordgo.Button:
				customID = b.CustomID
			}
			if strings.HasSuffix(customID, ":"+token) {
				continue
			}
			kept.Components = append(kept.Components, inner)
		}
		if len(kept.Components) > 0 {
			out = append(out, kept)
		}
	}
	return out
}
