package bot

import (
	"context"
	"fmt"

	"github.com/angelmondragon/guildmarket/internal/inventory"
	"github.com/angelmondragon/guildmarket/internal/suppliers"
	pkgerrors "github.com/angelmondragon/guildmarket/pkg/errors"
)

const (
	messageAlreadyProcessed = "This order was already processed."
	messageSlowDown         = "You're doing that too often, slow down."
	messageGenericFailure   = "Something went wrong, please try again later."
	messageRegisterFirst    = "You need to register as a supplier first with /supplier register."
)

// userMessage turns a service error into the text shown to the member.
func userMessage(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil {
		return messageGenericFailure
	}
	switch typed.Code() {
	case pkgerrors.CodeStateConflict:
		return messageAlreadyProcessed
	case pkgerrors.CodeRateLimit:
		return messageSlowDown
	case pkgerrors.CodeConflict:
		if d, ok := typed.Details().(inventory.InsufficientStockDetails); ok {
			return fmt.Sprintf("Insufficient stock: %d available, %d requested.", d.Available, d.Requested)
		}
		return capitalize(typed.Message()) + "."
	case pkgerrors.CodeForbidden:
		if typed.Message() == suppliers.MessageNotRegistered {
			return messageRegisterFirst
		}
		return capitalize(typed.Message()) + "."
	case pkgerrors.CodeValidation, pkgerrors.CodeNotFound:
		return capitalize(typed.Message()) + "."
	}
	return messageGenericFailure
}

// logFailure records errors the member cannot fix themselves.
func (a *App) logFailure(ctx context.Context, err error) {
	meta := pkgerrors.MetadataFor(pkgerrors.CodeOf(err))
	if !meta.Retryable {
		a.logg.Debug(a.logg.WithField(ctx, "error", err.Error()), "interaction rejected")
		return
	}
	ctx = a.logg.WithFields(ctx, pkgerrors.Dump(err).LogFields())
	a.logg.Error(ctx, "interaction.error", err)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	if s[0] >= 'a' && s[0] <= 'z' {
		return string(s[0]-'a'+'A') + s[1:]
	}
	return s
}
