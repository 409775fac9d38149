package notifications

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/angelmondragon/guildmarket/pkg/enums"
	"github.com/angelmondragon/guildmarket/pkg/logger"
	"github.com/angelmondragon/guildmarket/pkg/metrics"
)

// Dispatcher delivers a private message to one member. It never retries.
type Dispatcher interface {
	Notify(ctx context.Context, recipientID string, msg Message) Result
}

// dmSession is the part of *discordgo.Session the dispatcher needs.
type dmSession interface {
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordDispatcher sends direct messages through the bot session.
type DiscordDispatcher struct {
	session dmSession
	logg    *logger.Logger
	metrics *metrics.NotificationMetrics
}

func NewDiscordDispatcher(session dmSession, logg *logger.Logger, m *metrics.NotificationMetrics) (*DiscordDispatcher, error) {
	if session == nil {
		return nil, errors.New("discord session required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &DiscordDispatcher{session: session, logg: logg, metrics: m}, nil
}

func (d *DiscordDispatcher) Notify(ctx context.Context, recipientID string, msg Message) Result {
	ctx = d.logg.WithFields(ctx, map[string]any{
		"recipient_id": recipientID,
		"notification": msg.Title,
	})
	result := d.send(ctx, recipientID, msg)
	d.metrics.Observe(string(result.Status), result.Reason.MetricLabel())

	if result.IsDelivered() {
		d.logg.Info(ctx, "notification delivered")
		return result
	}
	ctx = d.logg.WithField(ctx, "reason", string(result.Reason))
	d.logg.Warn(d.logg.WithField(ctx, "error", errString(result.Err)), "notification undeliverable")
	return result
}

func (d *DiscordDispatcher) send(ctx context.Context, recipientID string, msg Message) Result {
	if recipientID == "" {
		return Undeliverable(enums.ReasonUserUnknown, errors.New("recipient id required"))
	}
	channel, err := d.session.UserChannelCreate(recipientID, discordgo.WithContext(ctx))
	if err != nil {
		return Undeliverable(Classify(err), err)
	}
	_, err = d.session.ChannelMessageSendComplex(channel.ID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{msg.Embed()},
		Components: msg.Components(),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return Undeliverable(Classify(err), err)
	}
	return Delivered()
}

// Classify maps a chat platform failure onto an undeliverable reason.
func Classify(err error) enums.UndeliverableReason {
	if err == nil {
		return enums.ReasonNone
	}

	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		if restErr.Message != nil {
			switch restErr.Message.Code {
			case discordgo.ErrCodeUnknownUser:
				return enums.ReasonUserUnknown
			case discordgo.ErrCodeCannotSendMessagesToThisUser:
				return enums.ReasonBlocked
			}
		}
		if restErr.Response != nil {
			status := restErr.Response.StatusCode
			switch {
			case status == http.StatusForbidden:
				return enums.ReasonBlocked
			case status == http.StatusTooManyRequests, status >= http.StatusInternalServerError:
				return enums.ReasonTransportError
			}
		}
		return enums.ReasonUnknown
	}

	var rateErr *discordgo.RateLimitError
	if errors.As(err, &rateErr) {
		return enums.ReasonTransportError
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return enums.ReasonTransportError
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return enums.ReasonTransportError
	}
	return enums.ReasonUnknown
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
