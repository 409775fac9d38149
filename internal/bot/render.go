package bot

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/angelmondragon/guildmarket/internal/notifications"
	"github.com/angelmondragon/guildmarket/pkg/db/models"
	"github.com/angelmondragon/guildmarket/pkg/enums"
)

const (
	maxEmbedFields    = 25
	maxEmbeds         = 10
	maxFieldValueLen  = 1024
	historyEntries    = 5
	pendingWithButton = 5
)

// Reply is what a handler wants shown. Update replaces the message the
// button was attached to instead of posting a new one.
type Reply struct {
	Content    string
	Embeds     []*discordgo.MessageEmbed
	Components []discordgo.MessageComponent
	Update     bool
}

func textReply(format string, args ...any) *Reply {
	return &Reply{Content: fmt.Sprintf(format, args...)}
}

func (r *Reply) response() *discordgo.InteractionResponse {
	if r.Update {
		components := r.Components
		if components == nil {
			components = []discordgo.MessageComponent{}
		}
		return &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseUpdateMessage,
			Data: &discordgo.InteractionResponseData{
				Content:    r.Content,
				Embeds:     r.Embeds,
				Components: components,
			},
		}
	}
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:    r.Content,
			Embeds:     r.Embeds,
			Components: r.Components,
			Flags:      discordgo.MessageFlagsEphemeral,
		},
	}
}

func errorResponse(msg string) *discordgo.InteractionResponse {
	return (&Reply{Content: "❌ " + msg}).response()
}

// deliveryNote tells the actor whether the other party got the DM.
func deliveryNote(res notifications.Result, party, userID string) string {
	switch res.Status {
	case enums.DeliveryStatusDelivered:
		return fmt.Sprintf("The %s has been notified.", party)
	case enums.DeliveryStatusUndeliverable:
		return fmt.Sprintf("Could not DM the %s (%s), contact %s manually.",
			party, res.Reason.Label(), notifications.Mention(userID))
	}
	return ""
}

// fieldEmbeds spreads fields over as many embeds as the platform allows.
// The returned bool reports whether fields were dropped.
func fieldEmbeds(title string, color int, fields []*discordgo.MessageEmbedField) ([]*discordgo.MessageEmbed, bool) {
	var embeds []*discordgo.MessageEmbed
	for start := 0; start < len(fields); start += maxEmbedFields {
		if len(embeds) == maxEmbeds {
			return embeds, true
		}
		end := start + maxEmbedFields
		if end > len(fields) {
			end = len(fields)
		}
		embed := &discordgo.MessageEmbed{Color: color, Fields: fields[start:end]}
		if start == 0 {
			embed.Title = title
		}
		embeds = append(embeds, embed)
	}
	return embeds, false
}

func listingField(item models.InventoryItem, supplierName string) *discordgo.MessageEmbedField {
	lines := []string{
		fmt.Sprintf("Price: %s", notifications.FormatPrice(item.Price)),
		fmt.Sprintf("Available: %d", item.Quantity),
	}
	if supplierName != "" {
		lines = append(lines, fmt.Sprintf("Supplier: %s", supplierName))
	}
	if item.Description != nil && *item.Description != "" {
		lines = append(lines, "*"+*item.Description+"*")
	}
	return &discordgo.MessageEmbedField{
		Name:  fmt.Sprintf("#%d %s", item.ID, item.ItemName),
		Value: truncate(strings.Join(lines, "\n"), maxFieldValueLen),
	}
}

func orderField(order models.Order, counterpartLabel, counterpartID string) *discordgo.MessageEmbedField {
	lines := []string{
		fmt.Sprintf("%s × %d · %s", order.ItemName, order.Quantity, notifications.FormatPrice(order.TotalPrice)),
		fmt.Sprintf("%s: %s", counterpartLabel, notifications.Mention(counterpartID)),
		fmt.Sprintf("Location: %s · Time: %s", order.Location, order.DeliveryTime),
	}
	return &discordgo.MessageEmbedField{
		Name:  fmt.Sprintf("#%d · %s %s", order.ID, statusIcon(order.Status), order.Status),
		Value: truncate(strings.Join(lines, "\n"), maxFieldValueLen),
	}
}

func statusIcon(status enums.OrderStatus) string {
	switch status {
	case enums.OrderStatusPending:
		return "⏳"
	case enums.OrderStatusCompleted:
		return "✅"
	case enums.OrderStatusCancelled:
		return "❌"
	}
	return "•"
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
