package notifications

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/angelmondragon/guildmarket/pkg/db/models"
)

const (
	ColorInfo    = 0x3498DB
	ColorSuccess = 0x2ECC71
	ColorWarning = 0xF1C40F
	ColorDanger  = 0xE74C3C
)

// MaxButtonsPerRow is the chat platform's limit for one action row.
const MaxButtonsPerRow = 5

type ButtonStyle int

const (
	ButtonPrimary ButtonStyle = iota
	ButtonSuccess
	ButtonDanger
	ButtonSecondary
)

// Message is transport neutral. The Discord dispatcher and the interaction
// renderer both turn it into an embed plus an optional row of buttons.
type Message struct {
	Title       string
	Description string
	Color       int
	Fields      []Field
	Buttons     []Button
}

type Field struct {
	Name   string
	Value  string
	Inline bool
}

type Button struct {
	Label    string
	CustomID string
	Style    ButtonStyle
}

func ConfirmButton(customID string) Button {
	return Button{Label: "Confirm", CustomID: customID, Style: ButtonSuccess}
}

func CancelButton(customID string) Button {
	return Button{Label: "Cancel", CustomID: customID, Style: ButtonDanger}
}

// Mention formats a user id as a chat mention.
func Mention(userID string) string {
	return "<@" + userID + ">"
}

// SupplierNewOrder tells a supplier about a new pending order.
func SupplierNewOrder(order models.Order, controls ...Button) Message {
	return Message{
		Title:       fmt.Sprintf("New order #%d", order.ID),
		Description: fmt.Sprintf("%s ordered from you.", Mention(order.CustomerID)),
		Color:       ColorWarning,
		Fields:      orderFields(order),
		Buttons:     controls,
	}
}

func CustomerOrderCompleted(order models.Order) Message {
	return Message{
		Title:       fmt.Sprintf("Order #%d completed", order.ID),
		Description: fmt.Sprintf("%s confirmed your order.", Mention(order.SupplierID)),
		Color:       ColorSuccess,
		Fields:      orderFields(order),
	}
}

func CustomerOrderCancelledBySupplier(order models.Order) Message {
	return Message{
		Title:       fmt.Sprintf("Order #%d cancelled", order.ID),
		Description: fmt.Sprintf("%s cancelled your order.", Mention(order.SupplierID)),
		Color:       ColorDanger,
		Fields:      orderFields(order),
	}
}

func SupplierOrderCancelledByCustomer(order models.Order) Message {
	return Message{
		Title:       fmt.Sprintf("Order #%d cancelled", order.ID),
		Description: fmt.Sprintf("%s cancelled their order. The stock is back in your inventory.", Mention(order.CustomerID)),
		Color:       ColorDanger,
		Fields:      orderFields(order),
	}
}

func orderFields(order models.Order) []Field {
	return []Field{
		{Name: "Item", Value: fmt.Sprintf("%s × %d", order.ItemName, order.Quantity), Inline: true},
		{Name: "Total", Value: FormatPrice(order.TotalPrice), Inline: true},
		{Name: "Location", Value: order.Location, Inline: true},
		{Name: "Delivery time", Value: order.DeliveryTime, Inline: true},
	}
}

// Embed converts the message into a Discord embed.
func (m Message) Embed() *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       m.Title,
		Description: m.Description,
		Color:       m.Color,
	}
	for _, f := range m.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Inline,
		})
	}
	return embed
}

// Components returns the message buttons laid out in rows, or nil when there
// are no buttons.
func (m Message) Components() []discordgo.MessageComponent {
	return ButtonRows(m.Buttons)
}

// ButtonRows packs buttons into action rows of at most MaxButtonsPerRow.
func ButtonRows(buttons []Button) []discordgo.MessageComponent {
	if len(buttons) == 0 {
		return nil
	}
	var rows []discordgo.MessageComponent
	for start := 0; start < len(buttons); start += MaxButtonsPerRow {
		end := start + MaxButtonsPerRow
		if end > len(buttons) {
			end = len(buttons)
		}
		row := discordgo.ActionsRow{}
		for _, b := range buttons[start:end] {
			row.Components = append(row.Components, discordgo.Button{
				Label:    b.Label,
				CustomID: b.CustomID,
				Style:    b.Style.discord(),
			})
		}
		rows = append(rows, row)
	}
	return rows
}

func (s ButtonStyle) discord() discordgo.ButtonStyle {
	switch s {
	case ButtonSuccess:
		return discordgo.SuccessButton
	case ButtonDanger:
		return discordgo.DangerButton
	case ButtonSecondary:
		return discordgo.SecondaryButton
	default:
		return discordgo.PrimaryButton
	}
}
