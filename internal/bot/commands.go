package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/angelmondragon/guildmarket/internal/capabilities"
	"github.com/angelmondragon/guildmarket/internal/inventory"
	"github.com/angelmondragon/guildmarket/internal/notifications"
	"github.com/angelmondragon/guildmarket/internal/orders"
	"github.com/angelmondragon/guildmarket/pkg/db/models"
	"github.com/angelmondragon/guildmarket/pkg/enums"
	pkgerrors "github.com/angelmondragon/guildmarket/pkg/errors"
)

type commandHandler func(a *App, ctx context.Context, inv *Invocation) (*Reply, error)

// commandTable routes a flattened command name to its handler.
var commandTable = map[string]commandHandler{
	"supplier register":  (*App).supplierRegister,
	"supplier add":       (*App).supplierAdd,
	"supplier update":    (*App).supplierUpdate,
	"supplier merge":     (*App).supplierMerge,
	"supplier remove":    (*App).supplierRemove,
	"supplier inventory": (*App).supplierInventory,
	"catalog":            (*App).catalog,
	"order":              (*App).placeOrder,
	"orders":             (*App).myOrders,
	"received-orders":    (*App).receivedOrders,
	"confirm":            (*App).confirmOrder,
	"cancel":             (*App).cancelOrder,
	"stats":              (*App).marketStats,
	"help":               (*App).help,
}

func (a *App) supplierRegister(ctx context.Context, inv *Invocation) (*Reply, error) {
	supplier, created, err := a.suppliers.Register(ctx, inv.UserID, inv.Username)
	if err != nil {
		return nil, err
	}
	if created {
		return textReply("✅ You are now registered as a supplier, %s!", supplier.Username), nil
	}
	return textReply("✅ Supplier profile updated, %s.", supplier.Username), nil
}

func (a *App) supplierAdd(ctx context.Context, inv *Invocation) (*Reply, error) {
	var req addListingRequest
	if err := inv.bind(&req); err != nil {
		return nil, err
	}
	if err := a.validate(req); err != nil {
		return nil, err
	}
	input := inventory.UpsertListingInput{
		SupplierID: inv.UserID,
		Name:       req.Name,
		Quantity:   int(req.Quantity),
		Price:      req.Price,
	}
	if req.Description != "" {
		input.Description = &req.Description
	}
	res, err := a.inventory.UpsertListing(ctx, input)
	if err != nil {
		return nil, err
	}

	item := res.Item
	embed := &discordgo.MessageEmbed{Color: notifications.ColorSuccess}
	if res.Merged {
		embed.Title = fmt.Sprintf("Updated %s", item.ItemName)
		embed.Fields = []*discordgo.MessageEmbedField{
			{Name: "Quantity", Value: fmt.Sprintf("%d → %d", res.PreviousQuantity, item.Quantity), Inline: true},
			{Name: "Price", Value: fmt.Sprintf("%s → %s", notifications.FormatPrice(res.PreviousPrice), notifications.FormatPrice(item.Price)), Inline: true},
		}
	} else {
		embed.Title = fmt.Sprintf("Added %s", item.ItemName)
		embed.Fields = []*discordgo.MessageEmbedField{
			{Name: "Quantity", Value: fmt.Sprintf("%d", item.Quantity), Inline: true},
			{Name: "Price", Value: notifications.FormatPrice(item.Price), Inline: true},
		}
	}
	embed.Footer = &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Item #%d", item.ID)}
	return &Reply{Embeds: []*discordgo.MessageEmbed{embed}}, nil
}

func (a *App) supplierUpdate(ctx context.Context, inv *Invocation) (*Reply, error) {
	var req updateListingRequest
	if err := inv.bind(&req); err != nil {
		return nil, err
	}
	if err := a.validate(req); err != nil {
		return nil, err
	}
	patch := inventory.ListingPatch{ItemID: req.ItemID, SupplierID: inv.UserID, Price: req.Price}
	if req.Quantity != nil {
		qty := int(*req.Quantity)
		patch.Quantity = &qty
	}
	res, err := a.inventory.ApplyPatch(ctx, patch)
	if err != nil {
		return nil, err
	}

	embed := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("Updated #%d %s", res.After.ID, res.After.ItemName),
		Color: notifications.ColorSuccess,
	}
	for _, field := range res.Fields {
		switch field {
		case "quantity":
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name: "Quantity", Value: fmt.Sprintf("%d → %d", res.Before.Quantity, res.After.Quantity), Inline: true,
			})
		case "price":
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name:   "Price",
				Value:  fmt.Sprintf("%s → %s", notifications.FormatPrice(res.Before.Price), notifications.FormatPrice(res.After.Price)),
				Inline: true,
			})
		}
	}
	return &Reply{Embeds: []*discordgo.MessageEmbed{embed}}, nil
}

func (a *App) supplierMerge(ctx context.Context, inv *Invocation) (*Reply, error) {
	var req mergeRequest
	if err := inv.bind(&req); err != nil {
		return nil, err
	}
	if err := a.validate(req); err != nil {
		return nil, err
	}
	res, err := a.inventory.MergeDuplicates(ctx, inv.UserID, req.Name)
	if err != nil {
		return nil, err
	}
	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Merged %s", res.Item.ItemName),
		Description: fmt.Sprintf("%d duplicate listings folded into #%d.", res.RemovedCount, res.KeptID),
		Color:       notifications.ColorSuccess,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Quantity", Value: fmt.Sprintf("%d", res.Item.Quantity), Inline: true},
			{Name: "Price", Value: notifications.FormatPrice(res.Item.Price), Inline: true},
		},
	}
	return &Reply{Embeds: []*discordgo.MessageEmbed{embed}}, nil
}

func (a *App) supplierRemove(ctx context.Context, inv *Invocation) (*Reply, error) {
	var req itemRequest
	if err := inv.bind(&req); err != nil {
		return nil, err
	}
	if err := a.validate(req); err != nil {
		return nil, err
	}
	if err := a.inventory.Remove(ctx, req.ItemID, inv.UserID); err != nil {
		return nil, err
	}
	return textReply("✅ Item #%d removed from your inventory.", req.ItemID), nil
}

func (a *App) supplierInventory(ctx context.Context, inv *Invocation) (*Reply, error) {
	items, err := a.inventory.ListForSupplier(ctx, inv.UserID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return textReply("📦 Your inventory is empty."), nil
	}
	fields := make([]*discordgo.MessageEmbedField, 0, len(items))
	for _, item := range items {
		fields = append(fields, listingField(item, ""))
	}
	embeds, truncated := fieldEmbeds("📦 Your inventory", notifications.ColorInfo, fields)
	reply := &Reply{Embeds: embeds}
	if truncated {
		reply.Content = "Showing the first listings only."
	}
	return reply, nil
}

func (a *App) catalog(ctx context.Context, _ *Invocation) (*Reply, error) {
	rows, err := a.inventory.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return textReply("🏪 No items available right now."), nil
	}
	fields := make([]*discordgo.MessageEmbedField, 0, len(rows))
	for _, row := range rows {
		fields = append(fields, listingField(row.InventoryItem, row.SupplierName))
	}
	embeds, truncated := fieldEmbeds("🏪 Guild catalog", notifications.ColorInfo, fields)
	reply := &Reply{Embeds: embeds}
	if truncated {
		reply.Content = "Showing the first listings only."
	}
	return reply, nil
}

func (a *App) placeOrder(ctx context.Context, inv *Invocation) (*Reply, error) {
	var req placeOrderRequest
	if err := inv.bind(&req); err != nil {
		return nil, err
	}
	if err := a.validate(req); err != nil {
		return nil, err
	}
	res, err := a.orders.Place(ctx, orders.PlaceInput{
		CustomerID:   inv.UserID,
		ItemID:       req.ItemID,
		Quantity:     int(req.Quantity),
		Location:     req.Location,
		DeliveryTime: req.DeliveryTime,
	})
	if err != nil {
		return nil, err
	}
	order := res.Order
	embed := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("Order #%d placed", order.ID),
		Color: notifications.ColorWarning,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Item", Value: fmt.Sprintf("%s × %d", order.ItemName, order.Quantity), Inline: true},
			{Name: "Total", Value: notifications.FormatPrice(order.TotalPrice), Inline: true},
			{Name: "Supplier", Value: fmt.Sprintf("%s (%s)", res.SupplierName, notifications.Mention(res.SupplierID)), Inline: true},
		},
	}
	return &Reply{
		Content: deliveryNote(res.Delivery, "supplier", res.SupplierID),
		Embeds:  []*discordgo.MessageEmbed{embed},
	}, nil
}

// myOrders lists the caller's recent orders: pending ones with cancel
// controls, then a short history.
func (a *App) myOrders(ctx context.Context, inv *Invocation) (*Reply, error) {
	list, err := a.orders.ListForCustomer(ctx, inv.UserID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return textReply("📝 You have not placed any orders yet."), nil
	}

	var pending, history []*discordgo.MessageEmbedField
	var buttons []notifications.Button
	controlsFailed := false
	for _, order := range list {
		if order.Status != enums.OrderStatusPending {
			if len(history) < historyEntries {
				history = append(history, orderField(order, "Supplier", order.SupplierID))
			}
			continue
		}
		pending = append(pending, orderField(order, "Supplier", order.SupplierID))
		token, err := a.issueControl(ctx, order, enums.ActorRoleCustomer, inv.UserID)
		if err != nil {
			controlsFailed = true
			continue
		}
		buttons = append(buttons, notifications.Button{
			Label:    fmt.Sprintf("Cancel #%d", order.ID),
			CustomID: capabilities.CustomID(enums.OrderActionCancel, token),
			Style:    notifications.ButtonDanger,
		})
	}

	reply := &Reply{Components: notifications.ButtonRows(buttons)}
	if len(pending) > 0 {
		reply.Embeds = append(reply.Embeds, &discordgo.MessageEmbed{
			Title: "⏳ Pending orders", Color: notifications.ColorWarning, Fields: pending,
		})
	}
	if len(history) > 0 {
		reply.Embeds = append(reply.Embeds, &discordgo.MessageEmbed{
			Title: "📜 Recent orders", Color: notifications.ColorInfo, Fields: history,
		})
	}
	if controlsFailed {
		reply.Content = "Some controls are unavailable, use /cancel with the order id."
	}
	return reply, nil
}

// receivedOrders shows a supplier their queue: up to five pending orders
// with controls, plus all-time completed and cancelled totals.
func (a *App) receivedOrders(ctx context.Context, inv *Invocation) (*Reply, error) {
	list, err := a.orders.ListForSupplier(ctx, inv.UserID)
	if err != nil {
		return nil, err
	}
	summary, err := a.orders.SupplierSummary(ctx, inv.UserID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return textReply("📝 You have not received any orders yet."), nil
	}

	var pending []*discordgo.MessageEmbedField
	var buttons []notifications.Button
	controlsFailed := false
	for _, order := range list {
		if order.Status != enums.OrderStatusPending || len(pending) == pendingWithButton {
			continue
		}
		pending = append(pending, orderField(order, "Customer", order.CustomerID))
		token, err := a.issueControl(ctx, order, enums.ActorRoleSupplier, inv.UserID)
		if err != nil {
			controlsFailed = true
			continue
		}
		buttons = append(buttons,
			notifications.Button{
				Label:    fmt.Sprintf("Confirm #%d", order.ID),
				CustomID: capabilities.CustomID(enums.OrderActionConfirm, token),
				Style:    notifications.ButtonSuccess,
			},
			notifications.Button{
				Label:    fmt.Sprintf("Cancel #%d", order.ID),
				CustomID: capabilities.CustomID(enums.OrderActionCancel, token),
				Style:    notifications.ButtonDanger,
			},
		)
	}

	reply := &Reply{Components: notifications.ButtonRows(buttons)}
	if len(pending) > 0 {
		reply.Embeds = append(reply.Embeds, &discordgo.MessageEmbed{
			Title:       "⏳ Orders to handle",
			Description: fmt.Sprintf("You have %d pending orders.", summary.Pending),
			Color:       notifications.ColorWarning,
			Fields:      pending,
		})
	}
	reply.Embeds = append(reply.Embeds, &discordgo.MessageEmbed{
		Title: "📊 Order history",
		Color: notifications.ColorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Completed", Value: fmt.Sprintf("%d", summary.Completed), Inline: true},
			{Name: "Earnings", Value: notifications.FormatPrice(summary.Earnings), Inline: true},
			{Name: "Cancelled", Value: fmt.Sprintf("%d", summary.Cancelled), Inline: true},
		},
	})
	if controlsFailed {
		reply.Content = "Some controls are unavailable, use /confirm or /cancel with the order id."
	}
	return reply, nil
}

func (a *App) confirmOrder(ctx context.Context, inv *Invocation) (*Reply, error) {
	var req orderRequest
	if err := inv.bind(&req); err != nil {
		return nil, err
	}
	if err := a.validate(req); err != nil {
		return nil, err
	}
	res, err := a.orders.Confirm(ctx, orders.TransitionInput{OrderID: req.OrderID, ActorID: inv.UserID})
	if err != nil {
		return nil, err
	}
	return transitionReply(res), nil
}

func (a *App) cancelOrder(ctx context.Context, inv *Invocation) (*Reply, error) {
	var req orderRequest
	if err := inv.bind(&req); err != nil {
		return nil, err
	}
	if err := a.validate(req); err != nil {
		return nil, err
	}
	res, err := a.orders.Cancel(ctx, orders.TransitionInput{OrderID: req.OrderID, ActorID: inv.UserID})
	if err != nil {
		return nil, err
	}
	return transitionReply(res), nil
}

func transitionReply(res *orders.TransitionResult) *Reply {
	party := "customer"
	if res.ActorRole == enums.ActorRoleCustomer {
		party = "supplier"
	}
	verb := "cancelled"
	icon := "❌"
	if res.Order.Status == enums.OrderStatusCompleted {
		verb = "completed"
		icon = "✅"
	}
	lines := []string{fmt.Sprintf("%s Order #%d %s.", icon, res.Order.ID, verb)}
	if note := deliveryNote(res.Delivery, party, res.NotifiedID); note != "" {
		lines = append(lines, note)
	}
	return &Reply{Content: strings.Join(lines, "\n")}
}

func (a *App) marketStats(ctx context.Context, inv *Invocation) (*Reply, error) {
	if !inv.IsAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "administrator permission required")
	}
	snap, err := a.stats.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	embed := &discordgo.MessageEmbed{
		Title: "📊 Marketplace stats",
		Color: notifications.ColorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Suppliers", Value: fmt.Sprintf("%d", snap.Suppliers), Inline: true},
			{Name: "Listings in stock", Value: fmt.Sprintf("%d", snap.ActiveListings), Inline: true},
			{Name: "Orders", Value: fmt.Sprintf("%d", snap.TotalOrders), Inline: true},
			{Name: "Pending", Value: fmt.Sprintf("%d", snap.PendingOrders), Inline: true},
			{Name: "Completed", Value: fmt.Sprintf("%d", snap.CompletedOrders), Inline: true},
			{Name: "Cancelled", Value: fmt.Sprintf("%d", snap.CancelledOrders), Inline: true},
			{Name: "Gross volume", Value: notifications.FormatPrice(snap.GrossVolume), Inline: true},
			{Name: "Completed volume", Value: notifications.FormatPrice(snap.CompletedVolume), Inline: true},
			{Name: "Average completed order", Value: snap.AverageCompletedOrder.StringFixed(2) + " " + notifications.CurrencySymbol, Inline: true},
		},
	}
	return &Reply{Embeds: []*discordgo.MessageEmbed{embed}}, nil
}

func (a *App) help(_ context.Context, _ *Invocation) (*Reply, error) {
	embed := &discordgo.MessageEmbed{
		Title:       "🛒 Guild marketplace",
		Description: "Buy and sell items between guild members.",
		Color:       notifications.ColorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name: "Suppliers",
				Value: strings.Join([]string{
					"`/supplier register` register as a supplier",
					"`/supplier add` add stock or create a listing",
					"`/supplier update` change quantity or price",
					"`/supplier merge` fold duplicate listings together",
					"`/supplier remove` delete a listing",
					"`/supplier inventory` show your listings",
					"`/received-orders` orders waiting for you",
				}, "\n"),
			},
			{
				Name: "Customers",
				Value: strings.Join([]string{
					"`/catalog` browse everything in stock",
					"`/order` buy an item",
					"`/orders` your orders",
				}, "\n"),
			},
			{
				Name: "Orders",
				Value: strings.Join([]string{
					"`/confirm` mark an order you supplied as delivered",
					"`/cancel` cancel a pending order",
				}, "\n"),
			},
		},
	}
	return &Reply{Embeds: []*discordgo.MessageEmbed{embed}}, nil
}

func (a *App) issueControl(ctx context.Context, order models.Order, role enums.ActorRole, actorID string) (string, error) {
	token, err := a.capabilities.Issue(ctx, capabilities.Capability{OrderID: order.ID, Role: role, ActorID: actorID})
	if err != nil {
		a.logg.Warn(a.logg.WithFields(ctx, map[string]any{"order_id": order.ID, "error": err.Error()}), "order control unavailable")
	}
	return token, err
}
