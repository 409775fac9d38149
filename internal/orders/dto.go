package orders

import (
	"github.com/angelmondragon/guildmarket/internal/notifications"
	"github.com/angelmondragon/guildmarket/pkg/db/models"
	"github.com/angelmondragon/guildmarket/pkg/enums"
)

// PlaceInput is a customer's request to buy one listing.
type PlaceInput struct {
	CustomerID   string
	ItemID       int64
	Quantity     int
	Location     string
	DeliveryTime string
}

// PlaceResult carries the stored order and how the supplier notification went.
type PlaceResult struct {
	Order        models.Order
	SupplierID   string
	SupplierName string
	Delivery     notifications.Result
}

// TransitionInput identifies who is acting on which order. ExpectedRole is
// set when the request came through a capability token and must match the
// actor's relation to the order.
type TransitionInput struct {
	OrderID      int64
	ActorID      string
	ExpectedRole enums.ActorRole
}

// TransitionResult reports the order after a confirm or cancel.
type TransitionResult struct {
	Order     models.Order
	ActorRole enums.ActorRole
	// NotifiedID is the member the follow-up message was addressed to.
	NotifiedID string
	Delivery   notifications.Result
}

// SupplierSummary aggregates a supplier's orders across all time.
type SupplierSummary struct {
	Pending   int64
	Completed int64
	Cancelled int64
	Earnings  int64
}
