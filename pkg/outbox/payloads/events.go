package payloads

import (
	"time"

	"github.com/angelmondragon/guildmarket/pkg/enums"
)

// SupplierRegisteredEvent is emitted the first time a member registers.
type SupplierRegisteredEvent struct {
	SupplierID string `json:"supplier_id"`
	Username   string `json:"username"`
}

// ListingUpsertedEvent covers both new listings and quantity top-ups.
type ListingUpsertedEvent struct {
	ItemID           int64  `json:"item_id"`
	SupplierID       string `json:"supplier_id"`
	ItemName         string `json:"item_name"`
	Quantity         int    `json:"quantity"`
	Price            int64  `json:"price"`
	Merged           bool   `json:"merged"`
	PreviousQuantity int    `json:"previous_quantity"`
}

// ListingUpdatedEvent reports a field patch.
type ListingUpdatedEvent struct {
	ItemID     int64    `json:"item_id"`
	SupplierID string   `json:"supplier_id"`
	Fields     []string `json:"fields"`
	Quantity   int      `json:"quantity"`
	Price      int64    `json:"price"`
}

// ListingsMergedEvent reports a duplicate collapse.
type ListingsMergedEvent struct {
	KeptItemID     int64   `json:"kept_item_id"`
	RemovedItemIDs []int64 `json:"removed_item_ids"`
	SupplierID     string  `json:"supplier_id"`
	ItemName       string  `json:"item_name"`
	Quantity       int     `json:"quantity"`
	Price          int64   `json:"price"`
}

// ListingRemovedEvent is emitted when a supplier deletes a listing.
type ListingRemovedEvent struct {
	ItemID     int64  `json:"item_id"`
	SupplierID string `json:"supplier_id"`
	ItemName   string `json:"item_name"`
}

// OrderPlacedEvent carries the immutable terms of a new order.
type OrderPlacedEvent struct {
	OrderID      int64  `json:"order_id"`
	CustomerID   string `json:"customer_id"`
	SupplierID   string `json:"supplier_id"`
	ItemID       int64  `json:"item_id"`
	ItemName     string `json:"item_name"`
	Quantity     int    `json:"quantity"`
	TotalPrice   int64  `json:"total_price"`
	Location     string `json:"location"`
	DeliveryTime string `json:"delivery_time"`
}

// OrderCompletedEvent is emitted when the supplier confirms delivery.
type OrderCompletedEvent struct {
	OrderID     int64     `json:"order_id"`
	CustomerID  string    `json:"customer_id"`
	SupplierID  string    `json:"supplier_id"`
	TotalPrice  int64     `json:"total_price"`
	CompletedAt time.Time `json:"completed_at"`
}

// OrderCancelledEvent is emitted when either party cancels a pending order.
type OrderCancelledEvent struct {
	OrderID          int64           `json:"order_id"`
	CustomerID       string          `json:"customer_id"`
	SupplierID       string          `json:"supplier_id"`
	CancelledBy      enums.ActorRole `json:"cancelled_by"`
	ReleasedQuantity int             `json:"released_quantity"`
	CancelledAt      time.Time       `json:"cancelled_at"`
}
