package models

import (
	"time"

	"github.com/angelmondragon/guildmarket/pkg/enums"
)

// Order is a single-item purchase. SupplierID, ItemName and TotalPrice are
// captured at placement and never change afterwards.
type Order struct {
	ID           int64             `gorm:"column:id;primaryKey;autoIncrement"`
	CustomerID   string            `gorm:"column:customer_id;type:text;not null;index:idx_orders_customer"`
	SupplierID   string            `gorm:"column:supplier_id;type:text;not null;index:idx_orders_supplier"`
	ItemID       *int64            `gorm:"column:item_id"`
	ItemName     string            `gorm:"column:item_name;type:text;not null"`
	Quantity     int               `gorm:"column:quantity;not null;check:chk_orders_quantity,quantity > 0"`
	TotalPrice   int64             `gorm:"column:total_price;not null;check:chk_orders_total,total_price >= 0"`
	Location     string            `gorm:"column:location;type:text;not null"`
	DeliveryTime string            `gorm:"column:delivery_time;type:text;not null"`
	Status       enums.OrderStatus `gorm:"column:status;type:text;not null;default:pending"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime"`
	CompletedAt  *time.Time        `gorm:"column:completed_at"`
	CancelledAt  *time.Time        `gorm:"column:cancelled_at"`
	CancelledBy  *enums.ActorRole  `gorm:"column:cancelled_by;type:text"`
}

func (Order) TableName() string { return "orders" }
