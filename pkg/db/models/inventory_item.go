package models

import "time"

// InventoryItem is a supplier listing. Quantity is the stock still available
// for new orders; reservations decrement it directly.
type InventoryItem struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	SupplierID  string    `gorm:"column:supplier_id;type:text;not null;index:idx_inventory_supplier"`
	ItemName    string    `gorm:"column:item_name;type:text;not null"`
	Quantity    int       `gorm:"column:quantity;not null;default:0;check:chk_inventory_quantity,quantity >= 0"`
	Price       int64     `gorm:"column:price;not null;default:0;check:chk_inventory_price,price >= 0"`
	Description *string   `gorm:"column:description;type:text"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (InventoryItem) TableName() string { return "inventory" }

// InventoryItemWithSupplier is an item joined with its owner's display name.
type InventoryItemWithSupplier struct {
	InventoryItem
	SupplierName   string `gorm:"column:supplier_name"`
	SupplierActive bool   `gorm:"column:supplier_active"`
}
