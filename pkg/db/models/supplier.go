package models

import "time"

// Supplier is a guild member allowed to list inventory and receive orders.
type Supplier struct {
	UserID    string    `gorm:"column:user_id;type:text;primaryKey"`
	Username  string    `gorm:"column:username;type:text;not null"`
	Active    bool      `gorm:"column:active;not null;default:true"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Supplier) TableName() string { return "suppliers" }
