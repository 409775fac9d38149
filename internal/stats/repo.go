package stats

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/guildmarket/pkg/db/models"
	"github.com/angelmondragon/guildmarket/pkg/enums"
)

// StatusTotals is one row of the per-status order aggregate.
type StatusTotals struct {
	Status enums.OrderStatus
	Count  int64
	Volume int64
}

type Repository interface {
	CountSuppliers(ctx context.Context) (int64, error)
	CountActiveListings(ctx context.Context) (int64, error)
	OrderTotalsByStatus(ctx context.Context) ([]StatusTotals, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CountSuppliers(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Supplier{}).Count(&count).Error
	return count, err
}

func (r *repository) CountActiveListings(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("quantity > 0").
		Count(&count).Error
	return count, err
}

func (r *repository) OrderTotalsByStatus(ctx context.Context) ([]StatusTotals, error) {
	var rows []StatusTotals
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(total_price), 0) AS volume").
		Group("status").
		Scan(&rows).Error
	return rows, err
}
