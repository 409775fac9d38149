package orders

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/guildmarket/pkg/db/models"
	"github.com/angelmondragon/guildmarket/pkg/enums"
)

// Repository persists orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, orderID int64) (*models.Order, error)
	// TransitionFromPending moves a pending order to status and reports
	// whether a row changed. Only one of several racing callers sees 1.
	TransitionFromPending(ctx context.Context, orderID int64, status enums.OrderStatus, updates map[string]any) (int64, error)
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]models.Order, error)
	ListBySupplier(ctx context.Context, supplierID string, limit int) ([]models.Order, error)
	SummarizeSupplier(ctx context.Context, supplierID string) (*SupplierSummary, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, orderID int64) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) TransitionFromPending(ctx context.Context, orderID int64, status enums.OrderStatus, updates map[string]any) (int64, error) {
	values := map[string]any{"status": status}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, enums.OrderStatusPending).
		Updates(values)
	return res.RowsAffected, res.Error
}

func (r *repository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (r *repository) ListBySupplier(ctx context.Context, supplierID string, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("supplier_id = ?", supplierID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (r *repository) SummarizeSupplier(ctx context.Context, supplierID string) (*SupplierSummary, error) {
	var rows []struct {
		Status enums.OrderStatus
		Count  int64
		Total  int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(total_price), 0) AS total").
		Where("supplier_id = ?", supplierID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	summary := &SupplierSummary{}
	for _, row := range rows {
		switch row.Status {
		case enums.OrderStatusPending:
			summary.Pending = row.Count
		case enums.OrderStatusCompleted:
			summary.Completed = row.Count
			summary.Earnings = row.Total
		case enums.OrderStatusCancelled:
			summary.Cancelled = row.Count
		}
	}
	return summary, nil
}
