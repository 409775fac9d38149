package inventory

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/guildmarket/pkg/db/models"
)

// Repository persists supplier listings. Every method runs on the handle the
// repository was bound with, so WithTx(tx) keeps work inside the caller's
// transaction.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, item *models.InventoryItem) error
	FindByID(ctx context.Context, itemID int64) (*models.InventoryItem, error)
	FindOwned(ctx context.Context, itemID int64, supplierID string) (*models.InventoryItem, error)
	FindByName(ctx context.Context, supplierID, name string, lock bool) ([]models.InventoryItem, error)
	FindWithSupplier(ctx context.Context, itemID int64) (*models.InventoryItemWithSupplier, error)
	Update(ctx context.Context, itemID int64, updates map[string]any) error
	UpdateOwned(ctx context.Context, itemID int64, supplierID string, updates map[string]any) (int64, error)
	Decrement(ctx context.Context, itemID int64, qty int) (int64, error)
	Increment(ctx context.Context, itemID int64, qty int) (int64, error)
	DeleteOwned(ctx context.Context, itemID int64, supplierID string) (int64, error)
	DeleteByIDs(ctx context.Context, ids []int64) error
	RepointOrders(ctx context.Context, fromIDs []int64, toID int64) error
	DetachOrders(ctx context.Context, itemID int64) error
	ListBySupplier(ctx context.Context, supplierID string) ([]models.InventoryItem, error)
	ListAvailable(ctx context.Context) ([]models.InventoryItemWithSupplier, error)
	CountAvailable(ctx context.Context) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an inventory repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, item *models.InventoryItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *repository) FindByID(ctx context.Context, itemID int64) (*models.InventoryItem, error) {
	var item models.InventoryItem
	if err := r.db.WithContext(ctx).Where("id = ?", itemID).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) FindOwned(ctx context.Context, itemID int64, supplierID string) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := r.db.WithContext(ctx).
		Where("id = ? AND supplier_id = ?", itemID, supplierID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// FindByName matches names under Unicode case folding and returns rows in
// insertion order. SQLite's lower() is ASCII-only, so folding is done in Go.
func (r *repository) FindByName(ctx context.Context, supplierID, name string, lock bool) ([]models.InventoryItem, error) {
	q := r.db.WithContext(ctx).
		Where("supplier_id = ?", supplierID).
		Order("id ASC")
	if lock {
		q = forUpdate(q)
	}
	var items []models.InventoryItem
	if err := q.Find(&items).Error; err != nil {
		return nil, err
	}
	matches := items[:0]
	for _, item := range items {
		if strings.EqualFold(strings.TrimSpace(item.ItemName), name) {
			matches = append(matches, item)
		}
	}
	return matches, nil
}

func (r *repository) FindWithSupplier(ctx context.Context, itemID int64) (*models.InventoryItemWithSupplier, error) {
	var row models.InventoryItemWithSupplier
	err := r.db.WithContext(ctx).
		Table("inventory AS i").
		Select("i.*, s.username AS supplier_name, s.active AS supplier_active").
		Joins("JOIN suppliers s ON s.user_id = i.supplier_id").
		Where("i.id = ?", itemID).
		Take(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) Update(ctx context.Context, itemID int64, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("id = ?", itemID).
		Updates(updates).Error
}

func (r *repository) UpdateOwned(ctx context.Context, itemID int64, supplierID string, updates map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("id = ? AND supplier_id = ?", itemID, supplierID).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// Decrement subtracts qty only while enough stock remains. Zero rows affected
// means the item is missing or short.
func (r *repository) Decrement(ctx context.Context, itemID int64, qty int) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("id = ? AND quantity >= ?", itemID, qty).
		Updates(map[string]any{
			"quantity":   gorm.Expr("quantity - ?", qty),
			"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) Increment(ctx context.Context, itemID int64, qty int) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("id = ?", itemID).
		Updates(map[string]any{
			"quantity":   gorm.Expr("quantity + ?", qty),
			"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) DeleteOwned(ctx context.Context, itemID int64, supplierID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND supplier_id = ?", itemID, supplierID).
		Delete(&models.InventoryItem{})
	return res.RowsAffected, res.Error
}

func (r *repository) DeleteByIDs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.InventoryItem{}).Error
}

func (r *repository) RepointOrders(ctx context.Context, fromIDs []int64, toID int64) error {
	if len(fromIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("item_id IN ?", fromIDs).
		Update("item_id", toID).Error
}

// DetachOrders clears the item reference on historical orders. The
// migration's ON DELETE SET NULL does the same on Postgres; SQLite schemas
// built from the models rely on this call.
func (r *repository) DetachOrders(ctx context.Context, itemID int64) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("item_id = ?", itemID).
		Update("item_id", nil).Error
}

func (r *repository) ListBySupplier(ctx context.Context, supplierID string) ([]models.InventoryItem, error) {
	var items []models.InventoryItem
	err := r.db.WithContext(ctx).
		Where("supplier_id = ? AND quantity > 0", supplierID).
		Order("item_name ASC").
		Order("id ASC").
		Find(&items).Error
	return items, err
}

func (r *repository) ListAvailable(ctx context.Context) ([]models.InventoryItemWithSupplier, error) {
	var rows []models.InventoryItemWithSupplier
	err := r.db.WithContext(ctx).
		Table("inventory AS i").
		Select("i.*, s.username AS supplier_name, s.active AS supplier_active").
		Joins("JOIN suppliers s ON s.user_id = i.supplier_id").
		Where("i.quantity > 0 AND s.active = ?", true).
		Order("i.item_name ASC").
		Order("i.id ASC").
		Scan(&rows).Error
	return rows, err
}

func (r *repository) CountAvailable(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("quantity > 0").
		Count(&count).Error
	return count, err
}

// forUpdate adds a row lock where the dialect supports one. SQLite serializes
// writers at the database level instead.
func forUpdate(q *gorm.DB) *gorm.DB {
	if q.Dialector != nil && q.Dialector.Name() == "postgres" {
		return q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}
