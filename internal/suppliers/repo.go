package suppliers

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/guildmarket/pkg/db/models"
)

// Repository persists supplier registrations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, userID string) (*models.Supplier, error)
	FindByIDForUpdate(ctx context.Context, userID string) (*models.Supplier, error)
	Upsert(ctx context.Context, supplier *models.Supplier) error
	Count(ctx context.Context) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a suppliers repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, userID string) (*models.Supplier, error) {
	var supplier models.Supplier
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&supplier).Error; err != nil {
		return nil, err
	}
	return &supplier, nil
}

// FindByIDForUpdate row-locks the supplier on postgres so writers scoped to
// one supplier serialize behind it. SQLite already serializes writers.
func (r *repository) FindByIDForUpdate(ctx context.Context, userID string) (*models.Supplier, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if q.Dialector != nil && q.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var supplier models.Supplier
	if err := q.First(&supplier).Error; err != nil {
		return nil, err
	}
	return &supplier, nil
}

// Upsert inserts the supplier or, when the id exists, refreshes the username only.
func (r *repository) Upsert(ctx context.Context, supplier *models.Supplier) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "updated_at"}),
		}).
		Create(supplier).Error
}

func (r *repository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Supplier{}).Count(&count).Error
	return count, err
}
