package migrate

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/guildmarket/pkg/config"
	"github.com/angelmondragon/guildmarket/pkg/db"
	"github.com/angelmondragon/guildmarket/pkg/db/models"
	"github.com/angelmondragon/guildmarket/pkg/logger"
)

// MaybeRunDev prepares the schema at startup. SQLite databases are always
// synced from the models; Postgres runs goose only in dev with the
// auto-migrate flag enabled.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if client.Dialect() == config.DBDriverSQLite {
		logg.Info(logg.WithField(ctx, "path", cfg.DB.SQLitePath), "syncing sqlite schema")
		return EnsureSchema(client.DB())
	}

	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	runner, err := NewRunner(sqlDB, nil)
	if err != nil {
		return err
	}
	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	logg.Info(ctx, "running embedded migrations (dev auto-run)")

	applied, err := runner.Up(ctx)
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "applied", applied), "migrations completed")
	return nil
}

// EnsureSchema creates or updates tables from the gorm models. Used for
// SQLite deployments and tests.
func EnsureSchema(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	if err := conn.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	for _, stmt := range sqliteIndexes {
		if err := conn.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

var sqliteIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_inventory_supplier_lower_name ON inventory (supplier_id, lower(item_name))`,
	`CREATE INDEX IF NOT EXISTS idx_orders_customer_created ON orders (customer_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_supplier_created ON orders (supplier_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_events_unpublished ON outbox_events (created_at) WHERE published_at IS NULL`,
}
