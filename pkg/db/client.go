package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/guildmarket/pkg/config"
	"github.com/angelmondragon/guildmarket/pkg/logger"
)

// Client owns the process-wide GORM pool. Services get it through the
// txRunner interfaces they declare and never open their own connections.
type Client struct {
	conn    *gorm.DB
	dialect string
}

// Pinger exposes the health check surface.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New opens Postgres or SQLite per cfg.Driver and applies the pool limits.
// SQLite is pinned to one open connection.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	dialect := config.DBDriverPostgres
	var dialector gorm.Dialector
	if cfg.IsSQLite() {
		dialect = config.DBDriverSQLite
		dialector = sqlite.Open(sqliteDSN(cfg.SQLitePath))
	} else {
		if cfg.DSN == "" {
			return nil, errors.New("database DSN is required")
		}
		dialector = postgres.New(postgres.Config{DSN: cfg.DSN, PreferSimpleProtocol: true})
	}

	conn, err := gorm.Open(dialector, gormConfig(logg))
	if err != nil {
		return nil, fmt.Errorf("opening %s connection: %w", dialect, err)
	}
	pool, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql db handle: %w", err)
	}

	if dialect == config.DBDriverSQLite {
		pool.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			pool.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			pool.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}
	if cfg.ConnMaxLifetime > 0 {
		pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		pool.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "dialect", dialect), "database connection established")
	}
	return &Client{conn: conn, dialect: dialect}, nil
}

// FromGorm wraps an already opened connection.
func FromGorm(conn *gorm.DB) *Client {
	return &Client{conn: conn, dialect: conn.Dialector.Name()}
}

// OpenSQLite opens a SQLite database. The DSN is passed through to the
// driver, so query parameters like _busy_timeout and _txlock apply.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite dsn is required")
	}
	return gorm.Open(sqlite.Open(dsn), gormConfig(nil))
}

// sqliteDSN makes every transaction take the write lock up front so
// concurrent read-check-write sequences queue instead of failing.
func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return "file:" + path + "?_busy_timeout=5000&_txlock=immediate&_foreign_keys=on"
}

func gormConfig(logg *logger.Logger) *gorm.Config {
	return &gorm.Config{
		Logger:                 newQueryLogger(logg, defaultSlowQuery),
		SkipDefaultTransaction: true,
	}
}

func (c *Client) DB() *gorm.DB {
	return c.conn
}

// Dialect names the active driver ("postgres" or "sqlite").
func (c *Client) Dialect() string {
	return c.dialect
}

func (c *Client) Ping(ctx context.Context) error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.PingContext(ctx)
}

func (c *Client) Close() error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.Close()
}

// WithTx runs fn in a transaction. An error or a panic from fn rolls back;
// the panic is re-raised after the rollback.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.conn.WithContext(ctx).Transaction(fn)
}
