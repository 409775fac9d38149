package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Discord      DiscordConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Orders       OrdersConfig
	Eventing     EventingConfig
	Kafka        KafkaConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Eventing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MARKET_APP_ENV" required:"true"`
	Port         string `envconfig:"MARKET_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"MARKET_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MARKET_LOG_WARN_STACK" default:"false"`
	// CORSOrigins lists the browser origins allowed to call the admin API.
	CORSOrigins []string `envconfig:"MARKET_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN        string `envconfig:"MARKET_DB_DSN"`
	Driver     string `envconfig:"MARKET_DB_DRIVER" default:"postgres"`
	SQLitePath string `envconfig:"MARKET_DB_SQLITE_PATH" default:"marketplace.db"`

	LegacyHost     string `envconfig:"MARKET_DB_HOST"`
	LegacyPort     int    `envconfig:"MARKET_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MARKET_DB_USER"`
	LegacyPassword string `envconfig:"MARKET_DB_PASSWORD"`
	LegacyName     string `envconfig:"MARKET_DB_NAME"`
	LegacySSLMode  string `envconfig:"MARKET_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MARKET_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MARKET_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MARKET_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MARKET_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the store runs on the embedded SQLite driver.
func (d DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(d.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"MARKET_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MARKET_REDIS_ADDR"`
	Password     string        `envconfig:"MARKET_REDIS_PASSWORD"`
	DB           int           `envconfig:"MARKET_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MARKET_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MARKET_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MARKET_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MARKET_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MARKET_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type DiscordConfig struct {
	Token     string `envconfig:"MARKET_DISCORD_TOKEN" required:"true"`
	PublicKey string `envconfig:"MARKET_DISCORD_PUBLIC_KEY" required:"true"`
	AppID     string `envconfig:"MARKET_DISCORD_APP_ID" required:"true"`
	GuildID   string `envconfig:"MARKET_DISCORD_GUILD_ID"`
}

// VerifyKey decodes the application's hex encoded Ed25519 public key.
func (d DiscordConfig) VerifyKey() (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(d.PublicKey))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", EnvDiscordPublicKey, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%s must be %d bytes, got %d", EnvDiscordPublicKey, ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

type JWTConfig struct {
	Secret            string `envconfig:"MARKET_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MARKET_JWT_ISSUER" default:"guildmarket"`
	ExpirationMinutes int    `envconfig:"MARKET_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"MARKET_AUTO_MIGRATE" default:"false"`
}

type OrdersConfig struct {
	CustomerPageSize int           `envconfig:"MARKET_ORDERS_CUSTOMER_PAGE" default:"10"`
	SupplierPageSize int           `envconfig:"MARKET_ORDERS_SUPPLIER_PAGE" default:"15"`
	RateLimit        int           `envconfig:"MARKET_ORDER_RATE_LIMIT" default:"5"`
	RateWindow       time.Duration `envconfig:"MARKET_ORDER_RATE_WINDOW" default:"1m"`
	CapabilityTTL    time.Duration `envconfig:"MARKET_CAPABILITY_TTL" default:"168h"`
}

type EventingConfig struct {
	Broker string `envconfig:"MARKET_EVENT_BROKER" default:"kafka"`
}

func (e EventingConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(e.Broker)) {
	case BrokerKafka, BrokerPubSub:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q, got %q", EnvEventBroker, BrokerKafka, BrokerPubSub, e.Broker)
	}
}

// UsesPubSub reports whether outbox rows are published to GCP Pub/Sub.
func (e EventingConfig) UsesPubSub() bool {
	return strings.EqualFold(strings.TrimSpace(e.Broker), BrokerPubSub)
}

type KafkaConfig struct {
	Brokers        []string      `envconfig:"MARKET_KAFKA_BROKERS" default:"localhost:9092"`
	ClientID       string        `envconfig:"MARKET_KAFKA_CLIENT_ID" default:"guildmarket"`
	OrdersTopic    string        `envconfig:"MARKET_KAFKA_ORDERS_TOPIC" default:"market.orders"`
	ListingsTopic  string        `envconfig:"MARKET_KAFKA_LISTINGS_TOPIC" default:"market.listings"`
	SuppliersTopic string        `envconfig:"MARKET_KAFKA_SUPPLIERS_TOPIC" default:"market.suppliers"`
	WriteTimeout   time.Duration `envconfig:"MARKET_KAFKA_WRITE_TIMEOUT" default:"10s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"MARKET_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"MARKET_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"MARKET_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic    string `envconfig:"MARKET_PUBSUB_ORDERS_TOPIC" default:"market-orders"`
	ListingsTopic  string `envconfig:"MARKET_PUBSUB_LISTINGS_TOPIC" default:"market-listings"`
	SuppliersTopic string `envconfig:"MARKET_PUBSUB_SUPPLIERS_TOPIC" default:"market-suppliers"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MARKET_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MARKET_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MARKET_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"MARKET_CRON_INTERVAL" default:"1h"`
	OutboxRetentionDays int           `envconfig:"MARKET_OUTBOX_RETENTION_DAYS" default:"30"`
	DLQRetentionDays    int           `envconfig:"MARKET_OUTBOX_DLQ_RETENTION_DAYS" default:"90"`
}

// Topics maps aggregate names to broker topics for the configured broker.
func (c *Config) Topics() map[string]string {
	if c.Eventing.UsesPubSub() {
		return map[string]string{
			TopicKeyOrders:    c.PubSub.OrdersTopic,
			TopicKeyListings:  c.PubSub.ListingsTopic,
			TopicKeySuppliers: c.PubSub.SuppliersTopic,
		}
	}
	return map[string]string{
		TopicKeyOrders:    c.Kafka.OrdersTopic,
		TopicKeyListings:  c.Kafka.ListingsTopic,
		TopicKeySuppliers: c.Kafka.SuppliersTopic,
	}
}

func (db *DBConfig) ensureDSN() error {
	if db.IsSQLite() || db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
