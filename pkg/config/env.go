package config

const EnvPrefix = "MARKET"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	BrokerKafka  = "kafka"
	BrokerPubSub = "pubsub"

	TopicKeyOrders    = "orders"
	TopicKeyListings  = "listings"
	TopicKeySuppliers = "suppliers"
)

const (
	EnvAppEnv   = "MARKET_APP_ENV"
	EnvPort     = "MARKET_APP_PORT"
	EnvLogLevel = "MARKET_LOG_LEVEL"

	EnvDBDSN    = "MARKET_DB_DSN"
	EnvDBDriver = "MARKET_DB_DRIVER"
	EnvDBHost   = "MARKET_DB_HOST"
	EnvDBUser   = "MARKET_DB_USER"
	EnvDBName   = "MARKET_DB_NAME"

	EnvRedisURL = "MARKET_REDIS_URL"

	EnvDiscordToken     = "MARKET_DISCORD_TOKEN"
	EnvDiscordPublicKey = "MARKET_DISCORD_PUBLIC_KEY"
	EnvDiscordAppID     = "MARKET_DISCORD_APP_ID"

	EnvJWTSecret = "MARKET_JWT_SECRET"

	EnvCustomerPageSize = "MARKET_ORDERS_CUSTOMER_PAGE"
	EnvCapabilityTTL    = "MARKET_CAPABILITY_TTL"

	EnvEventBroker  = "MARKET_EVENT_BROKER"
	EnvKafkaBrokers = "MARKET_KAFKA_BROKERS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
