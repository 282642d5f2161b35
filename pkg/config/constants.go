package config

const (
	EnvPrefix = "PACKFINDERZ"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv    = "PACKFINDERZ_APP_ENV"
	EnvPort      = "PACKFINDERZ_APP_PORT"
	EnvLogLvl    = "PACKFINDERZ_LOG_LEVEL"
	EnvDBDSN     = "PACKFINDERZ_DB_DSN"
	EnvDBHost    = "PACKFINDERZ_DB_HOST"
	EnvDBUser    = "PACKFINDERZ_DB_USER"
	EnvDBName    = "PACKFINDERZ_DB_NAME"
	EnvDBDrv     = "PACKFINDERZ_DB_DRIVER"
	EnvRedisURL  = "PACKFINDERZ_REDIS_URL"
	EnvRedisAddr = "PACKFINDERZ_REDIS_ADDR"

	EnvGCPProjectID        = "PACKFINDERZ_GCP_PROJECT_ID"
	EnvPubSubEventsTopic   = "PACKFINDERZ_PUBSUB_EVENTS_TOPIC"
	EnvPubSubEventsSub     = "PACKFINDERZ_PUBSUB_EVENTS_SUBSCRIPTION"
	EnvEventBusStore       = "PACKFINDERZ_EVENTBUS_STORE_DRIVER"
	EnvEventBusChannel     = "PACKFINDERZ_EVENTBUS_CHANNEL"
	EnvEventBusPersistence = "PACKFINDERZ_EVENTBUS_PERSISTENCE_ENABLED"
	EnvEventBusMaxRetries  = "PACKFINDERZ_EVENTBUS_MAX_RETRIES"
	EnvEventBusJitter      = "PACKFINDERZ_EVENTBUS_RETRY_JITTER"
	EnvAdminEnabled        = "PACKFINDERZ_ADMIN_ENABLED"
)

const (
	StoreDriverRedis  = "redis"
	StoreDriverSQL    = "sql"
	StoreDriverMemory = "memory"

	ChannelNone   = "none"
	ChannelRedis  = "redis"
	ChannelPubSub = "pubsub"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

const (
	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	DefaultSQLiteDSN = "file:events.db?cache=shared"
)
