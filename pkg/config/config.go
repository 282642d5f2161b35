package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	GCP      GCPConfig
	PubSub   PubSubConfig
	EventBus EventBusConfig
	Admin    AdminConfig

	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.EventBus.usesSQL() {
		if err := cfg.DB.ResolveDSN(); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-section constraints envconfig cannot express.
func (c *Config) Validate() error {
	bus := c.EventBus
	switch strings.ToLower(bus.StoreDriver) {
	case StoreDriverRedis, StoreDriverSQL, StoreDriverMemory:
	default:
		return fmt.Errorf("%s must be one of redis, sql, memory (got %q)", EnvEventBusStore, bus.StoreDriver)
	}
	switch strings.ToLower(bus.Channel) {
	case ChannelNone, ChannelRedis, ChannelPubSub:
	default:
		return fmt.Errorf("%s must be one of none, redis, pubsub (got %q)", EnvEventBusChannel, bus.Channel)
	}
	if bus.usesRedis() && !c.Redis.Configured() {
		return fmt.Errorf("either %s or %s is required when redis backs the event bus", EnvRedisURL, EnvRedisAddr)
	}
	if strings.EqualFold(bus.Channel, ChannelPubSub) {
		if c.GCP.ProjectID == "" {
			return fmt.Errorf("%s is required for the pubsub channel", EnvGCPProjectID)
		}
		if c.PubSub.EventsTopic == "" || c.PubSub.EventsSubscription == "" {
			return fmt.Errorf("%s and %s are required for the pubsub channel", EnvPubSubEventsTopic, EnvPubSubEventsSub)
		}
	}
	if bus.MaxRetries < 0 {
		return fmt.Errorf("%s must not be negative", EnvEventBusMaxRetries)
	}
	if bus.RetryMaxDelay > 0 && bus.RetryBaseDelay > bus.RetryMaxDelay {
		return fmt.Errorf("eventbus retry base delay %s exceeds max delay %s", bus.RetryBaseDelay, bus.RetryMaxDelay)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"PACKFINDERZ_APP_ENV" required:"true"`
	Port         string `envconfig:"PACKFINDERZ_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"PACKFINDERZ_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PACKFINDERZ_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"PACKFINDERZ_LOG_FORMAT"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"PACKFINDERZ_DB_DSN"`
	Driver string `envconfig:"PACKFINDERZ_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PACKFINDERZ_DB_HOST"`
	LegacyPort     int    `envconfig:"PACKFINDERZ_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PACKFINDERZ_DB_USER"`
	LegacyPassword string `envconfig:"PACKFINDERZ_DB_PASSWORD"`
	LegacyName     string `envconfig:"PACKFINDERZ_DB_NAME"`
	LegacySSLMode  string `envconfig:"PACKFINDERZ_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PACKFINDERZ_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PACKFINDERZ_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PACKFINDERZ_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PACKFINDERZ_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"PACKFINDERZ_DB_SLOW_QUERY" default:"200ms"`
}

// IsSQLite reports whether the sqlite driver is selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"PACKFINDERZ_REDIS_URL"`
	Address      string        `envconfig:"PACKFINDERZ_REDIS_ADDR"`
	Password     string        `envconfig:"PACKFINDERZ_REDIS_PASSWORD"`
	DB           int           `envconfig:"PACKFINDERZ_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PACKFINDERZ_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PACKFINDERZ_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PACKFINDERZ_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PACKFINDERZ_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PACKFINDERZ_REDIS_WRITE_TIMEOUT" default:"5s"`
	// ReceiveConcurrency bounds in-flight broadcast handlers per subscription.
	ReceiveConcurrency int `envconfig:"PACKFINDERZ_REDIS_RECEIVE_CONCURRENCY" default:"16"`
}

func (r RedisConfig) Configured() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PACKFINDERZ_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"PACKFINDERZ_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"PACKFINDERZ_GOOGLE_APPLICATION_CREDENTIALS"`
}

// PubSubConfig wires the Pub/Sub broadcast channel. EventsSubscription may contain
// {instance}, replaced by the instance id so every instance sees every broadcast.
type PubSubConfig struct {
	EventsTopic        string        `envconfig:"PACKFINDERZ_PUBSUB_EVENTS_TOPIC" default:"pf-bus-events"`
	EventsSubscription string        `envconfig:"PACKFINDERZ_PUBSUB_EVENTS_SUBSCRIPTION" default:"pf-bus-events-{instance}"`
	CreateSubscription bool          `envconfig:"PACKFINDERZ_PUBSUB_CREATE_SUBSCRIPTION" default:"true"`
	AckDeadline        time.Duration `envconfig:"PACKFINDERZ_PUBSUB_ACK_DEADLINE" default:"60s"`
	SubscriptionTTL    time.Duration `envconfig:"PACKFINDERZ_PUBSUB_SUBSCRIPTION_TTL" default:"24h"`
}

type EventBusConfig struct {
	PersistenceEnabled bool          `envconfig:"PACKFINDERZ_EVENTBUS_PERSISTENCE_ENABLED" default:"true"`
	StoreDriver        string        `envconfig:"PACKFINDERZ_EVENTBUS_STORE_DRIVER" default:"redis"`
	Channel            string        `envconfig:"PACKFINDERZ_EVENTBUS_CHANNEL" default:"redis"`
	ChannelPrefix      string        `envconfig:"PACKFINDERZ_EVENTBUS_CHANNEL_PREFIX" default:"pf:events"`
	MaxRetries         int           `envconfig:"PACKFINDERZ_EVENTBUS_MAX_RETRIES" default:"3"`
	RetryBaseDelay     time.Duration `envconfig:"PACKFINDERZ_EVENTBUS_RETRY_BASE_DELAY" default:"1s"`
	RetryMaxDelay      time.Duration `envconfig:"PACKFINDERZ_EVENTBUS_RETRY_MAX_DELAY" default:"30s"`
	RetryJitter        bool          `envconfig:"PACKFINDERZ_EVENTBUS_RETRY_JITTER" default:"false"`
	HandlerTimeout     time.Duration `envconfig:"PACKFINDERZ_EVENTBUS_HANDLER_TIMEOUT" default:"30s"`
	RetentionDays      int           `envconfig:"PACKFINDERZ_EVENTBUS_RETENTION_DAYS" default:"7"`
	SweepInterval      time.Duration `envconfig:"PACKFINDERZ_EVENTBUS_SWEEP_INTERVAL" default:"1h"`
	IdempotencyTTL     time.Duration `envconfig:"PACKFINDERZ_EVENTBUS_IDEMPOTENCY_TTL" default:"24h"`
	IdempotencyLease   time.Duration `envconfig:"PACKFINDERZ_EVENTBUS_IDEMPOTENCY_LEASE" default:"5m"`
}

func (e EventBusConfig) usesSQL() bool {
	return e.PersistenceEnabled && strings.EqualFold(e.StoreDriver, StoreDriverSQL)
}

func (e EventBusConfig) usesRedis() bool {
	storeOnRedis := e.PersistenceEnabled && strings.EqualFold(e.StoreDriver, StoreDriverRedis)
	return storeOnRedis || strings.EqualFold(e.Channel, ChannelRedis)
}

// RetentionTTL converts RetentionDays into the index expiry window.
func (e EventBusConfig) RetentionTTL() time.Duration {
	if e.RetentionDays <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(e.RetentionDays) * 24 * time.Hour
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PACKFINDERZ_AUTO_MIGRATE" default:"false"`
}

type AdminConfig struct {
	Enabled bool `envconfig:"PACKFINDERZ_ADMIN_ENABLED" default:"true"`
	// MaxPageSize caps the limit accepted by the admin query endpoints.
	MaxPageSize int `envconfig:"PACKFINDERZ_ADMIN_MAX_PAGE_SIZE" default:"500"`
	// IdempotencyTTL is how long a publish or replay response is kept per Idempotency-Key.
	IdempotencyTTL time.Duration `envconfig:"PACKFINDERZ_ADMIN_IDEMPOTENCY_TTL" default:"24h"`
}

// ResolveDSN fills DSN from the legacy host/user/name variables, or a local file for sqlite.
func (db *DBConfig) ResolveDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = DefaultSQLiteDSN
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
