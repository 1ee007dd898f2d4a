package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	AdminAuth    AdminAuthConfig
	FeatureFlags FeatureFlagsConfig
	Scheduler    SchedulerConfig
	Dispatcher   DispatcherConfig
	Outbox       OutboxConfig
	Mailer       MailerConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
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
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"OUTFLOW_APP_ENV" required:"true"`
	Port         string `envconfig:"OUTFLOW_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"OUTFLOW_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"OUTFLOW_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"OUTFLOW_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"OUTFLOW_DB_DSN"`
	Driver string `envconfig:"OUTFLOW_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"OUTFLOW_DB_HOST"`
	LegacyPort     int    `envconfig:"OUTFLOW_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"OUTFLOW_DB_USER"`
	LegacyPassword string `envconfig:"OUTFLOW_DB_PASSWORD"`
	LegacyName     string `envconfig:"OUTFLOW_DB_NAME"`
	LegacySSLMode  string `envconfig:"OUTFLOW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"OUTFLOW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"OUTFLOW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"OUTFLOW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"OUTFLOW_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"OUTFLOW_REDIS_URL" required:"true"`
	Address      string        `envconfig:"OUTFLOW_REDIS_ADDR"`
	Password     string        `envconfig:"OUTFLOW_REDIS_PASSWORD"`
	DB           int           `envconfig:"OUTFLOW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"OUTFLOW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"OUTFLOW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"OUTFLOW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"OUTFLOW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"OUTFLOW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"OUTFLOW_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"OUTFLOW_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"OUTFLOW_JWT_EXPIRATION_MINUTES" default:"60"`
}

// AdminAuthConfig guards the operational trigger endpoints. The token is stored
// as an Argon2id hash so a leaked config dump does not leak the credential.
type AdminAuthConfig struct {
	TokenHash        string `envconfig:"OUTFLOW_ADMIN_TOKEN_HASH"`
	ArgonMemoryKB    int    `envconfig:"OUTFLOW_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int    `envconfig:"OUTFLOW_ARGON_TIME" default:"3"`
	ArgonParallelism int    `envconfig:"OUTFLOW_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int    `envconfig:"OUTFLOW_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int    `envconfig:"OUTFLOW_ARGON_KEY_LEN" default:"32"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"OUTFLOW_AUTO_MIGRATE" default:"false"`
}

type SchedulerConfig struct {
	BatchSize      int `envconfig:"OUTFLOW_SCHEDULER_BATCH_SIZE" default:"100"`
	PollIntervalMS int `envconfig:"OUTFLOW_SCHEDULER_POLL_MS" default:"120000"`
}

type DispatcherConfig struct {
	BatchSize      int           `envconfig:"OUTFLOW_DISPATCHER_BATCH_SIZE" default:"25"`
	PollIntervalMS int           `envconfig:"OUTFLOW_DISPATCHER_POLL_MS" default:"120000"`
	SendTimeout    time.Duration `envconfig:"OUTFLOW_DISPATCHER_SEND_TIMEOUT" default:"30s"`
}

type OutboxConfig struct {
	MaxAttempts      int           `envconfig:"OUTFLOW_OUTBOX_MAX_ATTEMPTS" default:"8"`
	ClaimTTL         time.Duration `envconfig:"OUTFLOW_OUTBOX_CLAIM_TTL" default:"15m"`
	DLQRetentionDays int           `envconfig:"OUTFLOW_OUTBOX_DLQ_RETENTION_DAYS" default:"30"`
}

type MailerConfig struct {
	APIKey      string        `envconfig:"OUTFLOW_MAILER_API_KEY"`
	BaseURL     string        `envconfig:"OUTFLOW_MAILER_BASE_URL" default:"https://api.sendwire.io/v1"`
	DefaultFrom string        `envconfig:"OUTFLOW_MAILER_FROM_EMAIL"`
	Timeout     time.Duration `envconfig:"OUTFLOW_MAILER_TIMEOUT" default:"15s"`
}

type EventingConfig struct {
	ReplyIdempotencyTTL time.Duration `envconfig:"OUTFLOW_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"OUTFLOW_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"OUTFLOW_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"OUTFLOW_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	ReplyTopic        string `envconfig:"OUTFLOW_PUBSUB_REPLY_TOPIC" default:"of-reply-events"`
	ReplySubscription string `envconfig:"OUTFLOW_PUBSUB_REPLY_SUBSCRIPTION"`
}

type BigQueryConfig struct {
	Dataset          string `envconfig:"OUTFLOW_BIGQUERY_DATASET" default:"outflow"`
	EmailEventsTable string `envconfig:"OUTFLOW_BIGQUERY_EMAIL_EVENTS_TABLE" default:"email_events"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"OUTFLOW_CRON_INTERVAL" default:"1h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
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
