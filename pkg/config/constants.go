package config

// EnvPrefix is intentionally empty: every field declares its fully prefixed
// variable name in its envconfig tag.
const EnvPrefix = ""

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

// Canonical environment variable names, shared with tests and tooling.
const (
	EnvAppEnv = "OUTFLOW_APP_ENV"
	EnvPort   = "OUTFLOW_APP_PORT"

	EnvDBDSN  = "OUTFLOW_DB_DSN"
	EnvDBHost = "OUTFLOW_DB_HOST"
	EnvDBUser = "OUTFLOW_DB_USER"
	EnvDBName = "OUTFLOW_DB_NAME"

	EnvRedisURL = "OUTFLOW_REDIS_URL"

	EnvJWTSecret  = "OUTFLOW_JWT_SECRET"
	EnvJWTIssuer  = "OUTFLOW_JWT_ISSUER"
	EnvJWTExpMins = "OUTFLOW_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID = "OUTFLOW_GCP_PROJECT_ID"

	EnvReplySubscription = "OUTFLOW_PUBSUB_REPLY_SUBSCRIPTION"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
