package config

const (
	EnvPrefix = "TINDAHUB"

	EnvAppEnv          = "TINDAHUB_APP_ENV"
	EnvPort            = "TINDAHUB_APP_PORT"
	EnvLogLevel        = "TINDAHUB_LOG_LEVEL"
	EnvDBDSN           = "TINDAHUB_DB_DSN"
	EnvDBHost          = "TINDAHUB_DB_HOST"
	EnvDBUser          = "TINDAHUB_DB_USER"
	EnvDBName          = "TINDAHUB_DB_NAME"
	EnvUseSQLite       = "TINDAHUB_USE_SQLITE"
	EnvRedisURL        = "TINDAHUB_REDIS_URL"
	EnvJWTSecret       = "TINDAHUB_JWT_SECRET"
	EnvJWTIssuer       = "TINDAHUB_JWT_ISSUER"
	EnvGatewaySecret   = "TINDAHUB_GATEWAY_WEBHOOK_SECRET"
	EnvStorageBucket   = "TINDAHUB_STORAGE_BUCKET"
	EnvPubSubTopic     = "TINDAHUB_PUBSUB_DOMAIN_TOPIC"
	EnvPayoutCronEvery = "TINDAHUB_PAYOUT_CRON_INTERVAL"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

var dbPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
