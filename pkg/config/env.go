package config

const (
	EnvPrefix = "CLOSET"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	EnvAppEnv = "CLOSET_APP_ENV"
	EnvPort   = "CLOSET_APP_PORT"

	EnvDBDSN    = "CLOSET_DB_DSN"
	EnvDBDriver = "CLOSET_DB_DRIVER"
	EnvDBHost   = "CLOSET_DB_HOST"
	EnvDBUser   = "CLOSET_DB_USER"
	EnvDBName   = "CLOSET_DB_NAME"

	EnvRedisURL = "CLOSET_REDIS_URL"

	EnvJWTSecret  = "CLOSET_JWT_SECRET"
	EnvJWTIssuer  = "CLOSET_JWT_ISSUER"
	EnvJWTExpMins = "CLOSET_JWT_EXPIRATION_MINUTES"

	EnvUseSQLite = "CLOSET_USE_SQLITE"

	EnvPurchaseCommitTimeout = "CLOSET_PURCHASE_COMMIT_TIMEOUT"
	EnvReservationGrace      = "CLOSET_RESERVATION_GRACE"
	EnvPaymentWindow         = "CLOSET_PAYMENT_WINDOW"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
