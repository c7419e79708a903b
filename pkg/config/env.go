package config

// EnvPrefix namespaces every environment variable read by envconfig.
const EnvPrefix = "KEYLOCK"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

// Environment variable names referenced in error messages and tests.
const (
	EnvAppEnv           = "KEYLOCK_APP_ENV"
	EnvPort             = "KEYLOCK_APP_PORT"
	EnvDBDSN            = "KEYLOCK_DB_DSN"
	EnvDBHost           = "KEYLOCK_DB_HOST"
	EnvDBUser           = "KEYLOCK_DB_USER"
	EnvDBName           = "KEYLOCK_DB_NAME"
	EnvRedisURL         = "KEYLOCK_REDIS_URL"
	EnvAdminSecret      = "KEYLOCK_ADMIN_SECRET"
	EnvAdminSecretHash  = "KEYLOCK_ADMIN_SECRET_HASH"
	EnvLicenseKeyPrefix = "KEYLOCK_LICENSE_KEY_PREFIX"
	EnvFallbackSeed     = "KEYLOCK_LICENSE_FALLBACK_SEED"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
