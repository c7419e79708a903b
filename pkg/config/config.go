package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Admin     AdminConfig
	License   LicenseConfig
	RateLimit RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Admin.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"KEYLOCK_APP_ENV" required:"true"`
	Port         string `envconfig:"KEYLOCK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"KEYLOCK_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"KEYLOCK_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"KEYLOCK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// DBConfig describes the durable license store. When no DSN (and no legacy
// host/user/name trio) is supplied the process boots with the in-memory
// fallback store instead of failing.
type DBConfig struct {
	DSN    string `envconfig:"KEYLOCK_DB_DSN"`
	Driver string `envconfig:"KEYLOCK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"KEYLOCK_DB_HOST"`
	LegacyPort     int    `envconfig:"KEYLOCK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"KEYLOCK_DB_USER"`
	LegacyPassword string `envconfig:"KEYLOCK_DB_PASSWORD"`
	LegacyName     string `envconfig:"KEYLOCK_DB_NAME"`
	LegacySSLMode  string `envconfig:"KEYLOCK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"KEYLOCK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"KEYLOCK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"KEYLOCK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"KEYLOCK_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// Storage operation policy applied to every store call.
	OpTimeout   time.Duration `envconfig:"KEYLOCK_DB_OP_TIMEOUT" default:"5s"`
	OpRetries   int           `envconfig:"KEYLOCK_DB_OP_RETRIES" default:"2"`
	OpBackoff   time.Duration `envconfig:"KEYLOCK_DB_OP_BACKOFF" default:"200ms"`
	AutoMigrate bool          `envconfig:"KEYLOCK_AUTO_MIGRATE" default:"false"`
}

// Configured reports whether a durable backend was requested at all.
func (db DBConfig) Configured() bool {
	return db.DSN != "" || db.LegacyHost != "" || db.LegacyUser != "" || db.LegacyName != ""
}

type RedisConfig struct {
	URL          string        `envconfig:"KEYLOCK_REDIS_URL"`
	Address      string        `envconfig:"KEYLOCK_REDIS_ADDR"`
	Password     string        `envconfig:"KEYLOCK_REDIS_PASSWORD"`
	DB           int           `envconfig:"KEYLOCK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"KEYLOCK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"KEYLOCK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"KEYLOCK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"KEYLOCK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"KEYLOCK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Configured reports whether rate limiting has a Redis backend to talk to.
func (r RedisConfig) Configured() bool {
	return r.URL != "" || r.Address != ""
}

// AdminConfig carries the shared secret guarding the generation endpoints.
// Exactly one of Secret (plain, compared in constant time) or SecretHash
// (argon2id encoded) must be set.
type AdminConfig struct {
	Secret     string `envconfig:"KEYLOCK_ADMIN_SECRET"`
	SecretHash string `envconfig:"KEYLOCK_ADMIN_SECRET_HASH"`
}

func (a AdminConfig) validate() error {
	if a.Secret == "" && a.SecretHash == "" {
		return fmt.Errorf("either %s or %s is required", EnvAdminSecret, EnvAdminSecretHash)
	}
	if a.Secret != "" && a.SecretHash != "" {
		return fmt.Errorf("%s and %s are mutually exclusive", EnvAdminSecret, EnvAdminSecretHash)
	}
	return nil
}

type LicenseConfig struct {
	KeyPrefix             string `envconfig:"KEYLOCK_LICENSE_KEY_PREFIX" default:"KEY"`
	KeySegments           int    `envconfig:"KEYLOCK_LICENSE_KEY_SEGMENTS" default:"4"`
	KeySegmentLen         int    `envconfig:"KEYLOCK_LICENSE_KEY_SEGMENT_LEN" default:"4"`
	DefaultMaxActivations int    `envconfig:"KEYLOCK_LICENSE_DEFAULT_MAX_ACTIVATIONS" default:"1"`

	// Seed catalog for the in-memory fallback store, as a comma-separated
	// list of key:customer:maxActivations:validityDays entries.
	FallbackSeed string `envconfig:"KEYLOCK_LICENSE_FALLBACK_SEED"`
}

type RateLimitConfig struct {
	ValidateWindow   time.Duration `envconfig:"KEYLOCK_RATE_LIMIT_VALIDATE_WINDOW" default:"1m"`
	ValidateIPLimit  int           `envconfig:"KEYLOCK_RATE_LIMIT_VALIDATE_IP_LIMIT" default:"60"`
	ValidateKeyLimit int           `envconfig:"KEYLOCK_RATE_LIMIT_VALIDATE_KEY_LIMIT" default:"30"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" || !db.Configured() {
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
