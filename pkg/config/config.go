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
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Marketplace  MarketplaceConfig
	Cron         CronConfig
	Outbox       OutboxConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DriverSQLite
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Marketplace.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CLOSET_APP_ENV" required:"true"`
	Port         string `envconfig:"CLOSET_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CLOSET_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CLOSET_LOG_WARN_STACK" default:"false"`
	CORSOrigins  string `envconfig:"CLOSET_CORS_ORIGINS" default:"*"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// AllowedOrigins splits the comma separated CORS origin list.
func (a AppConfig) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(a.CORSOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

type DBConfig struct {
	DSN    string `envconfig:"CLOSET_DB_DSN"`
	Driver string `envconfig:"CLOSET_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"CLOSET_DB_HOST"`
	Port     int    `envconfig:"CLOSET_DB_PORT" default:"5432"`
	User     string `envconfig:"CLOSET_DB_USER"`
	Password string `envconfig:"CLOSET_DB_PASSWORD"`
	Name     string `envconfig:"CLOSET_DB_NAME"`
	SSLMode  string `envconfig:"CLOSET_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"CLOSET_SQLITE_PATH" default:"closet-dev.db"`

	MaxOpenConns    int           `envconfig:"CLOSET_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CLOSET_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CLOSET_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CLOSET_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CLOSET_REDIS_URL"`
	Address      string        `envconfig:"CLOSET_REDIS_ADDR"`
	Password     string        `envconfig:"CLOSET_REDIS_PASSWORD"`
	DB           int           `envconfig:"CLOSET_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CLOSET_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CLOSET_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CLOSET_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CLOSET_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CLOSET_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"CLOSET_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CLOSET_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"CLOSET_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CLOSET_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CLOSET_AUTO_MIGRATE" default:"false"`
}

// MarketplaceConfig tunes the purchase workflow and the reservation sweep.
type MarketplaceConfig struct {
	CommitTimeout    time.Duration `envconfig:"CLOSET_PURCHASE_COMMIT_TIMEOUT" default:"10s"`
	ReservationGrace time.Duration `envconfig:"CLOSET_RESERVATION_GRACE" default:"15m"`
	PaymentWindow    time.Duration `envconfig:"CLOSET_PAYMENT_WINDOW" default:"72h"`
	CheckoutBaseURL  string        `envconfig:"CLOSET_CHECKOUT_BASE_URL" default:"https://pay.closet.app/checkout"`
	SweepBatchSize   int           `envconfig:"CLOSET_SWEEP_BATCH_SIZE" default:"100"`
}

func (m MarketplaceConfig) validate() error {
	if m.CommitTimeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvPurchaseCommitTimeout)
	}
	if m.ReservationGrace <= 0 {
		return fmt.Errorf("%s must be positive", EnvReservationGrace)
	}
	// The sweep must never see a reservation whose purchase can still write or release it.
	if m.ReservationGrace <= 2*m.CommitTimeout {
		return fmt.Errorf("%s must be longer than twice %s", EnvReservationGrace, EnvPurchaseCommitTimeout)
	}
	if m.PaymentWindow < m.ReservationGrace {
		return fmt.Errorf("%s must not be shorter than %s", EnvPaymentWindow, EnvReservationGrace)
	}
	return nil
}

type CronConfig struct {
	Interval time.Duration `envconfig:"CLOSET_CRON_INTERVAL" default:"1m"`
	LockTTL  time.Duration `envconfig:"CLOSET_CRON_LOCK_TTL" default:"5m"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"CLOSET_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"CLOSET_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"CLOSET_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CLOSET_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"CLOSET_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CLOSET_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	MarketplaceTopic string `envconfig:"CLOSET_PUBSUB_MARKETPLACE_TOPIC" default:"closet-marketplace-events"`
}

func (db *DBConfig) ensureDSN() error {
	if strings.EqualFold(db.Driver, DriverSQLite) {
		if db.DSN == "" {
			db.DSN = db.SQLitePath
		}
		return nil
	}
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
