package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "STOCKLEDGER"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "STOCKLEDGER_APP_ENV"
	EnvPort     = "STOCKLEDGER_APP_PORT"
	EnvDBDSN    = "STOCKLEDGER_DB_DSN"
	EnvDBHost   = "STOCKLEDGER_DB_HOST"
	EnvDBUser   = "STOCKLEDGER_DB_USER"
	EnvDBName   = "STOCKLEDGER_DB_NAME"
	EnvRedisURL = "STOCKLEDGER_REDIS_URL"

	EnvBreakerFailureThreshold = "STOCKLEDGER_BREAKER_FAILURE_THRESHOLD"
	EnvBreakerRecoveryTimeout  = "STOCKLEDGER_BREAKER_RECOVERY_TIMEOUT"
	EnvCronLocationThresholds  = "STOCKLEDGER_CRON_LOCATION_THRESHOLDS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App        AppConfig
	Service    ServiceConfig
	DB         DBConfig
	Redis      RedisConfig
	Cache      CacheConfig
	Resilience ResilienceConfig
	Cron       CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.Cron.Thresholds(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOCKLEDGER_APP_ENV" required:"true"`
	Port         string `envconfig:"STOCKLEDGER_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"STOCKLEDGER_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOCKLEDGER_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"STOCKLEDGER_AUTO_MIGRATE" default:"false"`

	CORSOrigins     []string      `envconfig:"STOCKLEDGER_CORS_ORIGINS"`
	ShutdownTimeout time.Duration `envconfig:"STOCKLEDGER_SHUTDOWN_TIMEOUT" default:"15s"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STOCKLEDGER_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOCKLEDGER_DB_DSN"`
	Driver string `envconfig:"STOCKLEDGER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOCKLEDGER_DB_HOST"`
	LegacyPort     int    `envconfig:"STOCKLEDGER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOCKLEDGER_DB_USER"`
	LegacyPassword string `envconfig:"STOCKLEDGER_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOCKLEDGER_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOCKLEDGER_DB_SSLMODE" default:"disable"`

	MaxOpenConns     int           `envconfig:"STOCKLEDGER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns     int           `envconfig:"STOCKLEDGER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime  time.Duration `envconfig:"STOCKLEDGER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime  time.Duration `envconfig:"STOCKLEDGER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	StatementTimeout time.Duration `envconfig:"STOCKLEDGER_DB_STATEMENT_TIMEOUT" default:"30s"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOCKLEDGER_REDIS_URL"`
	Address      string        `envconfig:"STOCKLEDGER_REDIS_ADDR"`
	Password     string        `envconfig:"STOCKLEDGER_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOCKLEDGER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOCKLEDGER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOCKLEDGER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOCKLEDGER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOCKLEDGER_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"STOCKLEDGER_REDIS_WRITE_TIMEOUT" default:"3s"`
}

// Enabled reports whether any Redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type CacheConfig struct {
	Namespace string `envconfig:"STOCKLEDGER_CACHE_NAMESPACE" default:"cache"`
	ScanCount int64  `envconfig:"STOCKLEDGER_CACHE_SCAN_COUNT" default:"100"`
}

// RetryConfig overrides the timing of one retry preset. Zero values keep the
// preset default.
type RetryConfig struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

type ResilienceConfig struct {
	DBMaxAttempts   int           `envconfig:"STOCKLEDGER_RETRY_DB_MAX_ATTEMPTS"`
	DBBaseDelay     time.Duration `envconfig:"STOCKLEDGER_RETRY_DB_BASE_DELAY"`
	DBMaxDelay      time.Duration `envconfig:"STOCKLEDGER_RETRY_DB_MAX_DELAY"`
	DBBackoffFactor float64       `envconfig:"STOCKLEDGER_RETRY_DB_BACKOFF_FACTOR"`

	CacheMaxAttempts int           `envconfig:"STOCKLEDGER_RETRY_CACHE_MAX_ATTEMPTS"`
	CacheBaseDelay   time.Duration `envconfig:"STOCKLEDGER_RETRY_CACHE_BASE_DELAY"`

	BreakerFailureThreshold int           `envconfig:"STOCKLEDGER_BREAKER_FAILURE_THRESHOLD" default:"5"`
	BreakerRecoveryTimeout  time.Duration `envconfig:"STOCKLEDGER_BREAKER_RECOVERY_TIMEOUT" default:"60s"`
}

// Database returns the overrides for the database retry preset.
func (r ResilienceConfig) Database() RetryConfig {
	return RetryConfig{
		MaxAttempts:   r.DBMaxAttempts,
		BaseDelay:     r.DBBaseDelay,
		MaxDelay:      r.DBMaxDelay,
		BackoffFactor: r.DBBackoffFactor,
	}
}

// Cache returns the overrides for the cache retry preset.
func (r ResilienceConfig) Cache() RetryConfig {
	return RetryConfig{
		MaxAttempts: r.CacheMaxAttempts,
		BaseDelay:   r.CacheBaseDelay,
	}
}

type CronConfig struct {
	Interval time.Duration `envconfig:"STOCKLEDGER_CRON_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"STOCKLEDGER_CRON_LOCK_TTL" default:"55m"`
	// JobTimeout caps each maintenance job; zero disables the cap.
	JobTimeout time.Duration `envconfig:"STOCKLEDGER_CRON_JOB_TIMEOUT" default:"20m"`
	// LocationThresholds is a comma separated list of location=threshold pairs,
	// e.g. "default=10,warehouse-east=25".
	LocationThresholds string `envconfig:"STOCKLEDGER_CRON_LOCATION_THRESHOLDS"`
}

// Thresholds parses LocationThresholds into a location -> threshold map.
func (c CronConfig) Thresholds() (map[string]int, error) {
	out := map[string]int{}
	raw := strings.TrimSpace(c.LocationThresholds)
	if raw == "" {
		return out, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		location, value, ok := strings.Cut(pair, "=")
		location = strings.TrimSpace(location)
		if !ok || location == "" {
			return nil, fmt.Errorf("%s: malformed entry %q", EnvCronLocationThresholds, pair)
		}
		threshold, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || threshold < 0 {
			return nil, fmt.Errorf("%s: invalid threshold for %q", EnvCronLocationThresholds, location)
		}
		out[location] = threshold
	}
	return out, nil
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
