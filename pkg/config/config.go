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
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Pricing      PricingConfig
	Orders       OrdersConfig
	Payments     PaymentsConfig
	Square       SquareConfig
	LoadShedding LoadSheddingConfig
	Realtime     RealtimeConfig
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
	if _, err := cfg.Pricing.VATCutoverDate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FUELDROP_APP_ENV" required:"true"`
	Port         string `envconfig:"FUELDROP_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FUELDROP_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"FUELDROP_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"FUELDROP_LOG_WARN_STACK" default:"false"`
	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string `envconfig:"FUELDROP_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"FUELDROP_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN string `envconfig:"FUELDROP_DB_DSN"`

	Host     string `envconfig:"FUELDROP_DB_HOST"`
	Port     int    `envconfig:"FUELDROP_DB_PORT" default:"5432"`
	User     string `envconfig:"FUELDROP_DB_USER"`
	Password string `envconfig:"FUELDROP_DB_PASSWORD"`
	Name     string `envconfig:"FUELDROP_DB_NAME"`
	SSLMode  string `envconfig:"FUELDROP_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FUELDROP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FUELDROP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FUELDROP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FUELDROP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FUELDROP_REDIS_URL" required:"true"`
	Password     string        `envconfig:"FUELDROP_REDIS_PASSWORD"`
	DB           int           `envconfig:"FUELDROP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FUELDROP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FUELDROP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FUELDROP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FUELDROP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FUELDROP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig only verifies tokens; minting happens in the identity service.
type JWTConfig struct {
	Secret string `envconfig:"FUELDROP_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"FUELDROP_JWT_ISSUER" required:"true"`
}

type RateLimitConfig struct {
	Window time.Duration `envconfig:"FUELDROP_RATE_LIMIT_WINDOW" default:"1m"`
	// ActorLimit caps mutating requests per actor per window. Zero disables the limiter.
	ActorLimit     int           `envconfig:"FUELDROP_RATE_LIMIT_ACTOR_LIMIT" default:"60"`
	IdempotencyTTL time.Duration `envconfig:"FUELDROP_IDEMPOTENCY_TTL" default:"24h"`
	LocationPerMin int           `envconfig:"FUELDROP_RATE_LIMIT_LOCATION_PER_MIN" default:"120"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"FUELDROP_AUTO_MIGRATE" default:"false"`
	RedisRelay  bool `envconfig:"FUELDROP_REALTIME_REDIS_RELAY" default:"false"`
	AllowEFT    bool `envconfig:"FUELDROP_FEATURE_ALLOW_EFT" default:"true"`
}

type PricingConfig struct {
	VATCutover        string   `envconfig:"FUELDROP_PRICING_VAT_CUTOVER" default:"2025-05-01"`
	BaseDeliveryFee   int64    `envconfig:"FUELDROP_PRICING_BASE_DELIVERY_FEE_CENTS" default:"2500"`
	MinimumOrderValue int64    `envconfig:"FUELDROP_PRICING_MINIMUM_ORDER_CENTS" default:"5000"`
	AffluentAreas     []string `envconfig:"FUELDROP_PRICING_AFFLUENT_AREAS" default:"sandton,rosebank,umhlanga,constantia,camps bay,waterkloof"`
	StressedAreas     []string `envconfig:"FUELDROP_PRICING_STRESSED_AREAS" default:"soweto,alexandra,khayelitsha,tembisa,mitchells plain"`
}

// VATCutoverDate parses the configured cutover as a calendar date in UTC.
func (p PricingConfig) VATCutoverDate() (time.Time, error) {
	value := strings.TrimSpace(p.VATCutover)
	if value == "" {
		value = DefaultVATCutover
	}
	date, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: %w", EnvVATCutover, value, err)
	}
	return date, nil
}

type OrdersConfig struct {
	PendingTTL        time.Duration `envconfig:"FUELDROP_ORDERS_PENDING_TTL" default:"30m"`
	DriverEarningRate float64       `envconfig:"FUELDROP_ORDERS_DRIVER_EARNING_RATE" default:"0.8"`
}

type PaymentsConfig struct {
	Provider    string        `envconfig:"FUELDROP_PAYMENTS_PROVIDER" default:"square"`
	Currency    string        `envconfig:"FUELDROP_PAYMENTS_CURRENCY" default:"ZAR"`
	Timeout     time.Duration `envconfig:"FUELDROP_PAYMENTS_TIMEOUT" default:"10s"`
	MaxAttempts uint          `envconfig:"FUELDROP_PAYMENTS_MAX_ATTEMPTS" default:"3"`
}

type SquareConfig struct {
	AccessToken string `envconfig:"FUELDROP_SQUARE_ACCESS_TOKEN"`
	LocationID  string `envconfig:"FUELDROP_SQUARE_LOCATION_ID"`
	Env         string `envconfig:"FUELDROP_SQUARE_ENV" default:"sandbox"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type LoadSheddingConfig struct {
	BaseURL     string        `envconfig:"FUELDROP_LOADSHEDDING_BASE_URL"`
	APIToken    string        `envconfig:"FUELDROP_LOADSHEDDING_API_TOKEN"`
	Timeout     time.Duration `envconfig:"FUELDROP_LOADSHEDDING_TIMEOUT" default:"2s"`
	MaxAttempts uint          `envconfig:"FUELDROP_LOADSHEDDING_MAX_ATTEMPTS" default:"2"`
	CacheTTL    time.Duration `envconfig:"FUELDROP_LOADSHEDDING_CACHE_TTL" default:"5m"`
}

type RealtimeConfig struct {
	SendBuffer    int           `envconfig:"FUELDROP_REALTIME_SEND_BUFFER" default:"32"`
	PingInterval  time.Duration `envconfig:"FUELDROP_REALTIME_PING_INTERVAL" default:"25s"`
	WriteTimeout  time.Duration `envconfig:"FUELDROP_REALTIME_WRITE_TIMEOUT" default:"10s"`
	Channel       string        `envconfig:"FUELDROP_REALTIME_CHANNEL" default:"realtime-events"`
	FanoutWorkers int           `envconfig:"FUELDROP_REALTIME_FANOUT_WORKERS" default:"8"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"FUELDROP_CRON_INTERVAL" default:"1m"`
	LockTTL  time.Duration `envconfig:"FUELDROP_CRON_LOCK_TTL" default:"55s"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dbPartEnvVars {
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
