package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/booking-api/pkg/auth"
	"github.com/jwalitptl/booking-api/pkg/logger"
	"github.com/jwalitptl/booking-api/pkg/messaging/redis"
	"github.com/jwalitptl/booking-api/pkg/worker"
)

// EnvPrefix prefixes every environment override, e.g. BOOKING_DB_HOST.
const EnvPrefix = "BOOKING"

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server" envconfig:"SERVER"`
	Database  DatabaseConfig  `mapstructure:"database" envconfig:"DB"`
	JWT       JWTConfig       `mapstructure:"jwt" envconfig:"JWT"`
	Redis     RedisConfig     `mapstructure:"redis" envconfig:"REDIS"`
	Outbox    OutboxConfig    `mapstructure:"outbox" envconfig:"OUTBOX"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" envconfig:"RATE_LIMIT"`
	CORS      CORSConfig      `mapstructure:"cors" envconfig:"CORS"`
	Log       LogConfig       `mapstructure:"log" envconfig:"LOG"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap" envconfig:"BOOTSTRAP"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port" envconfig:"PORT"`
	Mode           string        `mapstructure:"mode" envconfig:"MODE"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes" envconfig:"MAX_BODY_BYTES"`
}

// DatabaseConfig selects and configures the store. Driver "memory" keeps
// everything in process and is meant for local runs and demos.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" envconfig:"DRIVER"`
	Host            string        `mapstructure:"host" envconfig:"HOST"`
	Port            int           `mapstructure:"port" envconfig:"PORT"`
	User            string        `mapstructure:"user" envconfig:"USER"`
	Password        string        `mapstructure:"password" envconfig:"PASSWORD"`
	Name            string        `mapstructure:"name" envconfig:"NAME"`
	SSLMode         string        `mapstructure:"sslmode" envconfig:"SSLMODE"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" envconfig:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" envconfig:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" envconfig:"CONN_MAX_LIFETIME"`
	AutoMigrate     bool          `mapstructure:"auto_migrate" envconfig:"AUTO_MIGRATE"`
}

type JWTConfig struct {
	Secret             string `mapstructure:"secret" envconfig:"SECRET"`
	Issuer             string `mapstructure:"issuer" envconfig:"ISSUER"`
	ExpiryHours        int    `mapstructure:"expiry_hours" envconfig:"EXPIRY_HOURS"`
	RefreshExpiryHours int    `mapstructure:"refresh_expiry_hours" envconfig:"REFRESH_EXPIRY_HOURS"`
}

type RedisConfig struct {
	URL             string        `mapstructure:"url" envconfig:"URL"`
	MaxRetries      int           `mapstructure:"max_retries" envconfig:"MAX_RETRIES"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff" envconfig:"RETRY_BACKOFF"`
	PoolSize        int           `mapstructure:"pool_size" envconfig:"POOL_SIZE"`
	MinIdleConns    int           `mapstructure:"min_idle_conns" envconfig:"MIN_IDLE_CONNS"`
	BreakerFailures uint32        `mapstructure:"breaker_failures" envconfig:"BREAKER_FAILURES"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout" envconfig:"BREAKER_TIMEOUT"`
}

type OutboxConfig struct {
	BatchSize       int           `mapstructure:"batch_size" envconfig:"BATCH_SIZE"`
	PollInterval    time.Duration `mapstructure:"poll_interval" envconfig:"POLL_INTERVAL"`
	RetryAttempts   int           `mapstructure:"retry_attempts" envconfig:"RETRY_ATTEMPTS"`
	RetryDelay      time.Duration `mapstructure:"retry_delay" envconfig:"RETRY_DELAY"`
	MaxRetries      int           `mapstructure:"max_retries" envconfig:"MAX_RETRIES"`
	Retention       time.Duration `mapstructure:"retention" envconfig:"RETENTION"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" envconfig:"CLEANUP_INTERVAL"`
	HealthPort      int           `mapstructure:"health_port" envconfig:"HEALTH_PORT"`
}

type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled" envconfig:"ENABLED"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" envconfig:"RPS"`
	Burst             int           `mapstructure:"burst" envconfig:"BURST"`
	TTL               time.Duration `mapstructure:"ttl" envconfig:"TTL"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
}

// BootstrapConfig seeds the first coordinator account on start-up when no
// actor with that email exists yet.
type BootstrapConfig struct {
	CoordinatorEmail    string `mapstructure:"coordinator_email" envconfig:"COORDINATOR_EMAIL"`
	CoordinatorPassword string `mapstructure:"coordinator_password" envconfig:"COORDINATOR_PASSWORD"`
	CoordinatorName     string `mapstructure:"coordinator_name" envconfig:"COORDINATOR_NAME"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" envconfig:"LEVEL"`
	Pretty bool   `mapstructure:"pretty" envconfig:"PRETTY"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.request_timeout", 5*time.Second)
	v.SetDefault("server.max_body_bytes", 1<<20)

	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "booking")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("jwt.issuer", "booking-api")
	v.SetDefault("jwt.expiry_hours", 24)
	v.SetDefault("jwt.refresh_expiry_hours", 168)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.breaker_failures", 5)
	v.SetDefault("redis.breaker_timeout", 30*time.Second)

	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.poll_interval", 2*time.Second)
	v.SetDefault("outbox.retry_attempts", 3)
	v.SetDefault("outbox.retry_delay", 200*time.Millisecond)
	v.SetDefault("outbox.max_retries", 10)
	v.SetDefault("outbox.retention", 7*24*time.Hour)
	v.SetDefault("outbox.cleanup_interval", time.Hour)
	v.SetDefault("outbox.health_port", 8081)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 10.0)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("rate_limit.ttl", 10*time.Minute)

	v.SetDefault("cors.allowed_origins", []string{"*"})

	v.SetDefault("log.level", "info")

	v.SetDefault("bootstrap.coordinator_name", "Coordinator")
}

// Load builds the configuration from defaults, an optional config.yaml,
// an optional .env file and BOOKING_* environment variables, in that order
// of increasing precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the services cannot start with.
func (c *Config) Validate() error {
	var problems []string
	if c.JWT.Secret == "" {
		problems = append(problems, "jwt.secret is required")
	}
	if c.JWT.ExpiryHours <= 0 || c.JWT.RefreshExpiryHours <= 0 {
		problems = append(problems, "jwt expiry hours must be positive")
	}
	if c.Database.Driver != DriverPostgres && c.Database.Driver != DriverMemory {
		problems = append(problems, fmt.Sprintf("database.driver %q is not supported", c.Database.Driver))
	}
	if c.Server.Port <= 0 {
		problems = append(problems, "server.port must be positive")
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		problems = append(problems, "rate_limit requires positive requests_per_second and burst")
	}
	if (c.Bootstrap.CoordinatorEmail == "") != (c.Bootstrap.CoordinatorPassword == "") {
		problems = append(problems, "bootstrap needs both coordinator_email and coordinator_password")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *JWTConfig) ToAuthConfig() auth.Config {
	return auth.Config{
		Secret:     c.Secret,
		Issuer:     c.Issuer,
		AccessTTL:  time.Duration(c.ExpiryHours) * time.Hour,
		RefreshTTL: time.Duration(c.RefreshExpiryHours) * time.Hour,
	}
}

func (c *OutboxConfig) ToWorkerConfig() worker.OutboxProcessorConfig {
	return worker.OutboxProcessorConfig{
		BatchSize:       c.BatchSize,
		PollInterval:    c.PollInterval,
		RetryAttempts:   c.RetryAttempts,
		RetryDelay:      c.RetryDelay,
		MaxRetries:      c.MaxRetries,
		Retention:       c.Retention,
		CleanupInterval: c.CleanupInterval,
	}
}

func (c *RedisConfig) ToBrokerConfig() redis.Config {
	return redis.Config{
		URL:             c.URL,
		MaxRetries:      c.MaxRetries,
		RetryBackoff:    c.RetryBackoff,
		PoolSize:        c.PoolSize,
		MinIdleConns:    c.MinIdleConns,
		BreakerFailures: c.BreakerFailures,
		BreakerTimeout:  c.BreakerTimeout,
	}
}

func (c *LogConfig) ToLoggerConfig() logger.Config {
	return logger.Config{Level: c.Level, Pretty: c.Pretty}
}
