package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/dentalbook/marketplace-api/pkg/messaging/redis"
	"github.com/dentalbook/marketplace-api/pkg/security"
	"github.com/dentalbook/marketplace-api/pkg/worker"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	BrokerNone  = "none"
	BrokerRedis = "redis"
	BrokerKafka = "kafka"
)

type Config struct {
	Env       string          `mapstructure:"env"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Security  SecurityConfig  `mapstructure:"security"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Audit     AuditConfig     `mapstructure:"audit"`
	GDPR      GDPRConfig      `mapstructure:"gdpr"`
	Messaging MessagingConfig `mapstructure:"messaging"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Log       LogConfig       `mapstructure:"log"`

	// Warnings collects non-fatal findings for the caller to log.
	Warnings []string `mapstructure:"-"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
}

type SecurityConfig struct {
	BcryptCost       int           `mapstructure:"bcrypt_cost"`
	MaxLoginAttempts int           `mapstructure:"max_login_attempts"`
	LockoutDuration  time.Duration `mapstructure:"lockout_duration"`
	SessionTTL       time.Duration `mapstructure:"session_ttl"`
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
	MaxBodyBytes     int64         `mapstructure:"max_body_bytes"`
	EncryptionKey    string        `mapstructure:"encryption_key"`
}

type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	LoginPerMinute    int           `mapstructure:"login_per_minute"`
	IdleTTL           time.Duration `mapstructure:"idle_ttl"`
}

type AuditConfig struct {
	QueueSize    int           `mapstructure:"queue_size"`
	Workers      int           `mapstructure:"workers"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type GDPRConfig struct {
	RetentionYears int `mapstructure:"retention_years"`
}

// Retention is the period personal data is kept after consent.
func (g GDPRConfig) Retention() time.Duration {
	return time.Duration(g.RetentionYears) * 365 * 24 * time.Hour
}

type MessagingConfig struct {
	Broker string `mapstructure:"broker"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group_id"`
}

type OutboxConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
}

type WorkerConfig struct {
	// HealthPort serves liveness, readiness and metrics for the worker.
	HealthPort int `mapstructure:"health_port"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// secrets are read straight from the environment and win over any file.
type secrets struct {
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	JWTSecret     string `envconfig:"JWT_SECRET"`
	EncryptionKey string `envconfig:"ENCRYPTION_KEY"`
	AppEnv        string `envconfig:"APP_ENV"`
	NodeEnv       string `envconfig:"NODE_ENV"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", EnvDevelopment)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.request_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", 24*time.Hour)

	v.SetDefault("security.bcrypt_cost", security.DefaultBcryptCost)
	v.SetDefault("security.max_login_attempts", 5)
	v.SetDefault("security.lockout_duration", 30*time.Minute)
	v.SetDefault("security.session_ttl", 24*time.Hour)
	v.SetDefault("security.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("security.max_body_bytes", int64(1<<20))
	v.SetDefault("security.encryption_key", "")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 10.0)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("rate_limit.login_per_minute", 10)
	v.SetDefault("rate_limit.idle_ttl", 10*time.Minute)

	v.SetDefault("audit.queue_size", 1024)
	v.SetDefault("audit.workers", 2)
	v.SetDefault("audit.write_timeout", 5*time.Second)

	v.SetDefault("gdpr.retention_years", 7)

	v.SetDefault("messaging.broker", BrokerNone)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.group_id", "dentalbook-notifier")

	v.SetDefault("outbox.batch_size", 50)
	v.SetDefault("outbox.poll_interval", 2*time.Second)
	v.SetDefault("outbox.retry_attempts", 5)
	v.SetDefault("outbox.retry_delay", 30*time.Second)

	v.SetDefault("worker.health_port", 8081)

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "no-reply@dentalbook.local")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads .env, defaults, an optional config.yaml, the environment and
// finally the secret variables, then validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/dentalbook")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var s secrets
	if err := envconfig.Process("", &s); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	cfg.applySecrets(s)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applySecrets(s secrets) {
	if s.DatabaseURL != "" {
		c.Database.URL = s.DatabaseURL
	}
	if s.JWTSecret != "" {
		c.JWT.Secret = s.JWTSecret
	}
	if s.EncryptionKey != "" {
		c.Security.EncryptionKey = s.EncryptionKey
	}
	switch {
	case s.AppEnv != "":
		c.Env = s.AppEnv
	case s.NodeEnv != "":
		c.Env = s.NodeEnv
	}
	c.Env = strings.ToLower(c.Env)
}

func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// Validate checks required settings. Outside production, missing JWT and
// encryption secrets are replaced by random ones and a warning is recorded.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return errors.New("DATABASE_URL is required")
		}
	case DriverMemory:
		if c.IsProduction() {
			return errors.New("memory database driver is not allowed in production")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}

	if c.JWT.Secret == "" {
		if c.IsProduction() {
			return errors.New("JWT_SECRET is required in production")
		}
		secret, err := security.RandomHex(32)
		if err != nil {
			return fmt.Errorf("generate jwt secret: %w", err)
		}
		c.JWT.Secret = secret
		c.Warnings = append(c.Warnings, "JWT_SECRET not set; using a random secret, tokens will not survive a restart")
	}

	if c.Security.EncryptionKey == "" {
		if c.IsProduction() {
			return errors.New("ENCRYPTION_KEY is required in production")
		}
		key, err := security.RandomHex(security.KeySize)
		if err != nil {
			return fmt.Errorf("generate encryption key: %w", err)
		}
		c.Security.EncryptionKey = key
		c.Warnings = append(c.Warnings, "ENCRYPTION_KEY not set; using a random key, stored clinical data will be unreadable after a restart")
	}
	if _, err := security.ParseKey(c.Security.EncryptionKey); err != nil {
		return errors.New("ENCRYPTION_KEY must be 32 bytes, hex or base64 encoded")
	}

	switch c.Messaging.Broker {
	case BrokerNone:
	case BrokerRedis:
		if c.Redis.URL == "" {
			return errors.New("redis.url is required for the redis broker")
		}
	case BrokerKafka:
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("kafka.brokers is required for the kafka broker")
		}
	default:
		return fmt.Errorf("unknown messaging broker %q", c.Messaging.Broker)
	}

	if c.Audit.QueueSize <= 0 || c.Audit.Workers <= 0 {
		return errors.New("audit queue_size and workers must be positive")
	}
	return nil
}

// EncryptionKeyBytes decodes the validated encryption key.
func (c *Config) EncryptionKeyBytes() []byte {
	key, _ := security.ParseKey(c.Security.EncryptionKey)
	return key
}

func (c *OutboxConfig) ToWorkerConfig() worker.OutboxProcessorConfig {
	return worker.OutboxProcessorConfig{
		BatchSize:     c.BatchSize,
		PollInterval:  c.PollInterval,
		RetryAttempts: c.RetryAttempts,
		RetryDelay:    c.RetryDelay,
	}
}

func (c *RedisConfig) ToBrokerConfig() redis.Config {
	return redis.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}
