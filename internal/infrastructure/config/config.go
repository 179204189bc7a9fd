package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Environment tiers.
const (
	EnvProduction  = "production"
	EnvStaging     = "staging"
	EnvDevelopment = "development"
)

type Config struct {
	Environment    string               `mapstructure:"environment"`
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Auth           AuthConfig           `mapstructure:"auth"`
	Telegram       TelegramConfig       `mapstructure:"telegram"`
	Notifications  NotificationConfig   `mapstructure:"notifications"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Webhook        WebhookConfig        `mapstructure:"webhook"`
	Worker         WorkerConfig         `mapstructure:"worker"`
	Observability  ObservabilityConfig  `mapstructure:"observability"`
	InstanceID     string               `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port               int           `mapstructure:"port"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute"`
	CORS               CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	// ApplicationName tags sessions in pg_stat_activity.
	ApplicationName   string        `mapstructure:"application_name"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

// TelegramConfig configures the outbound Bot API client and the inbound webhook.
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	APIBaseURL     string        `mapstructure:"api_base_url"`
	ParseMode      string        `mapstructure:"parse_mode"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxAttempts    uint          `mapstructure:"max_attempts"`
	BaseRetryDelay time.Duration `mapstructure:"base_retry_delay"`
	MaxRetryDelay  time.Duration `mapstructure:"max_retry_delay"`
	WebhookSecret  string        `mapstructure:"webhook_secret"`
}

// NotificationConfig holds per-category feature flags and dedup tuning.
// The dedup window is a hand-tuned default, not a load-tested value.
type NotificationConfig struct {
	AdminChatIDs                string        `mapstructure:"admin_chat_ids"`
	FrontendURL                 string        `mapstructure:"frontend_url"`
	EnableAdminNotifications    bool          `mapstructure:"enable_admin_notifications"`
	EnableMechanicNotifications bool          `mapstructure:"enable_mechanic_notifications"`
	EnableAlertNotifications    bool          `mapstructure:"enable_alert_notifications"`
	DedupWindow                 time.Duration `mapstructure:"dedup_window"`
}

type CircuitBreakerConfig struct {
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
	HalfOpenSuccesses   uint32        `mapstructure:"half_open_successes"`
}

// WebhookConfig tunes the inbound async bridge.
type WebhookConfig struct {
	QueueSize           int           `mapstructure:"queue_size"`
	Concurrency         int           `mapstructure:"concurrency"`
	ReadyTimeout        time.Duration `mapstructure:"ready_timeout"`
	DrainTimeout        time.Duration `mapstructure:"drain_timeout"`
	HandlerTimeout      time.Duration `mapstructure:"handler_timeout"`
	ProcessedTTL        time.Duration `mapstructure:"processed_ttl"`
	ProcessedMaxEntries int           `mapstructure:"processed_max_entries"`
}

type WorkerConfig struct {
	OutboxPollInterval time.Duration `mapstructure:"outbox_poll_interval"`
	OutboxBatchSize    int           `mapstructure:"outbox_batch_size"`
	OutboxClaimLease   time.Duration `mapstructure:"outbox_claim_lease"`
	AlertSchedule      string        `mapstructure:"alert_schedule"`
	AlertLockTTL       time.Duration `mapstructure:"alert_lock_ttl"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

// legacyEnv maps config keys to the environment names used by earlier
// deployments of the shop backend.
var legacyEnv = map[string][]string{
	"environment":                                 {"ENVIRONMENT", "APP_ENV"},
	"telegram.bot_token":                          {"TELEGRAM_BOT_TOKEN", "BOT_TOKEN"},
	"notifications.admin_chat_ids":                {"ADMIN_CHAT_IDS"},
	"notifications.frontend_url":                  {"FRONTEND_URL"},
	"notifications.enable_admin_notifications":    {"ENABLE_TG_ADMIN_NOTIFS"},
	"notifications.enable_mechanic_notifications": {"ENABLE_TG_MECH_NOTIFS"},
}

func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v, DetectEnvironment())

	v.SetEnvPrefix("FELIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		prefixed := "FELIX_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, prefixed}, names...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/felixhub")

	// Config file is optional
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
	cfg.Environment = NormalizeEnvironment(cfg.Environment)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// DetectEnvironment reads the tier from the environment before viper is
// configured, so feature-flag defaults can depend on it.
func DetectEnvironment() string {
	for _, name := range []string{"FELIX_ENVIRONMENT", "ENVIRONMENT", "APP_ENV"} {
		if v := os.Getenv(name); v != "" {
			return NormalizeEnvironment(v)
		}
	}
	return EnvProduction
}

func NormalizeEnvironment(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "staging", "stage":
		return EnvStaging
	case "development", "dev", "testing", "test", "local":
		return EnvDevelopment
	default:
		return EnvProduction
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}
	if c.Database.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if c.Database.Port <= 0 {
		errs = append(errs, fmt.Errorf("database.port must be positive"))
	}
	if c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive"))
	}
	if c.Telegram.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("telegram.request_timeout must be positive"))
	}
	if c.Telegram.MaxAttempts == 0 {
		errs = append(errs, fmt.Errorf("telegram.max_attempts must be positive"))
	}
	if c.CircuitBreaker.FailureThreshold == 0 {
		errs = append(errs, fmt.Errorf("circuit_breaker.failure_threshold must be positive"))
	}
	if c.CircuitBreaker.OpenTimeout <= 0 {
		errs = append(errs, fmt.Errorf("circuit_breaker.open_timeout must be positive"))
	}
	if c.CircuitBreaker.HalfOpenSuccesses == 0 {
		errs = append(errs, fmt.Errorf("circuit_breaker.half_open_successes must be positive"))
	}
	if c.Notifications.DedupWindow <= 0 {
		errs = append(errs, fmt.Errorf("notifications.dedup_window must be positive"))
	}
	if c.Webhook.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("webhook.queue_size must be positive"))
	}
	if c.Webhook.ProcessedMaxEntries <= 0 {
		errs = append(errs, fmt.Errorf("webhook.processed_max_entries must be positive"))
	}
	if c.Webhook.ProcessedTTL <= 0 {
		errs = append(errs, fmt.Errorf("webhook.processed_ttl must be positive"))
	}
	if c.Worker.OutboxBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("worker.outbox_batch_size must be positive"))
	}

	if c.IsProduction() {
		if c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
		if c.Telegram.BotToken == "" {
			errs = append(errs, fmt.Errorf("telegram.bot_token required in production"))
		}
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, fmt.Errorf("auth.jwt_secret must be at least 32 characters"))
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper, env string) {
	// Feature flags are off in production and on in staging/development.
	featureDefault := env != EnvProduction

	v.SetDefault("environment", env)

	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.rate_limit_per_minute", 600)
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "felixhub")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "felixhub")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 2)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.conn_max_idle_time", "30m")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.application_name", "felixhub")
	v.SetDefault("database.connect_retries", 5)
	v.SetDefault("database.connect_retry_delay", "1s")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	v.SetDefault("auth.jwt_secret", "")

	// Telegram defaults
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.api_base_url", "https://api.telegram.org")
	v.SetDefault("telegram.parse_mode", "HTML")
	v.SetDefault("telegram.request_timeout", "10s")
	v.SetDefault("telegram.max_attempts", 3)
	v.SetDefault("telegram.base_retry_delay", "1s")
	v.SetDefault("telegram.max_retry_delay", "60s")
	v.SetDefault("telegram.webhook_secret", "")

	// Notification defaults
	v.SetDefault("notifications.admin_chat_ids", "")
	v.SetDefault("notifications.frontend_url", "https://felix-hub.example.com")
	v.SetDefault("notifications.enable_admin_notifications", featureDefault)
	v.SetDefault("notifications.enable_mechanic_notifications", featureDefault)
	v.SetDefault("notifications.enable_alert_notifications", featureDefault)
	v.SetDefault("notifications.dedup_window", "15m")

	// Circuit breaker defaults
	v.SetDefault("circuit_breaker.failure_threshold", 5)
	v.SetDefault("circuit_breaker.open_timeout", "60s")
	v.SetDefault("circuit_breaker.half_open_successes", 3)

	// Webhook bridge defaults
	v.SetDefault("webhook.queue_size", 256)
	v.SetDefault("webhook.concurrency", 8)
	v.SetDefault("webhook.ready_timeout", "5s")
	v.SetDefault("webhook.drain_timeout", "15s")
	v.SetDefault("webhook.handler_timeout", "30s")
	v.SetDefault("webhook.processed_ttl", "15m")
	v.SetDefault("webhook.processed_max_entries", 2048)

	// Worker defaults
	v.SetDefault("worker.outbox_poll_interval", "2s")
	v.SetDefault("worker.outbox_batch_size", 10)
	v.SetDefault("worker.outbox_claim_lease", "5m")
	v.SetDefault("worker.alert_schedule", "@every 5m")
	v.SetDefault("worker.alert_lock_ttl", "2m")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", false)

	v.SetDefault("instance_id", "felixhub-1")
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// DatabaseURL returns the URL form used by golang-migrate.
func (c *DatabaseConfig) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AdminRecipients parses the comma-separated admin chat list.
func (c *NotificationConfig) AdminRecipients() []string {
	var ids []string
	for _, id := range strings.Split(c.AdminChatIDs, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// AdminOrderLink builds the admin deep link embedded in notification text.
func (c *NotificationConfig) AdminOrderLink(orderID int64) string {
	return fmt.Sprintf("%s/#/admin/orders/%d", strings.TrimRight(c.FrontendURL, "/"), orderID)
}
