package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Gateway       GatewayConfig       `mapstructure:"gateway"`
	Currency      CurrencyConfig      `mapstructure:"currency"`
	OrderQuery    OrderQueryConfig    `mapstructure:"order_query"`
	OrderTimeout  OrderTimeoutConfig  `mapstructure:"order_timeout"`
	WebhookRetry  WebhookRetryConfig  `mapstructure:"webhook_retry"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	InstanceID    string              `mapstructure:"instance_id"`
	SiteID        string              `mapstructure:"site_id"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type AuthConfig struct {
	// AdminJWTSecret signs the bearer tokens for the admin endpoints.
	AdminJWTSecret string `mapstructure:"admin_jwt_secret"`
	// StatusCheckToken is the anti-forgery token the checkout platform
	// embeds in its status-check calls. Empty means the endpoint is public.
	StatusCheckToken string `mapstructure:"status_check_token"`
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
	SSLMode         string        `mapstructure:"ssl_mode"`
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

// GatewayConfig identifies the merchant against the payment provider.
type GatewayConfig struct {
	AppID          string        `mapstructure:"app_id"`
	GatewayURL     string        `mapstructure:"gateway_url"`
	SandboxURL     string        `mapstructure:"sandbox_url"`
	Sandbox        bool          `mapstructure:"sandbox"`
	NotifyURL      string        `mapstructure:"notify_url"`
	ReturnURL      string        `mapstructure:"return_url"`
	SignType       string        `mapstructure:"sign_type"`
	Charset        string        `mapstructure:"charset"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	PrivateKeyPath string        `mapstructure:"private_key_path"`
	PublicKeyPath  string        `mapstructure:"public_key_path"`
}

// EffectiveURL returns the gateway endpoint honoring sandbox mode.
func (c *GatewayConfig) EffectiveURL() string {
	if c.Sandbox && c.SandboxURL != "" {
		return c.SandboxURL
	}
	return c.GatewayURL
}

type CurrencyConfig struct {
	// Supported lists currencies the provider settles natively.
	Supported []string `mapstructure:"supported"`
	// ExchangeRate converts one unit of any other store currency into the
	// settlement currency.
	ExchangeRate string `mapstructure:"exchange_rate"`
}

type OrderQueryConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Interval      time.Duration `mapstructure:"interval"`
	RecencyWindow time.Duration `mapstructure:"recency_window"`
	BatchSize     int           `mapstructure:"batch_size"`
	ItemDelay     time.Duration `mapstructure:"item_delay"`
}

type OrderTimeoutConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval"`
	Timeout   time.Duration `mapstructure:"timeout"`
	BatchSize int           `mapstructure:"batch_size"`
}

type WebhookRetryConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Interval   time.Duration `mapstructure:"interval"`
	MaxRetries int           `mapstructure:"max_retries"`
	CoolDown   time.Duration `mapstructure:"cool_down"`
	BatchSize  int           `mapstructure:"batch_size"`
	ItemDelay  time.Duration `mapstructure:"item_delay"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("ALIPAY_BRIDGE")
	v.AutomaticEnv()

	// Read from config file if exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/alipay-bridge")

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

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
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
	if c.Gateway.GatewayURL == "" {
		errs = append(errs, fmt.Errorf("gateway.gateway_url is required"))
	}
	if c.WebhookRetry.MaxRetries <= 0 {
		errs = append(errs, fmt.Errorf("webhook_retry.max_retries must be positive"))
	}
	if c.OrderTimeout.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("order_timeout.timeout must be positive"))
	}

	// Production environment checks
	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
		if c.Gateway.AppID == "" {
			errs = append(errs, fmt.Errorf("gateway.app_id required in production"))
		}
		if c.Auth.AdminJWTSecret == "" {
			errs = append(errs, fmt.Errorf("auth.admin_jwt_secret required in production"))
		}
	}

	if c.Auth.AdminJWTSecret != "" && len(c.Auth.AdminJWTSecret) < 32 {
		errs = append(errs, fmt.Errorf("auth.admin_jwt_secret must be at least 32 characters"))
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "alipay_bridge")
	v.SetDefault("database.database", "alipay_bridge")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Gateway defaults
	v.SetDefault("gateway.gateway_url", "https://openapi.alipay.com/gateway.do")
	v.SetDefault("gateway.sandbox_url", "https://openapi.alipaydev.com/gateway.do")
	v.SetDefault("gateway.sandbox", false)
	v.SetDefault("gateway.sign_type", "RSA2")
	v.SetDefault("gateway.charset", "utf-8")
	v.SetDefault("gateway.request_timeout", "10s")

	// Currency defaults
	v.SetDefault("currency.supported", []string{"CNY", "RMB"})
	v.SetDefault("currency.exchange_rate", "7.0")

	// Order query sweep defaults
	v.SetDefault("order_query.enabled", true)
	v.SetDefault("order_query.interval", "5m")
	v.SetDefault("order_query.recency_window", "24h")
	v.SetDefault("order_query.batch_size", 50)
	v.SetDefault("order_query.item_delay", "1s")

	// Order timeout sweep defaults
	v.SetDefault("order_timeout.enabled", true)
	v.SetDefault("order_timeout.interval", "10m")
	v.SetDefault("order_timeout.timeout", "30m")
	v.SetDefault("order_timeout.batch_size", 100)

	// Webhook retry sweep defaults
	v.SetDefault("webhook_retry.enabled", true)
	v.SetDefault("webhook_retry.interval", "1h")
	v.SetDefault("webhook_retry.max_retries", 5)
	v.SetDefault("webhook_retry.cool_down", "10m")
	v.SetDefault("webhook_retry.batch_size", 10)
	v.SetDefault("webhook_retry.item_delay", "2s")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", true)

	// Instance ID
	v.SetDefault("instance_id", "alipay-bridge-1")
	v.SetDefault("site_id", "")
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
