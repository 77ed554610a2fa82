package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"collabchat/internal/constants"
	"collabchat/internal/models"
	"collabchat/internal/security"
	"collabchat/internal/validation"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. COLLABCHAT_AUTH_JWT_SECRET
const EnvPrefix = "COLLABCHAT"

// EnvironmentVar selects production checks when set to "production"
const EnvironmentVar = "COLLABCHAT_ENV"

const minProductionSecretLength = 32

var (
	ErrMissingJWTSecret   = models.ConfigError{Message: "missing auth.jwt_secret (set COLLABCHAT_AUTH_JWT_SECRET)"}
	ErrMissingDBPath      = models.ConfigError{Message: "missing database path"}
	ErrMissingDBURL       = models.ConfigError{Message: "missing database url for postgres"}
	ErrUnsupportedDialect = models.ConfigError{Message: "database driver must be sqlite3 or postgres"}
)

// LoadConfig reads the file at path, if any, layers COLLABCHAT_* environment
// variables on top of it and validates the result. An empty path loads
// defaults and environment only.
func LoadConfig(path string) (*models.Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if err := security.ValidateFilePath(path); err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg models.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	if err := validateSecurity(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("server.port", constants.DefaultServerPort)
	v.SetDefault("server.read_timeout_sec", constants.DefaultServerReadTimeoutSec)
	v.SetDefault("server.write_timeout_sec", constants.DefaultServerWriteTimeoutSec)
	v.SetDefault("server.idle_timeout_sec", constants.DefaultServerIdleTimeoutSec)
	v.SetDefault("server.mute_sweep_interval_min", constants.DefaultMuteSweepIntervalMin)
	v.SetDefault("server.trust_proxy_headers", false)
	v.SetDefault("server.rate_limit_per_minute", constants.DefaultHTTPRateLimitPerMin)

	v.SetDefault("database.driver", constants.DialectSQLite)
	v.SetDefault("database.path", constants.DefaultDatabasePath)
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", constants.DefaultDBMaxOpenConns)
	v.SetDefault("database.max_idle_conns", constants.DefaultDBMaxIdleConns)

	v.SetDefault("redis.url", constants.DefaultRedisURL)
	v.SetDefault("redis.prefix", constants.DefaultPresencePrefix)
	v.SetDefault("redis.last_seen_ttl_hours", 0)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")

	v.SetDefault("gateway.allowed_origins", []string{})
	v.SetDefault("gateway.write_timeout_sec", constants.DefaultGatewayWriteTimeoutSec)
	v.SetDefault("gateway.read_limit_bytes", constants.DefaultGatewayReadLimitBytes)
	v.SetDefault("gateway.event_rate_limit", constants.DefaultEventRateLimit)
	v.SetDefault("gateway.event_rate_window_sec", constants.DefaultEventRateWindowSec)

	v.SetDefault("notifications.provider", "none")
	v.SetDefault("notifications.kafka_brokers", []string{})
	v.SetDefault("notifications.kafka_topic", constants.DefaultPushTopic)
	v.SetDefault("notifications.webhook_url", "")
	v.SetDefault("notifications.webhook_token", "")
	v.SetDefault("notifications.timeout_sec", constants.DefaultPushTimeoutSec)
	v.SetDefault("notifications.breaker_failures", constants.DefaultPushBreakerFailures)
	v.SetDefault("notifications.breaker_timeout_sec", constants.DefaultPushBreakerTimeoutSec)

	v.SetDefault("chats.time_zone", "UTC")

	v.SetDefault("retry.initial_backoff_ms", constants.DefaultRetryBackoffMs)
	v.SetDefault("retry.max_backoff_ms", constants.DefaultMaxBackoffMs)
	v.SetDefault("retry.max_attempts", constants.DefaultMaxAttempts)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "collabchat")
	v.SetDefault("tracing.service_version", "dev")
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.otlp_endpoint", "")
	v.SetDefault("tracing.sample_rate", 0.1)
	v.SetDefault("tracing.use_stdout", false)
}

func validate(c *models.Config) error {
	if err := validation.ValidateNumericRange(c.Server.Port, "server.port", 1, 65535); err != nil {
		return models.ConfigError{Message: err.Error()}
	}
	for field, sec := range map[string]int{
		"server.read_timeout_sec":   c.Server.ReadTimeoutSec,
		"server.write_timeout_sec":  c.Server.WriteTimeoutSec,
		"server.idle_timeout_sec":   c.Server.IdleTimeoutSec,
		"gateway.write_timeout_sec": c.Gateway.WriteTimeoutSec,
		"notifications.timeout_sec": c.Notifications.TimeoutSec,
	} {
		if err := validation.ValidateTimeout(sec, field); err != nil {
			return models.ConfigError{Message: err.Error()}
		}
	}

	switch strings.ToLower(c.Database.Driver) {
	case constants.DialectSQLite:
		if c.Database.Path == "" {
			return ErrMissingDBPath
		}
	case constants.DialectPostgres:
		if c.Database.URL == "" {
			return ErrMissingDBURL
		}
	default:
		return ErrUnsupportedDialect
	}
	if err := validation.ValidateConnectionPool(c.Database.MaxOpenConns, c.Database.MaxIdleConns); err != nil {
		return models.ConfigError{Message: err.Error()}
	}

	if c.Auth.JWTSecret == "" {
		return ErrMissingJWTSecret
	}

	if c.Server.RateLimitPerMinute < 0 {
		return models.ConfigError{Message: "server.rate_limit_per_minute cannot be negative"}
	}

	if c.Gateway.EventRateLimit < 0 {
		return models.ConfigError{Message: "gateway.event_rate_limit cannot be negative"}
	}
	if c.Gateway.EventRateWindowSec <= 0 {
		return models.ConfigError{Message: "gateway.event_rate_window_sec must be positive"}
	}

	switch strings.ToLower(c.Notifications.Provider) {
	case "kafka":
		if len(c.Notifications.KafkaBrokers) == 0 {
			return models.ConfigError{Message: "notifications.kafka_brokers is required for the kafka provider"}
		}
	case "webhook":
		if _, err := url.ParseRequestURI(c.Notifications.WebhookURL); err != nil {
			return models.ConfigError{Message: "notifications.webhook_url must be a valid URL for the webhook provider"}
		}
	case "none", "":
	default:
		return models.ConfigError{Message: fmt.Sprintf("unknown notifications.provider %q", c.Notifications.Provider)}
	}

	if _, err := time.LoadLocation(c.Chats.TimeZone); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid chats.time_zone %q", c.Chats.TimeZone)}
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid log_level %q", c.LogLevel)}
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return models.ConfigError{Message: "tracing.sample_rate must be between 0 and 1"}
	}

	if c.Retry.MaxAttempts < 1 {
		c.Retry.MaxAttempts = constants.DefaultMaxAttempts
	}
	return nil
}

// IsProduction reports whether production checks apply
func IsProduction() bool {
	return os.Getenv(EnvironmentVar) == "production"
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	if !IsProduction() {
		if len(c.Auth.JWTSecret) < minProductionSecretLength {
			fmt.Fprintf(os.Stderr, "WARNING: auth.jwt_secret is shorter than %d characters. Use a longer secret outside development.\n",
				minProductionSecretLength)
		}
		return nil
	}

	if err := security.ValidateSecretStrength("auth.jwt_secret", c.Auth.JWTSecret, minProductionSecretLength); err != nil {
		return models.ConfigError{Message: err.Error()}
	}

	// Debug and trace lines carry unmasked identifiers
	level, _ := logrus.ParseLevel(c.LogLevel)
	if level >= logrus.DebugLevel {
		return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
	}

	for _, origin := range c.Gateway.AllowedOrigins {
		if origin == "*" {
			return models.ConfigError{Message: "gateway.allowed_origins must not contain * in production"}
		}
	}

	if strings.EqualFold(c.Notifications.Provider, "webhook") && !strings.HasPrefix(c.Notifications.WebhookURL, "https://") {
		return models.ConfigError{Message: "notifications.webhook_url must use https in production"}
	}

	return nil
}
