package models

// Config holds the application configuration
type Config struct {
	Server        ServerConfig       `json:"server" mapstructure:"server"`
	Database      DatabaseConfig     `json:"database" mapstructure:"database"`
	Redis         RedisConfig        `json:"redis" mapstructure:"redis"`
	Auth          AuthConfig         `json:"auth" mapstructure:"auth"`
	Gateway       GatewayConfig      `json:"gateway" mapstructure:"gateway"`
	Notifications NotificationConfig `json:"notifications" mapstructure:"notifications"`
	Chats         ChatConfig         `json:"chats" mapstructure:"chats"`
	Retry         RetryConfig        `json:"retry" mapstructure:"retry"`
	Tracing       TracingConfig      `json:"tracing" mapstructure:"tracing"`
	Features      map[string]bool    `json:"features" mapstructure:"features"`
	LogLevel      string             `json:"log_level" mapstructure:"log_level"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port                 int  `json:"port" mapstructure:"port"`
	ReadTimeoutSec       int  `json:"read_timeout_sec" mapstructure:"read_timeout_sec"`
	WriteTimeoutSec      int  `json:"write_timeout_sec" mapstructure:"write_timeout_sec"`
	IdleTimeoutSec       int  `json:"idle_timeout_sec" mapstructure:"idle_timeout_sec"`
	MuteSweepIntervalMin int  `json:"mute_sweep_interval_min" mapstructure:"mute_sweep_interval_min"`
	TrustProxyHeaders    bool `json:"trust_proxy_headers" mapstructure:"trust_proxy_headers"`
	RateLimitPerMinute   int  `json:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"` // per client IP, 0 disables
}

// DatabaseConfig selects the SQL dialect and its connection target.
// Path is used by sqlite3, URL by postgres.
type DatabaseConfig struct {
	Driver       string `json:"driver" mapstructure:"driver"`
	Path         string `json:"path" mapstructure:"path"`
	URL          string `json:"url" mapstructure:"url"`
	MaxOpenConns int    `json:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns" mapstructure:"max_idle_conns"`
}

// RedisConfig holds presence cache configuration
type RedisConfig struct {
	URL              string `json:"url" mapstructure:"url"`
	Prefix           string `json:"prefix" mapstructure:"prefix"`
	LastSeenTTLHours int    `json:"last_seen_ttl_hours" mapstructure:"last_seen_ttl_hours"`
}

// AuthConfig holds token verification settings
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret" mapstructure:"jwt_secret"`
	Issuer    string `json:"issuer" mapstructure:"issuer"`
}

// GatewayConfig holds realtime gateway settings
type GatewayConfig struct {
	AllowedOrigins     []string `json:"allowed_origins" mapstructure:"allowed_origins"`
	WriteTimeoutSec    int      `json:"write_timeout_sec" mapstructure:"write_timeout_sec"`
	ReadLimitBytes     int64    `json:"read_limit_bytes" mapstructure:"read_limit_bytes"`
	EventRateLimit     int      `json:"event_rate_limit" mapstructure:"event_rate_limit"`
	EventRateWindowSec int      `json:"event_rate_window_sec" mapstructure:"event_rate_window_sec"`
}

// NotificationConfig selects and configures the push sender
type NotificationConfig struct {
	Provider          string   `json:"provider" mapstructure:"provider"` // kafka, webhook or none
	KafkaBrokers      []string `json:"kafka_brokers" mapstructure:"kafka_brokers"`
	KafkaTopic        string   `json:"kafka_topic" mapstructure:"kafka_topic"`
	WebhookURL        string   `json:"webhook_url" mapstructure:"webhook_url"`
	WebhookToken      string   `json:"webhook_token" mapstructure:"webhook_token"`
	TimeoutSec        int      `json:"timeout_sec" mapstructure:"timeout_sec"`
	BreakerFailures   int      `json:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerTimeoutSec int      `json:"breaker_timeout_sec" mapstructure:"breaker_timeout_sec"`
}

// ChatConfig controls chat list rendering
type ChatConfig struct {
	TimeZone string `json:"time_zone" mapstructure:"time_zone"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `json:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	MaxAttempts      int `json:"max_attempts" mapstructure:"max_attempts"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled        bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName    string  `json:"service_name" mapstructure:"service_name"`
	ServiceVersion string  `json:"service_version" mapstructure:"service_version"`
	Environment    string  `json:"environment" mapstructure:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint" mapstructure:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate" mapstructure:"sample_rate"`
	UseStdout      bool    `json:"use_stdout" mapstructure:"use_stdout"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
