package constants

// Default server configuration values
const (
	DefaultServerPort            = 8082
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	DefaultHTTPRateLimitPerMin   = 300
	ServerErrorChannelSize       = 1
)

// Default retry configuration values
const (
	DefaultRetryBackoffMs         = 1000
	DefaultMaxBackoffMs           = 60000
	DefaultMaxAttempts            = 5
	DefaultDatabaseRetryAttempts  = 3
	DefaultDatabaseRetryBackoffMs = 50
)

// Database defaults
const (
	DialectSQLite             = "sqlite3"
	DialectPostgres           = "postgres"
	DefaultDatabasePath       = "collabchat.db"
	DefaultDBMaxOpenConns     = 20
	DefaultDBMaxIdleConns     = 10
	DefaultDBConnMaxLifetimeM = 30
)

// Gateway defaults
const (
	DefaultGatewayWriteTimeoutSec = 10
	DefaultGatewayReadLimitBytes  = 64 * 1024
	DefaultEventRateLimit         = 30
	DefaultEventRateWindowSec     = 10
	GatewayCloseUnauthorized      = 4401
)

// Presence defaults
const (
	DefaultPresencePrefix = "presence"
	DefaultRedisURL       = "redis://localhost:6379/0"
	DefaultRedisTimeout   = 5
)

// Notification defaults
const (
	DefaultPushTopic             = "push-notifications"
	DefaultPushTimeoutSec        = 10
	DefaultPushBreakerFailures   = 5
	DefaultPushBreakerTimeoutSec = 30
	DefaultPushSnippetLength     = 120
)

// Message limits
const (
	MaxMessageContentLength = 4000
	MaxSearchQueryLength    = 200
	MaxBulkDeleteIDs        = 100
	MaxReactionLength       = 32
	MaxIDLength             = 64
	DefaultSearchLimit      = 50
	MaxSearchLimit          = 200
)

// Housekeeping
const (
	DefaultMuteSweepIntervalMin = 60
	DefaultChatDayLayout        = "2006-01-02"
)

// Privacy settings
const (
	DefaultPhoneMaskLength = 4
	DefaultMessageIDLength = 8
)

// Encryption constants for device token storage
const (
	EncryptionSalt       = "collabchat-device-token-salt-v1"
	EncryptionLookupSalt = "collabchat-device-token-lookup-v1"
	EncryptionNonceSize  = 12
	EncryptionKeySize    = 32
	EncryptionIterations = 100000
)
