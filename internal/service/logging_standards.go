package service

// Logging standards for collabchat
//
// Standard field names used across the service, gateway and HTTP layers.
// Identifiers that point at people are masked unless verbose logging is on.
const (
	// Core identifiers
	LogFieldUserID       = "user_id"
	LogFieldSenderID     = "sender_id"
	LogFieldReceiverID   = "receiver_id"
	LogFieldGroupID      = "group_id"
	LogFieldMessageID    = "message_id"
	LogFieldConnectionID = "connection_id"

	// Service and operation fields
	LogFieldService   = "service"
	LogFieldOperation = "operation"
	LogFieldComponent = "component"

	// Message and event fields
	LogFieldEvent       = "event"
	LogFieldMessageType = "message_type"
	LogFieldMessageKind = "message_kind"
	LogFieldDelivery    = "delivery" // live, push, muted, skipped

	// Performance and metrics
	LogFieldDuration = "duration_ms"
	LogFieldCount    = "count"

	// Request correlation
	LogFieldRequestID = "request_id"
	LogFieldTraceID   = "trace_id"

	// Network
	LogFieldRemoteIP   = "remote_ip"
	LogFieldStatusCode = "status_code"
	LogFieldMethod     = "method"
	LogFieldPath       = "path"
	LogFieldRoute      = "route"
	LogFieldUserAgent  = "user_agent"
	LogFieldSize       = "response_size"

	// Error and debugging
	LogFieldErrorCode = "error_code"
	LogFieldAttempt   = "attempt"
)

// Log level usage
//
// DEBUG: payload details (sanitized), per-event flow, skipped pushes.
// INFO: startup and shutdown, connection open and close, sweeps that removed rows.
// WARN: client mistakes, retryable failures, push provider errors, rate limiting.
// ERROR: store failures and anything a client cannot fix by retrying.
//
// Message patterns: "Starting [operation]", "Failed to [operation]",
// "Skipping [operation]: [reason]".
