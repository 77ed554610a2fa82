package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies an AppError. Clients see it in REST bodies and
// gateway error events.
type ErrorCode string

const (
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	ErrCodeMissingConfig ErrorCode = "MISSING_CONFIG"

	// Message store
	ErrCodeDatabaseConnection ErrorCode = "DATABASE_CONNECTION"
	ErrCodeDatabaseQuery      ErrorCode = "DATABASE_QUERY"
	ErrCodeDatabaseMigration  ErrorCode = "DATABASE_MIGRATION"

	// Redis presence and push senders
	ErrCodePresenceCache ErrorCode = "PRESENCE_CACHE"
	ErrCodePushDelivery  ErrorCode = "PUSH_DELIVERY"

	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	ErrCodeAuthentication ErrorCode = "AUTHENTICATION"
	ErrCodeAuthorization  ErrorCode = "AUTHORIZATION"
	ErrCodeRateLimit      ErrorCode = "RATE_LIMIT"

	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeTimeout       ErrorCode = "TIMEOUT"
)

const internalUserMessage = "An internal error occurred"

// fallbackUserMessages is what clients read when no explicit user message
// was attached. Codes missing here fall back to internalUserMessage.
var fallbackUserMessages = map[ErrorCode]string{
	ErrCodeDatabaseConnection: "Messages are temporarily unavailable",
	ErrCodeDatabaseQuery:      "Messages are temporarily unavailable",
	ErrCodePresenceCache:      "Presence is temporarily unavailable",
	ErrCodeAuthentication:     "Authentication required",
	ErrCodeAuthorization:      "Not allowed",
	ErrCodeRateLimit:          "Too many requests",
	ErrCodeNotFound:           "Not found",
	ErrCodeTimeout:            "The request timed out",
}

// AppError carries a code, an internal message, an optional cause and the
// text safe to show a client
type AppError struct {
	Code        ErrorCode              `json:"code"`
	Message     string                 `json:"message"`
	Cause       error                  `json:"-"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Retryable   bool                   `json:"retryable"`
	UserMessage string                 `json:"user_message,omitempty"`
}

func (e *AppError) Error() string {
	msg := string(e.Code) + ": " + e.Message
	if e.Cause == nil {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, e.Cause)
}

func (e *AppError) Unwrap() error { return e.Cause }

// WithContext attaches a key/value to the error; only some keys reach clients
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{}, 2)
	}
	e.Context[key] = value
	return e
}

func (e *AppError) WithUserMessage(msg string) *AppError {
	e.UserMessage = msg
	return e
}

func newAppError(code ErrorCode, message string, cause error, retryable bool) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause, Retryable: retryable}
}

func New(code ErrorCode, message string) *AppError {
	return newAppError(code, message, nil, false)
}

// Wrap attaches a code and message to a lower level error
func Wrap(err error, code ErrorCode, message string) *AppError {
	return newAppError(code, message, err, false)
}

// WrapRetryable is Wrap for transient failures such as a dropped connection
func WrapRetryable(err error, code ErrorCode, message string) *AppError {
	return newAppError(code, message, err, true)
}

// As finds the first AppError in err's chain, looking through fmt %w wrapping
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return nil, false
	}
	return appErr, true
}

func IsRetryable(err error) bool {
	appErr, ok := As(err)
	return ok && appErr.Retryable
}

// GetCode returns INTERNAL_ERROR for errors that are not AppErrors
func GetCode(err error) ErrorCode {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return ErrCodeInternalError
}

func HasCode(err error, code ErrorCode) bool {
	return err != nil && GetCode(err) == code
}

// GetUserMessage never leaks Message or Cause: it returns the attached user
// message or a fixed text for the code
func GetUserMessage(err error) string {
	appErr, ok := As(err)
	if !ok {
		return internalUserMessage
	}
	if appErr.UserMessage != "" {
		return appErr.UserMessage
	}
	if msg, ok := fallbackUserMessages[appErr.Code]; ok {
		return msg
	}
	return internalUserMessage
}
