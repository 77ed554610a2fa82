package service

import (
	"context"

	"collabchat/internal/privacy"

	"github.com/sirupsen/logrus"
)

// ContextKey is a package-local type to prevent context key collisions
type ContextKey string

// VerboseContextKey marks a context whose log lines may carry raw identifiers
const VerboseContextKey ContextKey = "verbose"

// WithVerboseLogging returns ctx flagged for verbose logging
func WithVerboseLogging(ctx context.Context, verbose bool) context.Context {
	return context.WithValue(ctx, VerboseContextKey, verbose)
}

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// SanitizeUserID masks a user id for logs
func SanitizeUserID(userID string) string {
	return privacy.MaskUserID(userID)
}

// messageFields builds the standard fields for a message log line, masking
// people identifiers unless the context is verbose
func messageFields(ctx context.Context, senderID, targetField, targetID, msgID string) logrus.Fields {
	fields := logrus.Fields{
		LogFieldSenderID:  senderID,
		targetField:       targetID,
		LogFieldMessageID: msgID,
	}
	if IsVerboseLogging(ctx) {
		return fields
	}
	return logrus.Fields(privacy.MaskSensitiveFields(fields))
}
