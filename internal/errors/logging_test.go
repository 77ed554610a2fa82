package errors

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func newBufferedLogger() (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := NewLogger(nil)
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.DebugLevel)
	return logger, &buf
}

func TestNewLogger_DefaultsToJSON(t *testing.T) {
	logger := NewLogger(nil)
	_, ok := logger.Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok)

	base := logrus.New()
	assert.Same(t, base, NewLogger(base).Logger)
}

func TestLogger_LogError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		fields   []logrus.Fields
		expected []string
	}{
		{
			name:   "AppError with context",
			err:    NewNotFoundError("message", "m-1"),
			fields: []logrus.Fields{{"user_id": "u-1"}},
			expected: []string{
				`"level":"error"`,
				`"error_code":"NOT_FOUND"`,
				`"retryable":false`,
				`"resource":"message"`,
				`"user_id":"u-1"`,
			},
		},
		{
			name:     "plain error",
			err:      errors.New("something broke"),
			expected: []string{`"level":"error"`, `"error":"something broke"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := newBufferedLogger()
			logger.LogError(tt.err, "operation failed", tt.fields...)
			for _, s := range tt.expected {
				assert.Contains(t, buf.String(), s)
			}
		})
	}
}

func TestLogger_LogClientError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		level string
	}{
		{"validation is a warning", NewValidationError("content", "", "empty"), `"level":"warning"`},
		{"authorization is a warning", NewAuthorizationError("group", "g"), `"level":"warning"`},
		{"store failure is an error", NewDatabaseError("insert", errors.New("x")), `"level":"error"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := newBufferedLogger()
			logger.LogClientError(tt.err, "event failed")
			assert.Contains(t, buf.String(), tt.level)
		})
	}
}

func TestLogger_LogRetryableError(t *testing.T) {
	logger, buf := newBufferedLogger()
	logger.LogRetryableError(WrapRetryable(errors.New("timeout"), ErrCodePushDelivery, "push"), "push failed")
	assert.Contains(t, buf.String(), `"level":"warning"`)
	assert.Contains(t, buf.String(), `"retryable":true`)
}
