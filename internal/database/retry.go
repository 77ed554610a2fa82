package database

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"collabchat/internal/constants"
	"collabchat/internal/retry"
)

var dbRetryPolicy = retry.Policy{
	InitialDelay: time.Duration(constants.DefaultDatabaseRetryBackoffMs) * time.Millisecond,
	MaxDelay:     time.Duration(constants.DefaultMaxBackoffMs) * time.Millisecond,
	Multiplier:   2,
	MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
}

// retryableDBOperationNoReturn runs an idempotent write, retrying transient
// lock and connection errors. Non-retryable errors are returned unchanged.
func retryableDBOperationNoReturn(ctx context.Context, operation func() error, operationName string) error {
	return retry.Do(ctx, dbRetryPolicy, operationName, func(context.Context) error {
		return operation()
	}, retry.If(isRetryableDBError))
}

var retryableDBMessages = []string{
	"database is locked",
	"database table is locked",
	"disk I/O error",
	"connection refused",
	"connection reset by peer",
	"no such host",
	"deadlock detected",
	"could not serialize access",
}

// isRetryableDBError reports whether err looks transient
func isRetryableDBError(err error) bool {
	if err == nil {
		return false
	}

	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}

	errStr := err.Error()
	for _, msg := range retryableDBMessages {
		if strings.Contains(errStr, msg) {
			return true
		}
	}

	// constraint violations, schema errors and not found are permanent
	return false
}
