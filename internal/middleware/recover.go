package middleware

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"collabchat/internal/errors"
	"collabchat/internal/httputil"
	"collabchat/internal/metrics"
	"collabchat/internal/service"
	"collabchat/internal/tracing"

	"github.com/sirupsen/logrus"
)

// Recover turns a handler panic into a 500 and logs the stack
func Recover(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				// Let net/http abort the response
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				metrics.IncrementCounter("http_panics_total", nil, "Handler panics recovered")
				logger.WithFields(logrus.Fields{
					service.LogFieldRequestID: tracing.GetRequestID(r.Context()),
					"panic":                   fmt.Sprint(rec),
					"stack":                   string(debug.Stack()),
				}).Error("Recovered from handler panic")
				httputil.WriteError(w, r, errors.New(errors.ErrCodeInternalError, "handler panic"))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Timeout bounds the request context. Handlers observe it through ctx.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
