package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"collabchat/internal/privacy"
	"collabchat/internal/service"
	"collabchat/internal/tracing"

	"github.com/sirupsen/logrus"
)

const maskedValue = "***MASKED***"

// DetailedLoggingConfig controls what gets logged
type DetailedLoggingConfig struct {
	LogRequestHeaders bool
	LogRequestBody    bool
	MaxBodySize       int64
	SensitiveHeaders  []string
	SkipPaths         []string
}

// DefaultDetailedLoggingConfig logs headers only. Bodies carry message
// content and stay off unless asked for.
func DefaultDetailedLoggingConfig() DetailedLoggingConfig {
	return DetailedLoggingConfig{
		LogRequestHeaders: true,
		LogRequestBody:    false,
		MaxBodySize:       1024,
		SensitiveHeaders: []string{
			"authorization", "cookie", "set-cookie",
			"sec-websocket-key", "x-api-key",
		},
		SkipPaths: []string{healthRoute, metricsRoute},
	}
}

// DetailedLogging logs request headers and, optionally, bodies at debug
// level while the flag is on. The flag is read per request so it can be
// toggled by a configuration reload.
func DetailedLogging(logger *logrus.Logger, flags FeatureChecker, flag string, config DetailedLoggingConfig) func(http.Handler) http.Handler {
	skip := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = true
	}
	sensitive := make(map[string]bool, len(config.SensitiveHeaders))
	for _, h := range config.SensitiveHeaders {
		sensitive[strings.ToLower(h)] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if flags == nil || !flags.IsEnabled(flag) || skip[r.URL.Path] || !logger.IsLevelEnabled(logrus.DebugLevel) {
				next.ServeHTTP(w, r)
				return
			}

			info := tracing.GetRequestInfo(r.Context())
			fields := logrus.Fields{
				service.LogFieldRequestID: info.RequestID,
				service.LogFieldTraceID:   info.TraceID,
				service.LogFieldMethod:    r.Method,
				service.LogFieldPath:      r.URL.Path,
				service.LogFieldUserAgent: r.UserAgent(),
				"query":                   r.URL.RawQuery,
				"content_length":          r.ContentLength,
				"protocol":                r.Proto,
			}

			if config.LogRequestHeaders {
				fields["request_headers"] = maskHeaders(r.Header, sensitive)
			}

			if config.LogRequestBody && isTextBody(r) {
				if body, ok := peekBody(r, config.MaxBodySize); ok {
					fields["request_body"] = body
				} else if r.ContentLength > config.MaxBodySize {
					fields["request_body"] = fmt.Sprintf("***TRUNCATED*** (size: %d bytes)", r.ContentLength)
				}
			}

			logger.WithFields(fields).Debug("Detailed request logging")
			next.ServeHTTP(w, r)
		})
	}
}

func maskHeaders(h http.Header, sensitive map[string]bool) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if sensitive[strings.ToLower(name)] {
			out[name] = maskedValue
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}

// peekBody reads a body of known size up to limit and restores it for the
// handler. JSON objects are logged with sensitive fields masked; anything
// else is logged only as its size.
func peekBody(r *http.Request, limit int64) (interface{}, bool) {
	if r.Body == nil || r.ContentLength <= 0 || r.ContentLength > limit {
		return nil, false
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, limit))
	if err != nil {
		return nil, false
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	var obj map[string]interface{}
	if err := json.Unmarshal(body, &obj); err != nil {
		return fmt.Sprintf("***NON-JSON*** (size: %d bytes)", len(body)), true
	}
	return privacy.MaskSensitiveFields(obj), true
}

func isTextBody(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "application/json") || strings.HasPrefix(ct, "text/")
}
