package middleware

import (
	"math"
	"net/http"
	"strconv"

	"collabchat/internal/errors"
	"collabchat/internal/httputil"
	"collabchat/internal/metrics"
	"collabchat/internal/ratelimit"
	"collabchat/internal/service"
	"collabchat/internal/tracing"

	"github.com/sirupsen/logrus"
)

// RateLimit limits requests per client IP. A limiter configured with a
// non-positive limit lets everything through.
func RateLimit(limiter *ratelimit.Limiter, trustProxy bool, logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limit, window := limiter.Limit()
			if limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			ip := httputil.ClientIP(r, trustProxy)
			if limiter.Allow(ip) {
				next.ServeHTTP(w, r)
				return
			}

			metrics.IncrementCounter("http_rate_limited_total", nil, "Requests rejected by the per-IP rate limit")
			logger.WithFields(logrus.Fields{
				service.LogFieldRequestID: tracing.GetRequestID(r.Context()),
				service.LogFieldRemoteIP:  ip,
			}).Warn("Rate limit exceeded")

			retryAfter := int(math.Ceil(window.Seconds() / float64(limit)))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			httputil.WriteError(w, r, errors.NewRateLimitError(limit, window.String()))
		})
	}
}
