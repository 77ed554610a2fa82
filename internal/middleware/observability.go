package middleware

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"collabchat/internal/errors"
	"collabchat/internal/httputil"
	"collabchat/internal/metrics"
	"collabchat/internal/service"
	"collabchat/internal/tracing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// maxRequestIDLength bounds ids accepted from X-Request-ID
const maxRequestIDLength = 128

// Observability assigns a request id, continues or starts a trace, records
// request metrics and logs completion at a level chosen by status.
// Register it with Router.Use so the matched route template is available
// as the metrics label.
func Observability(logger *logrus.Logger, trustProxy bool) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(tracing.RequestIDHeader)
			if requestID == "" || len(requestID) > maxRequestIDLength {
				requestID = tracing.NewRequestID()
			}

			route := routeTemplate(r)
			clientIP := httputil.ClientIP(r, trustProxy)

			ctx := tracing.ExtractHTTP(r.Context(), r.Header)
			ctx, span := tracing.StartSpan(ctx, "HTTP "+r.Method+" "+route,
				attribute.String("http.request.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("url.path", r.URL.Path),
				attribute.String("user_agent.original", r.UserAgent()),
				attribute.String("client.address", clientIP),
			)
			defer span.End()

			ctx = tracing.WithRequestID(ctx, requestID)
			ctx = tracing.WithStartTime(ctx, start)
			ctx = errors.WithRequestID(ctx, requestID)
			if traceID := tracing.SpanTraceID(ctx); traceID != "" {
				ctx = errors.WithTraceID(ctx, traceID)
			}
			r = r.WithContext(ctx)

			w.Header().Set(tracing.RequestIDHeader, requestID)
			rec := newStatusRecorder(w)

			metrics.AddToGauge("http_requests_active", 1, nil, "Currently active HTTP requests")
			defer metrics.AddToGauge("http_requests_active", -1, nil, "Currently active HTTP requests")

			next.ServeHTTP(rec, r)

			duration := time.Since(start)
			status := strconv.Itoa(rec.status)

			tracing.AddSpanAttributes(ctx,
				attribute.Int("http.response.status_code", rec.status),
				attribute.Int64("http.response.body.size", rec.size),
			)
			if rec.status >= http.StatusInternalServerError {
				tracing.SetSpanStatus(ctx, codes.Error, fmt.Sprintf("HTTP %d", rec.status))
			}

			labels := map[string]string{
				"method": r.Method,
				"route":  route,
				"status": status,
			}
			metrics.IncrementCounter("http_requests_total", labels, "Total HTTP requests")
			metrics.RecordTimer("http_request_duration", duration, map[string]string{
				"method": r.Method,
				"route":  route,
			}, "HTTP request duration")

			level := logrus.InfoLevel
			switch {
			case rec.status >= http.StatusInternalServerError:
				level = logrus.ErrorLevel
			case rec.status >= http.StatusBadRequest:
				level = logrus.WarnLevel
			case route == healthRoute || route == metricsRoute:
				level = logrus.DebugLevel
			}

			logger.WithFields(logrus.Fields{
				service.LogFieldRequestID:  requestID,
				service.LogFieldTraceID:    tracing.SpanTraceID(ctx),
				service.LogFieldMethod:     r.Method,
				service.LogFieldRoute:      route,
				service.LogFieldStatusCode: rec.status,
				service.LogFieldDuration:   duration.Milliseconds(),
				service.LogFieldRemoteIP:   clientIP,
				service.LogFieldSize:       rec.size,
			}).Log(level, "HTTP request completed")
		})
	}
}

const (
	healthRoute  = "/health"
	metricsRoute = "/metrics"
)

// routeTemplate keeps path parameters out of metric labels
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// statusRecorder captures the status and body size. It forwards Hijack and
// Flush so websocket upgrades work behind it.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	size        int64
	wroteHeader bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wroteHeader = true
	n, err := s.ResponseWriter.Write(b)
	s.size += int64(n)
	return n, err
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	// A hijacked upgrade is reported as 101
	s.status = http.StatusSwitchingProtocols
	s.wroteHeader = true
	return h.Hijack()
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}
