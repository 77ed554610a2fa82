package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "collabchat/internal/errors"
	"collabchat/internal/models"
	"collabchat/internal/tracing"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type recordingWriter struct {
	messages []kafka.Message
	deadline bool
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	_, w.deadline = ctx.Deadline()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPusher_Push(t *testing.T) {
	w := &recordingWriter{}
	p := newKafkaPusher(w, time.Second)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	n := Notification{Token: "device-1", Title: "Alice", Body: "hi", Icon: "https://cdn/a.png"}
	require.NoError(t, p.Push(context.Background(), n))

	require.Len(t, w.messages, 1)
	assert.True(t, w.deadline)
	assert.Equal(t, []byte("device-1"), w.messages[0].Key)
	assert.Equal(t, fixed, w.messages[0].Time)

	var got Notification
	require.NoError(t, json.Unmarshal(w.messages[0].Value, &got))
	assert.Equal(t, n, got)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPusher_WriteError(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	p := newKafkaPusher(w, 0)

	err := p.Push(context.Background(), Notification{Token: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.False(t, w.deadline)
}

func TestWebhookPusher_Push(t *testing.T) {
	var received Notification
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	p := NewWebhookPusher(srv.URL, "relay-secret", nil, time.Second)
	n := Notification{Token: "device-1", Title: "Bob", Body: "hello"}

	require.NoError(t, p.Push(context.Background(), n))
	assert.Equal(t, "Bearer relay-secret", auth)
	assert.Equal(t, n, received)
	assert.NoError(t, p.Close())
}

func TestWebhookPusher_PropagatesTrace(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})

	var traceparent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent = r.Header.Get("traceparent")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	ctx, span := tracing.StartSpan(context.Background(), "delivery.push")
	defer span.End()

	require.NoError(t, NewWebhookPusher(srv.URL, "", nil, time.Second).Push(ctx, Notification{Token: "device-1"}))
	require.NotEmpty(t, traceparent)
	assert.Contains(t, traceparent, tracing.SpanTraceID(ctx))
}

func TestWebhookPusher_StatusErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"server error is retryable", http.StatusBadGateway, true},
		{"throttled is retryable", http.StatusTooManyRequests, true},
		{"bad request is permanent", http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			err := NewWebhookPusher(srv.URL, "", nil, time.Second).Push(context.Background(), Notification{})
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrCodePushDelivery, apperrors.GetCode(err))
			assert.Equal(t, tt.retryable, apperrors.IsRetryable(err))
		})
	}
}

func TestWebhookPusher_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewWebhookPusher(url, "", nil, time.Second).Push(context.Background(), Notification{})
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestNewFromConfig(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	tests := []struct {
		name    string
		cfg     models.NotificationConfig
		want    interface{}
		wantErr string
	}{
		{"default is log", models.NotificationConfig{}, &LogPusher{}, ""},
		{"none", models.NotificationConfig{Provider: "none"}, &LogPusher{}, ""},
		{"kafka", models.NotificationConfig{Provider: "Kafka", KafkaBrokers: []string{"localhost:9092"}}, &KafkaPusher{}, ""},
		{"kafka without brokers", models.NotificationConfig{Provider: "kafka"}, nil, "broker"},
		{"webhook", models.NotificationConfig{Provider: "webhook", WebhookURL: "http://relay"}, &WebhookPusher{}, ""},
		{"webhook without url", models.NotificationConfig{Provider: "webhook"}, nil, "URL"},
		{"unknown", models.NotificationConfig{Provider: "carrier-pigeon"}, nil, "unknown push provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewFromConfig(tt.cfg, logger)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, p)
			assert.NoError(t, p.Close())
		})
	}
}

func TestSnippet(t *testing.T) {
	tests := []struct {
		content  string
		limit    int
		expected string
	}{
		{"short", 10, "short"},
		{"  padded  ", 10, "padded"},
		{"abcdefghij", 4, "abcd…"},
		{"héllo wörld", 5, "héllo…"},
		{"anything", 0, "anything"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, Snippet(tt.content, tt.limit))
	}
}

func TestLogPusher(t *testing.T) {
	p := NewLogPusher(nil)
	assert.NoError(t, p.Push(context.Background(), Notification{Title: "x"}))
	assert.NoError(t, p.Close())
}
