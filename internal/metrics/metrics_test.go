package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestRegistry_Counters(t *testing.T) {
	r := NewRegistry()

	r.IncrementCounter("message_deliveries_total", nil, "deliveries")
	r.IncrementCounter("message_deliveries_total", nil, "deliveries")
	if got := r.CounterValue("message_deliveries_total", nil); got != 2 {
		t.Fatalf("expected 2, got %f", got)
	}

	labels := map[string]string{"outcome": "push", "event": "newMessage"}
	r.AddToCounter("push_total", 3, labels, "pushes")
	r.AddToCounter("push_total", -1, labels, "pushes")
	if got := r.CounterValue("push_total", labels); got != 3 {
		t.Fatalf("expected negative add to be ignored, got %f", got)
	}

	if got := r.CounterValue("absent", nil); got != 0 {
		t.Fatalf("expected absent counter to read 0, got %f", got)
	}
}

func TestRegistry_LabelOrderDoesNotMatter(t *testing.T) {
	r := NewRegistry()

	for i := 0; i < 50; i++ {
		r.IncrementCounter("gateway_events_total", map[string]string{
			"event":  "sendMessage",
			"status": "ok",
			"kind":   "private",
		}, "events")
	}

	got := r.CounterValue("gateway_events_total", map[string]string{
		"status": "ok",
		"kind":   "private",
		"event":  "sendMessage",
	})
	if got != 50 {
		t.Fatalf("expected 50, got %f", got)
	}
}

func TestRegistry_MismatchedLabelsAreDropped(t *testing.T) {
	r := NewRegistry()

	r.IncrementCounter("gateway_events_total", map[string]string{"event": "markSeen"}, "events")
	r.IncrementCounter("gateway_events_total", map[string]string{"route": "/ws"}, "events")

	if got := r.CounterValue("gateway_events_total", map[string]string{"event": "markSeen"}); got != 1 {
		t.Fatalf("expected 1, got %f", got)
	}
	if got := r.CounterValue("gateway_events_total", map[string]string{"route": "/ws"}); got != 0 {
		t.Fatalf("expected mismatched write to be dropped, got %f", got)
	}
}

func TestRegistry_RecordTimer(t *testing.T) {
	r := NewRegistry()
	labels := map[string]string{"event": "sendMessage"}

	for i := 1; i <= 20; i++ {
		r.RecordTimer("gateway_event_duration", time.Duration(i)*time.Millisecond, labels, "event latency")
	}

	if n := r.TimerCount("gateway_event_duration", labels); n != 20 {
		t.Fatalf("expected 20 samples, got %d", n)
	}
	if n := r.TimerCount("gateway_event_duration", nil); n != 0 {
		t.Fatalf("expected unlabeled series to be empty, got %d", n)
	}
}

func TestRegistry_Gauge(t *testing.T) {
	r := NewRegistry()

	if _, ok := r.GaugeValue("gateway_active_connections", nil); ok {
		t.Fatal("gauge should not exist yet")
	}

	r.SetGauge("gateway_active_connections", 3, nil, "open sockets")
	r.SetGauge("gateway_active_connections", 1, nil, "open sockets")

	v, ok := r.GaugeValue("gateway_active_connections", nil)
	if !ok || v != 1 {
		t.Fatalf("expected gauge 1, got %f (set=%v)", v, ok)
	}

	r.AddToGauge("http_requests_active", 1, nil, "in flight")
	r.AddToGauge("http_requests_active", 1, nil, "in flight")
	r.AddToGauge("http_requests_active", -1, nil, "in flight")
	if v, _ := r.GaugeValue("http_requests_active", nil); v != 1 {
		t.Fatalf("expected in-flight gauge 1, got %f", v)
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.IncrementCounter("n", nil, "")
				r.RecordTimer("d", time.Microsecond, nil, "")
				r.SetGauge("g", float64(j), nil, "")
			}
		}()
	}
	wg.Wait()

	if got := r.CounterValue("n", nil); got != 2000 {
		t.Fatalf("expected 2000, got %f", got)
	}
	if n := r.TimerCount("d", nil); n != 2000 {
		t.Fatalf("expected 2000 samples, got %d", n)
	}
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	r.IncrementCounter("http_requests_total", map[string]string{"method": "GET"}, "Total HTTP requests")
	r.RecordTimer("http_request_duration", 5*time.Millisecond, nil, "HTTP request duration")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type %q", ct)
	}

	body := rec.Body.String()
	for _, want := range []string{
		"# HELP http_requests_total Total HTTP requests",
		`http_requests_total{method="GET"} 1`,
		"http_request_duration_seconds_count 1",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
}

func TestDefaultRegistryHelpers(t *testing.T) {
	name := "default_helper_test_total"
	before := Default().CounterValue(name, nil)

	IncrementCounter(name, nil, "")
	AddToCounter(name, 2, nil, "")
	RecordTimer("default_helper_test", time.Millisecond, nil, "")
	SetGauge("default_helper_test_gauge", 7, nil, "")
	AddToGauge("default_helper_test_gauge", 1, nil, "")

	if got := Default().CounterValue(name, nil); got != before+3 {
		t.Fatalf("expected %f, got %f", before+3, got)
	}
	if v, _ := Default().GaugeValue("default_helper_test_gauge", nil); v != 8 {
		t.Fatalf("expected gauge 8, got %f", v)
	}
	if n := Default().TimerCount("default_helper_test", nil); n != 1 {
		t.Fatalf("expected one timer sample, got %d", n)
	}
}

func TestDefaultRegistryExportsRuntimeMetrics(t *testing.T) {
	rec := httptest.NewRecorder()
	Default().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Fatal("expected Go runtime metrics on the default registry")
	}
}
