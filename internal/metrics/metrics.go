// Package metrics records counters, gauges and timers in a Prometheus
// registry and serves them in the Prometheus exposition format.
package metrics

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// timerSuffix is appended to timer names; timers are histograms in seconds
const timerSuffix = "_seconds"

// Registry creates one vector per metric name on first use. The label names
// of a metric are fixed by that first write; later writes with a different
// label set are dropped.
type Registry struct {
	reg        *prometheus.Registry
	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

func NewRegistry() *Registry {
	return &Registry{
		reg:        prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

var globalRegistry = newProcessRegistry()

// newProcessRegistry also exports Go runtime and process metrics
func newProcessRegistry() *Registry {
	r := NewRegistry()
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Default returns the process-wide registry
func Default() *Registry {
	return globalRegistry
}

func (r *Registry) IncrementCounter(name string, labels map[string]string, description string) {
	r.AddToCounter(name, 1, labels, description)
}

// AddToCounter adds a non-negative value. Use AddToGauge for values that go down.
func (r *Registry) AddToCounter(name string, value float64, labels map[string]string, description string) {
	if value < 0 {
		return
	}
	if c := r.counter(name, labels, description); c != nil {
		c.Add(value)
	}
}

// RecordTimer observes d in the histogram name_seconds
func (r *Registry) RecordTimer(name string, d time.Duration, labels map[string]string, description string) {
	if h := r.histogram(name+timerSuffix, labels, description); h != nil {
		h.Observe(d.Seconds())
	}
}

func (r *Registry) SetGauge(name string, value float64, labels map[string]string, description string) {
	if g := r.gauge(name, labels, description); g != nil {
		g.Set(value)
	}
}

// AddToGauge moves a gauge up or down, e.g. in-flight requests
func (r *Registry) AddToGauge(name string, delta float64, labels map[string]string, description string) {
	if g := r.gauge(name, labels, description); g != nil {
		g.Add(delta)
	}
}

// CounterValue returns the current value of a counter, zero when absent
func (r *Registry) CounterValue(name string, labels map[string]string) float64 {
	m := r.find(name, labels)
	if m == nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

// GaugeValue returns the current value of a gauge and whether it was set
func (r *Registry) GaugeValue(name string, labels map[string]string) (float64, bool) {
	m := r.find(name, labels)
	if m == nil {
		return 0, false
	}
	return m.GetGauge().GetValue(), true
}

// TimerCount returns how many durations a timer has observed
func (r *Registry) TimerCount(name string, labels map[string]string) uint64 {
	m := r.find(name+timerSuffix, labels)
	if m == nil {
		return 0
	}
	return m.GetHistogram().GetSampleCount()
}

// Handler serves the registry for Prometheus scraping
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) counter(name string, labels map[string]string, help string) prometheus.Counter {
	r.mu.Lock()
	vec, ok := r.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: helpText(name, help)}, labelNames(labels))
		if err := r.reg.Register(vec); err != nil {
			r.mu.Unlock()
			return nil
		}
		r.counters[name] = vec
	}
	r.mu.Unlock()

	c, err := vec.GetMetricWith(labels)
	if err != nil {
		return nil
	}
	return c
}

func (r *Registry) gauge(name string, labels map[string]string, help string) prometheus.Gauge {
	r.mu.Lock()
	vec, ok := r.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: helpText(name, help)}, labelNames(labels))
		if err := r.reg.Register(vec); err != nil {
			r.mu.Unlock()
			return nil
		}
		r.gauges[name] = vec
	}
	r.mu.Unlock()

	g, err := vec.GetMetricWith(labels)
	if err != nil {
		return nil
	}
	return g
}

func (r *Registry) histogram(name string, labels map[string]string, help string) prometheus.Observer {
	r.mu.Lock()
	vec, ok := r.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name,
			Help:    helpText(name, help),
			Buckets: prometheus.DefBuckets,
		}, labelNames(labels))
		if err := r.reg.Register(vec); err != nil {
			r.mu.Unlock()
			return nil
		}
		r.histograms[name] = vec
	}
	r.mu.Unlock()

	h, err := vec.GetMetricWith(labels)
	if err != nil {
		return nil
	}
	return h
}

// find gathers the registry and returns the series with exactly these labels
func (r *Registry) find(name string, labels map[string]string) *dto.Metric {
	// Gather returns what it could collect alongside any collector error
	families, _ := r.reg.Gather()
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m.GetLabel(), labels) {
				return m
			}
		}
	}
	return nil
}

func labelsMatch(pairs []*dto.LabelPair, labels map[string]string) bool {
	if len(pairs) != len(labels) {
		return false
	}
	for _, p := range pairs {
		if v, ok := labels[p.GetName()]; !ok || v != p.GetValue() {
			return false
		}
	}
	return true
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func helpText(name, description string) string {
	if description == "" {
		return name
	}
	return description
}

// Package-level helpers write to the default registry.

func IncrementCounter(name string, labels map[string]string, description string) {
	globalRegistry.IncrementCounter(name, labels, description)
}

func AddToCounter(name string, value float64, labels map[string]string, description string) {
	globalRegistry.AddToCounter(name, value, labels, description)
}

func RecordTimer(name string, d time.Duration, labels map[string]string, description string) {
	globalRegistry.RecordTimer(name, d, labels, description)
}

func SetGauge(name string, value float64, labels map[string]string, description string) {
	globalRegistry.SetGauge(name, value, labels, description)
}

func AddToGauge(name string, delta float64, labels map[string]string, description string) {
	globalRegistry.AddToGauge(name, delta, labels, description)
}
