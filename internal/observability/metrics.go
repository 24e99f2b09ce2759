// File: internal/observability/metrics.go
package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "promptprobe"

// Metrics holds the Prometheus collectors describing pipeline activity.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	runsTotal          *prometheus.CounterVec
	runDuration        prometheus.Histogram
	runsActive         prometheus.Gauge
	browsersOpen       prometheus.Gauge
	navigationAttempts *prometheus.CounterVec
	requestsCaptured   *prometheus.CounterVec
	tokensExtracted    *prometheus.CounterVec
}

var (
	defaultMetricsOnce sync.Once
	defaultMetrics     *Metrics
)

// DefaultMetrics returns metrics registered with the global registry. The
// collectors are created once so repeated calls never double-register.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// MustNewMetrics creates the collectors and registers them with reg.
// Registration errors panic, so tests should pass a fresh registry.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a pipeline run.",
			Buckets:   []float64{1, 5, 10, 20, 30, 60, 120, 240},
		}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "runs_active",
			Help:      "Pipeline runs currently holding a browser.",
		}),
		browsersOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "browsers_open",
			Help:      "Browser processes launched and not yet closed.",
		}),
		navigationAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "navigation",
			Name:      "attempts_total",
			Help:      "Navigation attempts against the target by result.",
		}, []string{"result"}),
		requestsCaptured: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "capture",
			Name:      "requests_total",
			Help:      "Outcome of waiting for the trigger request.",
		}, []string{"result"}),
		tokensExtracted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "tokens",
			Name:      "extracted_total",
			Help:      "Tokens found in captured bodies by source.",
		}, []string{"source"}),
	}
	reg.MustRegister(m.runsTotal, m.runDuration, m.runsActive, m.browsersOpen, m.navigationAttempts, m.requestsCaptured, m.tokensExtracted)
	return m
}

// RunStarted marks a run as active and returns a func that records its end.
func (m *Metrics) RunStarted() func(outcome string) {
	if m == nil {
		return func(string) {}
	}
	start := time.Now()
	m.runsActive.Inc()
	return func(outcome string) {
		m.runsActive.Dec()
		m.runDuration.Observe(time.Since(start).Seconds())
		m.runsTotal.WithLabelValues(outcome).Inc()
	}
}

// BrowserOpened counts a launched browser and returns a func that records
// its close.
func (m *Metrics) BrowserOpened() func() {
	if m == nil {
		return func() {}
	}
	m.browsersOpen.Inc()
	return func() { m.browsersOpen.Dec() }
}

// NavigationAttempt counts one attempt with result "ok" or "error".
func (m *Metrics) NavigationAttempt(result string) {
	if m == nil {
		return
	}
	m.navigationAttempts.WithLabelValues(result).Inc()
}

// RequestCapture counts a capture outcome: "captured", "timeout" or "error".
func (m *Metrics) RequestCapture(result string) {
	if m == nil {
		return
	}
	m.requestsCaptured.WithLabelValues(result).Inc()
}

// TokensExtracted adds n tokens found by source ("field", "jwt", "opaque").
func (m *Metrics) TokensExtracted(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.tokensExtracted.WithLabelValues(source).Add(float64(n))
}
