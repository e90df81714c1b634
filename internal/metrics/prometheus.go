package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps prometheus collectors for raikiri metrics.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	invocationsTotal   *prometheus.CounterVec
	invocationDuration *prometheus.HistogramVec
	bridgeCallsTotal   *prometheus.CounterVec
	depthLimitTotal    prometheus.Counter
	uptime             prometheus.GaugeFunc
	activeRequests     prometheus.Gauge
}

var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

var promMetrics *PrometheusMetrics

// InitPrometheus initializes the Prometheus metrics subsystem (§4.7).
func InitPrometheus(namespace string, buckets []float64) {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		invocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_total",
				Help:      "Total number of component invocations",
			},
			[]string{"tenant", "component", "status"},
		),

		invocationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "invocation_duration_milliseconds",
				Help:      "Duration of component invocations in milliseconds",
				Buckets:   buckets,
			},
			[]string{"tenant", "component"},
		),

		bridgeCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bridge_calls_total",
				Help:      "Total capability bridge dispatches by target host",
			},
			[]string{"host", "status"},
		),

		depthLimitTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "depth_limit_rejections_total",
				Help:      "Total invocations rejected for exceeding the call-stack depth limit",
			},
		),

		activeRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_requests",
				Help:      "Number of currently active invocation requests",
			},
		),
	}

	pm.uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Time since the daemon started",
		},
		func() float64 {
			return time.Since(StartTime()).Seconds()
		},
	)

	registry.MustRegister(
		pm.invocationsTotal,
		pm.invocationDuration,
		pm.bridgeCallsTotal,
		pm.depthLimitTotal,
		pm.uptime,
		pm.activeRequests,
	)

	promMetrics = pm
}

func invocationLabels(componentKey string) (tenant, component string) {
	for i := 0; i < len(componentKey); i++ {
		if componentKey[i] == '.' {
			return componentKey[:i], componentKey[i+1:]
		}
	}
	return componentKey, ""
}

// RecordPrometheusInvocation records an invocation in Prometheus collectors.
func RecordPrometheusInvocation(componentKey string, durationMs int64, success bool) {
	if promMetrics == nil {
		return
	}
	tenant, component := invocationLabels(componentKey)
	status := "success"
	if !success {
		status = "failed"
	}
	promMetrics.invocationsTotal.WithLabelValues(tenant, component, status).Inc()
	promMetrics.invocationDuration.WithLabelValues(tenant, component).Observe(float64(durationMs))
}

// RecordBridgeCall records one capability-bridge dispatch (§4.6).
func RecordBridgeCall(host string, success bool) {
	if promMetrics == nil {
		return
	}
	status := "success"
	if !success {
		status = "failed"
	}
	promMetrics.bridgeCallsTotal.WithLabelValues(host, status).Inc()
}

// RecordDepthLimitRejection records an invocation rejected for exceeding
// the call-stack depth limit (§3).
func RecordDepthLimitRejection() {
	if promMetrics == nil {
		return
	}
	promMetrics.depthLimitTotal.Inc()
}

// IncActiveRequests increments the active-requests gauge.
func IncActiveRequests() {
	if promMetrics == nil {
		return
	}
	promMetrics.activeRequests.Inc()
}

// DecActiveRequests decrements the active-requests gauge.
func DecActiveRequests() {
	if promMetrics == nil {
		return
	}
	promMetrics.activeRequests.Dec()
}

// PrometheusHandler returns an HTTP handler for Prometheus scraping.
func PrometheusHandler() http.Handler {
	if promMetrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("prometheus metrics not initialized"))
		})
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}

// PrometheusRegistry returns the prometheus registry, for custom collectors.
func PrometheusRegistry() *prometheus.Registry {
	if promMetrics == nil {
		return nil
	}
	return promMetrics.registry
}
