// Package observability bundles the service's metrics, health checks,
// and trace wiring.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asthmabot_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "asthmabot_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Model call metrics
	llmCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asthmabot_llm_calls_total",
			Help: "Total number of model calls",
		},
		[]string{"provider", "operation", "status"},
	)

	llmCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "asthmabot_llm_call_duration_seconds",
			Help:    "Model call duration in seconds",
			Buckets: []float64{0.5, 1, 2, 4, 8, 16, 30, 60},
		},
		[]string{"provider", "operation"},
	)

	// Analysis pipeline metrics
	analysisTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asthmabot_analysis_tasks_total",
			Help: "Total number of deferred analysis tasks",
		},
		[]string{"status"},
	)

	callbackDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asthmabot_callback_deliveries_total",
			Help: "Total number of callback deliveries to the platform",
		},
		[]string{"status"},
	)

	// Session metrics
	sessionsPurgedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "asthmabot_sessions_purged_total",
			Help: "Total number of expired sessions removed by the sweeper",
		},
	)

	activeConsultations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "asthmabot_active_consultations",
			Help: "Number of consultations currently in flight",
		},
	)

	initOnce sync.Once
)

// InitMetrics registers the Prometheus collectors. Safe to call more
// than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestsTotal,
			httpRequestDuration,
			llmCallsTotal,
			llmCallDuration,
			analysisTasksTotal,
			callbackDeliveriesTotal,
			sessionsPurgedTotal,
			activeConsultations,
		)
	})
}

// MetricsHandler returns the Prometheus scrape handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records one served HTTP request.
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordLLMCall records one model call.
func RecordLLMCall(provider, operation, status string, duration time.Duration) {
	llmCallsTotal.WithLabelValues(provider, operation, status).Inc()
	llmCallDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
}

// RecordAnalysisTask records the outcome of one deferred analysis task.
func RecordAnalysisTask(status string) {
	analysisTasksTotal.WithLabelValues(status).Inc()
}

// RecordCallbackDelivery records the outcome of one callback delivery.
func RecordCallbackDelivery(status string) {
	callbackDeliveriesTotal.WithLabelValues(status).Inc()
}

// AddPurgedSessions adds to the expired-session sweep counter.
func AddPurgedSessions(n int) {
	sessionsPurgedTotal.Add(float64(n))
}

// SetActiveConsultations sets the in-flight consultation gauge.
func SetActiveConsultations(n int) {
	activeConsultations.Set(float64(n))
}
