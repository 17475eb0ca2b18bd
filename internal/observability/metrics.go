package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions     prometheus.Gauge
	SessionEvents      *prometheus.CounterVec
	ActivityRetries    *prometheus.CounterVec
	ActivityFailures   *prometheus.CounterVec
	ActivityLatency    *prometheus.HistogramVec
	BridgeWaitAttempts prometheus.Histogram
	BridgeTimeouts     prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of interview sessions currently active.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		ActivityRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activity_retries_total",
			Help:      "Activity retry attempts by activity name.",
		}, []string{"activity"}),
		ActivityFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activity_failures_total",
			Help:      "Activities that exhausted their retry budget, by name.",
		}, []string{"activity"}),
		ActivityLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "activity_latency_ms",
			Help:      "Activity latency in milliseconds, by name.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 15000, 30000, 60000},
		}, []string{"activity"}),
		BridgeWaitAttempts: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bridge_wait_attempts",
			Help:      "Snapshot polls needed before a signal's effect became visible.",
			Buckets:   []float64{1, 2, 3, 5, 8, 12, 16, 20},
		}),
		BridgeTimeouts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_timeouts_total",
			Help:      "Bridge polls that exhausted their budget (not-ready responses).",
		}),
	}
}

func (m *Metrics) ObserveActivity(name string, d time.Duration) {
	m.ActivityLatency.WithLabelValues(name).Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
