package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Change outcomes recorded by RecordChange.
const (
	OutcomeApplied = "applied"
	OutcomeStale   = "stale"
	OutcomeFailed  = "failed"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "layermirror",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "layermirror",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	changes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "layermirror",
			Subsystem: "document",
			Name:      "changes_total",
			Help:      "Change records handled, by outcome.",
		},
		[]string{"outcome"},
	)
	changeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "layermirror",
			Subsystem: "document",
			Name:      "change_duration_seconds",
			Help:      "Time to apply one change record.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
		},
	)
	documents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "layermirror",
			Subsystem: "document",
			Name:      "open",
			Help:      "Documents currently mirrored.",
		},
	)
	renders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "layermirror",
			Subsystem: "render",
			Name:      "total",
			Help:      "Render passes, by artifact and result.",
		},
		[]string{"artifact", "success"},
	)
	renderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "layermirror",
			Subsystem: "render",
			Name:      "duration_seconds",
			Help:      "Render pass duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"artifact"},
	)
	statusClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "layermirror",
			Subsystem: "status",
			Name:      "clients",
			Help:      "Connected status clients.",
		},
	)
	hostReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "layermirror",
			Subsystem: "hostlink",
			Name:      "reconnects_total",
			Help:      "Host link reconnect attempts.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			changes, changeDuration, documents,
			renders, renderDuration,
			statusClients, hostReconnects,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordChange(outcome string, duration time.Duration) {
	RegisterMetrics()
	changes.WithLabelValues(outcome).Inc()
	if outcome == OutcomeApplied {
		changeDuration.Observe(duration.Seconds())
	}
}

func SetDocuments(n int) {
	RegisterMetrics()
	documents.Set(float64(n))
}

func RecordRender(artifact string, duration time.Duration, success bool) {
	RegisterMetrics()
	renders.WithLabelValues(artifact, strconv.FormatBool(success)).Inc()
	renderDuration.WithLabelValues(artifact).Observe(duration.Seconds())
}

func SetStatusClients(n int) {
	RegisterMetrics()
	statusClients.Set(float64(n))
}

func RecordHostReconnect() {
	RegisterMetrics()
	hostReconnects.Inc()
}
