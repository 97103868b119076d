package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PersonsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ema",
		Name:      "persons",
		Help:      "Number of persons in the repository after the last listing",
	})

	Mutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ema",
		Name:      "mutations_total",
		Help:      "Repository mutations by operation and result",
	}, []string{"op", "result"})

	ArchiveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ema",
		Name:      "archive_duration_seconds",
		Help:      "Duration of archive export/import operations",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"direction"})

	ArchiveEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ema",
		Name:      "archive_entries_total",
		Help:      "Entries handled by archive import/export by kind and outcome",
	}, []string{"direction", "kind", "outcome"})

	ActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ema",
		Name:      "active_jobs",
		Help:      "Number of running archive jobs",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ema",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ema",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)

// ObserveMutation records the outcome of a repository mutation.
func ObserveMutation(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	Mutations.WithLabelValues(op, result).Inc()
}
