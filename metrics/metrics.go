// Package metrics provides Prometheus metrics for the groupdrive server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupdrive_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "groupdrive_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	propagationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupdrive_propagations_total",
			Help: "Subtree propagations by mutation and outcome",
		},
		[]string{"kind", "status"},
	)

	propagatedNodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupdrive_propagated_nodes_total",
			Help: "Nodes written by subtree propagation",
		},
		[]string{"kind"},
	)

	batchCommitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupdrive_batch_commits_total",
			Help: "Batch commits issued by subtree propagation",
		},
		[]string{"status"},
	)

	propagationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "groupdrive_propagation_duration_seconds",
			Help:    "Wall time of one subtree propagation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	purgedNodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupdrive_purged_nodes_total",
			Help: "Nodes permanently removed",
		},
		[]string{"type"},
	)

	objectStoreOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupdrive_object_store_operations_total",
			Help: "Object store operations",
		},
		[]string{"operation", "status"},
	)

	pendingPropagations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "groupdrive_pending_propagations",
			Help: "Journal entries awaiting resume",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordPropagation records one finished (or failed) propagation.
func RecordPropagation(kind string, updated int, duration time.Duration, success bool) {
	propagationsTotal.WithLabelValues(kind, statusLabel(success)).Inc()
	propagatedNodesTotal.WithLabelValues(kind).Add(float64(updated))
	propagationDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func RecordBatchCommit(success bool) {
	batchCommitsTotal.WithLabelValues(statusLabel(success)).Inc()
}

func RecordPurge(nodeType string) {
	purgedNodesTotal.WithLabelValues(nodeType).Inc()
}

func RecordObjectStoreOp(operation string, success bool) {
	objectStoreOpsTotal.WithLabelValues(operation, statusLabel(success)).Inc()
}

func SetPendingPropagations(count int) {
	pendingPropagations.Set(float64(count))
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
