// Package metrics registers the Prometheus collectors exposed on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

// Scan outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeMalformed = "malformed"
	OutcomeNoRecords = "no_records"
	OutcomeError     = "error"
)

var (
	scansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fraudscan_scans_total",
			Help: "Total number of scans by entry point and outcome",
		},
		[]string{"kind", "outcome"},
	)

	scanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fraudscan_scan_duration_seconds",
			Help:    "End-to-end scan duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	transactionsScored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fraudscan_transactions_scored_total",
			Help: "Total number of scored transactions by verdict",
		},
		[]string{"status"},
	)

	rowsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fraudscan_rows_dropped_total",
			Help: "Rows rejected for a missing merchant or unparseable amount",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordScan counts one finished scan attempt.
func RecordScan(kind, outcome string, d time.Duration) {
	scansTotal.WithLabelValues(kind, outcome).Inc()
	scanDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordSummary counts the verdicts of a successful scan.
func RecordSummary(s domain.Summary, dropped int) {
	transactionsScored.WithLabelValues(domain.StatusFraud).Add(float64(s.Fraud))
	transactionsScored.WithLabelValues(domain.StatusLegit).Add(float64(s.Legitimate))
	if dropped > 0 {
		rowsDropped.Add(float64(dropped))
	}
}

// ObserveHTTP records one served request. route is the matched pattern, not the raw path.
func ObserveHTTP(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "not_found"
	}
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
