// Package observability holds the process-wide Prometheus collectors for imports.
package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests served by the import server.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~40s
		},
		[]string{"method", "route", "status"},
	)

	catalogRequestSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_request_duration_seconds",
			Help:    "Latency of catalog API calls by phase and result.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"phase", "result"},
	)

	importRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "import_records_total",
			Help: "Product records by final state and the stage they ended in.",
		},
		[]string{"state", "stage"},
	)

	ledgerOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_op_total",
			Help: "Import ledger operations by result.",
		},
		[]string{"op", "result"},
	)

	ledgerOpSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_op_duration_seconds",
			Help:    "Latency of import ledger operations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op"},
	)

	changeEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "change_events_total",
			Help: "Spatial change events published after a product was persisted.",
		},
		[]string{"result"},
	)
)

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

// ObserveCatalogRequest records one catalog call. status is 0 when the
// request never produced a response.
func ObserveCatalogRequest(phase string, status int, err error, durationSeconds float64) {
	res := "transport_error"
	switch {
	case err == nil && status >= 200 && status < 300:
		res = "ok"
	case status > 0:
		res = "rejected"
	}
	catalogRequestSeconds.WithLabelValues(phase, res).Observe(durationSeconds)
}

func IncImportRecord(state, stage string) {
	if stage == "" {
		stage = "none"
	}
	importRecords.WithLabelValues(state, stage).Inc()
}

func ObserveLedgerOp(op string, err error, durationSeconds float64) {
	ledgerOps.WithLabelValues(op, result(err)).Inc()
	ledgerOpSeconds.WithLabelValues(op).Observe(durationSeconds)
}

func IncChangeEvent(err error) {
	changeEvents.WithLabelValues(result(err)).Inc()
}
