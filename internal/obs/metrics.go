// Package obs exposes prometheus metrics for ledger operations.
package obs

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Ledger engine operations by outcome.",
		},
		[]string{"operation", "outcome"},
	)

	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Ledger engine operation latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	giftDispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gift_dispatch_total",
			Help: "Gift dispatch attempts by reward tier and result.",
		},
		[]string{"reward", "result"},
	)
)

// OutcomeError is the outcome label used when the atomic commit failed.
const OutcomeError = "error"

// Init registers the ledger metrics in the default registry.
func Init() {
	prometheus.MustRegister(operationsTotal, operationDuration, giftDispatchTotal)
}

// Handler returns the prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveOperation records one finished engine call. A non-nil err overrides outcome.
func ObserveOperation(operation, outcome string, err error, started time.Time) {
	if err != nil {
		outcome = OutcomeError
	}
	operationsTotal.WithLabelValues(operation, outcome).Inc()
	operationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// ObserveDispatch records one gift dispatch attempt.
func ObserveDispatch(reward string, ok bool) {
	result := "ok"
	if !ok {
		result = "fail"
	}
	giftDispatchTotal.WithLabelValues(reward, result).Inc()
}

// OperationCount returns the counter for operation/outcome; used by tests and dumps.
func OperationCount(operation, outcome string) prometheus.Counter {
	return operationsTotal.WithLabelValues(operation, outcome)
}

// DispatchCount returns the dispatch counter for reward/result.
func DispatchCount(reward, result string) prometheus.Counter {
	return giftDispatchTotal.WithLabelValues(reward, result)
}
