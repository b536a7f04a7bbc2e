package purchase

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "purchaseapi",
		Subsystem: "core",
		Name:      "requests_total",
		Help:      "Total API requests by transaction type and outcome.",
	}, []string{"type", "outcome"}) // "success", "failed", "rejected"

	rejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "purchaseapi",
		Subsystem: "core",
		Name:      "rejections_total",
		Help:      "Total rejections and handler failures by error code.",
	}, []string{"code"})

	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "purchaseapi",
		Subsystem: "core",
		Name:      "request_duration_seconds",
		Help:      "End-to-end request processing latency in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"type"})

	paymentAmounts = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "purchaseapi",
		Subsystem: "core",
		Name:      "payment_amount",
		Help:      "Distribution of recorded payment totals.",
		Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 1000},
	})

	refundsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "purchaseapi",
		Subsystem: "core",
		Name:      "refunds_total",
		Help:      "Total payments refunded through the API.",
	})
)

func init() {
	prometheus.MustRegister(
		requestsTotal,
		rejectionsTotal,
		requestDuration,
		paymentAmounts,
		refundsTotal,
	)
}

// amountForMetrics converts a decimal amount string to float64 for
// histograms. Rounding is acceptable for observability.
func amountForMetrics(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
