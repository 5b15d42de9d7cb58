package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// outbound AdMob calls labelled by request mode and outcome
	FetchCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admob_requests_total",
			Help: "Total outbound AdMob requests",
		},
		[]string{"mode", "outcome"},
	)

	// outbound call latency in seconds per request mode
	FetchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "admob_request_duration_seconds",
			Help:    "Histogram of outbound AdMob request latencies",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2, 5},
		},
		[]string{"mode"},
	)

	// visitor identifiers minted because the request carried no cookie
	IdentifiersGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "admob_identifiers_generated_total",
			Help: "Total visitor identifiers generated",
		},
	)

	// identity cookie decisions at response time (written / skipped)
	CookieCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admob_cookies_total",
			Help: "Identity cookie propagation results",
		},
		[]string{"result"},
	)

	// total requests per endpoint, method and status code on the host
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admob_http_requests_total",
			Help: "Total requests handled by the host server",
		},
		[]string{"endpoint", "method", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		FetchCount,
		FetchLatency,
		IdentifiersGenerated,
		CookieCount,
		RequestCount,
	)
}
