package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics
// so components never touch the global Prometheus collectors directly.
type MetricsRegistry interface {
	// Outbound AdMob calls
	IncrementFetches(mode, outcome string)
	RecordFetchLatency(mode string, duration time.Duration)

	// Identity cookie lifecycle
	IncrementIdentifiersGenerated()
	IncrementCookies(result string)

	// Host HTTP requests
	IncrementRequests(endpoint, method, status string)
}

// PrometheusRegistry implements MetricsRegistry using the global Prometheus metrics
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

func (r *PrometheusRegistry) IncrementFetches(mode, outcome string) {
	FetchCount.WithLabelValues(mode, outcome).Inc()
}

func (r *PrometheusRegistry) RecordFetchLatency(mode string, duration time.Duration) {
	FetchLatency.WithLabelValues(mode).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementIdentifiersGenerated() {
	IdentifiersGenerated.Inc()
}

func (r *PrometheusRegistry) IncrementCookies(result string) {
	CookieCount.WithLabelValues(result).Inc()
}

func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods for testing
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementFetches(mode, outcome string)                  {}
func (r *NoOpRegistry) RecordFetchLatency(mode string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementIdentifiersGenerated()                        {}
func (r *NoOpRegistry) IncrementCookies(result string)                        {}
func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)     {}
