package observability

import (
	"sync"
	"time"
)

// MockMetricsRegistry records every call so tests can assert on counts.
type MockMetricsRegistry struct {
	mu          sync.Mutex
	Fetches     map[string]int // "mode/outcome" -> count
	Latencies   int
	Identifiers int
	Cookies     map[string]int
	Requests    int
}

// NewMockMetricsRegistry returns an empty recorder.
func NewMockMetricsRegistry() *MockMetricsRegistry {
	return &MockMetricsRegistry{
		Fetches: make(map[string]int),
		Cookies: make(map[string]int),
	}
}

func (m *MockMetricsRegistry) IncrementFetches(mode, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Fetches[mode+"/"+outcome]++
}

func (m *MockMetricsRegistry) RecordFetchLatency(mode string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Latencies++
}

func (m *MockMetricsRegistry) IncrementIdentifiersGenerated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Identifiers++
}

func (m *MockMetricsRegistry) IncrementCookies(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Cookies[result]++
}

func (m *MockMetricsRegistry) IncrementRequests(endpoint, method, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests++
}

// FetchCount returns the recorded count for a mode/outcome pair.
func (m *MockMetricsRegistry) FetchCount(mode, outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Fetches[mode+"/"+outcome]
}

// CookieCount returns the recorded count for a cookie result.
func (m *MockMetricsRegistry) CookieCount(result string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Cookies[result]
}
