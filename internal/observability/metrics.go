package observability

import "sync"

// Counter names one tracked store statistic.
type Counter string

const (
	CounterPuts       Counter = "puts"
	CounterGets       Counter = "gets"
	CounterHits       Counter = "hits"
	CounterMisses     Counter = "misses"
	CounterDeletes    Counter = "deletes"
	CounterScans      Counter = "scans"
	CounterDuplicates Counter = "duplicates"
	CounterPruned     Counter = "pruned"
	CounterBytesIn    Counter = "bytes_in"
	CounterBytesOut   Counter = "bytes_out"
	CounterErrors     Counter = "errors"
)

// Metrics collects in-memory operation counters.
type Metrics struct {
	mu       sync.RWMutex
	counters map[Counter]int64
}

// NewMetrics creates an empty collector.
func NewMetrics() *Metrics {
	return &Metrics{counters: make(map[Counter]int64)}
}

// Add adds delta to a counter.
func (m *Metrics) Add(c Counter, delta int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[c] += delta
}

// Increment adds one to a counter.
func (m *Metrics) Increment(c Counter) {
	m.Add(c, 1)
}

// Get returns the current value of a counter.
func (m *Metrics) Get(c Counter) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[c]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[Counter]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[Counter]int64, len(m.counters))
	for c, v := range m.counters {
		out[c] = v
	}
	return out
}

// Reset clears all counters.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = make(map[Counter]int64)
}
