// Package monitor tracks replay throughput and tick latency.
package monitor

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks counters for one engine run.
type Metrics struct {
	ticksProcessed  uint64
	ordersProcessed uint64

	TickLatency *LatencyHistogram

	mu        sync.Mutex
	startedAt time.Time
	lastAt    time.Time
	lastTicks uint64
}

func NewMetrics() *Metrics {
	now := time.Now()
	return &Metrics{
		TickLatency: NewLatencyHistogram(1000),
		startedAt:   now,
		lastAt:      now,
	}
}

func (m *Metrics) AddTick()  { atomic.AddUint64(&m.ticksProcessed, 1) }
func (m *Metrics) AddOrder() { atomic.AddUint64(&m.ordersProcessed, 1) }

func (m *Metrics) Ticks() uint64  { return atomic.LoadUint64(&m.ticksProcessed) }
func (m *Metrics) Orders() uint64 { return atomic.LoadUint64(&m.ordersProcessed) }

// Throughput returns ticks/sec since the previous Throughput call.
func (m *Metrics) Throughput() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	ticks := atomic.LoadUint64(&m.ticksProcessed)
	elapsed := now.Sub(m.lastAt).Seconds()
	if elapsed <= 0 {
		return 0
	}
	rate := float64(ticks-m.lastTicks) / elapsed
	m.lastAt = now
	m.lastTicks = ticks
	return rate
}

// Elapsed reports the total run duration so far.
func (m *Metrics) Elapsed() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Since(m.startedAt)
}

// LatencyHistogram keeps a sliding window of latency samples.
type LatencyHistogram struct {
	mu      sync.Mutex
	samples []float64
	maxSize int
}

func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{samples: make([]float64, 0, size), maxSize: size}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.samples) >= h.maxSize {
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
}

// RecordDuration adds a duration sample.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Microseconds()) / 1000.0)
}

// Avg returns the mean of the current window, 0 when empty.
func (h *LatencyHistogram) Avg() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range h.samples {
		sum += s
	}
	return sum / float64(len(h.samples))
}
