package monitor

import (
	"testing"
	"time"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < 5; i++ {
		m.AddTick()
	}
	m.AddOrder()
	m.AddOrder()

	if m.Ticks() != 5 {
		t.Fatalf("ticks = %d, want 5", m.Ticks())
	}
	if m.Orders() != 2 {
		t.Fatalf("orders = %d, want 2", m.Orders())
	}
	if m.Elapsed() < 0 {
		t.Fatalf("elapsed = %v", m.Elapsed())
	}
}

func TestThroughputMeasuresDelta(t *testing.T) {
	m := NewMetrics()
	m.AddTick()
	m.AddTick()
	time.Sleep(5 * time.Millisecond)

	first := m.Throughput()
	if first <= 0 {
		t.Fatalf("throughput = %v, want > 0", first)
	}

	// No ticks since the last call: the rate drops to zero.
	time.Sleep(5 * time.Millisecond)
	if again := m.Throughput(); again != 0 {
		t.Fatalf("throughput with no new ticks = %v, want 0", again)
	}
}

func TestLatencyHistogramWindow(t *testing.T) {
	h := NewLatencyHistogram(3)
	if h.Avg() != 0 {
		t.Fatalf("empty avg = %v, want 0", h.Avg())
	}

	h.Record(1)
	h.Record(2)
	h.Record(3)
	if got := h.Avg(); got != 2 {
		t.Fatalf("avg = %v, want 2", got)
	}

	// Window slides: the oldest sample drops out.
	h.Record(7)
	if got := h.Avg(); got != 4 {
		t.Fatalf("avg after slide = %v, want 4", got)
	}
}

func TestLatencyHistogramRecordDuration(t *testing.T) {
	h := NewLatencyHistogram(10)
	h.RecordDuration(1500 * time.Microsecond)
	if got := h.Avg(); got != 1.5 {
		t.Fatalf("avg = %v ms, want 1.5", got)
	}
}
