package indicators

import (
	"math"
	"testing"
)

func TestWindowEvictsOldest(t *testing.T) {
	w := NewWindow(3)
	for _, v := range []float64{1, 2, 3, 4} {
		w.Push(v)
	}
	if w.Len() != 3 || !w.Full() {
		t.Fatalf("len = %d full = %v, want 3/true", w.Len(), w.Full())
	}
	got := w.Values()
	if got[0] != 2 || got[2] != 4 {
		t.Fatalf("values = %v, want [2 3 4]", got)
	}
}

func TestSMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	tests := []struct {
		period int
		want   float64
	}{
		{period: 1, want: 5},
		{period: 3, want: 4},
		{period: 5, want: 3},
		{period: 6, want: 0}, // too short
		{period: 0, want: 0},
	}
	for _, tt := range tests {
		if got := SMA(values, tt.period); got != tt.want {
			t.Fatalf("SMA(period=%d) = %v, want %v", tt.period, got, tt.want)
		}
	}
}

func TestEMAWeighsRecentValues(t *testing.T) {
	flat := []float64{5, 5, 5, 5, 5}
	if got := EMA(flat, 3); got != 5 {
		t.Fatalf("EMA(flat) = %v, want 5", got)
	}

	rising := []float64{1, 2, 3, 4, 5}
	ema := EMA(rising, 3)
	sma := SMA(rising, 3)
	if ema <= sma {
		t.Fatalf("EMA = %v not above SMA = %v on a rising series", ema, sma)
	}
	if EMA(rising, 6) != 0 {
		t.Fatal("EMA on a short series != 0")
	}
}

func TestRSI(t *testing.T) {
	up := []float64{1, 2, 3, 4, 5}
	if got := RSI(up, 4); got != 100 {
		t.Fatalf("RSI(all gains) = %v, want 100", got)
	}

	down := []float64{5, 4, 3, 2, 1}
	if got := RSI(down, 4); got != 0 {
		t.Fatalf("RSI(all losses) = %v, want 0", got)
	}

	mixed := []float64{10, 11, 10, 11, 10}
	got := RSI(mixed, 4)
	if math.Abs(got-50) > 1e-9 {
		t.Fatalf("RSI(balanced) = %v, want 50", got)
	}

	if RSI(mixed, 5) != 0 {
		t.Fatal("RSI without period+1 samples != 0")
	}
}
