// Package indicators provides the price-series math strategies build on.
// Everything works on plain float64 slices; strategies own their windows and
// run on the replay goroutine, so nothing here locks.
package indicators

// Window keeps the most recent prices, bounded to size.
type Window struct {
	values []float64
	size   int
}

func NewWindow(size int) *Window {
	if size <= 0 {
		size = 1
	}
	return &Window{values: make([]float64, 0, size), size: size}
}

// Push appends a price, evicting the oldest once the window is full.
func (w *Window) Push(v float64) {
	w.values = append(w.values, v)
	if len(w.values) > w.size {
		w.values = w.values[1:]
	}
}

func (w *Window) Len() int { return len(w.values) }

// Full reports whether the window holds size samples.
func (w *Window) Full() bool { return len(w.values) >= w.size }

// Values exposes the window contents, oldest first.
func (w *Window) Values() []float64 { return w.values }

// SMA is the simple moving average over the last period values; 0 when the
// series is too short.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	var sum float64
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// EMA is the exponential moving average over the last period values, seeded
// with the SMA of the first period samples.
func EMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	ema := SMA(values[:period], period)
	k := 2.0 / float64(period+1)
	for _, v := range values[period:] {
		ema = v*k + ema*(1-k)
	}
	return ema
}

// RSI is the Relative Strength Index over the last period price changes,
// without Wilder smoothing. Needs period+1 samples; returns 0 until then.
func RSI(values []float64, period int) float64 {
	if period <= 0 || len(values) < period+1 {
		return 0
	}
	var gain, loss float64
	for i := len(values) - period; i < len(values); i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			gain += change
		} else {
			loss -= change
		}
	}
	if loss == 0 {
		return 100
	}
	rs := gain / loss
	return 100 - (100 / (1 + rs))
}
