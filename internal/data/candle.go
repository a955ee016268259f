package data

import "time"

// Candle represents a single OHLCV bar.
type Candle struct {
	Time   int64 // open time, unix milliseconds
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// OpenTime returns the bar's open time as time.Time.
func (c Candle) OpenTime() time.Time {
	return time.UnixMilli(c.Time)
}
