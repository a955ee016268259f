package data

import (
	"context"
	"sort"
)

// BarSource supplies historical candles for a symbol and timeframe.
// Rows come back ascending by time; gaps are allowed.
type BarSource interface {
	// Bars opens a cursor over [startTime, endTime) (unix ms).
	// timeframeMin is the bar interval in minutes.
	Bars(ctx context.Context, symbol string, timeframeMin int, startTime, endTime int64) (Cursor, error)
}

// Cursor walks bars one at a time. Next returns ok=false once the range is
// exhausted; that is the normal end of a finite replay, not an error.
type Cursor interface {
	Next(ctx context.Context) (Candle, bool, error)
}

// MemorySource serves candles from an in-memory slice, keyed by symbol.
// Used for synthetic runs and tests.
type MemorySource struct {
	bars map[string][]Candle
}

func NewMemorySource() *MemorySource {
	return &MemorySource{bars: make(map[string][]Candle)}
}

// Add appends candles for a symbol and keeps them sorted by time.
func (s *MemorySource) Add(symbol string, candles ...Candle) {
	s.bars[symbol] = append(s.bars[symbol], candles...)
	sort.Slice(s.bars[symbol], func(i, j int) bool {
		return s.bars[symbol][i].Time < s.bars[symbol][j].Time
	})
}

func (s *MemorySource) Bars(ctx context.Context, symbol string, timeframeMin int, startTime, endTime int64) (Cursor, error) {
	rows := s.bars[symbol]
	out := make([]Candle, 0, len(rows))
	for _, c := range rows {
		if startTime > 0 && c.Time < startTime {
			continue
		}
		if endTime > 0 && c.Time >= endTime {
			continue
		}
		out = append(out, c)
	}
	return &sliceCursor{rows: out}, nil
}

type sliceCursor struct {
	rows []Candle
	pos  int
}

func (c *sliceCursor) Next(ctx context.Context) (Candle, bool, error) {
	if err := ctx.Err(); err != nil {
		return Candle{}, false, err
	}
	if c.pos >= len(c.rows) {
		return Candle{}, false, nil
	}
	row := c.rows[c.pos]
	c.pos++
	return row, true, nil
}
