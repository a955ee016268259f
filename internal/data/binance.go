package data

import (
	"context"
	"fmt"

	market "backtest-core/pkg/market/binance"
)

const defaultPageSize = 1000

// BinanceSource serves historical bars straight from the Binance REST API,
// fetching pages lazily as the replay cursor advances.
type BinanceSource struct {
	client   *market.Client
	pageSize int
}

func NewBinanceSource(client *market.Client) *BinanceSource {
	return &BinanceSource{client: client, pageSize: defaultPageSize}
}

// Interval maps a timeframe in minutes onto the vendor interval token.
func Interval(timeframeMin int) string {
	switch timeframeMin {
	case 60:
		return "1h"
	case 240:
		return "4h"
	case 1440:
		return "1d"
	default:
		return fmt.Sprintf("%dm", timeframeMin)
	}
}

func (s *BinanceSource) Bars(ctx context.Context, symbol string, timeframeMin int, startTime, endTime int64) (Cursor, error) {
	if timeframeMin <= 0 {
		return nil, fmt.Errorf("binance source: invalid timeframe %d", timeframeMin)
	}
	return &pagedCursor{
		source:  s,
		symbol:  symbol,
		tfMin:   timeframeMin,
		nextAt:  startTime,
		endTime: endTime,
	}, nil
}

// pagedCursor pulls one REST page at a time. nextAt tracks the open time the
// next page starts from, which makes the cursor resumable across gaps.
type pagedCursor struct {
	source  *BinanceSource
	symbol  string
	tfMin   int
	nextAt  int64
	endTime int64
	buf     []Candle
	pos     int
	done    bool
}

func (c *pagedCursor) Next(ctx context.Context) (Candle, bool, error) {
	if c.done {
		return Candle{}, false, nil
	}
	if c.pos >= len(c.buf) {
		if err := c.fetch(ctx); err != nil {
			return Candle{}, false, err
		}
		if c.done {
			return Candle{}, false, nil
		}
	}
	candle := c.buf[c.pos]
	c.pos++
	return candle, true, nil
}

func (c *pagedCursor) fetch(ctx context.Context) error {
	klines, err := c.source.client.GetKlines(ctx, c.symbol, Interval(c.tfMin), c.source.pageSize, c.nextAt, c.endTime)
	if err != nil {
		return fmt.Errorf("fetch klines %s: %w", c.symbol, err)
	}
	if len(klines) == 0 {
		c.done = true
		return nil
	}

	c.buf = c.buf[:0]
	c.pos = 0
	for _, k := range klines {
		if c.endTime > 0 && k.OpenTime >= c.endTime {
			continue
		}
		c.buf = append(c.buf, Candle{
			Time:   k.OpenTime,
			Open:   k.Open,
			High:   k.High,
			Low:    k.Low,
			Close:  k.Close,
			Volume: k.Volume,
		})
	}
	last := klines[len(klines)-1].OpenTime
	c.nextAt = last + int64(c.tfMin)*60_000
	if len(c.buf) == 0 {
		c.done = true
	}
	return nil
}
