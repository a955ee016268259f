package feed

import (
	"context"
	"fmt"
	"strings"

	market "backtest-core/pkg/market/binance"
)

// Kline feed methods are "kline:<interval>", e.g. "kline:1m".
const klineMethodPrefix = "kline:"

// KlineMethod builds the feed method token for an interval.
func KlineMethod(interval string) string {
	return klineMethodPrefix + interval
}

// BinanceClient adapts the Binance market clients to the feed Client
// interface: the websocket stream backs push mode, the REST endpoint backs
// poll mode.
type BinanceClient struct {
	Stream *market.StreamClient
	Rest   *market.Client
}

func (b *BinanceClient) Watch(ctx context.Context, method, symbol string, fn func(any)) error {
	interval, ok := strings.CutPrefix(method, klineMethodPrefix)
	if !ok {
		return fmt.Errorf("binance feed: unsupported push method %q", method)
	}
	return b.Stream.SubscribeKlines(ctx, symbol, interval, func(k market.Kline) {
		fn(k)
	})
}

func (b *BinanceClient) Call(ctx context.Context, method, symbol string) (any, error) {
	interval, ok := strings.CutPrefix(method, klineMethodPrefix)
	if !ok {
		return nil, fmt.Errorf("binance feed: unsupported poll method %q", method)
	}
	klines, err := b.Rest.GetKlines(ctx, symbol, interval, 1, 0, 0)
	if err != nil {
		return nil, err
	}
	if len(klines) == 0 {
		return nil, fmt.Errorf("binance feed: no kline for %s %s", symbol, interval)
	}
	return klines[len(klines)-1], nil
}
