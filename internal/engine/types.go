package engine

import (
	"context"

	"backtest-core/internal/data"
	"backtest-core/internal/ledger"
)

// Ticker is the per-candle market snapshot delivered to tick observers.
type Ticker struct {
	Symbol    string
	Timestamp int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Last      float64
	Volume    float64
}

func tickerFrom(symbol string, c data.Candle) Ticker {
	return Ticker{
		Symbol:    symbol,
		Timestamp: c.Time,
		Open:      c.Open,
		High:      c.High,
		Low:       c.Low,
		Close:     c.Close,
		Last:      c.Close,
		Volume:    c.Volume,
	}
}

// PriceLevel is one order book level.
type PriceLevel struct {
	Price  float64
	Amount float64
}

// OrderBook is the zero-depth book synthesized from the last close.
type OrderBook struct {
	Symbol    string
	Timestamp int64
	Bids      []PriceLevel
	Asks      []PriceLevel
}

// OrderParams carries the optional fields of CreateOrder.
type OrderParams struct {
	ClientOrderID   string
	ReduceOnly      bool
	PositionSide    string
	StopLossPrice   float64
	TakeProfitPrice float64
}

// Exchange is the fixed method surface strategy code binds to. Both engine
// variants and any live adapter implement it; strategies never see anything
// beyond these capabilities.
//
// The surface is not safe for concurrent use. Once the replay starts, the
// loop goroutine owns the ledger and the market snapshot, so calls must come
// from watch callbacks (which run on that goroutine) or before the first
// WatchTicker.
type Exchange interface {
	WatchTicker(ctx context.Context, cb func(Ticker) error) int64
	WatchTickEnd(cb func(Ticker) error) int64
	WatchOrderBook(symbol string) OrderBook
	WatchOrders(symbol string, cb func(ledger.Order) error) int64
	WatchBalance(cb func(ledger.Balance) error) int64
	WatchPositions(symbols []string, cb func([]ledger.Position) error) int64

	CreateOrder(symbol, typ, side string, amount, price float64, params OrderParams) (ledger.Order, error)
	EditOrder(id ledger.OrderID, price, amount float64) (ledger.Order, error)
	CancelOrder(id ledger.OrderID) (ledger.Order, error)

	FetchBalance() ledger.Balance
	FetchPositions() []ledger.Position
	FetchOrders() []ledger.Order
	FetchOpenOrders() []ledger.Order
	FetchClosedOrders() []ledger.Order
	FetchOHLCV(ctx context.Context, symbol string, timeframeMin int, since int64, limit int) ([]data.Candle, error)

	SetLeverage(leverage float64, symbol string)
}
