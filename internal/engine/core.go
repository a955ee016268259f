// Package engine implements the tick-driven replay loop: it pulls historical
// candles one at a time, drives the ledger through a fixed per-tick event
// sequence, and exposes the push-style exchange-client surface strategy code
// is written against.
//
// The loop goroutine owns the ledger. Strategy code interacts with the engine
// from inside observer callbacks, which run on that goroutine; the per-tick
// sequence is therefore strictly ordered and never interleaved with fetching
// the next bar.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"backtest-core/internal/data"
	"backtest-core/internal/events"
	"backtest-core/internal/ledger"
)

// defaultYieldEvery is how many ticks run back to back before the loop yields
// to the scheduler so a long replay cannot starve the process.
const defaultYieldEvery = 5000

// Options configures a replay.
type Options struct {
	Symbol       string
	TimeframeMin int
	StartTime    int64 // unix ms, 0 = from the first bar
	EndTime      int64 // unix ms exclusive, 0 = until exhausted
	YieldEvery   int   // 0 = defaultYieldEvery
}

type core struct {
	opts   Options
	router *ledger.Router
	source data.BarSource

	tickBus     *events.Bus[Ticker]
	tickEndBus  *events.Bus[Ticker]
	orderBus    *events.Bus[ledger.Order]
	positionBus *events.Bus[[]ledger.Position]
	balanceBus  *events.Bus[ledger.Balance]

	// after runs once per completed tick; the engine variants hook their
	// scheduling/throughput behavior in here.
	after func(n uint64)

	mu      sync.Mutex
	started bool
	runErr  error
	done    chan struct{}

	ticks      uint64
	lastCandle data.Candle
	hasCandle  bool
}

func newCore(router *ledger.Router, source data.BarSource, opts Options) *core {
	if opts.YieldEvery <= 0 {
		opts.YieldEvery = defaultYieldEvery
	}
	return &core{
		opts:        opts,
		router:      router,
		source:      source,
		tickBus:     events.NewBus[Ticker](),
		tickEndBus:  events.NewBus[Ticker](),
		orderBus:    events.NewBus[ledger.Order](),
		positionBus: events.NewBus[[]ledger.Position](),
		balanceBus:  events.NewBus[ledger.Balance](),
		done:        make(chan struct{}),
	}
}

// WatchTicker registers a tick observer and, on the first call, starts the
// replay. Further calls just add observers; the loop is never restarted.
func (c *core) WatchTicker(ctx context.Context, cb func(Ticker) error) int64 {
	id := c.tickBus.Subscribe(cb)
	c.start(ctx)
	return id
}

// WatchTickEnd registers an observer for the tick-end dispatch point, fired
// once all of a tick's order effects have settled.
func (c *core) WatchTickEnd(cb func(Ticker) error) int64 {
	return c.tickEndBus.Subscribe(cb)
}

// WatchOrderBook synthesizes a zero-depth book from the last close.
func (c *core) WatchOrderBook(symbol string) OrderBook {
	ob := OrderBook{Symbol: symbol}
	if c.hasCandle {
		ob.Timestamp = c.lastCandle.Time
		ob.Bids = []PriceLevel{{Price: c.lastCandle.Close}}
		ob.Asks = []PriceLevel{{Price: c.lastCandle.Close}}
	}
	return ob
}

// WatchOrders registers an order-update observer; empty symbol observes all.
func (c *core) WatchOrders(symbol string, cb func(ledger.Order) error) int64 {
	return c.orderBus.Subscribe(func(o ledger.Order) error {
		if symbol != "" && o.Symbol != symbol {
			return nil
		}
		return cb(o)
	})
}

// WatchBalance registers a balance-change observer.
func (c *core) WatchBalance(cb func(ledger.Balance) error) int64 {
	return c.balanceBus.Subscribe(cb)
}

// WatchPositions registers a position-update observer; nil symbols observes all.
func (c *core) WatchPositions(symbols []string, cb func([]ledger.Position) error) int64 {
	want := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		want[s] = true
	}
	return c.positionBus.Subscribe(func(ps []ledger.Position) error {
		if len(want) == 0 {
			return cb(ps)
		}
		var out []ledger.Position
		for _, p := range ps {
			if want[p.Symbol] {
				out = append(out, p)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return cb(out)
	})
}

func (c *core) CreateOrder(symbol, typ, side string, amount, price float64, params OrderParams) (ledger.Order, error) {
	clientID := params.ClientOrderID
	if clientID == "" {
		clientID = uuid.NewString()
	}
	return c.router.Create(ledger.OrderRequest{
		Symbol:          symbol,
		Type:            typ,
		Side:            side,
		Amount:          amount,
		Price:           price,
		ClientOrderID:   clientID,
		ReduceOnly:      params.ReduceOnly,
		PositionSide:    params.PositionSide,
		StopLossPrice:   params.StopLossPrice,
		TakeProfitPrice: params.TakeProfitPrice,
	})
}

func (c *core) EditOrder(id ledger.OrderID, price, amount float64) (ledger.Order, error) {
	patch := ledger.OrderPatch{}
	if price > 0 {
		patch.Price = &price
	}
	if amount > 0 {
		patch.Amount = &amount
	}
	return c.router.Update(id, patch)
}

func (c *core) CancelOrder(id ledger.OrderID) (ledger.Order, error) {
	return c.router.Update(id, ledger.CancelPatch())
}

func (c *core) FetchBalance() ledger.Balance      { return c.router.Balance() }
func (c *core) FetchPositions() []ledger.Position { return c.router.Positions() }
func (c *core) FetchOrders() []ledger.Order       { return c.router.Orders() }
func (c *core) FetchOpenOrders() []ledger.Order   { return c.router.OpenOrders() }
func (c *core) FetchClosedOrders() []ledger.Order { return c.router.ClosedOrders() }

// FetchOHLCV bridges strategy-initiated historical lookups to the bar source
// on an independent cursor; the replay cursor is untouched.
func (c *core) FetchOHLCV(ctx context.Context, symbol string, timeframeMin int, since int64, limit int) ([]data.Candle, error) {
	cur, err := c.source.Bars(ctx, symbol, timeframeMin, since, 0)
	if err != nil {
		return nil, fmt.Errorf("fetchOHLCV %s: %w", symbol, err)
	}
	if limit <= 0 {
		limit = 500
	}
	out := make([]data.Candle, 0, limit)
	for len(out) < limit {
		candle, ok, err := cur.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetchOHLCV %s: %w", symbol, err)
		}
		if !ok {
			break
		}
		out = append(out, candle)
	}
	return out, nil
}

func (c *core) SetLeverage(leverage float64, symbol string) {
	c.router.SetLeverage(symbol, leverage)
}

// Ticks reports how many candles have been fully processed.
func (c *core) Ticks() uint64 {
	return atomic.LoadUint64(&c.ticks)
}

// Wait blocks until the replay finishes and returns its terminal error: nil
// when the bar source was exhausted, ctx.Err on cancellation, or a fatal
// engine/ledger error.
func (c *core) Wait() error {
	<-c.done
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runErr
}

func (c *core) start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go func() {
		err := c.run(ctx)
		c.mu.Lock()
		c.runErr = err
		c.mu.Unlock()
		close(c.done)
	}()
}

func (c *core) run(ctx context.Context) error {
	cur, err := c.source.Bars(ctx, c.opts.Symbol, c.opts.TimeframeMin, c.opts.StartTime, c.opts.EndTime)
	if err != nil {
		return fmt.Errorf("open bar cursor %s: %w", c.opts.Symbol, err)
	}
	for n := uint64(1); ; n++ {
		end, err := c.step(ctx, cur)
		if err != nil {
			return err
		}
		if end {
			return nil
		}
		if c.after != nil {
			c.after(n)
		}
	}
}

// step runs one full tick. Cancellation is honored only here, at the tick
// boundary, so the ledger is never abandoned half-updated.
func (c *core) step(ctx context.Context, cur data.Cursor) (end bool, err error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	candle, ok, err := cur.Next(ctx)
	if err != nil {
		return false, fmt.Errorf("bar source %s: %w", c.opts.Symbol, err)
	}
	if !ok {
		// Exhausted source: the normal end of a finite replay.
		return true, nil
	}

	c.lastCandle = candle
	c.hasCandle = true
	c.router.SetNewCandle(c.opts.Symbol, candle)

	tk := tickerFrom(c.opts.Symbol, candle)
	if err := c.tickBus.Emit(tk); err != nil {
		return false, err
	}
	if err := c.router.Trigger(c.opts.Symbol); err != nil {
		return false, err
	}
	if err := c.drain(candle); err != nil {
		return false, err
	}
	if err := c.tickEndBus.Emit(tk); err != nil {
		return false, err
	}

	atomic.AddUint64(&c.ticks, 1)
	return false, nil
}

// drain flushes the ledger's pending notification sets, re-emitting them as
// watch events. Observers may create orders that fill immediately, producing
// more updates; the pass bound breaks feedback loops where every fill
// spawns an order that immediately fills again.
func (c *core) drain(candle data.Candle) error {
	for pass := 1; ; pass++ {
		orders := c.router.CheckOrdersUpdates()
		positions := c.router.CheckPositionsUpdates()
		if len(orders) == 0 && len(positions) == 0 {
			break
		}
		if pass > maxDrainPasses {
			return &CycleError{Symbol: c.opts.Symbol, Time: candle.Time, Passes: pass}
		}
		for _, o := range orders {
			if err := c.orderBus.Emit(o); err != nil {
				return err
			}
		}
		if len(positions) > 0 {
			if err := c.positionBus.Emit(positions); err != nil {
				return err
			}
		}
		if b, ok := c.router.CheckBalanceUpdates(); ok {
			if err := c.balanceBus.Emit(b); err != nil {
				return err
			}
		}
	}
	// Margin recompute on Trigger can move the balance with no order traffic.
	if b, ok := c.router.CheckBalanceUpdates(); ok {
		return c.balanceBus.Emit(b)
	}
	return nil
}
