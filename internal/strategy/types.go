package strategy

import (
	"context"

	"backtest-core/internal/engine"
	"backtest-core/internal/ledger"
)

// Strategy is the hook surface the engine fires. Implementations are plain
// in-process objects; what they do inside a hook is opaque to the core, the
// engine only guarantees when hooks run.
type Strategy interface {
	// ID returns the unique instance ID
	ID() string
	// Name returns the human-readable name
	Name() string

	// OnTick runs after the candle is installed, before resting orders fill.
	OnTick(ex engine.Exchange, t engine.Ticker) error
	// OnOrderChange runs once per drained order update.
	OnOrderChange(ex engine.Exchange, o ledger.Order) error
	// OnTickEnd runs after all of the tick's order effects have settled.
	OnTickEnd(ex engine.Exchange, t engine.Ticker) error
}

// Attach binds a strategy's hooks to the engine's dispatch points. The tick
// subscription goes last: it is the call that starts the replay, and the
// other hooks must be registered before the first candle fires.
func Attach(ctx context.Context, ex engine.Exchange, s Strategy) {
	ex.WatchOrders("", func(o ledger.Order) error {
		return s.OnOrderChange(ex, o)
	})
	ex.WatchTickEnd(func(t engine.Ticker) error {
		return s.OnTickEnd(ex, t)
	})
	ex.WatchTicker(ctx, func(t engine.Ticker) error {
		return s.OnTick(ex, t)
	})
}
