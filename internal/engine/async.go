package engine

import (
	"log"
	"runtime"
	"time"

	"backtest-core/internal/data"
	"backtest-core/internal/ledger"
	"backtest-core/internal/monitor"
)

// AsyncEngine tolerates observers that block on I/O (journaling, report
// hooks). Every stage of the tick is completed before the next begins, and
// the engine periodically logs replay throughput.
type AsyncEngine struct {
	*core
	metrics *monitor.Metrics
}

func NewAsync(router *ledger.Router, source data.BarSource, opts Options) *AsyncEngine {
	c := newCore(router, source, opts)
	e := &AsyncEngine{core: c, metrics: monitor.NewMetrics()}

	e.orderBus.Subscribe(func(ledger.Order) error {
		e.metrics.AddOrder()
		return nil
	})

	lastTick := time.Now()
	c.after = func(n uint64) {
		e.metrics.AddTick()
		now := time.Now()
		e.metrics.TickLatency.RecordDuration(now.Sub(lastTick))
		lastTick = now

		if n%uint64(c.opts.YieldEvery) == 0 {
			runtime.Gosched()
			log.Printf("engine %s: %d ticks, %.0f ticks/sec, %d order updates, avg tick %.3fms",
				c.opts.Symbol, n, e.metrics.Throughput(), e.metrics.Orders(), e.metrics.TickLatency.Avg())
		}
	}
	return e
}

// Metrics exposes the run counters for the composing caller.
func (e *AsyncEngine) Metrics() *monitor.Metrics {
	return e.metrics
}

var _ Exchange = (*AsyncEngine)(nil)
