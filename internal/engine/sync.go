package engine

import (
	"runtime"

	"backtest-core/internal/data"
	"backtest-core/internal/ledger"
)

// SyncEngine is the tight-loop variant for strategies whose hooks never
// block. It is the engine of choice for optimizer/sweep runs where raw
// tick throughput matters.
type SyncEngine struct {
	*core
}

func NewSync(router *ledger.Router, source data.BarSource, opts Options) *SyncEngine {
	c := newCore(router, source, opts)
	c.after = func(n uint64) {
		if n%uint64(c.opts.YieldEvery) == 0 {
			runtime.Gosched()
		}
	}
	return &SyncEngine{core: c}
}

var _ Exchange = (*SyncEngine)(nil)
