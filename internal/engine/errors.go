package engine

import "fmt"

// maxDrainPasses bounds the per-tick order-update drain. Fills that keep
// spawning orders that immediately fill again would otherwise loop forever.
const maxDrainPasses = 3

// CycleError is the cycle-breaker trip: the update drain stayed productive
// past the allowed passes within a single tick.
type CycleError struct {
	Symbol string
	Time   int64 // candle time of the failing tick, unix ms
	Passes int
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("order update drain still productive after %d passes: symbol=%s tick=%d",
		e.Passes, e.Symbol, e.Time)
}
