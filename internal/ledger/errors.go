package ledger

import "fmt"

// CorruptionError reports unrecoverable ledger state: a position size that
// went negative after clamping or turned non-finite. It carries enough
// context to replay the failing tick.
type CorruptionError struct {
	Symbol    string
	OrderID   OrderID
	Time      int64 // candle time of the failing tick, unix ms
	Contracts float64
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("ledger corrupted: symbol=%s order=%s tick=%d contracts=%v",
		e.Symbol, e.OrderID, e.Time, e.Contracts)
}
