package ledger

// Position is one open position slot. In hedge mode a cart holds an
// independent long slot and short slot; netted mode uses a single slot.
type Position struct {
	Symbol        string
	Side          string // long | short
	Contracts     float64
	ContractSize  float64
	EntryPrice    float64
	MarkPrice     float64
	UnrealizedPnl float64
	Leverage      float64
	InitialMargin float64
	Notional      float64
	Timestamp     int64
}

const (
	slotNetted = 0
	slotLong   = 0
	slotShort  = 1
)

// direction returns +1 for long, -1 for short.
func (p *Position) direction() float64 {
	if p.Side == PositionSideShort {
		return -1
	}
	return 1
}

// refreshMark recomputes mark-price-derived fields against the latest close.
func (p *Position) refreshMark(markPrice float64) {
	p.MarkPrice = markPrice
	p.UnrealizedPnl = (markPrice - p.EntryPrice) * p.Contracts * p.ContractSize * p.direction()
}

// naturalSide is the order side that grows this position.
func (p *Position) naturalSide() string {
	if p.Side == PositionSideShort {
		return SideSell
	}
	return SideBuy
}
