package ledger

import (
	"fmt"
	"strconv"
	"strings"
)

// Order sides, types and statuses follow the exchange-client vocabulary
// strategies are written against.
const (
	SideBuy  = "buy"
	SideSell = "sell"

	TypeMarket = "market"
	TypeLimit  = "limit"

	StatusOpen        = "open"
	StatusClosed      = "closed"
	StatusCanceled    = "canceled"
	StatusUntriggered = "untriggered"

	PositionSideLong  = "long"
	PositionSideShort = "short"
	PositionSideBoth  = "both"
)

// OrderID is the structured order key: a per-cart sequence plus the owning
// symbol. The symbol part is what lets the router address the right cart
// without string parsing.
type OrderID struct {
	Seq    uint64
	Symbol string
}

func (id OrderID) String() string {
	return fmt.Sprintf("%d-%s", id.Seq, id.Symbol)
}

func (id OrderID) IsZero() bool {
	return id.Seq == 0 && id.Symbol == ""
}

// ParseOrderID parses the "<seq>-<symbol>" display form back into a key.
// Malformed input is an error, never a zero value.
func ParseOrderID(s string) (OrderID, error) {
	seqStr, symbol, ok := strings.Cut(s, "-")
	if !ok || seqStr == "" || symbol == "" {
		return OrderID{}, fmt.Errorf("malformed order id %q", s)
	}
	seq, err := strconv.ParseUint(seqStr, 10, 64)
	if err != nil {
		return OrderID{}, fmt.Errorf("malformed order id %q: %w", s, err)
	}
	return OrderID{Seq: seq, Symbol: symbol}, nil
}

// Fee is the fee charged on one order.
type Fee struct {
	Cost float64
}

// Order is a simulated exchange order. Rejected requests come back as an
// Order with Error set; strategy code checks that field the same way it
// would check a live exchange response.
type Order struct {
	ID            OrderID
	ClientOrderID string
	Symbol        string
	Type          string
	Side          string
	PositionSide  string
	Price         float64
	Amount        float64
	Status        string
	ReduceOnly    bool
	Fee           Fee

	StopLossPrice   float64
	TakeProfitPrice float64

	// Fill fields, populated on execution.
	Average   float64
	Filled    float64
	Remaining float64
	Cost      float64

	Timestamp  int64 // creation, unix ms (candle time)
	LastUpdate int64

	// Error carries a rejection reason. Rejections are part of the order
	// surface, not Go errors.
	Error string
}

// IsRejected reports whether the order was refused at creation.
func (o Order) IsRejected() bool {
	return o.Error != ""
}

// IsFinal reports whether the order left the open set.
func (o Order) IsFinal() bool {
	return o.Status == StatusClosed || o.Status == StatusCanceled
}

// OrderRequest is the input to Cart.Create.
type OrderRequest struct {
	Symbol        string
	Type          string
	Side          string
	Amount        float64
	Price         float64
	ClientOrderID string
	ReduceOnly    bool
	PositionSide  string

	// Stop orders set exactly one of these; the trigger price becomes the
	// execution price.
	StopLossPrice   float64
	TakeProfitPrice float64
}

// OrderPatch is a partial order update for Cart.Update; nil fields are left
// untouched.
type OrderPatch struct {
	Price  *float64
	Amount *float64
	Status *string
}

func ptr[T any](v T) *T { return &v }

// CancelPatch marks an order canceled.
func CancelPatch() OrderPatch {
	return OrderPatch{Status: ptr(StatusCanceled)}
}
