// Package ledger implements the per-symbol matching/position engine behind
// the simulated exchange: open/closed order sets, hedge or netted position
// slots, and balance/margin/fee/profit accounting. It is pure state plus
// transitions; candles come in from the replay loop and notifications go out
// through the edge-triggered update sets.
//
// A cart is owned by a single goroutine (the tick loop); it is not safe for
// concurrent use.
package ledger

import (
	"log"
	"math"

	"backtest-core/internal/data"
)

const contractsEps = 1e-9

// Config carries the pricing/fee/margin parameters of a cart. Balance is not
// part of it; balance only moves through margin allocation and settlement.
type Config struct {
	Leverage       float64
	MakerFee       float64 // rate, e.g. 0.0002
	TakerFee       float64 // rate, e.g. 0.0004
	Spread         float64 // absolute price units, split across both sides
	PricePrecision int     // decimal places for price rounding
	ContractSize   float64
	HedgeMode      bool
}

// DefaultConfig returns a config usable for simple linear-contract replays.
func DefaultConfig() Config {
	return Config{
		Leverage:       1,
		PricePrecision: 8,
		ContractSize:   1,
	}
}

func (c *Config) normalize() {
	if c.Leverage <= 0 {
		c.Leverage = 1
	}
	if c.ContractSize <= 0 {
		c.ContractSize = 1
	}
	if c.PricePrecision <= 0 {
		c.PricePrecision = 8
	}
}

// Cart is the per-symbol order/position ledger.
type Cart struct {
	symbol string
	cfg    Config

	balance       float64
	marginBalance float64
	profit        float64
	feePaid       float64

	seq       uint64
	candle    data.Candle
	hasCandle bool

	openOrders   []*Order
	closedOrders []*Order
	positions    [2]*Position // [slotLong, slotShort] in hedge mode, slot 0 only otherwise

	// Edge-triggered notification sets, drained once per tick.
	orderUpdates    []Order
	positionUpdates []Position

	// Cached trigger price band over resting orders; lets Trigger skip the
	// open-order scan on ticks that cannot fill anything.
	hasBand bool
	bandMin float64
	bandMax float64
}

// NewCart creates a cart with the given starting balance.
func NewCart(symbol string, balance float64, cfg Config) *Cart {
	cfg.normalize()
	c := &Cart{symbol: symbol, cfg: cfg, balance: balance, marginBalance: balance}
	return c
}

func (c *Cart) Symbol() string { return c.symbol }

// EnableHedgeMode switches the cart to independent long/short slots. Only
// valid while flat; enabling mid-position would redefine the slot layout.
func (c *Cart) EnableHedgeMode() {
	c.cfg.HedgeMode = true
}

// UpdateConfig replaces the pricing/fee/margin parameters. Balance and open
// state are untouched; new parameters apply to subsequent orders.
func (c *Cart) UpdateConfig(cfg Config) {
	cfg.normalize()
	cfg.HedgeMode = c.cfg.HedgeMode
	c.cfg = cfg
}

// SetLeverage changes the leverage used for future margin allocation.
func (c *Cart) SetLeverage(leverage float64) {
	if leverage > 0 {
		c.cfg.Leverage = leverage
	}
}

// SetNewCandle installs the tick's candle. Price-derived effects (mark price,
// fills) are applied by Trigger.
func (c *Cart) SetNewCandle(candle data.Candle) {
	c.candle = candle
	c.hasCandle = true
}

func (c *Cart) roundPrice(p float64) float64 {
	scale := math.Pow10(c.cfg.PricePrecision)
	return math.Round(p*scale) / scale
}

// reject builds the returned-not-thrown rejection order.
func (c *Cart) reject(req OrderRequest, reason string) Order {
	return Order{
		ClientOrderID: req.ClientOrderID,
		Symbol:        c.symbol,
		Type:          req.Type,
		Side:          req.Side,
		Error:         reason,
	}
}

// Create validates and stores a new order. Market orders execute immediately;
// limit and stop orders rest until Trigger fills them. Invalid requests come
// back as a rejection order with Error set; the only Go error path is ledger
// corruption during an immediate fill.
func (c *Cart) Create(req OrderRequest) (Order, error) {
	if !c.hasCandle {
		return c.reject(req, "no market data for symbol"), nil
	}
	if req.Amount <= 0 {
		return c.reject(req, "order amount must be positive"), nil
	}
	if req.Side != SideBuy && req.Side != SideSell {
		return c.reject(req, "invalid order side"), nil
	}

	hasSL := req.StopLossPrice > 0
	hasTP := req.TakeProfitPrice > 0
	if hasSL && hasTP {
		return c.reject(req, "stopLossPrice and takeProfitPrice are mutually exclusive"), nil
	}
	isStop := hasSL || hasTP
	if isStop && req.Type != TypeMarket {
		return c.reject(req, "stop orders must be market type"), nil
	}

	o := &Order{
		ID:              OrderID{Seq: c.nextSeq(), Symbol: c.symbol},
		ClientOrderID:   req.ClientOrderID,
		Symbol:          c.symbol,
		Type:            req.Type,
		Side:            req.Side,
		PositionSide:    req.PositionSide,
		Amount:          req.Amount,
		ReduceOnly:      req.ReduceOnly,
		StopLossPrice:   req.StopLossPrice,
		TakeProfitPrice: req.TakeProfitPrice,
		Status:          StatusOpen,
		Remaining:       req.Amount,
		Timestamp:       c.candle.Time,
		LastUpdate:      c.candle.Time,
	}

	if c.cfg.HedgeMode {
		if req.PositionSide != PositionSideLong && req.PositionSide != PositionSideShort {
			return c.reject(req, "positionSide is required in hedge mode"), nil
		}
		// In hedge mode reduce-only is implied by trading against the
		// slot's natural direction.
		natural := SideBuy
		if req.PositionSide == PositionSideShort {
			natural = SideSell
		}
		o.ReduceOnly = req.Side != natural
	} else if o.PositionSide == "" {
		o.PositionSide = PositionSideBoth
	}

	switch {
	case isStop:
		// Stop-style orders rest untriggered; the trigger price is the
		// execution price.
		o.ReduceOnly = true
		o.Status = StatusUntriggered
		if hasSL {
			o.Price = c.roundPrice(req.StopLossPrice)
		} else {
			o.Price = c.roundPrice(req.TakeProfitPrice)
		}
	case req.Type == TypeMarket:
		half := c.cfg.Spread / 2
		if req.Side == SideBuy {
			o.Price = c.roundPrice(c.candle.Close + half)
		} else {
			o.Price = c.roundPrice(c.candle.Close - half)
		}
	case req.Type == TypeLimit:
		price := c.roundPrice(req.Price)
		if price <= 0 {
			return c.reject(req, "limit order requires a price"), nil
		}
		// A limit that already crosses the market would fill instantly as a
		// taker; the simulation refuses it instead of guessing a fill price.
		if reason := c.limitCrossReason(req.Side, price); reason != "" {
			return c.reject(req, reason), nil
		}
		o.Price = price
	default:
		return c.reject(req, "invalid order type"), nil
	}

	feeRate := c.cfg.TakerFee
	if req.Type == TypeLimit {
		feeRate = c.cfg.MakerFee
	}
	o.Fee = Fee{Cost: o.Amount * o.Price * feeRate}

	c.openOrders = append(c.openOrders, o)

	if req.Type == TypeMarket && !isStop {
		if err := c.execute(o); err != nil {
			return Order{}, err
		}
	} else {
		c.refreshTriggerBand()
	}
	return *o, nil
}

func (c *Cart) nextSeq() uint64 {
	c.seq++
	return c.seq
}

// limitCrossReason reports why a resting limit at price would cross the
// current close, or "" when it rests cleanly.
func (c *Cart) limitCrossReason(side string, price float64) string {
	if side == SideBuy && price >= c.candle.Close {
		return "limit buy price crosses the current price"
	}
	if side == SideSell && price <= c.candle.Close {
		return "limit sell price crosses the current price"
	}
	return ""
}

// slotFor resolves which position slot an order acts on.
func (c *Cart) slotFor(o *Order) int {
	if c.cfg.HedgeMode && o.PositionSide == PositionSideShort {
		return slotShort
	}
	return slotNetted
}

// positionSideFor resolves the direction a fill on an empty slot opens.
func (c *Cart) positionSideFor(o *Order) string {
	if c.cfg.HedgeMode {
		return o.PositionSide
	}
	if o.Side == SideSell {
		return PositionSideShort
	}
	return PositionSideLong
}

// execute fills an open order at its price: opens, grows or reduces the slot
// position, settles margin/PnL/fee against the balance, and closes the order.
func (c *Cart) execute(o *Order) error {
	slot := c.slotFor(o)
	pos := c.positions[slot]

	if o.ReduceOnly && (pos == nil || pos.naturalSide() == o.Side) {
		log.Printf("cart %s: reduce-only order %s has nothing to reduce, canceling", c.symbol, o.ID)
		c.applyPatch(o, CancelPatch())
		return nil
	}

	price := o.Price
	size := c.cfg.ContractSize
	filled := o.Amount

	switch {
	case pos == nil:
		notional := o.Amount * price * size
		margin := notional / c.cfg.Leverage
		pos = &Position{
			Symbol:        c.symbol,
			Side:          c.positionSideFor(o),
			Contracts:     o.Amount,
			ContractSize:  size,
			EntryPrice:    price,
			MarkPrice:     price,
			Leverage:      c.cfg.Leverage,
			InitialMargin: margin,
			Notional:      notional,
			Timestamp:     c.candle.Time,
		}
		c.positions[slot] = pos
		c.balance -= margin

	case o.Side == pos.naturalSide():
		// Same-direction add: size-weighted average entry.
		addNotional := o.Amount * price * size
		addMargin := addNotional / pos.Leverage
		pos.EntryPrice = (pos.EntryPrice*pos.Contracts + price*o.Amount) / (pos.Contracts + o.Amount)
		pos.Contracts += o.Amount
		pos.Notional = pos.Contracts * pos.EntryPrice * size
		pos.InitialMargin += addMargin
		pos.Timestamp = c.candle.Time
		c.balance -= addMargin

	default:
		// Opposite direction: realize PnL on the closed amount, clamped to
		// the available size. The cart never flips a position.
		closed := math.Min(o.Amount, pos.Contracts)
		released := pos.InitialMargin * closed / pos.Contracts
		pnl := (price - pos.EntryPrice) * closed * size * pos.direction()

		pos.Contracts -= closed
		if pos.Contracts < -contractsEps || math.IsNaN(pos.Contracts) || math.IsInf(pos.Contracts, 0) {
			return &CorruptionError{Symbol: c.symbol, OrderID: o.ID, Time: c.candle.Time, Contracts: pos.Contracts}
		}

		c.balance += released + pnl
		c.profit += pnl

		if pos.Contracts <= contractsEps {
			c.positions[slot] = nil
		} else {
			pos.Notional = pos.Contracts * pos.EntryPrice * size
			pos.InitialMargin -= released
			pos.Timestamp = c.candle.Time
		}
		filled = closed
	}

	c.balance -= o.Fee.Cost
	c.feePaid += o.Fee.Cost

	o.Average = price
	o.Filled = filled
	o.Remaining = o.Amount - filled
	o.Cost = filled * price * size
	c.applyPatch(o, OrderPatch{Status: ptr(StatusClosed)})
	return nil
}

// Update merges the patch into the order addressed by id. Closing or
// canceling moves the order to the closed set and queues notifications.
// A price edit that would cross the market is refused the same way Create
// refuses it: the resting order is left untouched and the returned copy
// carries the rejection reason.
func (c *Cart) Update(id OrderID, patch OrderPatch) (Order, bool) {
	o := c.findOpen(id)
	if o == nil {
		return Order{}, false
	}
	if patch.Price != nil && o.Type == TypeLimit {
		if reason := c.limitCrossReason(o.Side, c.roundPrice(*patch.Price)); reason != "" {
			rejected := *o
			rejected.Error = reason
			return rejected, true
		}
	}
	c.applyPatch(o, patch)
	c.refreshTriggerBand()
	return *o, true
}

func (c *Cart) applyPatch(o *Order, patch OrderPatch) {
	if patch.Price != nil {
		o.Price = c.roundPrice(*patch.Price)
	}
	if patch.Amount != nil {
		o.Amount = *patch.Amount
		if !o.IsFinal() {
			o.Remaining = o.Amount - o.Filled
		}
	}
	if (patch.Price != nil || patch.Amount != nil) && !o.IsFinal() {
		// The fee is quoted against the resting price and amount; an edit
		// re-quotes it so the eventual fill settles the edited notional.
		rate := c.cfg.TakerFee
		if o.Type == TypeLimit {
			rate = c.cfg.MakerFee
		}
		o.Fee.Cost = o.Amount * o.Price * rate
	}
	if patch.Status != nil {
		o.Status = *patch.Status
	}
	o.LastUpdate = c.candle.Time

	if o.IsFinal() {
		c.removeOpen(o.ID)
		c.closedOrders = append(c.closedOrders, o)
		c.refreshTriggerBand()
	}

	c.orderUpdates = append(c.orderUpdates, *o)
	if o.IsFinal() {
		// Order left the book: snapshot every live position so listeners
		// see the post-fill state.
		for _, pos := range c.positions {
			if pos != nil {
				c.positionUpdates = append(c.positionUpdates, *pos)
			}
		}
	}
}

func (c *Cart) findOpen(id OrderID) *Order {
	for _, o := range c.openOrders {
		if o.ID == id {
			return o
		}
	}
	return nil
}

func (c *Cart) removeOpen(id OrderID) {
	for i, o := range c.openOrders {
		if o.ID == id {
			c.openOrders = append(c.openOrders[:i], c.openOrders[i+1:]...)
			return
		}
	}
}

// refreshTriggerBand recomputes the cached [min, max] execution price across
// resting orders.
func (c *Cart) refreshTriggerBand() {
	c.hasBand = false
	for _, o := range c.openOrders {
		if o.Status != StatusOpen && o.Status != StatusUntriggered {
			continue
		}
		if !c.hasBand {
			c.hasBand = true
			c.bandMin, c.bandMax = o.Price, o.Price
			continue
		}
		c.bandMin = math.Min(c.bandMin, o.Price)
		c.bandMax = math.Max(c.bandMax, o.Price)
	}
}

// TriggerBand exposes the cached band (ok=false when no order rests).
func (c *Cart) TriggerBand() (min, max float64, ok bool) {
	return c.bandMin, c.bandMax, c.hasBand
}

// Trigger applies the current candle: refreshes mark prices, unrealized PnL
// and margin balance, then fills any resting order whose price falls inside
// the candle's [low, high] range.
func (c *Cart) Trigger() error {
	if !c.hasCandle {
		return nil
	}
	c.refreshMarks()

	if !c.hasBand || c.bandMax < c.candle.Low || c.bandMin > c.candle.High {
		return nil
	}

	var due []*Order
	for _, o := range c.openOrders {
		if o.Price >= c.candle.Low && o.Price <= c.candle.High {
			due = append(due, o)
		}
	}
	for _, o := range due {
		if o.IsFinal() {
			continue // canceled by an earlier fill's side effects
		}
		if err := c.execute(o); err != nil {
			return err
		}
	}
	if len(due) > 0 {
		c.refreshMarks()
	}
	return nil
}

func (c *Cart) refreshMarks() {
	mark := c.candle.Close
	margin := c.balance
	for _, pos := range c.positions {
		if pos == nil {
			continue
		}
		pos.refreshMark(mark)
		margin += pos.InitialMargin + pos.UnrealizedPnl
	}
	c.marginBalance = margin
}

// CheckOrdersUpdates drains the pending order notifications. Nil means no
// change since the last poll.
func (c *Cart) CheckOrdersUpdates() []Order {
	out := c.orderUpdates
	c.orderUpdates = nil
	return out
}

// CheckPositionsUpdates drains the pending position notifications.
func (c *Cart) CheckPositionsUpdates() []Position {
	out := c.positionUpdates
	c.positionUpdates = nil
	return out
}

func (c *Cart) Balance() float64       { return c.balance }
func (c *Cart) MarginBalance() float64 { return c.marginBalance }
func (c *Cart) Profit() float64        { return c.profit }
func (c *Cart) FeePaid() float64       { return c.feePaid }

// Positions returns copies of the live position slots.
func (c *Cart) Positions() []Position {
	var out []Position
	for _, pos := range c.positions {
		if pos != nil {
			out = append(out, *pos)
		}
	}
	return out
}

func (c *Cart) OpenOrders() []Order {
	out := make([]Order, 0, len(c.openOrders))
	for _, o := range c.openOrders {
		out = append(out, *o)
	}
	return out
}

func (c *Cart) ClosedOrders() []Order {
	out := make([]Order, 0, len(c.closedOrders))
	for _, o := range c.closedOrders {
		out = append(out, *o)
	}
	return out
}

func (c *Cart) Orders() []Order {
	return append(c.OpenOrders(), c.ClosedOrders()...)
}

// Order looks an order up across the open and closed sets.
func (c *Cart) Order(id OrderID) (Order, bool) {
	if o := c.findOpen(id); o != nil {
		return *o, true
	}
	for _, o := range c.closedOrders {
		if o.ID == id {
			return *o, true
		}
	}
	return Order{}, false
}
