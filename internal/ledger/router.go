package ledger

import (
	"fmt"

	"backtest-core/internal/data"
)

// Balance is the aggregate account snapshot across all carts.
type Balance struct {
	Total  float64
	Margin float64
	Profit float64
	Fee    float64
}

// Router owns one cart per symbol and fans calls out by symbol or order id.
// Carts are created lazily on first use with the router's base config and
// starting balance.
type Router struct {
	cfg            Config
	initialBalance float64

	carts   map[string]*Cart
	symbols []string // creation order, keeps aggregation deterministic

	// Edge-trigger state for CheckBalanceUpdates.
	lastBalance float64
	lastMargin  float64
	primed      bool
}

func NewRouter(initialBalance float64, cfg Config) *Router {
	cfg.normalize()
	return &Router{
		cfg:            cfg,
		initialBalance: initialBalance,
		carts:          make(map[string]*Cart),
	}
}

func (r *Router) cart(symbol string) *Cart {
	if c, ok := r.carts[symbol]; ok {
		return c
	}
	c := NewCart(symbol, r.initialBalance, r.cfg)
	r.carts[symbol] = c
	r.symbols = append(r.symbols, symbol)
	return c
}

// Cart exposes the per-symbol ledger (creating it if needed).
func (r *Router) Cart(symbol string) *Cart {
	return r.cart(symbol)
}

func (r *Router) Create(req OrderRequest) (Order, error) {
	if req.Symbol == "" {
		return Order{}, fmt.Errorf("create order: symbol is required")
	}
	return r.cart(req.Symbol).Create(req)
}

// Update routes by the structured order id.
func (r *Router) Update(id OrderID, patch OrderPatch) (Order, error) {
	c, ok := r.carts[id.Symbol]
	if !ok {
		return Order{}, fmt.Errorf("update order %s: unknown symbol %q", id, id.Symbol)
	}
	o, ok := c.Update(id, patch)
	if !ok {
		return Order{}, fmt.Errorf("update order %s: not open", id)
	}
	return o, nil
}

func (r *Router) Order(id OrderID) (Order, bool) {
	c, ok := r.carts[id.Symbol]
	if !ok {
		return Order{}, false
	}
	return c.Order(id)
}

func (r *Router) SetNewCandle(symbol string, candle data.Candle) {
	r.cart(symbol).SetNewCandle(candle)
}

func (r *Router) Trigger(symbol string) error {
	return r.cart(symbol).Trigger()
}

// EnableHedgeMode switches one cart, or every cart when symbol is empty.
// New carts inherit the mode through the base config.
func (r *Router) EnableHedgeMode(symbol string) {
	if symbol != "" {
		r.cart(symbol).EnableHedgeMode()
		return
	}
	r.cfg.HedgeMode = true
	for _, s := range r.symbols {
		r.carts[s].EnableHedgeMode()
	}
}

// UpdateConfig replaces the pricing config on one cart or on all of them.
func (r *Router) UpdateConfig(symbol string, cfg Config) {
	if symbol != "" {
		r.cart(symbol).UpdateConfig(cfg)
		return
	}
	hedge := r.cfg.HedgeMode
	r.cfg = cfg
	r.cfg.normalize()
	r.cfg.HedgeMode = hedge
	for _, s := range r.symbols {
		r.carts[s].UpdateConfig(cfg)
	}
}

func (r *Router) SetLeverage(symbol string, leverage float64) {
	if symbol != "" {
		r.cart(symbol).SetLeverage(leverage)
		return
	}
	r.cfg.Leverage = leverage
	for _, s := range r.symbols {
		r.carts[s].SetLeverage(leverage)
	}
}

// Balance aggregates balances across all carts.
func (r *Router) Balance() Balance {
	var b Balance
	for _, s := range r.symbols {
		c := r.carts[s]
		b.Total += c.Balance()
		b.Margin += c.MarginBalance()
		b.Profit += c.Profit()
		b.Fee += c.FeePaid()
	}
	return b
}

func (r *Router) Positions() []Position {
	var out []Position
	for _, s := range r.symbols {
		out = append(out, r.carts[s].Positions()...)
	}
	return out
}

func (r *Router) Orders() []Order {
	var out []Order
	for _, s := range r.symbols {
		out = append(out, r.carts[s].Orders()...)
	}
	return out
}

func (r *Router) OpenOrders() []Order {
	var out []Order
	for _, s := range r.symbols {
		out = append(out, r.carts[s].OpenOrders()...)
	}
	return out
}

func (r *Router) ClosedOrders() []Order {
	var out []Order
	for _, s := range r.symbols {
		out = append(out, r.carts[s].ClosedOrders()...)
	}
	return out
}

// CheckOrdersUpdates drains pending order notifications across all carts.
func (r *Router) CheckOrdersUpdates() []Order {
	var out []Order
	for _, s := range r.symbols {
		out = append(out, r.carts[s].CheckOrdersUpdates()...)
	}
	return out
}

// CheckPositionsUpdates drains pending position notifications across all carts.
func (r *Router) CheckPositionsUpdates() []Position {
	var out []Position
	for _, s := range r.symbols {
		out = append(out, r.carts[s].CheckPositionsUpdates()...)
	}
	return out
}

// CheckBalanceUpdates diffs the aggregate (balance, marginBalance) pair
// against the last observed value and reports only on change. This is how a
// push-balance API is synthesized over a polling aggregate.
func (r *Router) CheckBalanceUpdates() (Balance, bool) {
	b := r.Balance()
	if r.primed && b.Total == r.lastBalance && b.Margin == r.lastMargin {
		return Balance{}, false
	}
	r.primed = true
	r.lastBalance = b.Total
	r.lastMargin = b.Margin
	return b, true
}
