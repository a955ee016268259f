package strategy

import (
	"context"
	"testing"

	"backtest-core/internal/data"
	"backtest-core/internal/ledger"
)

// dipSource rises, sells off hard, then recovers well past the dip, which
// takes RSI through oversold and back above overbought.
func dipSource() *data.MemorySource {
	src := data.NewMemorySource()
	prices := make([]float64, 0, 30)
	p := 100.0
	for i := 0; i < 10; i++ {
		p += 2
		prices = append(prices, p)
	}
	for i := 0; i < 5; i++ {
		p -= 4
		prices = append(prices, p)
	}
	for i := 0; i < 15; i++ {
		p += 4
		prices = append(prices, p)
	}
	for i, close := range prices {
		src.Add(testSymbol, data.Candle{
			Time:   int64(i+1) * 60_000,
			Open:   close,
			High:   close + 1,
			Low:    close - 1,
			Close:  close,
			Volume: 1,
		})
	}
	return src
}

func TestRSIReversionBuysTheDip(t *testing.T) {
	eng := newTestEngine(dipSource())
	s := NewRSIReversion("test", testSymbol, 5, 30, 70, 0.1)

	Attach(context.Background(), eng, s)
	if err := eng.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	closed := eng.FetchClosedOrders()
	if len(closed) != 2 {
		t.Fatalf("closed orders = %d, want entry and exit", len(closed))
	}
	if closed[0].Side != ledger.SideBuy || closed[1].Side != ledger.SideSell {
		t.Fatalf("sides = %s,%s, want buy,sell", closed[0].Side, closed[1].Side)
	}
	if len(eng.FetchPositions()) != 0 {
		t.Fatal("position still open after the recovery")
	}
	// Bought low, sold high: realized profit must be positive.
	if b := eng.FetchBalance(); b.Profit <= 0 {
		t.Fatalf("profit = %v, want > 0", b.Profit)
	}
}

func TestRSIReversionDefaults(t *testing.T) {
	s := NewRSIReversion("test", testSymbol, 0, 0, 0, 0)
	if s.period != 14 || s.oversold != 30 || s.overbought != 70 {
		t.Fatalf("defaults = %d/%.0f/%.0f, want 14/30/70", s.period, s.oversold, s.overbought)
	}
	if s.Name() != "rsi_14_30_70" {
		t.Fatalf("name = %q", s.Name())
	}
}
