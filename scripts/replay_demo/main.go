package main

import (
	"context"
	"log"

	"backtest-core/internal/data"
	"backtest-core/internal/engine"
	"backtest-core/internal/ledger"
)

// replay_demo drives the simulated exchange through a tiny scripted replay
// without any strategy, scenario file or database: a smoke check for the
// order/position accounting.
//
// Usage (from the module root):
//
//	go run ./scripts/replay_demo
func main() {
	log.Println("=== replay demo starting ===")

	symbol := "BTC/USDT"
	src := data.NewMemorySource()
	prices := []float64{100, 101, 103, 102, 105, 104, 107, 106, 103, 101}
	for i, p := range prices {
		src.Add(symbol, data.Candle{
			Time: int64(i+1) * 60_000,
			Open: p, High: p + 1, Low: p - 1, Close: p, Volume: 1,
		})
	}

	router := ledger.NewRouter(10000, ledger.Config{
		Leverage:       10,
		TakerFee:       0.0004,
		MakerFee:       0.0002,
		PricePrecision: 2,
		ContractSize:   1,
	})
	eng := engine.NewSync(router, src, engine.Options{Symbol: symbol, TimeframeMin: 1})

	eng.WatchOrders("", func(o ledger.Order) error {
		log.Printf("order %s: %s %s %v @ %v -> %s", o.ID, o.Side, o.Type, o.Amount, o.Price, o.Status)
		return nil
	})
	eng.WatchBalance(func(b ledger.Balance) error {
		log.Printf("balance: total=%.2f margin=%.2f profit=%.2f", b.Total, b.Margin, b.Profit)
		return nil
	})

	eng.WatchTicker(context.Background(), func(t engine.Ticker) error {
		switch eng.Ticks() {
		case 1:
			// Scenario 1: market buy, then scale in on the next bar.
			_, err := eng.CreateOrder(symbol, ledger.TypeMarket, ledger.SideBuy, 0.5, 0, engine.OrderParams{})
			return err
		case 2:
			_, err := eng.CreateOrder(symbol, ledger.TypeMarket, ledger.SideBuy, 0.5, 0, engine.OrderParams{})
			return err
		case 4:
			// Scenario 2: protective stop under the position.
			_, err := eng.CreateOrder(symbol, ledger.TypeMarket, ledger.SideSell, 1, 0, engine.OrderParams{StopLossPrice: 102})
			return err
		}
		return nil
	})

	if err := eng.Wait(); err != nil {
		log.Fatalf("replay failed: %v", err)
	}

	b := eng.FetchBalance()
	log.Printf("final: balance=%.2f profit=%.2f fees=%.4f closed=%d positions=%d",
		b.Total, b.Profit, b.Fee, len(eng.FetchClosedOrders()), len(eng.FetchPositions()))
	log.Println("=== replay demo finished ===")
}
