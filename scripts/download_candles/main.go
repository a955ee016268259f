package main

import (
	"context"
	"flag"
	"log"
	"time"

	"backtest-core/internal/data"
	market "backtest-core/pkg/market/binance"
)

// download_candles fills the local SQLite candle cache from the Binance REST
// API so replays can run offline.
//
// Usage (from the module root):
//
//	go run ./scripts/download_candles -symbol BTCUSDT -timeframe 60 \
//	    -start 2024-01-01T00:00:00Z -end 2024-06-01T00:00:00Z
func main() {
	var (
		dbPath    = flag.String("db", "./data/candles.db", "candle store path")
		symbol    = flag.String("symbol", "BTCUSDT", "symbol to download")
		timeframe = flag.Int("timeframe", 60, "bar interval in minutes")
		start     = flag.String("start", "", "range start, RFC3339")
		end       = flag.String("end", "", "range end, RFC3339")
		testnet   = flag.Bool("testnet", false, "use the Binance testnet")
	)
	flag.Parse()

	startMs, err := parseTime(*start)
	if err != nil {
		log.Fatalf("bad -start: %v", err)
	}
	endMs, err := parseTime(*end)
	if err != nil {
		log.Fatalf("bad -end: %v", err)
	}

	store, err := data.OpenSQLite(*dbPath)
	if err != nil {
		log.Fatalf("open candle store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	source := data.NewBinanceSource(market.NewClient(*testnet))
	cur, err := source.Bars(ctx, *symbol, *timeframe, startMs, endMs)
	if err != nil {
		log.Fatalf("open binance cursor: %v", err)
	}

	const batchSize = 1000
	var total int
	batch := make([]data.Candle, 0, batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := store.SaveCandles(ctx, *symbol, *timeframe, batch); err != nil {
			log.Fatalf("save candles: %v", err)
		}
		total += len(batch)
		log.Printf("%s %dm: saved %d candles (through %s)", *symbol, *timeframe, total,
			time.UnixMilli(batch[len(batch)-1].Time).UTC().Format(time.RFC3339))
		batch = batch[:0]
	}

	for {
		candle, ok, err := cur.Next(ctx)
		if err != nil {
			log.Fatalf("fetch candles: %v", err)
		}
		if !ok {
			break
		}
		batch = append(batch, candle)
		if len(batch) >= batchSize {
			flush()
		}
	}
	flush()
	log.Printf("done: %d candles for %s %dm in %s", total, *symbol, *timeframe, *dbPath)
}

func parseTime(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}
