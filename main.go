package main

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backtest-core/internal/data"
	"backtest-core/internal/engine"
	"backtest-core/internal/feed"
	"backtest-core/internal/journal"
	"backtest-core/internal/ledger"
	"backtest-core/internal/scenario"
	"backtest-core/internal/strategy"
	"backtest-core/pkg/config"
	market "backtest-core/pkg/market/binance"

	"golang.org/x/time/rate"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if os.Getenv("MODE") == "live" {
		runLive(ctx, cfg)
		return
	}

	scenarios, err := scenario.Load(cfg.ScenarioPath)
	if err != nil {
		log.Fatalf("load scenarios: %v", err)
	}
	if len(scenarios) == 0 {
		log.Fatal("no scenarios defined")
	}

	source, cleanup, err := buildSource(cfg, scenarios)
	if err != nil {
		log.Fatalf("build bar source: %v", err)
	}
	defer cleanup()

	var jdb *journal.DB
	if cfg.EnableJournal {
		jdb, err = journal.Open(cfg.JournalPath)
		if err != nil {
			log.Fatalf("open journal: %v", err)
		}
		defer jdb.Close()
	}

	for _, sc := range scenarios {
		if err := runScenario(ctx, cfg, sc, source, jdb); err != nil {
			if errors.Is(err, context.Canceled) {
				log.Printf("run %q canceled", sc.Name)
				return
			}
			log.Fatalf("run %q failed: %v", sc.Name, err)
		}
	}
}

func runScenario(ctx context.Context, cfg *config.Config, sc scenario.Scenario, source data.BarSource, jdb *journal.DB) error {
	startTime, _ := sc.StartTime()
	endTime, _ := sc.EndTime()

	balance := sc.Balance
	if balance <= 0 {
		balance = cfg.InitialBalance
	}
	lcfg := sc.LedgerConfig()
	if lcfg.TakerFee == 0 {
		lcfg.TakerFee = cfg.TakerFee
	}
	if lcfg.MakerFee == 0 {
		lcfg.MakerFee = cfg.MakerFee
	}

	router := ledger.NewRouter(balance, lcfg)
	opts := engine.Options{
		Symbol:       sc.Symbol,
		TimeframeMin: sc.TimeframeMin,
		StartTime:    startTime,
		EndTime:      endTime,
	}

	var ex engine.Exchange
	wait := func() error { return nil }
	switch sc.Engine {
	case "async":
		e := engine.NewAsync(router, source, opts)
		ex, wait = e, e.Wait
	default:
		e := engine.NewSync(router, source, opts)
		ex, wait = e, e.Wait
	}

	if jdb != nil {
		journal.NewRecorder(jdb).Attach(ctx, ex)
	}

	strat := buildStrategy(sc)
	log.Printf("run %q: %s %dm, strategy %s", sc.Name, sc.Symbol, sc.TimeframeMin, strat.Name())
	strategy.Attach(ctx, ex, strat)

	if err := wait(); err != nil {
		return err
	}

	b := ex.FetchBalance()
	log.Printf("run %q finished: balance=%.2f margin=%.2f profit=%.2f fees=%.4f closed_orders=%d open_orders=%d",
		sc.Name, b.Total, b.Margin, b.Profit, b.Fee, len(ex.FetchClosedOrders()), len(ex.FetchOpenOrders()))

	if jdb != nil {
		if s, err := jdb.Summarize(ctx); err == nil {
			log.Printf("journal: %d orders (%d canceled), %d trades, %.4f fees", s.Orders, s.Canceled, s.Trades, s.Fees)
		}
	}
	return nil
}

func buildSource(cfg *config.Config, scenarios []scenario.Scenario) (data.BarSource, func(), error) {
	switch cfg.BarSource {
	case "binance":
		source := data.NewBinanceSource(market.NewClient(cfg.BinanceTestnet))
		return data.NewCachedSource(source, 0), func() {}, nil
	case "memory":
		return syntheticSource(scenarios), func() {}, nil
	default:
		store, err := data.OpenSQLite(cfg.CandleDBPath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	}
}

// syntheticSource fills an in-memory source with a random walk per scenario
// symbol, enough for local smoke runs without any candle download.
func syntheticSource(scenarios []scenario.Scenario) *data.MemorySource {
	const bars = 10000
	src := data.NewMemorySource()
	for _, sc := range scenarios {
		step := int64(sc.TimeframeMin) * 60_000
		start := time.Now().UnixMilli() - int64(bars)*step
		price := 100.0
		candles := make([]data.Candle, 0, bars)
		for i := 0; i < bars; i++ {
			open := price
			price += (rand.Float64()*2 - 1) * 0.5
			high := open
			low := open
			if price > high {
				high = price
			}
			if price < low {
				low = price
			}
			candles = append(candles, data.Candle{
				Time:   start + int64(i)*step,
				Open:   open,
				High:   high,
				Low:    low,
				Close:  price,
				Volume: rand.Float64() * 10,
			})
		}
		src.Add(sc.Symbol, candles...)
	}
	return src
}

func buildStrategy(sc scenario.Scenario) strategy.Strategy {
	params := sc.Strategy.Parameters
	switch sc.Strategy.Type {
	case "rsi":
		return strategy.NewRSIReversion(
			sc.Name,
			sc.Symbol,
			intParam(params, "period", 14),
			floatParam(params, "oversold", 30),
			floatParam(params, "overbought", 70),
			floatParam(params, "size", 0.01),
		)
	default: // ma_cross
		return strategy.NewMACross(
			sc.Name,
			sc.Symbol,
			intParam(params, "fast", 10),
			intParam(params, "slow", 30),
			floatParam(params, "size", 0.01),
		)
	}
}

// runLive subscribes push-mode kline feeds and logs what arrives; a quick way
// to watch the feed registry against the real stream.
func runLive(ctx context.Context, cfg *config.Config) {
	client := &feed.BinanceClient{
		Stream: market.NewStreamClient(cfg.BinanceTestnet),
		Rest:   market.NewClient(cfg.BinanceTestnet),
	}
	registry := feed.NewRegistry("binance", client, feed.Options{
		SweepEvery: time.Duration(cfg.FeedSweepSec) * time.Second,
		PollLimit:  rate.Limit(cfg.FeedPollPerSec),
		MaxRetries: cfg.FeedMaxRetries,
	})
	registry.SetObserver(func(v any) {
		if k, ok := v.(market.Kline); ok && k.Final {
			log.Printf("live %s: close=%.2f vol=%.4f", k.Symbol, k.Close, k.Volume)
		}
	})
	registry.Start(ctx)

	symbol := os.Getenv("LIVE_SYMBOL")
	if symbol == "" {
		symbol = "BTCUSDT"
	}
	registry.Subscribe(ctx, feed.Spec{
		Method: feed.KlineMethod("1m"),
		Symbol: symbol,
		Mode:   feed.ModePush,
	}, func(any) {})

	log.Printf("live mode: watching %s, ctrl-c to exit", symbol)
	<-ctx.Done()
}

func intParam(params map[string]any, key string, def int) int {
	if v, ok := params[key]; ok {
		switch t := v.(type) {
		case int:
			return t
		case float64:
			return int(t)
		}
	}
	return def
}

func floatParam(params map[string]any, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		switch t := v.(type) {
		case int:
			return float64(t)
		case float64:
			return t
		}
	}
	return def
}
