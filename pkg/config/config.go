package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the backtest core.
type Config struct {
	// Scenario
	ScenarioPath string

	// Bar source selection: "memory", "sqlite" or "binance".
	BarSource      string
	CandleDBPath   string
	BinanceTestnet bool

	// Journal
	JournalPath   string
	EnableJournal bool

	// Defaults applied when the scenario omits them.
	InitialBalance float64
	TakerFee       float64
	MakerFee       float64

	// Feed registry
	FeedSweepSec   int
	FeedMaxRetries int
	FeedPollPerSec float64
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		ScenarioPath:   getEnv("SCENARIO_PATH", "./scenarios.yaml"),
		BarSource:      strings.ToLower(getEnv("BAR_SOURCE", "sqlite")),
		CandleDBPath:   getEnv("CANDLE_DB_PATH", "./data/candles.db"),
		BinanceTestnet: getEnv("BINANCE_TESTNET", "false") == "true",
		JournalPath:    getEnv("JOURNAL_PATH", "./data/journal.db"),
		EnableJournal:  getEnv("ENABLE_JOURNAL", "true") == "true",
		InitialBalance: getEnvFloat("INITIAL_BALANCE", 10000.0),
		TakerFee:       getEnvFloat("TAKER_FEE", 0.0004),
		MakerFee:       getEnvFloat("MAKER_FEE", 0.0002),
		FeedSweepSec:   getEnvInt("FEED_SWEEP_SEC", 5),
		FeedMaxRetries: getEnvInt("FEED_MAX_RETRIES", 0),
		FeedPollPerSec: getEnvFloat("FEED_POLL_PER_SEC", 1),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
