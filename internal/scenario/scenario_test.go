package scenario

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeScenarioFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write scenario file: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeScenarioFile(t, `
scenarios:
  - name: ma-cross-btc
    symbol: BTC/USDT
    timeframe_min: 60
    start: 2024-01-01T00:00:00Z
    end: 2024-06-01T00:00:00Z
    engine: async
    balance: 5000
    leverage: 10
    maker_fee: 0.0002
    taker_fee: 0.0004
    spread: 0.5
    price_precision: 2
    contract_size: 1
    hedge_mode: true
    strategy:
      type: ma_cross
      parameters:
        fast: 12
        slow: 26
        size: 0.05
`)

	scenarios, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(scenarios) != 1 {
		t.Fatalf("scenarios = %d, want 1", len(scenarios))
	}
	sc := scenarios[0]
	if sc.Name != "ma-cross-btc" || sc.Symbol != "BTC/USDT" || sc.TimeframeMin != 60 {
		t.Fatalf("scenario = %+v", sc)
	}
	if sc.Engine != "async" || sc.Balance != 5000 {
		t.Fatalf("engine/balance = %s/%v, want async/5000", sc.Engine, sc.Balance)
	}
	if sc.Strategy.Type != "ma_cross" {
		t.Fatalf("strategy type = %q, want ma_cross", sc.Strategy.Type)
	}
	if sc.Strategy.Parameters["fast"] != 12 {
		t.Fatalf("fast = %v, want 12", sc.Strategy.Parameters["fast"])
	}

	start, err := sc.StartTime()
	if err != nil {
		t.Fatalf("StartTime: %v", err)
	}
	if start != 1704067200000 {
		t.Fatalf("start = %d, want 1704067200000", start)
	}

	cfg := sc.LedgerConfig()
	if cfg.Leverage != 10 || cfg.Spread != 0.5 || !cfg.HedgeMode {
		t.Fatalf("ledger config = %+v", cfg)
	}
}

func TestLoadOptionalFieldsDefaultToZero(t *testing.T) {
	path := writeScenarioFile(t, `
scenarios:
  - name: minimal
    symbol: ETH/USDT
    timeframe_min: 1
`)
	scenarios, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	sc := scenarios[0]
	if sc.Balance != 0 || sc.Start != "" || sc.End != "" {
		t.Fatalf("scenario = %+v, want zero optional fields", sc)
	}
	if start, err := sc.StartTime(); err != nil || start != 0 {
		t.Fatalf("StartTime = %d/%v, want 0", start, err)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "missing symbol",
			yaml: `
scenarios:
  - name: bad
    timeframe_min: 1
`,
			wantErr: "symbol is required",
		},
		{
			name: "bad timeframe",
			yaml: `
scenarios:
  - name: bad
    symbol: BTC/USDT
`,
			wantErr: "timeframe_min must be positive",
		},
		{
			name: "negative balance",
			yaml: `
scenarios:
  - name: bad
    symbol: BTC/USDT
    timeframe_min: 1
    balance: -5
`,
			wantErr: "balance must not be negative",
		},
		{
			name: "bad start time",
			yaml: `
scenarios:
  - name: bad
    symbol: BTC/USDT
    timeframe_min: 1
    start: yesterday
`,
			wantErr: "invalid time",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScenarioFile(t, tt.yaml)
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Load error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load of a missing file succeeded")
	}
}
