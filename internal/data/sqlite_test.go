package data

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "candles.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	candles := []Candle{
		{Time: 1000, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{Time: 2000, Open: 1.5, High: 3, Low: 1, Close: 2.5, Volume: 20},
		{Time: 3000, Open: 2.5, High: 4, Low: 2, Close: 3.5, Volume: 30},
	}
	if err := store.SaveCandles(ctx, "BTC/USDT", 1, candles); err != nil {
		t.Fatalf("SaveCandles: %v", err)
	}
	// Same rows again: the upsert must not duplicate.
	if err := store.SaveCandles(ctx, "BTC/USDT", 1, candles); err != nil {
		t.Fatalf("SaveCandles (again): %v", err)
	}

	cur, err := store.Bars(ctx, "BTC/USDT", 1, 0, 0)
	if err != nil {
		t.Fatalf("Bars: %v", err)
	}
	got := drain(t, cur)
	if len(got) != 3 {
		t.Fatalf("bars = %d, want 3", len(got))
	}
	if got[1] != candles[1] {
		t.Fatalf("bar 1 = %+v, want %+v", got[1], candles[1])
	}
}

func TestSQLiteStoreKeysBySymbolAndTimeframe(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.SaveCandles(ctx, "BTC/USDT", 1, []Candle{{Time: 1000, Close: 1}}); err != nil {
		t.Fatalf("SaveCandles: %v", err)
	}
	if err := store.SaveCandles(ctx, "BTC/USDT", 5, []Candle{{Time: 1000, Close: 5}}); err != nil {
		t.Fatalf("SaveCandles: %v", err)
	}
	if err := store.SaveCandles(ctx, "ETH/USDT", 1, []Candle{{Time: 1000, Close: 9}}); err != nil {
		t.Fatalf("SaveCandles: %v", err)
	}

	cur, err := store.Bars(ctx, "BTC/USDT", 1, 0, 0)
	if err != nil {
		t.Fatalf("Bars: %v", err)
	}
	got := drain(t, cur)
	if len(got) != 1 || got[0].Close != 1 {
		t.Fatalf("bars = %+v, want the one 1m BTC row", got)
	}
}

func TestSQLiteStoreWindow(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	var candles []Candle
	for i := int64(1); i <= 5; i++ {
		candles = append(candles, Candle{Time: i * 1000, Close: float64(i)})
	}
	if err := store.SaveCandles(ctx, "BTC/USDT", 1, candles); err != nil {
		t.Fatalf("SaveCandles: %v", err)
	}

	cur, err := store.Bars(ctx, "BTC/USDT", 1, 2000, 4000)
	if err != nil {
		t.Fatalf("Bars: %v", err)
	}
	got := drain(t, cur)
	if len(got) != 2 || got[0].Time != 2000 || got[1].Time != 3000 {
		t.Fatalf("window = %+v, want rows at 2000 and 3000", got)
	}
}

func TestOpenSQLiteRejectsEmptyPath(t *testing.T) {
	if _, err := OpenSQLite(""); err == nil {
		t.Fatal("OpenSQLite with empty path succeeded")
	}
}
