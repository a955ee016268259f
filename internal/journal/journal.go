// Package journal persists the orders and fills a replay produces, so runs
// can be inspected after the process exits.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"backtest-core/internal/ledger"
)

// Trade is one fill row.
type Trade struct {
	ID        string
	OrderID   string
	Symbol    string
	Side      string
	Price     float64
	Qty       float64
	Fee       float64
	Time      int64 // candle time, unix ms
	CreatedAt time.Time
}

// Summary aggregates one run's journal.
type Summary struct {
	Orders   int
	Canceled int
	Trades   int
	Fees     float64
}

// DB wraps the SQL handle for easier swapping/testing.
type DB struct {
	db *sql.DB
}

// Open opens (and creates if needed) the journal database at path.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, errors.New("journal path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite prefers a single writer.
	db.SetConnMaxLifetime(time.Hour)

	j := &DB{db: db}
	if err := j.init(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *DB) init() error {
	_, err := j.db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			id            TEXT PRIMARY KEY,
			client_id     TEXT,
			symbol        TEXT NOT NULL,
			type          TEXT NOT NULL,
			side          TEXT NOT NULL,
			position_side TEXT,
			price         REAL,
			amount        REAL,
			filled        REAL,
			average       REAL,
			fee           REAL,
			status        TEXT NOT NULL,
			reduce_only   INTEGER NOT NULL DEFAULT 0,
			created_at    INTEGER,
			updated_at    INTEGER
		);
		CREATE TABLE IF NOT EXISTS trades (
			id         TEXT PRIMARY KEY,
			order_id   TEXT NOT NULL,
			symbol     TEXT NOT NULL,
			side       TEXT NOT NULL,
			price      REAL,
			qty        REAL,
			fee        REAL,
			time       INTEGER,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`)
	if err != nil {
		return fmt.Errorf("create journal schema: %w", err)
	}
	return nil
}

// Close releases the underlying DB handle.
func (j *DB) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// RecordOrder upserts an order row.
func (j *DB) RecordOrder(ctx context.Context, o ledger.Order) error {
	reduceOnly := 0
	if o.ReduceOnly {
		reduceOnly = 1
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO orders (id, client_id, symbol, type, side, position_side, price, amount,
			filled, average, fee, status, reduce_only, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			price = excluded.price,
			amount = excluded.amount,
			filled = excluded.filled,
			average = excluded.average,
			fee = excluded.fee,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		o.ID.String(), o.ClientOrderID, o.Symbol, o.Type, o.Side, o.PositionSide,
		o.Price, o.Amount, o.Filled, o.Average, o.Fee.Cost, o.Status, reduceOnly,
		o.Timestamp, o.LastUpdate)
	if err != nil {
		return fmt.Errorf("record order %s: %w", o.ID, err)
	}
	return nil
}

// RecordTrade inserts a fill row.
func (j *DB) RecordTrade(ctx context.Context, t Trade) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO trades (id, order_id, symbol, side, price, qty, fee, time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OrderID, t.Symbol, t.Side, t.Price, t.Qty, t.Fee, t.Time)
	if err != nil {
		return fmt.Errorf("record trade %s: %w", t.ID, err)
	}
	return nil
}

// ListTrades returns fills, optionally filtered by symbol, ascending by time.
func (j *DB) ListTrades(ctx context.Context, symbol string) ([]Trade, error) {
	query := `SELECT id, order_id, symbol, side, price, qty, fee, time FROM trades`
	var args []any
	if symbol != "" {
		query += ` WHERE symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY time ASC`

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(&t.ID, &t.OrderID, &t.Symbol, &t.Side, &t.Price, &t.Qty, &t.Fee, &t.Time); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Summarize aggregates the run journal.
func (j *DB) Summarize(ctx context.Context) (Summary, error) {
	var s Summary
	row := j.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM orders),
			(SELECT COUNT(*) FROM orders WHERE status = 'canceled'),
			(SELECT COUNT(*) FROM trades),
			(SELECT COALESCE(SUM(fee), 0) FROM trades)`)
	if err := row.Scan(&s.Orders, &s.Canceled, &s.Trades, &s.Fees); err != nil {
		return Summary{}, err
	}
	return s, nil
}
