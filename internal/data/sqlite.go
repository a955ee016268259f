package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore is a bar source backed by a local SQLite candle cache. It is
// also writable so download jobs can populate it ahead of a replay.
type SQLiteStore struct {
	DB *sql.DB
}

// OpenSQLite opens (and creates if needed) the candle store at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("candle store path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create candle store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite prefers a single writer.
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{DB: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	_, err := s.DB.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol        TEXT    NOT NULL,
			timeframe_min INTEGER NOT NULL,
			time          INTEGER NOT NULL,
			open          REAL    NOT NULL,
			high          REAL    NOT NULL,
			low           REAL    NOT NULL,
			close         REAL    NOT NULL,
			volume        REAL    NOT NULL,
			PRIMARY KEY (symbol, timeframe_min, time)
		)`)
	if err != nil {
		return fmt.Errorf("create candles table: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// SaveCandles upserts candles for a symbol/timeframe.
func (s *SQLiteStore) SaveCandles(ctx context.Context, symbol string, timeframeMin int, candles []Candle) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (symbol, timeframe_min, time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, timeframe_min, time) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, symbol, timeframeMin, c.Time, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return fmt.Errorf("save candle %s@%d: %w", symbol, c.Time, err)
		}
	}
	return tx.Commit()
}

// Bars streams candles ascending by time; the cursor holds the query open so
// large ranges never load fully into memory.
func (s *SQLiteStore) Bars(ctx context.Context, symbol string, timeframeMin int, startTime, endTime int64) (Cursor, error) {
	query := `SELECT time, open, high, low, close, volume FROM candles
		WHERE symbol = ? AND timeframe_min = ? AND time >= ?`
	args := []any{symbol, timeframeMin, startTime}
	if endTime > 0 {
		query += ` AND time < ?`
		args = append(args, endTime)
	}
	query += ` ORDER BY time ASC`

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query candles %s: %w", symbol, err)
	}
	return &rowsCursor{rows: rows}, nil
}

type rowsCursor struct {
	rows *sql.Rows
	done bool
}

func (c *rowsCursor) Next(ctx context.Context) (Candle, bool, error) {
	if c.done {
		return Candle{}, false, nil
	}
	if err := ctx.Err(); err != nil {
		c.close()
		return Candle{}, false, err
	}
	if !c.rows.Next() {
		err := c.rows.Err()
		c.close()
		return Candle{}, false, err
	}
	var candle Candle
	if err := c.rows.Scan(&candle.Time, &candle.Open, &candle.High, &candle.Low, &candle.Close, &candle.Volume); err != nil {
		c.close()
		return Candle{}, false, err
	}
	return candle, true, nil
}

func (c *rowsCursor) close() {
	if !c.done {
		c.done = true
		c.rows.Close()
	}
}
