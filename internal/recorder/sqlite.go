package recorder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"StockPulse/internal/model"
)

// priceScale is the number of fractional digits kept for stored prices.
const priceScale = 4

// SQLiteRecorder persists tickers, prices and conditions to a SQLite database.
// Every operation runs under mu, so the store behaves as single threaded no
// matter how many pipeline goroutines call into it.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger zerolog.Logger
	now    func() time.Time
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger zerolog.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps the per-connection pragmas below in force.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	r := &SQLiteRecorder{db: db, logger: logger, now: time.Now}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

// migrate creates the schema if it does not exist yet. Safe to run on every start.
func (r *SQLiteRecorder) migrate() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tickers (
			id     INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL UNIQUE
		)`,

		`CREATE TABLE IF NOT EXISTS prices (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			ticker_id INTEGER NOT NULL REFERENCES tickers(id),
			date      TEXT NOT NULL,
			value     TEXT NOT NULL,
			UNIQUE (ticker_id, date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_prices_ticker_date ON prices(ticker_id, date DESC)`,

		`CREATE TABLE IF NOT EXISTS todays_conditions (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			ticker_id  INTEGER NOT NULL UNIQUE REFERENCES tickers(id),
			state      TEXT NOT NULL CHECK (state IN ('Up', 'Down')),
			updated_at INTEGER NOT NULL
		)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", abbrev(s), err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) GetOrCreateTicker(ctx context.Context, symbol string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO tickers (symbol) VALUES (?) ON CONFLICT(symbol) DO NOTHING`, symbol); err != nil {
		return 0, fmt.Errorf("insert ticker %s: %w", symbol, err)
	}

	var id int64
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM tickers WHERE symbol = ?`, symbol).Scan(&id); err != nil {
		return 0, fmt.Errorf("select ticker %s: %w", symbol, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

func (r *SQLiteRecorder) PriceExists(ctx context.Context, tickerID int64, date time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM prices WHERE ticker_id = ? AND date = ?`,
		tickerID, formatDate(date),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count prices: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRecorder) InsertPrice(ctx context.Context, tickerID int64, date time.Time, value decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO prices (ticker_id, date, value) VALUES (?,?,?)`,
		tickerID, formatDate(date), value.Round(priceScale).StringFixed(priceScale),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("ticker %d on %s: %w", tickerID, formatDate(date), ErrDuplicatePrice)
		}
		return fmt.Errorf("insert price: %w", err)
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) UpsertCondition(ctx context.Context, tickerID int64, state model.State) error {
	if !state.Valid() {
		return fmt.Errorf("invalid state %q", state)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO todays_conditions (ticker_id, state, updated_at)
		VALUES (?,?,?)
		ON CONFLICT(ticker_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		tickerID, string(state), r.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert condition: %w", err)
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) GetLastTwoPrices(ctx context.Context, tickerID int64) ([]model.PricePoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.QueryContext(ctx, `SELECT id, ticker_id, date, value
		FROM prices
		WHERE ticker_id = ?
		ORDER BY date DESC
		LIMIT 2`, tickerID)
	if err != nil {
		return nil, fmt.Errorf("query prices: %w", err)
	}
	defer rows.Close()

	prices := make([]model.PricePoint, 0, 2)
	for rows.Next() {
		var (
			p     model.PricePoint
			date  string
			value string
		)
		if err := rows.Scan(&p.ID, &p.TickerID, &date, &value); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		if p.Date, err = time.Parse(model.DateLayout, date); err != nil {
			return nil, fmt.Errorf("parse date %q: %w", date, err)
		}
		if p.Value, err = decimal.NewFromString(value); err != nil {
			return nil, fmt.Errorf("parse value %q: %w", value, err)
		}
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prices: %w", err)
	}
	return prices, nil
}

func (r *SQLiteRecorder) GetCondition(ctx context.Context, tickerID int64) (*model.Condition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		c         model.Condition
		state     string
		updatedAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, ticker_id, state, updated_at FROM todays_conditions WHERE ticker_id = ?`,
		tickerID,
	).Scan(&c.ID, &c.TickerID, &state, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("condition for ticker %d: %w", tickerID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select condition: %w", err)
	}
	c.State = model.State(state)
	c.UpdatedAt = time.Unix(updatedAt, 0)
	return &c, nil
}

// CountPrices returns how many prices are stored for a ticker.
func (r *SQLiteRecorder) CountPrices(ctx context.Context, tickerID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM prices WHERE ticker_id = ?`, tickerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count prices: %w", err)
	}
	return n, nil
}

func (r *SQLiteRecorder) Close() error {
	r.logger.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}

func formatDate(t time.Time) string {
	return model.DateOf(t).Format(model.DateLayout)
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(se.Error(), "UNIQUE")
	}
	return false
}

func abbrev(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 40 {
		return s[:40]
	}
	return s
}
