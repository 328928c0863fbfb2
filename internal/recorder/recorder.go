package recorder

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"StockPulse/internal/model"
)

var (
	// ErrDuplicatePrice is returned by InsertPrice when the ticker already has a price for that day.
	ErrDuplicatePrice = errors.New("price already recorded for ticker and date")
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
)

// Recorder owns the ticker, price and condition tables. Implementations must be
// safe for concurrent use.
type Recorder interface {
	GetOrCreateTicker(ctx context.Context, symbol string) (int64, error)
	PriceExists(ctx context.Context, tickerID int64, date time.Time) (bool, error)
	InsertPrice(ctx context.Context, tickerID int64, date time.Time, value decimal.Decimal) error
	UpsertCondition(ctx context.Context, tickerID int64, state model.State) error
	// GetLastTwoPrices returns at most two prices, newest first.
	GetLastTwoPrices(ctx context.Context, tickerID int64) ([]model.PricePoint, error)
	GetCondition(ctx context.Context, tickerID int64) (*model.Condition, error)
	// CountPrices returns how many prices are stored for the ticker.
	CountPrices(ctx context.Context, tickerID int64) (int, error)
	Close() error
}

var _ Recorder = (*SQLiteRecorder)(nil)
