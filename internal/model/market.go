package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the storage and display format for calendar days.
const DateLayout = "2006-01-02"

// DailyClose is one trading day's closing price as returned by a quote source.
type DailyClose struct {
	Date  time.Time // UTC midnight
	Close decimal.Decimal
}

// PricePoint is a persisted closing price, unique per ticker and day.
type PricePoint struct {
	ID       int64
	TickerID int64
	Date     time.Time
	Value    decimal.Decimal
}

// DateOf truncates an instant to its UTC calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
