package collector

import (
	"context"

	"StockPulse/internal/model"
)

// Fetcher defines the interface for fetching daily closing prices.
type Fetcher interface {
	// FetchDailyCloses returns the closes for the trailing windowDays, oldest first.
	FetchDailyCloses(ctx context.Context, symbol string, windowDays int) ([]model.DailyClose, error)
	Name() string
}
