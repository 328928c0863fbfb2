package pipeline

import (
	"errors"

	"StockPulse/internal/model"
)

// ErrNoTickers is returned by Run when there is nothing to process.
var ErrNoTickers = errors.New("no tickers given")

// Status is the terminal result of processing one ticker.
type Status int

const (
	StatusDone Status = iota
	StatusInsufficientData
	StatusNoData
	StatusNetworkError
	StatusProcessingError
)

func (s Status) String() string {
	switch s {
	case StatusDone:
		return "done"
	case StatusInsufficientData:
		return "insufficient data"
	case StatusNoData:
		return "no data"
	case StatusNetworkError:
		return "network error"
	case StatusProcessingError:
		return "processing error"
	default:
		return "unknown"
	}
}

// Outcome is what happened to one ticker in a run.
type Outcome struct {
	Symbol   string
	Status   Status
	State    model.State // set only when Status is StatusDone
	Inserted int         // new price points written
	Stored   int         // price points held for the ticker after the run
	Err      error
}

// OK reports whether the ticker reached a condition.
func (o Outcome) OK() bool { return o.Status == StatusDone }
