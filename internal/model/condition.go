package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// State is the directional movement of a ticker between its last two closes.
type State string

const (
	StateUp   State = "Up"
	StateDown State = "Down"
)

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	return s == StateUp || s == StateDown
}

// Condition is the latest derived state for a ticker. One per ticker.
type Condition struct {
	ID        int64
	TickerID  int64
	State     State
	UpdatedAt time.Time
}

// CompareCloses derives the state from the newest and the previous close.
// An unchanged price counts as Down.
func CompareCloses(newest, previous decimal.Decimal) State {
	if newest.GreaterThan(previous) {
		return StateUp
	}
	return StateDown
}
