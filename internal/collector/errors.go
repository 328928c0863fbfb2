package collector

import (
	"errors"
	"fmt"
)

// ErrNoData matches any response that carried no usable price series.
var ErrNoData = errors.New("no data")

// NoDataError reports which part of the quote response was missing.
type NoDataError struct {
	Symbol  string
	Section string
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("no data for %s: %s", e.Symbol, e.Section)
}

func (e *NoDataError) Is(target error) bool { return target == ErrNoData }

// NetworkError is a transport failure or a non-success HTTP status.
// StatusCode is zero when no response was received.
type NetworkError struct {
	Symbol     string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("quote request for %s: status %d", e.Symbol, e.StatusCode)
	}
	return fmt.Sprintf("quote request for %s: %v", e.Symbol, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }
