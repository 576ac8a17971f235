package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by repositories when a record does not exist
var ErrNotFound = errors.New("not found")

// DataGapError reports missing or late market data for one ticker.
// The affected ticker is skipped; the rest of the pass continues.
type DataGapError struct {
	Err    error
	Ticker string
	Reason string
}

func (e *DataGapError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data gap for %s: %s: %v", e.Ticker, e.Reason, e.Err)
	}
	return fmt.Sprintf("data gap for %s: %s", e.Ticker, e.Reason)
}

func (e *DataGapError) Unwrap() error {
	return e.Err
}

// ComputationUndefinedError reports a metric that cannot be computed from its inputs
type ComputationUndefinedError struct {
	Metric string
	Reason string
}

func (e *ComputationUndefinedError) Error() string {
	return fmt.Sprintf("%s undefined: %s", e.Metric, e.Reason)
}

// ConfigurationError reports an invalid threshold or weight setting
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

// ConcurrencyConflictError reports an overlapping run for the same key
type ConcurrencyConflictError struct {
	Key string
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("concurrent run in progress or already completed for %s", e.Key)
}

// IsDataGap reports whether err wraps a DataGapError
func IsDataGap(err error) bool {
	var gap *DataGapError
	return errors.As(err, &gap)
}

// IsConcurrencyConflict reports whether err wraps a ConcurrencyConflictError
func IsConcurrencyConflict(err error) bool {
	var conflict *ConcurrencyConflictError
	return errors.As(err, &conflict)
}
