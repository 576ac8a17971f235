// Package indicators computes technical indicator series over daily price bars.
package indicators

import (
	"iter"
	"time"

	"github.com/aristath/watchtower/internal/domain"
)

// Series is an indicator aligned to the input bar dates.
// Points before the indicator's lookback are undefined.
type Series struct {
	dates   []time.Time
	values  []float64
	defined []bool
}

func newSeries(dates []time.Time, values []float64, firstDefined int) Series {
	defined := make([]bool, len(values))
	for i := firstDefined; i < len(values); i++ {
		if i >= 0 {
			defined[i] = true
		}
	}
	return Series{dates: dates, values: values, defined: defined}
}

func undefinedSeries(dates []time.Time) Series {
	return Series{
		dates:   dates,
		values:  make([]float64, len(dates)),
		defined: make([]bool, len(dates)),
	}
}

// Len returns the number of points, defined or not
func (s Series) Len() int {
	return len(s.values)
}

// At returns the value at index i and whether it is defined
func (s Series) At(i int) (float64, bool) {
	if i < 0 || i >= len(s.values) || !s.defined[i] {
		return 0, false
	}
	return s.values[i], true
}

// Last returns the most recent value and whether it is defined
func (s Series) Last() (float64, bool) {
	return s.At(len(s.values) - 1)
}

// Date returns the bar date at index i
func (s Series) Date(i int) time.Time {
	return s.dates[i]
}

// Defined returns the number of defined points
func (s Series) Defined() int {
	n := 0
	for _, d := range s.defined {
		if d {
			n++
		}
	}
	return n
}

// All yields the defined points in date order
func (s Series) All() iter.Seq2[time.Time, float64] {
	return func(yield func(time.Time, float64) bool) {
		for i, v := range s.values {
			if !s.defined[i] {
				continue
			}
			if !yield(s.dates[i], v) {
				return
			}
		}
	}
}

func barDates(bars []domain.PriceBar) []time.Time {
	dates := make([]time.Time, len(bars))
	for i, b := range bars {
		dates[i] = b.Date
	}
	return dates
}

// Closes extracts closing prices
func Closes(bars []domain.PriceBar) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}

// Volumes extracts traded volumes
func Volumes(bars []domain.PriceBar) []float64 {
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		volumes[i] = b.Volume
	}
	return volumes
}
