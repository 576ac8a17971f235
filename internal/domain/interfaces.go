package domain

import (
	"context"
	"time"
)

// PriceSource fetches daily bars from an external market data provider
type PriceSource interface {
	// FetchBars returns bars for ticker with from <= date <= to, ascending by date
	FetchBars(ctx context.Context, ticker string, from, to time.Time) ([]PriceBar, error)
}

// FundamentalsSource fetches valuation data for a ticker
type FundamentalsSource interface {
	FetchFundamentals(ctx context.Context, ticker string) (*Fundamentals, error)
}

// Notifier delivers dispatched notices to one outside channel
type Notifier interface {
	Name() string
	Notify(ctx context.Context, notices []Notice) error
}
