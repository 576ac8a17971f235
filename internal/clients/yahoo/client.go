// Package yahoo fetches daily bars and valuation ratios from Yahoo Finance.
package yahoo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/equity"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/aristath/watchtower/internal/domain"
)

// Config tunes request pacing and failure handling
type Config struct {
	Timeout           time.Duration `yaml:"timeout"`
	BreakerCooldown   time.Duration `yaml:"breaker_cooldown"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	BreakerFailures   uint32        `yaml:"breaker_failures"`
}

// DefaultConfig returns conservative settings for the public endpoints
func DefaultConfig() Config {
	return Config{
		Timeout:           15 * time.Second,
		BreakerCooldown:   60 * time.Second,
		RequestsPerSecond: 2,
		Burst:             4,
		BreakerFailures:   5,
	}
}

// ErrNoData is returned when the provider answers without any usable values
var ErrNoData = errors.New("no data returned")

type chartFetcher func(ticker string, from, to time.Time) ([]*finance.ChartBar, error)

type equityFetcher func(ticker string) (*finance.Equity, error)

// Client implements domain.PriceSource and domain.FundamentalsSource
type Client struct {
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker
	fetchChart  chartFetcher
	fetchEquity equityFetcher
	log         zerolog.Logger
	timeout     time.Duration
}

// NewClient creates a Yahoo Finance client
func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg = DefaultConfig()
	}
	log = log.With().Str("client", "yahoo").Logger()

	settings := gobreaker.Settings{
		Name:     "yahoo",
		Interval: 60 * time.Second,
		Timeout:  cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			// An unknown ticker is an answer, not a provider failure
			return err == nil || errors.Is(err, ErrNoData)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	}

	return &Client{
		limiter:     rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		breaker:     gobreaker.NewCircuitBreaker(settings),
		fetchChart:  fetchChart,
		fetchEquity: equity.Get,
		timeout:     cfg.Timeout,
		log:         log,
	}
}

// FetchBars returns daily bars with from <= date <= to, ascending
func (c *Client) FetchBars(ctx context.Context, ticker string, from, to time.Time) ([]domain.PriceBar, error) {
	v, err := c.call(ctx, func() (interface{}, error) {
		return c.fetchChart(ticker, from, to.AddDate(0, 0, 1))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bars for %s: %w", ticker, err)
	}

	raw := v.([]*finance.ChartBar)
	bars := make([]domain.PriceBar, 0, len(raw))
	for _, b := range raw {
		bar, ok := toBar(ticker, b)
		if !ok {
			continue
		}
		if bar.Date.Before(dayOf(from)) || bar.Date.After(dayOf(to)) {
			continue
		}
		bars = append(bars, bar)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	c.log.Debug().Str("ticker", ticker).Int("bars", len(bars)).Msg("Fetched bars")
	return bars, nil
}

// FetchFundamentals returns valuation ratios. Ratios Yahoo reports as zero
// are treated as unavailable.
func (c *Client) FetchFundamentals(ctx context.Context, ticker string) (*domain.Fundamentals, error) {
	v, err := c.call(ctx, func() (interface{}, error) {
		eq, err := c.fetchEquity(ticker)
		if err != nil {
			return nil, err
		}
		if eq == nil {
			return nil, ErrNoData
		}
		return eq, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch fundamentals for %s: %w", ticker, err)
	}

	eq := v.(*finance.Equity)
	name := eq.LongName
	if name == "" {
		name = eq.ShortName
	}
	return &domain.Fundamentals{
		Ticker:        ticker,
		Name:          name,
		PER:           positive(eq.TrailingPE),
		PBR:           positive(eq.PriceToBook),
		DividendYield: positive(eq.TrailingAnnualDividendYield),
	}, nil
}

// call paces the request, runs it through the breaker and bounds it by the
// client timeout. The library is not context aware, so an abandoned call
// finishes in the background.
func (c *Client) call(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	type result struct {
		v   interface{}
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := c.breaker.Execute(fn)
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func fetchChart(ticker string, from, to time.Time) ([]*finance.ChartBar, error) {
	iter := chart.Get(&chart.Params{
		Symbol:   ticker,
		Start:    datetime.New(&from),
		End:      datetime.New(&to),
		Interval: datetime.OneDay,
	})

	var bars []*finance.ChartBar
	for iter.Next() {
		bars = append(bars, iter.Bar())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, ErrNoData
	}
	return bars, nil
}

// toBar converts a chart bar, dropping rows without a close
func toBar(ticker string, b *finance.ChartBar) (domain.PriceBar, bool) {
	if b == nil || b.Close.IsZero() {
		return domain.PriceBar{}, false
	}
	return domain.PriceBar{
		Ticker: ticker,
		Date:   dayOf(time.Unix(int64(b.Timestamp), 0)),
		Open:   toFloat(b.Open),
		High:   toFloat(b.High),
		Low:    toFloat(b.Low),
		Close:  toFloat(b.Close),
		Volume: float64(b.Volume),
	}, true
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func positive(v float64) *float64 {
	if v <= 0 {
		return nil
	}
	return &v
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
