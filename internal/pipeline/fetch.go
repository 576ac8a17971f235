package pipeline

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/watchtower/internal/domain"
)

type tickerData struct {
	fundamentals *domain.Fundamentals
	bars         []domain.PriceBar
}

type fetchResult struct {
	data map[string]tickerData
	gaps []Gap
}

// fetch loads bars, and optionally fundamentals, for every ticker with at
// most Concurrency requests in flight. Each ticker gets its own timeout; a
// failed or late ticker becomes a gap and the others continue. Only
// cancellation of ctx itself fails the stage.
func (r *Runner) fetch(ctx context.Context, tickers []string, from, to time.Time, withFundamentals bool) (*fetchResult, error) {
	res := &fetchResult{data: make(map[string]tickerData, len(tickers))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	for _, ticker := range tickers {
		g.Go(func() error {
			tctx, cancel := context.WithTimeout(gctx, r.cfg.TickerTimeout)
			defer cancel()

			bars, err := r.prices.FetchBars(tctx, ticker, from, to)
			if err == nil && len(bars) == 0 {
				err = errors.New("no bars in range")
			}
			if err != nil {
				mu.Lock()
				res.gaps = append(res.gaps, Gap{Ticker: ticker, Reason: gapReason(err)})
				mu.Unlock()
				return nil
			}

			d := tickerData{bars: bars}
			if withFundamentals && r.fundamentals != nil {
				f, err := r.fundamentals.FetchFundamentals(tctx, ticker)
				if err != nil {
					r.log.Warn().Err(err).Str("ticker", ticker).Msg("Fundamentals unavailable")
				} else {
					d.fundamentals = f
				}
			}

			mu.Lock()
			res.data[ticker] = d
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(res.gaps, func(i, j int) bool { return res.gaps[i].Ticker < res.gaps[j].Ticker })
	return res, nil
}

func gapReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return err.Error()
}
