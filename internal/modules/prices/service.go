// Package prices caches daily bars and fundamentals in front of the market
// data provider.
package prices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/aristath/watchtower/internal/domain"
	"github.com/aristath/watchtower/internal/metrics"
)

// DefaultFundamentalsTTL is how long cached fundamentals are served without refetching
const DefaultFundamentalsTTL = 7 * 24 * time.Hour

// Service serves bars and fundamentals from the cache, fetching from the
// provider on a miss. Concurrent misses for the same ticker share one fetch.
type Service struct {
	repo         *Repository
	bars         domain.PriceSource
	fundamentals domain.FundamentalsSource
	metrics      *metrics.Registry
	log          zerolog.Logger
	now          func() time.Time
	group        singleflight.Group
	ttl          time.Duration
}

// NewService creates the caching service. reg may be nil.
func NewService(
	repo *Repository,
	bars domain.PriceSource,
	fundamentals domain.FundamentalsSource,
	ttl time.Duration,
	reg *metrics.Registry,
	log zerolog.Logger,
) *Service {
	if ttl <= 0 {
		ttl = DefaultFundamentalsTTL
	}
	return &Service{
		repo:         repo,
		bars:         bars,
		fundamentals: fundamentals,
		ttl:          ttl,
		metrics:      reg,
		now:          time.Now,
		log:          log.With().Str("service", "prices").Logger(),
	}
}

// FetchBars returns bars for ticker with from <= date <= to. The cache is
// topped up from the provider when it does not reach the last weekday
// on or before to.
func (s *Service) FetchBars(ctx context.Context, ticker string, from, to time.Time) ([]domain.PriceBar, error) {
	latest, ok, err := s.repo.LatestDate(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if ok && !latest.Before(lastWeekday(to)) && !latest.Before(dayOf(from)) {
		s.metrics.RecordCacheHit("bars")
		return s.repo.Bars(ctx, ticker, from, to)
	}
	s.metrics.RecordCacheMiss("bars")

	start := from
	if ok && !latest.Before(dayOf(from)) {
		start = latest.AddDate(0, 0, 1)
	}

	key := fmt.Sprintf("bars:%s:%s:%s", ticker, start.Format("20060102"), to.Format("20060102"))
	_, err, shared := s.group.Do(key, func() (interface{}, error) {
		fetched, err := s.bars.FetchBars(ctx, ticker, start, to)
		if err != nil {
			return nil, err
		}
		inserted, err := s.repo.SaveBars(ctx, fetched)
		if err != nil {
			return nil, err
		}
		s.log.Debug().Str("ticker", ticker).Int("fetched", len(fetched)).Int64("inserted", inserted).Msg("Bars cached")
		return nil, nil
	})
	if err != nil {
		return nil, &domain.DataGapError{Ticker: ticker, Reason: "bars fetch failed", Err: err}
	}
	if shared {
		s.log.Debug().Str("ticker", ticker).Msg("Bar fetch shared with a concurrent caller")
	}

	return s.repo.Bars(ctx, ticker, from, to)
}

// FetchFundamentals returns cached fundamentals younger than the TTL, else
// refetches. A failed refetch falls back to the stale cached copy.
func (s *Service) FetchFundamentals(ctx context.Context, ticker string) (*domain.Fundamentals, error) {
	cached, fetchedAt, err := s.repo.Fundamentals(ctx, ticker)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if cached != nil && s.now().Sub(fetchedAt) < s.ttl {
		s.metrics.RecordCacheHit("fundamentals")
		return cached, nil
	}
	s.metrics.RecordCacheMiss("fundamentals")

	v, err, _ := s.group.Do("fundamentals:"+ticker, func() (interface{}, error) {
		f, err := s.fundamentals.FetchFundamentals(ctx, ticker)
		if err != nil {
			return nil, err
		}
		f.Ticker = ticker
		if err := s.repo.SaveFundamentals(ctx, *f, s.now()); err != nil {
			return nil, err
		}
		return f, nil
	})
	if err != nil {
		if cached != nil {
			s.log.Warn().Err(err).Str("ticker", ticker).Time("fetched_at", fetchedAt).Msg("Serving stale fundamentals")
			return cached, nil
		}
		return nil, &domain.DataGapError{Ticker: ticker, Reason: "fundamentals fetch failed", Err: err}
	}

	f := *v.(*domain.Fundamentals)
	return &f, nil
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// lastWeekday returns the date of t, moved back to Friday on weekends
func lastWeekday(t time.Time) time.Time {
	d := dayOf(t)
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, -2)
	}
	return d
}
