// Package portfolio holds the owned-holdings side of the system: portfolios,
// purchase lots, stop-loss rules and the watchlist.
package portfolio

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/watchtower/internal/domain"
)

// Account is one portfolio with its lots and stop-loss rules
type Account struct {
	Rules     map[string]domain.StopLossRule
	Portfolio domain.Portfolio
	Holdings  []domain.Holding
}

// Lot is every purchase of one ticker in a portfolio folded together.
// BuyPrice is the share-weighted average.
type Lot struct {
	Ticker   string
	Name     string
	Sector   string
	Shares   float64
	BuyPrice float64
}

// Book is the full owned and watched universe loaded at the start of a pass
type Book struct {
	Accounts  []Account
	Watchlist []domain.WatchlistItem
}

// Tickers returns every held or watched ticker, sorted and unique
func (b *Book) Tickers() []string {
	seen := make(map[string]bool)
	for _, a := range b.Accounts {
		for _, h := range a.Holdings {
			seen[h.Ticker] = true
		}
	}
	for _, w := range b.Watchlist {
		seen[w.Ticker] = true
	}
	tickers := make([]string, 0, len(seen))
	for t := range seen {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers
}

// Sectors maps ticker to the sector recorded on its holdings or watchlist entry
func (b *Book) Sectors() map[string]string {
	sectors := make(map[string]string)
	for _, w := range b.Watchlist {
		if w.Sector != "" {
			sectors[w.Ticker] = w.Sector
		}
	}
	for _, a := range b.Accounts {
		for _, h := range a.Holdings {
			if h.Sector != "" {
				sectors[h.Ticker] = h.Sector
			}
		}
	}
	return sectors
}

// Lots aggregates the account's holdings per ticker, ordered by ticker
func (a Account) Lots() []Lot {
	byTicker := make(map[string]*Lot)
	var order []string
	for _, h := range a.Holdings {
		lot, ok := byTicker[h.Ticker]
		if !ok {
			lot = &Lot{Ticker: h.Ticker, Name: h.Name, Sector: h.Sector}
			byTicker[h.Ticker] = lot
			order = append(order, h.Ticker)
		}
		cost := lot.BuyPrice*lot.Shares + h.BuyPrice*h.Shares
		lot.Shares += h.Shares
		lot.BuyPrice = cost / lot.Shares
		if lot.Sector == "" {
			lot.Sector = h.Sector
		}
	}

	sort.Strings(order)
	lots := make([]Lot, 0, len(order))
	for _, t := range order {
		lots = append(lots, *byTicker[t])
	}
	return lots
}

// Service loads the book for a pipeline pass
type Service struct {
	repo *Repository
	log  zerolog.Logger
}

// NewService creates a new portfolio service
func NewService(repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("service", "portfolio").Logger(),
	}
}

// Repository exposes the underlying repository
func (s *Service) Repository() *Repository {
	return s.repo
}

// LoadBook reads every portfolio with its holdings and rules plus the
// watchlist. Any store failure aborts the load.
func (s *Service) LoadBook(ctx context.Context) (*Book, error) {
	portfolios, err := s.repo.Portfolios(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolios: %w", err)
	}

	book := &Book{Accounts: make([]Account, 0, len(portfolios))}
	for _, p := range portfolios {
		holdings, err := s.repo.Holdings(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		rules, err := s.repo.Rules(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		book.Accounts = append(book.Accounts, Account{Portfolio: p, Holdings: holdings, Rules: rules})
	}

	if book.Watchlist, err = s.repo.Watchlist(ctx); err != nil {
		return nil, err
	}

	s.log.Debug().
		Int("portfolios", len(book.Accounts)).
		Int("watchlist", len(book.Watchlist)).
		Int("tickers", len(book.Tickers())).
		Msg("Book loaded")

	return book, nil
}
