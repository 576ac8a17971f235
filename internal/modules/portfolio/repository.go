package portfolio

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/watchtower/internal/database"
	"github.com/aristath/watchtower/internal/domain"
)

// Repository handles portfolios, holdings, stop-loss rules and the watchlist
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new portfolio repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "portfolio").Logger(),
	}
}

// CreatePortfolio inserts a portfolio and returns its id
func (r *Repository) CreatePortfolio(ctx context.Context, name string, at time.Time) (int64, error) {
	if strings.TrimSpace(name) == "" {
		return 0, fmt.Errorf("portfolio name is required")
	}
	res, err := r.db.ExecContext(ctx, `INSERT INTO portfolios (name, created_at) VALUES (?, ?)`, name, at.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to insert portfolio %q: %w", name, err)
	}
	return res.LastInsertId()
}

// Portfolios returns every portfolio ordered by id
func (r *Repository) Portfolios(ctx context.Context) ([]domain.Portfolio, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, created_at FROM portfolios ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []domain.Portfolio
	for rows.Next() {
		var p domain.Portfolio
		var created int64
		if err := rows.Scan(&p.ID, &p.Name, &created); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		p.CreatedAt = database.FromUnix(created)
		portfolios = append(portfolios, p)
	}
	return portfolios, rows.Err()
}

// Portfolio returns one portfolio or ErrNotFound
func (r *Repository) Portfolio(ctx context.Context, id int64) (*domain.Portfolio, error) {
	var p domain.Portfolio
	var created int64
	err := r.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM portfolios WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &created)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("portfolio %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio %d: %w", id, err)
	}
	p.CreatedAt = database.FromUnix(created)
	return &p, nil
}

// AddHolding validates and inserts one purchase lot
func (r *Repository) AddHolding(ctx context.Context, h domain.Holding) (int64, error) {
	if err := h.Validate(); err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, `INSERT INTO holdings
		(portfolio_id, ticker, name, sector, shares, buy_price, buy_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		h.PortfolioID, h.Ticker, h.Name, h.Sector, h.Shares, h.BuyPrice, h.BuyDate.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert holding %s: %w", h.Ticker, err)
	}
	return res.LastInsertId()
}

// RemoveHolding deletes one lot
func (r *Repository) RemoveHolding(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM holdings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete holding %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("holding %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Holdings returns the lots of a portfolio ordered by ticker then buy date
func (r *Repository) Holdings(ctx context.Context, portfolioID int64) ([]domain.Holding, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, portfolio_id, ticker, name, sector, shares, buy_price, buy_date
		FROM holdings WHERE portfolio_id = ? ORDER BY ticker, buy_date, id`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings of portfolio %d: %w", portfolioID, err)
	}
	defer rows.Close()

	var holdings []domain.Holding
	for rows.Next() {
		var h domain.Holding
		var bought int64
		if err := rows.Scan(&h.ID, &h.PortfolioID, &h.Ticker, &h.Name, &h.Sector, &h.Shares, &h.BuyPrice, &bought); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		h.BuyDate = database.FromUnix(bought)
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

// UpsertRule stores the stop-loss rule for a (portfolio, ticker) pair
func (r *Repository) UpsertRule(ctx context.Context, rule domain.StopLossRule) error {
	if rule.StopLossPct >= 0 || rule.StopLossPct <= -1 {
		return fmt.Errorf("stop-loss rule %s: pct must be within (-1,0), got %v", rule.Ticker, rule.StopLossPct)
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO stop_loss_rules
		(portfolio_id, ticker, buy_price, stop_loss_pct, trailing_stop, highest_price, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (portfolio_id, ticker) DO UPDATE SET
			buy_price = excluded.buy_price,
			stop_loss_pct = excluded.stop_loss_pct,
			trailing_stop = excluded.trailing_stop,
			highest_price = excluded.highest_price,
			is_active = excluded.is_active`,
		rule.PortfolioID, rule.Ticker, rule.BuyPrice, rule.StopLossPct,
		boolToInt(rule.TrailingStop), rule.HighestPrice, boolToInt(rule.IsActive),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert stop-loss rule %s: %w", rule.Ticker, err)
	}
	return nil
}

// Rules returns the stop-loss rules of a portfolio keyed by ticker
func (r *Repository) Rules(ctx context.Context, portfolioID int64) (map[string]domain.StopLossRule, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, portfolio_id, ticker, buy_price, stop_loss_pct,
		trailing_stop, highest_price, is_active FROM stop_loss_rules WHERE portfolio_id = ?`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stop-loss rules: %w", err)
	}
	defer rows.Close()

	rules := make(map[string]domain.StopLossRule)
	for rows.Next() {
		var rule domain.StopLossRule
		var trailing, active int
		if err := rows.Scan(&rule.ID, &rule.PortfolioID, &rule.Ticker, &rule.BuyPrice, &rule.StopLossPct,
			&trailing, &rule.HighestPrice, &active); err != nil {
			return nil, fmt.Errorf("failed to scan stop-loss rule: %w", err)
		}
		rule.TrailingStop = trailing == 1
		rule.IsActive = active == 1
		rules[rule.Ticker] = rule
	}
	return rules, rows.Err()
}

// RaiseHighest stores new trailing highs. The stored value never decreases.
func (r *Repository) RaiseHighest(ctx context.Context, rules []domain.StopLossRule) error {
	if len(rules) == 0 {
		return nil
	}
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		return r.RaiseHighestTx(ctx, tx, rules)
	})
}

// RaiseHighestTx is RaiseHighest inside the caller's transaction
func (r *Repository) RaiseHighestTx(ctx context.Context, tx *sql.Tx, rules []domain.StopLossRule) error {
	for _, rule := range rules {
		if _, err := tx.ExecContext(ctx,
			`UPDATE stop_loss_rules SET highest_price = ? WHERE portfolio_id = ? AND ticker = ? AND highest_price < ?`,
			rule.HighestPrice, rule.PortfolioID, rule.Ticker, rule.HighestPrice,
		); err != nil {
			return fmt.Errorf("failed to raise highest price of %s: %w", rule.Ticker, err)
		}
	}
	return nil
}

// Watch adds a ticker to the watchlist, keeping the original added_at
func (r *Repository) Watch(ctx context.Context, item domain.WatchlistItem) error {
	if item.Ticker == "" {
		return fmt.Errorf("watchlist ticker is required")
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO watchlist (ticker, name, sector, added_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (ticker) DO UPDATE SET name = excluded.name, sector = excluded.sector`,
		item.Ticker, item.Name, item.Sector, item.AddedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", item.Ticker, err)
	}
	return nil
}

// Unwatch removes a ticker from the watchlist
func (r *Repository) Unwatch(ctx context.Context, ticker string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM watchlist WHERE ticker = ?`, ticker); err != nil {
		return fmt.Errorf("failed to unwatch %s: %w", ticker, err)
	}
	return nil
}

// Watchlist returns the watched tickers ordered by ticker
func (r *Repository) Watchlist(ctx context.Context) ([]domain.WatchlistItem, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT ticker, name, sector, added_at FROM watchlist ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("failed to query watchlist: %w", err)
	}
	defer rows.Close()

	var items []domain.WatchlistItem
	for rows.Next() {
		var item domain.WatchlistItem
		var added int64
		if err := rows.Scan(&item.Ticker, &item.Name, &item.Sector, &added); err != nil {
			return nil, fmt.Errorf("failed to scan watchlist item: %w", err)
		}
		item.AddedAt = database.FromUnix(added)
		items = append(items, item)
	}
	return items, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
