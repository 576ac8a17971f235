package prices

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/watchtower/internal/database"
	"github.com/aristath/watchtower/internal/domain"
)

// Repository reads and writes the market data cache
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a cache repository on the cache database
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "prices").Logger(),
	}
}

// SaveBars stores bars. Stored bars are immutable, so existing dates are kept.
func (r *Repository) SaveBars(ctx context.Context, bars []domain.PriceBar) (int64, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	var inserted int64
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO price_bars
			(ticker, date, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare bar insert: %w", err)
		}
		defer stmt.Close()

		for _, b := range bars {
			res, err := stmt.ExecContext(ctx, b.Ticker, database.FormatDate(b.Date), b.Open, b.High, b.Low, b.Close, b.Volume)
			if err != nil {
				return fmt.Errorf("failed to insert bar %s %s: %w", b.Ticker, database.FormatDate(b.Date), err)
			}
			n, _ := res.RowsAffected()
			inserted += n
		}
		return nil
	})
	return inserted, err
}

// Bars returns cached bars for ticker with from <= date <= to, ascending
func (r *Repository) Bars(ctx context.Context, ticker string, from, to time.Time) ([]domain.PriceBar, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT date, open, high, low, close, volume FROM price_bars
		WHERE ticker = ? AND date >= ? AND date <= ? ORDER BY date`,
		ticker, database.FormatDate(from), database.FormatDate(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query bars of %s: %w", ticker, err)
	}
	defer rows.Close()

	var bars []domain.PriceBar
	for rows.Next() {
		b := domain.PriceBar{Ticker: ticker}
		var date string
		if err := rows.Scan(&date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		if b.Date, err = database.ParseDate(date); err != nil {
			return nil, err
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// LatestDate returns the newest cached bar date for ticker, or false when none
func (r *Repository) LatestDate(ctx context.Context, ticker string) (time.Time, bool, error) {
	var date sql.NullString
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(date) FROM price_bars WHERE ticker = ?`, ticker).Scan(&date); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query latest bar of %s: %w", ticker, err)
	}
	if !date.Valid {
		return time.Time{}, false, nil
	}
	t, err := database.ParseDate(date.String)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// PruneBefore drops bars older than cutoff
func (r *Repository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM price_bars WHERE date < ?`, database.FormatDate(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to prune bars: %w", err)
	}
	return res.RowsAffected()
}

// SaveFundamentals replaces the cached fundamentals of a ticker
func (r *Repository) SaveFundamentals(ctx context.Context, f domain.Fundamentals, fetchedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO fundamentals
		(ticker, name, sector, per, pbr, dividend_yield, revenue_growth, earnings_growth, debt_to_equity, payout_ratio, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ticker) DO UPDATE SET
			name = excluded.name, sector = excluded.sector, per = excluded.per, pbr = excluded.pbr,
			dividend_yield = excluded.dividend_yield, revenue_growth = excluded.revenue_growth,
			earnings_growth = excluded.earnings_growth, debt_to_equity = excluded.debt_to_equity,
			payout_ratio = excluded.payout_ratio, fetched_at = excluded.fetched_at`,
		f.Ticker, f.Name, f.Sector,
		database.NullFloat(f.PER), database.NullFloat(f.PBR), database.NullFloat(f.DividendYield),
		database.NullFloat(f.RevenueGrowth), database.NullFloat(f.EarningsGrowth),
		database.NullFloat(f.DebtToEquity), database.NullFloat(f.PayoutRatio),
		fetchedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save fundamentals of %s: %w", f.Ticker, err)
	}
	return nil
}

// Fundamentals returns cached fundamentals and when they were fetched.
// A missing ticker returns ErrNotFound.
func (r *Repository) Fundamentals(ctx context.Context, ticker string) (*domain.Fundamentals, time.Time, error) {
	f := domain.Fundamentals{Ticker: ticker}
	var per, pbr, yield, revenue, earnings, debt, payout sql.NullFloat64
	var fetched int64
	err := r.db.QueryRowContext(ctx, `SELECT name, sector, per, pbr, dividend_yield, revenue_growth,
		earnings_growth, debt_to_equity, payout_ratio, fetched_at FROM fundamentals WHERE ticker = ?`, ticker).
		Scan(&f.Name, &f.Sector, &per, &pbr, &yield, &revenue, &earnings, &debt, &payout, &fetched)
	if err == sql.ErrNoRows {
		return nil, time.Time{}, fmt.Errorf("fundamentals of %s: %w", ticker, domain.ErrNotFound)
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to query fundamentals of %s: %w", ticker, err)
	}

	f.PER = database.FloatPtr(per)
	f.PBR = database.FloatPtr(pbr)
	f.DividendYield = database.FloatPtr(yield)
	f.RevenueGrowth = database.FloatPtr(revenue)
	f.EarningsGrowth = database.FloatPtr(earnings)
	f.DebtToEquity = database.FloatPtr(debt)
	f.PayoutRatio = database.FloatPtr(payout)
	return &f, database.FromUnix(fetched), nil
}
