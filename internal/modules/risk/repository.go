package risk

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/watchtower/internal/database"
	"github.com/aristath/watchtower/internal/domain"
)

// Repository stores risk snapshots. Snapshots are written once per
// (portfolio, date) and never rewritten.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new risk snapshot repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "risk_metrics").Logger(),
	}
}

// Save stores m unless a snapshot already exists for its portfolio and date.
// It reports whether a row was written.
func (r *Repository) Save(ctx context.Context, m domain.RiskMetrics) (bool, error) {
	return r.save(ctx, r.db, m)
}

// SaveAll stores snapshots in one transaction
func (r *Repository) SaveAll(ctx context.Context, snapshots []domain.RiskMetrics) (int, error) {
	written := 0
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		var err error
		written, err = r.SaveAllTx(ctx, tx, snapshots)
		return err
	})
	return written, err
}

// SaveAllTx stores snapshots inside the caller's transaction
func (r *Repository) SaveAllTx(ctx context.Context, tx *sql.Tx, snapshots []domain.RiskMetrics) (int, error) {
	written := 0
	for _, m := range snapshots {
		ok, err := r.save(ctx, tx, m)
		if err != nil {
			return written, err
		}
		if ok {
			written++
		}
	}
	return written, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (r *Repository) save(ctx context.Context, db execer, m domain.RiskMetrics) (bool, error) {
	res, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO risk_metrics
		(portfolio_id, date, health_score, max_drawdown, volatility, sharpe_ratio, correlation, hhi, var_95)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.PortfolioID, database.FormatDate(m.Date), m.HealthScore,
		database.NullFloat(m.MaxDrawdown), database.NullFloat(m.Volatility), database.NullFloat(m.SharpeRatio),
		database.NullFloat(m.Correlation), m.HHI, database.NullFloat(m.VaR95),
	)
	if err != nil {
		return false, fmt.Errorf("failed to save risk snapshot for portfolio %d: %w", m.PortfolioID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		r.log.Debug().Int64("portfolio_id", m.PortfolioID).Str("date", database.FormatDate(m.Date)).Msg("Risk snapshot already stored")
	}
	return n > 0, nil
}

// Latest returns the newest snapshot of a portfolio or ErrNotFound
func (r *Repository) Latest(ctx context.Context, portfolioID int64) (*domain.RiskMetrics, error) {
	list, err := r.History(ctx, portfolioID, 1)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("risk snapshot of portfolio %d: %w", portfolioID, domain.ErrNotFound)
	}
	return &list[0], nil
}

// History returns up to limit snapshots, newest first
func (r *Repository) History(ctx context.Context, portfolioID int64, limit int) ([]domain.RiskMetrics, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := r.db.QueryContext(ctx, `SELECT portfolio_id, date, health_score, max_drawdown, volatility,
		sharpe_ratio, correlation, hhi, var_95 FROM risk_metrics
		WHERE portfolio_id = ? ORDER BY date DESC LIMIT ?`, portfolioID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query risk snapshots: %w", err)
	}
	defer rows.Close()

	var list []domain.RiskMetrics
	for rows.Next() {
		var m domain.RiskMetrics
		var date string
		var drawdown, volatility, sharpe, correlation, varValue sql.NullFloat64
		if err := rows.Scan(&m.PortfolioID, &date, &m.HealthScore, &drawdown, &volatility,
			&sharpe, &correlation, &m.HHI, &varValue); err != nil {
			return nil, fmt.Errorf("failed to scan risk snapshot: %w", err)
		}
		if m.Date, err = database.ParseDate(date); err != nil {
			return nil, err
		}
		m.MaxDrawdown = database.FloatPtr(drawdown)
		m.Volatility = database.FloatPtr(volatility)
		m.SharpeRatio = database.FloatPtr(sharpe)
		m.Correlation = database.FloatPtr(correlation)
		m.VaR95 = database.FloatPtr(varValue)
		list = append(list, m)
	}
	return list, rows.Err()
}
