package screening

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/watchtower/internal/database"
	"github.com/aristath/watchtower/internal/domain"
)

// Repository stores screening results per date
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new screening results repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "screening").Logger(),
	}
}

// Replace stores the results of date, replacing any earlier run for the same date
func (r *Repository) Replace(ctx context.Context, date time.Time, results []domain.ScreeningResult) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		return r.ReplaceTx(ctx, tx, date, results)
	})
}

// ReplaceTx is Replace inside the caller's transaction
func (r *Repository) ReplaceTx(ctx context.Context, tx *sql.Tx, date time.Time, results []domain.ScreeningResult) error {
	day := database.FormatDate(date)
	if _, err := tx.ExecContext(ctx, `DELETE FROM screening_results WHERE date = ?`, day); err != nil {
		return fmt.Errorf("failed to clear screening results of %s: %w", day, err)
	}
	for _, res := range results {
		if _, err := tx.ExecContext(ctx, `INSERT INTO screening_results
			(date, ticker, name, sector, score, per, pbr, dividend_yield,
			 value_score, momentum_score, growth_score, safety_score)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			day, res.Ticker, res.Name, res.Sector, res.Score,
			database.NullFloat(res.PER), database.NullFloat(res.PBR), database.NullFloat(res.DividendYield),
			res.ValueScore, res.MomentumScore, res.GrowthScore, res.SafetyScore,
		); err != nil {
			return fmt.Errorf("failed to insert screening result %s: %w", res.Ticker, err)
		}
	}
	return nil
}

// LatestDate returns the newest date with results, or false when there are none
func (r *Repository) LatestDate(ctx context.Context) (time.Time, bool, error) {
	var day sql.NullString
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(date) FROM screening_results`).Scan(&day); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query latest screening date: %w", err)
	}
	if !day.Valid {
		return time.Time{}, false, nil
	}
	t, err := database.ParseDate(day.String)
	return t, err == nil, err
}

// Top returns the n best results of date in rank order
func (r *Repository) Top(ctx context.Context, date time.Time, n int) ([]domain.ScreeningResult, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT date, ticker, name, sector, score, per, pbr, dividend_yield,
		value_score, momentum_score, growth_score, safety_score
		FROM screening_results WHERE date = ?`, database.FormatDate(date))
	if err != nil {
		return nil, fmt.Errorf("failed to query screening results: %w", err)
	}
	defer rows.Close()

	var results []domain.ScreeningResult
	for rows.Next() {
		var res domain.ScreeningResult
		var day string
		var per, pbr, yield sql.NullFloat64
		if err := rows.Scan(&day, &res.Ticker, &res.Name, &res.Sector, &res.Score, &per, &pbr, &yield,
			&res.ValueScore, &res.MomentumScore, &res.GrowthScore, &res.SafetyScore); err != nil {
			return nil, fmt.Errorf("failed to scan screening result: %w", err)
		}
		if res.Date, err = database.ParseDate(day); err != nil {
			return nil, err
		}
		res.PER = database.FloatPtr(per)
		res.PBR = database.FloatPtr(pbr)
		res.DividendYield = database.FloatPtr(yield)
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return Rank(results, n), nil
}
