package alerts

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/watchtower/internal/database"
	"github.com/aristath/watchtower/internal/domain"
)

const alertColumns = `id, portfolio_id, ticker, alert_type, level, message, action_suggestion, detail,
	is_read, is_resolved, created_at, resolved_at, dispatched_at`

// Repository persists alerts
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new alert repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "alerts").Logger(),
	}
}

// Open returns the unresolved alerts of a portfolio
func (r *Repository) Open(ctx context.Context, portfolioID int64) ([]domain.Alert, error) {
	return r.query(ctx, `SELECT `+alertColumns+` FROM alerts
		WHERE portfolio_id = ? AND is_resolved = 0 ORDER BY level DESC, created_at, id`, portfolioID)
}

// List returns a portfolio's alerts, newest first
func (r *Repository) List(ctx context.Context, portfolioID int64, includeResolved bool, limit int) ([]domain.Alert, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE portfolio_id = ?`
	if !includeResolved {
		query += ` AND is_resolved = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	return r.query(ctx, query, portfolioID, limit)
}

// PendingAlerts returns unresolved alerts not yet handled by the arbiter
func (r *Repository) PendingAlerts(ctx context.Context) ([]domain.Alert, error) {
	return r.query(ctx, `SELECT `+alertColumns+` FROM alerts
		WHERE is_resolved = 0 AND dispatched_at IS NULL ORDER BY created_at, id`)
}

// CreatedBetween returns every alert created in [from, to), oldest first
func (r *Repository) CreatedBetween(ctx context.Context, from, to time.Time) ([]domain.Alert, error) {
	return r.query(ctx, `SELECT `+alertColumns+` FROM alerts
		WHERE created_at >= ? AND created_at < ? ORDER BY created_at, id`, from.Unix(), to.Unix())
}

// Get returns one alert by id
func (r *Repository) Get(ctx context.Context, id int64) (*domain.Alert, error) {
	list, err := r.query(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("alert %d: %w", id, domain.ErrNotFound)
	}
	return &list[0], nil
}

// Apply persists a reconciliation plan in one transaction and returns the
// created alerts with their ids. Escalated alerts become pending again so
// the arbiter can announce the higher level.
func (r *Repository) Apply(ctx context.Context, plan Plan) ([]domain.Alert, error) {
	var created []domain.Alert
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		var err error
		created, err = r.ApplyTx(ctx, tx, plan)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ApplyTx is Apply inside the caller's transaction
func (r *Repository) ApplyTx(ctx context.Context, tx *sql.Tx, plan Plan) ([]domain.Alert, error) {
	created := make([]domain.Alert, 0, len(plan.Create))
	for _, a := range plan.Resolve {
		if _, err := tx.ExecContext(ctx,
			`UPDATE alerts SET is_resolved = 1, resolved_at = ? WHERE id = ? AND is_resolved = 0`,
			database.NullUnix(a.ResolvedAt), a.ID,
		); err != nil {
			return nil, fmt.Errorf("failed to resolve alert %d: %w", a.ID, err)
		}
	}
	for _, a := range plan.Escalate {
		detail, err := database.EncodeDetail(a.Detail)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE alerts
			SET level = ?, message = ?, action_suggestion = ?, detail = ?, dispatched_at = NULL
			WHERE id = ? AND level < ?`,
			int(a.Level), a.Message, a.ActionSuggestion, detail, a.ID, int(a.Level),
		); err != nil {
			return nil, fmt.Errorf("failed to escalate alert %d: %w", a.ID, err)
		}
	}
	for _, a := range plan.Create {
		id, err := insertAlert(ctx, tx, a)
		if err != nil {
			return nil, err
		}
		a.ID = id
		created = append(created, a)
	}
	return created, nil
}

// MarkRead sets the user acknowledgement flag
func (r *Repository) MarkRead(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE alerts SET is_read = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark alert %d read: %w", id, err)
	}
	return requireRow(res, id)
}

// Resolve closes an alert on the user's request
func (r *Repository) Resolve(ctx context.Context, id int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET is_resolved = 1, resolved_at = COALESCE(resolved_at, ?) WHERE id = ?`, at.Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to resolve alert %d: %w", id, err)
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("alert %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func insertAlert(ctx context.Context, tx *sql.Tx, a domain.Alert) (int64, error) {
	if !a.Type.Valid() || !a.Level.Valid() {
		return 0, fmt.Errorf("invalid alert %s level %d", a.Type, a.Level)
	}
	detail, err := database.EncodeDetail(a.Detail)
	if err != nil {
		return 0, err
	}
	var ticker sql.NullString
	if a.Ticker != nil {
		ticker = sql.NullString{String: *a.Ticker, Valid: true}
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO alerts
		(portfolio_id, ticker, alert_type, level, message, action_suggestion, detail,
		 is_read, is_resolved, created_at, resolved_at, dispatched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.PortfolioID, ticker, string(a.Type), int(a.Level), a.Message, a.ActionSuggestion, detail,
		a.IsRead, a.IsResolved, a.CreatedAt.Unix(),
		database.NullUnix(a.ResolvedAt), database.NullUnix(a.DispatchedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert alert %s: %w", a.Key(), err)
	}
	return res.LastInsertId()
}

func (r *Repository) query(ctx context.Context, query string, args ...interface{}) ([]domain.Alert, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alerts: %w", err)
	}
	return alerts, nil
}

func scanAlert(rows *sql.Rows) (domain.Alert, error) {
	var a domain.Alert
	var ticker, detail sql.NullString
	var alertType string
	var level int
	var createdAt int64
	var resolvedAt, dispatchedAt sql.NullInt64

	if err := rows.Scan(&a.ID, &a.PortfolioID, &ticker, &alertType, &level, &a.Message, &a.ActionSuggestion,
		&detail, &a.IsRead, &a.IsResolved, &createdAt, &resolvedAt, &dispatchedAt); err != nil {
		return a, err
	}

	var err error
	if a.Type, err = domain.ParseAlertType(alertType); err != nil {
		return a, err
	}
	a.Level = domain.AlertLevel(level)
	if !a.Level.Valid() {
		return a, fmt.Errorf("alert %d has invalid level %d", a.ID, level)
	}
	if a.Detail, err = database.DecodeDetail(detail); err != nil {
		return a, err
	}
	if ticker.Valid {
		t := ticker.String
		a.Ticker = &t
	}
	a.CreatedAt = database.FromUnix(createdAt)
	a.ResolvedAt = database.TimePtr(resolvedAt)
	a.DispatchedAt = database.TimePtr(dispatchedAt)
	return a, nil
}
