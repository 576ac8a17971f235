package signals

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

const signalColumns = `id, ticker, signal_type, priority, message, detail, is_valid,
	expires_at, created_at, invalidated_at, dispatched_at`

// Repository persists signals
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new signal repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "signals").Logger(),
	}
}

// Valid returns every signal still flagged valid, newest first
func (r *Repository) Valid(ctx context.Context) ([]domain.Signal, error) {
	return r.query(ctx, `SELECT `+signalColumns+` FROM signals
		WHERE is_valid = 1 ORDER BY created_at DESC, id DESC`)
}

// Active returns valid signals that have not expired at now
func (r *Repository) Active(ctx context.Context, now time.Time) ([]domain.Signal, error) {
	return r.query(ctx, `SELECT `+signalColumns+` FROM signals
		WHERE is_valid = 1 AND expires_at > ? ORDER BY created_at DESC, id DESC`, now.Unix())
}

// PendingSignals returns active signals not yet handled by the arbiter
func (r *Repository) PendingSignals(ctx context.Context, now time.Time) ([]domain.Signal, error) {
	return r.query(ctx, `SELECT `+signalColumns+` FROM signals
		WHERE is_valid = 1 AND dispatched_at IS NULL AND expires_at > ?
		ORDER BY created_at, id`, now.Unix())
}

// CreatedBetween returns every signal created in [from, to), oldest first
func (r *Repository) CreatedBetween(ctx context.Context, from, to time.Time) ([]domain.Signal, error) {
	return r.query(ctx, `SELECT `+signalColumns+` FROM signals
		WHERE created_at >= ? AND created_at < ? ORDER BY created_at, id`, from.Unix(), to.Unix())
}

// Get returns one signal by id
func (r *Repository) Get(ctx context.Context, id int64) (*domain.Signal, error) {
	list, err := r.query(ctx, `SELECT `+signalColumns+` FROM signals WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("signal %d: %w", id, domain.ErrNotFound)
	}
	return &list[0], nil
}

// Apply persists a reconciliation plan in one transaction and returns the
// created signals with their ids
func (r *Repository) Apply(ctx context.Context, plan Plan) ([]domain.Signal, error) {
	var created []domain.Signal
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
func (r *Repository) ApplyTx(ctx context.Context, tx *sql.Tx, plan Plan) ([]domain.Signal, error) {
	created := make([]domain.Signal, 0, len(plan.Create))
	for _, s := range plan.Expire {
		if _, err := tx.ExecContext(ctx, `UPDATE signals SET is_valid = 0 WHERE id = ?`, s.ID); err != nil {
			return nil, fmt.Errorf("failed to expire signal %d: %w", s.ID, err)
		}
	}
	for _, s := range plan.Invalidate {
		if _, err := tx.ExecContext(ctx,
			`UPDATE signals SET is_valid = 0, invalidated_at = ? WHERE id = ?`,
			database.NullUnix(s.InvalidatedAt), s.ID,
		); err != nil {
			return nil, fmt.Errorf("failed to invalidate signal %d: %w", s.ID, err)
		}
	}
	for _, s := range plan.Create {
		id, err := insertSignal(ctx, tx, s)
		if err != nil {
			return nil, err
		}
		s.ID = id
		created = append(created, s)
	}
	return created, nil
}

// Insert stores a single signal and returns its id
func (r *Repository) Insert(ctx context.Context, s domain.Signal) (int64, error) {
	var id int64
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		var err error
		id, err = insertSignal(ctx, tx, s)
		return err
	})
	return id, err
}

// ExpireDue invalidates every valid signal whose window has passed
func (r *Repository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE signals SET is_valid = 0 WHERE is_valid = 1 AND expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to expire signals: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count expired signals: %w", err)
	}
	if n > 0 {
		r.log.Info().Int64("expired", n).Msg("Expired signals swept")
	}
	return n, nil
}

func insertSignal(ctx context.Context, tx *sql.Tx, s domain.Signal) (int64, error) {
	if s.ExpiresAt.Before(s.CreatedAt) {
		return 0, fmt.Errorf("signal %s/%s expires before it was created", s.Ticker, s.Type)
	}
	detail, err := database.EncodeDetail(s.Detail)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO signals
		(ticker, signal_type, priority, message, detail, is_valid, expires_at, created_at, invalidated_at, dispatched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Ticker, string(s.Type), string(s.Priority), s.Message, detail, s.IsValid,
		s.ExpiresAt.Unix(), s.CreatedAt.Unix(),
		database.NullUnix(s.InvalidatedAt), database.NullUnix(s.DispatchedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return 0, fmt.Errorf("a valid %s signal for %s already exists: %w", s.Type, s.Ticker, err)
		}
		return 0, fmt.Errorf("failed to insert signal %s/%s: %w", s.Ticker, s.Type, err)
	}
	return res.LastInsertId()
}

func (r *Repository) query(ctx context.Context, query string, args ...interface{}) ([]domain.Signal, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var signals []domain.Signal
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		signals = append(signals, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signals: %w", err)
	}
	return signals, nil
}

func scanSignal(rows *sql.Rows) (domain.Signal, error) {
	var s domain.Signal
	var signalType, priority string
	var detail sql.NullString
	var expiresAt, createdAt int64
	var invalidatedAt, dispatchedAt sql.NullInt64

	if err := rows.Scan(&s.ID, &s.Ticker, &signalType, &priority, &s.Message, &detail, &s.IsValid,
		&expiresAt, &createdAt, &invalidatedAt, &dispatchedAt); err != nil {
		return s, err
	}

	var err error
	if s.Type, err = domain.ParseSignalType(signalType); err != nil {
		return s, err
	}
	if s.Priority, err = domain.ParsePriority(priority); err != nil {
		return s, err
	}
	if s.Detail, err = database.DecodeDetail(detail); err != nil {
		return s, err
	}
	s.ExpiresAt = database.FromUnix(expiresAt)
	s.CreatedAt = database.FromUnix(createdAt)
	s.InvalidatedAt = database.TimePtr(invalidatedAt)
	s.DispatchedAt = database.TimePtr(dispatchedAt)
	return s, nil
}

// IsDuplicate reports whether err came from the one-valid-signal-per-slot index
func IsDuplicate(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
