package notifications

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/watchtower/internal/database"
	"github.com/aristath/watchtower/internal/domain"
)

// NoticeRef identifies one arbitrated notice inside a dispatch record
type NoticeRef struct {
	Kind     domain.NoticeKind `msgpack:"kind" json:"kind"`
	Channel  domain.Channel    `msgpack:"channel,omitempty" json:"channel,omitempty"`
	Key      string            `msgpack:"key" json:"key"`
	SourceID int64             `msgpack:"source_id" json:"source_id"`
}

// DispatchRecord is the persisted proof that a date was dispatched
type DispatchRecord struct {
	StartedAt  time.Time   `msgpack:"started_at" json:"started_at"`
	Date       string      `msgpack:"date" json:"date"`
	Dispatched []NoticeRef `msgpack:"dispatched" json:"dispatched"`
	Deferred   []NoticeRef `msgpack:"deferred" json:"deferred"`
	Suppressed []NoticeRef `msgpack:"suppressed" json:"suppressed"`
	Count      int         `msgpack:"count" json:"count"`
}

// DispatchedNotice is a delivered notice as shown to readers
type DispatchedNotice struct {
	DispatchedAt time.Time         `json:"dispatched_at"`
	Date         string            `json:"date"`
	Kind         domain.NoticeKind `json:"kind"`
	Channel      domain.Channel    `json:"channel"`
	Ticker       string            `json:"ticker"`
	Message      string            `json:"message"`
	SourceID     int64             `json:"source_id"`
}

// Repository persists arbiter state and dispatch history
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new notification repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "notifications").Logger(),
	}
}

// HasRun reports whether date was already dispatched
func (r *Repository) HasRun(ctx context.Context, date string) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dispatch_runs WHERE date = ?`, date).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check dispatch run %s: %w", date, err)
	}
	return n > 0, nil
}

// LoadState reads the notification log and the counter for date
func (r *Repository) LoadState(ctx context.Context, date string) (State, error) {
	st := State{Counter: domain.NoticeCounter{Date: date}}

	rows, err := r.db.QueryContext(ctx,
		`SELECT throttle_key, notified_at, kind, source_id, channel FROM notification_log ORDER BY notified_at, id`)
	if err != nil {
		return st, fmt.Errorf("failed to query notification log: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e domain.NotificationLogEntry
		var notifiedAt int64
		var kind, channel string
		if err := rows.Scan(&e.Key, &notifiedAt, &kind, &e.SourceID, &channel); err != nil {
			return st, fmt.Errorf("failed to scan notification log: %w", err)
		}
		e.NotifiedAt = database.FromUnix(notifiedAt)
		e.Kind = domain.NoticeKind(kind)
		if e.Channel, err = domain.ParseChannel(channel); err != nil {
			return st, err
		}
		st.Log = append(st.Log, e)
	}
	if err := rows.Err(); err != nil {
		return st, fmt.Errorf("error iterating notification log: %w", err)
	}

	err = r.db.QueryRowContext(ctx, `SELECT count FROM notice_counters WHERE date = ?`, date).Scan(&st.Counter.Count)
	if err != nil && err != sql.ErrNoRows {
		return st, fmt.Errorf("failed to read notice counter %s: %w", date, err)
	}

	return st, nil
}

// Commit records the outcome of arbitrating date in one transaction. It
// fails with ConcurrencyConflictError when date was already committed.
func (r *Repository) Commit(ctx context.Context, date string, startedAt time.Time, out Outcome) error {
	record := DispatchRecord{
		Date:       date,
		StartedAt:  startedAt.UTC(),
		Dispatched: refs(out.Dispatched),
		Deferred:   refs(out.Deferred),
		Suppressed: refs(out.Suppressed),
		Count:      out.State.Counter.Count,
	}
	payload, err := msgpack.Marshal(&record)
	if err != nil {
		return fmt.Errorf("failed to encode dispatch record: %w", err)
	}

	now := startedAt.Unix()
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO dispatch_runs (date, started_at, payload) VALUES (?, ?, ?) ON CONFLICT(date) DO NOTHING`,
			date, now, payload)
		if err != nil {
			return fmt.Errorf("failed to record dispatch run: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("failed to read dispatch run insert: %w", err)
		} else if n == 0 {
			return &domain.ConcurrencyConflictError{Key: date}
		}

		// suppressed notices are consumed without delivery
		consumed := append(append([]domain.Notice{}, out.Dispatched...), out.Suppressed...)
		for _, n := range consumed {
			if err := markConsumed(ctx, tx, n, now); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM notification_log`); err != nil {
			return fmt.Errorf("failed to prune notification log: %w", err)
		}
		for _, e := range out.State.Log {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO notification_log (throttle_key, notified_at, kind, source_id, channel) VALUES (?, ?, ?, ?, ?)`,
				e.Key, e.NotifiedAt.Unix(), string(e.Kind), e.SourceID, string(e.Channel),
			); err != nil {
				return fmt.Errorf("failed to write notification log: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO notice_counters (date, count) VALUES (?, ?)
			 ON CONFLICT(date) DO UPDATE SET count = excluded.count`,
			out.State.Counter.Date, out.State.Counter.Count,
		); err != nil {
			return fmt.Errorf("failed to write notice counter: %w", err)
		}

		for _, n := range out.Dispatched {
			if _, err := tx.ExecContext(ctx, `INSERT INTO dispatched_notices
				(date, kind, source_id, channel, ticker, message, dispatched_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				date, string(n.Kind), n.SourceID(), string(n.Channel), n.Ticker(), Format(n), now,
			); err != nil {
				return fmt.Errorf("failed to record dispatched notice: %w", err)
			}
		}
		return nil
	})
}

func markConsumed(ctx context.Context, tx *sql.Tx, n domain.Notice, at int64) error {
	var query string
	switch n.Kind {
	case domain.NoticeAlert:
		query = `UPDATE alerts SET dispatched_at = ? WHERE id = ?`
	case domain.NoticeSignal:
		query = `UPDATE signals SET dispatched_at = ? WHERE id = ?`
	default:
		return fmt.Errorf("unknown notice kind %q", n.Kind)
	}
	if _, err := tx.ExecContext(ctx, query, at, n.SourceID()); err != nil {
		return fmt.Errorf("failed to mark %s %d dispatched: %w", n.Kind, n.SourceID(), err)
	}
	return nil
}

// Record returns the dispatch record for date
func (r *Repository) Record(ctx context.Context, date string) (*DispatchRecord, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM dispatch_runs WHERE date = ?`, date).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("dispatch run %s: %w", date, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read dispatch run %s: %w", date, err)
	}

	var record DispatchRecord
	if err := msgpack.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("failed to decode dispatch run %s: %w", date, err)
	}
	return &record, nil
}

// Dispatched returns the notices delivered on date
func (r *Repository) Dispatched(ctx context.Context, date string) ([]DispatchedNotice, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT date, kind, source_id, channel, ticker, message, dispatched_at
		FROM dispatched_notices WHERE date = ? ORDER BY id`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query dispatched notices: %w", err)
	}
	defer rows.Close()

	notices := []DispatchedNotice{}
	for rows.Next() {
		var n DispatchedNotice
		var kind, channel string
		var at int64
		if err := rows.Scan(&n.Date, &kind, &n.SourceID, &channel, &n.Ticker, &n.Message, &at); err != nil {
			return nil, fmt.Errorf("failed to scan dispatched notice: %w", err)
		}
		n.Kind = domain.NoticeKind(kind)
		n.Channel = domain.Channel(channel)
		n.DispatchedAt = database.FromUnix(at)
		notices = append(notices, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dispatched notices: %w", err)
	}
	return notices, nil
}

func refs(notices []domain.Notice) []NoticeRef {
	out := make([]NoticeRef, len(notices))
	for i, n := range notices {
		out[i] = NoticeRef{Kind: n.Kind, Channel: n.Channel, Key: n.ThrottleKey(), SourceID: n.SourceID()}
	}
	return out
}
