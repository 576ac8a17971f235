package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/watchtower/internal/database"
	"github.com/aristath/watchtower/internal/domain"
)

// RunRepository records pass runs
type RunRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRunRepository creates a new pass run repository
func NewRunRepository(db *sql.DB, log zerolog.Logger) *RunRepository {
	return &RunRepository{
		db:  db,
		log: log.With().Str("repo", "pass_runs").Logger(),
	}
}

// Start records a pass as running
func (r *RunRepository) Start(ctx context.Context, s *Summary) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO pass_runs (run_id, date, status, started_at) VALUES (?, ?, ?, ?)`,
		s.RunID, s.Date, StatusRunning, s.Started.Unix())
	if err != nil {
		return fmt.Errorf("failed to record pass start: %w", err)
	}
	return nil
}

// Finish stores the final status and summary of a pass
func (r *RunRepository) Finish(ctx context.Context, s *Summary) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode pass summary: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `UPDATE pass_runs SET status = ?, finished_at = ?, gaps = ?, summary = ? WHERE run_id = ?`,
		s.Status, s.Finished.Unix(), len(s.Gaps), string(raw), s.RunID)
	if err != nil {
		return fmt.Errorf("failed to record pass finish: %w", err)
	}
	return nil
}

// Latest returns the most recently started pass or ErrNotFound
func (r *RunRepository) Latest(ctx context.Context) (*Summary, error) {
	list, err := r.List(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("pass run: %w", domain.ErrNotFound)
	}
	return &list[0], nil
}

// List returns up to limit passes, newest first
func (r *RunRepository) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `SELECT run_id, date, status, started_at, finished_at, summary
		FROM pass_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pass runs: %w", err)
	}
	defer rows.Close()

	var list []Summary
	for rows.Next() {
		var s Summary
		var started int64
		var finished sql.NullInt64
		var raw sql.NullString
		if err := rows.Scan(&s.RunID, &s.Date, &s.Status, &started, &finished, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan pass run: %w", err)
		}
		if raw.Valid {
			if err := json.Unmarshal([]byte(raw.String), &s); err != nil {
				r.log.Warn().Err(err).Str("run_id", s.RunID).Msg("Unreadable pass summary")
			}
		}
		s.Started = database.FromUnix(started)
		if t := database.TimePtr(finished); t != nil {
			s.Finished = *t
		}
		list = append(list, s)
	}
	return list, rows.Err()
}
