package simulation

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

// Result is one stored simulation. Exactly one params/outcome pair is set,
// matching Scenario.
type Result struct {
	CreatedAt     time.Time             `msgpack:"-" json:"created_at"`
	StopLoss      *StopLossParams       `msgpack:"stop_loss,omitempty" json:"stop_loss,omitempty"`
	Replay        *StopLossOutcome      `msgpack:"replay,omitempty" json:"replay,omitempty"`
	Concentration *ConcentrationParams  `msgpack:"concentration,omitempty" json:"concentration,omitempty"`
	Compare       *ConcentrationOutcome `msgpack:"compare,omitempty" json:"compare,omitempty"`
	Scenario      Scenario              `msgpack:"-" json:"scenario"`
	Title         string                `msgpack:"-" json:"title"`
	Summary       string                `msgpack:"-" json:"summary"`
	ID            int64                 `msgpack:"-" json:"id"`
}

// Repository persists simulation results
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new simulation repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "simulations").Logger(),
	}
}

// Save stores res and returns its id
func (r *Repository) Save(ctx context.Context, res Result) (int64, error) {
	payload, err := msgpack.Marshal(&res)
	if err != nil {
		return 0, fmt.Errorf("failed to encode simulation: %w", err)
	}
	out, err := r.db.ExecContext(ctx, `INSERT INTO simulations (scenario, title, summary, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		string(res.Scenario), res.Title, res.Summary, payload, res.CreatedAt.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to store simulation: %w", err)
	}
	return out.LastInsertId()
}

// Get returns one simulation or ErrNotFound
func (r *Repository) Get(ctx context.Context, id int64) (*Result, error) {
	list, err := r.query(ctx, `SELECT id, scenario, title, summary, payload, created_at
		FROM simulations WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("simulation %d: %w", id, domain.ErrNotFound)
	}
	return &list[0], nil
}

// Recent returns the newest simulations first
func (r *Repository) Recent(ctx context.Context, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 20
	}
	return r.query(ctx, `SELECT id, scenario, title, summary, payload, created_at
		FROM simulations ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
}

// CountBetween returns how many simulations were run in [from, to)
func (r *Repository) CountBetween(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM simulations WHERE created_at >= ? AND created_at < ?`,
		from.Unix(), to.Unix()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count simulations: %w", err)
	}
	return n, nil
}

func (r *Repository) query(ctx context.Context, query string, args ...interface{}) ([]Result, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query simulations: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var res Result
		var scenario string
		var payload []byte
		var createdAt int64
		if err := rows.Scan(&res.ID, &scenario, &res.Title, &res.Summary, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan simulation: %w", err)
		}
		if err := msgpack.Unmarshal(payload, &res); err != nil {
			return nil, fmt.Errorf("failed to decode simulation %d: %w", res.ID, err)
		}
		res.Scenario = Scenario(scenario)
		res.CreatedAt = database.FromUnix(createdAt)
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating simulations: %w", err)
	}
	return results, nil
}
