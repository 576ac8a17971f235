package signals

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/watchtower/internal/domain"
)

// Plan is the set of signal state transitions produced by one pass
type Plan struct {
	Create     []domain.Signal
	Expire     []domain.Signal
	Invalidate []domain.Signal
}

// Empty reports whether the plan changes nothing
func (p Plan) Empty() bool {
	return len(p.Create) == 0 && len(p.Expire) == 0 && len(p.Invalidate) == 0
}

type slot struct {
	ticker string
	kind   domain.SignalType
}

// Tracker applies the signal lifecycle: absent -> valid -> expired | invalidated.
// At most one valid signal exists per (ticker, type).
type Tracker struct {
	detector *Detector
	log      zerolog.Logger
}

// NewTracker creates a tracker that uses detector for reversal checks
func NewTracker(detector *Detector, log zerolog.Logger) *Tracker {
	return &Tracker{
		detector: detector,
		log:      log.With().Str("component", "signal_tracker").Logger(),
	}
}

// Reconcile decides which existing signals expire or are invalidated and
// which candidates become new signals. inputs holds the current pass data per
// ticker; tickers missing from inputs are only subject to expiry.
func (t *Tracker) Reconcile(now time.Time, existing []domain.Signal, candidates []Candidate, inputs map[string]Input) Plan {
	var plan Plan
	active := make(map[slot]bool)

	for _, s := range existing {
		if !s.IsValid {
			continue
		}
		if !now.Before(s.ExpiresAt) {
			s.IsValid = false
			plan.Expire = append(plan.Expire, s)
			continue
		}
		if in, ok := inputs[s.Ticker]; ok {
			if reversed, known := t.detector.Reversed(s, in); known && reversed {
				s.IsValid = false
				at := now
				s.InvalidatedAt = &at
				plan.Invalidate = append(plan.Invalidate, s)
				continue
			}
		}
		active[slot{s.Ticker, s.Type}] = true
	}

	ordered := make([]Candidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Ticker != ordered[j].Ticker {
			return ordered[i].Ticker < ordered[j].Ticker
		}
		return typeOrder(ordered[i].Type) < typeOrder(ordered[j].Type)
	})

	expiry := t.detector.Config().Expiry
	for _, c := range ordered {
		key := slot{c.Ticker, c.Type}
		if active[key] {
			continue
		}
		active[key] = true
		plan.Create = append(plan.Create, domain.Signal{
			Ticker:    c.Ticker,
			Type:      c.Type,
			Priority:  c.Priority,
			Message:   c.Message,
			Detail:    c.Detail,
			IsValid:   true,
			CreatedAt: now,
			ExpiresAt: now.Add(expiry),
		})
	}

	t.log.Debug().
		Int("created", len(plan.Create)).
		Int("expired", len(plan.Expire)).
		Int("invalidated", len(plan.Invalidate)).
		Msg("Signals reconciled")

	return plan
}

func typeOrder(t domain.SignalType) int {
	for i, st := range domain.SignalTypes {
		if st == t {
			return i
		}
	}
	return len(domain.SignalTypes)
}
