package alerts

import (
	"sort"
	"time"

	"github.com/aristath/watchtower/internal/domain"
)

// Plan lists the alert changes for one portfolio
type Plan struct {
	Create   []domain.Alert
	Escalate []domain.Alert
	Resolve  []domain.Alert
}

// Empty reports whether the plan changes nothing
func (p Plan) Empty() bool {
	return len(p.Create) == 0 && len(p.Escalate) == 0 && len(p.Resolve) == 0
}

// Reconcile merges findings into the open alerts of a portfolio. An open
// alert is never duplicated; its level only rises. Open alerts whose slot was
// evaluated without a finding are resolved.
func Reconcile(now time.Time, portfolioID int64, open []domain.Alert, out Outcome) Plan {
	var plan Plan

	openByKey := make(map[domain.AlertKey]domain.Alert, len(open))
	for _, a := range open {
		if a.IsResolved || a.PortfolioID != portfolioID {
			continue
		}
		openByKey[a.Key()] = a
	}

	found := make(map[domain.AlertKey]bool, len(out.Findings))
	for _, f := range out.Findings {
		key := f.Key(portfolioID)
		if found[key] {
			continue
		}
		found[key] = true

		existing, isOpen := openByKey[key]
		if !isOpen {
			plan.Create = append(plan.Create, domain.Alert{
				PortfolioID:      portfolioID,
				Ticker:           f.Ticker,
				Type:             f.Type,
				Level:            f.Level,
				Message:          f.Message,
				ActionSuggestion: f.Action,
				Detail:           f.Detail,
				CreatedAt:        now,
			})
			continue
		}
		if f.Level > existing.Level {
			existing.Level = f.Level
			existing.Message = f.Message
			existing.ActionSuggestion = f.Action
			existing.Detail = f.Detail
			plan.Escalate = append(plan.Escalate, existing)
		}
	}

	for key, a := range openByKey {
		if found[key] || !out.Evaluated[key] {
			continue
		}
		a.IsResolved = true
		resolvedAt := now
		a.ResolvedAt = &resolvedAt
		plan.Resolve = append(plan.Resolve, a)
	}
	sort.Slice(plan.Resolve, func(i, j int) bool { return plan.Resolve[i].ID < plan.Resolve[j].ID })

	return plan
}
