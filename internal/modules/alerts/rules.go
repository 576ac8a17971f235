// Package alerts evaluates the defensive warning rules W-01 to W-10 for each
// portfolio and reconciles the findings with the alerts already open.
package alerts

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/watchtower/internal/domain"
)

// Config holds every rule threshold. Percentages are positive fractions.
type Config struct {
	DailyDrop           float64 `yaml:"daily_drop"`
	DailyDropCritical   float64 `yaml:"daily_drop_critical"`
	DeepStop            float64 `yaml:"deep_stop"`
	CriticalStop        float64 `yaml:"critical_stop"`
	HealthDanger        float64 `yaml:"health_danger"`
	HealthCaution       float64 `yaml:"health_caution"`
	TickerConcentration float64 `yaml:"ticker_concentration"`
	SectorConcentration float64 `yaml:"sector_concentration"`
	IndexDrop           float64 `yaml:"index_drop"`
	IndexDropCritical   float64 `yaml:"index_drop_critical"`
	BroadDeclineShare   float64 `yaml:"broad_decline_share"`
	StaleLossDays       int     `yaml:"stale_loss_days"`
}

// DefaultConfig returns the standard rule thresholds
func DefaultConfig() Config {
	return Config{
		DailyDrop:           0.05,
		DailyDropCritical:   0.10,
		DeepStop:            0.15,
		CriticalStop:        0.20,
		HealthDanger:        40,
		HealthCaution:       70,
		TickerConcentration: 0.30,
		SectorConcentration: 0.50,
		IndexDrop:           0.03,
		IndexDropCritical:   0.06,
		BroadDeclineShare:   0.50,
		StaleLossDays:       30,
	}
}

// Validate checks that every tier is ordered
func (c Config) Validate() error {
	switch {
	case c.DailyDrop <= 0 || c.DailyDropCritical <= c.DailyDrop:
		return &domain.ConfigurationError{Field: "alerts.daily_drop", Reason: "need 0 < daily_drop < daily_drop_critical"}
	case c.DeepStop <= 0 || c.CriticalStop <= c.DeepStop:
		return &domain.ConfigurationError{Field: "alerts.deep_stop", Reason: "need 0 < deep_stop < critical_stop"}
	case c.HealthDanger <= 0 || c.HealthCaution <= c.HealthDanger:
		return &domain.ConfigurationError{Field: "alerts.health", Reason: "need 0 < health_danger < health_caution"}
	case c.TickerConcentration <= 0 || c.TickerConcentration >= 1:
		return &domain.ConfigurationError{Field: "alerts.ticker_concentration", Reason: "must be within (0,1)"}
	case c.SectorConcentration <= 0 || c.SectorConcentration >= 1:
		return &domain.ConfigurationError{Field: "alerts.sector_concentration", Reason: "must be within (0,1)"}
	case c.IndexDrop <= 0 || c.IndexDropCritical <= c.IndexDrop:
		return &domain.ConfigurationError{Field: "alerts.index_drop", Reason: "need 0 < index_drop < index_drop_critical"}
	case c.BroadDeclineShare <= 0 || c.BroadDeclineShare > 1:
		return &domain.ConfigurationError{Field: "alerts.broad_decline_share", Reason: "must be within (0,1]"}
	case c.StaleLossDays <= 0:
		return &domain.ConfigurationError{Field: "alerts.stale_loss_days", Reason: "must be positive"}
	}
	return nil
}

// Position is one ticker's aggregated holding and its price history
type Position struct {
	Ticker   string
	Sector   string
	Bars     []domain.PriceBar
	Shares   float64
	BuyPrice float64
}

// Input is everything the generator needs for one portfolio
type Input struct {
	Now           time.Time
	Rules         map[string]domain.StopLossRule
	Weights       map[string]float64
	SectorWeights map[string]float64
	IndexBars     map[string][]domain.PriceBar
	HealthScore   *float64
	Positions     []Position
	PortfolioID   int64
}

// Finding is a rule whose condition currently holds
type Finding struct {
	Detail  map[string]interface{}
	Ticker  *string
	Type    domain.AlertType
	Message string
	Action  string
	Level   domain.AlertLevel
}

// Key returns the open-alert slot of the finding
func (f Finding) Key(portfolioID int64) domain.AlertKey {
	k := domain.AlertKey{PortfolioID: portfolioID, Type: f.Type}
	if f.Ticker != nil {
		k.Ticker = *f.Ticker
	}
	return k
}

// Outcome is the result of evaluating every rule. Evaluated lists the slots
// whose condition could be determined this pass; open alerts for other slots
// are left untouched.
type Outcome struct {
	Evaluated    map[domain.AlertKey]bool
	Findings     []Finding
	UpdatedRules []domain.StopLossRule
}

// Generator evaluates the alert rules
type Generator struct {
	log zerolog.Logger
	cfg Config
}

// NewGenerator creates a generator; cfg must already be validated
func NewGenerator(cfg Config, log zerolog.Logger) *Generator {
	return &Generator{
		cfg: cfg,
		log: log.With().Str("component", "alert_generator").Logger(),
	}
}

// Evaluate runs every rule against the portfolio
func (g *Generator) Evaluate(in Input) Outcome {
	out := Outcome{Evaluated: make(map[domain.AlertKey]bool)}

	positions := make([]Position, len(in.Positions))
	copy(positions, in.Positions)
	sort.Slice(positions, func(i, j int) bool { return positions[i].Ticker < positions[j].Ticker })

	for _, t := range domain.AlertTypes {
		g.evaluate(t, in, positions, &out)
	}

	g.log.Debug().
		Int64("portfolio_id", in.PortfolioID).
		Int("findings", len(out.Findings)).
		Int("evaluated", len(out.Evaluated)).
		Msg("Alert rules evaluated")

	return out
}

func (g *Generator) evaluate(t domain.AlertType, in Input, positions []Position, out *Outcome) {
	switch t {
	case domain.AlertDailyDrop:
		for _, p := range positions {
			g.dailyDrop(in, p, out)
		}
	case domain.AlertStopLoss:
		for _, p := range positions {
			g.stopLoss(in, p, out)
		}
	case domain.AlertDeepStopLoss:
		// evaluated together with AlertStopLoss so both share one reference price
	case domain.AlertHealthDanger, domain.AlertHealthCaution:
		g.health(t, in, out)
	case domain.AlertTickerConcentrate:
		for _, p := range positions {
			g.tickerConcentration(in, p, out)
		}
	case domain.AlertSectorConcentrate:
		g.sectorConcentration(in, out)
	case domain.AlertIndexCrash:
		g.indexCrash(in, out)
	case domain.AlertBroadDecline:
		g.broadDecline(in, positions, out)
	case domain.AlertStaleLoss:
		for _, p := range positions {
			g.staleLoss(in, p, out)
		}
	}
}

func (o *Outcome) mark(portfolioID int64, ticker string, t domain.AlertType) {
	o.Evaluated[domain.AlertKey{PortfolioID: portfolioID, Ticker: ticker, Type: t}] = true
}

func (o *Outcome) add(f Finding) {
	o.Findings = append(o.Findings, f)
}

// lineTolerance absorbs float noise when a move sits exactly on a threshold
const lineTolerance = 1e-9

func tickerPtr(s string) *string {
	return &s
}

func pct(v float64) float64 {
	return v * 100
}

func dailyChange(bars []domain.PriceBar) (float64, bool) {
	if len(bars) < 2 {
		return 0, false
	}
	prev := bars[len(bars)-2].Close
	if prev <= 0 {
		return 0, false
	}
	return bars[len(bars)-1].Close/prev - 1, true
}

// W-01
func (g *Generator) dailyDrop(in Input, p Position, out *Outcome) {
	change, ok := dailyChange(p.Bars)
	if !ok {
		return
	}
	out.mark(in.PortfolioID, p.Ticker, domain.AlertDailyDrop)

	var level domain.AlertLevel
	switch {
	case change < -g.cfg.DailyDropCritical-lineTolerance:
		level = domain.LevelCritical
	case change < -g.cfg.DailyDrop-lineTolerance:
		level = domain.LevelSevere
	default:
		return
	}
	out.add(Finding{
		Ticker:  tickerPtr(p.Ticker),
		Type:    domain.AlertDailyDrop,
		Level:   level,
		Message: fmt.Sprintf("%s fell %.1f%% today", p.Ticker, pct(-change)),
		Action:  "Check the reason for the drop and review the stop-loss line.",
		Detail:  map[string]interface{}{"change": change},
	})
}

// W-02 and W-03. The trailing reference is raised before evaluation.
func (g *Generator) stopLoss(in Input, p Position, out *Outcome) {
	if len(p.Bars) == 0 {
		return
	}
	price := p.Bars[len(p.Bars)-1].Close

	rule, hasRule := in.Rules[p.Ticker]
	if !hasRule {
		rule = domain.StopLossRule{
			PortfolioID: in.PortfolioID,
			Ticker:      p.Ticker,
			BuyPrice:    p.BuyPrice,
			StopLossPct: domain.DefaultStopLossPct,
			IsActive:    true,
		}
	}
	out.mark(in.PortfolioID, p.Ticker, domain.AlertStopLoss)
	out.mark(in.PortfolioID, p.Ticker, domain.AlertDeepStopLoss)
	if !rule.IsActive || rule.BuyPrice <= 0 {
		return
	}

	if hasRule && rule.TrailingStop && price > rule.HighestPrice {
		rule.HighestPrice = price
		out.UpdatedRules = append(out.UpdatedRules, rule)
	}

	ref := rule.Reference()
	drawdown := price/ref - 1
	detail := map[string]interface{}{
		"price":         price,
		"reference":     ref,
		"drawdown":      drawdown,
		"stop_price":    ref * (1 + rule.StopLossPct),
		"trailing_stop": rule.TrailingStop,
	}

	// W-02 stays open below the deep tiers so a deepening loss never resolves it
	if drawdown <= rule.StopLossPct+lineTolerance {
		out.add(Finding{
			Ticker:  tickerPtr(p.Ticker),
			Type:    domain.AlertStopLoss,
			Level:   domain.LevelWarning,
			Message: fmt.Sprintf("%s reached its stop-loss line (%.1f%% below reference)", p.Ticker, pct(-drawdown)),
			Action:  "Review the stop-loss line and prepare to sell.",
			Detail:  detail,
		})
	}

	var level domain.AlertLevel
	switch {
	case drawdown <= -g.cfg.CriticalStop+lineTolerance:
		level = domain.LevelCritical
	case drawdown <= -g.cfg.DeepStop+lineTolerance:
		level = domain.LevelSevere
	default:
		return
	}
	out.add(Finding{
		Ticker:  tickerPtr(p.Ticker),
		Type:    domain.AlertDeepStopLoss,
		Level:   level,
		Message: fmt.Sprintf("%s is %.1f%% below its stop reference; the stop-loss line is broken", p.Ticker, pct(-drawdown)),
		Action:  "Consider cutting the position; the risk of holding on is high.",
		Detail:  detail,
	})
}

// W-04 and W-05
func (g *Generator) health(t domain.AlertType, in Input, out *Outcome) {
	if in.HealthScore == nil {
		return
	}
	score := *in.HealthScore
	out.mark(in.PortfolioID, "", t)

	switch t {
	case domain.AlertHealthDanger:
		if score < g.cfg.HealthDanger {
			out.add(Finding{
				Type:    domain.AlertHealthDanger,
				Level:   domain.LevelCritical,
				Message: fmt.Sprintf("Portfolio health is in the danger zone (score %.0f)", score),
				Action:  "Consider rebalancing and adding holdings that improve diversification.",
				Detail:  map[string]interface{}{"health_score": score},
			})
		}
	case domain.AlertHealthCaution:
		if score >= g.cfg.HealthDanger && score < g.cfg.HealthCaution {
			out.add(Finding{
				Type:    domain.AlertHealthCaution,
				Level:   domain.LevelWarning,
				Message: fmt.Sprintf("Portfolio health needs attention (score %.0f)", score),
				Action:  "Check the improvement points of the health score.",
				Detail:  map[string]interface{}{"health_score": score},
			})
		}
	}
}

// W-06
func (g *Generator) tickerConcentration(in Input, p Position, out *Outcome) {
	w, ok := in.Weights[p.Ticker]
	if !ok {
		return
	}
	out.mark(in.PortfolioID, p.Ticker, domain.AlertTickerConcentrate)
	if w <= g.cfg.TickerConcentration {
		return
	}
	out.add(Finding{
		Ticker:  tickerPtr(p.Ticker),
		Type:    domain.AlertTickerConcentrate,
		Level:   domain.LevelWarning,
		Message: fmt.Sprintf("%s makes up %.1f%% of the portfolio", p.Ticker, pct(w)),
		Action:  fmt.Sprintf("Consider selling part of %s or diversifying into other tickers.", p.Ticker),
		Detail:  map[string]interface{}{"weight": w},
	})
}

// W-07, one portfolio-wide alert for the heaviest sector
func (g *Generator) sectorConcentration(in Input, out *Outcome) {
	if len(in.SectorWeights) == 0 {
		return
	}
	out.mark(in.PortfolioID, "", domain.AlertSectorConcentrate)

	sectors := make([]string, 0, len(in.SectorWeights))
	for s := range in.SectorWeights {
		sectors = append(sectors, s)
	}
	sort.Strings(sectors)
	heaviest, weight := "", 0.0
	for _, s := range sectors {
		if w := in.SectorWeights[s]; w > weight {
			heaviest, weight = s, w
		}
	}
	if weight <= g.cfg.SectorConcentration {
		return
	}
	out.add(Finding{
		Type:    domain.AlertSectorConcentrate,
		Level:   domain.LevelWarning,
		Message: fmt.Sprintf("The %s sector makes up %.1f%% of the portfolio", heaviest, pct(weight)),
		Action:  "Add holdings from other sectors to improve diversification.",
		Detail:  map[string]interface{}{"sector": heaviest, "weight": weight},
	})
}

// W-08, escalates on the worst index move
func (g *Generator) indexCrash(in Input, out *Outcome) {
	indices := make([]string, 0, len(in.IndexBars))
	for idx := range in.IndexBars {
		indices = append(indices, idx)
	}
	sort.Strings(indices)

	worst, worstChange, known := "", 0.0, false
	for _, idx := range indices {
		change, ok := dailyChange(in.IndexBars[idx])
		if !ok {
			continue
		}
		if !known || change < worstChange {
			worst, worstChange = idx, change
		}
		known = true
	}
	if !known {
		return
	}
	out.mark(in.PortfolioID, "", domain.AlertIndexCrash)

	var level domain.AlertLevel
	switch {
	case worstChange < -g.cfg.IndexDropCritical-lineTolerance:
		level = domain.LevelCritical
	case worstChange < -g.cfg.IndexDrop-lineTolerance:
		level = domain.LevelSevere
	default:
		return
	}
	out.add(Finding{
		Type:    domain.AlertIndexCrash,
		Level:   level,
		Message: fmt.Sprintf("The market is falling sharply (%s %.1f%%); check the impact on your holdings", worst, pct(worstChange)),
		Action:  "Review the whole portfolio and decide whether further stop-losses are needed.",
		Detail:  map[string]interface{}{"index": worst, "change": worstChange},
	})
}

// W-09
func (g *Generator) broadDecline(in Input, positions []Position, out *Outcome) {
	total, down := 0, 0
	for _, p := range positions {
		change, ok := dailyChange(p.Bars)
		if !ok {
			continue
		}
		total++
		if change < 0 {
			down++
		}
	}
	if total == 0 {
		return
	}
	out.mark(in.PortfolioID, "", domain.AlertBroadDecline)

	share := float64(down) / float64(total)
	if share < g.cfg.BroadDeclineShare {
		return
	}
	out.add(Finding{
		Type:    domain.AlertBroadDecline,
		Level:   domain.LevelSevere,
		Message: fmt.Sprintf("%.0f%% of holdings are down today", pct(share)),
		Action:  "Check the overall market trend and consider reducing positions.",
		Detail:  map[string]interface{}{"down": down, "total": total, "share": share},
	})
}

// W-10, counted on consecutive closes below the buy price ending today
func (g *Generator) staleLoss(in Input, p Position, out *Outcome) {
	if len(p.Bars) == 0 || p.BuyPrice <= 0 {
		return
	}
	out.mark(in.PortfolioID, p.Ticker, domain.AlertStaleLoss)

	days := 0
	for i := len(p.Bars) - 1; i >= 0 && p.Bars[i].Close < p.BuyPrice; i-- {
		days++
	}
	if days < g.cfg.StaleLossDays {
		return
	}
	out.add(Finding{
		Ticker:  tickerPtr(p.Ticker),
		Type:    domain.AlertStaleLoss,
		Level:   domain.LevelWarning,
		Message: fmt.Sprintf("%s has been below its purchase price for %d days", p.Ticker, days),
		Action:  "Decide whether to cut the loss and redeploy the money, or average down.",
		Detail:  map[string]interface{}{"days_under_water": days},
	})
}
