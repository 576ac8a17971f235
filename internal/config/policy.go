package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aristath/watchtower/internal/clients/yahoo"
	"github.com/aristath/watchtower/internal/domain"
	"github.com/aristath/watchtower/internal/modules/alerts"
	"github.com/aristath/watchtower/internal/modules/health"
	"github.com/aristath/watchtower/internal/modules/indicators"
	"github.com/aristath/watchtower/internal/modules/notifications"
	"github.com/aristath/watchtower/internal/modules/screening"
	"github.com/aristath/watchtower/internal/modules/signals"
)

// RiskPolicy configures the risk calculator
type RiskPolicy struct {
	RiskFreeRate float64 `yaml:"risk_free_rate"`
}

// PipelinePolicy configures the daily pass
type PipelinePolicy struct {
	TickerTimeout   time.Duration `yaml:"ticker_timeout"`
	FundamentalsTTL time.Duration `yaml:"fundamentals_ttl"`
	Concurrency     int           `yaml:"concurrency"`
	LookbackDays    int           `yaml:"lookback_days"`
}

// Policy is every threshold, weight, window and cap of the system
type Policy struct {
	Indicators    indicators.Params    `yaml:"indicators"`
	Health        health.Config        `yaml:"health"`
	Screening     screening.Config     `yaml:"screening"`
	Notifications notifications.Policy `yaml:"notifications"`
	Provider      yahoo.Config         `yaml:"provider"`
	Pipeline      PipelinePolicy       `yaml:"pipeline"`
	Signals       signals.Config       `yaml:"signals"`
	Alerts        alerts.Config        `yaml:"alerts"`
	Risk          RiskPolicy           `yaml:"risk"`
}

// DefaultPolicy returns the built-in policy
func DefaultPolicy() *Policy {
	return &Policy{
		Indicators:    indicators.DefaultParams(),
		Risk:          RiskPolicy{RiskFreeRate: 0},
		Health:        health.DefaultConfig(),
		Screening:     screening.DefaultConfig(),
		Signals:       signals.DefaultConfig(),
		Alerts:        alerts.DefaultConfig(),
		Notifications: notifications.DefaultPolicy(),
		Provider:      yahoo.DefaultConfig(),
		Pipeline: PipelinePolicy{
			TickerTimeout:   30 * time.Second,
			FundamentalsTTL: 7 * 24 * time.Hour,
			Concurrency:     4,
			LookbackDays:    400,
		},
	}
}

// LoadPolicy returns the defaults overlaid with the YAML file at path.
// An empty path returns the defaults.
func LoadPolicy(path string) (*Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, p.Validate()
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	if err := yaml.Unmarshal(raw, p); err != nil {
		return nil, &domain.ConfigurationError{Field: "policy", Reason: fmt.Sprintf("invalid YAML in %s: %v", path, err)}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks every section and returns the first ConfigurationError
func (p *Policy) Validate() error {
	checks := []func() error{
		p.Indicators.Validate,
		p.Health.Validate,
		p.Screening.Validate,
		p.Signals.Validate,
		p.Alerts.Validate,
		p.Notifications.Validate,
		p.validatePipeline,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Policy) validatePipeline() error {
	switch {
	case p.Risk.RiskFreeRate < 0 || p.Risk.RiskFreeRate >= 1:
		return &domain.ConfigurationError{Field: "risk.risk_free_rate", Reason: "must be within [0,1)"}
	case p.Pipeline.Concurrency <= 0:
		return &domain.ConfigurationError{Field: "pipeline.concurrency", Reason: "must be positive"}
	case p.Pipeline.TickerTimeout <= 0:
		return &domain.ConfigurationError{Field: "pipeline.ticker_timeout", Reason: "must be positive"}
	case p.Pipeline.LookbackDays < p.Indicators.TrendSMA:
		return &domain.ConfigurationError{Field: "pipeline.lookback_days", Reason: "must cover the trend SMA window"}
	case p.Provider.RequestsPerSecond <= 0 || p.Provider.Burst <= 0:
		return &domain.ConfigurationError{Field: "provider.requests_per_second", Reason: "rate and burst must be positive"}
	}
	return nil
}
