package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/watchtower/internal/domain"
	"github.com/aristath/watchtower/internal/modules/health"
)

func writePolicy(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultPolicyIsValid(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())
}

func TestLoadPolicyOverlaysDefaults(t *testing.T) {
	path := writePolicy(t, `
notifications:
  daily_cap: 3
  throttle_window: 12h
signals:
  expiry: 120h
health:
  weights:
    diversification: 0.40
    unrealized_loss: 0.0
pipeline:
  concurrency: 8
`)

	p, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Notifications.DailyCap)
	assert.Equal(t, 12*time.Hour, p.Notifications.ThrottleWindow)
	assert.Equal(t, 5*24*time.Hour, p.Signals.Expiry)
	assert.Equal(t, 8, p.Pipeline.Concurrency)
	assert.Equal(t, 0.40, p.Health.Weights[health.TermDiversification])
	assert.Equal(t, 0.25, p.Health.Weights[health.TermVolatility], "untouched keys keep defaults")
	assert.Equal(t, 20, p.Indicators.SlowSMA)
}

func TestLoadPolicyRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"zero cap", "notifications:\n  daily_cap: 0\n", "notifications.daily_cap"},
		{"bad weights", "screening:\n  weights:\n    value: 0.9\n", "screening.weights"},
		{"inverted sma", "indicators:\n  fast_sma: 30\n", "fast_sma"},
		{"no workers", "pipeline:\n  concurrency: 0\n", "pipeline.concurrency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadPolicy(writePolicy(t, tt.body))
			require.Error(t, err)
			var cfgErr *domain.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestLoadPolicyRejectsMalformedYAML(t *testing.T) {
	_, err := LoadPolicy(writePolicy(t, "notifications: ["))
	var cfgErr *domain.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLoadReadsEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WATCHTOWER_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("MARKET_INDICES", "^N225, ^TOPX ,")
	t.Setenv("POLICY_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, []string{"^N225", "^TOPX"}, cfg.MarketIndices)
	assert.DirExists(t, cfg.DataDir)
	assert.True(t, filepath.IsAbs(cfg.DataDir))
	assert.NotNil(t, cfg.Policy)
}

func TestValidateTelegramPair(t *testing.T) {
	cfg := &Config{Port: 8080, Policy: DefaultPolicy(), TelegramBotToken: "token"}
	assert.Error(t, cfg.Validate())
	cfg.TelegramChatID = "42"
	assert.NoError(t, cfg.Validate())
}
