package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/watchtower/internal/database"
	"github.com/aristath/watchtower/internal/domain"
	"github.com/aristath/watchtower/internal/modules/alerts"
	"github.com/aristath/watchtower/internal/modules/health"
	"github.com/aristath/watchtower/internal/modules/portfolio"
	"github.com/aristath/watchtower/internal/modules/risk"
	testingpkg "github.com/aristath/watchtower/internal/testing"
)

func newRouter(t *testing.T) (chi.Router, *portfolio.Repository, *risk.Repository, *alerts.Repository) {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, database.NameMain)
	t.Cleanup(cleanup)

	log := zerolog.Nop()
	repo := portfolio.NewRepository(db.Conn(), log)
	riskRepo := risk.NewRepository(db.Conn(), log)
	alertRepo := alerts.NewRepository(db.Conn(), log)

	router := chi.NewRouter()
	NewHandler(repo, riskRepo, alertRepo, health.NewScorer(health.DefaultConfig(), log), log).RegisterRoutes(router)
	return router, repo, riskRepo, alertRepo
}

func get(router chi.Router, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHandleGetHealth(t *testing.T) {
	router, repo, riskRepo, _ := newRouter(t)
	ctx := context.Background()
	pid, err := repo.CreatePortfolio(ctx, "main", testingpkg.FixtureStart)
	require.NoError(t, err)

	rec := get(router, "/portfolios/1/health")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, err = riskRepo.Save(ctx, domain.RiskMetrics{PortfolioID: pid, Date: testingpkg.FixtureStart, HealthScore: 82, HHI: 0.3})
	require.NoError(t, err)

	rec = get(router, "/portfolios/1/health")
	require.Equal(t, http.StatusOK, rec.Code)
	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, health.LevelHealthy, body.Level)
	assert.Equal(t, 82.0, body.Metrics.HealthScore)

	assert.Equal(t, http.StatusBadRequest, get(router, "/portfolios/abc/health").Code)
}

func TestHandleGetAlerts(t *testing.T) {
	router, repo, _, alertRepo := newRouter(t)
	ctx := context.Background()
	pid, err := repo.CreatePortfolio(ctx, "main", testingpkg.FixtureStart)
	require.NoError(t, err)

	ticker := "7203.T"
	created, err := alertRepo.Apply(ctx, alerts.Plan{Create: []domain.Alert{
		{PortfolioID: pid, Ticker: &ticker, Type: domain.AlertDailyDrop, Level: domain.LevelWarning, Message: "drop", CreatedAt: testingpkg.FixtureStart},
		{PortfolioID: pid, Type: domain.AlertHealthCaution, Level: domain.LevelInfo, Message: "health", CreatedAt: testingpkg.FixtureStart},
	}})
	require.NoError(t, err)
	require.NoError(t, alertRepo.Resolve(ctx, created[1].ID, testingpkg.FixtureStart.Add(time.Hour)))

	var open []domain.Alert
	rec := get(router, "/portfolios/1/alerts")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &open))
	require.Len(t, open, 1)
	assert.Equal(t, domain.AlertDailyDrop, open[0].Type)

	var all []domain.Alert
	rec = get(router, "/portfolios/1/alerts?all=true")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 2)
}

func TestRoutesAreUnderPortfolios(t *testing.T) {
	router, repo, _, _ := newRouter(t)
	_, err := repo.CreatePortfolio(context.Background(), "main", testingpkg.FixtureStart)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, get(router, "/portfolios/").Code)
	assert.Equal(t, http.StatusOK, get(router, "/portfolios/1/holdings").Code)
	assert.Equal(t, http.StatusOK, get(router, "/portfolios/1/risk").Code)
	assert.Equal(t, http.StatusNotFound, get(router, "/health").Code)
}
