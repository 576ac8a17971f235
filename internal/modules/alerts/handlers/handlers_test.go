package handlers

import (
	"context"
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
	testingpkg "github.com/aristath/watchtower/internal/testing"
)

func TestAlertActions(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, database.NameMain)
	defer cleanup()
	_, err := db.Conn().Exec(`INSERT INTO portfolios (id, name, created_at) VALUES (1, 'main', 0)`)
	require.NoError(t, err)

	ctx := context.Background()
	repo := alerts.NewRepository(db.Conn(), zerolog.Nop())
	ticker := "7203.T"
	created, err := repo.Apply(ctx, alerts.Plan{Create: []domain.Alert{{
		PortfolioID: 1, Ticker: &ticker, Type: domain.AlertStopLoss, Level: domain.LevelWarning,
		Message: "stop", CreatedAt: testingpkg.FixtureStart,
	}}})
	require.NoError(t, err)
	id := created[0].ID

	h := NewHandler(repo, zerolog.Nop())
	resolvedAt := testingpkg.FixtureStart.Add(2 * time.Hour)
	h.now = func() time.Time { return resolvedAt }
	router := chi.NewRouter()
	h.RegisterRoutes(router)

	do := func(method, path string) int {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, do(http.MethodPost, "/alerts/1/read"))
	assert.Equal(t, http.StatusNoContent, do(http.MethodPost, "/alerts/1/resolve"))
	assert.Equal(t, http.StatusNotFound, do(http.MethodPost, "/alerts/99/read"))
	assert.Equal(t, http.StatusBadRequest, do(http.MethodPost, "/alerts/x/resolve"))
	assert.Equal(t, http.StatusMethodNotAllowed, do(http.MethodGet, "/alerts/1/read"))

	a, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, a.IsRead)
	assert.True(t, a.IsResolved)
	require.NotNil(t, a.ResolvedAt)
	assert.True(t, a.ResolvedAt.Equal(resolvedAt))
}
