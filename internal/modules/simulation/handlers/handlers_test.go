package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/watchtower/internal/database"
	"github.com/aristath/watchtower/internal/domain"
	"github.com/aristath/watchtower/internal/modules/simulation"
	testingpkg "github.com/aristath/watchtower/internal/testing"
)

type noHoldings struct{}

func (noHoldings) Holdings(context.Context, int64) ([]domain.Holding, error) {
	return nil, nil
}

func TestSimulationRoutes(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, database.NameMain)
	defer cleanup()

	prices := testingpkg.NewMockPriceSource()
	prices.SetBars("7203.T", testingpkg.NewBarFixtures("7203.T", testingpkg.FixtureStart, 1000, 890, 800))
	prices.SetError("9999.T", errors.New("unknown ticker"))
	svc := simulation.NewService(prices, noHoldings{}, simulation.NewRepository(db.Conn(), zerolog.Nop()), zerolog.Nop())

	router := chi.NewRouter()
	NewHandler(svc, zerolog.Nop()).RegisterRoutes(router)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
		return rec
	}

	rec := do(http.MethodPost, "/simulations/stop-loss", `{"ticker":"7203.T","buy_price":1000,"shares":10,"days":100000}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created simulation.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, simulation.ScenarioStopLoss, created.Scenario)
	require.NotNil(t, created.Replay)
	assert.True(t, created.Replay.StopWasBetter)

	rec = do(http.MethodGet, "/simulations/1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(http.MethodGet, "/simulations/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var list []simulation.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{name: "malformed body", method: http.MethodPost, path: "/simulations/stop-loss", body: `{`, want: http.StatusBadRequest},
		{name: "missing ticker", method: http.MethodPost, path: "/simulations/stop-loss", body: `{"buy_price":1,"shares":1}`, want: http.StatusBadRequest},
		{name: "no history", method: http.MethodPost, path: "/simulations/stop-loss", body: `{"ticker":"9999.T","buy_price":1,"shares":1}`, want: http.StatusUnprocessableEntity},
		{name: "empty portfolio", method: http.MethodPost, path: "/simulations/concentration", body: `{"portfolio_id":1,"ticker":"7203.T"}`, want: http.StatusNotFound},
		{name: "unknown id", method: http.MethodGet, path: "/simulations/42", want: http.StatusNotFound},
		{name: "bad id", method: http.MethodGet, path: "/simulations/abc", want: http.StatusBadRequest},
		{name: "bad limit", method: http.MethodGet, path: "/simulations/?limit=0", want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, do(tt.method, tt.path, tt.body).Code)
		})
	}
}
