package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/watchtower/internal/database"
	"github.com/aristath/watchtower/internal/modules/alerts"
	"github.com/aristath/watchtower/internal/modules/portfolio"
	"github.com/aristath/watchtower/internal/modules/review"
	"github.com/aristath/watchtower/internal/modules/signals"
	testingpkg "github.com/aristath/watchtower/internal/testing"
)

func TestReviewRoutes(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, database.NameMain)
	defer cleanup()
	log := zerolog.Nop()

	svc := review.NewService(
		testingpkg.NewMockPriceSource(),
		signals.NewRepository(db.Conn(), log),
		alerts.NewRepository(db.Conn(), log),
		portfolio.NewRepository(db.Conn(), log),
		nil,
		log,
	)
	router := chi.NewRouter()
	NewHandler(svc, log).RegisterRoutes(router)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/review/monthly?months_ago=2")
	require.Equal(t, http.StatusOK, rec.Code)
	var rv review.Review
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rv))
	assert.Equal(t, "monthly", rv.Period)
	assert.Zero(t, rv.SignalsTotal)
	assert.Nil(t, rv.SignalAccuracy)

	tests := []struct {
		path string
		want int
	}{
		{path: "/review/weekly", want: http.StatusOK},
		{path: "/review/weekly?weeks_ago=abc", want: http.StatusBadRequest},
		{path: "/review/weekly?weeks_ago=53", want: http.StatusBadRequest},
		{path: "/review/monthly?months_ago=13", want: http.StatusBadRequest},
		{path: "/review/signals/5", want: http.StatusNotFound},
		{path: "/review/alerts/5", want: http.StatusNotFound},
		{path: "/review/alerts/x", want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, get(tt.path).Code)
		})
	}
}
