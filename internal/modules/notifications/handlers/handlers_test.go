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
	"github.com/aristath/watchtower/internal/modules/notifications"
	testingpkg "github.com/aristath/watchtower/internal/testing"
)

func TestNoticeRoutes(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, database.NameMain)
	defer cleanup()
	repo := notifications.NewRepository(db.Conn(), zerolog.Nop())
	now := time.Date(2024, 3, 5, 18, 45, 0, 0, time.UTC)

	// An empty dispatch still leaves a record for the date
	out := notifications.Arbitrate(notifications.DefaultPolicy(), notifications.State{}, notifications.Input{Now: now})
	require.NoError(t, repo.Commit(context.Background(), "2024-03-05", now, out))

	h := NewHandler(repo, zerolog.Nop())
	h.now = func() time.Time { return now }
	router := chi.NewRouter()
	h.RegisterRoutes(router)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/notices")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []notifications.DispatchedNotice
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list)

	rec = get("/notices/runs/2024-03-05")
	require.Equal(t, http.StatusOK, rec.Code)
	var record notifications.DispatchRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, "2024-03-05", record.Date)

	assert.Equal(t, http.StatusNotFound, get("/notices/runs/2024-03-04").Code)
	assert.Equal(t, http.StatusBadRequest, get("/notices?date=03-05").Code)
}
