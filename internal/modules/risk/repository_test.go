package risk

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/watchtower/internal/database"
	"github.com/aristath/watchtower/internal/domain"
	testingpkg "github.com/aristath/watchtower/internal/testing"
)

func TestRepositorySnapshotsAreWrittenOnce(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, database.NameMain)
	defer cleanup()
	_, err := db.Conn().Exec(`INSERT INTO portfolios (id, name, created_at) VALUES (1, 'main', 0)`)
	require.NoError(t, err)

	repo := NewRepository(db.Conn(), zerolog.Nop())
	ctx := context.Background()
	d1 := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 3)

	first := domain.RiskMetrics{PortfolioID: 1, Date: d1, HealthScore: 70, HHI: 0.3, Volatility: domain.Float(0.2)}
	written, err := repo.SaveAll(ctx, []domain.RiskMetrics{first})
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	rerun := first
	rerun.HealthScore = 10
	ok, err := repo.Save(ctx, rerun)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Save(ctx, domain.RiskMetrics{PortfolioID: 1, Date: d2, HealthScore: 65, HHI: 0.3})
	require.NoError(t, err)
	assert.True(t, ok)

	latest, err := repo.Latest(ctx, 1)
	require.NoError(t, err)
	assert.True(t, latest.Date.Equal(d2))
	assert.Nil(t, latest.Volatility)

	history, err := repo.History(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 70.0, history[1].HealthScore, "first snapshot is kept")
	assert.Equal(t, 0.2, *history[1].Volatility)

	_, err = repo.Latest(ctx, 2)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
