package repository

import (
	"context"
	"testing"
	"time"

	"jackpotd/domain/entities"
	"jackpotd/repository/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalanceHistoryRepository_Record(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewBalanceHistoryRepository(testDB.DB)
	ctx := context.Background()

	userID := testutil.SeedUser(t, testDB.DB, "alice", 100000, 50000)

	relatedID := int64(77)
	relatedType := entities.RelatedTypeSettlement
	entry := &entities.BalanceHistory{
		UserID:             userID,
		RealBalanceBefore:  100000,
		RealBalanceAfter:   99700,
		BonusBalanceBefore: 50000,
		BonusBalanceAfter:  50000,
		ChangeAmount:       -300,
		TransactionType:    entities.TransactionTypeBetWager,
		TransactionMetadata: map[string]any{
			"game_id": float64(10),
			"round":   "spin-9",
		},
		RelatedID:   &relatedID,
		RelatedType: &relatedType,
	}
	require.NoError(t, repo.Record(ctx, entry))

	assert.NotZero(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())

	got, err := repo.GetByUser(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, entities.TransactionTypeBetWager, got[0].TransactionType)
	assert.Equal(t, int64(-300), got[0].ChangeAmount)
	assert.True(t, got[0].IsNegativeChange())
	assert.Equal(t, int64(150000), got[0].TotalBefore())
	assert.Equal(t, int64(149700), got[0].TotalAfter())
	require.NotNil(t, got[0].RelatedID)
	assert.Equal(t, int64(77), *got[0].RelatedID)
	require.NotNil(t, got[0].RelatedType)
	assert.Equal(t, entities.RelatedTypeSettlement, *got[0].RelatedType)
	// JSONB round trip
	assert.Equal(t, entry.TransactionMetadata, got[0].TransactionMetadata)
}

func TestBalanceHistoryRepository_GetByUser(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewBalanceHistoryRepository(testDB.DB)
	ctx := context.Background()

	userID := testutil.SeedUser(t, testDB.DB, "alice", 100000, 50000)
	otherID := testutil.SeedUser(t, testDB.DB, "bob", 100000, 0)

	for i := 0; i < 4; i++ {
		require.NoError(t, repo.Record(ctx, testutil.CreateTestBalanceHistory(userID, entities.TransactionTypeBetWager)))
	}
	require.NoError(t, repo.Record(ctx, testutil.CreateTestBalanceHistory(otherID, entities.TransactionTypeBonusGrant)))

	entries, err := repo.GetByUser(ctx, userID, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, userID, e.UserID)
	}

	t.Run("empty history", func(t *testing.T) {
		fresh := testutil.SeedUser(t, testDB.DB, "carol", 0, 0)
		entries, err := repo.GetByUser(ctx, fresh, 10)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestBalanceHistoryRepository_GetByDateRange(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewBalanceHistoryRepository(testDB.DB)
	ctx := context.Background()

	userID := testutil.SeedUser(t, testDB.DB, "alice", 100000, 0)
	require.NoError(t, repo.Record(ctx, testutil.CreateTestBalanceHistory(userID, entities.TransactionTypeBetWin)))

	now := time.Now()

	entries, err := repo.GetByDateRange(ctx, userID, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	entries, err = repo.GetByDateRange(ctx, userID, now.Add(-2*time.Hour), now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, entries)
}
