package repository

import (
	"context"
	"testing"

	"jackpotd/domain/entities"
	"jackpotd/repository/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBonusRepository_GetActiveByUser(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewBonusRepository(testDB.DB)
	ctx := context.Background()

	userID := testutil.SeedUser(t, testDB.DB, "alice", 0, 0)

	oldest := testutil.SeedBonus(t, testDB.DB, userID, 100, false)
	preferred := testutil.SeedBonus(t, testDB.DB, userID, 200, true)
	testutil.SeedBonus(t, testDB.DB, userID, 0, true) // drained, excluded

	bonuses, err := repo.GetActiveByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, bonuses, 2)

	// Preferred buckets first, then oldest first
	assert.Equal(t, preferred, bonuses[0].ID)
	assert.True(t, bonuses[0].Preferred)
	assert.Equal(t, oldest, bonuses[1].ID)

	t.Run("no bonuses", func(t *testing.T) {
		other := testutil.SeedUser(t, testDB.DB, "bob", 0, 0)
		bonuses, err := repo.GetActiveByUser(ctx, other)
		require.NoError(t, err)
		assert.Empty(t, bonuses)
	})
}

func TestBonusRepository_Deduct(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewBonusRepository(testDB.DB)
	ctx := context.Background()

	userID := testutil.SeedUser(t, testDB.DB, "alice", 0, 0)
	bonusID := testutil.SeedBonus(t, testDB.DB, userID, 500, false)

	t.Run("partial deduction", func(t *testing.T) {
		require.NoError(t, repo.Deduct(ctx, bonusID, 200))

		bonuses, err := repo.GetActiveByUser(ctx, userID)
		require.NoError(t, err)
		require.Len(t, bonuses, 1)
		assert.Equal(t, int64(300), bonuses[0].Amount)
	})

	t.Run("overdraw leaves bucket untouched", func(t *testing.T) {
		err := repo.Deduct(ctx, bonusID, 301)
		assert.ErrorContains(t, err, "cannot cover")

		bonuses, err := repo.GetActiveByUser(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(300), bonuses[0].Amount)
	})

	t.Run("drain to zero", func(t *testing.T) {
		require.NoError(t, repo.Deduct(ctx, bonusID, 300))

		bonuses, err := repo.GetActiveByUser(ctx, userID)
		require.NoError(t, err)
		assert.Empty(t, bonuses)
	})

	t.Run("non-positive amount", func(t *testing.T) {
		assert.Error(t, repo.Deduct(ctx, bonusID, 0))
		assert.Error(t, repo.Deduct(ctx, bonusID, -10))
	})
}

func TestBonusRepository_Credit(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewBonusRepository(testDB.DB)
	ctx := context.Background()

	userID := testutil.SeedUser(t, testDB.DB, "alice", 0, 0)
	bonusID := testutil.SeedBonus(t, testDB.DB, userID, 100, false)

	require.NoError(t, repo.Credit(ctx, bonusID, 150))

	bonuses, err := repo.GetActiveByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, bonuses, 1)
	assert.Equal(t, int64(250), bonuses[0].Amount)

	assert.Error(t, repo.Credit(ctx, 999999, 100))
	assert.Error(t, repo.Credit(ctx, bonusID, 0))
}

func TestBonusRepository_Create(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewBonusRepository(testDB.DB)
	ctx := context.Background()

	userID := testutil.SeedUser(t, testDB.DB, "alice", 0, 0)

	bonus, err := repo.Create(ctx, &entities.UserBonus{UserID: userID, Amount: 1000, Preferred: true})
	require.NoError(t, err)

	assert.NotZero(t, bonus.ID)
	assert.False(t, bonus.CreatedAt.IsZero())

	bonuses, err := repo.GetActiveByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, bonuses, 1)
	assert.Equal(t, bonus.ID, bonuses[0].ID)
	assert.True(t, bonuses[0].Preferred)
}
