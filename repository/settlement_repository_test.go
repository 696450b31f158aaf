package repository

import (
	"context"
	"errors"
	"testing"

	"jackpotd/domain/entities"
	"jackpotd/repository/testutil"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func settlementFor(userID, gameID int64, key *string) *entities.Settlement {
	return &entities.Settlement{
		UserID:         userID,
		GameID:         gameID,
		WagerAmount:    300,
		WinAmount:      600,
		BalanceType:    entities.BalanceTypeReal,
		OperatorID:     "op-eu",
		IdempotencyKey: key,
	}
}

func strPtr(s string) *string { return &s }

func TestSettlementRepository_Create(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewSettlementRepository(testDB.DB)
	ctx := context.Background()

	userID := testutil.SeedUser(t, testDB.DB, "alice", 100000, 0)
	gameID := testutil.SeedGame(t, testDB.DB, "slots", 100, 100000)

	settlement := settlementFor(userID, gameID, strPtr("round-1"))
	require.NoError(t, repo.Create(ctx, settlement))

	assert.NotZero(t, settlement.ID)
	assert.False(t, settlement.CreatedAt.IsZero())
}

func TestSettlementRepository_IdempotencyKeyUnique(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewSettlementRepository(testDB.DB)
	ctx := context.Background()

	userID := testutil.SeedUser(t, testDB.DB, "alice", 100000, 0)
	gameID := testutil.SeedGame(t, testDB.DB, "slots", 100, 100000)

	require.NoError(t, repo.Create(ctx, settlementFor(userID, gameID, strPtr("round-dup"))))

	err := repo.Create(ctx, settlementFor(userID, gameID, strPtr("round-dup")))
	require.Error(t, err)

	var pgErr *pgconn.PgError
	require.True(t, errors.As(err, &pgErr))
	assert.Equal(t, "23505", pgErr.Code)

	t.Run("null keys do not collide", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, settlementFor(userID, gameID, nil)))
		require.NoError(t, repo.Create(ctx, settlementFor(userID, gameID, nil)))
	})
}

func TestSettlementRepository_GetByIdempotencyKey(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewSettlementRepository(testDB.DB)
	ctx := context.Background()

	userID := testutil.SeedUser(t, testDB.DB, "alice", 100000, 0)
	gameID := testutil.SeedGame(t, testDB.DB, "slots", 100, 100000)

	created := settlementFor(userID, gameID, strPtr("round-42"))
	require.NoError(t, repo.Create(ctx, created))

	t.Run("found", func(t *testing.T) {
		settlement, err := repo.GetByIdempotencyKey(ctx, "round-42")
		require.NoError(t, err)
		require.NotNil(t, settlement)

		assert.Equal(t, created.ID, settlement.ID)
		assert.Equal(t, int64(300), settlement.WagerAmount)
		assert.Equal(t, int64(600), settlement.WinAmount)
		assert.Equal(t, entities.BalanceTypeReal, settlement.BalanceType)
		assert.Equal(t, "op-eu", settlement.OperatorID)
		require.NotNil(t, settlement.IdempotencyKey)
		assert.Equal(t, "round-42", *settlement.IdempotencyKey)
	})

	t.Run("missing", func(t *testing.T) {
		settlement, err := repo.GetByIdempotencyKey(ctx, "never-seen")
		require.NoError(t, err)
		assert.Nil(t, settlement)
	})
}

func TestSettlementRepository_GetByUser(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewSettlementRepository(testDB.DB)
	ctx := context.Background()

	userID := testutil.SeedUser(t, testDB.DB, "alice", 100000, 0)
	otherID := testutil.SeedUser(t, testDB.DB, "bob", 100000, 0)
	gameID := testutil.SeedGame(t, testDB.DB, "slots", 100, 100000)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, settlementFor(userID, gameID, nil)))
	}
	require.NoError(t, repo.Create(ctx, settlementFor(otherID, gameID, nil)))

	settlements, err := repo.GetByUser(ctx, userID, 3)
	require.NoError(t, err)
	require.Len(t, settlements, 3)

	for _, s := range settlements {
		assert.Equal(t, userID, s.UserID)
	}
	// Newest first
	assert.False(t, settlements[0].CreatedAt.Before(settlements[1].CreatedAt))
	assert.False(t, settlements[1].CreatedAt.Before(settlements[2].CreatedAt))
}
