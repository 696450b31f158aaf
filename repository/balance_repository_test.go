package repository

import (
	"context"
	"sync"
	"testing"

	"jackpotd/domain/events"
	"jackpotd/repository/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalanceRepository_GetByUserID(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewBalanceRepository(testDB.DB)
	ctx := context.Background()

	t.Run("missing user", func(t *testing.T) {
		balance, err := repo.GetByUserID(ctx, 999999)
		require.NoError(t, err)
		assert.Nil(t, balance)
	})

	t.Run("seeded user", func(t *testing.T) {
		userID := testutil.SeedUser(t, testDB.DB, "alice", 100000, 50000)

		balance, err := repo.GetByUserID(ctx, userID)
		require.NoError(t, err)
		require.NotNil(t, balance)

		assert.Equal(t, userID, balance.UserID)
		assert.Equal(t, int64(100000), balance.RealBalance)
		assert.Equal(t, int64(50000), balance.BonusBalance)
		assert.Equal(t, int64(150000), balance.Total())
	})
}

func TestBalanceRepository_Update(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewBalanceRepository(testDB.DB)
	ctx := context.Background()

	userID := testutil.SeedUser(t, testDB.DB, "bob", 100000, 50000)

	balance, err := repo.GetByUserID(ctx, userID)
	require.NoError(t, err)

	balance.RealBalance = 90000
	balance.BonusBalance = 60000
	require.NoError(t, repo.Update(ctx, balance))

	real, bonus := testutil.GetBalances(t, testDB.DB, userID)
	assert.Equal(t, int64(90000), real)
	assert.Equal(t, int64(60000), bonus)

	t.Run("missing row", func(t *testing.T) {
		missing := *balance
		missing.UserID = 999999
		assert.Error(t, repo.Update(ctx, &missing))
	})
}

// Two transactions read-modify-write the same balance row. Without the
// row lock one increment would be lost; with GetByUserIDForUpdate the
// second transaction blocks until the first commits and sees its write.
func TestBalanceRepository_ForUpdateSerializesWriters(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	ctx := context.Background()
	userID := testutil.SeedUser(t, testDB.DB, "carol", 100000, 0)

	factory := NewUnitOfWorkFactory(testDB.DB, events.NewBus())

	const workers = 8
	const increment = int64(1000)

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = func() error {
				uow := factory.Create()
				if err := uow.Begin(ctx); err != nil {
					return err
				}
				defer func() { _ = uow.Rollback() }()

				balance, err := uow.BalanceRepository().GetByUserIDForUpdate(ctx, userID)
				if err != nil {
					return err
				}
				balance.RealBalance += increment
				if err := uow.BalanceRepository().Update(ctx, balance); err != nil {
					return err
				}
				return uow.Commit()
			}()
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
	}

	real, _ := testutil.GetBalances(t, testDB.DB, userID)
	assert.Equal(t, int64(100000)+int64(workers)*increment, real)
}
