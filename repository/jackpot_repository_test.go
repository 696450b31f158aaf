package repository

import (
	"context"
	"sync"
	"testing"

	"jackpotd/domain/entities"
	"jackpotd/repository/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJackpotRepository_GetByGroup(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewJackpotRepository(testDB.DB)
	ctx := context.Background()

	t.Run("seeded tier", func(t *testing.T) {
		pool, err := repo.GetByGroup(ctx, entities.PoolGroupMinor)
		require.NoError(t, err)
		require.NotNil(t, pool)

		assert.Equal(t, entities.PoolGroupMinor, pool.Group)
		assert.Equal(t, int64(100000), pool.Amount)
		assert.Equal(t, int64(100000), pool.SeedAmount)
		assert.Equal(t, int64(10000000), pool.MaxAmount)
	})

	t.Run("unknown tier", func(t *testing.T) {
		pool, err := repo.GetByGroup(ctx, entities.PoolGroup("colossal"))
		require.NoError(t, err)
		assert.Nil(t, pool)
	})
}

func TestJackpotRepository_GetAll(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewJackpotRepository(testDB.DB)

	pools, err := repo.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, pools, 3)

	// Ascending tier order
	assert.Equal(t, entities.PoolGroupMinor, pools[0].Group)
	assert.Equal(t, entities.PoolGroupMajor, pools[1].Group)
	assert.Equal(t, entities.PoolGroupMega, pools[2].Group)
}

func TestJackpotRepository_AddContribution(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewJackpotRepository(testDB.DB)
	ctx := context.Background()

	minor, err := repo.GetByGroup(ctx, entities.PoolGroupMinor)
	require.NoError(t, err)

	t.Run("accumulates", func(t *testing.T) {
		added, total, err := repo.AddContribution(ctx, minor.ID, 500)
		require.NoError(t, err)
		assert.Equal(t, int64(500), added)
		assert.Equal(t, int64(100500), total)

		after, err := repo.GetByGroup(ctx, entities.PoolGroupMinor)
		require.NoError(t, err)
		assert.Equal(t, int64(500), after.TotalContributions)
	})

	t.Run("clamps at cap", func(t *testing.T) {
		require.NoError(t, repo.SetAmount(ctx, minor.ID, 9999900))

		added, total, err := repo.AddContribution(ctx, minor.ID, 500)
		require.NoError(t, err)
		assert.Equal(t, int64(100), added)
		assert.Equal(t, int64(10000000), total)

		// The lifetime counter only advances by what the pool took
		after, err := repo.GetByGroup(ctx, entities.PoolGroupMinor)
		require.NoError(t, err)
		assert.Equal(t, int64(600), after.TotalContributions)
	})

	t.Run("full pool takes nothing", func(t *testing.T) {
		added, total, err := repo.AddContribution(ctx, minor.ID, 500)
		require.NoError(t, err)
		assert.Equal(t, int64(0), added)
		assert.Equal(t, int64(10000000), total)
	})

	t.Run("uncapped pool takes everything", func(t *testing.T) {
		mega, err := repo.GetByGroup(ctx, entities.PoolGroupMega)
		require.NoError(t, err)

		added, total, err := repo.AddContribution(ctx, mega.ID, 123456)
		require.NoError(t, err)
		assert.Equal(t, int64(123456), added)
		assert.Equal(t, mega.Amount+123456, total)
	})

	t.Run("zero contribution is a no-op", func(t *testing.T) {
		mega, err := repo.GetByGroup(ctx, entities.PoolGroupMega)
		require.NoError(t, err)

		added, total, err := repo.AddContribution(ctx, mega.ID, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(0), added)
		assert.Equal(t, mega.Amount, total)
	})

	t.Run("negative contribution rejected", func(t *testing.T) {
		_, _, err := repo.AddContribution(ctx, minor.ID, -1)
		assert.Error(t, err)
	})

	t.Run("missing pool", func(t *testing.T) {
		_, _, err := repo.AddContribution(ctx, 999999, 100)
		assert.Error(t, err)
	})
}

// Concurrent contributions must never lose an update: the statement
// locks the row, reads the pre-image, and writes in one round trip.
func TestJackpotRepository_AddContribution_Concurrent(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewJackpotRepository(testDB.DB)
	ctx := context.Background()

	major, err := repo.GetByGroup(ctx, entities.PoolGroupMajor)
	require.NoError(t, err)

	const workers = 20
	const perWorker = int64(1000)

	var wg sync.WaitGroup
	deltas := make([]int64, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			added, _, err := repo.AddContribution(ctx, major.ID, perWorker)
			deltas[i] = added
			errs[i] = err
		}(i)
	}
	wg.Wait()

	var sum int64
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		sum += deltas[i]
	}
	assert.Equal(t, int64(workers)*perWorker, sum)

	after, err := repo.GetByGroup(ctx, entities.PoolGroupMajor)
	require.NoError(t, err)
	assert.Equal(t, major.Amount+int64(workers)*perWorker, after.Amount)
}

func TestJackpotRepository_SetAmount(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewJackpotRepository(testDB.DB)
	ctx := context.Background()

	minor, err := repo.GetByGroup(ctx, entities.PoolGroupMinor)
	require.NoError(t, err)

	require.NoError(t, repo.SetAmount(ctx, minor.ID, minor.SeedAmount))

	after, err := repo.GetByGroup(ctx, entities.PoolGroupMinor)
	require.NoError(t, err)
	assert.Equal(t, minor.SeedAmount, after.Amount)

	assert.Error(t, repo.SetAmount(ctx, 999999, 100))
}

func TestJackpotRepository_ResetAfterWin(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewJackpotRepository(testDB.DB)
	ctx := context.Background()

	userID := testutil.SeedUser(t, testDB.DB, "hitter", 0, 0)
	minor, err := repo.GetByGroup(ctx, entities.PoolGroupMinor)
	require.NoError(t, err)

	_, _, err = repo.AddContribution(ctx, minor.ID, 7500)
	require.NoError(t, err)

	require.NoError(t, repo.ResetAfterWin(ctx, minor.ID, minor.SeedAmount, userID))

	after, err := repo.GetByGroup(ctx, entities.PoolGroupMinor)
	require.NoError(t, err)
	assert.Equal(t, minor.SeedAmount, after.Amount)
	require.NotNil(t, after.LastWonByUserID)
	assert.Equal(t, userID, *after.LastWonByUserID)
	// Reseeding never erases lifetime contributions
	assert.Equal(t, int64(7500), after.TotalContributions)

	assert.Error(t, repo.ResetAfterWin(ctx, 999999, 100, userID))
}

func TestJackpotRepository_RecordWin(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewJackpotRepository(testDB.DB)
	ctx := context.Background()

	userID := testutil.SeedUser(t, testDB.DB, "winner", 0, 0)
	minor, err := repo.GetByGroup(ctx, entities.PoolGroupMinor)
	require.NoError(t, err)

	win := &entities.JackpotWin{
		PoolID: minor.ID,
		Group:  entities.PoolGroupMinor,
		UserID: userID,
		Amount: 100000,
	}
	require.NoError(t, repo.RecordWin(ctx, win))

	assert.NotZero(t, win.ID)
	assert.False(t, win.CreatedAt.IsZero())
}
