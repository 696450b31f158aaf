package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"jackpotd/cache"
	"jackpotd/domain/entities"
	"jackpotd/domain/events"
	"jackpotd/domain/testhelpers"
	"jackpotd/pipeline"
	"jackpotd/repository"
	"jackpotd/repository/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// seededPools mirrors the tiers the schema migration inserts.
func seededPools() map[entities.PoolGroup]entities.PoolConfig {
	return map[entities.PoolGroup]entities.PoolConfig{
		entities.PoolGroupMinor: {Group: entities.PoolGroupMinor, SeedAmount: 100000, MaxAmount: 10000000, ContributionRateBps: 50},
		entities.PoolGroupMajor: {Group: entities.PoolGroupMajor, SeedAmount: 1000000, MaxAmount: 100000000, ContributionRateBps: 30},
		entities.PoolGroupMega:  {Group: entities.PoolGroupMega, SeedAmount: 10000000, ContributionRateBps: 20},
	}
}

type integrationFixture struct {
	db      *testutil.TestDatabase
	service *JackpotService
	dlq     *testhelpers.MockDeadLetterSink
	bus     *events.Bus
}

func newIntegrationFixture(t *testing.T) *integrationFixture {
	t.Helper()
	testDB := testutil.SetupTestDatabase(t)

	executor := pipeline.NewExecutorGroup(pipeline.StrategyRoundRobin, pipeline.NewRetryEngine())
	executor.AddTarget("primary", testDB.DB, pipeline.TierMedium, 1)

	dlq := new(testhelpers.MockDeadLetterSink)
	bus := events.NewBus()
	service, err := NewJackpotService(JackpotServiceConfig{Pools: seededPools()}, executor,
		cache.NewPoolCache(nil, time.Minute, time.Hour), dlq, bus)
	require.NoError(t, err)

	return &integrationFixture{db: testDB, service: service, dlq: dlq, bus: bus}
}

func (f *integrationFixture) drain(t *testing.T) int {
	t.Helper()
	return f.service.queue.ProcessAll(context.Background(), f.service.handleItem, 1, 10)
}

func TestContributionFlow(t *testing.T) {
	t.Parallel()
	f := newIntegrationFixture(t)
	ctx := context.Background()

	userID := testutil.SeedUser(t, f.db.DB, "alice", 100000, 0)

	_, err := f.service.EnqueueContribution(ctx, 10, userID, 100000, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, f.drain(t))

	pools, err := repository.NewJackpotRepository(f.db.DB).GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, pools, 3)

	// 50/30/20 bps of a 100000 wager
	assert.Equal(t, int64(100500), pools[0].Amount)
	assert.Equal(t, int64(1000300), pools[1].Amount)
	assert.Equal(t, int64(10000200), pools[2].Amount)

	metrics := f.service.QueueMetrics()
	assert.Equal(t, uint64(1), metrics.Processed)
	assert.Equal(t, uint64(0), metrics.TerminalFailures)
}

func TestContributionFlow_BelowRateThresholdIsNoOp(t *testing.T) {
	t.Parallel()
	f := newIntegrationFixture(t)
	ctx := context.Background()

	// 100 * 50bps truncates to 0 for every tier
	_, err := f.service.EnqueueContribution(ctx, 10, 1, 100, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, f.drain(t))

	pools, err := repository.NewJackpotRepository(f.db.DB).GetAll(ctx)
	require.NoError(t, err)
	for _, pool := range pools {
		assert.Equal(t, pool.SeedAmount, pool.Amount)
	}
}

func TestWinFlow_PaysOutAndReducesPool(t *testing.T) {
	t.Parallel()
	f := newIntegrationFixture(t)
	ctx := context.Background()

	userID := testutil.SeedUser(t, f.db.DB, "winner", 5000, 0)

	jackpots := repository.NewJackpotRepository(f.db.DB)
	minor, err := jackpots.GetByGroup(ctx, entities.PoolGroupMinor)
	require.NoError(t, err)
	require.NoError(t, jackpots.SetAmount(ctx, minor.ID, 500000))

	var wonMu sync.Mutex
	var won []events.JackpotWonEvent
	wonSeen := make(chan struct{}, 1)
	f.bus.Subscribe(events.EventTypeJackpotWon, func(_ context.Context, e events.Event) {
		wonMu.Lock()
		won = append(won, e.(events.JackpotWonEvent))
		wonMu.Unlock()
		wonSeen <- struct{}{}
	})

	_, err = f.service.EnqueueWin(ctx, entities.PoolGroupMinor, userID, 60000)
	require.NoError(t, err)
	assert.Equal(t, 1, f.drain(t))

	after, err := jackpots.GetByGroup(ctx, entities.PoolGroupMinor)
	require.NoError(t, err)
	assert.Equal(t, int64(440000), after.Amount)
	require.NotNil(t, after.LastWonByUserID)
	assert.Equal(t, userID, *after.LastWonByUserID)

	real, bonus := testutil.GetBalances(t, f.db.DB, userID)
	assert.Equal(t, int64(65000), real)
	assert.Equal(t, int64(0), bonus)

	history, err := repository.NewBalanceHistoryRepository(f.db.DB).GetByUser(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, entities.TransactionTypeJackpotWin, history[0].TransactionType)
	assert.Equal(t, int64(60000), history[0].ChangeAmount)
	assert.Equal(t, "minor", history[0].TransactionMetadata["pool_group"])
	assert.Equal(t, float64(500000), history[0].TransactionMetadata["pool_amount_before"])
	assert.Equal(t, float64(440000), history[0].TransactionMetadata["pool_amount_after"])
	require.NotNil(t, history[0].RelatedID)

	select {
	case <-wonSeen:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for jackpot won event")
	}
	wonMu.Lock()
	defer wonMu.Unlock()
	require.Len(t, won, 1)
	assert.Equal(t, userID, won[0].UserID)
	assert.Equal(t, int64(60000), won[0].Amount)
	assert.Equal(t, int64(440000), won[0].NewAmount)
}

func TestWinFlow_PoolNeverDropsBelowSeed(t *testing.T) {
	t.Parallel()
	f := newIntegrationFixture(t)
	ctx := context.Background()

	userID := testutil.SeedUser(t, f.db.DB, "winner", 0, 0)

	// Claim the entire seeded pool; the reseed floor keeps the pool at
	// its seed amount for the next cycle
	_, err := f.service.EnqueueWin(ctx, entities.PoolGroupMinor, userID, 100000)
	require.NoError(t, err)
	assert.Equal(t, 1, f.drain(t))

	minor, err := repository.NewJackpotRepository(f.db.DB).GetByGroup(ctx, entities.PoolGroupMinor)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), minor.Amount)

	real, _ := testutil.GetBalances(t, f.db.DB, userID)
	assert.Equal(t, int64(100000), real)
}

func TestWinFlow_OverclaimDeadLetters(t *testing.T) {
	t.Parallel()
	f := newIntegrationFixture(t)
	ctx := context.Background()

	userID := testutil.SeedUser(t, f.db.DB, "greedy", 5000, 0)
	f.dlq.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	_, err := f.service.EnqueueWin(ctx, entities.PoolGroupMinor, userID, 100001)
	require.NoError(t, err)
	assert.Equal(t, 1, f.drain(t))

	// Nothing paid, nothing reduced
	minor, err := repository.NewJackpotRepository(f.db.DB).GetByGroup(ctx, entities.PoolGroupMinor)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), minor.Amount)

	real, _ := testutil.GetBalances(t, f.db.DB, userID)
	assert.Equal(t, int64(5000), real)

	assert.Equal(t, uint64(1), f.service.QueueMetrics().TerminalFailures)
	f.dlq.AssertCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestWinFlow_MissingBalanceDeadLetters(t *testing.T) {
	t.Parallel()
	f := newIntegrationFixture(t)
	ctx := context.Background()

	// User row exists but has no balance row
	var userID int64
	err := f.db.DB.QueryRow(ctx, `INSERT INTO users (username) VALUES ('ghost') RETURNING id`).Scan(&userID)
	require.NoError(t, err)

	f.dlq.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	_, err = f.service.EnqueueWin(ctx, entities.PoolGroupMinor, userID, 50000)
	require.NoError(t, err)
	assert.Equal(t, 1, f.drain(t))

	minor, err := repository.NewJackpotRepository(f.db.DB).GetByGroup(ctx, entities.PoolGroupMinor)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), minor.Amount, "rolled back with the failed credit")
	assert.Equal(t, uint64(1), f.service.QueueMetrics().TerminalFailures)
}

func TestGetPools_LoadsThroughExecutor(t *testing.T) {
	t.Parallel()
	f := newIntegrationFixture(t)
	ctx := context.Background()

	pools, err := f.service.GetPools(ctx)
	require.NoError(t, err)
	require.Len(t, pools, 3)
	assert.Equal(t, entities.PoolGroupMinor, pools[0].Group)

	stats, err := f.service.GetPoolStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 3)
}

func TestHealthStatus_WithLiveTarget(t *testing.T) {
	t.Parallel()
	f := newIntegrationFixture(t)

	status := f.service.GetHealthStatus()
	assert.True(t, status.Healthy)
	require.Len(t, status.Targets, 1)
	assert.Equal(t, "primary", status.Targets[0].Name)
}
