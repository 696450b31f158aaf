package application

import (
	"context"
	"testing"
	"time"

	"jackpotd/cache"
	"jackpotd/domain/entities"
	"jackpotd/domain/errs"
	"jackpotd/domain/events"
	"jackpotd/domain/testhelpers"
	"jackpotd/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func minimalPools() map[entities.PoolGroup]entities.PoolConfig {
	return map[entities.PoolGroup]entities.PoolConfig{
		entities.PoolGroupMinor: {Group: entities.PoolGroupMinor, SeedAmount: 1000, ContributionRateBps: 50},
	}
}

// noStoragePools configures a tier with a zero rate so queue items
// complete without touching any database target.
func noStoragePools() map[entities.PoolGroup]entities.PoolConfig {
	return map[entities.PoolGroup]entities.PoolConfig{
		entities.PoolGroupMinor: {Group: entities.PoolGroupMinor, SeedAmount: 1000, ContributionRateBps: 0},
	}
}

func newTestService(t *testing.T, cfg JackpotServiceConfig) *JackpotService {
	t.Helper()
	executor := pipeline.NewExecutorGroup(pipeline.StrategyRoundRobin, pipeline.NewRetryEngine())
	service, err := NewJackpotService(cfg, executor,
		cache.NewPoolCache(nil, time.Minute, time.Hour), nil, events.NewBus())
	require.NoError(t, err)
	return service
}

func TestNewJackpotService_ConfigValidation(t *testing.T) {
	executor := pipeline.NewExecutorGroup(pipeline.StrategyRoundRobin, pipeline.NewRetryEngine())
	poolCache := cache.NewPoolCache(nil, time.Minute, time.Hour)
	bus := events.NewBus()

	cases := []struct {
		name  string
		pools map[entities.PoolGroup]entities.PoolConfig
	}{
		{"no pools", nil},
		{"unknown group", map[entities.PoolGroup]entities.PoolConfig{
			"platinum": {SeedAmount: 100},
		}},
		{"negative seed", map[entities.PoolGroup]entities.PoolConfig{
			entities.PoolGroupMinor: {SeedAmount: -1},
		}},
		{"negative rate", map[entities.PoolGroup]entities.PoolConfig{
			entities.PoolGroupMinor: {ContributionRateBps: -5},
		}},
		{"max below seed", map[entities.PoolGroup]entities.PoolConfig{
			entities.PoolGroupMinor: {SeedAmount: 5000, MaxAmount: 1000},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewJackpotService(JackpotServiceConfig{Pools: tc.pools}, executor, poolCache, nil, bus)
			assert.Error(t, err)
		})
	}
}

func TestNewJackpotService_AppliesDefaults(t *testing.T) {
	service := newTestService(t, JackpotServiceConfig{Pools: minimalPools()})

	assert.Equal(t, 10000, service.cfg.QueueMaxSize)
	assert.Equal(t, 3, service.cfg.ContributionMaxAttempts)
	assert.Equal(t, 5, service.cfg.WinMaxAttempts)
	assert.Equal(t, 100*time.Millisecond, service.cfg.PumpInterval)
	assert.Equal(t, 600, service.cfg.ContributionLimit.RequestsPerMinute)
	assert.Equal(t, 120, service.cfg.WinLimit.RequestsPerMinute)
}

func TestEnqueueContribution_Validation(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t, JackpotServiceConfig{Pools: minimalPools()})

	cases := []struct {
		name           string
		gameID, userID int64
		wager          int64
	}{
		{"zero game", 0, 1, 100},
		{"zero user", 1, 0, 100},
		{"zero wager", 1, 1, 0},
		{"negative wager", 1, 1, -50},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.EnqueueContribution(ctx, tc.gameID, tc.userID, tc.wager, 0)
			assert.True(t, errs.IsValidation(err), "got %v", err)
		})
	}
	assert.Equal(t, 0, service.queue.Size())
}

func TestEnqueueContribution_RateLimited(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t, JackpotServiceConfig{
		Pools:             minimalPools(),
		ContributionLimit: pipeline.RateLimiterConfig{RequestsPerMinute: 1, BurstLimit: 1},
	})

	_, err := service.EnqueueContribution(ctx, 1, 1, 1000, 0)
	require.NoError(t, err)

	_, err = service.EnqueueContribution(ctx, 1, 1, 1000, 0)
	var limited *errs.RateLimitedError
	require.ErrorAs(t, err, &limited)
	assert.Equal(t, "contribution", limited.Operation)
	assert.False(t, limited.RetryAfter.IsZero())
}

func TestEnqueueContribution_QueueFull(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t, JackpotServiceConfig{
		Pools:             minimalPools(),
		QueueMaxSize:      1,
		ContributionLimit: pipeline.RateLimiterConfig{RequestsPerMinute: 1, BurstLimit: 5},
	})

	_, err := service.EnqueueContribution(ctx, 1, 1, 1000, 0)
	require.NoError(t, err)

	_, err = service.EnqueueContribution(ctx, 1, 2, 1000, 0)
	var full *errs.QueueFullError
	require.ErrorAs(t, err, &full)
	assert.Equal(t, 1, full.Capacity)
}

func TestEnqueueContribution_ClampsPriority(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t, JackpotServiceConfig{Pools: noStoragePools()})

	_, err := service.EnqueueContribution(ctx, 1, 1, 1000, 99)
	require.NoError(t, err)
	_, err = service.EnqueueContribution(ctx, 1, 2, 1000, -7)
	require.NoError(t, err)

	var priorities []int
	service.queue.ProcessAll(ctx, func(_ context.Context, item *pipeline.QueueItem) error {
		priorities = append(priorities, item.Priority)
		return nil
	}, 1, 10)

	assert.Equal(t, []int{pipeline.PriorityContributionMax, pipeline.PriorityContributionMin}, priorities)
}

func TestEnqueueWin_Validation(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t, JackpotServiceConfig{Pools: minimalPools()})

	_, err := service.EnqueueWin(ctx, "colossal", 1, 100)
	assert.True(t, errs.IsValidation(err), "got %v", err)

	_, err = service.EnqueueWin(ctx, entities.PoolGroupMega, 0, 100)
	assert.True(t, errs.IsValidation(err), "got %v", err)

	_, err = service.EnqueueWin(ctx, entities.PoolGroupMega, 1, 0)
	assert.True(t, errs.IsValidation(err), "got %v", err)
}

func TestEnqueueWin_RateLimited(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t, JackpotServiceConfig{
		Pools:    minimalPools(),
		WinLimit: pipeline.RateLimiterConfig{RequestsPerMinute: 1, BurstLimit: 1},
	})

	_, err := service.EnqueueWin(ctx, entities.PoolGroupMinor, 1, 100)
	require.NoError(t, err)

	_, err = service.EnqueueWin(ctx, entities.PoolGroupMinor, 2, 100)
	var limited *errs.RateLimitedError
	require.ErrorAs(t, err, &limited)
	assert.Equal(t, "win", limited.Operation)
}

func TestEnqueueWin_PreemptsContributions(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t, JackpotServiceConfig{Pools: noStoragePools()})

	_, err := service.EnqueueContribution(ctx, 1, 1, 1000, pipeline.PriorityContributionMax)
	require.NoError(t, err)
	winID, err := service.EnqueueWin(ctx, entities.PoolGroupMinor, 2, 5000)
	require.NoError(t, err)

	var firstID string
	var firstPriority int
	service.queue.ProcessAll(ctx, func(_ context.Context, item *pipeline.QueueItem) error {
		if firstID == "" {
			firstID = item.ID
			firstPriority = item.Priority
		}
		// Win payouts need storage; succeed them here to drain the queue
		return nil
	}, 1, 10)

	assert.Equal(t, winID, firstID)
	assert.Equal(t, pipeline.PriorityWin, firstPriority)
}

func TestHandleItem_UnknownPayloadDeadLetters(t *testing.T) {
	ctx := context.Background()
	executor := pipeline.NewExecutorGroup(pipeline.StrategyRoundRobin, pipeline.NewRetryEngine())
	dlq := new(testhelpers.MockDeadLetterSink)
	dlq.On("Publish", mock.Anything, "item-1", mock.Anything).Return(nil)

	service, err := NewJackpotService(JackpotServiceConfig{Pools: minimalPools()}, executor,
		cache.NewPoolCache(nil, time.Minute, time.Hour), dlq, events.NewBus())
	require.NoError(t, err)

	item := &pipeline.QueueItem{ID: "item-1", Payload: "not a job", Attempts: 1}
	err = service.handleItem(ctx, item)

	// Terminal failures are consumed so the queue does not retry them
	require.NoError(t, err)
	dlq.AssertExpectations(t)
}

func TestHandleItem_NoHealthyTargetsIsRetryable(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t, JackpotServiceConfig{Pools: minimalPools()})

	// Pools carry a real rate but the executor has no targets; the
	// failure must surface for queue-level retry, not dead letter
	err := service.handleItem(ctx, &pipeline.QueueItem{
		ID:      "item-2",
		Payload: &contributionJob{GameID: 1, UserID: 1, WagerAmount: 1000},
	})

	var unhealthy *errs.NoHealthyTargetsError
	require.ErrorAs(t, err, &unhealthy)
}

func TestGetPoolStats_ServedFromCache(t *testing.T) {
	ctx := context.Background()
	pools := map[entities.PoolGroup]entities.PoolConfig{
		entities.PoolGroupMinor: {Group: entities.PoolGroupMinor, SeedAmount: 1000, MaxAmount: 100000, ContributionRateBps: 50},
	}
	service := newTestService(t, JackpotServiceConfig{Pools: pools})

	service.poolCache.SetPools(ctx, []*entities.JackpotPool{{
		ID:         1,
		Group:      entities.PoolGroupMinor,
		Amount:     50000,
		SeedAmount: 1000,
		MaxAmount:  100000,
	}})

	stats, err := service.GetPoolStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, entities.PoolGroupMinor, stats[0].Group)
	assert.Equal(t, int64(50000), stats[0].Amount)
	assert.Equal(t, int64(50), stats[0].ContributionRateBps)
	assert.InDelta(t, 50.0, stats[0].FillPercent, 0.001)
}

func TestGetPools_MissWithNoTargetsFails(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t, JackpotServiceConfig{Pools: minimalPools()})

	_, err := service.GetPools(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load pools")
}

func TestGetHealthStatus_NoTargets(t *testing.T) {
	service := newTestService(t, JackpotServiceConfig{Pools: minimalPools()})

	status := service.GetHealthStatus()
	assert.False(t, status.Healthy)
	assert.Equal(t, 0, status.QueueDepth)
	assert.Empty(t, status.Targets)
	assert.Empty(t, status.Adapters)
}

func TestStart_PumpDrainsQueue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	service := newTestService(t, JackpotServiceConfig{
		Pools:        noStoragePools(),
		PumpInterval: 10 * time.Millisecond,
	})

	_, err := service.EnqueueContribution(ctx, 1, 1, 1000, 0)
	require.NoError(t, err)

	stop := service.Start(ctx)
	defer stop()

	require.Eventually(t, func() bool {
		return service.QueueMetrics().Processed == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, service.queue.Size())
}
