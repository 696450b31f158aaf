package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"jackpotd/domain/errs"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func fixedRandEngine(v float64) *RetryEngine {
	return &RetryEngine{randFloat: func() float64 { return v }}
}

func TestRetryEngine_CalculateDelay_Exponential(t *testing.T) {
	engine := NewRetryEngine()
	policy := RetryPolicy{
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  5 * time.Second,
		Strategy:  RetryStrategyExponential,
	}

	assert.Equal(t, 100*time.Millisecond, engine.CalculateDelay(1, 0, policy))
	assert.Equal(t, 200*time.Millisecond, engine.CalculateDelay(2, 0, policy))
	assert.Equal(t, 400*time.Millisecond, engine.CalculateDelay(3, 0, policy))
	assert.Equal(t, 3200*time.Millisecond, engine.CalculateDelay(6, 0, policy))
	// Capped past the max
	assert.Equal(t, 5*time.Second, engine.CalculateDelay(10, 0, policy))
	assert.Equal(t, 5*time.Second, engine.CalculateDelay(100, 0, policy))
}

func TestRetryEngine_CalculateDelay_Linear(t *testing.T) {
	engine := NewRetryEngine()
	policy := RetryPolicy{
		BaseDelay: 50 * time.Millisecond,
		MaxDelay:  200 * time.Millisecond,
		Strategy:  RetryStrategyLinear,
	}

	assert.Equal(t, 50*time.Millisecond, engine.CalculateDelay(1, 0, policy))
	assert.Equal(t, 100*time.Millisecond, engine.CalculateDelay(2, 0, policy))
	assert.Equal(t, 150*time.Millisecond, engine.CalculateDelay(3, 0, policy))
	assert.Equal(t, 200*time.Millisecond, engine.CalculateDelay(4, 0, policy))
	assert.Equal(t, 200*time.Millisecond, engine.CalculateDelay(9, 0, policy))
}

func TestRetryEngine_CalculateDelay_ExponentialJitter(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Strategy:     RetryStrategyExponentialJitter,
		JitterFactor: 0.25,
	}

	// randFloat 1.0 pushes jitter to +factor, 0.0 to -factor
	high := fixedRandEngine(1.0).CalculateDelay(3, 0, policy)
	low := fixedRandEngine(0.0).CalculateDelay(3, 0, policy)
	mid := fixedRandEngine(0.5).CalculateDelay(3, 0, policy)

	assert.Equal(t, 500*time.Millisecond, high) // 400ms + 25%
	assert.Equal(t, 300*time.Millisecond, low)  // 400ms - 25%
	assert.Equal(t, 400*time.Millisecond, mid)  // no jitter at midpoint

	// Delay never drops below half the base regardless of jitter
	tiny := RetryPolicy{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Strategy:     RetryStrategyExponentialJitter,
		JitterFactor: 1.0,
	}
	assert.Equal(t, 50*time.Millisecond, fixedRandEngine(0.0).CalculateDelay(1, 0, tiny))
}

func TestRetryEngine_CalculateDelay_Decorrelated(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  5 * time.Second,
		Strategy:  RetryStrategyDecorrelated,
	}

	// randFloat 0 draws the smallest decorrelated delay; the base floor
	// still applies
	assert.Equal(t, 100*time.Millisecond,
		fixedRandEngine(0.0).CalculateDelay(3, 200*time.Millisecond, policy))

	// randFloat 1 draws 3x the previous delay but never beyond the
	// exponential curve for the attempt
	got := fixedRandEngine(1.0).CalculateDelay(3, 200*time.Millisecond, policy)
	assert.Equal(t, 400*time.Millisecond, got) // min(400ms exp, 600ms draw)

	// Zero previous delay falls back to the base
	got = fixedRandEngine(1.0).CalculateDelay(1, 0, policy)
	assert.Equal(t, 100*time.Millisecond, got) // min(100ms exp, 300ms draw)
}

func TestRetryEngine_DelayFor_DeadlockFloor(t *testing.T) {
	engine := NewRetryEngine()
	policy := RetryPolicy{
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  30 * time.Second,
		Strategy:  RetryStrategyExponential,
	}

	deadlock := &pgconn.PgError{Code: "40P01"}

	// 5x base is under the two-second floor, so the floor wins
	assert.Equal(t, 2*time.Second, engine.DelayFor(deadlock, 1, 0, policy))

	// With a larger base the 5x minimum takes over
	bigBase := policy
	bigBase.BaseDelay = 800 * time.Millisecond
	assert.Equal(t, 4*time.Second, engine.DelayFor(deadlock, 1, 0, bigBase))

	// Non-deadlock failures keep the plain strategy delay
	assert.Equal(t, 100*time.Millisecond,
		engine.DelayFor(errors.New("connection reset"), 1, 0, policy))
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, CategoryTerminal},
		{"validation error", errs.NewValidationError("amount", "must be positive"), CategoryTerminal},
		{"insufficient balance", &errs.InsufficientBalanceError{UserID: 1}, CategoryTerminal},
		{"duplicate settlement", &errs.DuplicateSettlementError{IdempotencyKey: "k"}, CategoryTerminal},
		{"deadline exceeded", context.DeadlineExceeded, CategoryTimeout},
		{"wrapped deadline", fmt.Errorf("query failed: %w", context.DeadlineExceeded), CategoryTimeout},
		{"pg serialization", &pgconn.PgError{Code: "40001"}, CategorySerialization},
		{"pg deadlock", &pgconn.PgError{Code: "40P01"}, CategoryDeadlock},
		{"pg lock timeout", &pgconn.PgError{Code: "55P03"}, CategoryLockTimeout},
		{"pg statement timeout", &pgconn.PgError{Code: "57014"}, CategoryTimeout},
		{"pg connection exception", &pgconn.PgError{Code: "08006"}, CategoryConnectionLoss},
		{"deadlock message", errors.New("deadlock detected"), CategoryDeadlock},
		{"serialization message", errors.New("could not serialize access: serialization failure"), CategorySerialization},
		{"version conflict message", errors.New("version conflict on pool row"), CategoryVersionConflict},
		{"optimistic lock message", errors.New("optimistic lock failed"), CategoryVersionConflict},
		{"lock timeout message", errors.New("lock timeout while acquiring row"), CategoryLockTimeout},
		{"timeout message", errors.New("i/o timeout"), CategoryTimeout},
		{"connection reset", errors.New("read tcp: connection reset by peer"), CategoryConnectionLoss},
		{"broken pipe", errors.New("write: broken pipe"), CategoryConnectionLoss},
		{"unknown", errors.New("column does not exist"), CategoryTerminal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("connection refused")))
	assert.True(t, IsRetryable(&pgconn.PgError{Code: "40001"}))
	assert.False(t, IsRetryable(errs.NewValidationError("x", "bad")))
	assert.False(t, IsRetryable(errors.New("syntax error")))

	// A terminal domain error stays terminal even when its message
	// contains a transient-looking pattern
	assert.False(t, IsRetryable(errs.NewValidationError("x", "operation timeout must be positive")))
}
