package pipeline

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"jackpotd/domain/errs"

	"github.com/jackc/pgx/v5/pgconn"
)

// RetryStrategy selects the backoff curve for an operation class
type RetryStrategy string

const (
	RetryStrategyLinear            RetryStrategy = "linear"
	RetryStrategyExponential       RetryStrategy = "exponential"
	RetryStrategyExponentialJitter RetryStrategy = "exponential_with_jitter"
	RetryStrategyDecorrelated      RetryStrategy = "decorrelated_jitter"
)

// RetryPolicy configures backoff for an operation class, not per item
type RetryPolicy struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Strategy     RetryStrategy
	JitterFactor float64
}

// ErrorCategory buckets a storage failure for retry decisions
type ErrorCategory string

const (
	CategoryTimeout         ErrorCategory = "timeout"
	CategoryDeadlock        ErrorCategory = "deadlock"
	CategorySerialization   ErrorCategory = "serialization"
	CategoryVersionConflict ErrorCategory = "version_conflict"
	CategoryLockTimeout     ErrorCategory = "lock_timeout"
	CategoryConnectionLoss  ErrorCategory = "connection_loss"
	CategoryTerminal        ErrorCategory = "terminal"
)

// deadlockMinDelayFloor is the lowest minimum wait applied after a
// deadlock, regardless of how small the policy's base delay is.
const deadlockMinDelayFloor = 2000 * time.Millisecond

// RetryEngine computes backoff delays and classifies failures as
// retryable or terminal. It holds no per-operation state; the same
// engine serves every operation class.
type RetryEngine struct {
	randFloat func() float64
}

// NewRetryEngine creates a retry engine with the default RNG
func NewRetryEngine() *RetryEngine {
	return &RetryEngine{randFloat: rand.Float64}
}

// CalculateDelay returns the wait before the given attempt (1-based)
// under the policy. Decorrelated jitter needs the previous delay; pass
// zero on the first attempt.
func (e *RetryEngine) CalculateDelay(attempt int, previousDelay time.Duration, policy RetryPolicy) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	switch policy.Strategy {
	case RetryStrategyLinear:
		return capDelay(policy.BaseDelay*time.Duration(attempt), policy.MaxDelay)

	case RetryStrategyExponentialJitter:
		delay := exponentialDelay(attempt, policy.BaseDelay, policy.MaxDelay)
		jitter := (e.randFloat()*2 - 1) * policy.JitterFactor * float64(delay)
		delay += time.Duration(jitter)
		floor := policy.BaseDelay / 2
		if delay < floor {
			delay = floor
		}
		return capDelay(delay, policy.MaxDelay)

	case RetryStrategyDecorrelated:
		if previousDelay <= 0 {
			previousDelay = policy.BaseDelay
		}
		delay := exponentialDelay(attempt, policy.BaseDelay, policy.MaxDelay)
		decorrelated := time.Duration(float64(previousDelay) * 3 * e.randFloat())
		if decorrelated < delay {
			delay = decorrelated
		}
		if delay < policy.BaseDelay {
			delay = policy.BaseDelay
		}
		return capDelay(delay, policy.MaxDelay)

	default:
		return exponentialDelay(attempt, policy.BaseDelay, policy.MaxDelay)
	}
}

// DelayFor combines the strategy delay with any category-specific
// minimum. Deadlocks wait at least five base delays and never less
// than two seconds, so contending workers back off instead of
// immediately re-colliding.
func (e *RetryEngine) DelayFor(err error, attempt int, previousDelay time.Duration, policy RetryPolicy) time.Duration {
	delay := e.CalculateDelay(attempt, previousDelay, policy)

	if Classify(err) == CategoryDeadlock {
		min := 5 * policy.BaseDelay
		if min < deadlockMinDelayFloor {
			min = deadlockMinDelayFloor
		}
		if delay < min {
			delay = min
		}
	}

	return delay
}

// IsRetryable reports whether err belongs to a transient category.
// Domain errors are always terminal regardless of their message.
func IsRetryable(err error) bool {
	return Classify(err) != CategoryTerminal
}

// Classify buckets err into an error category. Postgres error codes
// are checked first, then case-insensitive message patterns.
func Classify(err error) ErrorCategory {
	if err == nil {
		return CategoryTerminal
	}
	if errs.IsTerminal(err) {
		return CategoryTerminal
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001":
			return CategorySerialization
		case "40P01":
			return CategoryDeadlock
		case "55P03":
			return CategoryLockTimeout
		case "57014":
			return CategoryTimeout
		}
		// Class 08: connection exceptions
		if strings.HasPrefix(pgErr.Code, "08") {
			return CategoryConnectionLoss
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "deadlock"):
		return CategoryDeadlock
	case strings.Contains(msg, "serialization"):
		return CategorySerialization
	case strings.Contains(msg, "version conflict"), strings.Contains(msg, "optimistic lock"):
		return CategoryVersionConflict
	case strings.Contains(msg, "lock timeout"), strings.Contains(msg, "lock not available"):
		return CategoryLockTimeout
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return CategoryTimeout
	case strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection closed"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "unexpected eof"):
		return CategoryConnectionLoss
	}

	return CategoryTerminal
}

func exponentialDelay(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	// Past 62 doublings any int64 base has overflowed; the cap applies anyway
	shift := attempt - 1
	if shift > 62 {
		return max
	}
	delay := base << uint(shift)
	if delay <= 0 {
		return max
	}
	return capDelay(delay, max)
}

func capDelay(delay, max time.Duration) time.Duration {
	if max > 0 && delay > max {
		return max
	}
	return delay
}
