package pipeline

import (
	"context"
	"time"

	"jackpotd/database"
	"jackpotd/domain/errs"

	log "github.com/sirupsen/logrus"
)

// OperationClass buckets work for timeout and retry budgets. Wins get
// a stricter timeout than contributions because they are latency
// sensitive and run at higher queue priority.
type OperationClass string

const (
	OpClassContribution OperationClass = "contribution"
	OpClassWin          OperationClass = "win"
	OpClassQuery        OperationClass = "query"
)

// ClassSettings bound one operation class
type ClassSettings struct {
	Timeout time.Duration
	Policy  RetryPolicy
}

// DefaultClassSettings returns the per-class budgets
func DefaultClassSettings() map[OperationClass]ClassSettings {
	return map[OperationClass]ClassSettings{
		OpClassContribution: {
			Timeout: 10 * time.Second,
			Policy: RetryPolicy{
				MaxAttempts:  4,
				BaseDelay:    100 * time.Millisecond,
				MaxDelay:     5 * time.Second,
				Strategy:     RetryStrategyExponentialJitter,
				JitterFactor: 0.25,
			},
		},
		OpClassWin: {
			Timeout: 5 * time.Second,
			Policy: RetryPolicy{
				MaxAttempts: 4,
				BaseDelay:   50 * time.Millisecond,
				MaxDelay:    2 * time.Second,
				Strategy:    RetryStrategyExponential,
			},
		},
		OpClassQuery: {
			Timeout: 3 * time.Second,
			Policy: RetryPolicy{
				MaxAttempts: 2,
				BaseDelay:   50 * time.Millisecond,
				MaxDelay:    time.Second,
				Strategy:    RetryStrategyLinear,
			},
		},
	}
}

// ExecutorGroup routes storage operations across pool adapters. The
// balancer picks a healthy target, the adapter bounds the call, and
// the retry engine decides whether and when a failure is retried.
// Retry across attempts may land on different targets.
type ExecutorGroup struct {
	balancer *LoadBalancer
	engine   *RetryEngine
	adapters map[string]*PoolAdapter
	classes  map[OperationClass]ClassSettings
}

// NewExecutorGroup creates an executor with no targets
func NewExecutorGroup(strategy BalancerStrategy, engine *RetryEngine) *ExecutorGroup {
	return &ExecutorGroup{
		balancer: NewLoadBalancer(strategy),
		engine:   engine,
		adapters: make(map[string]*PoolAdapter),
		classes:  DefaultClassSettings(),
	}
}

// AddTarget registers a database pool as a named balancer target.
// Call before Start; targets are fixed once the group is running.
func (g *ExecutorGroup) AddTarget(name string, db *database.DB, tier WorkloadTier, weight int) {
	adapter := NewPoolAdapter(name, db, tier, g.balancer.SetHealth)
	g.adapters[name] = adapter
	g.balancer.AddTarget(name, weight)
}

// Start launches health checking for every target
func (g *ExecutorGroup) Start(ctx context.Context) {
	for _, adapter := range g.adapters {
		adapter.StartHealthChecks(ctx)
	}
	log.WithField("targets", len(g.adapters)).Info("Executor group started")
}

// Execute runs fn against a balanced target under the class's timeout,
// retrying transient failures per the class policy. Target exhaustion
// propagates immediately; exhausted retries surface as a StorageError
// carrying the attempt count.
func (g *ExecutorGroup) Execute(ctx context.Context, class OperationClass, fn func(ctx context.Context, db *database.DB) error) error {
	settings, ok := g.classes[class]
	if !ok {
		settings = g.classes[OpClassQuery]
	}

	var lastErr error
	var prevDelay time.Duration

	for attempt := 1; attempt <= settings.Policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := g.engine.DelayFor(lastErr, attempt-1, prevDelay, settings.Policy)
			prevDelay = delay
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		name, err := g.balancer.Acquire()
		if err != nil {
			return err
		}

		adapter := g.adapters[name]
		// One attempt per engine iteration; the engine owns the retry
		// schedule here, not the adapter
		err = adapter.Execute(ctx, ExecuteOptions{Timeout: settings.Timeout}, func(c context.Context) error {
			return fn(c, adapter.DB())
		})
		g.balancer.Release(name)

		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
		log.WithFields(log.Fields{
			"class":   class,
			"target":  name,
			"attempt": attempt,
		}).WithError(err).Warn("Storage operation failed")
	}

	return &errs.StorageError{
		Op:       string(class),
		Attempts: settings.Policy.MaxAttempts,
		Err:      lastErr,
	}
}

// Healthy reports whether at least one target is healthy
func (g *ExecutorGroup) Healthy() bool {
	for _, adapter := range g.adapters {
		if adapter.Healthy() {
			return true
		}
	}
	return false
}

// Metrics snapshots every adapter
func (g *ExecutorGroup) Metrics() []PoolMetrics {
	out := make([]PoolMetrics, 0, len(g.adapters))
	for _, adapter := range g.adapters {
		out = append(out, adapter.Metrics())
	}
	return out
}

// Targets snapshots the balancer's view of every target
func (g *ExecutorGroup) Targets() []TargetSnapshot {
	return g.balancer.Snapshot()
}
