package pipeline

import (
	"context"
	"sync"
	"time"

	"jackpotd/database"

	log "github.com/sirupsen/logrus"
)

// WorkloadTier sizes a pool adapter and its health-check cadence
type WorkloadTier string

const (
	TierLow     WorkloadTier = "low"
	TierMedium  WorkloadTier = "medium"
	TierHigh    WorkloadTier = "high"
	TierExtreme WorkloadTier = "extreme"
)

// TierSettings are the pre-configured pool bounds per workload tier
type TierSettings struct {
	MinConns            int32
	MaxConns            int32
	HealthCheckInterval time.Duration
}

// SettingsForTier returns the pool sizing for a workload tier.
// Unknown tiers get the medium profile.
func SettingsForTier(tier WorkloadTier) TierSettings {
	switch tier {
	case TierLow:
		return TierSettings{MinConns: 1, MaxConns: 5, HealthCheckInterval: 60 * time.Second}
	case TierHigh:
		return TierSettings{MinConns: 5, MaxConns: 20, HealthCheckInterval: 10 * time.Second}
	case TierExtreme:
		return TierSettings{MinConns: 10, MaxConns: 50, HealthCheckInterval: 5 * time.Second}
	default:
		return TierSettings{MinConns: 2, MaxConns: 10, HealthCheckInterval: 30 * time.Second}
	}
}

// HandleState tracks a logical connection through its lifecycle
type HandleState string

const (
	HandleIdle     HandleState = "idle"
	HandleAcquired HandleState = "acquired"
	HandleErrored  HandleState = "errored"
)

type connHandle struct {
	id         int
	state      HandleState
	acquiredAt time.Time
	lastError  error
}

// ExecuteOptions bound a single Execute call
type ExecuteOptions struct {
	Timeout       time.Duration
	RetryAttempts int
}

// PoolMetrics is a snapshot of one adapter combining driver pool
// statistics with the adapter's own handle accounting.
type PoolMetrics struct {
	Target               string       `json:"target"`
	Tier                 WorkloadTier `json:"tier"`
	Healthy              bool         `json:"healthy"`
	ConsecutiveFailures  int          `json:"consecutive_failures"`
	HandleErrors         uint64       `json:"handle_errors"`
	TotalConns           int32        `json:"total_conns"`
	IdleConns            int32        `json:"idle_conns"`
	AcquiredConns        int32        `json:"acquired_conns"`
	MaxConns             int32        `json:"max_conns"`
	AcquireCount         int64        `json:"acquire_count"`
	EmptyAcquireCount    int64        `json:"empty_acquire_count"`
	CanceledAcquireCount int64        `json:"canceled_acquire_count"`
	AcquireDurationMs    int64        `json:"acquire_duration_ms"`
}

// healthFailureThreshold is how many consecutive probe failures flip
// an adapter unhealthy.
const healthFailureThreshold = 3

// PoolAdapter wraps one database pool as a named balancer target. It
// tracks logical handle states, probes the pool on the tier's
// interval, and reports real driver statistics.
type PoolAdapter struct {
	name     string
	db       *database.DB
	tier     WorkloadTier
	settings TierSettings

	// onHealthChange tells the balancer to start or stop routing here
	onHealthChange func(name string, healthy bool)

	mu                  sync.Mutex
	handles             []*connHandle
	healthy             bool
	consecutiveFailures int
	handleErrors        uint64
}

// NewPoolAdapter creates an adapter for one named target, healthy
// until probes say otherwise.
func NewPoolAdapter(name string, db *database.DB, tier WorkloadTier, onHealthChange func(name string, healthy bool)) *PoolAdapter {
	return &PoolAdapter{
		name:           name,
		db:             db,
		tier:           tier,
		settings:       SettingsForTier(tier),
		onHealthChange: onHealthChange,
		healthy:        true,
	}
}

// Name returns the adapter's target name
func (a *PoolAdapter) Name() string {
	return a.name
}

// DB exposes the underlying pool for callers that need transactions
func (a *PoolAdapter) DB() *database.DB {
	return a.db
}

// Settings returns the tier sizing this adapter runs under
func (a *PoolAdapter) Settings() TierSettings {
	return a.settings
}

// Healthy reports the adapter's current health flag
func (a *PoolAdapter) Healthy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.healthy
}

// Execute acquires a handle and races fn against the timeout. Failed
// attempts retry up to RetryAttempts times with 2^attempt * 100ms
// backoff, but only while the failure classifies as transient.
func (a *PoolAdapter) Execute(ctx context.Context, opts ExecuteOptions, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt)) * 100 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		handle := a.acquireHandle()
		err := a.runWithTimeout(ctx, opts.Timeout, fn)
		if err == nil {
			a.releaseHandle(handle)
			return nil
		}

		a.recordHandleError(handle, err)
		lastErr = err

		if !IsRetryable(err) {
			break
		}
		log.WithFields(log.Fields{
			"target":  a.name,
			"attempt": attempt + 1,
		}).WithError(err).Warn("Pool operation failed, retrying")
	}

	return lastErr
}

// runWithTimeout runs fn under a deadline. The operation goroutine is
// abandoned if it outlives the deadline; pgx unblocks it once the
// context cancels.
func (a *PoolAdapter) runWithTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(tctx)
	}()

	select {
	case err := <-done:
		return err
	case <-tctx.Done():
		return tctx.Err()
	}
}

// acquireHandle reuses an idle logical handle or grows the set
func (a *PoolAdapter) acquireHandle() *connHandle {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, h := range a.handles {
		if h.state == HandleIdle {
			h.state = HandleAcquired
			h.acquiredAt = time.Now()
			return h
		}
	}

	h := &connHandle{
		id:         len(a.handles),
		state:      HandleAcquired,
		acquiredAt: time.Now(),
	}
	a.handles = append(a.handles, h)
	return h
}

func (a *PoolAdapter) releaseHandle(h *connHandle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h.state = HandleIdle
}

// recordHandleError passes the handle through errored back to idle so
// the slot stays reusable while the error remains inspectable.
func (a *PoolAdapter) recordHandleError(h *connHandle, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h.state = HandleErrored
	h.lastError = err
	a.handleErrors++
	h.state = HandleIdle
}

// StartHealthChecks probes the pool on the tier's interval until ctx
// is done. Three consecutive failures flip the adapter unhealthy; the
// first success flips it back.
func (a *PoolAdapter) StartHealthChecks(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(a.settings.HealthCheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.probe(ctx)
			}
		}
	}()
}

func (a *PoolAdapter) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := a.db.Ping(probeCtx)

	a.mu.Lock()
	wasHealthy := a.healthy
	if err != nil {
		a.consecutiveFailures++
		if a.consecutiveFailures >= healthFailureThreshold {
			a.healthy = false
		}
	} else {
		a.consecutiveFailures = 0
		a.healthy = true
	}
	nowHealthy := a.healthy
	a.mu.Unlock()

	if err != nil {
		log.WithFields(log.Fields{
			"target": a.name,
		}).WithError(err).Warn("Pool health probe failed")
	}

	if wasHealthy != nowHealthy {
		log.WithFields(log.Fields{
			"target":  a.name,
			"healthy": nowHealthy,
		}).Info("Pool health changed")
		if a.onHealthChange != nil {
			a.onHealthChange(a.name, nowHealthy)
		}
	}
}

// Metrics snapshots driver pool statistics plus handle accounting
func (a *PoolAdapter) Metrics() PoolMetrics {
	stat := a.db.Stat()

	a.mu.Lock()
	defer a.mu.Unlock()

	return PoolMetrics{
		Target:               a.name,
		Tier:                 a.tier,
		Healthy:              a.healthy,
		ConsecutiveFailures:  a.consecutiveFailures,
		HandleErrors:         a.handleErrors,
		TotalConns:           stat.TotalConns(),
		IdleConns:            stat.IdleConns(),
		AcquiredConns:        stat.AcquiredConns(),
		MaxConns:             stat.MaxConns(),
		AcquireCount:         stat.AcquireCount(),
		EmptyAcquireCount:    stat.EmptyAcquireCount(),
		CanceledAcquireCount: stat.CanceledAcquireCount(),
		AcquireDurationMs:    stat.AcquireDuration().Milliseconds(),
	}
}
