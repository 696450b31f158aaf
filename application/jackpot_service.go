// Package application orchestrates the asynchronous jackpot pipeline:
// admission control, queueing, balanced storage execution, and the
// payout transaction.
package application

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"jackpotd/cache"
	"jackpotd/database"
	"jackpotd/domain/entities"
	"jackpotd/domain/errs"
	"jackpotd/domain/events"
	"jackpotd/domain/interfaces"
	"jackpotd/pipeline"
	"jackpotd/repository"

	log "github.com/sirupsen/logrus"
)

// contributionJob routes a wager's pool contributions. The remaining
// tier list shrinks as tiers succeed so a retried job never double
// contributes.
type contributionJob struct {
	GameID      int64
	UserID      int64
	WagerAmount int64

	computed  bool
	remaining []entities.PoolGroup
}

// winJob routes a claimed jackpot payout
type winJob struct {
	Group     entities.PoolGroup
	UserID    int64
	WinAmount int64
}

// JackpotServiceConfig sizes the pipeline. Zero values fall back to
// defaults; Pools must name every tier the deployment pays into.
type JackpotServiceConfig struct {
	QueueMaxSize            int
	ContributionMaxAttempts int
	WinMaxAttempts          int
	Concurrency             int
	BatchSize               int
	PumpInterval            time.Duration
	ContributionLimit       pipeline.RateLimiterConfig
	WinLimit                pipeline.RateLimiterConfig
	Pools                   map[entities.PoolGroup]entities.PoolConfig
}

func (c *JackpotServiceConfig) applyDefaults() {
	if c.QueueMaxSize <= 0 {
		c.QueueMaxSize = 10000
	}
	if c.ContributionMaxAttempts <= 0 {
		c.ContributionMaxAttempts = 3
	}
	if c.WinMaxAttempts <= 0 {
		c.WinMaxAttempts = 5
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 64
	}
	if c.PumpInterval <= 0 {
		c.PumpInterval = 100 * time.Millisecond
	}
	if c.ContributionLimit.RequestsPerMinute <= 0 {
		c.ContributionLimit = pipeline.RateLimiterConfig{RequestsPerMinute: 600, BurstLimit: 100}
	}
	if c.WinLimit.RequestsPerMinute <= 0 {
		c.WinLimit = pipeline.RateLimiterConfig{RequestsPerMinute: 120, BurstLimit: 20}
	}
}

func (c *JackpotServiceConfig) validate() error {
	if len(c.Pools) == 0 {
		return fmt.Errorf("jackpot service requires at least one pool config")
	}
	for group, cfg := range c.Pools {
		if !group.IsValid() {
			return fmt.Errorf("unknown pool group %q", group)
		}
		if cfg.SeedAmount < 0 {
			return fmt.Errorf("pool %s: seed amount must be non-negative", group)
		}
		if cfg.ContributionRateBps < 0 {
			return fmt.Errorf("pool %s: contribution rate must be non-negative", group)
		}
		if cfg.MaxAmount > 0 && cfg.MaxAmount < cfg.SeedAmount {
			return fmt.Errorf("pool %s: max amount %d below seed %d", group, cfg.MaxAmount, cfg.SeedAmount)
		}
	}
	return nil
}

// JackpotService accepts contribution and win requests, bounds them
// with admission control and queue capacity, and processes them
// asynchronously against balanced storage targets.
type JackpotService struct {
	cfg      JackpotServiceConfig
	executor *pipeline.ExecutorGroup
	queue    *pipeline.PriorityQueue

	contributionLimiter *pipeline.RateLimiter
	winLimiter          *pipeline.RateLimiter

	poolCache *cache.PoolCache
	dlq       interfaces.DeadLetterSink
	bus       *events.Bus
}

// NewJackpotService creates the pipeline service. Configuration is
// validated here so a bad deployment fails at startup, not at first
// use.
func NewJackpotService(
	cfg JackpotServiceConfig,
	executor *pipeline.ExecutorGroup,
	poolCache *cache.PoolCache,
	dlq interfaces.DeadLetterSink,
	bus *events.Bus,
) (*JackpotService, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid jackpot service config: %w", err)
	}

	s := &JackpotService{
		cfg:                 cfg,
		executor:            executor,
		contributionLimiter: pipeline.NewRateLimiter(cfg.ContributionLimit),
		winLimiter:          pipeline.NewRateLimiter(cfg.WinLimit),
		poolCache:           poolCache,
		dlq:                 dlq,
		bus:                 bus,
	}
	s.queue = pipeline.NewPriorityQueue(pipeline.QueueConfig{
		MaxSize:    cfg.QueueMaxSize,
		OnTerminal: s.onTerminal,
	})
	return s, nil
}

// Start launches the queue pump. The returned function stops it; items
// still queued at stop are abandoned with the process.
func (s *JackpotService) Start(ctx context.Context) func() {
	stopChan := make(chan struct{})

	go func() {
		log.WithFields(log.Fields{
			"interval":    s.cfg.PumpInterval,
			"concurrency": s.cfg.Concurrency,
			"batchSize":   s.cfg.BatchSize,
		}).Info("Jackpot queue worker started")

		ticker := time.NewTicker(s.cfg.PumpInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Info("Jackpot queue worker shutting down (context cancelled)...")
				return
			case <-stopChan:
				log.Info("Jackpot queue worker shutting down (stop requested)...")
				return
			case <-ticker.C:
				s.queue.ProcessAll(ctx, s.handleItem, s.cfg.Concurrency, s.cfg.BatchSize)
			}
		}
	}()

	return func() {
		close(stopChan)
	}
}

// EnqueueContribution admits a wager's pool contribution for
// asynchronous processing. The caller is done once the item is
// accepted; processing failures are retried and eventually dead
// lettered, never re-raised here.
func (s *JackpotService) EnqueueContribution(ctx context.Context, gameID, userID, wagerAmount int64, priority int) (string, error) {
	if gameID <= 0 {
		return "", errs.NewValidationError("game_id", "must be positive")
	}
	if userID <= 0 {
		return "", errs.NewValidationError("user_id", "must be positive")
	}
	if wagerAmount <= 0 {
		return "", errs.NewValidationError("wager_amount", "must be positive")
	}
	if priority < pipeline.PriorityContributionMin {
		priority = pipeline.PriorityContributionMin
	}
	if priority > pipeline.PriorityContributionMax {
		priority = pipeline.PriorityContributionMax
	}

	if decision := s.contributionLimiter.Allow(); !decision.Allowed {
		return "", &errs.RateLimitedError{Operation: "contribution", RetryAfter: decision.ResetTime}
	}

	itemID, err := s.queue.Enqueue(&contributionJob{
		GameID:      gameID,
		UserID:      userID,
		WagerAmount: wagerAmount,
	}, priority, s.cfg.ContributionMaxAttempts)
	if err != nil {
		return "", err
	}

	log.WithFields(log.Fields{
		"itemId":      itemID,
		"gameId":      gameID,
		"userId":      userID,
		"wagerAmount": wagerAmount,
		"priority":    priority,
	}).Debug("Contribution enqueued")
	return itemID, nil
}

// EnqueueWin admits a jackpot win claim for asynchronous payout. Wins
// always queue at the highest priority.
func (s *JackpotService) EnqueueWin(ctx context.Context, group entities.PoolGroup, userID, winAmount int64) (string, error) {
	if !group.IsValid() {
		return "", errs.NewValidationError("group", fmt.Sprintf("unknown pool group %q", group))
	}
	if userID <= 0 {
		return "", errs.NewValidationError("user_id", "must be positive")
	}
	if winAmount <= 0 {
		return "", errs.NewValidationError("win_amount", "must be positive")
	}

	if decision := s.winLimiter.Allow(); !decision.Allowed {
		return "", &errs.RateLimitedError{Operation: "win", RetryAfter: decision.ResetTime}
	}

	itemID, err := s.queue.Enqueue(&winJob{
		Group:     group,
		UserID:    userID,
		WinAmount: winAmount,
	}, pipeline.PriorityWin, s.cfg.WinMaxAttempts)
	if err != nil {
		return "", err
	}

	log.WithFields(log.Fields{
		"itemId":    itemID,
		"group":     group,
		"userId":    userID,
		"winAmount": winAmount,
	}).Info("Jackpot win enqueued")
	return itemID, nil
}

// GetPools returns the current pool balances, served from cache when
// fresh. The store remains the source of truth on every miss.
func (s *JackpotService) GetPools(ctx context.Context) ([]*entities.JackpotPool, error) {
	if pools, ok := s.poolCache.GetPools(ctx); ok {
		return pools, nil
	}

	var pools []*entities.JackpotPool
	err := s.executor.Execute(ctx, pipeline.OpClassQuery, func(ctx context.Context, db *database.DB) error {
		var err error
		pools, err = repository.NewJackpotRepository(db).GetAll(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load pools: %w", err)
	}

	s.poolCache.SetPools(ctx, pools)
	return pools, nil
}

// PoolStat is one tier's state for dashboards
type PoolStat struct {
	Group               entities.PoolGroup `json:"group"`
	Amount              int64              `json:"amount"`
	SeedAmount          int64              `json:"seed_amount"`
	MaxAmount           int64              `json:"max_amount"`
	ContributionRateBps int64              `json:"contribution_rate_bps"`
	FillPercent         float64            `json:"fill_percent"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

// GetPoolStats joins live pool balances with their configured rates
func (s *JackpotService) GetPoolStats(ctx context.Context) ([]PoolStat, error) {
	pools, err := s.GetPools(ctx)
	if err != nil {
		return nil, err
	}

	stats := make([]PoolStat, 0, len(pools))
	for _, pool := range pools {
		stat := PoolStat{
			Group:      pool.Group,
			Amount:     pool.Amount,
			SeedAmount: pool.SeedAmount,
			MaxAmount:  pool.MaxAmount,
			UpdatedAt:  pool.UpdatedAt,
		}
		if cfg, ok := s.cfg.Pools[pool.Group]; ok {
			stat.ContributionRateBps = cfg.ContributionRateBps
		}
		if pool.MaxAmount > 0 {
			stat.FillPercent = float64(pool.Amount) / float64(pool.MaxAmount) * 100
		}
		stats = append(stats, stat)
	}
	return stats, nil
}

// QueueMetrics snapshots the queue counters
func (s *JackpotService) QueueMetrics() pipeline.QueueMetrics {
	return s.queue.Metrics()
}

// HealthStatus is the operational snapshot for health endpoints
type HealthStatus struct {
	Healthy    bool                      `json:"healthy"`
	QueueDepth int                       `json:"queue_depth"`
	Targets    []pipeline.TargetSnapshot `json:"targets"`
	Adapters   []pipeline.PoolMetrics    `json:"adapters"`
}

// GetHealthStatus reports whether the pipeline can accept work and the
// per-target view behind that verdict.
func (s *JackpotService) GetHealthStatus() HealthStatus {
	return HealthStatus{
		Healthy:    s.executor.Healthy(),
		QueueDepth: s.queue.Size(),
		Targets:    s.executor.Targets(),
		Adapters:   s.executor.Metrics(),
	}
}

// handleItem dispatches one queue item. Domain rejections are consumed
// here and dead lettered immediately; anything else is returned so the
// queue's job-level backoff can retry it.
func (s *JackpotService) handleItem(ctx context.Context, item *pipeline.QueueItem) error {
	var err error
	switch job := item.Payload.(type) {
	case *contributionJob:
		err = s.processContribution(ctx, job)
	case *winJob:
		err = s.processWin(ctx, job)
	default:
		err = errs.NewValidationError("payload", fmt.Sprintf("unknown queue payload type %T", item.Payload))
	}

	if err == nil {
		return nil
	}
	if errs.IsTerminal(err) {
		s.deadLetter(item, err)
		return nil
	}
	return err
}

// processContribution feeds every remaining tier its share of the
// wager. Tiers already fed by an earlier attempt are skipped, so a
// retry after a partial failure never double contributes.
func (s *JackpotService) processContribution(ctx context.Context, job *contributionJob) error {
	if !job.computed {
		for _, group := range entities.AllPoolGroups {
			cfg, ok := s.cfg.Pools[group]
			if !ok {
				continue
			}
			if cfg.ContributionFor(job.WagerAmount) > 0 {
				job.remaining = append(job.remaining, group)
			}
		}
		job.computed = true
	}
	if len(job.remaining) == 0 {
		return nil
	}

	err := s.executor.Execute(ctx, pipeline.OpClassContribution, func(ctx context.Context, db *database.DB) error {
		repo := repository.NewJackpotRepository(db)
		for len(job.remaining) > 0 {
			group := job.remaining[0]
			cfg := s.cfg.Pools[group]
			contribution := cfg.ContributionFor(job.WagerAmount)

			pool, err := repo.GetByGroup(ctx, group)
			if err != nil {
				return err
			}
			if pool == nil {
				return errs.NewNotFoundError("jackpot pool", string(group))
			}

			added, newAmount, err := repo.AddContribution(ctx, pool.ID, contribution)
			if err != nil {
				return err
			}
			job.remaining = job.remaining[1:]

			log.WithFields(log.Fields{
				"group":     group,
				"gameId":    job.GameID,
				"added":     added,
				"newAmount": newAmount,
			}).Debug("Pool contribution applied")
			s.bus.Emit(context.Background(), events.PoolUpdatedEvent{
				PoolID:    pool.ID,
				Group:     group,
				OldAmount: newAmount - added,
				NewAmount: newAmount,
			})
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.poolCache.Invalidate(ctx)
	return nil
}

// processWin pays out a claimed jackpot in one transaction against a
// balanced target.
func (s *JackpotService) processWin(ctx context.Context, job *winJob) error {
	err := s.executor.Execute(ctx, pipeline.OpClassWin, func(ctx context.Context, db *database.DB) error {
		return s.payoutWin(ctx, repository.NewUnitOfWorkFactory(db, s.bus), job)
	})
	if err != nil {
		return err
	}

	s.poolCache.Invalidate(ctx)
	return nil
}

// payoutWin re-reads the pool under a row lock so the claim is checked
// against the final amount, then reduces the pool and credits the
// winner's real balance atomically. Two claims racing for the same
// pool serialize on the lock; the loser fails the claim check instead
// of double paying.
func (s *JackpotService) payoutWin(ctx context.Context, factory interfaces.UnitOfWorkFactory, job *winJob) error {
	uow := factory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin payout transaction: %w", err)
	}
	defer uow.Rollback()

	pool, err := uow.JackpotRepository().GetByGroupForUpdate(ctx, job.Group)
	if err != nil {
		return fmt.Errorf("failed to lock pool: %w", err)
	}
	if pool == nil {
		return errs.NewNotFoundError("jackpot pool", string(job.Group))
	}
	if job.WinAmount > pool.Amount {
		return errs.NewValidationError("win_amount",
			fmt.Sprintf("claim %d exceeds pool amount %d", job.WinAmount, pool.Amount))
	}

	remaining := pool.Amount - job.WinAmount
	if remaining < pool.SeedAmount {
		remaining = pool.SeedAmount
	}
	if err := uow.JackpotRepository().ResetAfterWin(ctx, pool.ID, remaining, job.UserID); err != nil {
		return fmt.Errorf("failed to reseed pool: %w", err)
	}

	balance, err := uow.BalanceRepository().GetByUserIDForUpdate(ctx, job.UserID)
	if err != nil {
		return fmt.Errorf("failed to lock balance: %w", err)
	}
	if balance == nil {
		return errs.NewNotFoundError("balance", job.UserID)
	}

	realBefore, bonusBefore := balance.RealBalance, balance.BonusBalance
	balance.RealBalance += job.WinAmount
	if err := uow.BalanceRepository().Update(ctx, balance); err != nil {
		return fmt.Errorf("failed to credit winnings: %w", err)
	}

	win := &entities.JackpotWin{
		PoolID: pool.ID,
		Group:  job.Group,
		UserID: job.UserID,
		Amount: job.WinAmount,
	}
	if err := uow.JackpotRepository().RecordWin(ctx, win); err != nil {
		return fmt.Errorf("failed to record win: %w", err)
	}

	relatedType := entities.RelatedTypeJackpotWin
	history := &entities.BalanceHistory{
		UserID:             job.UserID,
		RealBalanceBefore:  realBefore,
		RealBalanceAfter:   balance.RealBalance,
		BonusBalanceBefore: bonusBefore,
		BonusBalanceAfter:  balance.BonusBalance,
		ChangeAmount:       job.WinAmount,
		TransactionType:    entities.TransactionTypeJackpotWin,
		TransactionMetadata: map[string]any{
			"pool_group":         string(job.Group),
			"pool_amount_before": pool.Amount,
			"pool_amount_after":  remaining,
		},
		RelatedID:   &win.ID,
		RelatedType: &relatedType,
	}
	if err := uow.BalanceHistoryRepository().Record(ctx, history); err != nil {
		return fmt.Errorf("failed to record payout history: %w", err)
	}

	uow.EventBus().Publish(events.JackpotWonEvent{
		PoolID:    pool.ID,
		Group:     job.Group,
		UserID:    job.UserID,
		Amount:    job.WinAmount,
		NewAmount: remaining,
	})
	uow.EventBus().Publish(events.PoolUpdatedEvent{
		PoolID:    pool.ID,
		Group:     job.Group,
		OldAmount: pool.Amount,
		NewAmount: remaining,
	})
	uow.EventBus().Publish(events.BalanceChangeEvent{
		UserID:          job.UserID,
		OldRealBalance:  realBefore,
		NewRealBalance:  balance.RealBalance,
		OldBonusBalance: bonusBefore,
		NewBonusBalance: balance.BonusBalance,
		TransactionType: entities.TransactionTypeJackpotWin,
		ChangeAmount:    job.WinAmount,
	})

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit payout: %w", err)
	}

	log.WithFields(log.Fields{
		"group":      job.Group,
		"userId":     job.UserID,
		"amount":     job.WinAmount,
		"poolReseed": remaining,
	}).Info("Jackpot win paid out")
	return nil
}

// onTerminal fires when an item exhausts its retry budget
func (s *JackpotService) onTerminal(item *pipeline.QueueItem, cause error) {
	s.deadLetter(item, cause)
}

// deadLetter records an unprocessable item for offline inspection and
// announces the failure on the bus. DLQ delivery is best effort; the
// failure is already logged either way.
func (s *JackpotService) deadLetter(item *pipeline.QueueItem, cause error) {
	kind, userID, detail := describePayload(item.Payload)

	record := map[string]any{
		"item_id":     item.ID,
		"kind":        kind,
		"priority":    item.Priority,
		"attempts":    item.Attempts,
		"enqueued_at": item.EnqueuedAt.UTC(),
		"failed_at":   time.Now().UTC(),
		"error":       cause.Error(),
	}
	for k, v := range detail {
		record[k] = v
	}

	log.WithFields(log.Fields{
		"itemId":   item.ID,
		"kind":     kind,
		"attempts": item.Attempts,
	}).WithError(cause).Error("Queue item dead lettered")

	if s.dlq != nil {
		payload, err := json.Marshal(record)
		if err != nil {
			log.WithError(err).WithField("itemId", item.ID).Error("Failed to encode dead letter")
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.dlq.Publish(ctx, item.ID, payload); err != nil {
				log.WithError(err).WithField("itemId", item.ID).Error("Failed to publish dead letter")
			}
		}
	}

	s.bus.Emit(context.Background(), events.ItemFailedEvent{
		ItemID:   item.ID,
		Kind:     kind,
		UserID:   userID,
		Attempts: item.Attempts,
		Reason:   cause.Error(),
	})
}

func describePayload(payload any) (kind string, userID int64, detail map[string]any) {
	switch job := payload.(type) {
	case *contributionJob:
		return "contribution", job.UserID, map[string]any{
			"game_id":      job.GameID,
			"user_id":      job.UserID,
			"wager_amount": job.WagerAmount,
		}
	case *winJob:
		return "win", job.UserID, map[string]any{
			"pool_group": string(job.Group),
			"user_id":    job.UserID,
			"win_amount": job.WinAmount,
		}
	default:
		return "unknown", 0, nil
	}
}
