package interfaces

import (
	"context"

	"jackpotd/domain/entities"
)

// BetService defines the interface for bet settlement operations
type BetService interface {
	// SettleBet validates, deducts, credits, and records a wager and its
	// outcome in a single transaction
	SettleBet(ctx context.Context, req *entities.BetRequest, outcome *entities.GameOutcome) (*entities.SettlementResult, error)
}

// JackpotService defines the interface for jackpot pipeline operations
type JackpotService interface {
	// EnqueueContribution submits a game round's pool contribution for
	// asynchronous processing. Returns the queue item ID.
	EnqueueContribution(ctx context.Context, gameID int64, userID int64, wagerAmount int64, priority int) (string, error)

	// EnqueueWin submits a jackpot win payout for asynchronous
	// processing. The claimed amount is verified against the locked pool
	// before payout. Returns the queue item ID.
	EnqueueWin(ctx context.Context, group entities.PoolGroup, userID int64, winAmount int64) (string, error)

	// GetPools returns the current pool amounts
	GetPools(ctx context.Context) ([]*entities.JackpotPool, error)
}

// BonusService defines the interface for bonus lifecycle operations
type BonusService interface {
	// GrantBonus creates a new bonus bucket for a user
	GrantBonus(ctx context.Context, userID int64, amount int64, preferred bool) (*entities.UserBonus, error)
}
