package interfaces

import (
	"context"
	"time"

	"jackpotd/domain/entities"
	"jackpotd/domain/events"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, userID int64) (*entities.User, error)

	// Create creates a new user
	Create(ctx context.Context, username string) (*entities.User, error)
}

// BalanceRepository defines the interface for user balance data access
type BalanceRepository interface {
	// GetByUserID retrieves the balance row for a user
	GetByUserID(ctx context.Context, userID int64) (*entities.UserBalance, error)

	// GetByUserIDForUpdate retrieves the balance row with a row lock,
	// serializing concurrent settlements for the same user
	GetByUserIDForUpdate(ctx context.Context, userID int64) (*entities.UserBalance, error)

	// Update writes both buckets of a user's balance atomically
	Update(ctx context.Context, balance *entities.UserBalance) error
}

// BonusRepository defines the interface for per-bonus bucket data access
type BonusRepository interface {
	// GetActiveByUser returns a user's non-empty bonuses ordered for
	// deduction: preferred first, then oldest first
	GetActiveByUser(ctx context.Context, userID int64) ([]*entities.UserBonus, error)

	// Deduct subtracts amount from a single bonus bucket
	Deduct(ctx context.Context, bonusID int64, amount int64) error

	// Credit adds amount back to a single bonus bucket
	Credit(ctx context.Context, bonusID int64, amount int64) error

	// Create grants a new bonus to a user
	Create(ctx context.Context, bonus *entities.UserBonus) (*entities.UserBonus, error)
}

// GameRepository defines the interface for game data access
type GameRepository interface {
	// GetByID retrieves a game by ID
	GetByID(ctx context.Context, gameID int64) (*entities.Game, error)
}

// SessionRepository defines the interface for game session data access
type SessionRepository interface {
	// GetByID retrieves a session by ID
	GetByID(ctx context.Context, sessionID int64) (*entities.GameSession, error)

	// AddSessionLoss adds delta to a session's running loss total
	AddSessionLoss(ctx context.Context, sessionID int64, delta int64) error

	// GetDayLoss returns the user's net loss across all sessions since
	// the given time
	GetDayLoss(ctx context.Context, userID int64, since time.Time) (int64, error)
}

// JackpotRepository defines the interface for jackpot pool data access
type JackpotRepository interface {
	// GetByGroup retrieves the pool for a tier
	GetByGroup(ctx context.Context, group entities.PoolGroup) (*entities.JackpotPool, error)

	// GetByGroupForUpdate retrieves the pool with a row lock so a win
	// payout sees the final amount
	GetByGroupForUpdate(ctx context.Context, group entities.PoolGroup) (*entities.JackpotPool, error)

	// GetAll returns every pool
	GetAll(ctx context.Context) ([]*entities.JackpotPool, error)

	// AddContribution increases a pool's amount, clamped at its cap.
	// Returns the amount actually added and the new pool total.
	AddContribution(ctx context.Context, poolID int64, amount int64) (added int64, newAmount int64, err error)

	// SetAmount writes a pool's amount directly
	SetAmount(ctx context.Context, poolID int64, amount int64) error

	// ResetAfterWin reseeds a pool and records who hit it
	ResetAfterWin(ctx context.Context, poolID int64, amount int64, wonByUserID int64) error

	// RecordWin persists a paid-out jackpot hit
	RecordWin(ctx context.Context, win *entities.JackpotWin) error
}

// SettlementRepository defines the interface for settlement records
type SettlementRepository interface {
	// Create persists a settlement and assigns its ID
	Create(ctx context.Context, settlement *entities.Settlement) error

	// GetByIdempotencyKey retrieves a settlement by its idempotency key
	GetByIdempotencyKey(ctx context.Context, key string) (*entities.Settlement, error)

	// GetByUser returns recent settlements for a user
	GetByUser(ctx context.Context, userID int64, limit int) ([]*entities.Settlement, error)
}

// BalanceHistoryRepository defines the interface for balance history tracking
type BalanceHistoryRepository interface {
	// Record creates a new balance history entry
	Record(ctx context.Context, history *entities.BalanceHistory) error

	// GetByUser returns balance history for a specific user
	GetByUser(ctx context.Context, userID int64, limit int) ([]*entities.BalanceHistory, error)

	// GetByDateRange returns balance history within a date range
	GetByDateRange(ctx context.Context, userID int64, from, to time.Time) ([]*entities.BalanceHistory, error)
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event) error
}

// TransactionalEventPublisher buffers events for the lifetime of a
// transaction. Flush after commit delivers them; Discard after
// rollback drops them.
type TransactionalEventPublisher interface {
	EventPublisher
	Flush(ctx context.Context) error
	Discard()
}

// UnitOfWork defines the interface for transactional repository operations
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Repository getters
	UserRepository() UserRepository
	BalanceRepository() BalanceRepository
	BonusRepository() BonusRepository
	GameRepository() GameRepository
	SessionRepository() SessionRepository
	JackpotRepository() JackpotRepository
	SettlementRepository() SettlementRepository
	BalanceHistoryRepository() BalanceHistoryRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory defines the interface for creating UnitOfWork instances
type UnitOfWorkFactory interface {
	// Create creates a new UnitOfWork instance
	Create() UnitOfWork
}
