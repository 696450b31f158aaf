package repository

import (
	"context"
	"fmt"

	"jackpotd/database"
	"jackpotd/domain/events"
	"jackpotd/domain/interfaces"

	"github.com/jackc/pgx/v5"
)

// unitOfWork implements the UnitOfWork interface
type unitOfWork struct {
	db        *database.DB
	tx        pgx.Tx
	ctx       context.Context
	publisher interfaces.TransactionalEventPublisher

	userRepo           interfaces.UserRepository
	balanceRepo        interfaces.BalanceRepository
	bonusRepo          interfaces.BonusRepository
	gameRepo           interfaces.GameRepository
	sessionRepo        interfaces.SessionRepository
	jackpotRepo        interfaces.JackpotRepository
	settlementRepo     interfaces.SettlementRepository
	balanceHistoryRepo interfaces.BalanceHistoryRepository
}

type unitOfWorkFactory struct {
	db  *database.DB
	bus *events.Bus
}

// NewUnitOfWorkFactory creates a new UnitOfWork factory. Each unit of
// work gets its own transactional publisher feeding the shared bus.
func NewUnitOfWorkFactory(db *database.DB, bus *events.Bus) interfaces.UnitOfWorkFactory {
	return &unitOfWorkFactory{db: db, bus: bus}
}

// Create creates a new UnitOfWork instance
func (f *unitOfWorkFactory) Create() interfaces.UnitOfWork {
	return &unitOfWork{
		db:        f.db,
		publisher: events.NewTransactionalBus(f.bus),
	}
}

// Begin starts a new transaction
func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return fmt.Errorf("transaction already started")
	}

	tx, err := u.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	u.tx = tx
	u.ctx = ctx

	u.userRepo = newUserRepositoryWithTx(tx)
	u.balanceRepo = newBalanceRepositoryWithTx(tx)
	u.bonusRepo = newBonusRepositoryWithTx(tx)
	u.gameRepo = newGameRepositoryWithTx(tx)
	u.sessionRepo = newSessionRepositoryWithTx(tx)
	u.jackpotRepo = newJackpotRepositoryWithTx(tx)
	u.settlementRepo = newSettlementRepositoryWithTx(tx)
	u.balanceHistoryRepo = newBalanceHistoryRepositoryWithTx(tx)

	return nil
}

// Commit commits the transaction
func (u *unitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("no transaction to commit")
	}

	err := u.tx.Commit(u.ctx)
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	u.tx = nil

	// Flush pending events after successful commit
	if u.publisher != nil {
		u.publisher.Flush(u.ctx)
	}

	return nil
}

// Rollback rolls back the transaction
func (u *unitOfWork) Rollback() error {
	if u.tx == nil {
		return nil // Nothing to rollback
	}

	err := u.tx.Rollback(u.ctx)
	if err != nil && err != pgx.ErrTxClosed {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	u.tx = nil

	// Discard pending events on rollback
	if u.publisher != nil {
		u.publisher.Discard()
	}

	return nil
}

// UserRepository returns the user repository for this unit of work
func (u *unitOfWork) UserRepository() interfaces.UserRepository {
	if u.userRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.userRepo
}

// BalanceRepository returns the balance repository for this unit of work
func (u *unitOfWork) BalanceRepository() interfaces.BalanceRepository {
	if u.balanceRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.balanceRepo
}

// BonusRepository returns the bonus repository for this unit of work
func (u *unitOfWork) BonusRepository() interfaces.BonusRepository {
	if u.bonusRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.bonusRepo
}

// GameRepository returns the game repository for this unit of work
func (u *unitOfWork) GameRepository() interfaces.GameRepository {
	if u.gameRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.gameRepo
}

// SessionRepository returns the session repository for this unit of work
func (u *unitOfWork) SessionRepository() interfaces.SessionRepository {
	if u.sessionRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.sessionRepo
}

// JackpotRepository returns the jackpot repository for this unit of work
func (u *unitOfWork) JackpotRepository() interfaces.JackpotRepository {
	if u.jackpotRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.jackpotRepo
}

// SettlementRepository returns the settlement repository for this unit of work
func (u *unitOfWork) SettlementRepository() interfaces.SettlementRepository {
	if u.settlementRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.settlementRepo
}

// BalanceHistoryRepository returns the balance history repository for this unit of work
func (u *unitOfWork) BalanceHistoryRepository() interfaces.BalanceHistoryRepository {
	if u.balanceHistoryRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.balanceHistoryRepo
}

// EventBus returns the transactional event publisher for this unit of work
func (u *unitOfWork) EventBus() interfaces.EventPublisher {
	if u.publisher == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.publisher
}
