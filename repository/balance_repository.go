package repository

import (
	"context"
	"fmt"

	"jackpotd/database"
	"jackpotd/domain/entities"

	"github.com/jackc/pgx/v5"
)

// BalanceRepository implements the BalanceRepository interface
type BalanceRepository struct {
	q Queryable
}

// NewBalanceRepository creates a new balance repository
func NewBalanceRepository(db *database.DB) *BalanceRepository {
	return &BalanceRepository{q: db.Pool}
}

// newBalanceRepositoryWithTx creates a new balance repository with a transaction
func newBalanceRepositoryWithTx(tx Queryable) *BalanceRepository {
	return &BalanceRepository{q: tx}
}

// GetByUserID retrieves the balance row for a user
func (r *BalanceRepository) GetByUserID(ctx context.Context, userID int64) (*entities.UserBalance, error) {
	return r.get(ctx, userID, false)
}

// GetByUserIDForUpdate retrieves the balance row with a row lock.
// Concurrent settlements for the same user serialize here, so the
// sufficiency re-check inside the transaction sees committed state.
func (r *BalanceRepository) GetByUserIDForUpdate(ctx context.Context, userID int64) (*entities.UserBalance, error) {
	return r.get(ctx, userID, true)
}

func (r *BalanceRepository) get(ctx context.Context, userID int64, forUpdate bool) (*entities.UserBalance, error) {
	query := `
		SELECT user_id, real_balance, bonus_balance, updated_at
		FROM user_balances
		WHERE user_id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var balance entities.UserBalance
	err := r.q.QueryRow(ctx, query, userID).Scan(
		&balance.UserID,
		&balance.RealBalance,
		&balance.BonusBalance,
		&balance.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get balance for user %d: %w", userID, err)
	}

	return &balance, nil
}

// Update writes both buckets atomically
func (r *BalanceRepository) Update(ctx context.Context, balance *entities.UserBalance) error {
	query := `
		UPDATE user_balances
		SET real_balance = $2, bonus_balance = $3, updated_at = NOW()
		WHERE user_id = $1
	`

	tag, err := r.q.Exec(ctx, query, balance.UserID, balance.RealBalance, balance.BonusBalance)
	if err != nil {
		return fmt.Errorf("failed to update balance for user %d: %w", balance.UserID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no balance row for user %d", balance.UserID)
	}

	return nil
}
