package repository

import (
	"context"
	"fmt"
	"time"

	"jackpotd/database"
	"jackpotd/domain/entities"
)

// BalanceHistoryRepository implements the BalanceHistoryRepository interface
type BalanceHistoryRepository struct {
	q Queryable
}

// NewBalanceHistoryRepository creates a new balance history repository
func NewBalanceHistoryRepository(db *database.DB) *BalanceHistoryRepository {
	return &BalanceHistoryRepository{q: db.Pool}
}

// newBalanceHistoryRepositoryWithTx creates a new balance history repository with a transaction
func newBalanceHistoryRepositoryWithTx(tx Queryable) *BalanceHistoryRepository {
	return &BalanceHistoryRepository{q: tx}
}

// Record creates a new balance history entry
func (r *BalanceHistoryRepository) Record(ctx context.Context, history *entities.BalanceHistory) error {
	query := `
		INSERT INTO balance_history (user_id, real_balance_before, real_balance_after,
		                             bonus_balance_before, bonus_balance_after, change_amount,
		                             transaction_type, transaction_metadata, related_id, related_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		history.UserID,
		history.RealBalanceBefore,
		history.RealBalanceAfter,
		history.BonusBalanceBefore,
		history.BonusBalanceAfter,
		history.ChangeAmount,
		string(history.TransactionType),
		history.TransactionMetadata,
		history.RelatedID,
		history.RelatedType,
	).Scan(&history.ID, &history.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record balance history for user %d: %w", history.UserID, err)
	}

	return nil
}

// GetByUser returns balance history for a specific user, newest first
func (r *BalanceHistoryRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*entities.BalanceHistory, error) {
	query := `
		SELECT id, user_id, real_balance_before, real_balance_after,
		       bonus_balance_before, bonus_balance_after, change_amount,
		       transaction_type, transaction_metadata, related_id, related_type, created_at
		FROM balance_history
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance history for user %d: %w", userID, err)
	}
	defer rows.Close()

	return scanBalanceHistories(rows)
}

// GetByDateRange returns balance history within a date range
func (r *BalanceHistoryRepository) GetByDateRange(ctx context.Context, userID int64, from, to time.Time) ([]*entities.BalanceHistory, error) {
	query := `
		SELECT id, user_id, real_balance_before, real_balance_after,
		       bonus_balance_before, bonus_balance_after, change_amount,
		       transaction_type, transaction_metadata, related_id, related_type, created_at
		FROM balance_history
		WHERE user_id = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at DESC
	`

	rows, err := r.q.Query(ctx, query, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance history range for user %d: %w", userID, err)
	}
	defer rows.Close()

	return scanBalanceHistories(rows)
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanBalanceHistories(rows pgxRows) ([]*entities.BalanceHistory, error) {
	var histories []*entities.BalanceHistory
	for rows.Next() {
		var h entities.BalanceHistory
		var transactionType string
		err := rows.Scan(
			&h.ID,
			&h.UserID,
			&h.RealBalanceBefore,
			&h.RealBalanceAfter,
			&h.BonusBalanceBefore,
			&h.BonusBalanceAfter,
			&h.ChangeAmount,
			&transactionType,
			&h.TransactionMetadata,
			&h.RelatedID,
			&h.RelatedType,
			&h.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan balance history: %w", err)
		}
		h.TransactionType = entities.TransactionType(transactionType)
		histories = append(histories, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate balance history: %w", err)
	}

	return histories, nil
}
