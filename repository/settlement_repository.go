package repository

import (
	"context"
	"fmt"

	"jackpotd/database"
	"jackpotd/domain/entities"

	"github.com/jackc/pgx/v5"
)

// SettlementRepository implements the SettlementRepository interface
type SettlementRepository struct {
	q Queryable
}

// NewSettlementRepository creates a new settlement repository
func NewSettlementRepository(db *database.DB) *SettlementRepository {
	return &SettlementRepository{q: db.Pool}
}

// newSettlementRepositoryWithTx creates a new settlement repository with a transaction
func newSettlementRepositoryWithTx(tx Queryable) *SettlementRepository {
	return &SettlementRepository{q: tx}
}

// Create persists a settlement and assigns its ID. A replayed
// idempotency key trips the unique index and surfaces as an error.
func (r *SettlementRepository) Create(ctx context.Context, settlement *entities.Settlement) error {
	query := `
		INSERT INTO settlements (user_id, game_id, session_id, wager_amount, win_amount,
		                         balance_type, operator_id, affiliate_name, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		settlement.UserID,
		settlement.GameID,
		settlement.SessionID,
		settlement.WagerAmount,
		settlement.WinAmount,
		string(settlement.BalanceType),
		settlement.OperatorID,
		settlement.AffiliateName,
		settlement.IdempotencyKey,
	).Scan(&settlement.ID, &settlement.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create settlement for user %d: %w", settlement.UserID, err)
	}

	return nil
}

// GetByIdempotencyKey retrieves a settlement by its idempotency key
func (r *SettlementRepository) GetByIdempotencyKey(ctx context.Context, key string) (*entities.Settlement, error) {
	query := `
		SELECT id, user_id, game_id, session_id, wager_amount, win_amount,
		       balance_type, operator_id, affiliate_name, idempotency_key, created_at
		FROM settlements
		WHERE idempotency_key = $1
	`

	settlement, err := scanSettlement(r.q.QueryRow(ctx, query, key))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement by idempotency key: %w", err)
	}

	return settlement, nil
}

// GetByUser returns recent settlements for a user, newest first
func (r *SettlementRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*entities.Settlement, error) {
	query := `
		SELECT id, user_id, game_id, session_id, wager_amount, win_amount,
		       balance_type, operator_id, affiliate_name, idempotency_key, created_at
		FROM settlements
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get settlements for user %d: %w", userID, err)
	}
	defer rows.Close()

	var settlements []*entities.Settlement
	for rows.Next() {
		settlement, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		settlements = append(settlements, settlement)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate settlements: %w", err)
	}

	return settlements, nil
}

func scanSettlement(row pgx.Row) (*entities.Settlement, error) {
	var settlement entities.Settlement
	var balanceType string
	err := row.Scan(
		&settlement.ID,
		&settlement.UserID,
		&settlement.GameID,
		&settlement.SessionID,
		&settlement.WagerAmount,
		&settlement.WinAmount,
		&balanceType,
		&settlement.OperatorID,
		&settlement.AffiliateName,
		&settlement.IdempotencyKey,
		&settlement.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	settlement.BalanceType = entities.BalanceType(balanceType)
	return &settlement, nil
}
