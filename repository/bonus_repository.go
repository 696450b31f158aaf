package repository

import (
	"context"
	"fmt"

	"jackpotd/database"
	"jackpotd/domain/entities"
)

// BonusRepository implements the BonusRepository interface
type BonusRepository struct {
	q Queryable
}

// NewBonusRepository creates a new bonus repository
func NewBonusRepository(db *database.DB) *BonusRepository {
	return &BonusRepository{q: db.Pool}
}

// newBonusRepositoryWithTx creates a new bonus repository with a transaction
func newBonusRepositoryWithTx(tx Queryable) *BonusRepository {
	return &BonusRepository{q: tx}
}

// GetActiveByUser returns a user's non-empty bonuses in deduction
// order: preferred buckets first, then oldest first.
func (r *BonusRepository) GetActiveByUser(ctx context.Context, userID int64) ([]*entities.UserBonus, error) {
	query := `
		SELECT id, user_id, amount, preferred, created_at
		FROM user_bonuses
		WHERE user_id = $1 AND amount > 0
		ORDER BY preferred DESC, created_at ASC, id ASC
	`

	rows, err := r.q.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bonuses for user %d: %w", userID, err)
	}
	defer rows.Close()

	var bonuses []*entities.UserBonus
	for rows.Next() {
		var bonus entities.UserBonus
		if err := rows.Scan(&bonus.ID, &bonus.UserID, &bonus.Amount, &bonus.Preferred, &bonus.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bonus: %w", err)
		}
		bonuses = append(bonuses, &bonus)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bonuses: %w", err)
	}

	return bonuses, nil
}

// Deduct subtracts amount from one bonus bucket. The guard in the
// WHERE clause keeps a concurrent deduction from driving the bucket
// negative; losing the race is reported as an error.
func (r *BonusRepository) Deduct(ctx context.Context, bonusID int64, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("deduct amount must be positive, got %d", amount)
	}

	query := `
		UPDATE user_bonuses
		SET amount = amount - $2
		WHERE id = $1 AND amount >= $2
	`

	tag, err := r.q.Exec(ctx, query, bonusID, amount)
	if err != nil {
		return fmt.Errorf("failed to deduct %d from bonus %d: %w", amount, bonusID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bonus %d cannot cover deduction of %d", bonusID, amount)
	}

	return nil
}

// Credit adds amount back to one bonus bucket
func (r *BonusRepository) Credit(ctx context.Context, bonusID int64, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive, got %d", amount)
	}

	query := `
		UPDATE user_bonuses
		SET amount = amount + $2
		WHERE id = $1
	`

	tag, err := r.q.Exec(ctx, query, bonusID, amount)
	if err != nil {
		return fmt.Errorf("failed to credit %d to bonus %d: %w", amount, bonusID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no bonus row %d", bonusID)
	}

	return nil
}

// Create grants a new bonus to a user
func (r *BonusRepository) Create(ctx context.Context, bonus *entities.UserBonus) (*entities.UserBonus, error) {
	query := `
		INSERT INTO user_bonuses (user_id, amount, preferred)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query, bonus.UserID, bonus.Amount, bonus.Preferred).Scan(&bonus.ID, &bonus.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create bonus for user %d: %w", bonus.UserID, err)
	}

	return bonus, nil
}
