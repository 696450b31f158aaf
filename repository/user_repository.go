package repository

import (
	"context"
	"fmt"

	"jackpotd/database"
	"jackpotd/domain/entities"

	"github.com/jackc/pgx/v5"
)

// UserRepository implements the UserRepository interface
type UserRepository struct {
	q Queryable
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{q: db.Pool}
}

// newUserRepositoryWithTx creates a new user repository with a transaction
func newUserRepositoryWithTx(tx Queryable) *UserRepository {
	return &UserRepository{q: tx}
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, userID int64) (*entities.User, error) {
	query := `
		SELECT id, username, active, blocked, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var user entities.User
	err := r.q.QueryRow(ctx, query, userID).Scan(
		&user.ID,
		&user.Username,
		&user.Active,
		&user.Blocked,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by ID %d: %w", userID, err)
	}

	return &user, nil
}

// Create creates a new user along with its empty balance row
func (r *UserRepository) Create(ctx context.Context, username string) (*entities.User, error) {
	query := `
		INSERT INTO users (username)
		VALUES ($1)
		RETURNING id, username, active, blocked, created_at, updated_at
	`

	var user entities.User
	err := r.q.QueryRow(ctx, query, username).Scan(
		&user.ID,
		&user.Username,
		&user.Active,
		&user.Blocked,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user %s: %w", username, err)
	}

	balanceQuery := `
		INSERT INTO user_balances (user_id, real_balance, bonus_balance)
		VALUES ($1, 0, 0)
	`
	if _, err := r.q.Exec(ctx, balanceQuery, user.ID); err != nil {
		return nil, fmt.Errorf("failed to create balance row for user %d: %w", user.ID, err)
	}

	return &user, nil
}
