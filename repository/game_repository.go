package repository

import (
	"context"
	"fmt"

	"jackpotd/database"
	"jackpotd/domain/entities"

	"github.com/jackc/pgx/v5"
)

// GameRepository implements the GameRepository interface
type GameRepository struct {
	q Queryable
}

// NewGameRepository creates a new game repository
func NewGameRepository(db *database.DB) *GameRepository {
	return &GameRepository{q: db.Pool}
}

// newGameRepositoryWithTx creates a new game repository with a transaction
func newGameRepositoryWithTx(tx Queryable) *GameRepository {
	return &GameRepository{q: tx}
}

// GetByID retrieves a game by ID
func (r *GameRepository) GetByID(ctx context.Context, gameID int64) (*entities.Game, error) {
	query := `
		SELECT id, name, min_bet, max_bet, enabled, created_at
		FROM games
		WHERE id = $1
	`

	var game entities.Game
	err := r.q.QueryRow(ctx, query, gameID).Scan(
		&game.ID,
		&game.Name,
		&game.MinBet,
		&game.MaxBet,
		&game.Enabled,
		&game.CreatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get game by ID %d: %w", gameID, err)
	}

	return &game, nil
}
