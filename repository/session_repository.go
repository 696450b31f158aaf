package repository

import (
	"context"
	"fmt"
	"time"

	"jackpotd/database"
	"jackpotd/domain/entities"

	"github.com/jackc/pgx/v5"
)

// SessionRepository implements the SessionRepository interface
type SessionRepository struct {
	q Queryable
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{q: db.Pool}
}

// newSessionRepositoryWithTx creates a new session repository with a transaction
func newSessionRepositoryWithTx(tx Queryable) *SessionRepository {
	return &SessionRepository{q: tx}
}

// GetByID retrieves a session by ID
func (r *SessionRepository) GetByID(ctx context.Context, sessionID int64) (*entities.GameSession, error) {
	query := `
		SELECT id, user_id, game_id, session_loss_cap, day_loss_cap,
		       session_loss, active, started_at, ended_at
		FROM game_sessions
		WHERE id = $1
	`

	var session entities.GameSession
	err := r.q.QueryRow(ctx, query, sessionID).Scan(
		&session.ID,
		&session.UserID,
		&session.GameID,
		&session.SessionLossCap,
		&session.DayLossCap,
		&session.SessionLoss,
		&session.Active,
		&session.StartedAt,
		&session.EndedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session by ID %d: %w", sessionID, err)
	}

	return &session, nil
}

// AddSessionLoss adds delta to a session's running loss total. A win
// larger than the wager passes a negative delta.
func (r *SessionRepository) AddSessionLoss(ctx context.Context, sessionID int64, delta int64) error {
	query := `
		UPDATE game_sessions
		SET session_loss = session_loss + $2
		WHERE id = $1
	`

	tag, err := r.q.Exec(ctx, query, sessionID, delta)
	if err != nil {
		return fmt.Errorf("failed to add session loss for session %d: %w", sessionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no session row %d", sessionID)
	}

	return nil
}

// GetDayLoss returns the user's net loss across settlements since the
// given time. Wins subtract, so a winning day reports zero or negative.
func (r *SessionRepository) GetDayLoss(ctx context.Context, userID int64, since time.Time) (int64, error) {
	query := `
		SELECT COALESCE(SUM(wager_amount - win_amount), 0)
		FROM settlements
		WHERE user_id = $1 AND created_at >= $2
	`

	var loss int64
	err := r.q.QueryRow(ctx, query, userID, since).Scan(&loss)
	if err != nil {
		return 0, fmt.Errorf("failed to get day loss for user %d: %w", userID, err)
	}

	return loss, nil
}
