package testutil

import (
	"context"
	"testing"
	"time"

	"jackpotd/database"
	"jackpotd/domain/entities"

	"github.com/stretchr/testify/require"
)

// CreateTestBetRequest creates a bet request with default values
func CreateTestBetRequest(userID, gameID int64, wager int64) *entities.BetRequest {
	return &entities.BetRequest{
		UserID:      userID,
		GameID:      gameID,
		WagerAmount: wager,
	}
}

// CreateTestBalanceHistory creates a test balance history entry
func CreateTestBalanceHistory(userID int64, transactionType entities.TransactionType) *entities.BalanceHistory {
	return &entities.BalanceHistory{
		UserID:             userID,
		RealBalanceBefore:  100000,
		RealBalanceAfter:   90000,
		BonusBalanceBefore: 50000,
		BonusBalanceAfter:  50000,
		ChangeAmount:       -10000,
		TransactionType:    transactionType,
		TransactionMetadata: map[string]any{
			"test": true,
		},
		CreatedAt: time.Now(),
	}
}

// SeedUser inserts a user with the given balance buckets and returns its ID
func SeedUser(t *testing.T, db *database.DB, username string, realBalance, bonusBalance int64) int64 {
	t.Helper()
	ctx := context.Background()

	var userID int64
	err := db.QueryRow(ctx,
		`INSERT INTO users (username) VALUES ($1) RETURNING id`, username).Scan(&userID)
	require.NoError(t, err)

	_, err = db.Exec(ctx,
		`INSERT INTO user_balances (user_id, real_balance, bonus_balance) VALUES ($1, $2, $3)`,
		userID, realBalance, bonusBalance)
	require.NoError(t, err)

	return userID
}

// SeedBonus inserts a bonus bucket for a user and returns its ID
func SeedBonus(t *testing.T, db *database.DB, userID, amount int64, preferred bool) int64 {
	t.Helper()

	var bonusID int64
	err := db.QueryRow(context.Background(),
		`INSERT INTO user_bonuses (user_id, amount, preferred) VALUES ($1, $2, $3) RETURNING id`,
		userID, amount, preferred).Scan(&bonusID)
	require.NoError(t, err)

	return bonusID
}

// SeedGame inserts a game with the given bet bounds and returns its ID
func SeedGame(t *testing.T, db *database.DB, name string, minBet, maxBet int64) int64 {
	t.Helper()

	var gameID int64
	err := db.QueryRow(context.Background(),
		`INSERT INTO games (name, min_bet, max_bet) VALUES ($1, $2, $3) RETURNING id`,
		name, minBet, maxBet).Scan(&gameID)
	require.NoError(t, err)

	return gameID
}

// SeedSession inserts an active session and returns its ID
func SeedSession(t *testing.T, db *database.DB, userID, gameID int64, sessionLossCap, dayLossCap int64) int64 {
	t.Helper()

	var sessionID int64
	err := db.QueryRow(context.Background(),
		`INSERT INTO game_sessions (user_id, game_id, session_loss_cap, day_loss_cap)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		userID, gameID, sessionLossCap, dayLossCap).Scan(&sessionID)
	require.NoError(t, err)

	return sessionID
}

// GetBalances reads both buckets for a user directly
func GetBalances(t *testing.T, db *database.DB, userID int64) (real, bonus int64) {
	t.Helper()

	err := db.QueryRow(context.Background(),
		`SELECT real_balance, bonus_balance FROM user_balances WHERE user_id = $1`,
		userID).Scan(&real, &bonus)
	require.NoError(t, err)

	return real, bonus
}
