package entities

import "time"

// Game is a configured game with wager bounds in cents. A disabled
// game rejects new settlements but does not affect ones in flight.
type Game struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	MinBet    int64     `db:"min_bet"`
	MaxBet    int64     `db:"max_bet"`
	Enabled   bool      `db:"enabled"`
	CreatedAt time.Time `db:"created_at"`
}

// AllowsWager reports whether amount falls within the game's bet bounds.
// A zero MaxBet means the game has no upper bound.
func (g *Game) AllowsWager(amount int64) bool {
	if amount < g.MinBet {
		return false
	}
	if g.MaxBet > 0 && amount > g.MaxBet {
		return false
	}
	return true
}

// GameSession tracks a user's play window and its running loss totals.
// Loss caps are cents; zero means the cap is not set.
type GameSession struct {
	ID             int64     `db:"id"`
	UserID         int64     `db:"user_id"`
	GameID         int64     `db:"game_id"`
	SessionLossCap int64     `db:"session_loss_cap"`
	DayLossCap     int64     `db:"day_loss_cap"`
	SessionLoss    int64     `db:"session_loss"`
	Active         bool      `db:"active"`
	StartedAt      time.Time `db:"started_at"`
	EndedAt        *time.Time `db:"ended_at"`
}

// WouldExceedSessionCap reports whether adding wager to the session's
// running loss would break its cap. An unset cap never blocks.
func (s *GameSession) WouldExceedSessionCap(wager int64) bool {
	if s.SessionLossCap <= 0 {
		return false
	}
	return s.SessionLoss+wager > s.SessionLossCap
}

// WouldExceedDayCap reports whether the day's accumulated loss plus
// this wager would break the daily cap. An unset cap never blocks.
func (s *GameSession) WouldExceedDayCap(dayLoss, wager int64) bool {
	if s.DayLossCap <= 0 {
		return false
	}
	return dayLoss+wager > s.DayLossCap
}
