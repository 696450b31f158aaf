package entities

import "time"

// User represents a player account. Balance buckets live on UserBalance;
// the flags here gate whether the account may settle bets at all.
type User struct {
	ID        int64     `db:"id"`
	Username  string    `db:"username"`
	Active    bool      `db:"active"`
	Blocked   bool      `db:"blocked"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// CanPlay reports whether the account is allowed to place wagers
func (u *User) CanPlay() bool {
	return u.Active && !u.Blocked
}
