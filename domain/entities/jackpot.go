package entities

import "time"

// PoolGroup identifies one of the progressive jackpot tiers
type PoolGroup string

const (
	PoolGroupMinor PoolGroup = "minor"
	PoolGroupMajor PoolGroup = "major"
	PoolGroupMega  PoolGroup = "mega"
)

// AllPoolGroups lists the tiers in ascending size order
var AllPoolGroups = []PoolGroup{PoolGroupMinor, PoolGroupMajor, PoolGroupMega}

// ParsePoolGroup converts a string into a PoolGroup, reporting whether
// it named a known tier.
func ParsePoolGroup(s string) (PoolGroup, bool) {
	switch PoolGroup(s) {
	case PoolGroupMinor, PoolGroupMajor, PoolGroupMega:
		return PoolGroup(s), true
	default:
		return "", false
	}
}

func (g PoolGroup) IsValid() bool {
	_, ok := ParsePoolGroup(string(g))
	return ok
}

func (g PoolGroup) String() string {
	return string(g)
}

// PoolConfig holds the static parameters for one jackpot tier.
// ContributionRateBps is the share of each wager routed to the pool in
// basis points, so 150 means 1.5% of the wager.
type PoolConfig struct {
	Group               PoolGroup `db:"pool_group"`
	SeedAmount          int64     `db:"seed_amount"`
	MaxAmount           int64     `db:"max_amount"`
	ContributionRateBps int64     `db:"contribution_rate_bps"`
}

// ContributionFor returns the slice of wager owed to this pool.
// Division truncates toward zero so pools never over-collect.
func (c *PoolConfig) ContributionFor(wager int64) int64 {
	if wager <= 0 || c.ContributionRateBps <= 0 {
		return 0
	}
	return wager * c.ContributionRateBps / 10000
}

// JackpotPool is the live balance of one tier. Amount only grows
// between wins; a win resets it to the configured seed.
// TotalContributions accumulates over the pool's whole lifetime and
// never resets.
type JackpotPool struct {
	ID                 int64     `db:"id"`
	Group              PoolGroup `db:"pool_group"`
	Amount             int64     `db:"amount"`
	SeedAmount         int64     `db:"seed_amount"`
	MaxAmount          int64     `db:"max_amount"`
	TotalContributions int64     `db:"total_contributions"`
	LastWonByUserID    *int64    `db:"last_won_by_user_id"`
	UpdatedAt          time.Time `db:"updated_at"`
}

// RoomFor clamps a contribution so the pool never exceeds its cap.
// A zero MaxAmount means the pool is uncapped.
func (p *JackpotPool) RoomFor(contribution int64) int64 {
	if contribution <= 0 {
		return 0
	}
	if p.MaxAmount <= 0 {
		return contribution
	}
	room := p.MaxAmount - p.Amount
	if room <= 0 {
		return 0
	}
	if contribution > room {
		return room
	}
	return contribution
}

// JackpotWin records a paid-out jackpot hit
type JackpotWin struct {
	ID        int64     `db:"id"`
	PoolID    int64     `db:"pool_id"`
	Group     PoolGroup `db:"pool_group"`
	UserID    int64     `db:"user_id"`
	Amount    int64     `db:"amount"`
	CreatedAt time.Time `db:"created_at"`
}
