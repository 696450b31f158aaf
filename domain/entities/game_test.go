package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowsWager(t *testing.T) {
	game := &Game{MinBet: 100, MaxBet: 100000}

	assert.True(t, game.AllowsWager(100))
	assert.True(t, game.AllowsWager(100000))
	assert.False(t, game.AllowsWager(99))
	assert.False(t, game.AllowsWager(100001))
}

func TestAllowsWagerUncapped(t *testing.T) {
	game := &Game{MinBet: 100}

	assert.True(t, game.AllowsWager(10_000_000_000))
	assert.False(t, game.AllowsWager(99))
}

func TestWouldExceedSessionCap(t *testing.T) {
	session := &GameSession{SessionLossCap: 1000, SessionLoss: 800}

	assert.False(t, session.WouldExceedSessionCap(200), "reaching the cap exactly is allowed")
	assert.True(t, session.WouldExceedSessionCap(201))

	uncapped := &GameSession{SessionLoss: 1 << 40}
	assert.False(t, uncapped.WouldExceedSessionCap(1<<40))
}

func TestWouldExceedDayCap(t *testing.T) {
	session := &GameSession{DayLossCap: 1000}

	assert.False(t, session.WouldExceedDayCap(900, 100))
	assert.True(t, session.WouldExceedDayCap(900, 101))
	assert.False(t, (&GameSession{}).WouldExceedDayCap(1<<40, 1<<40))
}

func TestCanPlay(t *testing.T) {
	assert.True(t, (&User{Active: true}).CanPlay())
	assert.False(t, (&User{Active: true, Blocked: true}).CanPlay())
	assert.False(t, (&User{}).CanPlay())
}
