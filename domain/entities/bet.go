package entities

import (
	"strings"
	"time"
	"unicode"
)

// Field length bounds applied during bet request sanitization
const (
	MaxOperatorIDLength    = 64
	MaxAffiliateNameLength = 128
	MaxIdempotencyKeyLength = 128
)

// BetRequest is an incoming wager to settle. It is immutable once
// validated; string fields are sanitized before the request is
// persisted or logged.
type BetRequest struct {
	UserID         int64  `json:"user_id"`
	GameID         int64  `json:"game_id"`
	WagerAmount    int64  `json:"wager_amount"`
	SessionID      int64  `json:"session_id,omitempty"`
	OperatorID     string `json:"operator_id,omitempty"`
	AffiliateName  string `json:"affiliate_name,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Sanitize strips control characters and truncates free-text fields so
// a hostile payload cannot inject into logs or stored rows.
func (r *BetRequest) Sanitize() {
	r.OperatorID = sanitizeString(r.OperatorID, MaxOperatorIDLength)
	r.AffiliateName = sanitizeString(r.AffiliateName, MaxAffiliateNameLength)
	r.IdempotencyKey = sanitizeString(r.IdempotencyKey, MaxIdempotencyKeyLength)
}

func sanitizeString(s string, maxLen int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	if len(cleaned) > maxLen {
		cleaned = cleaned[:maxLen]
	}
	return cleaned
}

// JackpotWinClaim is attached to a game outcome when the round hit a
// jackpot. The claimed amount is verified against the locked pool row
// before any payout.
type JackpotWinClaim struct {
	Group  PoolGroup `json:"group"`
	Amount int64     `json:"amount"`
}

// GameOutcome is the result of a game round to settle against the wager
type GameOutcome struct {
	WinAmount  int64            `json:"win_amount"`
	GameData   map[string]any   `json:"game_data,omitempty"`
	JackpotWin *JackpotWinClaim `json:"jackpot_win,omitempty"`
}

// SettlementResult is the consistent before/after snapshot returned by
// a committed settlement.
type SettlementResult struct {
	WagerAmount        int64             `json:"wager_amount"`
	WinAmount          int64             `json:"win_amount"`
	RealBalanceBefore  int64             `json:"real_balance_before"`
	RealBalanceAfter   int64             `json:"real_balance_after"`
	BonusBalanceBefore int64             `json:"bonus_balance_before"`
	BonusBalanceAfter  int64             `json:"bonus_balance_after"`
	BalanceType        BalanceType       `json:"balance_type"`
	Deduction          *BalanceDeduction `json:"deduction"`
	Winnings           *WinningsAddition `json:"winnings,omitempty"`
}

// GrossGamingRevenue returns wager minus win for this settlement
func (r *SettlementResult) GrossGamingRevenue() int64 {
	return r.WagerAmount - r.WinAmount
}

// Settlement is the persisted record of a completed bet settlement.
// The idempotency key, when present, is unique: replaying a request
// with a known key returns the stored result without mutating balances.
type Settlement struct {
	ID             int64       `db:"id"`
	UserID         int64       `db:"user_id"`
	GameID         int64       `db:"game_id"`
	SessionID      int64       `db:"session_id"`
	WagerAmount    int64       `db:"wager_amount"`
	WinAmount      int64       `db:"win_amount"`
	BalanceType    BalanceType `db:"balance_type"`
	OperatorID     string      `db:"operator_id"`
	AffiliateName  string      `db:"affiliate_name"`
	IdempotencyKey *string     `db:"idempotency_key"`
	CreatedAt      time.Time   `db:"created_at"`
}
