package entities

import (
	"fmt"
	"time"
)

// BalanceType describes which balance buckets funded an operation
type BalanceType string

const (
	BalanceTypeReal  BalanceType = "real"
	BalanceTypeBonus BalanceType = "bonus"
	BalanceTypeMixed BalanceType = "mixed"
)

// UserBalance is the aggregate balance snapshot for a user.
// All amounts are integer cents. Both buckets are non-negative after
// every committed mutation; the ledger rejects anything that would
// drive either negative before commit.
type UserBalance struct {
	UserID       int64     `db:"user_id"`
	RealBalance  int64     `db:"real_balance"`
	BonusBalance int64     `db:"bonus_balance"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// Total returns the combined real + bonus balance
func (b *UserBalance) Total() int64 {
	return b.RealBalance + b.BonusBalance
}

// CanCover returns true if the combined balance covers amount
func (b *UserBalance) CanCover(amount int64) bool {
	return b.Total() >= amount
}

// UserBonus is a single active bonus bucket. A user may hold several
// bonuses at once; a deduction reports per-bonus amounts so wagering
// progress can be attributed to the right bonus.
type UserBonus struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	Amount    int64     `db:"amount"`
	Preferred bool      `db:"preferred"`
	CreatedAt time.Time `db:"created_at"`
}

// BonusDeduction records how much was drawn from one bonus bucket
type BonusDeduction struct {
	BonusID int64 `json:"bonus_id"`
	Amount  int64 `json:"amount"`
}

// DeductionBreakdown itemizes the sources of a wager deduction
type DeductionBreakdown struct {
	Real    int64            `json:"real"`
	Bonuses []BonusDeduction `json:"bonuses"`
}

// BonusTotal returns the sum drawn across all bonus buckets
func (d DeductionBreakdown) BonusTotal() int64 {
	var total int64
	for _, b := range d.Bonuses {
		total += b.Amount
	}
	return total
}

// Total returns real + all bonus amounts
func (d DeductionBreakdown) Total() int64 {
	return d.Real + d.BonusTotal()
}

// BalanceDeduction is the result of removing a wager from a user's balances
type BalanceDeduction struct {
	BalanceType  BalanceType        `json:"balance_type"`
	DeductedFrom DeductionBreakdown `json:"deducted_from"`
}

// Validate checks the deduction invariant: the itemized sources must
// sum to exactly the wager amount.
func (d *BalanceDeduction) Validate(wagerAmount int64) error {
	if got := d.DeductedFrom.Total(); got != wagerAmount {
		return fmt.Errorf("deduction sources sum to %d, wager is %d", got, wagerAmount)
	}
	return nil
}

// WinningsAddition mirrors a deduction: winnings are credited back to
// the real/bonus buckets in the same proportion the wager was drawn
// from them, so bonus-funded wagers cannot surface as unrestricted
// real-money winnings beyond the deducted ratio.
type WinningsAddition struct {
	BalanceType BalanceType      `json:"balance_type"`
	Real        int64            `json:"real"`
	Bonuses     []BonusDeduction `json:"bonuses"`
}

// BonusTotal returns the total credited to bonus buckets
func (w *WinningsAddition) BonusTotal() int64 {
	var total int64
	for _, b := range w.Bonuses {
		total += b.Amount
	}
	return total
}

// Total returns the full credited amount
func (w *WinningsAddition) Total() int64 {
	return w.Real + w.BonusTotal()
}
