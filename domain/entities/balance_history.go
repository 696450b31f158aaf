package entities

import "time"

// RelatedType represents what type of entity the related_id refers to
type RelatedType string

const (
	RelatedTypeSettlement RelatedType = "settlement"
	RelatedTypeJackpotWin RelatedType = "jackpot_win"
	RelatedTypeBonus      RelatedType = "bonus"
)

// BalanceHistory represents a historical balance change. Real and bonus
// buckets are snapshotted separately so a mixed deduction can be
// reconstructed exactly from a single row.
type BalanceHistory struct {
	ID                  int64           `db:"id"`
	UserID              int64           `db:"user_id"`
	RealBalanceBefore   int64           `db:"real_balance_before"`
	RealBalanceAfter    int64           `db:"real_balance_after"`
	BonusBalanceBefore  int64           `db:"bonus_balance_before"`
	BonusBalanceAfter   int64           `db:"bonus_balance_after"`
	ChangeAmount        int64           `db:"change_amount"`
	TransactionType     TransactionType `db:"transaction_type"`
	TransactionMetadata map[string]any  `db:"transaction_metadata"`
	RelatedID           *int64          `db:"related_id"`
	RelatedType         *RelatedType    `db:"related_type"`
	CreatedAt           time.Time       `db:"created_at"`
}

// TotalBefore returns the combined balance before the change
func (bh *BalanceHistory) TotalBefore() int64 {
	return bh.RealBalanceBefore + bh.BonusBalanceBefore
}

// TotalAfter returns the combined balance after the change
func (bh *BalanceHistory) TotalAfter() int64 {
	return bh.RealBalanceAfter + bh.BonusBalanceAfter
}

// IsPositiveChange returns true if the change amount is positive
func (bh *BalanceHistory) IsPositiveChange() bool {
	return bh.ChangeAmount > 0
}

// IsNegativeChange returns true if the change amount is negative
func (bh *BalanceHistory) IsNegativeChange() bool {
	return bh.ChangeAmount < 0
}

// IsWinTransaction returns true if this is a win-type transaction
func (bh *BalanceHistory) IsWinTransaction() bool {
	return bh.TransactionType.IsWinType()
}

// IsSystemTransaction returns true for system-generated adjustments
func (bh *BalanceHistory) IsSystemTransaction() bool {
	return bh.TransactionType.IsSystemGenerated()
}
