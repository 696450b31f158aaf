package entities

// TransactionType represents the type of balance change
type TransactionType string

// All transaction types recorded by the settlement pipeline
const (
	// Bet settlement transactions
	TransactionTypeBetWager TransactionType = "bet_wager"
	TransactionTypeBetWin   TransactionType = "bet_win"

	// Jackpot transactions
	TransactionTypeJackpotWin TransactionType = "jackpot_win"

	// Bonus lifecycle transactions
	TransactionTypeBonusGrant   TransactionType = "bonus_grant"
	TransactionTypeBonusForfeit TransactionType = "bonus_forfeit"

	// System transactions
	TransactionTypeInitial    TransactionType = "initial"
	TransactionTypeAdjustment TransactionType = "adjustment"
)

// IsWinType returns true if the transaction type credits the user
func (tt TransactionType) IsWinType() bool {
	return tt == TransactionTypeBetWin || tt == TransactionTypeJackpotWin
}

// IsWagerType returns true if the transaction type debits the user
func (tt TransactionType) IsWagerType() bool {
	return tt == TransactionTypeBetWager
}

// IsSystemGenerated returns true if the transaction type is system-generated
func (tt TransactionType) IsSystemGenerated() bool {
	return tt == TransactionTypeInitial || tt == TransactionTypeAdjustment
}

// String returns the string representation of the transaction type
func (tt TransactionType) String() string {
	return string(tt)
}
