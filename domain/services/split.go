package services

import (
	"fmt"

	"jackpotd/domain/entities"
)

// ComputeDeduction decides how a wager is drawn across the real bucket
// and the bonus buckets. The policy is deterministic:
//
//  1. If any preferred bonus exists, bonus funds are drawn first, in
//     bucket order, overflowing into the real balance.
//  2. Otherwise the real balance pays alone when it can.
//  3. Otherwise the wager splits proportionally across whichever
//     buckets are non-zero, real taking the floored share and bonus
//     the rest.
//
// Bonuses must be ordered preferred-first, oldest-first, matching the
// repository's deduction order.
func ComputeDeduction(realBalance int64, bonuses []*entities.UserBonus, wager int64) (*entities.BalanceDeduction, error) {
	if wager <= 0 {
		return nil, fmt.Errorf("wager must be positive, got %d", wager)
	}

	bonusBalance := int64(0)
	hasPreferred := false
	for _, b := range bonuses {
		bonusBalance += b.Amount
		if b.Preferred && b.Amount > 0 {
			hasPreferred = true
		}
	}

	if realBalance+bonusBalance < wager {
		return nil, fmt.Errorf("balances cannot cover wager of %d", wager)
	}

	var fromReal, fromBonus int64
	switch {
	case hasPreferred:
		fromBonus = wager
		if fromBonus > bonusBalance {
			fromBonus = bonusBalance
		}
		fromReal = wager - fromBonus

	case realBalance >= wager:
		fromReal = wager

	default:
		// Proportional across the non-zero buckets; real takes the
		// floored share so bonus absorbs the rounding remainder
		fromReal = wager * realBalance / (realBalance + bonusBalance)
		fromBonus = wager - fromReal
	}

	breakdown := entities.DeductionBreakdown{
		Real:    fromReal,
		Bonuses: distributeAcrossBonuses(bonuses, fromBonus),
	}
	if got := breakdown.BonusTotal(); got != fromBonus {
		return nil, fmt.Errorf("bonus buckets cover %d of required %d", got, fromBonus)
	}

	deduction := &entities.BalanceDeduction{
		BalanceType:  balanceTypeFor(fromReal, fromBonus),
		DeductedFrom: breakdown,
	}
	if err := deduction.Validate(wager); err != nil {
		return nil, err
	}
	return deduction, nil
}

// distributeAcrossBonuses fills the bonus share greedily in bucket
// order, clipping at each bucket's amount.
func distributeAcrossBonuses(bonuses []*entities.UserBonus, total int64) []entities.BonusDeduction {
	if total <= 0 {
		return nil
	}

	var out []entities.BonusDeduction
	remaining := total
	for _, b := range bonuses {
		if remaining == 0 {
			break
		}
		take := b.Amount
		if take > remaining {
			take = remaining
		}
		if take <= 0 {
			continue
		}
		out = append(out, entities.BonusDeduction{BonusID: b.ID, Amount: take})
		remaining -= take
	}
	return out
}

// ComputeWinnings credits winAmount back in the same real/bonus ratio
// the wager was deducted in, so bonus-funded wagers produce
// bonus-weighted winnings. The real bucket absorbs the rounding
// remainder. If nothing was deducted, winnings default entirely to the
// real balance.
func ComputeWinnings(winAmount int64, deduction *entities.DeductionBreakdown) *entities.WinningsAddition {
	if winAmount <= 0 {
		return nil
	}

	deducted := deduction.Total()
	if deducted == 0 {
		return &entities.WinningsAddition{
			BalanceType: entities.BalanceTypeReal,
			Real:        winAmount,
		}
	}

	bonusDeducted := deduction.BonusTotal()
	toBonusTotal := winAmount * bonusDeducted / deducted
	toReal := winAmount - toBonusTotal

	addition := &entities.WinningsAddition{
		BalanceType: balanceTypeFor(toReal, toBonusTotal),
		Real:        toReal,
	}

	// The bonus share flows back to the buckets it was drawn from,
	// pro-rata, with the remainder cent landing on the first bucket
	if toBonusTotal > 0 {
		remaining := toBonusTotal
		for i, d := range deduction.Bonuses {
			var credit int64
			if i == len(deduction.Bonuses)-1 {
				credit = remaining
			} else {
				credit = toBonusTotal * d.Amount / bonusDeducted
				if credit > remaining {
					credit = remaining
				}
			}
			if credit <= 0 {
				continue
			}
			addition.Bonuses = append(addition.Bonuses, entities.BonusDeduction{BonusID: d.BonusID, Amount: credit})
			remaining -= credit
		}
		if remaining > 0 && len(addition.Bonuses) > 0 {
			addition.Bonuses[0].Amount += remaining
		}
	}

	return addition
}

func balanceTypeFor(real, bonus int64) entities.BalanceType {
	switch {
	case real > 0 && bonus > 0:
		return entities.BalanceTypeMixed
	case bonus > 0:
		return entities.BalanceTypeBonus
	default:
		return entities.BalanceTypeReal
	}
}
