package services

import (
	"context"
	"fmt"

	"jackpotd/domain/entities"
	"jackpotd/domain/errs"
	"jackpotd/domain/events"
	"jackpotd/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

type bonusService struct {
	uowFactory interfaces.UnitOfWorkFactory
}

// NewBonusService creates a new bonus lifecycle service
func NewBonusService(uowFactory interfaces.UnitOfWorkFactory) interfaces.BonusService {
	return &bonusService{uowFactory: uowFactory}
}

// GrantBonus opens a new bonus bucket for the user and mirrors the
// amount into the balance's bonus total in the same transaction.
func (s *bonusService) GrantBonus(ctx context.Context, userID int64, amount int64, preferred bool) (*entities.UserBonus, error) {
	if userID <= 0 {
		return nil, errs.NewValidationError("user_id", "must be positive")
	}
	if amount <= 0 {
		return nil, errs.NewValidationError("amount", "must be positive")
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	balance, err := uow.BalanceRepository().GetByUserIDForUpdate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock balance: %w", err)
	}
	if balance == nil {
		return nil, errs.NewNotFoundError("balance", userID)
	}

	bonus, err := uow.BonusRepository().Create(ctx, &entities.UserBonus{
		UserID:    userID,
		Amount:    amount,
		Preferred: preferred,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bonus: %w", err)
	}

	realBefore, bonusBefore := balance.RealBalance, balance.BonusBalance
	balance.BonusBalance += amount
	if err := uow.BalanceRepository().Update(ctx, balance); err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	relatedType := entities.RelatedTypeBonus
	history := &entities.BalanceHistory{
		UserID:             userID,
		RealBalanceBefore:  realBefore,
		RealBalanceAfter:   balance.RealBalance,
		BonusBalanceBefore: bonusBefore,
		BonusBalanceAfter:  balance.BonusBalance,
		ChangeAmount:       amount,
		TransactionType:    entities.TransactionTypeBonusGrant,
		TransactionMetadata: map[string]any{
			"bonus_id":  bonus.ID,
			"preferred": preferred,
		},
		RelatedID:   &bonus.ID,
		RelatedType: &relatedType,
	}
	if err := uow.BalanceHistoryRepository().Record(ctx, history); err != nil {
		return nil, fmt.Errorf("failed to record bonus grant: %w", err)
	}

	uow.EventBus().Publish(events.BalanceChangeEvent{
		UserID:          userID,
		OldRealBalance:  realBefore,
		NewRealBalance:  balance.RealBalance,
		OldBonusBalance: bonusBefore,
		NewBonusBalance: balance.BonusBalance,
		TransactionType: entities.TransactionTypeBonusGrant,
		ChangeAmount:    amount,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit bonus grant: %w", err)
	}

	log.WithFields(log.Fields{
		"userId":    userID,
		"bonusId":   bonus.ID,
		"amount":    amount,
		"preferred": preferred,
	}).Info("Bonus granted")

	return bonus, nil
}
