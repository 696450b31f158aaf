package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jackpotd/domain/entities"
	"jackpotd/domain/errs"
	"jackpotd/domain/events"
	"jackpotd/domain/interfaces"

	"github.com/jackc/pgx/v5/pgconn"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type betService struct {
	userRepo    interfaces.UserRepository
	balanceRepo interfaces.BalanceRepository
	gameRepo    interfaces.GameRepository
	sessionRepo interfaces.SessionRepository
	uowFactory  interfaces.UnitOfWorkFactory
	fraud       interfaces.FraudChecker
}

// NewBetService creates a new bet settlement service. The injected
// repositories serve the lock-free preflight reads; all writes go
// through units of work from the factory.
func NewBetService(
	userRepo interfaces.UserRepository,
	balanceRepo interfaces.BalanceRepository,
	gameRepo interfaces.GameRepository,
	sessionRepo interfaces.SessionRepository,
	uowFactory interfaces.UnitOfWorkFactory,
	fraud interfaces.FraudChecker,
) interfaces.BetService {
	return &betService{
		userRepo:    userRepo,
		balanceRepo: balanceRepo,
		gameRepo:    gameRepo,
		sessionRepo: sessionRepo,
		uowFactory:  uowFactory,
		fraud:       fraud,
	}
}

// betSnapshot holds the entities loaded before the transaction opens
type betSnapshot struct {
	user    *entities.User
	balance *entities.UserBalance
	game    *entities.Game
	session *entities.GameSession
	dayLoss int64
}

// SettleBet runs the full settlement sequence: structural validation,
// parallel snapshot load, pure eligibility checks, fraud screening,
// then a single transaction that deducts the wager, credits winnings
// in the deduction's ratio, and records the settlement and ledger row.
func (s *betService) SettleBet(ctx context.Context, req *entities.BetRequest, outcome *entities.GameOutcome) (*entities.SettlementResult, error) {
	if err := validateSettleInputs(req, outcome); err != nil {
		return nil, err
	}
	req.Sanitize()

	snapshot, err := s.loadSnapshot(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := checkEligibility(req, snapshot); err != nil {
		return nil, err
	}

	if err := s.fraud.CheckBet(ctx, req); err != nil {
		if errs.IsSecurityRejection(err) {
			return nil, err
		}
		// The screen could not run at all; settling unscreened is worse
		// than failing the request
		return nil, fmt.Errorf("fraud check failed: %w", err)
	}

	result, err := s.settleInTransaction(ctx, req, outcome)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"userId":      req.UserID,
		"gameId":      req.GameID,
		"wagerAmount": req.WagerAmount,
		"winAmount":   outcome.WinAmount,
		"balanceType": result.BalanceType,
	}).Info("Bet settled")

	return result, nil
}

// validateSettleInputs enforces structural constraints before any
// storage round-trip.
func validateSettleInputs(req *entities.BetRequest, outcome *entities.GameOutcome) error {
	if req == nil {
		return errs.NewValidationError("request", "missing bet request")
	}
	if outcome == nil {
		return errs.NewValidationError("outcome", "missing game outcome")
	}
	if req.UserID <= 0 {
		return errs.NewValidationError("user_id", "must be positive")
	}
	if req.GameID <= 0 {
		return errs.NewValidationError("game_id", "must be positive")
	}
	if req.WagerAmount <= 0 {
		return errs.NewValidationError("wager_amount", "must be positive")
	}
	if outcome.WinAmount < 0 {
		return errs.NewValidationError("win_amount", "must be non-negative")
	}
	if outcome.JackpotWin != nil {
		if !outcome.JackpotWin.Group.IsValid() {
			return errs.NewValidationError("jackpot_win.group", "unknown pool group")
		}
		if outcome.JackpotWin.Amount <= 0 {
			return errs.NewValidationError("jackpot_win.amount", "must be positive")
		}
	}
	return nil
}

// loadSnapshot fetches the user, balance, game, session, and day loss
// in parallel. Each missing required entity is a precondition failure,
// not a validation failure.
func (s *betService) loadSnapshot(ctx context.Context, req *entities.BetRequest) (*betSnapshot, error) {
	snapshot := &betSnapshot{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		user, err := s.userRepo.GetByID(gctx, req.UserID)
		if err != nil {
			return fmt.Errorf("failed to load user: %w", err)
		}
		if user == nil {
			return errs.NewNotFoundError("user", req.UserID)
		}
		snapshot.user = user
		return nil
	})
	g.Go(func() error {
		balance, err := s.balanceRepo.GetByUserID(gctx, req.UserID)
		if err != nil {
			return fmt.Errorf("failed to load balance: %w", err)
		}
		if balance == nil {
			return errs.NewNotFoundError("balance", req.UserID)
		}
		snapshot.balance = balance
		return nil
	})
	g.Go(func() error {
		game, err := s.gameRepo.GetByID(gctx, req.GameID)
		if err != nil {
			return fmt.Errorf("failed to load game: %w", err)
		}
		if game == nil {
			return errs.NewNotFoundError("game", req.GameID)
		}
		snapshot.game = game
		return nil
	})
	if req.SessionID > 0 {
		g.Go(func() error {
			session, err := s.sessionRepo.GetByID(gctx, req.SessionID)
			if err != nil {
				return fmt.Errorf("failed to load session: %w", err)
			}
			if session == nil {
				return errs.NewNotFoundError("session", req.SessionID)
			}
			snapshot.session = session
			return nil
		})
		g.Go(func() error {
			dayStart := time.Now().UTC().Truncate(24 * time.Hour)
			dayLoss, err := s.sessionRepo.GetDayLoss(gctx, req.UserID, dayStart)
			if err != nil {
				return fmt.Errorf("failed to load day loss: %w", err)
			}
			snapshot.dayLoss = dayLoss
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// checkEligibility runs the pure pre-write checks over the snapshot
func checkEligibility(req *entities.BetRequest, snapshot *betSnapshot) error {
	if !snapshot.user.CanPlay() {
		return &errs.SecurityRejection{UserID: req.UserID, Reason: "account is blocked or inactive"}
	}
	if !snapshot.game.Enabled {
		return errs.NewValidationError("game_id", "game is disabled")
	}
	if !snapshot.game.AllowsWager(req.WagerAmount) {
		return errs.NewValidationError("wager_amount",
			fmt.Sprintf("wager outside game bounds [%d, %d]", snapshot.game.MinBet, snapshot.game.MaxBet))
	}

	if session := snapshot.session; session != nil {
		if !session.Active {
			return errs.NewValidationError("session_id", "session has ended")
		}
		if session.UserID != req.UserID {
			return errs.NewValidationError("session_id", "session belongs to another user")
		}
		if session.WouldExceedSessionCap(req.WagerAmount) {
			return errs.NewValidationError("wager_amount", "session loss cap reached")
		}
		if session.WouldExceedDayCap(snapshot.dayLoss, req.WagerAmount) {
			return errs.NewValidationError("wager_amount", "daily loss cap reached")
		}
	}

	if !snapshot.balance.CanCover(req.WagerAmount) {
		return &errs.InsufficientBalanceError{
			UserID:    req.UserID,
			Requested: req.WagerAmount,
			Available: snapshot.balance.Total(),
		}
	}
	return nil
}

// settleInTransaction performs the atomic deduct-credit-record
// sequence. The balance row lock serializes concurrent settlements
// for the same user, and sufficiency is re-checked against the locked
// row before any write.
func (s *betService) settleInTransaction(ctx context.Context, req *entities.BetRequest, outcome *entities.GameOutcome) (*entities.SettlementResult, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback() // No-op if already committed

	if req.IdempotencyKey != "" {
		existing, err := uow.SettlementRepository().GetByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency key: %w", err)
		}
		if existing != nil {
			return nil, &errs.DuplicateSettlementError{
				IdempotencyKey: req.IdempotencyKey,
				SettlementID:   existing.ID,
			}
		}
	}

	balance, err := uow.BalanceRepository().GetByUserIDForUpdate(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock balance: %w", err)
	}
	if balance == nil {
		return nil, errs.NewNotFoundError("balance", req.UserID)
	}
	if !balance.CanCover(req.WagerAmount) {
		return nil, &errs.InsufficientBalanceError{
			UserID:    req.UserID,
			Requested: req.WagerAmount,
			Available: balance.Total(),
		}
	}

	bonuses, err := uow.BonusRepository().GetActiveByUser(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load bonuses: %w", err)
	}

	deduction, err := ComputeDeduction(balance.RealBalance, bonuses, req.WagerAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to compute deduction: %w", err)
	}

	winnings := ComputeWinnings(outcome.WinAmount, &deduction.DeductedFrom)

	realBefore, bonusBefore := balance.RealBalance, balance.BonusBalance
	realAfter := realBefore - deduction.DeductedFrom.Real
	bonusAfter := bonusBefore - deduction.DeductedFrom.BonusTotal()
	if winnings != nil {
		realAfter += winnings.Real
		bonusAfter += winnings.BonusTotal()
	}

	// Both buckets must land non-negative even though sufficiency was
	// already checked against the locked row
	if realAfter < 0 || bonusAfter < 0 {
		return nil, fmt.Errorf("settlement would leave negative balance: real=%d bonus=%d", realAfter, bonusAfter)
	}

	for _, d := range deduction.DeductedFrom.Bonuses {
		if err := uow.BonusRepository().Deduct(ctx, d.BonusID, d.Amount); err != nil {
			return nil, fmt.Errorf("failed to deduct bonus: %w", err)
		}
	}
	if winnings != nil {
		for _, c := range winnings.Bonuses {
			if err := uow.BonusRepository().Credit(ctx, c.BonusID, c.Amount); err != nil {
				return nil, fmt.Errorf("failed to credit bonus: %w", err)
			}
		}
	}

	balance.RealBalance = realAfter
	balance.BonusBalance = bonusAfter
	if err := uow.BalanceRepository().Update(ctx, balance); err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	settlement := &entities.Settlement{
		UserID:        req.UserID,
		GameID:        req.GameID,
		SessionID:     req.SessionID,
		WagerAmount:   req.WagerAmount,
		WinAmount:     outcome.WinAmount,
		BalanceType:   deduction.BalanceType,
		OperatorID:    req.OperatorID,
		AffiliateName: req.AffiliateName,
	}
	if req.IdempotencyKey != "" {
		settlement.IdempotencyKey = &req.IdempotencyKey
	}
	if err := uow.SettlementRepository().Create(ctx, settlement); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, &errs.DuplicateSettlementError{IdempotencyKey: req.IdempotencyKey}
		}
		return nil, fmt.Errorf("failed to create settlement: %w", err)
	}

	transactionType := entities.TransactionTypeBetWager
	if outcome.WinAmount > 0 {
		transactionType = entities.TransactionTypeBetWin
	}
	relatedType := entities.RelatedTypeSettlement
	history := &entities.BalanceHistory{
		UserID:             req.UserID,
		RealBalanceBefore:  realBefore,
		RealBalanceAfter:   realAfter,
		BonusBalanceBefore: bonusBefore,
		BonusBalanceAfter:  bonusAfter,
		ChangeAmount:       outcome.WinAmount - req.WagerAmount,
		TransactionType:    transactionType,
		TransactionMetadata: map[string]any{
			"wager_amount":   req.WagerAmount,
			"win_amount":     outcome.WinAmount,
			"deducted_real":  deduction.DeductedFrom.Real,
			"deducted_bonus": deduction.DeductedFrom.BonusTotal(),
		},
		RelatedID:   &settlement.ID,
		RelatedType: &relatedType,
	}
	if err := uow.BalanceHistoryRepository().Record(ctx, history); err != nil {
		return nil, fmt.Errorf("failed to record balance change: %w", err)
	}

	if req.SessionID > 0 {
		if err := uow.SessionRepository().AddSessionLoss(ctx, req.SessionID, req.WagerAmount-outcome.WinAmount); err != nil {
			return nil, fmt.Errorf("failed to update session loss: %w", err)
		}
	}

	uow.EventBus().Publish(events.BalanceChangeEvent{
		UserID:          req.UserID,
		OldRealBalance:  realBefore,
		NewRealBalance:  realAfter,
		OldBonusBalance: bonusBefore,
		NewBonusBalance: bonusAfter,
		TransactionType: transactionType,
		ChangeAmount:    outcome.WinAmount - req.WagerAmount,
	})
	uow.EventBus().Publish(events.BetSettledEvent{
		SettlementID: settlement.ID,
		UserID:       req.UserID,
		GameID:       req.GameID,
		WagerAmount:  req.WagerAmount,
		WinAmount:    outcome.WinAmount,
		BalanceType:  deduction.BalanceType,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit settlement: %w", err)
	}

	return &entities.SettlementResult{
		WagerAmount:        req.WagerAmount,
		WinAmount:          outcome.WinAmount,
		RealBalanceBefore:  realBefore,
		RealBalanceAfter:   realAfter,
		BonusBalanceBefore: bonusBefore,
		BonusBalanceAfter:  bonusAfter,
		BalanceType:        deduction.BalanceType,
		Deduction:          deduction,
		Winnings:           winnings,
	}, nil
}
