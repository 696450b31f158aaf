package testhelpers

import (
	"context"
	"time"

	"jackpotd/domain/entities"
	"jackpotd/domain/events"
	"jackpotd/domain/interfaces"

	"github.com/stretchr/testify/mock"
)

// MockUserRepository is a mock implementation of UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, userID int64) (*entities.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.User), args.Error(1)
}

func (m *MockUserRepository) Create(ctx context.Context, username string) (*entities.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.User), args.Error(1)
}

// MockBalanceRepository is a mock implementation of BalanceRepository
type MockBalanceRepository struct {
	mock.Mock
}

func (m *MockBalanceRepository) GetByUserID(ctx context.Context, userID int64) (*entities.UserBalance, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.UserBalance), args.Error(1)
}

func (m *MockBalanceRepository) GetByUserIDForUpdate(ctx context.Context, userID int64) (*entities.UserBalance, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.UserBalance), args.Error(1)
}

func (m *MockBalanceRepository) Update(ctx context.Context, balance *entities.UserBalance) error {
	args := m.Called(ctx, balance)
	return args.Error(0)
}

// MockBonusRepository is a mock implementation of BonusRepository
type MockBonusRepository struct {
	mock.Mock
}

func (m *MockBonusRepository) GetActiveByUser(ctx context.Context, userID int64) ([]*entities.UserBonus, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.UserBonus), args.Error(1)
}

func (m *MockBonusRepository) Deduct(ctx context.Context, bonusID int64, amount int64) error {
	args := m.Called(ctx, bonusID, amount)
	return args.Error(0)
}

func (m *MockBonusRepository) Credit(ctx context.Context, bonusID int64, amount int64) error {
	args := m.Called(ctx, bonusID, amount)
	return args.Error(0)
}

func (m *MockBonusRepository) Create(ctx context.Context, bonus *entities.UserBonus) (*entities.UserBonus, error) {
	args := m.Called(ctx, bonus)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.UserBonus), args.Error(1)
}

// MockGameRepository is a mock implementation of GameRepository
type MockGameRepository struct {
	mock.Mock
}

func (m *MockGameRepository) GetByID(ctx context.Context, gameID int64) (*entities.Game, error) {
	args := m.Called(ctx, gameID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Game), args.Error(1)
}

// MockSessionRepository is a mock implementation of SessionRepository
type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) GetByID(ctx context.Context, sessionID int64) (*entities.GameSession, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.GameSession), args.Error(1)
}

func (m *MockSessionRepository) AddSessionLoss(ctx context.Context, sessionID int64, delta int64) error {
	args := m.Called(ctx, sessionID, delta)
	return args.Error(0)
}

func (m *MockSessionRepository) GetDayLoss(ctx context.Context, userID int64, since time.Time) (int64, error) {
	args := m.Called(ctx, userID, since)
	return args.Get(0).(int64), args.Error(1)
}

// MockJackpotRepository is a mock implementation of JackpotRepository
type MockJackpotRepository struct {
	mock.Mock
}

func (m *MockJackpotRepository) GetByGroup(ctx context.Context, group entities.PoolGroup) (*entities.JackpotPool, error) {
	args := m.Called(ctx, group)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.JackpotPool), args.Error(1)
}

func (m *MockJackpotRepository) GetByGroupForUpdate(ctx context.Context, group entities.PoolGroup) (*entities.JackpotPool, error) {
	args := m.Called(ctx, group)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.JackpotPool), args.Error(1)
}

func (m *MockJackpotRepository) GetAll(ctx context.Context) ([]*entities.JackpotPool, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.JackpotPool), args.Error(1)
}

func (m *MockJackpotRepository) AddContribution(ctx context.Context, poolID int64, amount int64) (int64, int64, error) {
	args := m.Called(ctx, poolID, amount)
	return args.Get(0).(int64), args.Get(1).(int64), args.Error(2)
}

func (m *MockJackpotRepository) SetAmount(ctx context.Context, poolID int64, amount int64) error {
	args := m.Called(ctx, poolID, amount)
	return args.Error(0)
}

func (m *MockJackpotRepository) ResetAfterWin(ctx context.Context, poolID int64, amount int64, wonByUserID int64) error {
	args := m.Called(ctx, poolID, amount, wonByUserID)
	return args.Error(0)
}

func (m *MockJackpotRepository) RecordWin(ctx context.Context, win *entities.JackpotWin) error {
	args := m.Called(ctx, win)
	return args.Error(0)
}

// MockSettlementRepository is a mock implementation of SettlementRepository
type MockSettlementRepository struct {
	mock.Mock
}

func (m *MockSettlementRepository) Create(ctx context.Context, settlement *entities.Settlement) error {
	args := m.Called(ctx, settlement)
	return args.Error(0)
}

func (m *MockSettlementRepository) GetByIdempotencyKey(ctx context.Context, key string) (*entities.Settlement, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Settlement), args.Error(1)
}

func (m *MockSettlementRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*entities.Settlement, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Settlement), args.Error(1)
}

// MockBalanceHistoryRepository is a mock implementation of BalanceHistoryRepository
type MockBalanceHistoryRepository struct {
	mock.Mock
}

func (m *MockBalanceHistoryRepository) Record(ctx context.Context, history *entities.BalanceHistory) error {
	args := m.Called(ctx, history)
	return args.Error(0)
}

func (m *MockBalanceHistoryRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*entities.BalanceHistory, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.BalanceHistory), args.Error(1)
}

func (m *MockBalanceHistoryRepository) GetByDateRange(ctx context.Context, userID int64, from, to time.Time) ([]*entities.BalanceHistory, error) {
	args := m.Called(ctx, userID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.BalanceHistory), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) error {
	args := m.Called(event)
	return args.Error(0)
}

// MockFraudChecker is a mock implementation of FraudChecker
type MockFraudChecker struct {
	mock.Mock
}

func (m *MockFraudChecker) CheckBet(ctx context.Context, req *entities.BetRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

// MockDeadLetterSink is a mock implementation of DeadLetterSink
type MockDeadLetterSink struct {
	mock.Mock
}

func (m *MockDeadLetterSink) Publish(ctx context.Context, key string, payload []byte) error {
	args := m.Called(ctx, key, payload)
	return args.Error(0)
}

// MockCache is a mock implementation of the warm cache tier
type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	args := m.Called(ctx, key, dest)
	return args.Bool(0), args.Error(1)
}

func (m *MockCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *MockCache) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// MockBetService is a mock implementation of BetService
type MockBetService struct {
	mock.Mock
}

func (m *MockBetService) SettleBet(ctx context.Context, req *entities.BetRequest, outcome *entities.GameOutcome) (*entities.SettlementResult, error) {
	args := m.Called(ctx, req, outcome)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.SettlementResult), args.Error(1)
}

// MockBonusService is a mock implementation of BonusService
type MockBonusService struct {
	mock.Mock
}

func (m *MockBonusService) GrantBonus(ctx context.Context, userID int64, amount int64, preferred bool) (*entities.UserBonus, error) {
	args := m.Called(ctx, userID, amount, preferred)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.UserBonus), args.Error(1)
}

// MockUnitOfWork is a mock implementation of UnitOfWork. The repository
// getters return the mocks assigned to the struct fields so a test can
// set expectations on them directly.
type MockUnitOfWork struct {
	mock.Mock

	UserRepo           *MockUserRepository
	BalanceRepo        *MockBalanceRepository
	BonusRepo          *MockBonusRepository
	GameRepo           *MockGameRepository
	SessionRepo        *MockSessionRepository
	JackpotRepo        *MockJackpotRepository
	SettlementRepo     *MockSettlementRepository
	BalanceHistoryRepo *MockBalanceHistoryRepository
	Publisher          *MockEventPublisher
}

// NewMockUnitOfWork creates a MockUnitOfWork with every repository mock
// populated and Begin/Commit/Rollback permitted by default.
func NewMockUnitOfWork() *MockUnitOfWork {
	uow := &MockUnitOfWork{
		UserRepo:           new(MockUserRepository),
		BalanceRepo:        new(MockBalanceRepository),
		BonusRepo:          new(MockBonusRepository),
		GameRepo:           new(MockGameRepository),
		SessionRepo:        new(MockSessionRepository),
		JackpotRepo:        new(MockJackpotRepository),
		SettlementRepo:     new(MockSettlementRepository),
		BalanceHistoryRepo: new(MockBalanceHistoryRepository),
		Publisher:          new(MockEventPublisher),
	}
	uow.On("Begin", mock.Anything).Return(nil).Maybe()
	uow.On("Commit").Return(nil).Maybe()
	uow.On("Rollback").Return(nil).Maybe()
	return uow
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) UserRepository() interfaces.UserRepository {
	return m.UserRepo
}

func (m *MockUnitOfWork) BalanceRepository() interfaces.BalanceRepository {
	return m.BalanceRepo
}

func (m *MockUnitOfWork) BonusRepository() interfaces.BonusRepository {
	return m.BonusRepo
}

func (m *MockUnitOfWork) GameRepository() interfaces.GameRepository {
	return m.GameRepo
}

func (m *MockUnitOfWork) SessionRepository() interfaces.SessionRepository {
	return m.SessionRepo
}

func (m *MockUnitOfWork) JackpotRepository() interfaces.JackpotRepository {
	return m.JackpotRepo
}

func (m *MockUnitOfWork) SettlementRepository() interfaces.SettlementRepository {
	return m.SettlementRepo
}

func (m *MockUnitOfWork) BalanceHistoryRepository() interfaces.BalanceHistoryRepository {
	return m.BalanceHistoryRepo
}

func (m *MockUnitOfWork) EventBus() interfaces.EventPublisher {
	return m.Publisher
}

// MockUnitOfWorkFactory is a mock implementation of UnitOfWorkFactory.
// It hands out the single UnitOfWork it was built with, which suits
// services that create one unit of work per call.
type MockUnitOfWorkFactory struct {
	UOW *MockUnitOfWork
}

func NewMockUnitOfWorkFactory(uow *MockUnitOfWork) *MockUnitOfWorkFactory {
	return &MockUnitOfWorkFactory{UOW: uow}
}

func (f *MockUnitOfWorkFactory) Create() interfaces.UnitOfWork {
	return f.UOW
}
