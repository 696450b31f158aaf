package events

import (
	"context"
	"sync"

	"jackpotd/domain/entities"

	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeBalanceChange EventType = "balance_change"
	EventTypeBetSettled    EventType = "bet_settled"
	EventTypePoolUpdated   EventType = "pool_updated"
	EventTypeJackpotWon    EventType = "jackpot_won"
	EventTypeItemFailed    EventType = "item_failed"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// BalanceChangeEvent represents a balance change that occurred
type BalanceChangeEvent struct {
	UserID          int64
	OldRealBalance  int64
	NewRealBalance  int64
	OldBonusBalance int64
	NewBonusBalance int64
	TransactionType entities.TransactionType
	ChangeAmount    int64
}

func (e BalanceChangeEvent) Type() EventType {
	return EventTypeBalanceChange
}

// BetSettledEvent represents a completed bet settlement
type BetSettledEvent struct {
	SettlementID int64
	UserID       int64
	GameID       int64
	WagerAmount  int64
	WinAmount    int64
	BalanceType  entities.BalanceType
}

func (e BetSettledEvent) Type() EventType {
	return EventTypeBetSettled
}

// PoolUpdatedEvent represents a jackpot pool balance change
type PoolUpdatedEvent struct {
	PoolID    int64
	Group     entities.PoolGroup
	OldAmount int64
	NewAmount int64
}

func (e PoolUpdatedEvent) Type() EventType {
	return EventTypePoolUpdated
}

// JackpotWonEvent represents a paid-out jackpot hit
type JackpotWonEvent struct {
	PoolID    int64
	Group     entities.PoolGroup
	UserID    int64
	Amount    int64
	NewAmount int64
}

func (e JackpotWonEvent) Type() EventType {
	return EventTypeJackpotWon
}

// ItemFailedEvent represents a queue item that exhausted its retries
type ItemFailedEvent struct {
	ItemID   string
	Kind     string
	UserID   int64
	Attempts int
	Reason   string
}

func (e ItemFailedEvent) Type() EventType {
	return EventTypeItemFailed
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Subscription identifies one registered handler so it can be removed.
// Unsubscribe is idempotent.
type Subscription struct {
	bus       *Bus
	eventType EventType
	id        int64
}

// Unsubscribe removes the handler from the bus. Events already being
// dispatched may still reach it.
func (s *Subscription) Unsubscribe() {
	s.bus.unsubscribe(s.eventType, s.id)
}

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	nextID   int64
	handlers map[EventType]map[int64]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType]map[int64]Handler),
	}
}

// Subscribe adds a handler for a specific event type and returns a
// subscription the caller uses to remove it again.
func (b *Bus) Subscribe(eventType EventType, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[int64]Handler)
	}
	b.handlers[eventType][id] = handler

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")

	return &Subscription{bus: b, eventType: eventType, id: id}
}

func (b *Bus) unsubscribe(eventType EventType, id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.handlers[eventType], id)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Unsubscribed handler from event type")
}

// Emit publishes an event to all registered handlers
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[event.Type()]))
	for _, h := range b.handlers[event.Type()] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	log.WithFields(log.Fields{
		"eventType":    event.Type(),
		"handlerCount": len(handlers),
	}).Debug("Emitting event to handlers")

	// Call handlers asynchronously to avoid blocking
	for i, handler := range handlers {
		go func(h Handler, handlerIndex int) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// A transactional event bus for holding pending events coupled to the Unit of Work.
// Flushes to the underlying event bus.
type TransactionalBus struct {
	real    *Bus
	pending []Event // stashed until Flush
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) error {
	b.pending = append(b.pending, e)
	return nil
}

// called after successful DB commit
func (b *TransactionalBus) Flush(ctx context.Context) error {
	log.WithFields(log.Fields{
		"pendingEventCount": len(b.pending),
	}).Debug("Flushing pending events to main event bus")

	// Use background context for event emission so handlers outlive the
	// transaction context that produced the events
	eventCtx := context.Background()

	for _, ev := range b.pending {
		b.real.Emit(eventCtx, ev)
	}
	b.pending = nil
	return nil
}

// called after db rollback or to clear state.
func (b *TransactionalBus) Discard() {
	b.pending = nil
}
