package infrastructure

import (
	"fmt"

	"jackpotd/domain/events"
)

// EventSubjectMapper handles mapping between domain events and NATS subjects
type EventSubjectMapper struct{}

// NewEventSubjectMapper creates a new event subject mapper
func NewEventSubjectMapper() *EventSubjectMapper {
	return &EventSubjectMapper{}
}

// MapEventToSubject converts a domain event to its corresponding NATS subject
func (m *EventSubjectMapper) MapEventToSubject(event events.Event) string {
	switch event.Type() {
	case events.EventTypeBalanceChange:
		return "users.balance_changed"
	case events.EventTypeBetSettled:
		return "betting.settled"
	case events.EventTypePoolUpdated:
		return "jackpots.pool_updated"
	case events.EventTypeJackpotWon:
		return "jackpots.won"
	case events.EventTypeItemFailed:
		return "pipeline.item_failed"
	default:
		// Fallback for unknown event types
		return fmt.Sprintf("unknown.%s", event.Type())
	}
}

// GetAllSubjects returns all subjects that this service publishes to
func (m *EventSubjectMapper) GetAllSubjects() []string {
	return []string{
		"users.balance_changed",
		"betting.settled",
		"jackpots.pool_updated",
		"jackpots.won",
		"pipeline.item_failed",
	}
}
