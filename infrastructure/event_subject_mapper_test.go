package infrastructure

import (
	"testing"

	"jackpotd/domain/events"

	"github.com/stretchr/testify/assert"
)

type unmappedEvent struct{}

func (unmappedEvent) Type() events.EventType { return "audit_trail" }

func TestMapEventToSubject(t *testing.T) {
	mapper := NewEventSubjectMapper()

	cases := []struct {
		event   events.Event
		subject string
	}{
		{events.BalanceChangeEvent{}, "users.balance_changed"},
		{events.BetSettledEvent{}, "betting.settled"},
		{events.PoolUpdatedEvent{}, "jackpots.pool_updated"},
		{events.JackpotWonEvent{}, "jackpots.won"},
		{events.ItemFailedEvent{}, "pipeline.item_failed"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.subject, mapper.MapEventToSubject(tc.event))
	}
}

func TestMapEventToSubject_UnknownType(t *testing.T) {
	mapper := NewEventSubjectMapper()

	assert.Equal(t, "unknown.audit_trail", mapper.MapEventToSubject(unmappedEvent{}))
}

// GetAllSubjects feeds stream provisioning; every mapped subject must
// be in it, and nothing else.
func TestGetAllSubjectsCoversMapping(t *testing.T) {
	mapper := NewEventSubjectMapper()

	mapped := []string{
		mapper.MapEventToSubject(events.BalanceChangeEvent{}),
		mapper.MapEventToSubject(events.BetSettledEvent{}),
		mapper.MapEventToSubject(events.PoolUpdatedEvent{}),
		mapper.MapEventToSubject(events.JackpotWonEvent{}),
		mapper.MapEventToSubject(events.ItemFailedEvent{}),
	}
	assert.ElementsMatch(t, mapped, mapper.GetAllSubjects())
}
