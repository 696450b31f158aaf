package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"jackpotd/domain/events"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// eventEnvelope wraps a domain event for the wire
type eventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Timestamp     time.Time       `json:"timestamp"`
	SourceService string          `json:"source_service"`
	Payload       json.RawMessage `json:"payload"`
}

// NATSEventBridge forwards in-process domain events to NATS subjects
// so external consumers see every balance, settlement, and pool change.
// Delivery is best effort; a publish failure never blocks the pipeline.
type NATSEventBridge struct {
	client        *NATSClient
	subjectMapper *EventSubjectMapper
	subscriptions []*events.Subscription
}

// NewNATSEventBridge creates a bridge over an already-connected client
func NewNATSEventBridge(client *NATSClient, subjectMapper *EventSubjectMapper) *NATSEventBridge {
	return &NATSEventBridge{
		client:        client,
		subjectMapper: subjectMapper,
	}
}

// Start subscribes the bridge to every outbound event type
func (b *NATSEventBridge) Start(bus *events.Bus) {
	forward := func(ctx context.Context, event events.Event) {
		b.forward(ctx, event)
	}

	for _, eventType := range []events.EventType{
		events.EventTypeBalanceChange,
		events.EventTypeBetSettled,
		events.EventTypePoolUpdated,
		events.EventTypeJackpotWon,
		events.EventTypeItemFailed,
	} {
		b.subscriptions = append(b.subscriptions, bus.Subscribe(eventType, forward))
	}

	log.WithField("subjects", b.subjectMapper.GetAllSubjects()).Info("NATS event bridge started")
}

// Stop removes the bridge's bus subscriptions
func (b *NATSEventBridge) Stop() {
	for _, sub := range b.subscriptions {
		sub.Unsubscribe()
	}
	b.subscriptions = nil
	log.Info("NATS event bridge stopped")
}

func (b *NATSEventBridge) forward(ctx context.Context, event events.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.WithField("eventType", event.Type()).WithError(err).Error("Failed to marshal event payload")
		return
	}

	envelope := eventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     string(event.Type()),
		Timestamp:     time.Now().UTC(),
		SourceService: "jackpotd",
		Payload:       payload,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		log.WithField("eventType", event.Type()).WithError(err).Error("Failed to marshal event envelope")
		return
	}

	subject := b.subjectMapper.MapEventToSubject(event)
	if err := b.client.Publish(ctx, subject, data); err != nil {
		log.WithFields(log.Fields{
			"subject":   subject,
			"eventType": event.Type(),
		}).WithError(err).Error("Failed to publish event to NATS")
		return
	}

	log.WithFields(log.Fields{
		"subject":   subject,
		"eventType": event.Type(),
	}).Debug("Event published to NATS")
}
