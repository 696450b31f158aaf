package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"jackpotd/pipeline"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

// KafkaReplaySource pulls historical contribution and win events off a
// kafka topic for bulk aggregation. A topic has no natural end, so the
// source reports EOF once no message arrives within the idle timeout:
// the backlog is considered drained.
type KafkaReplaySource struct {
	reader      *kafka.Reader
	idleTimeout time.Duration
	skipped     int
}

// NewKafkaReplaySource creates a replay source over a consumer group.
// idleTimeout defaults to 5s when zero.
func NewKafkaReplaySource(brokers []string, topic, groupID string, idleTimeout time.Duration) *KafkaReplaySource {
	if idleTimeout <= 0 {
		idleTimeout = 5 * time.Second
	}
	return &KafkaReplaySource{
		reader:      NewKafkaReader(brokers, topic, groupID),
		idleTimeout: idleTimeout,
	}
}

// Next returns the next decodable event. Undecodable records are
// skipped with a warning rather than aborting the replay.
func (s *KafkaReplaySource) Next(ctx context.Context) (pipeline.StreamEvent, error) {
	for {
		readCtx, cancel := context.WithTimeout(ctx, s.idleTimeout)
		msg, err := s.reader.ReadMessage(readCtx)
		cancel()

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return pipeline.StreamEvent{}, io.EOF
			}
			if ctx.Err() != nil {
				return pipeline.StreamEvent{}, ctx.Err()
			}
			return pipeline.StreamEvent{}, fmt.Errorf("failed to read replay message: %w", err)
		}

		var event pipeline.StreamEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			s.skipped++
			log.WithFields(log.Fields{
				"topic":  msg.Topic,
				"offset": msg.Offset,
			}).WithError(err).Warn("Skipping undecodable replay record")
			continue
		}
		if !event.Group.IsValid() {
			s.skipped++
			log.WithFields(log.Fields{
				"topic":  msg.Topic,
				"offset": msg.Offset,
				"group":  event.Group,
			}).Warn("Skipping replay record with unknown pool group")
			continue
		}

		return event, nil
	}
}

// Skipped reports how many records were dropped as undecodable
func (s *KafkaReplaySource) Skipped() int {
	return s.skipped
}

// Close releases the underlying reader
func (s *KafkaReplaySource) Close() error {
	return s.reader.Close()
}
