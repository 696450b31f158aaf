package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

// KafkaDeadLetterSink publishes unprocessable queue items to a kafka
// topic for offline inspection and replay.
type KafkaDeadLetterSink struct {
	writer *kafka.Writer
}

// NewKafkaDeadLetterSink creates a sink writing to the given topic
func NewKafkaDeadLetterSink(brokers []string, topic string) *KafkaDeadLetterSink {
	return &KafkaDeadLetterSink{
		writer: NewKafkaWriter(brokers, topic),
	}
}

// Publish writes one dead-lettered item keyed by its queue item ID
func (s *KafkaDeadLetterSink) Publish(ctx context.Context, key string, payload []byte) error {
	err := s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to write dead letter %s: %w", key, err)
	}

	log.WithFields(log.Fields{
		"key":   key,
		"topic": s.writer.Topic,
	}).Debug("Dead letter published")
	return nil
}

// Close flushes and closes the underlying writer
func (s *KafkaDeadLetterSink) Close() error {
	return s.writer.Close()
}
