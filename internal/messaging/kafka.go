package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/librimongo/librimongo/internal/config"
	"github.com/librimongo/librimongo/pkg/models"
)

// InteractionEvent is the wire form of an activity record published on the
// interactions topic.
type InteractionEvent struct {
	Type      string                 `json:"type"`
	UserID    string                 `json:"user_id"`
	BookID    string                 `json:"book_id"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

type MessageBus struct {
	writer *kafka.Writer
	logger *logrus.Logger
}

func NewMessageBus(cfg *config.Config, logger *logrus.Logger) *MessageBus {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topics.Interactions,
		Balancer:     &kafka.Hash{}, // key by user so one reader sees a user's events in order
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}

	return &MessageBus{
		writer: writer,
		logger: logger,
	}
}

// PublishInteraction emits an interaction event. The caller treats publish
// failures as non-fatal; this method only reports them.
func (mb *MessageBus) PublishInteraction(ctx context.Context, record models.ActivityRecord) error {
	event := InteractionEvent{
		Type:      record.Type,
		UserID:    record.UserID.String(),
		BookID:    record.BookID.String(),
		Details:   record.Details,
		Timestamp: record.Timestamp,
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal interaction event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(event.UserID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "interaction_type", Value: []byte(event.Type)},
			{Key: "timestamp", Value: []byte(event.Timestamp.Format(time.RFC3339))},
		},
	}

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := mb.writer.WriteMessages(writeCtx, message); err != nil {
		return fmt.Errorf("failed to publish interaction event: %w", err)
	}

	return nil
}

func (mb *MessageBus) Close() error {
	if err := mb.writer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka writer: %w", err)
	}
	return nil
}
