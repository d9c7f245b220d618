package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/upperair/soundings/internal/config"
	"github.com/upperair/soundings/internal/pipeline"
)

// Publisher produces stored-sounding events to a Kafka topic.
// It implements pipeline.EventPublisher.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// PublishStored serializes and publishes one stored-sounding event.
func (p *Publisher) PublishStored(ctx context.Context, ev pipeline.StoredEvent) error {
	msg, err := serializeToMessage(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a StoredEvent into a Kafka message. Messages are
// keyed by station so a partition holds one station's timeline in order.
func serializeToMessage(ev pipeline.StoredEvent) (kafkago.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize stored-sounding event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(ev.StationID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "captured_at", Value: []byte(ev.CapturedAt.Format(time.RFC3339))},
		},
	}, nil
}
