package analytics

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// KafkaDestination mirrors every event onto a Kafka topic, keyed by user or
// device so per-identity ordering survives partitioning. The writer runs in
// async mode: Execute enqueues into the writer's internal batcher and never
// blocks on the broker.
type KafkaDestination struct {
	writer *kafka.Writer
	logger StructuredLogger
}

// NewKafkaDestination creates a destination writing to topic on brokers.
func NewKafkaDestination(brokers []string, topic string) *KafkaDestination {
	return &KafkaDestination{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
		},
	}
}

// Name implements Plugin.
func (*KafkaDestination) Name() string { return "kafka" }

// Setup implements Plugin.
func (d *KafkaDestination) Setup(client *Client) error {
	d.logger = client.logger
	d.writer.Completion = func(messages []kafka.Message, err error) {
		if err != nil {
			d.logger.Error("kafka delivery failed",
				"messages", len(messages), "error", err)
		}
	}
	return nil
}

// Execute implements DestinationPlugin.
func (d *KafkaDestination) Execute(event *Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("analytics: failed to encode event for kafka: %w", err)
	}

	key := event.UserID
	if key == "" {
		key = event.DeviceID
	}

	return d.writer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
}

// Flush implements DestinationPlugin. The async writer owns its batching, so
// there is nothing to wait on here.
func (d *KafkaDestination) Flush() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Shutdown implements DestinationPlugin. Closing the writer flushes any
// messages still buffered by the async batcher.
func (d *KafkaDestination) Shutdown(ctx context.Context) error {
	if err := d.writer.Close(); err != nil {
		return fmt.Errorf("analytics: failed to close kafka writer: %w", err)
	}
	return nil
}

var _ DestinationPlugin = (*KafkaDestination)(nil)
