/*
Package notifier publishes change notifications of the backend to kafka
*/
package notifier

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/relabs-tech/campus/core"
	"github.com/relabs-tech/campus/core/logger"
)

// messageWriter is the part of kafka.Writer the notifier needs
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka is a core.Notifier which publishes every notification as one kafka message.
// The message key is the resource name, the value the record as JSON. The headers
// carry the operation and the serialized logger context of the request.
type Kafka struct {
	writer messageWriter
	topic  string
}

var _ core.Notifier = (*Kafka)(nil)

// NewKafka returns a notifier which publishes to topic on brokers
func NewKafka(brokers []string, topic string) *Kafka {
	logger.Default().Infoln("publishing notifications to kafka topic", topic, "on", brokers)
	return &Kafka{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
		topic: topic,
	}
}

// Notify implements core.Notifier
func (k *Kafka) Notify(ctx context.Context, resource string, operation core.Operation, payload []byte) error {
	msg := kafka.Message{
		Key:   []byte(resource),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "operation", Value: []byte(operation)},
			{Key: "request", Value: logger.SerializeLoggerContext(ctx)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("cannot publish %s %s to %s: %w", operation, resource, k.topic, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer
func (k *Kafka) Close() error {
	return k.writer.Close()
}
