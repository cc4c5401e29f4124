package events

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	logDomain "github.com/davicafu/hexapost/internal/eventlog/domain"
	"github.com/davicafu/hexapost/internal/shared/events"
)

// ForwarderGroup es el consumer group del puente hacia Kafka.
const ForwarderGroup = "kafka-forwarder"

// MessageWriter es la parte de *kafka.Writer que usa el forwarder.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaForwarder reenvía los envelopes del log a un topic de Kafka para
// consumidores externos (notificaciones, etc). La key del mensaje es la partition
// key del evento, así Kafka mantiene el mismo ámbito de orden.
type KafkaForwarder struct {
	writer MessageWriter
	log    *zap.Logger
}

var _ logDomain.Handler = (*KafkaForwarder)(nil)

func NewKafkaForwarder(writer MessageWriter, log *zap.Logger) *KafkaForwarder {
	return &KafkaForwarder{writer: writer, log: log}
}

// Register suscribe el forwarder a todas las variantes.
func (f *KafkaForwarder) Register(sub logDomain.Subscriber) error {
	for _, t := range events.Types() {
		if err := sub.Subscribe(ForwarderGroup, t, f); err != nil {
			return fmt.Errorf("subscribe %s/%s: %w", ForwarderGroup, t, err)
		}
	}
	return nil
}

func (f *KafkaForwarder) Handle(ctx context.Context, env *events.Envelope) error {
	data, err := events.Encode(env)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(env.PartitionKey),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(env.ID)},
			{Key: "event-type", Value: []byte(env.Type)},
		},
	}

	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		f.log.Error("Error publishing to Kafka", zap.String("event_id", env.ID), zap.Error(err))
		return fmt.Errorf("kafka write %s: %w", env.ID, err)
	}

	f.log.Debug("Event forwarded to Kafka",
		zap.String("event_id", env.ID),
		zap.String("type", env.Type.String()),
	)
	return nil
}
