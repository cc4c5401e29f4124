package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	logApp "github.com/davicafu/hexapost/internal/eventlog/application"
	logDomain "github.com/davicafu/hexapost/internal/eventlog/domain"
	"github.com/davicafu/hexapost/internal/shared/events"
	sharedUtils "github.com/davicafu/hexapost/internal/shared/infra/utils"
)

// MessageReader es la parte de *kafka.Reader que usa el adaptador.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// IngressMessage es el formato que los servicios productores escriben en el topic de entrada.
type IngressMessage struct {
	ID        string          `json:"id,omitempty"`
	Type      events.Type     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt,omitempty"`
}

// ConsumerAdapter es el "oído" que escucha en Kafka: cada mensaje se entrega al
// Publisher y sólo se confirma en Kafka cuando el append es durable.
type ConsumerAdapter struct {
	reader    MessageReader
	publisher logDomain.EventPublisher
	backoff   sharedUtils.Backoff
	log       *zap.Logger
}

func NewConsumerAdapter(reader MessageReader, publisher logDomain.EventPublisher, backoff sharedUtils.Backoff, log *zap.Logger) *ConsumerAdapter {
	return &ConsumerAdapter{reader: reader, publisher: publisher, backoff: backoff.OrDefault(), log: log}
}

// Start lanza el bucle de consumo en una goroutine.
func (c *ConsumerAdapter) Start(ctx context.Context) {
	c.log.Info("🎧 Iniciando consumidor de Kafka...")
	go c.Run(ctx)
}

// Run consume hasta que ctx se cancele.
func (c *ConsumerAdapter) Run(ctx context.Context) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("Consumidor de Kafka detenido.")
				return
			}
			c.log.Error("Error al leer mensaje de Kafka", zap.Error(err))
			if sharedUtils.Sleep(ctx, c.backoff.Delay(1)) != nil {
				return
			}
			continue
		}

		if err := c.HandleMessage(ctx, msg); err != nil {
			// Sólo por cancelación: el mensaje queda sin confirmar y se relee al volver.
			return
		}
	}
}

// HandleMessage publica el mensaje y lo confirma. Los mensajes inválidos se confirman
// sin publicar; los fallos transitorios se reintentan hasta que ctx se cancele.
func (c *ConsumerAdapter) HandleMessage(ctx context.Context, msg kafka.Message) error {
	evt, err := toEvent(msg)
	if err != nil {
		c.log.Error("❌ Mensaje de Kafka inválido, descartado",
			zap.Int64("offset", msg.Offset),
			zap.String("key", string(msg.Key)),
			zap.Error(err),
		)
		return c.commit(ctx, msg)
	}

	for attempt := 1; ; attempt++ {
		id, err := c.publisher.Publish(ctx, evt)
		if err == nil {
			c.log.Debug("Mensaje de Kafka publicado en el log", zap.String("event_id", id), zap.Int64("offset", msg.Offset))
			return c.commit(ctx, msg)
		}

		var pubErr *logApp.PublishError
		if errors.As(err, &pubErr) && pubErr.Kind == logApp.PublishInvalid {
			c.log.Error("❌ Evento rechazado por el Publisher, descartado",
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			return c.commit(ctx, msg)
		}

		c.log.Warn("⚠️ No se pudo publicar, reintentando",
			zap.Int64("offset", msg.Offset),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if sleepErr := sharedUtils.Sleep(ctx, c.backoff.Delay(attempt)); sleepErr != nil {
			return sleepErr
		}
	}
}

func (c *ConsumerAdapter) commit(ctx context.Context, msg kafka.Message) error {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Sin commit el mensaje se relee; el ID estable hace que sea un duplicado inocuo.
		c.log.Warn("⚠️ No se pudo confirmar el offset en Kafka", zap.Int64("offset", msg.Offset), zap.Error(err))
	}
	return nil
}

func toEvent(msg kafka.Message) (events.Event, error) {
	var in IngressMessage
	if err := json.Unmarshal(msg.Value, &in); err != nil {
		return events.Event{}, fmt.Errorf("%w: %v", events.ErrDecode, err)
	}
	if !in.Type.Valid() {
		return events.Event{}, fmt.Errorf("%w: %q", events.ErrUnknownType, in.Type)
	}
	payload, err := events.DecodePayload(in.Type, in.Payload)
	if err != nil {
		return events.Event{}, err
	}

	id := in.ID
	if id == "" {
		// Sin id del productor se deriva uno estable del offset: una relectura no duplica.
		id = fmt.Sprintf("kafka-%s-%d-%d", msg.Topic, msg.Partition, msg.Offset)
	}
	return events.Event{ID: id, Type: in.Type, Payload: payload, CreatedAt: in.CreatedAt}, nil
}
