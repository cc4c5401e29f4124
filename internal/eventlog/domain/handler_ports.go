package domain

import (
	"context"
	"strconv"
	"time"

	"github.com/davicafu/hexapost/internal/shared/events"
)

// Handler procesa un envelope. Debe ser idempotente: el Dispatcher entrega al menos una vez.
type Handler interface {
	Handle(ctx context.Context, env *events.Envelope) error
}

// HandlerFunc adapta una función a Handler.
type HandlerFunc func(ctx context.Context, env *events.Envelope) error

func (f HandlerFunc) Handle(ctx context.Context, env *events.Envelope) error { return f(ctx, env) }

// Subscriber es la API de registro de consumidores.
type Subscriber interface {
	Subscribe(group string, eventType events.Type, handler Handler) error
}

// DeadLetter es lo que se entrega al sink cuando un evento se saca del camino principal.
type DeadLetter struct {
	ConsumerGroup string
	Partition     int
	Position      Position
	// Envelope es nil si el registro ni siquiera se pudo decodificar.
	Envelope *events.Envelope
	Raw      []byte
	Reason   string
	Attempts int
	FailedAt time.Time
}

// Key identifica la carta de forma estable para que los reenvíos tras un crash sean idempotentes.
// Incluye el id del evento (o el checksum del registro ilegible) porque las posiciones
// de un log en memoria vuelven a empezar tras un reinicio.
func (d DeadLetter) Key() string {
	key := d.ConsumerGroup + ":" + strconv.Itoa(d.Partition) + ":" + strconv.FormatInt(int64(d.Position), 10)
	switch {
	case d.Envelope != nil:
		return key + ":" + d.Envelope.ID
	case len(d.Raw) > 0:
		return key + ":raw-" + events.Checksum(d.Raw)
	}
	return key
}

// DeadLetterSink es el colaborador externo que recibe los eventos venenosos.
type DeadLetterSink interface {
	Send(ctx context.Context, letter DeadLetter) error
}

// EventPublisher es la API de productor. Devuelve el id del evento cuando el append es durable.
type EventPublisher interface {
	Publish(ctx context.Context, evt events.Event) (string, error)
}

// DeadLetterStore es un sink que además permite inspeccionar las cartas guardadas.
type DeadLetterStore interface {
	DeadLetterSink
	// List devuelve las cartas más recientes primero.
	List(ctx context.Context, limit int) ([]DeadLetter, error)
}

// RestoreEnvelope reconstruye el envelope desde Raw; nil si el registro era ilegible.
func RestoreEnvelope(raw []byte, attempts int) *events.Envelope {
	env, err := events.Decode(raw)
	if err != nil {
		return nil
	}
	if attempts > 0 {
		env.DeliveryAttempt += attempts - 1
	}
	return env
}
