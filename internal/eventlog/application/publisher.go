package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davicafu/hexapost/internal/eventlog/domain"
	"github.com/davicafu/hexapost/internal/shared/events"
	sharedUtils "github.com/davicafu/hexapost/internal/shared/infra/utils"
)

// PublishErrorKind clasifica los fallos visibles para el productor.
type PublishErrorKind string

const (
	// PublishInvalid: tipo y payload no cuadran o el payload no es válido. No reintentar.
	PublishInvalid PublishErrorKind = "invalid"
	// PublishUnavailable: el log no pudo hacer durable la escritura tras los reintentos.
	PublishUnavailable PublishErrorKind = "unavailable"
	// PublishTimeout: se agotó el plazo. El resultado es ambiguo, el evento pudo quedar escrito.
	PublishTimeout PublishErrorKind = "timeout"
)

// ErrPublish coincide con cualquier *PublishError vía errors.Is.
var ErrPublish = errors.New("publish failed")

type PublishError struct {
	Kind    PublishErrorKind
	EventID string
	Err     error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s (%s): %v", e.EventID, e.Kind, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

func (e *PublishError) Is(target error) bool { return target == ErrPublish }

// PublisherConfig agrupa los parámetros de reintento del Publisher.
type PublisherConfig struct {
	Timeout     time.Duration
	MaxAttempts int
	Backoff     sharedUtils.Backoff
}

// Publisher valida, envuelve y añade eventos al Durable Log.
type Publisher struct {
	log   domain.Log
	cfg   PublisherConfig
	newID func() string
	now   func() time.Time
	zlog  *zap.Logger
}

func NewPublisher(l domain.Log, cfg PublisherConfig, log *zap.Logger) *Publisher {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	cfg.Backoff = cfg.Backoff.OrDefault()
	return &Publisher{
		log:   l,
		cfg:   cfg,
		newID: newEventID,
		now:   time.Now,
		zlog:  log,
	}
}

// newEventID genera UUIDv7: únicos y ordenables por tiempo de creación.
func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Publish devuelve el id del evento solo cuando el append es durable.
// Reintentar con el mismo ID es seguro: la dedup ocurre aguas abajo.
func (p *Publisher) Publish(ctx context.Context, evt events.Event) (string, error) {
	if err := validate(evt); err != nil {
		return evt.ID, &PublishError{Kind: PublishInvalid, EventID: evt.ID, Err: err}
	}

	if evt.ID == "" {
		evt.ID = p.newID()
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = p.now()
	}

	env, err := events.NewEnvelope(evt)
	if err != nil {
		return evt.ID, &PublishError{Kind: PublishInvalid, EventID: evt.ID, Err: err}
	}
	data, err := events.Encode(env)
	if err != nil {
		return evt.ID, &PublishError{Kind: PublishInvalid, EventID: evt.ID, Err: err}
	}

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	var partition int
	var pos domain.Position
	err = sharedUtils.Retry(ctx, p.cfg.MaxAttempts, p.cfg.Backoff,
		func(err error) bool { return errors.Is(err, domain.ErrDurability) && ctx.Err() == nil },
		func(attempt int) error {
			var appendErr error
			partition, pos, appendErr = p.log.Append(ctx, env.PartitionKey, data)
			if appendErr != nil {
				p.zlog.Warn("Append failed",
					zap.String("event_id", env.ID),
					zap.Int("attempt", attempt),
					zap.Error(appendErr),
				)
			}
			return appendErr
		},
	)

	if err != nil {
		kind := PublishUnavailable
		if ctx.Err() != nil {
			kind = PublishTimeout
		}
		p.zlog.Error("Publish failed",
			zap.String("event_id", env.ID),
			zap.String("type", env.Type.String()),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return env.ID, &PublishError{Kind: kind, EventID: env.ID, Err: err}
	}

	p.zlog.Debug("Event published",
		zap.String("event_id", env.ID),
		zap.String("type", env.Type.String()),
		zap.String("partition_key", env.PartitionKey),
		zap.Int("partition", partition),
		zap.Int64("position", int64(pos)),
	)
	return env.ID, nil
}

// validate comprueba que type y payload son consistentes.
func validate(evt events.Event) error {
	if !evt.Type.Valid() {
		return fmt.Errorf("%w: %q", events.ErrUnknownType, evt.Type)
	}
	if evt.Payload == nil {
		return fmt.Errorf("%w: payload is required", events.ErrInvalidEvent)
	}
	if evt.Payload.EventType() != evt.Type {
		return fmt.Errorf("%w: payload is %s, event type is %s", events.ErrInvalidEvent, evt.Payload.EventType(), evt.Type)
	}
	if err := evt.Payload.Validate(); err != nil {
		return err
	}
	if evt.Payload.PartitionKey() == "" {
		return fmt.Errorf("%w: empty partition key", events.ErrInvalidEvent)
	}
	return nil
}

// Verificación estática.
var _ domain.EventPublisher = (*Publisher)(nil)
