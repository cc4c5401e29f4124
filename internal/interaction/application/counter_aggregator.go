package application

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	logDomain "github.com/davicafu/hexapost/internal/eventlog/domain"
	idemDomain "github.com/davicafu/hexapost/internal/idempotency/domain"
	"github.com/davicafu/hexapost/internal/interaction/domain"
	"github.com/davicafu/hexapost/internal/shared/events"
	sharedCache "github.com/davicafu/hexapost/internal/shared/infra/platform/cache"
)

// CounterGroup es el consumer group por defecto del agregador.
const CounterGroup = "post-counters"

// CounterAggregator aplica LikeAdded y CommentAdded a los contadores de cada post.
type CounterAggregator struct {
	counters domain.CounterStore
	dedup    idemDomain.Store
	group    string
	cache    sharedCache.Cache
	log      *zap.Logger
}

// AggregatorOption configura dependencias opcionales del agregador.
type AggregatorOption func(*CounterAggregator)

// WithCache invalida la vista cacheada del post tras cada incremento.
func WithCache(c sharedCache.Cache) AggregatorOption {
	return func(a *CounterAggregator) { a.cache = c }
}

// Verificación estática.
var _ logDomain.Handler = (*CounterAggregator)(nil)

// NewCounterAggregator es el constructor. group vacío usa CounterGroup.
func NewCounterAggregator(counters domain.CounterStore, dedup idemDomain.Store, group string, log *zap.Logger, opts ...AggregatorOption) *CounterAggregator {
	if group == "" {
		group = CounterGroup
	}
	a := &CounterAggregator{counters: counters, dedup: dedup, group: group, log: log}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *CounterAggregator) Group() string { return a.group }

// Register suscribe el agregador a las variantes que cuentan.
func (a *CounterAggregator) Register(sub logDomain.Subscriber) error {
	for _, t := range []events.Type{events.LikeAdded, events.CommentAdded} {
		if err := sub.Subscribe(a.group, t, a); err != nil {
			return fmt.Errorf("subscribe %s/%s: %w", a.group, t, err)
		}
	}
	return nil
}

// Handle implementa la aplicación idempotente: TryApply -> Increment(eventID) -> MarkApplied.
// Los errores del almacén se devuelven para que el Dispatcher reintente.
func (a *CounterAggregator) Handle(ctx context.Context, env *events.Envelope) error {
	field, ok := domain.FieldFor(env.Type)
	if !ok {
		a.log.Debug("Event type does not affect counters", zap.String("type", env.Type.String()))
		return nil
	}

	outcome, err := a.dedup.TryApply(ctx, env.ID, a.group)
	if err != nil {
		return fmt.Errorf("dedup check %s: %w", env.ID, err)
	}
	if outcome == idemDomain.AlreadyApplied {
		a.log.Info("Duplicate event ignored",
			zap.String("event_id", env.ID),
			zap.String("type", env.Type.String()),
			zap.Int("delivery_attempt", env.DeliveryAttempt),
		)
		return nil
	}

	// Un payload ilegible es permanente: el error envuelve events.ErrDecode.
	postID, err := postIDOf(env)
	if err != nil {
		return err
	}
	if postID == "" {
		return fmt.Errorf("%w: %s %s has no postId", events.ErrDecode, env.Type, env.ID)
	}

	value, err := a.counters.Increment(ctx, postID, field, env.ID)
	if err != nil {
		return fmt.Errorf("increment %s of %s: %w", field, postID, err)
	}
	if a.cache != nil {
		sharedCache.AsyncInvalidate(ctx, a.cache, domain.CacheKeyByPost(postID), a.log)
	}

	if err := a.dedup.MarkApplied(ctx, env.ID, a.group); err != nil {
		// El incremento ya es idempotente; el replay no duplicará la cuenta.
		return fmt.Errorf("mark applied %s: %w", env.ID, err)
	}

	a.log.Debug("Counter updated",
		zap.String("post_id", postID),
		zap.String("field", string(field)),
		zap.Int64("value", value),
		zap.String("event_id", env.ID),
	)
	return nil
}

func postIDOf(env *events.Envelope) (string, error) {
	switch env.Type {
	case events.LikeAdded:
		p, err := events.UnmarshalPayload[events.LikeAddedPayload](env)
		if err != nil {
			return "", err
		}
		return p.PostID, nil
	case events.CommentAdded:
		p, err := events.UnmarshalPayload[events.CommentAddedPayload](env)
		if err != nil {
			return "", err
		}
		return p.PostID, nil
	}
	return "", fmt.Errorf("%w: %s", events.ErrUnknownType, env.Type)
}
