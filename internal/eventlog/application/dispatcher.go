package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/davicafu/hexapost/internal/eventlog/domain"
	"github.com/davicafu/hexapost/internal/shared/events"
	sharedUtils "github.com/davicafu/hexapost/internal/shared/infra/utils"
)

var (
	// ErrPartitionOwned: ya hay un worker vivo para ese (group, partition).
	ErrPartitionOwned    = errors.New("partition already owned by another worker")
	ErrDispatcherStarted = errors.New("dispatcher already started; subscriptions are closed")
	ErrNilHandler        = errors.New("handler is required")
	ErrNoSubscriptions   = errors.New("consumer group has no subscriptions")
)

// WorkerState es el estado de un worker de partición.
type WorkerState string

const (
	StateStopped    WorkerState = "stopped"
	StateIdle       WorkerState = "idle"
	StateFetching   WorkerState = "fetching"
	StateHandling   WorkerState = "handling"
	StateCommitting WorkerState = "committing"
	StateBackoff    WorkerState = "backoff"
)

type DispatcherConfig struct {
	BatchSize   int
	MaxAttempts int
	Backoff     sharedUtils.Backoff
	// PollInterval acota la espera en Idle aunque no llegue notificación.
	PollInterval time.Duration
	// HandlerTimeout limita cada invocación; 0 = sin límite.
	HandlerTimeout time.Duration
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.BatchSize < 1 {
		c.BatchSize = 100
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	c.Backoff = c.Backoff.OrDefault()
	return c
}

type workerKey struct {
	group     string
	partition int
}

// Dispatcher entrega los registros del log a los handlers suscritos: un worker por
// (partition, group), en orden, al menos una vez.
type Dispatcher struct {
	log  domain.Log
	sink domain.DeadLetterSink
	cfg  DispatcherConfig
	zlog *zap.Logger

	mu      sync.Mutex
	routes  map[string]map[events.Type][]domain.Handler
	groups  []string
	started bool
	claims  map[workerKey]WorkerState
}

var _ domain.Subscriber = (*Dispatcher)(nil)

func NewDispatcher(l domain.Log, sink domain.DeadLetterSink, cfg DispatcherConfig, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		log:    l,
		sink:   sink,
		cfg:    cfg.withDefaults(),
		zlog:   log,
		routes: make(map[string]map[events.Type][]domain.Handler),
		claims: make(map[workerKey]WorkerState),
	}
}

// Subscribe registra handler para eventType dentro de group. Sólo antes de arrancar.
func (d *Dispatcher) Subscribe(group string, eventType events.Type, handler domain.Handler) error {
	if group == "" {
		return domain.ErrEmptyConsumerName
	}
	if !eventType.Valid() {
		return fmt.Errorf("%w: %q", events.ErrUnknownType, eventType)
	}
	if handler == nil {
		return ErrNilHandler
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return ErrDispatcherStarted
	}
	byType, ok := d.routes[group]
	if !ok {
		byType = make(map[events.Type][]domain.Handler)
		d.routes[group] = byType
		d.groups = append(d.groups, group)
	}
	byType[eventType] = append(byType[eventType], handler)

	d.zlog.Info("📝 Handler registrado",
		zap.String("group", group),
		zap.String("type", eventType.String()),
	)
	return nil
}

// Groups devuelve los consumer groups en orden de registro.
func (d *Dispatcher) Groups() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.groups...)
}

// State devuelve el estado actual del worker, o StateStopped si no hay ninguno.
func (d *Dispatcher) State(group string, partition int) WorkerState {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.claims[workerKey{group, partition}]; ok {
		return s
	}
	return StateStopped
}

// Run arranca un worker por cada (partition, group) y espera a que todos terminen.
// Una cancelación de ctx es una parada cooperativa y devuelve nil.
func (d *Dispatcher) Run(ctx context.Context) error {
	groups := d.freeze()

	g, gctx := errgroup.WithContext(ctx)
	for _, group := range groups {
		for p := 0; p < d.log.Partitions(); p++ {
			g.Go(func() error {
				return d.RunPartition(gctx, group, p)
			})
		}
	}

	d.zlog.Info("🚀 Dispatcher iniciado",
		zap.Strings("groups", groups),
		zap.Int("partitions", d.log.Partitions()),
	)
	err := g.Wait()
	d.zlog.Info("🛑 Dispatcher detenido")
	return err
}

func (d *Dispatcher) freeze() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = true
	return append([]string(nil), d.groups...)
}

// claim reserva (group, partition) dentro de este proceso. No hay lease entre procesos:
// un despliegue corre un único Dispatcher por log.
func (d *Dispatcher) claim(k workerKey) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, owned := d.claims[k]; owned {
		return fmt.Errorf("%w: group=%s partition=%d", ErrPartitionOwned, k.group, k.partition)
	}
	d.claims[k] = StateIdle
	return nil
}

func (d *Dispatcher) release(k workerKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.claims, k)
}

func (d *Dispatcher) setState(k workerKey, s WorkerState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.claims[k]; ok {
		d.claims[k] = s
	}
}

// RunPartition ejecuta el worker de una sola partición hasta que ctx se cancele.
// Reanuda desde el offset confirmado del grupo.
func (d *Dispatcher) RunPartition(ctx context.Context, group string, partition int) error {
	if err := domain.ValidatePartition(partition, d.log.Partitions()); err != nil {
		return err
	}
	d.freeze()

	d.mu.Lock()
	routes, ok := d.routes[group]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSubscriptions, group)
	}

	key := workerKey{group: group, partition: partition}
	if err := d.claim(key); err != nil {
		return err
	}
	defer d.release(key)

	w := &partitionWorker{d: d, key: key, routes: routes, log: d.zlog.With(
		zap.String("group", group),
		zap.Int("partition", partition),
	)}
	return w.run(ctx)
}

type partitionWorker struct {
	d      *Dispatcher
	key    workerKey
	routes map[events.Type][]domain.Handler
	log    *zap.Logger
	next   domain.Position
}

func (w *partitionWorker) state(s WorkerState) { w.d.setState(w.key, s) }

func (w *partitionWorker) run(ctx context.Context) error {
	committed, err := w.committedOffset(ctx)
	if err != nil {
		return nil
	}
	w.next = committed + 1
	w.log.Info("🎧 Worker de partición iniciado", zap.Int64("from", int64(w.next)))

	failures := 0
	for ctx.Err() == nil {
		// El canal se pide antes de leer para no perder un append concurrente.
		wake := w.d.log.Notify(w.key.partition)

		w.state(StateFetching)
		records, err := w.d.log.Read(ctx, w.key.partition, w.next, w.d.cfg.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, domain.ErrNotFound) {
				w.resync(ctx, err)
				continue
			}
			failures++
			w.log.Warn("⚠️ Error leyendo del log", zap.Int("failures", failures), zap.Error(err))
			w.state(StateBackoff)
			_ = sharedUtils.Sleep(ctx, w.d.cfg.Backoff.Delay(failures))
			continue
		}
		failures = 0

		if len(records) == 0 {
			w.idle(ctx, wake)
			continue
		}

		w.state(StateHandling)
		var done domain.Position
		for _, rec := range records {
			if ctx.Err() != nil {
				break
			}
			if err := w.process(ctx, rec); err != nil {
				// Sólo ocurre por cancelación: el registro queda sin confirmar.
				break
			}
			done = rec.Position
		}

		if done > 0 {
			w.commit(ctx, done)
			w.next = done + 1
		}
	}

	w.log.Info("🛑 Worker de partición detenido", zap.Int64("next", int64(w.next)))
	return nil
}

func (w *partitionWorker) committedOffset(ctx context.Context) (domain.Position, error) {
	for attempt := 1; ; attempt++ {
		pos, err := w.d.log.CommittedOffset(ctx, w.key.partition, w.key.group)
		if err == nil {
			return pos, nil
		}
		w.log.Warn("⚠️ No se pudo leer el offset confirmado", zap.Int("attempt", attempt), zap.Error(err))
		if sleepErr := sharedUtils.Sleep(ctx, w.d.cfg.Backoff.Delay(attempt)); sleepErr != nil {
			return 0, sleepErr
		}
	}
}

// resync salta al primer registro retenido. El hueco cuenta como procesado.
func (w *partitionWorker) resync(ctx context.Context, readErr error) {
	earliest := domain.Position(0)
	var gap *domain.RetentionGapError
	if errors.As(readErr, &gap) {
		earliest = gap.Earliest
	} else if e, _, err := w.d.log.Bounds(ctx, w.key.partition); err == nil {
		earliest = e
	}

	if earliest <= w.next {
		w.log.Warn("⚠️ Hueco de retención sin primer registro conocido", zap.Int64("requested", int64(w.next)), zap.Error(readErr))
		w.state(StateBackoff)
		_ = sharedUtils.Sleep(ctx, w.d.cfg.Backoff.Delay(1))
		return
	}

	w.log.Warn("⚠️ Posición compactada, saltando al primer registro retenido",
		zap.Int64("requested", int64(w.next)),
		zap.Int64("earliest", int64(earliest)),
	)
	w.next = earliest
}

func (w *partitionWorker) idle(ctx context.Context, wake <-chan struct{}) {
	w.state(StateIdle)
	t := time.NewTimer(w.d.cfg.PollInterval)
	defer t.Stop()

	select {
	case <-wake:
	case <-t.C:
	case <-ctx.Done():
	}
}

// commit confirma el prefijo procesado. Un fallo no detiene el worker: el siguiente
// commit lo cubre y, si se cae antes, se reentrega (al menos una vez).
func (w *partitionWorker) commit(ctx context.Context, pos domain.Position) {
	w.state(StateCommitting)
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := w.d.log.CommitOffset(cctx, w.key.partition, w.key.group, pos); err != nil {
		w.log.Warn("⚠️ No se pudo confirmar el offset", zap.Int64("position", int64(pos)), zap.Error(err))
		return
	}
	w.log.Debug("Offset confirmado", zap.Int64("position", int64(pos)))
}

// process lleva un registro hasta un estado terminal: entregado, saltado o en dead-letter.
// Sólo devuelve error si ctx se cancela antes de llegar a él.
func (w *partitionWorker) process(ctx context.Context, rec domain.Record) error {
	env, err := events.Decode(rec.Data)
	if err != nil {
		w.log.Error("❌ Registro ilegible", zap.Int64("position", int64(rec.Position)), zap.Error(err))
		return w.deadLetter(ctx, rec, nil, err, 0)
	}

	handlers := w.routes[env.Type]
	if len(handlers) == 0 {
		w.log.Debug("Evento sin handler en el grupo, saltado",
			zap.String("event_id", env.ID),
			zap.String("type", env.Type.String()),
		)
		return nil
	}

	base := env.DeliveryAttempt
	for attempt := 1; ; attempt++ {
		delivery := env.Clone()
		delivery.DeliveryAttempt = base + attempt - 1

		err := w.invoke(ctx, handlers, delivery)
		if err == nil {
			return nil
		}

		permanent := errors.Is(err, events.ErrDecode)
		w.log.Warn("⚠️ Handler falló",
			zap.String("event_id", env.ID),
			zap.String("type", env.Type.String()),
			zap.Int("attempt", attempt),
			zap.Bool("permanent", permanent),
			zap.Error(err),
		)
		if permanent || attempt >= w.d.cfg.MaxAttempts {
			return w.deadLetter(ctx, rec, delivery, err, attempt)
		}

		w.state(StateBackoff)
		if sleepErr := sharedUtils.Sleep(ctx, w.d.cfg.Backoff.Delay(attempt)); sleepErr != nil {
			return sleepErr
		}
		w.state(StateHandling)
	}
}

// invoke ejecuta los handlers en orden de registro. Un handler ya iniciado no se
// aborta por la parada: recibe un contexto desacoplado de la cancelación.
func (w *partitionWorker) invoke(ctx context.Context, handlers []domain.Handler, env *events.Envelope) (err error) {
	hctx := context.WithoutCancel(ctx)
	if w.d.cfg.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(hctx, w.d.cfg.HandlerTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	for _, h := range handlers {
		if err := h.Handle(hctx, env); err != nil {
			return err
		}
	}
	return nil
}

// deadLetter no avanza hasta que el sink acepta la carta.
func (w *partitionWorker) deadLetter(ctx context.Context, rec domain.Record, env *events.Envelope, cause error, attempts int) error {
	letter := domain.DeadLetter{
		ConsumerGroup: w.key.group,
		Partition:     rec.Partition,
		Position:      rec.Position,
		Envelope:      env,
		Raw:           rec.Data,
		Reason:        cause.Error(),
		Attempts:      attempts,
		FailedAt:      time.Now().UTC(),
	}
	fields := []zap.Field{
		zap.String("key", letter.Key()),
		zap.Int("attempts", attempts),
		zap.String("reason", letter.Reason),
	}
	if env != nil {
		fields = append(fields, zap.String("event_id", env.ID), zap.String("type", env.Type.String()))
	}

	if w.d.sink == nil {
		w.log.Error("☠️ Evento descartado (sin dead-letter sink)", fields...)
		return nil
	}

	for attempt := 1; ; attempt++ {
		err := w.d.sink.Send(ctx, letter)
		if err == nil {
			w.log.Error("☠️ Evento enviado a dead-letter", fields...)
			return nil
		}
		w.log.Warn("⚠️ Dead-letter sink no disponible", append(fields, zap.Int("send_attempt", attempt), zap.Error(err))...)

		w.state(StateBackoff)
		if sleepErr := sharedUtils.Sleep(ctx, w.d.cfg.Backoff.Delay(attempt)); sleepErr != nil {
			return sleepErr
		}
	}
}
