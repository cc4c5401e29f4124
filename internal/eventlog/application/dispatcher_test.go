package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/davicafu/hexapost/internal/eventlog/domain"
	"github.com/davicafu/hexapost/internal/eventlog/infra/outbound/memory"
	"github.com/davicafu/hexapost/internal/infra/deadletter"
	"github.com/davicafu/hexapost/internal/mocks"
	"github.com/davicafu/hexapost/internal/shared/events"
	sharedUtils "github.com/davicafu/hexapost/internal/shared/infra/utils"
)

var fastBackoff = sharedUtils.Backoff{Initial: time.Millisecond, Max: 5 * time.Millisecond, Multiplier: 2}

func testDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		BatchSize:    4,
		MaxAttempts:  3,
		Backoff:      fastBackoff,
		PollInterval: 10 * time.Millisecond,
	}
}

// recorder guarda los envelopes recibidos y puede fallar a demanda.
type recorder struct {
	mu   sync.Mutex
	seen []*events.Envelope
	fail func(env *events.Envelope) error
}

func (r *recorder) Handle(_ context.Context, env *events.Envelope) error {
	r.mu.Lock()
	r.seen = append(r.seen, env)
	fail := r.fail
	r.mu.Unlock()
	if fail != nil {
		return fail(env)
	}
	return nil
}

func (r *recorder) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.seen))
	for _, e := range r.seen {
		out = append(out, e.ID)
	}
	return out
}

type sinkRecorder struct {
	mu      sync.Mutex
	letters map[string]domain.DeadLetter
	sends   int
	failN   int
}

func newSinkRecorder() *sinkRecorder {
	return &sinkRecorder{letters: map[string]domain.DeadLetter{}}
}

func (s *sinkRecorder) Send(_ context.Context, l domain.DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends++
	if s.failN > 0 {
		s.failN--
		return errors.New("sink down")
	}
	s.letters[l.Key()] = l
	return nil
}

func (s *sinkRecorder) all() []domain.DeadLetter {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.DeadLetter, 0, len(s.letters))
	for _, l := range s.letters {
		out = append(out, l)
	}
	return out
}

func appendLike(t *testing.T, l domain.Log, id, postID string) domain.Position {
	t.Helper()
	env, err := events.NewEnvelope(events.Event{
		ID:        id,
		Type:      events.LikeAdded,
		Payload:   &events.LikeAddedPayload{LikeID: "L-" + id, PostID: postID, UserID: "U1"},
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	data, err := events.Encode(env)
	require.NoError(t, err)
	_, pos, err := l.Append(context.Background(), postID, data)
	require.NoError(t, err)
	return pos
}

// runWorker arranca RunPartition en segundo plano y devuelve la función de parada.
func runWorker(t *testing.T, d *Dispatcher, group string, partition int) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.RunPartition(ctx, group, partition) }()
	return cancel, done
}

func waitCommitted(t *testing.T, l domain.Log, group string, want domain.Position) {
	t.Helper()
	assert.Eventually(t, func() bool {
		got, err := l.CommittedOffset(context.Background(), 0, group)
		return err == nil && got == want
	}, 2*time.Second, 5*time.Millisecond)
}

func stop(t *testing.T, cancel context.CancelFunc, done <-chan error) {
	t.Helper()
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("el worker no se detuvo")
	}
}

func TestDispatcher_DeliversInOrderAndCommits(t *testing.T) {
	l := memory.NewLog(1)
	rec := &recorder{}
	d := NewDispatcher(l, newSinkRecorder(), testDispatcherConfig(), zap.NewNop())
	require.NoError(t, d.Subscribe("g", events.LikeAdded, rec))

	var want []string
	for i := 1; i <= 10; i++ {
		id := fmt.Sprintf("E%02d", i)
		want = append(want, id)
		appendLike(t, l, id, "P1")
	}

	cancel, done := runWorker(t, d, "g", 0)
	waitCommitted(t, l, "g", 10)

	// Un append con el worker en Idle lo despierta.
	appendLike(t, l, "E11", "P1")
	waitCommitted(t, l, "g", 11)
	stop(t, cancel, done)

	assert.Equal(t, append(want, "E11"), rec.ids())
	assert.Equal(t, StateStopped, d.State("g", 0))
}

func TestDispatcher_ResumesAfterShutdownMidBatch(t *testing.T) {
	l := memory.NewLog(1)
	for i := 1; i <= 10; i++ {
		appendLike(t, l, fmt.Sprintf("E%02d", i), "P1")
	}

	// Primera vida: se corta durante el tercer evento del primer lote.
	ctx, cancel := context.WithCancel(context.Background())
	first := &recorder{fail: func(env *events.Envelope) error {
		if env.ID == "E03" {
			cancel()
		}
		return nil
	}}
	d1 := NewDispatcher(l, newSinkRecorder(), testDispatcherConfig(), zap.NewNop())
	require.NoError(t, d1.Subscribe("g", events.LikeAdded, first))
	require.NoError(t, d1.RunPartition(ctx, "g", 0))

	assert.Equal(t, []string{"E01", "E02", "E03"}, first.ids(), "el handler iniciado termina aunque llegue la parada")
	committed, err := l.CommittedOffset(context.Background(), 0, "g")
	require.NoError(t, err)
	assert.Equal(t, domain.Position(3), committed, "se confirma el prefijo procesado")

	// Segunda vida: continúa justo después.
	second := &recorder{}
	d2 := NewDispatcher(l, newSinkRecorder(), testDispatcherConfig(), zap.NewNop())
	require.NoError(t, d2.Subscribe("g", events.LikeAdded, second))
	cancel2, done := runWorker(t, d2, "g", 0)
	waitCommitted(t, l, "g", 10)
	stop(t, cancel2, done)

	assert.Equal(t, []string{"E04", "E05", "E06", "E07", "E08", "E09", "E10"}, second.ids())
}

// failingCommitLog simula un crash entre procesar y confirmar.
type failingCommitLog struct {
	domain.Log
}

func (f failingCommitLog) CommitOffset(context.Context, int, string, domain.Position) error {
	return errors.New("disk full")
}

func TestDispatcher_RedeliversWhenCommitIsLost(t *testing.T) {
	l := memory.NewLog(1)
	for i := 1; i <= 3; i++ {
		appendLike(t, l, fmt.Sprintf("E%d", i), "P1")
	}

	first := &recorder{}
	d1 := NewDispatcher(failingCommitLog{l}, newSinkRecorder(), testDispatcherConfig(), zap.NewNop())
	require.NoError(t, d1.Subscribe("g", events.LikeAdded, first))
	cancel, done := runWorker(t, d1, "g", 0)
	assert.Eventually(t, func() bool { return len(first.ids()) == 3 }, 2*time.Second, 5*time.Millisecond)
	stop(t, cancel, done)

	second := &recorder{}
	d2 := NewDispatcher(l, newSinkRecorder(), testDispatcherConfig(), zap.NewNop())
	require.NoError(t, d2.Subscribe("g", events.LikeAdded, second))
	cancel, done = runWorker(t, d2, "g", 0)
	waitCommitted(t, l, "g", 3)
	stop(t, cancel, done)

	assert.Equal(t, []string{"E1", "E2", "E3"}, second.ids(), "al menos una vez y en el mismo orden")
}

func TestDispatcher_PoisonEventIsDeadLetteredOnce(t *testing.T) {
	l := memory.NewLog(1)
	sink := newSinkRecorder()
	sink.failN = 2 // el sink también falla al principio

	rec := &recorder{fail: func(env *events.Envelope) error {
		if env.ID == "E2" {
			return errors.New("boom")
		}
		return nil
	}}
	d := NewDispatcher(l, sink, testDispatcherConfig(), zap.NewNop())
	require.NoError(t, d.Subscribe("g", events.LikeAdded, rec))

	for i := 1; i <= 3; i++ {
		appendLike(t, l, fmt.Sprintf("E%d", i), "P1")
	}

	cancel, done := runWorker(t, d, "g", 0)
	waitCommitted(t, l, "g", 3)
	stop(t, cancel, done)

	assert.Equal(t, []string{"E1", "E2", "E2", "E2", "E3"}, rec.ids())

	letters := sink.all()
	require.Len(t, letters, 1)
	assert.Equal(t, "g:0:2:E2", letters[0].Key())
	assert.Equal(t, 3, letters[0].Attempts)
	require.NotNil(t, letters[0].Envelope)
	assert.Equal(t, "E2", letters[0].Envelope.ID)
	assert.Equal(t, 2, letters[0].Envelope.DeliveryAttempt)
	assert.Contains(t, letters[0].Reason, "boom")
}

func TestDispatcher_DeliveryAttemptGrowsOnRetry(t *testing.T) {
	l := memory.NewLog(1)
	calls := 0
	rec := &recorder{fail: func(*events.Envelope) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}}
	d := NewDispatcher(l, newSinkRecorder(), testDispatcherConfig(), zap.NewNop())
	require.NoError(t, d.Subscribe("g", events.LikeAdded, rec))
	appendLike(t, l, "E1", "P1")

	cancel, done := runWorker(t, d, "g", 0)
	waitCommitted(t, l, "g", 1)
	stop(t, cancel, done)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.seen, 3)
	for i, env := range rec.seen {
		assert.Equal(t, i, env.DeliveryAttempt)
	}
}

func TestDispatcher_DecodeErrorsArePermanent(t *testing.T) {
	l := memory.NewLog(1)
	sink := newSinkRecorder()
	rec := &recorder{fail: func(env *events.Envelope) error {
		if env.ID == "E1" {
			return fmt.Errorf("bad payload: %w", events.ErrDecode)
		}
		return nil
	}}
	d := NewDispatcher(l, sink, testDispatcherConfig(), zap.NewNop())
	require.NoError(t, d.Subscribe("g", events.LikeAdded, rec))

	appendLike(t, l, "E1", "P1")
	_, _, err := l.Append(context.Background(), "P1", []byte(`{"schemaVersion":1,"id":`))
	require.NoError(t, err)
	appendLike(t, l, "E3", "P1")

	cancel, done := runWorker(t, d, "g", 0)
	waitCommitted(t, l, "g", 3)
	stop(t, cancel, done)

	assert.Equal(t, []string{"E1", "E3"}, rec.ids(), "sin reintentos para errores de decodificación")

	letters := map[string]domain.DeadLetter{}
	for _, letter := range sink.all() {
		letters[letter.Key()] = letter
	}
	require.Len(t, letters, 2)
	assert.Equal(t, 1, letters["g:0:1:E1"].Attempts)
	garbled := letters["g:0:2:raw-"+events.Checksum([]byte(`{"schemaVersion":1,"id":`))]
	assert.Nil(t, garbled.Envelope)
	assert.Equal(t, 0, garbled.Attempts)
	assert.Equal(t, `{"schemaVersion":1,"id":`, string(garbled.Raw))
}

func TestDispatcher_SkipsTypesWithoutHandler(t *testing.T) {
	l := memory.NewLog(1)
	rec := &recorder{}
	d := NewDispatcher(l, newSinkRecorder(), testDispatcherConfig(), zap.NewNop())
	require.NoError(t, d.Subscribe("g", events.CommentAdded, rec))

	appendLike(t, l, "E1", "P1")

	cancel, done := runWorker(t, d, "g", 0)
	waitCommitted(t, l, "g", 1)
	stop(t, cancel, done)

	assert.Empty(t, rec.ids())
}

func TestDispatcher_ResyncsAfterRetentionGap(t *testing.T) {
	ctx := context.Background()
	l := memory.NewLog(1)
	for i := 1; i <= 5; i++ {
		appendLike(t, l, fmt.Sprintf("E%d", i), "P1")
	}
	require.NoError(t, l.CommitOffset(ctx, 0, "other", 5))
	removed, err := l.Compact(ctx, 0, 3)
	require.NoError(t, err)
	require.Equal(t, 3, removed)

	rec := &recorder{}
	d := NewDispatcher(l, newSinkRecorder(), testDispatcherConfig(), zap.NewNop())
	require.NoError(t, d.Subscribe("g", events.LikeAdded, rec))

	cancel, done := runWorker(t, d, "g", 0)
	waitCommitted(t, l, "g", 5)
	stop(t, cancel, done)

	assert.Equal(t, []string{"E4", "E5"}, rec.ids())
}

func TestDispatcher_PartitionOwnership(t *testing.T) {
	l := memory.NewLog(2)
	d := NewDispatcher(l, newSinkRecorder(), testDispatcherConfig(), zap.NewNop())
	require.NoError(t, d.Subscribe("g", events.LikeAdded, &recorder{}))

	cancel, done := runWorker(t, d, "g", 0)
	assert.Eventually(t, func() bool { return d.State("g", 0) != StateStopped }, time.Second, time.Millisecond)

	err := d.RunPartition(context.Background(), "g", 0)
	assert.ErrorIs(t, err, ErrPartitionOwned)

	stop(t, cancel, done)

	err = d.RunPartition(context.Background(), "g", 5)
	assert.ErrorIs(t, err, domain.ErrInvalidPartition)

	err = d.RunPartition(context.Background(), "nobody", 0)
	assert.ErrorIs(t, err, ErrNoSubscriptions)
}

func TestDispatcher_SubscribeValidation(t *testing.T) {
	d := NewDispatcher(memory.NewLog(1), nil, testDispatcherConfig(), zap.NewNop())

	assert.ErrorIs(t, d.Subscribe("", events.LikeAdded, &recorder{}), domain.ErrEmptyConsumerName)
	assert.ErrorIs(t, d.Subscribe("g", events.Type("PostDeleted"), &recorder{}), events.ErrUnknownType)
	assert.ErrorIs(t, d.Subscribe("g", events.LikeAdded, nil), ErrNilHandler)
	require.NoError(t, d.Subscribe("g", events.LikeAdded, &recorder{}))
	require.NoError(t, d.Subscribe("h", events.LikeAdded, &recorder{}))
	assert.Equal(t, []string{"g", "h"}, d.Groups())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, d.Run(ctx))

	assert.ErrorIs(t, d.Subscribe("g", events.CommentAdded, &recorder{}), ErrDispatcherStarted)
}

func TestDispatcher_RunServesEveryGroupAndPartition(t *testing.T) {
	l := memory.NewLog(4)
	counters, analytics := &recorder{}, &recorder{}
	d := NewDispatcher(l, newSinkRecorder(), testDispatcherConfig(), zap.NewNop())
	require.NoError(t, d.Subscribe("counters", events.LikeAdded, counters))
	require.NoError(t, d.Subscribe("analytics", events.LikeAdded, analytics))

	for i := 0; i < 20; i++ {
		appendLike(t, l, fmt.Sprintf("E%d", i), fmt.Sprintf("P%d", i%7))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return len(counters.ids()) == 20 && len(analytics.ids()) == 20
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run no terminó")
	}
}

func TestDispatcher_HandlerPanicIsAFailure(t *testing.T) {
	l := memory.NewLog(1)
	sink := newSinkRecorder()
	d := NewDispatcher(l, sink, testDispatcherConfig(), zap.NewNop())
	require.NoError(t, d.Subscribe("g", events.LikeAdded, domain.HandlerFunc(func(context.Context, *events.Envelope) error {
		panic("nil map")
	})))
	appendLike(t, l, "E1", "P1")

	cancel, done := runWorker(t, d, "g", 0)
	waitCommitted(t, l, "g", 1)
	stop(t, cancel, done)

	letters := sink.all()
	require.Len(t, letters, 1)
	assert.Contains(t, letters[0].Reason, "nil map")
}

func TestDispatcher_DeadLettersSurviveLogRestart(t *testing.T) {
	// Un log en memoria reinicia sus posiciones; el sink persiste entre vidas.
	sink := deadletter.NewMemorySink(zap.NewNop())
	alwaysFails := &recorder{fail: func(*events.Envelope) error { return errors.New("boom") }}

	for _, id := range []string{"E-first-life", "E-second-life"} {
		l := memory.NewLog(1)
		d := NewDispatcher(l, sink, testDispatcherConfig(), zap.NewNop())
		require.NoError(t, d.Subscribe("g", events.LikeAdded, alwaysFails))

		require.Equal(t, domain.Position(1), appendLike(t, l, id, "P1"))

		cancel, done := runWorker(t, d, "g", 0)
		waitCommitted(t, l, "g", 1)
		stop(t, cancel, done)
	}

	letters, err := sink.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, letters, 2, "la misma posición en otra vida del log no es la misma carta")
	ids := []string{letters[0].Envelope.ID, letters[1].Envelope.ID}
	assert.ElementsMatch(t, []string{"E-first-life", "E-second-life"}, ids)
}

func TestDispatcher_SendsLetterToSink(t *testing.T) {
	l := memory.NewLog(1)
	sink := new(mocks.MockDeadLetterSink)
	sink.On("Send", mock.Anything, mock.MatchedBy(func(letter domain.DeadLetter) bool {
		return letter.ConsumerGroup == "g" && letter.Position == 1 &&
			letter.Envelope != nil && letter.Envelope.ID == "E1" && letter.Attempts == 3
	})).Return(errors.New("sink down")).Once()
	sink.On("Send", mock.Anything, mock.Anything).Return(nil).Once()

	d := NewDispatcher(l, sink, testDispatcherConfig(), zap.NewNop())
	require.NoError(t, d.Subscribe("g", events.LikeAdded, &recorder{fail: func(*events.Envelope) error {
		return errors.New("boom")
	}}))
	appendLike(t, l, "E1", "P1")

	cancel, done := runWorker(t, d, "g", 0)
	waitCommitted(t, l, "g", 1)
	stop(t, cancel, done)

	sink.AssertExpectations(t)
	sink.AssertNumberOfCalls(t, "Send", 2)
}

func TestDispatcher_DefaultsZeroBackoff(t *testing.T) {
	d := NewDispatcher(memory.NewLog(1), nil, DispatcherConfig{}, zap.NewNop())

	assert.Equal(t, sharedUtils.DefaultBackoff, d.cfg.Backoff)
	assert.Equal(t, 100, d.cfg.BatchSize)
	assert.Equal(t, 1, d.cfg.MaxAttempts)
	assert.Equal(t, time.Second, d.cfg.PollInterval)

	cfg := testDispatcherConfig()
	assert.Equal(t, fastBackoff, NewDispatcher(memory.NewLog(1), nil, cfg, zap.NewNop()).cfg.Backoff)
}
